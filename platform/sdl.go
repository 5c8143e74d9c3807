// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package platform

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/gfx"
)

// SDLWindow is a Vulkan window backed by SDL2.
type SDLWindow struct {
	events
	window *sdl.Window
}

// NewSDLWindow initialises SDL with its Vulkan loader and opens a window.
func NewSDLWindow(cfg core.WindowConfiguration) (*SDLWindow, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "sdl.Init()")
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}

	window, err := sdl.CreateWindow(cfg.Title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width),
		int32(cfg.Height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}
	return &SDLWindow{window: window}, nil
}

// FramebufferSize implements vkr.Window
func (w *SDLWindow) FramebufferSize() gfx.Extent2D {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return gfx.Extent2D{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// WaitEvents implements vkr.Window
func (w *SDLWindow) WaitEvents() {
	if event := sdl.WaitEvent(); event != nil {
		w.handle(event)
	}
}

// PollEvents implements Window
func (w *SDLWindow) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
}

func (w *SDLWindow) handle(event sdl.Event) {
	switch et := event.(type) {
	case *sdl.QuitEvent:
		w.closed = true
	case *sdl.KeyboardEvent:
		if et.Keysym.Sym == sdl.K_ESCAPE {
			w.closed = true
		}
	case *sdl.WindowEvent:
		switch et.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_RESTORED:
			w.resized = true
		}
	}
}

// InstanceExtensions implements Window
func (w *SDLWindow) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// ProcAddr implements Window
func (w *SDLWindow) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// CreateSurface implements Window
func (w *SDLWindow) CreateSurface(instance vk.Instance) (uintptr, error) {
	surface, err := w.window.VulkanCreateSurface(instance)
	if err != nil {
		return 0, errors.Wrap(err, "sdl.VulkanCreateSurface()")
	}
	return uintptr(surface), nil
}

// Destroy implements Window
func (w *SDLWindow) Destroy() {
	w.window.Destroy()
	sdl.VulkanUnloadLibrary()
	sdl.Quit()
}
