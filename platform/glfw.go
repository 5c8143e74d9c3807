// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package platform

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/gfx"
)

// GLFWWindow is a Vulkan window backed by GLFW.
type GLFWWindow struct {
	events
	window *glfw.Window
}

// NewGLFWWindow initialises GLFW without a client API and opens a window.
func NewGLFWWindow(cfg core.WindowConfiguration) (*GLFWWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "glfw.Init()")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw: vulkan is not supported")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "glfw.CreateWindow()")
	}

	w := &GLFWWindow{window: window}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized = true
	})
	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.closed = true
		}
	})
	window.SetCloseCallback(func(*glfw.Window) {
		w.closed = true
	})
	return w, nil
}

// FramebufferSize implements vkr.Window
func (w *GLFWWindow) FramebufferSize() gfx.Extent2D {
	width, height := w.window.GetFramebufferSize()
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// WaitEvents implements vkr.Window
func (w *GLFWWindow) WaitEvents() {
	glfw.WaitEvents()
}

// PollEvents implements Window
func (w *GLFWWindow) PollEvents() {
	glfw.PollEvents()
}

// InstanceExtensions implements Window
func (w *GLFWWindow) InstanceExtensions() []string {
	return w.window.GetRequiredInstanceExtensions()
}

// ProcAddr implements Window
func (w *GLFWWindow) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// CreateSurface implements Window
func (w *GLFWWindow) CreateSurface(instance vk.Instance) (uintptr, error) {
	surface, err := w.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "glfw.CreateWindowSurface()")
	}
	return surface, nil
}

// Destroy implements Window
func (w *GLFWWindow) Destroy() {
	w.window.Destroy()
	glfw.Terminate()
}
