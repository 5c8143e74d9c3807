// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package platform opens windows that Vulkan can present to.
// All calls must come from the main thread.
package platform

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/gfx/vkr"
)

// Window is a native window with a Vulkan surface.
type Window interface {
	vkr.Window

	// InstanceExtensions are the extensions the surface needs.
	InstanceExtensions() []string

	// ProcAddr is the loader entry point to create the instance with.
	ProcAddr() unsafe.Pointer

	// CreateSurface creates the presentation surface on instance.
	CreateSurface(instance vk.Instance) (uintptr, error)

	// PollEvents handles pending events without blocking.
	PollEvents()

	// ShouldClose reports whether the user asked to quit.
	ShouldClose() bool

	// Resized reports and clears a pending resize.
	Resized() bool

	Destroy()
}

// Open creates a window with the configured backend.
func Open(cfg core.WindowConfiguration) (Window, error) {
	switch cfg.Backend {
	case "sdl", "":
		return NewSDLWindow(cfg)
	case "glfw":
		return NewGLFWWindow(cfg)
	}
	return nil, errors.Errorf("unknown window backend %q", cfg.Backend)
}

// events is the state both backends keep between polls.
type events struct {
	closed  bool
	resized bool
}

func (e *events) ShouldClose() bool {
	return e.closed
}

func (e *events) Resized() bool {
	r := e.resized
	e.resized = false
	return r
}
