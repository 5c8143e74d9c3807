// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the declarative rendering vocabulary that renderers
// translate into native objects. Nothing in here talks to a graphics API,
// backends map these values in a single translation module of their own.
package gfx

// Releasable is a device resource its holder frees explicitly.
type Releasable interface {
	// Release frees the backend objects. The value must not be used after.
	Release()
}

// Handle is a generational index into a backend arena. The zero value
// is never a valid handle, generations start at 1.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Nil reports whether the handle was never assigned.
func (h Handle) Nil() bool {
	return h.Gen == 0
}

// Extent2D is a two dimensional size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Area returns zero when any side is zero.
func (e Extent2D) Area() uint64 {
	return uint64(e.Width) * uint64(e.Height)
}

// Extent3D is a three dimensional size in pixels.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}
