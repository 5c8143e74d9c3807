// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// TextureID is the logical identity of a texture. Each member indexes a
// redirection table owned by the backend, so it survives recreation of
// the image, memory and view underneath.
type TextureID struct {
	ID       uint32
	MemoryID uint32
	ViewID   uint32
}

// Valid reports whether the backend assigned the identity.
func (t TextureID) Valid() bool {
	return t.ID != 0
}

// DescriptorRef locates a descriptor binding that references a texture.
type DescriptorRef struct {
	Pool    Handle
	Set     int
	Binding uint32
}

// Texture is an image with its view. Swapchain sized textures are
// recreated in place whenever the swapchain extent changes.
type Texture struct {
	Name    string
	Format  Format
	Extent  Extent2D
	Usage   ImageUsage
	Tiling  Tiling
	Samples SampleCount

	// MipLevels of 0 or 1 means no mip chain.
	MipLevels uint32
	Cubemap   bool

	// InputAttachment textures are bound as subpass inputs instead of
	// combined image samplers.
	InputAttachment bool
	SwapchainSized  bool

	InitialLayout ImageLayout
	FinalLayout   ImageLayout

	Binding Binding
	ID      TextureID

	writers []DescriptorRef
}

// Levels returns the number of mip levels, at least one.
func (t *Texture) Levels() uint32 {
	if t.MipLevels == 0 {
		return 1
	}
	return t.MipLevels
}

// Layers returns 6 for cubemaps and 1 otherwise.
func (t *Texture) Layers() uint32 {
	if t.Cubemap {
		return 6
	}
	return 1
}

// SampleCount returns at least one sample.
func (t *Texture) SampleCount() SampleCount {
	if t.Samples == 0 {
		return Samples1
	}
	return t.Samples
}

// RecordWriter remembers that ref last wrote this texture.
func (t *Texture) RecordWriter(ref DescriptorRef) {
	for _, w := range t.writers {
		if w == ref {
			return
		}
	}
	t.writers = append(t.writers, ref)
}

// Writers returns every descriptor binding that references this texture.
func (t *Texture) Writers() []DescriptorRef {
	return t.writers
}

// ForgetWriters drops all writers that belong to pool.
func (t *Texture) ForgetWriters(pool Handle) {
	kept := t.writers[:0]
	for _, w := range t.writers {
		if w.Pool != pool {
			kept = append(kept, w)
		}
	}
	t.writers = kept
}
