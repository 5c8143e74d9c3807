// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/model"
	"github.com/pkg/errors"
)

// MaterialUniformBinding is the binding of the material factors, after
// the texture slots.
const MaterialUniformBinding = model.MaterialTextures

// MaterialSet is a bound material: one descriptor set per frame in flight
// plus the uniform buffer holding its factors.
type MaterialSet struct {
	Flags   uint32
	Uniform *gfx.UniformBuffer

	pool  PoolHandle
	start int
	count int
}

// Set returns the descriptor set used in frame.
func (m *MaterialSet) Set(d *Descriptors, frame uint64) Handle {
	return d.Sets(m.pool, m.start, m.count)[frame%uint64(m.count)]
}

// MaterialBinder lays out and binds the descriptor set every graphics
// pipeline has in slot 1.
type MaterialBinder struct {
	alloc       *Allocator
	descriptors *Descriptors

	layout LayoutHandle
	pool   PoolHandle

	white *gfx.Texture
	slots []uint32

	bound, max int
}

func materialPrototype() ([]gfx.Buffer, []*gfx.Texture) {
	textures := make([]*gfx.Texture, model.MaterialTextures)
	for i := range textures {
		textures[i] = &gfx.Texture{Binding: gfx.Binding{Slot: uint32(i), Stages: gfx.FragmentStage}}
	}
	uniform := gfx.NewUniformBuffer(MaterialUniformBinding, gfx.FragmentStage, model.MaterialFactorsSize)
	return []gfx.Buffer{uniform}, textures
}

// NewMaterialBinder creates the material layout and a pool for
// maxMaterials materials.
func NewMaterialBinder(alloc *Allocator, descriptors *Descriptors, maxMaterials int) (*MaterialBinder, error) {
	buffers, textures := materialPrototype()
	layout, err := descriptors.CreateDescriptorSetLayout(buffers, textures)
	if err != nil {
		return nil, err
	}

	sets := uint32(maxMaterials * alloc.ctx.framesInFlight)
	pool, err := descriptors.CreateDescriptorPool(sets, sets*model.MaterialTextures, 0, 0)
	if err != nil {
		descriptors.DestroyDescriptorSetLayout(layout)
		return nil, err
	}

	white := &gfx.Texture{Name: "white", Format: gfx.FormatRGBA8Unorm}
	if err := alloc.CreateTexture(white, &gfx.Pixels{Width: 1, Height: 1, Layers: 1, Data: []byte{0xff, 0xff, 0xff, 0xff}}); err != nil {
		descriptors.DestroyDescriptorPool(pool)
		descriptors.DestroyDescriptorSetLayout(layout)
		return nil, err
	}

	mb := &MaterialBinder{
		alloc:       alloc,
		descriptors: descriptors,
		layout:      layout,
		pool:        pool,
		white:       white,
		max:         maxMaterials,
	}
	for _, t := range textures {
		mb.slots = append(mb.slots, t.Binding.Slot)
	}
	return mb, nil
}

// Layout returns the material descriptor set layout.
func (mb *MaterialBinder) Layout() LayoutHandle {
	return mb.layout
}

// Bind uploads the material factors and writes one set per frame in
// flight. Missing textures are bound to a white placeholder and their
// bit in the texture flag word stays clear.
func (mb *MaterialBinder) Bind(m *model.Material) (MaterialSet, error) {
	if mb.bound >= mb.max {
		return MaterialSet{}, errors.Wrapf(ErrPoolExhausted, "material %s: %d materials bound", m.Name, mb.bound)
	}

	uniform := gfx.NewUniformBuffer(MaterialUniformBinding, gfx.FragmentStage, model.MaterialFactorsSize)
	if err := mb.alloc.CreateUniformBuffer(uniform); err != nil {
		return MaterialSet{}, err
	}
	data := m.Factors.Bytes()
	for frame := range uniform.IDs {
		if err := mb.alloc.WriteBuffer(uniform, uint64(frame), data); err != nil {
			mb.alloc.Release(uniform)
			return MaterialSet{}, err
		}
	}

	// Textures are written at their material slot. Their own Binding
	// belongs to whichever pipeline set 0 also holds them.
	textures := make([]*gfx.Texture, model.MaterialTextures)
	for i, t := range m.Textures {
		if t == nil {
			t = mb.white
		}
		textures[i] = t
	}

	count := mb.alloc.ctx.framesInFlight
	start, err := mb.descriptors.createSets(mb.layout, count, mb.pool, []gfx.Buffer{uniform}, textures, mb.slots)
	if err != nil {
		mb.alloc.Release(uniform)
		return MaterialSet{}, err
	}
	mb.bound++

	return MaterialSet{
		Flags:   m.Flags(),
		Uniform: uniform,
		pool:    mb.pool,
		start:   start,
		count:   count,
	}, nil
}

// Release frees the uniform buffer of a bound material. Descriptor sets
// go back only when the binder is destroyed.
func (mb *MaterialBinder) Release(set *MaterialSet) {
	if set.Uniform != nil {
		mb.alloc.Release(set.Uniform)
		set.Uniform = nil
	}
}

// Destroy destroys the pool, the layout and the placeholder texture.
func (mb *MaterialBinder) Destroy() {
	mb.descriptors.DestroyDescriptorPool(mb.pool)
	mb.descriptors.DestroyDescriptorSetLayout(mb.layout)
	mb.alloc.DestroyTexture(mb.white)
}
