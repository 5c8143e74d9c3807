// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "fmt"

// Binding is the semantic binding of a resource: the slot it occupies
// in its descriptor set and the shader stages that see it.
type Binding struct {
	Slot   uint32
	Stages ShaderStage
}

// BufferResource is the data every buffer kind carries. IDs holds one
// backend buffer per frame in flight for dynamic buffers and exactly one
// for static buffers.
type BufferResource struct {
	Binding Binding
	Size    uint64
	Dynamic bool
	IDs     []Handle
}

func (r *BufferResource) resource() *BufferResource {
	return r
}

// ID returns the backend buffer used by the given frame.
func (r *BufferResource) ID(frame uint64) Handle {
	switch len(r.IDs) {
	case 0:
		panic("gfx: buffer has no backend resources")
	case 1:
		return r.IDs[0]
	}
	return r.IDs[frame%uint64(len(r.IDs))]
}

// Sub returns the i-th frame relative sub-resource. Static buffers share
// their only resource, dynamic buffers panic when i is out of range.
func (r *BufferResource) Sub(i int) Handle {
	if len(r.IDs) == 1 {
		return r.IDs[0]
	}
	if i < 0 || i >= len(r.IDs) {
		panic(fmt.Sprintf("gfx: buffer sub-resource %d out of range [0,%d)", i, len(r.IDs)))
	}
	return r.IDs[i]
}

// Created reports whether the backend resources exist.
func (r *BufferResource) Created() bool {
	return len(r.IDs) > 0
}

// Buffer is the closed set of buffer kinds: *VertexBuffer, *IndexBuffer,
// *UniformBuffer and *StructuredBuffer.
type Buffer interface {
	resource() *BufferResource
}

// Resource exposes the common data of any buffer kind.
func Resource(b Buffer) *BufferResource {
	return b.resource()
}

// VertexBuffer holds per-vertex attributes described by Layout.
type VertexBuffer struct {
	BufferResource
	Layout VertexLayout
	Count  uint32
}

// IndexBuffer holds vertex indices.
type IndexBuffer struct {
	BufferResource
	Type  IndexType
	Count uint32
}

// UniformBuffer is bound as a uniform buffer descriptor.
type UniformBuffer struct {
	BufferResource
}

// StructuredBuffer is bound as a storage buffer descriptor.
type StructuredBuffer struct {
	BufferResource
	Stride uint32
}

// BufferKind names the variant of a Buffer.
type BufferKind int

// Buffer kinds.
const (
	VertexKind BufferKind = iota
	IndexKind
	UniformKind
	StructuredKind
)

func (k BufferKind) String() string {
	switch k {
	case VertexKind:
		return "vertex"
	case IndexKind:
		return "index"
	case UniformKind:
		return "uniform"
	case StructuredKind:
		return "structured"
	}
	return "unknown"
}

// KindOf returns the variant of b.
func KindOf(b Buffer) BufferKind {
	switch b.(type) {
	case *VertexBuffer:
		return VertexKind
	case *IndexBuffer:
		return IndexKind
	case *UniformBuffer:
		return UniformKind
	case *StructuredBuffer:
		return StructuredKind
	}
	panic(fmt.Sprintf("gfx: unknown buffer type %T", b))
}

// Usage returns the buffer usage a kind needs on the device.
func (k BufferKind) Usage() BufferUsage {
	switch k {
	case VertexKind:
		return BufferVertex | BufferTransferDst
	case IndexKind:
		return BufferIndex | BufferTransferDst
	case UniformKind:
		return BufferUniform
	default:
		return BufferStorage | BufferVertex | BufferTransferDst
	}
}

// NewUniformBuffer declares a per-frame uniform buffer of size bytes.
func NewUniformBuffer(slot uint32, stages ShaderStage, size uint64) *UniformBuffer {
	return &UniformBuffer{BufferResource{
		Binding: Binding{Slot: slot, Stages: stages},
		Size:    size,
		Dynamic: true,
	}}
}

// NewStructuredBuffer declares a storage buffer of count elements of stride bytes.
func NewStructuredBuffer(slot uint32, stages ShaderStage, stride, count uint32, dynamic bool) *StructuredBuffer {
	return &StructuredBuffer{
		BufferResource: BufferResource{
			Binding: Binding{Slot: slot, Stages: stages},
			Size:    uint64(stride) * uint64(count),
			Dynamic: dynamic,
		},
		Stride: stride,
	}
}
