// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// VertexAttribute is one attribute inside a vertex.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// VertexLayout describes interleaved vertices bound at binding 0.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// Empty is true for pipelines that generate vertices in the shader.
func (l VertexLayout) Empty() bool {
	return l.Stride == 0 && len(l.Attributes) == 0
}
