// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// GraphicsPipelineDesc is the declarative description of a graphics pipeline.
// Buffers and Textures are pipeline-global bindings placed in set 0, set 1
// is always the per-mesh material.
type GraphicsPipelineDesc struct {
	Name           string
	VertexShader   string
	FragmentShader string

	// EntryPoint defaults to "main", which is also the only one supported.
	EntryPoint string

	VertexLayout VertexLayout
	Topology     Topology
	Raster       RasterFlags
	Blend        BlendState
	Depth        DepthState

	Buffers  []Buffer
	Textures []*Texture

	// ColorAttachments the subpass writes, at least one.
	ColorAttachments int

	// Samples and Subpass are filled in by the render pass that owns the pipeline.
	Samples SampleCount
	Subpass int
}

// ComputePipelineDesc is the declarative description of a compute pipeline.
type ComputePipelineDesc struct {
	Name       string
	Shader     string
	EntryPoint string

	Buffers  []Buffer
	Textures []*Texture

	// PushConstants lists the byte sizes of the push constant payloads,
	// the range covers their sum.
	PushConstants []uint32
}

// PushConstantSize sums the declared push constant payloads.
func (d ComputePipelineDesc) PushConstantSize() uint32 {
	var size uint32
	for _, s := range d.PushConstants {
		size += s
	}
	return size
}
