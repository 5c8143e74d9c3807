// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// ShaderStage is a set of shader stages a resource is visible to.
type ShaderStage uint32

// Shader stages.
const (
	VertexStage ShaderStage = 1 << iota
	TessControlStage
	TessEvalStage
	GeometryStage
	FragmentStage
	ComputeStage

	AllGraphicsStages = VertexStage | TessControlStage | TessEvalStage | GeometryStage | FragmentStage
)

// Has reports whether every stage in o is in s.
func (s ShaderStage) Has(o ShaderStage) bool {
	return s&o == o
}

// BufferUsage describes what a buffer will be used for.
type BufferUsage uint32

// Buffer usages.
const (
	BufferTransferSrc BufferUsage = 1 << iota
	BufferTransferDst
	BufferUniform
	BufferStorage
	BufferIndex
	BufferVertex
)

// ImageUsage describes what an image will be used for.
type ImageUsage uint32

// Image usages.
const (
	ImageTransferSrc ImageUsage = 1 << iota
	ImageTransferDst
	ImageSampled
	ImageStorage
	ImageColorAttachment
	ImageDepthStencilAttachment
	ImageTransientAttachment
	ImageInputAttachment
)

// MemoryProperty is a set of required memory properties.
type MemoryProperty uint32

// Memory properties.
const (
	DeviceLocal MemoryProperty = 1 << iota
	HostVisible
	HostCoherent
	HostCached
	LazilyAllocated
)

// Access is a set of memory access types used by barriers.
type Access uint32

// Access types.
const (
	AccessNone                 Access = 0
	AccessIndirectCommandRead  Access = 1 << (iota - 1)
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
)

// PipelineStage is a set of pipeline stages used by barriers and waits.
type PipelineStage uint32

// Pipeline stages.
const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageTessControlShader
	StageTessEvalShader
	StageGeometryShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost
	StageAllGraphics
	StageAllCommands
)
