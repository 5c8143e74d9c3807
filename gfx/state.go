// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// CompareOp is the depth comparison a fragment has to pass.
type CompareOp int

// Depth comparisons. Less is the zero value.
const (
	CompareLess CompareOp = iota
	CompareLessOrEqual
	CompareGreater
)

// Passes evaluates the comparison for an incoming fragment depth
// against the stored one.
func (c CompareOp) Passes(incoming, stored float32) bool {
	switch c {
	case CompareLessOrEqual:
		return incoming <= stored
	case CompareGreater:
		return incoming > stored
	default:
		return incoming < stored
	}
}

// DepthState configures depth testing of a pipeline.
type DepthState struct {
	Test    bool
	Write   bool
	Compare CompareOp
}

// Topology is the primitive assembly mode.
type Topology int

// Primitive topologies.
const (
	TriangleList Topology = iota
	TriangleStrip
	LineList
	PointList
)

// PolygonMode decides how polygons are rasterized.
type PolygonMode int

// Polygon modes.
const (
	PolygonFill PolygonMode = iota
	PolygonLine
	PolygonPoint
)

// CullMode decides which faces are discarded.
type CullMode int

// Cull modes.
const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// FrontFace is the winding order of front facing triangles.
type FrontFace int

// Front face windings.
const (
	Clockwise FrontFace = iota
	CounterClockwise
)

// RasterFlags are named deviations from the default raster state,
// which is filled polygons, back face culling and clockwise winding.
type RasterFlags uint32

// Raster flags.
const (
	RasterWireframe RasterFlags = 1 << iota
	RasterPoints
	RasterCullFront
	RasterCullNone
	RasterCounterClockwise
)

// RasterState is the resolved rasterizer configuration.
type RasterState struct {
	Polygon PolygonMode
	Cull    CullMode
	Front   FrontFace
}

// Resolve turns flags into a raster state. Wireframe wins over points,
// and disabling culling wins over front face culling.
func (f RasterFlags) Resolve() RasterState {
	var rs RasterState
	switch {
	case f&RasterWireframe != 0:
		rs.Polygon = PolygonLine
	case f&RasterPoints != 0:
		rs.Polygon = PolygonPoint
	}
	switch {
	case f&RasterCullNone != 0:
		rs.Cull = CullNone
	case f&RasterCullFront != 0:
		rs.Cull = CullFront
	}
	if f&RasterCounterClockwise != 0 {
		rs.Front = CounterClockwise
	}
	return rs
}

// BlendFactor scales a blend input.
type BlendFactor int

// Blend factors.
const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstAlpha
	BlendOneMinusDstAlpha
)

// BlendOp combines the scaled blend inputs.
type BlendOp int

// Blend operations.
const (
	BlendAdd BlendOp = iota
	BlendSubtract
	BlendMin
	BlendMax
)

// BlendState configures blending of one color attachment.
// Blending only happens when Enabled is set.
type BlendState struct {
	Enabled  bool
	SrcColor BlendFactor
	DstColor BlendFactor
	ColorOp  BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	AlphaOp  BlendOp
}

// AlphaBlending is the usual "over" operator.
func AlphaBlending() BlendState {
	return BlendState{
		Enabled:  true,
		SrcColor: BlendSrcAlpha,
		DstColor: BlendOneMinusSrcAlpha,
		SrcAlpha: BlendOne,
		DstAlpha: BlendZero,
	}
}

// AdditiveBlending adds the source on top of the destination.
func AdditiveBlending() BlendState {
	return BlendState{
		Enabled:  true,
		SrcColor: BlendSrcAlpha,
		DstColor: BlendOne,
		SrcAlpha: BlendOne,
		DstAlpha: BlendOne,
	}
}

// LoadOp is what happens to attachment contents at the start of a pass.
type LoadOp int

// Load operations.
const (
	LoadClear LoadOp = iota
	LoadKeep
	LoadDontCare
)

// StoreOp is what happens to attachment contents at the end of a pass.
type StoreOp int

// Store operations.
const (
	StoreKeep StoreOp = iota
	StoreDontCare
)

// DescriptorType is the kind of resource a descriptor binding refers to.
type DescriptorType int

// Descriptor types.
const (
	UniformBufferDescriptor DescriptorType = iota
	StorageBufferDescriptor
	CombinedImageSamplerDescriptor
	InputAttachmentDescriptor
)

func (t DescriptorType) String() string {
	switch t {
	case UniformBufferDescriptor:
		return "uniform buffer"
	case StorageBufferDescriptor:
		return "storage buffer"
	case CombinedImageSamplerDescriptor:
		return "combined image sampler"
	case InputAttachmentDescriptor:
		return "input attachment"
	}
	return "unknown"
}

// LayoutBinding is one binding of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}
