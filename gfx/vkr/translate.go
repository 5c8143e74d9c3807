// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/kiln/gfx"
	vk "github.com/vulkan-go/vulkan"
)

var formats = map[gfx.Format]vk.Format{
	gfx.FormatUndefined:      vk.FormatUndefined,
	gfx.FormatR8Unorm:        vk.FormatR8Unorm,
	gfx.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	gfx.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	gfx.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	gfx.FormatBGRA8Srgb:      vk.FormatB8g8r8a8Srgb,
	gfx.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	gfx.FormatR32Float:       vk.FormatR32Sfloat,
	gfx.FormatRG32Float:      vk.FormatR32g32Sfloat,
	gfx.FormatRGB32Float:     vk.FormatR32g32b32Sfloat,
	gfx.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	gfx.FormatD16Unorm:       vk.FormatD16Unorm,
	gfx.FormatD32Float:       vk.FormatD32Sfloat,
	gfx.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	gfx.FormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func toFormat(f gfx.Format) vk.Format {
	return formats[f]
}

// fromFormat maps back a native format. Formats the renderer does not
// know come back undefined.
func fromFormat(f vk.Format) gfx.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gfx.FormatUndefined
}

func aspectOf(f gfx.Format) vk.ImageAspectFlags {
	if !f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if f.HasStencil() {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}

var layouts = [...]vk.ImageLayout{
	gfx.LayoutUndefined:              vk.ImageLayoutUndefined,
	gfx.LayoutGeneral:                vk.ImageLayoutGeneral,
	gfx.LayoutColorAttachment:        vk.ImageLayoutColorAttachmentOptimal,
	gfx.LayoutDepthStencilAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	gfx.LayoutDepthStencilReadOnly:   vk.ImageLayoutDepthStencilReadOnlyOptimal,
	gfx.LayoutShaderReadOnly:         vk.ImageLayoutShaderReadOnlyOptimal,
	gfx.LayoutTransferSrc:            vk.ImageLayoutTransferSrcOptimal,
	gfx.LayoutTransferDst:            vk.ImageLayoutTransferDstOptimal,
	gfx.LayoutPresentSrc:             vk.ImageLayoutPresentSrc,
}

func toLayout(l gfx.ImageLayout) vk.ImageLayout {
	return layouts[l]
}

// bits translates a flag set one bit at a time.
type bits[F ~uint32] []struct {
	from F
	to   uint32
}

func (b bits[F]) translate(f F) uint32 {
	var out uint32
	for _, e := range b {
		if f&e.from == e.from {
			out |= e.to
		}
	}
	return out
}

var accessBits = bits[gfx.Access]{
	{gfx.AccessIndirectCommandRead, uint32(vk.AccessIndirectCommandReadBit)},
	{gfx.AccessIndexRead, uint32(vk.AccessIndexReadBit)},
	{gfx.AccessVertexAttributeRead, uint32(vk.AccessVertexAttributeReadBit)},
	{gfx.AccessUniformRead, uint32(vk.AccessUniformReadBit)},
	{gfx.AccessInputAttachmentRead, uint32(vk.AccessInputAttachmentReadBit)},
	{gfx.AccessShaderRead, uint32(vk.AccessShaderReadBit)},
	{gfx.AccessShaderWrite, uint32(vk.AccessShaderWriteBit)},
	{gfx.AccessColorAttachmentRead, uint32(vk.AccessColorAttachmentReadBit)},
	{gfx.AccessColorAttachmentWrite, uint32(vk.AccessColorAttachmentWriteBit)},
	{gfx.AccessDepthStencilRead, uint32(vk.AccessDepthStencilAttachmentReadBit)},
	{gfx.AccessDepthStencilWrite, uint32(vk.AccessDepthStencilAttachmentWriteBit)},
	{gfx.AccessTransferRead, uint32(vk.AccessTransferReadBit)},
	{gfx.AccessTransferWrite, uint32(vk.AccessTransferWriteBit)},
	{gfx.AccessHostRead, uint32(vk.AccessHostReadBit)},
	{gfx.AccessHostWrite, uint32(vk.AccessHostWriteBit)},
	{gfx.AccessMemoryRead, uint32(vk.AccessMemoryReadBit)},
	{gfx.AccessMemoryWrite, uint32(vk.AccessMemoryWriteBit)},
}

func toAccess(a gfx.Access) vk.AccessFlags {
	return vk.AccessFlags(accessBits.translate(a))
}

var stageBits = bits[gfx.PipelineStage]{
	{gfx.StageTopOfPipe, uint32(vk.PipelineStageTopOfPipeBit)},
	{gfx.StageDrawIndirect, uint32(vk.PipelineStageDrawIndirectBit)},
	{gfx.StageVertexInput, uint32(vk.PipelineStageVertexInputBit)},
	{gfx.StageVertexShader, uint32(vk.PipelineStageVertexShaderBit)},
	{gfx.StageTessControlShader, uint32(vk.PipelineStageTessellationControlShaderBit)},
	{gfx.StageTessEvalShader, uint32(vk.PipelineStageTessellationEvaluationShaderBit)},
	{gfx.StageGeometryShader, uint32(vk.PipelineStageGeometryShaderBit)},
	{gfx.StageFragmentShader, uint32(vk.PipelineStageFragmentShaderBit)},
	{gfx.StageEarlyFragmentTests, uint32(vk.PipelineStageEarlyFragmentTestsBit)},
	{gfx.StageLateFragmentTests, uint32(vk.PipelineStageLateFragmentTestsBit)},
	{gfx.StageColorAttachmentOutput, uint32(vk.PipelineStageColorAttachmentOutputBit)},
	{gfx.StageComputeShader, uint32(vk.PipelineStageComputeShaderBit)},
	{gfx.StageTransfer, uint32(vk.PipelineStageTransferBit)},
	{gfx.StageBottomOfPipe, uint32(vk.PipelineStageBottomOfPipeBit)},
	{gfx.StageHost, uint32(vk.PipelineStageHostBit)},
	{gfx.StageAllGraphics, uint32(vk.PipelineStageAllGraphicsBit)},
	{gfx.StageAllCommands, uint32(vk.PipelineStageAllCommandsBit)},
}

// toStages never returns an empty mask, an empty stage set means the top
// of the pipe.
func toStages(s gfx.PipelineStage) vk.PipelineStageFlags {
	if out := stageBits.translate(s); out != 0 {
		return vk.PipelineStageFlags(out)
	}
	return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

var shaderStageBits = bits[gfx.ShaderStage]{
	{gfx.VertexStage, uint32(vk.ShaderStageVertexBit)},
	{gfx.TessControlStage, uint32(vk.ShaderStageTessellationControlBit)},
	{gfx.TessEvalStage, uint32(vk.ShaderStageTessellationEvaluationBit)},
	{gfx.GeometryStage, uint32(vk.ShaderStageGeometryBit)},
	{gfx.FragmentStage, uint32(vk.ShaderStageFragmentBit)},
	{gfx.ComputeStage, uint32(vk.ShaderStageComputeBit)},
}

func toShaderStages(s gfx.ShaderStage) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(shaderStageBits.translate(s))
}

var bufferUsageBits = bits[gfx.BufferUsage]{
	{gfx.BufferTransferSrc, uint32(vk.BufferUsageTransferSrcBit)},
	{gfx.BufferTransferDst, uint32(vk.BufferUsageTransferDstBit)},
	{gfx.BufferUniform, uint32(vk.BufferUsageUniformBufferBit)},
	{gfx.BufferStorage, uint32(vk.BufferUsageStorageBufferBit)},
	{gfx.BufferIndex, uint32(vk.BufferUsageIndexBufferBit)},
	{gfx.BufferVertex, uint32(vk.BufferUsageVertexBufferBit)},
}

func toBufferUsage(u gfx.BufferUsage) vk.BufferUsageFlags {
	return vk.BufferUsageFlags(bufferUsageBits.translate(u))
}

var imageUsageBits = bits[gfx.ImageUsage]{
	{gfx.ImageTransferSrc, uint32(vk.ImageUsageTransferSrcBit)},
	{gfx.ImageTransferDst, uint32(vk.ImageUsageTransferDstBit)},
	{gfx.ImageSampled, uint32(vk.ImageUsageSampledBit)},
	{gfx.ImageStorage, uint32(vk.ImageUsageStorageBit)},
	{gfx.ImageColorAttachment, uint32(vk.ImageUsageColorAttachmentBit)},
	{gfx.ImageDepthStencilAttachment, uint32(vk.ImageUsageDepthStencilAttachmentBit)},
	{gfx.ImageTransientAttachment, uint32(vk.ImageUsageTransientAttachmentBit)},
	{gfx.ImageInputAttachment, uint32(vk.ImageUsageInputAttachmentBit)},
}

func toImageUsage(u gfx.ImageUsage) vk.ImageUsageFlags {
	return vk.ImageUsageFlags(imageUsageBits.translate(u))
}

var memoryPropertyBits = bits[gfx.MemoryProperty]{
	{gfx.DeviceLocal, uint32(vk.MemoryPropertyDeviceLocalBit)},
	{gfx.HostVisible, uint32(vk.MemoryPropertyHostVisibleBit)},
	{gfx.HostCoherent, uint32(vk.MemoryPropertyHostCoherentBit)},
	{gfx.HostCached, uint32(vk.MemoryPropertyHostCachedBit)},
	{gfx.LazilyAllocated, uint32(vk.MemoryPropertyLazilyAllocatedBit)},
}

func fromMemoryProperties(flags vk.MemoryPropertyFlags) gfx.MemoryProperty {
	var out gfx.MemoryProperty
	for _, e := range memoryPropertyBits {
		if uint32(flags)&e.to != 0 {
			out |= e.from
		}
	}
	return out
}

func toFormatFeatures(u gfx.ImageUsage) vk.FormatFeatureFlags {
	var out vk.FormatFeatureFlagBits
	if u&gfx.ImageSampled != 0 {
		out |= vk.FormatFeatureSampledImageBit
	}
	if u&gfx.ImageStorage != 0 {
		out |= vk.FormatFeatureStorageImageBit
	}
	if u&gfx.ImageColorAttachment != 0 {
		out |= vk.FormatFeatureColorAttachmentBit
	}
	if u&gfx.ImageDepthStencilAttachment != 0 {
		out |= vk.FormatFeatureDepthStencilAttachmentBit
	}
	return vk.FormatFeatureFlags(out)
}

var descriptorTypes = [...]vk.DescriptorType{
	gfx.UniformBufferDescriptor:        vk.DescriptorTypeUniformBuffer,
	gfx.StorageBufferDescriptor:        vk.DescriptorTypeStorageBuffer,
	gfx.CombinedImageSamplerDescriptor: vk.DescriptorTypeCombinedImageSampler,
	gfx.InputAttachmentDescriptor:      vk.DescriptorTypeInputAttachment,
}

func toDescriptorType(t gfx.DescriptorType) vk.DescriptorType {
	return descriptorTypes[t]
}

var topologies = [...]vk.PrimitiveTopology{
	gfx.TriangleList:  vk.PrimitiveTopologyTriangleList,
	gfx.TriangleStrip: vk.PrimitiveTopologyTriangleStrip,
	gfx.LineList:      vk.PrimitiveTopologyLineList,
	gfx.PointList:     vk.PrimitiveTopologyPointList,
}

var polygonModes = [...]vk.PolygonMode{
	gfx.PolygonFill:  vk.PolygonModeFill,
	gfx.PolygonLine:  vk.PolygonModeLine,
	gfx.PolygonPoint: vk.PolygonModePoint,
}

var cullModes = [...]vk.CullModeFlagBits{
	gfx.CullBack:  vk.CullModeBackBit,
	gfx.CullFront: vk.CullModeFrontBit,
	gfx.CullNone:  vk.CullModeNone,
}

var frontFaces = [...]vk.FrontFace{
	gfx.Clockwise:        vk.FrontFaceClockwise,
	gfx.CounterClockwise: vk.FrontFaceCounterClockwise,
}

var compareOps = [...]vk.CompareOp{
	gfx.CompareLess:        vk.CompareOpLess,
	gfx.CompareLessOrEqual: vk.CompareOpLessOrEqual,
	gfx.CompareGreater:     vk.CompareOpGreater,
}

var blendFactors = [...]vk.BlendFactor{
	gfx.BlendZero:             vk.BlendFactorZero,
	gfx.BlendOne:              vk.BlendFactorOne,
	gfx.BlendSrcAlpha:         vk.BlendFactorSrcAlpha,
	gfx.BlendOneMinusSrcAlpha: vk.BlendFactorOneMinusSrcAlpha,
	gfx.BlendDstAlpha:         vk.BlendFactorDstAlpha,
	gfx.BlendOneMinusDstAlpha: vk.BlendFactorOneMinusDstAlpha,
}

var blendOps = [...]vk.BlendOp{
	gfx.BlendAdd:      vk.BlendOpAdd,
	gfx.BlendSubtract: vk.BlendOpSubtract,
	gfx.BlendMin:      vk.BlendOpMin,
	gfx.BlendMax:      vk.BlendOpMax,
}

var loadOps = [...]vk.AttachmentLoadOp{
	gfx.LoadClear:    vk.AttachmentLoadOpClear,
	gfx.LoadKeep:     vk.AttachmentLoadOpLoad,
	gfx.LoadDontCare: vk.AttachmentLoadOpDontCare,
}

var storeOps = [...]vk.AttachmentStoreOp{
	gfx.StoreKeep:     vk.AttachmentStoreOpStore,
	gfx.StoreDontCare: vk.AttachmentStoreOpDontCare,
}

var sampleCounts = map[gfx.SampleCount]vk.SampleCountFlagBits{
	gfx.Samples1:  vk.SampleCount1Bit,
	gfx.Samples2:  vk.SampleCount2Bit,
	gfx.Samples4:  vk.SampleCount4Bit,
	gfx.Samples8:  vk.SampleCount8Bit,
	gfx.Samples16: vk.SampleCount16Bit,
	gfx.Samples32: vk.SampleCount32Bit,
	gfx.Samples64: vk.SampleCount64Bit,
}

func toSamples(s gfx.SampleCount) vk.SampleCountFlagBits {
	if bit, ok := sampleCounts[s]; ok {
		return bit
	}
	return vk.SampleCount1Bit
}

// fromSampleFlags keeps the native encoding, where every supported count
// is the bit of the same value.
func fromSampleFlags(flags vk.SampleCountFlags) gfx.SampleCount {
	return gfx.SampleCount(flags)
}

var presentModes = map[gfx.PresentMode]vk.PresentMode{
	gfx.PresentFifo:        vk.PresentModeFifo,
	gfx.PresentFifoRelaxed: vk.PresentModeFifoRelaxed,
	gfx.PresentMailbox:     vk.PresentModeMailbox,
	gfx.PresentImmediate:   vk.PresentModeImmediate,
}

func fromPresentMode(m vk.PresentMode) (gfx.PresentMode, bool) {
	for k, v := range presentModes {
		if v == m {
			return k, true
		}
	}
	return gfx.PresentFifo, false
}

var colorSpaces = map[gfx.ColorSpace]vk.ColorSpace{
	gfx.ColorSpaceSRGBNonlinear:      vk.ColorSpaceSrgbNonlinear,
	gfx.ColorSpaceExtendedSRGBLinear: vk.ColorSpaceExtendedSrgbLinear,
}

func fromColorSpace(c vk.ColorSpace) (gfx.ColorSpace, bool) {
	for k, v := range colorSpaces {
		if v == c {
			return k, true
		}
	}
	return gfx.ColorSpaceSRGBNonlinear, false
}

var indexTypes = [...]vk.IndexType{
	gfx.IndexUint32: vk.IndexTypeUint32,
	gfx.IndexUint16: vk.IndexTypeUint16,
}

var bindPoints = [...]vk.PipelineBindPoint{
	BindGraphics: vk.PipelineBindPointGraphics,
	BindCompute:  vk.PipelineBindPointCompute,
}

func toBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
