// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/kiln/gfx"
)

// Handle is an opaque native object handle. Zero is the null handle.
type Handle uint64

// NullHandle is the null native handle.
const NullHandle Handle = 0

// Queue names a logical submission stream.
type Queue int

// Submission streams.
const (
	GraphicsQueue Queue = iota
	ComputeQueue
)

// Status is the non-error outcome of acquire and present.
type Status int

// Presentation statuses.
const (
	StatusSuccess Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return "success"
}

// BindPoint is the pipeline bind point.
type BindPoint int

// Bind points.
const (
	BindGraphics BindPoint = iota
	BindCompute
)

// SubpassExternal refers to commands outside of the render pass.
const SubpassExternal = ^uint32(0)

// AttachmentUnused fills attachment reference slots that are not used.
const AttachmentUnused = ^uint32(0)

// Limits are the device limits the renderer depends on.
type Limits struct {
	MaxSamplerAnisotropy float32

	// FramebufferSamples is the set of sample counts supported by both
	// color and depth attachments, one bit per count.
	FramebufferSamples gfx.SampleCount
}

// MemoryType is one memory type of the physical device.
type MemoryType struct {
	Properties gfx.MemoryProperty
	Heap       uint32
}

// MemoryRequirements of a buffer or image.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// ImageInfo describes an image to create.
type ImageInfo struct {
	Extent    gfx.Extent2D
	Format    gfx.Format
	MipLevels uint32
	Layers    uint32
	Samples   gfx.SampleCount
	Tiling    gfx.Tiling
	Usage     gfx.ImageUsage
	Cube      bool
}

// ViewInfo describes an image view to create.
type ViewInfo struct {
	Image     Handle
	Format    gfx.Format
	MipLevels uint32
	Layers    uint32
	Cube      bool
}

// SamplerInfo describes a linear, repeating sampler.
type SamplerInfo struct {
	MipLevels  uint32
	Anisotropy float32
}

// PoolSize is the number of descriptors of one type a pool holds.
type PoolSize struct {
	Type  gfx.DescriptorType
	Count uint32
}

// DescriptorWrite points one binding of a set at a resource.
type DescriptorWrite struct {
	Set     Handle
	Binding uint32
	Type    gfx.DescriptorType

	Buffer Handle
	Range  uint64

	View    Handle
	Sampler Handle
	Layout  gfx.ImageLayout
}

// PushConstantRange is a range of push constant bytes visible to stages.
type PushConstantRange struct {
	Stages gfx.ShaderStage
	Offset uint32
	Size   uint32
}

// GraphicsPipelineInfo is the resolved state of a graphics pipeline.
type GraphicsPipelineInfo struct {
	Layout     Handle
	RenderPass Handle
	Subpass    uint32

	Vertex     Handle
	Fragment   Handle
	EntryPoint string

	VertexLayout     gfx.VertexLayout
	Topology         gfx.Topology
	Raster           gfx.RasterState
	Blend            gfx.BlendState
	Depth            gfx.DepthState
	ColorAttachments int
	Samples          gfx.SampleCount
}

// ComputePipelineInfo is the resolved state of a compute pipeline.
type ComputePipelineInfo struct {
	Layout     Handle
	Shader     Handle
	EntryPoint string
}

// AttachmentInfo describes one render pass attachment.
type AttachmentInfo struct {
	Format  gfx.Format
	Samples gfx.SampleCount
	Load    gfx.LoadOp
	Store   gfx.StoreOp
	Initial gfx.ImageLayout
	Final   gfx.ImageLayout
}

// AttachmentRef references an attachment from a subpass.
type AttachmentRef struct {
	Attachment uint32
	Layout     gfx.ImageLayout
}

// SubpassInfo lists the attachments a subpass uses. Resolve is either
// empty or as long as Color.
type SubpassInfo struct {
	Color   []AttachmentRef
	Inputs  []AttachmentRef
	Resolve []AttachmentRef
	Depth   *AttachmentRef
}

// DependencyInfo is an execution and memory dependency between subpasses.
type DependencyInfo struct {
	Src, Dst uint32
	Masks    gfx.BarrierMasks
	ByRegion bool
}

// RenderPassInfo describes a render pass.
type RenderPassInfo struct {
	Attachments  []AttachmentInfo
	Subpasses    []SubpassInfo
	Dependencies []DependencyInfo
}

// SurfaceCapabilities of the window surface.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means there is no limit.
	MaxImageCount uint32

	// CurrentExtent of 0xFFFFFFFF wide lets the swapchain decide.
	CurrentExtent gfx.Extent2D
	MinExtent     gfx.Extent2D
	MaxExtent     gfx.Extent2D
}

// SurfaceFormat is a presentable format and color space pair.
type SurfaceFormat struct {
	Format     gfx.Format
	ColorSpace gfx.ColorSpace
}

// SwapchainInfo describes a swapchain to create.
type SwapchainInfo struct {
	Format      SurfaceFormat
	PresentMode gfx.PresentMode
	Extent      gfx.Extent2D
	ImageCount  uint32
}

// ImageBarrier changes the layout of an image.
type ImageBarrier struct {
	Image     Handle
	Format    gfx.Format
	Old, New  gfx.ImageLayout
	Masks     gfx.BarrierMasks
	MipLevels uint32
	Layers    uint32
}

// BufferImageCopy is one region of a buffer to image copy.
type BufferImageCopy struct {
	Offset   uint64
	MipLevel uint32
	Layer    uint32
	Extent   gfx.Extent2D
}

// ClearValue clears either a color or a depth attachment.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// RenderPassBegin starts a render pass instance.
type RenderPassBegin struct {
	RenderPass  Handle
	Framebuffer Handle
	Extent      gfx.Extent2D
	Clear       []ClearValue
}

// SubmitInfo is one queue submission.
type SubmitInfo struct {
	Buffers    []Handle
	Wait       []Handle
	WaitStages []gfx.PipelineStage
	Signal     []Handle
	Fence      Handle
}

// Driver is the native graphics device. Everything above it speaks the
// declarative gfx vocabulary, the driver alone translates it.
// A driver is owned by a single thread.
type Driver interface {
	Limits() Limits
	MemoryTypes() []MemoryType

	CreateBuffer(size uint64, usage gfx.BufferUsage) (Handle, MemoryRequirements, error)
	DestroyBuffer(Handle)
	CreateImage(ImageInfo) (Handle, MemoryRequirements, error)
	DestroyImage(Handle)
	CreateImageView(ViewInfo) (Handle, error)
	DestroyImageView(Handle)
	AllocateMemory(size uint64, typeIndex uint32) (Handle, error)
	FreeMemory(Handle)
	BindBufferMemory(buffer, memory Handle) error
	BindImageMemory(image, memory Handle) error
	MapMemory(memory Handle, size uint64) ([]byte, error)
	UnmapMemory(Handle)

	CreateSampler(SamplerInfo) (Handle, error)
	DestroySampler(Handle)

	CreateDescriptorSetLayout([]gfx.LayoutBinding) (Handle, error)
	DestroyDescriptorSetLayout(Handle)
	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (Handle, error)
	DestroyDescriptorPool(Handle)
	AllocateDescriptorSets(pool Handle, layouts []Handle) ([]Handle, error)
	UpdateDescriptorSets([]DescriptorWrite)

	CreateShaderModule(code []byte) (Handle, error)
	DestroyShaderModule(Handle)
	CreatePipelineLayout(sets []Handle, push []PushConstantRange) (Handle, error)
	DestroyPipelineLayout(Handle)
	CreateGraphicsPipeline(GraphicsPipelineInfo) (Handle, error)
	CreateComputePipeline(ComputePipelineInfo) (Handle, error)
	DestroyPipeline(Handle)
	CreateRenderPass(RenderPassInfo) (Handle, error)
	DestroyRenderPass(Handle)
	CreateFramebuffer(renderPass Handle, views []Handle, extent gfx.Extent2D) (Handle, error)
	DestroyFramebuffer(Handle)

	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]gfx.PresentMode, error)
	FormatSupported(gfx.Format, gfx.ImageUsage) bool
	CreateSwapchain(SwapchainInfo) (Handle, error)
	SwapchainImages(Handle) ([]Handle, error)
	DestroySwapchain(Handle)
	AcquireNextImage(swapchain, semaphore Handle) (uint32, Status, error)
	QueuePresent(swapchain Handle, index uint32, wait Handle) (Status, error)

	CreateFence(signaled bool) (Handle, error)
	WaitForFence(Handle) error
	ResetFence(Handle) error
	DestroyFence(Handle)
	CreateSemaphore() (Handle, error)
	DestroySemaphore(Handle)

	CreateCommandPool(Queue) (Handle, error)
	DestroyCommandPool(Handle)
	AllocateCommandBuffers(pool Handle, count int) ([]Handle, error)
	FreeCommandBuffers(pool Handle, buffers []Handle)
	BeginCommandBuffer(cb Handle, oneTime bool) error
	EndCommandBuffer(Handle) error
	ResetCommandBuffer(Handle) error
	QueueSubmit(Queue, SubmitInfo) error
	QueueWaitIdle(Queue) error
	DeviceWaitIdle() error

	CmdPipelineBarrier(cb Handle, barriers ...ImageBarrier)
	CmdCopyBuffer(cb, src, dst Handle, size uint64)
	CmdCopyBufferToImage(cb, src, dst Handle, regions []BufferImageCopy)
	CmdBeginRenderPass(cb Handle, begin RenderPassBegin)
	CmdNextSubpass(cb Handle)
	CmdEndRenderPass(cb Handle)
	CmdBindPipeline(cb Handle, point BindPoint, pipeline Handle)
	CmdBindDescriptorSets(cb Handle, point BindPoint, layout Handle, first uint32, sets []Handle)
	CmdBindVertexBuffers(cb Handle, buffers []Handle)
	CmdBindIndexBuffer(cb, buffer Handle, indexType gfx.IndexType)
	CmdPushConstants(cb, layout Handle, stages gfx.ShaderStage, offset uint32, data []byte)
	CmdSetViewport(cb Handle, extent gfx.Extent2D)
	CmdSetScissor(cb Handle, extent gfx.Extent2D)
	CmdDraw(cb Handle, vertices, instances uint32)
	CmdDrawIndexed(cb Handle, indices, instances uint32)
	CmdDispatch(cb Handle, x, y, z uint32)

	Destroy()
}
