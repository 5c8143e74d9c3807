// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"io"
	"testing"

	"github.com/devblok/kiln/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type fakeSubmit struct {
	queue Queue
	info  SubmitInfo
}

// fakeDriver records what the renderer asks of the device. Submissions
// complete at once, so a fence is signalled as soon as it was submitted.
type fakeDriver struct {
	next   Handle
	live   map[Handle]string
	calls  []string
	limits Limits

	memoryTypes []MemoryType
	memory      map[Handle][]byte

	caps       SurfaceCapabilities
	formats    []SurfaceFormat
	modes      []gfx.PresentMode
	depth      map[gfx.Format]bool
	swapchains map[Handle][]Handle
	swapchain  []SwapchainInfo
	imageCount uint32
	nextImage  uint32
	acquire    []Status
	present    []Status
	acquireErr error

	fences   map[Handle]bool
	resets   int
	idle     int
	submits  []fakeSubmit
	barriers []ImageBarrier
	writes   []DescriptorWrite
	pushes   [][]byte

	layouts    [][]gfx.LayoutBinding
	pools      map[Handle]uint32
	passes     []RenderPassInfo
	graphics   []GraphicsPipelineInfo
	compute    []ComputePipelineInfo
	begins     []RenderPassBegin
	dispatches [][3]uint32

	failPipeline bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		live: make(map[Handle]string),
		limits: Limits{
			MaxSamplerAnisotropy: 16,
			FramebufferSamples:   gfx.Samples1 | gfx.Samples2 | gfx.Samples4,
		},
		memoryTypes: []MemoryType{
			{Properties: gfx.DeviceLocal},
			{Properties: gfx.HostVisible | gfx.HostCoherent},
		},
		memory: make(map[Handle][]byte),
		caps: SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: gfx.Extent2D{Width: undefinedExtent, Height: undefinedExtent},
			MinExtent:     gfx.Extent2D{Width: 1, Height: 1},
			MaxExtent:     gfx.Extent2D{Width: 4096, Height: 4096},
		},
		formats:    []SurfaceFormat{{Format: gfx.FormatBGRA8Unorm}, {Format: gfx.FormatBGRA8Srgb}},
		modes:      []gfx.PresentMode{gfx.PresentFifo, gfx.PresentMailbox},
		depth:      map[gfx.Format]bool{gfx.FormatD32Float: true},
		swapchains: make(map[Handle][]Handle),
		fences:     make(map[Handle]bool),
		pools:      make(map[Handle]uint32),
	}
}

func (f *fakeDriver) create(kind string) Handle {
	f.next++
	f.live[f.next] = kind
	return f.next
}

func (f *fakeDriver) destroy(kind string, h Handle) {
	f.calls = append(f.calls, "destroy "+kind)
	if got, ok := f.live[h]; !ok || got != kind {
		panic(fmt.Sprintf("fake: destroying %s %d, have %q", kind, h, got))
	}
	delete(f.live, h)
}

func (f *fakeDriver) call(name string) {
	f.calls = append(f.calls, name)
}

// leaked lists the live objects of the given kinds.
func (f *fakeDriver) leaked(kinds ...string) map[string]int {
	out := make(map[string]int)
	for _, kind := range f.live {
		for _, k := range kinds {
			if k == kind {
				out[kind]++
			}
		}
	}
	return out
}

func (f *fakeDriver) count(name string) int {
	var n int
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeDriver) requirements(size uint64) MemoryRequirements {
	return MemoryRequirements{Size: size, Alignment: 4, TypeBits: 1<<uint(len(f.memoryTypes)) - 1}
}

func (f *fakeDriver) Limits() Limits            { return f.limits }
func (f *fakeDriver) MemoryTypes() []MemoryType { return f.memoryTypes }

func (f *fakeDriver) CreateBuffer(size uint64, usage gfx.BufferUsage) (Handle, MemoryRequirements, error) {
	return f.create("buffer"), f.requirements(size), nil
}
func (f *fakeDriver) DestroyBuffer(h Handle) { f.destroy("buffer", h) }

func (f *fakeDriver) CreateImage(info ImageInfo) (Handle, MemoryRequirements, error) {
	return f.create("image"), f.requirements(info.Extent.Area() * 4), nil
}
func (f *fakeDriver) DestroyImage(h Handle) { f.destroy("image", h) }

func (f *fakeDriver) CreateImageView(ViewInfo) (Handle, error) { return f.create("view"), nil }
func (f *fakeDriver) DestroyImageView(h Handle)                { f.destroy("view", h) }

func (f *fakeDriver) AllocateMemory(size uint64, typeIndex uint32) (Handle, error) {
	if int(typeIndex) >= len(f.memoryTypes) {
		return NullHandle, errors.Errorf("fake: memory type %d", typeIndex)
	}
	h := f.create("memory")
	f.memory[h] = make([]byte, size)
	return h, nil
}
func (f *fakeDriver) FreeMemory(h Handle) {
	f.destroy("memory", h)
	delete(f.memory, h)
}

func (f *fakeDriver) BindBufferMemory(buffer, memory Handle) error { return nil }
func (f *fakeDriver) BindImageMemory(image, memory Handle) error   { return nil }

func (f *fakeDriver) MapMemory(memory Handle, size uint64) ([]byte, error) {
	f.call("MapMemory")
	return f.memory[memory][:size], nil
}
func (f *fakeDriver) UnmapMemory(Handle) { f.call("UnmapMemory") }

func (f *fakeDriver) CreateSampler(SamplerInfo) (Handle, error) { return f.create("sampler"), nil }
func (f *fakeDriver) DestroySampler(h Handle)                   { f.destroy("sampler", h) }

func (f *fakeDriver) CreateDescriptorSetLayout(bindings []gfx.LayoutBinding) (Handle, error) {
	f.layouts = append(f.layouts, bindings)
	return f.create("set layout"), nil
}
func (f *fakeDriver) DestroyDescriptorSetLayout(h Handle) { f.destroy("set layout", h) }

func (f *fakeDriver) CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (Handle, error) {
	h := f.create("pool")
	f.pools[h] = maxSets
	return h, nil
}
func (f *fakeDriver) DestroyDescriptorPool(h Handle) { f.destroy("pool", h) }

func (f *fakeDriver) AllocateDescriptorSets(pool Handle, layouts []Handle) ([]Handle, error) {
	sets := make([]Handle, len(layouts))
	for i := range sets {
		f.next++
		sets[i] = f.next
	}
	return sets, nil
}

func (f *fakeDriver) UpdateDescriptorSets(writes []DescriptorWrite) {
	f.writes = append(f.writes, writes...)
}

func (f *fakeDriver) CreateShaderModule(code []byte) (Handle, error) { return f.create("shader"), nil }
func (f *fakeDriver) DestroyShaderModule(h Handle)                   { f.destroy("shader", h) }

func (f *fakeDriver) CreatePipelineLayout(sets []Handle, push []PushConstantRange) (Handle, error) {
	return f.create("pipeline layout"), nil
}
func (f *fakeDriver) DestroyPipelineLayout(h Handle) { f.destroy("pipeline layout", h) }

func (f *fakeDriver) CreateGraphicsPipeline(info GraphicsPipelineInfo) (Handle, error) {
	if f.failPipeline {
		return NullHandle, errors.New("fake: pipeline rejected")
	}
	f.graphics = append(f.graphics, info)
	return f.create("pipeline"), nil
}

func (f *fakeDriver) CreateComputePipeline(info ComputePipelineInfo) (Handle, error) {
	f.compute = append(f.compute, info)
	return f.create("pipeline"), nil
}
func (f *fakeDriver) DestroyPipeline(h Handle) { f.destroy("pipeline", h) }

func (f *fakeDriver) CreateRenderPass(info RenderPassInfo) (Handle, error) {
	f.passes = append(f.passes, info)
	return f.create("render pass"), nil
}
func (f *fakeDriver) DestroyRenderPass(h Handle) { f.destroy("render pass", h) }

func (f *fakeDriver) CreateFramebuffer(renderPass Handle, views []Handle, extent gfx.Extent2D) (Handle, error) {
	return f.create("framebuffer"), nil
}
func (f *fakeDriver) DestroyFramebuffer(h Handle) { f.destroy("framebuffer", h) }

func (f *fakeDriver) SurfaceCapabilities() (SurfaceCapabilities, error) { return f.caps, nil }
func (f *fakeDriver) SurfaceFormats() ([]SurfaceFormat, error)          { return f.formats, nil }
func (f *fakeDriver) PresentModes() ([]gfx.PresentMode, error)          { return f.modes, nil }

func (f *fakeDriver) FormatSupported(format gfx.Format, usage gfx.ImageUsage) bool {
	if usage&gfx.ImageDepthStencilAttachment != 0 {
		return f.depth[format]
	}
	return true
}

func (f *fakeDriver) CreateSwapchain(info SwapchainInfo) (Handle, error) {
	h := f.create("swapchain")
	f.swapchain = append(f.swapchain, info)
	images := make([]Handle, info.ImageCount)
	for i := range images {
		f.next++
		images[i] = f.next
	}
	f.swapchains[h] = images
	f.imageCount = info.ImageCount
	return h, nil
}

func (f *fakeDriver) SwapchainImages(h Handle) ([]Handle, error) { return f.swapchains[h], nil }

func (f *fakeDriver) DestroySwapchain(h Handle) {
	f.destroy("swapchain", h)
	delete(f.swapchains, h)
}

func pop(statuses *[]Status) Status {
	if len(*statuses) == 0 {
		return StatusSuccess
	}
	s := (*statuses)[0]
	*statuses = (*statuses)[1:]
	return s
}

func (f *fakeDriver) AcquireNextImage(swapchain, semaphore Handle) (uint32, Status, error) {
	f.call("AcquireNextImage")
	if f.acquireErr != nil {
		return 0, StatusSuccess, f.acquireErr
	}
	status := pop(&f.acquire)
	if status == StatusOutOfDate {
		return 0, status, nil
	}
	index := f.nextImage % f.imageCount
	f.nextImage++
	return index, status, nil
}

func (f *fakeDriver) QueuePresent(swapchain Handle, index uint32, wait Handle) (Status, error) {
	f.call("QueuePresent")
	return pop(&f.present), nil
}

func (f *fakeDriver) CreateFence(signaled bool) (Handle, error) {
	h := f.create("fence")
	f.fences[h] = signaled
	return h, nil
}

func (f *fakeDriver) WaitForFence(h Handle) error {
	f.call("WaitForFence")
	if !f.fences[h] {
		return errors.Errorf("fake: fence %d would block forever", h)
	}
	return nil
}

func (f *fakeDriver) ResetFence(h Handle) error {
	f.call("ResetFence")
	f.resets++
	f.fences[h] = false
	return nil
}

func (f *fakeDriver) DestroyFence(h Handle) {
	f.destroy("fence", h)
	delete(f.fences, h)
}

func (f *fakeDriver) CreateSemaphore() (Handle, error) { return f.create("semaphore"), nil }
func (f *fakeDriver) DestroySemaphore(h Handle)        { f.destroy("semaphore", h) }

func (f *fakeDriver) CreateCommandPool(Queue) (Handle, error) { return f.create("command pool"), nil }
func (f *fakeDriver) DestroyCommandPool(h Handle)             { f.destroy("command pool", h) }

func (f *fakeDriver) AllocateCommandBuffers(pool Handle, count int) ([]Handle, error) {
	cbs := make([]Handle, count)
	for i := range cbs {
		cbs[i] = f.create("command buffer")
	}
	return cbs, nil
}

func (f *fakeDriver) FreeCommandBuffers(pool Handle, buffers []Handle) {
	for _, cb := range buffers {
		f.destroy("command buffer", cb)
	}
}

func (f *fakeDriver) BeginCommandBuffer(cb Handle, oneTime bool) error {
	f.call("BeginCommandBuffer")
	return nil
}
func (f *fakeDriver) EndCommandBuffer(Handle) error {
	f.call("EndCommandBuffer")
	return nil
}
func (f *fakeDriver) ResetCommandBuffer(Handle) error { return nil }

func (f *fakeDriver) QueueSubmit(q Queue, info SubmitInfo) error {
	f.call("QueueSubmit")
	f.submits = append(f.submits, fakeSubmit{queue: q, info: info})
	if info.Fence != NullHandle {
		f.fences[info.Fence] = true
	}
	return nil
}

func (f *fakeDriver) QueueWaitIdle(Queue) error { return nil }

func (f *fakeDriver) DeviceWaitIdle() error {
	f.call("DeviceWaitIdle")
	f.idle++
	return nil
}

func (f *fakeDriver) CmdPipelineBarrier(cb Handle, barriers ...ImageBarrier) {
	f.barriers = append(f.barriers, barriers...)
}
func (f *fakeDriver) CmdCopyBuffer(cb, src, dst Handle, size uint64) {
	f.call("CmdCopyBuffer")
}
func (f *fakeDriver) CmdCopyBufferToImage(cb, src, dst Handle, regions []BufferImageCopy) {
	f.call("CmdCopyBufferToImage")
}
func (f *fakeDriver) CmdBeginRenderPass(cb Handle, begin RenderPassBegin) {
	f.call("CmdBeginRenderPass")
	f.begins = append(f.begins, begin)
}
func (f *fakeDriver) CmdNextSubpass(cb Handle)   { f.call("CmdNextSubpass") }
func (f *fakeDriver) CmdEndRenderPass(cb Handle) { f.call("CmdEndRenderPass") }
func (f *fakeDriver) CmdBindPipeline(cb Handle, point BindPoint, pipeline Handle) {
	f.call("CmdBindPipeline")
}
func (f *fakeDriver) CmdBindDescriptorSets(cb Handle, point BindPoint, layout Handle, first uint32, sets []Handle) {
	f.call("CmdBindDescriptorSets")
}
func (f *fakeDriver) CmdBindVertexBuffers(cb Handle, buffers []Handle) {
	f.call("CmdBindVertexBuffers")
}
func (f *fakeDriver) CmdBindIndexBuffer(cb, buffer Handle, indexType gfx.IndexType) {
	f.call("CmdBindIndexBuffer")
}
func (f *fakeDriver) CmdPushConstants(cb, layout Handle, stages gfx.ShaderStage, offset uint32, data []byte) {
	f.pushes = append(f.pushes, data)
}
func (f *fakeDriver) CmdSetViewport(cb Handle, extent gfx.Extent2D) {}
func (f *fakeDriver) CmdSetScissor(cb Handle, extent gfx.Extent2D)  {}
func (f *fakeDriver) CmdDraw(cb Handle, vertices, instances uint32) { f.call("CmdDraw") }
func (f *fakeDriver) CmdDrawIndexed(cb Handle, indices, instances uint32) {
	f.call("CmdDrawIndexed")
}
func (f *fakeDriver) CmdDispatch(cb Handle, x, y, z uint32) {
	f.dispatches = append(f.dispatches, [3]uint32{x, y, z})
}

func (f *fakeDriver) Destroy() {}

// fakeWindow reports a framebuffer size tests can change.
type fakeWindow struct {
	size   gfx.Extent2D
	sizes  []gfx.Extent2D
	waited int
}

func (w *fakeWindow) FramebufferSize() gfx.Extent2D {
	return w.size
}

func (w *fakeWindow) WaitEvents() {
	w.waited++
	if len(w.sizes) > 0 {
		w.size, w.sizes = w.sizes[0], w.sizes[1:]
	}
}

// fakeShaders returns a single SPIR-V word for every shader.
type fakeShaders map[string][]byte

func (s fakeShaders) ReadAll(name string) ([]byte, error) {
	if code, ok := s[name]; ok {
		return code, nil
	}
	return []byte{0x03, 0x02, 0x23, 0x07}, nil
}

func quietLog() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

// rig is a fully initialized renderer on top of the fake driver.
type rig struct {
	drv    *fakeDriver
	win    *fakeWindow
	ctx    *Context
	alloc  *Allocator
	desc   *Descriptors
	mats   *MaterialBinder
	pipes  *Pipelines
	pres   *Presentation
	device *Device
}

func newRig(t *testing.T, cfg PresentationConfig) *rig {
	t.Helper()
	r := &rig{
		drv: newFakeDriver(),
		win: &fakeWindow{size: gfx.Extent2D{Width: 800, Height: 600}},
	}
	r.ctx = NewContext(r.drv, ContextConfig{}, quietLog())
	r.alloc = NewAllocator(r.ctx)
	r.desc = NewDescriptors(r.ctx)

	var err error
	if r.mats, err = NewMaterialBinder(r.alloc, r.desc, 4); err != nil {
		t.Fatal(err)
	}
	r.pipes = NewPipelines(r.alloc, r.desc, r.mats, fakeShaders{})
	r.pres = NewPresentation(r.alloc, r.win, cfg)
	if err := r.pres.Init(); err != nil {
		t.Fatal(err)
	}
	if err := r.pres.InitSwapChain(); err != nil {
		t.Fatal(err)
	}
	if r.device, err = NewDevice(r.pipes, r.pres); err != nil {
		t.Fatal(err)
	}
	return r
}

func (r *rig) renderPass(t *testing.T, subpasses ...SubPassDesc) *RenderPass {
	t.Helper()
	if len(subpasses) == 0 {
		subpasses = []SubPassDesc{{Pipeline: gfx.GraphicsPipelineDesc{
			Name:           "forward",
			VertexShader:   "forward.vert",
			FragmentShader: "forward.frag",
		}}}
	}
	rp, err := NewRenderPass(r.pipes, r.pres, subpasses)
	if err != nil {
		t.Fatal(err)
	}
	return rp
}

func (r *rig) close() {
	r.device.Destroy()
	r.pres.Destroy()
	r.mats.Destroy()
	r.alloc.Destroy()
	r.ctx.Destroy()
}
