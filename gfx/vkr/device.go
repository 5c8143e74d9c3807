// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CommandList is a reusable command buffer slot. Frame is the frame it
// records, ImageIndex the swapchain image it renders to.
type CommandList struct {
	Frame      uint64
	Slot       int
	ImageIndex uint32

	cb       Handle
	queue    Queue
	subpass  int
	graphics *GraphicsPipeline
	compute  *ComputePipeline
}

// Queue is the stream the list is submitted to.
func (cl *CommandList) Queue() Queue {
	return cl.queue
}

// Subpass returns the subpass being recorded.
func (cl *CommandList) Subpass() int {
	return cl.subpass
}

// Graphics submissions wait on compute results before the first stage
// that may read them.
const computeResultStages = gfx.StageVertexInput | gfx.StageVertexShader | gfx.StageFragmentShader

type frameSync struct {
	fence          Handle
	imageAvailable Handle
	renderFinished Handle
}

// Device records and submits frames. Graphics and compute have their own
// command lists and fences, one per frame in flight, so they only
// serialize where a pipeline declared a dependency.
type Device struct {
	ctx   *Context
	pipes *Pipelines
	pres  *Presentation
	log   *log.Entry

	graphicsPool Handle
	computePool  Handle
	graphics     []*CommandList
	compute      []*CommandList
	sync         []frameSync
	computeFence []Handle

	frame        uint64
	computeFrame uint64
}

// NewDevice creates the command pools, the command lists of both streams
// and their synchronization objects. Fences start signalled so the first
// wait on each slot returns at once.
func NewDevice(pipes *Pipelines, pres *Presentation) (d *Device, err error) {
	ctx := pipes.ctx
	d = &Device{
		ctx:   ctx,
		pipes: pipes,
		pres:  pres,
		log:   ctx.Log("device"),
	}
	partial := d
	defer func() {
		if err != nil {
			partial.destroy()
		}
	}()

	drv := ctx.driver
	if d.graphicsPool, err = drv.CreateCommandPool(GraphicsQueue); err != nil {
		return nil, errors.Wrap(err, "graphics command pool")
	}
	if d.computePool, err = drv.CreateCommandPool(ComputeQueue); err != nil {
		return nil, errors.Wrap(err, "compute command pool")
	}
	if d.graphics, err = d.commandLists(d.graphicsPool, GraphicsQueue); err != nil {
		return nil, err
	}
	if d.compute, err = d.commandLists(d.computePool, ComputeQueue); err != nil {
		return nil, err
	}

	for i := 0; i < ctx.framesInFlight; i++ {
		var s frameSync
		if s.fence, err = drv.CreateFence(true); err != nil {
			return nil, errors.Wrap(err, "fence")
		}
		d.sync = append(d.sync, s)
		if d.sync[i].imageAvailable, err = drv.CreateSemaphore(); err != nil {
			return nil, errors.Wrap(err, "semaphore")
		}
		if d.sync[i].renderFinished, err = drv.CreateSemaphore(); err != nil {
			return nil, errors.Wrap(err, "semaphore")
		}

		fence, err := drv.CreateFence(true)
		if err != nil {
			return nil, errors.Wrap(err, "fence")
		}
		d.computeFence = append(d.computeFence, fence)
	}

	d.log.WithField("frames_in_flight", ctx.framesInFlight).Debug("device created")
	return d, nil
}

func (d *Device) commandLists(pool Handle, queue Queue) ([]*CommandList, error) {
	cbs, err := d.ctx.driver.AllocateCommandBuffers(pool, d.ctx.framesInFlight)
	if err != nil {
		return nil, errors.Wrap(err, "command buffers")
	}
	lists := make([]*CommandList, len(cbs))
	for i, cb := range cbs {
		lists[i] = &CommandList{Slot: i, cb: cb, queue: queue}
	}
	return lists, nil
}

// Frame is the number of graphics frames submitted so far.
func (d *Device) Frame() uint64 {
	return d.frame
}

// ComputeFrame is the number of compute submissions so far.
func (d *Device) ComputeFrame() uint64 {
	return d.computeFrame
}

// BeginRecording waits until the slot of the next frame is free, acquires
// a swapchain image and starts recording rp. It returns false when the
// swapchain had to be recreated, the frame must be skipped then.
func (d *Device) BeginRecording(rp *RenderPass) (*CommandList, bool, error) {
	drv := d.ctx.driver
	slot := int(d.frame % uint64(d.ctx.framesInFlight))
	s := d.sync[slot]

	if err := drv.WaitForFence(s.fence); err != nil {
		return nil, false, errors.Wrap(err, "wait for frame fence")
	}

	index, ok, err := d.pres.Acquire(s.imageAvailable)
	if err != nil || !ok {
		return nil, false, err
	}

	if err := drv.ResetFence(s.fence); err != nil {
		return nil, false, errors.Wrap(err, "reset frame fence")
	}

	cl := d.graphics[slot]
	cl.Frame = d.frame
	cl.ImageIndex = index
	cl.subpass = 0
	if err := drv.ResetCommandBuffer(cl.cb); err != nil {
		return nil, false, errors.Wrap(err, "reset command buffer")
	}
	if err := drv.BeginCommandBuffer(cl.cb, false); err != nil {
		return nil, false, errors.Wrap(err, "begin command buffer")
	}

	drv.CmdPipelineBarrier(cl.cb, d.swapchainBarrier(index, gfx.LayoutUndefined, gfx.LayoutColorAttachment, gfx.BarrierMasks{
		DstAccess: gfx.AccessColorAttachmentWrite,
		SrcStage:  gfx.StageColorAttachmentOutput,
		DstStage:  gfx.StageColorAttachmentOutput,
	}))
	drv.CmdBeginRenderPass(cl.cb, rp.begin(index))
	drv.CmdSetViewport(cl.cb, d.pres.Extent())
	drv.CmdSetScissor(cl.cb, d.pres.Extent())
	d.bindGraphics(cl, rp.Pipeline(0))
	return cl, true, nil
}

func (d *Device) swapchainBarrier(index uint32, old, new gfx.ImageLayout, masks gfx.BarrierMasks) ImageBarrier {
	return ImageBarrier{
		Image:     d.pres.Image(index),
		Format:    d.pres.Format().Format,
		Old:       old,
		New:       new,
		Masks:     masks,
		MipLevels: 1,
		Layers:    1,
	}
}

// BeginSubPass moves recording to subpass index of rp. The render pass
// orders the previous subpass' color writes before this one's input
// attachment reads.
func (d *Device) BeginSubPass(cl *CommandList, rp *RenderPass, index int) {
	if index != cl.subpass+1 {
		panic(fmt.Sprintf("vkr: subpass %d follows subpass %d", index, cl.subpass))
	}
	d.ctx.driver.CmdNextSubpass(cl.cb)
	cl.subpass = index
	d.bindGraphics(cl, rp.Pipeline(index))
}

func (d *Device) bindGraphics(cl *CommandList, p *GraphicsPipeline) {
	rec := d.ctx.pipelines.get(p.id)
	drv := d.ctx.driver
	drv.CmdBindPipeline(cl.cb, BindGraphics, rec.native)
	drv.CmdBindDescriptorSets(cl.cb, BindGraphics, *d.ctx.pipelineLayouts.get(rec.layout), 0, []Handle{d.pipes.GlobalSet(p, cl.Frame)})
	cl.graphics = p
}

// Draw records g with the pipeline of the current subpass. World is
// pushed with its inverse transpose and the material's texture flags.
func (d *Device) Draw(cl *CommandList, g *Geometry, world glm.Mat4) {
	p := cl.graphics
	if g.Pipeline != p.id {
		panic(fmt.Sprintf("vkr: geometry %s drawn in subpass %d with pipeline %s", g.Name, cl.subpass, p.name))
	}
	drv := d.ctx.driver
	layout := *d.ctx.pipelineLayouts.get(p.layout)

	drv.CmdBindDescriptorSets(cl.cb, BindGraphics, layout, 1, []Handle{g.Material.Set(d.pipes.descriptors, cl.Frame)})

	push := model.NewPushConstants(world, g.Material.Flags)
	drv.CmdPushConstants(cl.cb, layout, gfx.VertexStage, 0, push.VertexBytes())
	drv.CmdPushConstants(cl.cb, layout, gfx.FragmentStage, model.FragmentPushOffset, push.FragmentBytes())

	drv.CmdBindVertexBuffers(cl.cb, []Handle{d.ctx.nativeBuffer(g.Vertices.ID(cl.Frame))})
	if g.Indices != nil {
		drv.CmdBindIndexBuffer(cl.cb, d.ctx.nativeBuffer(g.Indices.ID(cl.Frame)), g.Indices.Type)
		drv.CmdDrawIndexed(cl.cb, g.Indices.Count, 1)
		return
	}
	drv.CmdDraw(cl.cb, g.Vertices.Count, 1)
}

// DrawVertices records a draw without vertex buffers, for pipelines that
// generate their vertices in the shader.
func (d *Device) DrawVertices(cl *CommandList, vertices uint32) {
	d.ctx.driver.CmdDraw(cl.cb, vertices, 1)
}

// EndRecording finishes rp, submits the frame and presents it. The
// submission waits on every compute pipeline rp declared a dependency on.
func (d *Device) EndRecording(rp *RenderPass, cl *CommandList) error {
	drv := d.ctx.driver
	s := d.sync[cl.Slot]

	drv.CmdEndRenderPass(cl.cb)
	toPresent, _ := gfx.TransitionMasks(gfx.LayoutColorAttachment, gfx.LayoutPresentSrc)
	drv.CmdPipelineBarrier(cl.cb, d.swapchainBarrier(cl.ImageIndex, gfx.LayoutColorAttachment, gfx.LayoutPresentSrc, toPresent))
	if err := drv.EndCommandBuffer(cl.cb); err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	waits := d.ctx.consumeDependencies(rp.waits())
	stages := make([]gfx.PipelineStage, 0, len(waits)+1)
	for range waits {
		stages = append(stages, computeResultStages)
	}
	waits = append(waits, s.imageAvailable)
	stages = append(stages, gfx.StageColorAttachmentOutput)

	err := drv.QueueSubmit(GraphicsQueue, SubmitInfo{
		Buffers:    []Handle{cl.cb},
		Wait:       waits,
		WaitStages: stages,
		Signal:     []Handle{s.renderFinished},
		Fence:      s.fence,
	})
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}
	d.frame++
	cl.graphics = nil

	return d.pres.Present(cl.ImageIndex, s.renderFinished)
}

// BeginCompute waits until the next compute slot is free and starts
// recording.
func (d *Device) BeginCompute(cp *ComputePass) (*CommandList, error) {
	drv := d.ctx.driver
	slot := int(d.computeFrame % uint64(d.ctx.framesInFlight))
	fence := d.computeFence[slot]

	if err := drv.WaitForFence(fence); err != nil {
		return nil, errors.Wrap(err, "wait for compute fence")
	}
	if err := drv.ResetFence(fence); err != nil {
		return nil, errors.Wrap(err, "reset compute fence")
	}

	cl := d.compute[slot]
	cl.Frame = d.computeFrame
	if err := drv.ResetCommandBuffer(cl.cb); err != nil {
		return nil, errors.Wrap(err, "reset command buffer")
	}
	if err := drv.BeginCommandBuffer(cl.cb, false); err != nil {
		return nil, errors.Wrap(err, "begin command buffer")
	}
	return cl, nil
}

// BindCompute binds p and its descriptor set for the list's frame.
func (d *Device) BindCompute(cl *CommandList, p *ComputePipeline) {
	rec := d.ctx.pipelines.get(p.id)
	drv := d.ctx.driver
	drv.CmdBindPipeline(cl.cb, BindCompute, rec.native)
	drv.CmdBindDescriptorSets(cl.cb, BindCompute, *d.ctx.pipelineLayouts.get(rec.layout), 0, []Handle{d.pipes.GlobalSet(p, cl.Frame)})
	cl.compute = p
}

// PushCompute pushes data at offset into the bound compute pipeline's
// push constant range.
func (d *Device) PushCompute(cl *CommandList, offset uint32, data []byte) {
	p := cl.compute
	if p == nil {
		panic("vkr: push constants without a bound compute pipeline")
	}
	if size := p.Desc.PushConstantSize(); offset+uint32(len(data)) > size {
		panic(fmt.Sprintf("vkr: push constants [%d,%d) outside of %s's range [0,%d)", offset, offset+uint32(len(data)), p.name, size))
	}
	d.ctx.driver.CmdPushConstants(cl.cb, *d.ctx.pipelineLayouts.get(p.layout), gfx.ComputeStage, offset, data)
}

// Dispatch records a dispatch of the bound compute pipeline.
func (d *Device) Dispatch(cl *CommandList, x, y, z uint32) {
	if cl.compute == nil {
		panic("vkr: dispatch without a bound compute pipeline")
	}
	d.ctx.driver.CmdDispatch(cl.cb, x, y, z)
}

// EndCompute submits the compute work. Pipelines other passes wait on
// signal their semaphore for this slot.
func (d *Device) EndCompute(cp *ComputePass, cl *CommandList) error {
	drv := d.ctx.driver
	if err := drv.EndCommandBuffer(cl.cb); err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	waits := d.ctx.consumeDependencies(cp.waits())
	stages := make([]gfx.PipelineStage, len(waits))
	for i := range stages {
		stages[i] = gfx.StageComputeShader
	}

	var signal []Handle
	for _, p := range cp.Pipelines() {
		if sem, ok := d.ctx.signalDependency(p.id, cl.Slot); ok {
			signal = append(signal, sem)
		}
	}

	err := drv.QueueSubmit(ComputeQueue, SubmitInfo{
		Buffers:    []Handle{cl.cb},
		Wait:       waits,
		WaitStages: stages,
		Signal:     signal,
		Fence:      d.computeFence[cl.Slot],
	})
	if err != nil {
		return errors.Wrap(err, "submit compute")
	}
	d.computeFrame++
	cl.compute = nil
	return nil
}

// WaitIdle blocks until the device finished all submitted work.
func (d *Device) WaitIdle() error {
	return errors.Wrap(d.ctx.driver.DeviceWaitIdle(), "device wait idle")
}

// Destroy waits for the device to go idle and destroys the command
// lists and synchronization objects.
func (d *Device) Destroy() error {
	err := d.WaitIdle()
	d.destroy()
	return err
}

func (d *Device) destroy() {
	drv := d.ctx.driver
	for _, s := range d.sync {
		for _, h := range []Handle{s.imageAvailable, s.renderFinished} {
			if h != NullHandle {
				drv.DestroySemaphore(h)
			}
		}
		drv.DestroyFence(s.fence)
	}
	d.sync = nil
	for _, f := range d.computeFence {
		drv.DestroyFence(f)
	}
	d.computeFence = nil

	for _, lists := range []struct {
		pool  Handle
		lists []*CommandList
	}{{d.graphicsPool, d.graphics}, {d.computePool, d.compute}} {
		if lists.pool == NullHandle {
			continue
		}
		if len(lists.lists) > 0 {
			cbs := make([]Handle, len(lists.lists))
			for i, cl := range lists.lists {
				cbs[i] = cl.cb
			}
			drv.FreeCommandBuffers(lists.pool, cbs)
		}
		drv.DestroyCommandPool(lists.pool)
	}
	d.graphics, d.compute = nil, nil
	d.graphicsPool, d.computePool = NullHandle, NullHandle
}
