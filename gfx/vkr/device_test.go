// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/model"
)

// frameSubmits returns the graphics submissions that carried a frame fence.
func (r *rig) frameSubmits() []SubmitInfo {
	var out []SubmitInfo
	for _, s := range r.drv.submits {
		if s.queue == GraphicsQueue && s.info.Fence != NullHandle {
			out = append(out, s.info)
		}
	}
	return out
}

func (r *rig) frame(c *qt.C, rp *RenderPass) *CommandList {
	cl, ok, err := r.device.BeginRecording(rp)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r.device.EndRecording(rp, cl), qt.IsNil)
	return cl
}

func TestFirstFrameDoesNotBlock(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, PresentationConfig{ImageCount: 2, PresentMode: gfx.PresentFifo})
	rp := r.renderPass(t)

	cl, ok, err := r.device.BeginRecording(rp)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(cl.Frame, qt.Equals, uint64(0))
	c.Assert(cl.Queue(), qt.Equals, GraphicsQueue)
	c.Assert(int(cl.ImageIndex) < r.pres.ImageCount(), qt.IsTrue)
	c.Assert(r.drv.count("CmdBeginRenderPass"), qt.Equals, 1)

	acquire := r.drv.barriers[len(r.drv.barriers)-1]
	c.Assert(acquire.Image, qt.Equals, r.pres.Image(cl.ImageIndex))
	c.Assert(acquire.Old, qt.Equals, gfx.LayoutUndefined)
	c.Assert(acquire.New, qt.Equals, gfx.LayoutColorAttachment)

	c.Assert(r.device.EndRecording(rp, cl), qt.IsNil)
	c.Assert(r.device.Frame(), qt.Equals, uint64(1))

	present := r.drv.barriers[len(r.drv.barriers)-1]
	c.Assert(present.New, qt.Equals, gfx.LayoutPresentSrc)

	submits := r.frameSubmits()
	c.Assert(submits, qt.HasLen, 1)
	s := r.device.sync[0]
	c.Assert(submits[0].Wait, qt.DeepEquals, []Handle{s.imageAvailable})
	c.Assert(submits[0].WaitStages, qt.DeepEquals, []gfx.PipelineStage{gfx.StageColorAttachmentOutput})
	c.Assert(submits[0].Signal, qt.DeepEquals, []Handle{s.renderFinished})
	c.Assert(submits[0].Fence, qt.Equals, s.fence)
	c.Assert(r.drv.count("QueuePresent"), qt.Equals, 1)
}

func TestFramesCycleSlots(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, DefaultPresentationConfig())
	rp := r.renderPass(t)

	for i := 0; i < 5; i++ {
		cl := r.frame(c, rp)
		c.Assert(cl.Slot, qt.Equals, i%2)
		c.Assert(cl.Frame, qt.Equals, uint64(i))
	}
	for i, s := range r.frameSubmits() {
		c.Assert(s.Fence, qt.Equals, r.device.sync[i%2].fence)
	}
}

func TestOutOfDateSkipsFrame(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, DefaultPresentationConfig())
	rp := r.renderPass(t)

	for i := 0; i < 5; i++ {
		r.frame(c, rp)
	}
	resets := r.drv.resets
	submits := len(r.frameSubmits())

	r.win.size = gfx.Extent2D{Width: 1920, Height: 1080}
	r.drv.acquire = []Status{StatusOutOfDate}
	cl, ok, err := r.device.BeginRecording(rp)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(cl, qt.IsNil)

	c.Assert(r.drv.resets, qt.Equals, resets)
	c.Assert(r.frameSubmits(), qt.HasLen, submits)
	c.Assert(r.pres.Extent(), qt.Equals, r.win.size)
	c.Assert(r.device.Frame(), qt.Equals, uint64(5))

	cl = r.frame(c, rp)
	c.Assert(cl.Frame, qt.Equals, uint64(5))
	c.Assert(r.frameSubmits(), qt.HasLen, submits+1)
}

func TestDrawPushesMaterial(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, DefaultPresentationConfig())
	subpasses, _ := deferredSubpasses()
	rp := r.renderPass(t, subpasses...)

	mesh := &model.Mesh{
		Name:     "quad",
		Vertices: make([]model.Vertex, 4),
		Indices:  []uint32{0, 1, 2, 2, 3, 0},
	}
	g, err := NewGeometry(r.alloc, r.mats, mesh, nil, rp.Pipeline(0).ID())
	c.Assert(err, qt.IsNil)
	defer g.Release()

	cl, ok, err := r.device.BeginRecording(rp)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	world := glm.Translate3D(1, 2, 3)
	r.device.Draw(cl, g, world)
	c.Assert(r.drv.count("CmdDrawIndexed"), qt.Equals, 1)
	c.Assert(r.drv.pushes, qt.HasLen, 2)
	push := model.NewPushConstants(world, g.Material.Flags)
	c.Assert(r.drv.pushes[0], qt.DeepEquals, push.VertexBytes())
	c.Assert(r.drv.pushes[1], qt.DeepEquals, push.FragmentBytes())

	c.Assert(func() { r.device.BeginSubPass(cl, rp, 2) }, qt.PanicMatches, `vkr: subpass 2 follows subpass 0`)
	r.device.BeginSubPass(cl, rp, 1)
	c.Assert(cl.Subpass(), qt.Equals, 1)
	c.Assert(r.drv.count("CmdNextSubpass"), qt.Equals, 1)

	c.Assert(func() { r.device.Draw(cl, g, world) }, qt.PanicMatches, `vkr: geometry quad drawn in subpass 1 with pipeline lighting`)
	r.device.DrawVertices(cl, 3)
	c.Assert(r.drv.count("CmdDraw"), qt.Equals, 1)

	c.Assert(r.device.EndRecording(rp, cl), qt.IsNil)
}

func TestComputeDependency(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, DefaultPresentationConfig())
	rp := r.renderPass(t)

	particles := gfx.NewStructuredBuffer(0, gfx.ComputeStage|gfx.VertexStage, 16, 64, true)
	c.Assert(r.alloc.CreateStructuredBuffer(particles, nil), qt.IsNil)
	pass, err := NewComputePass(r.pipes, gfx.ComputePipelineDesc{
		Name:          "simulate",
		Shader:        "simulate.comp",
		Buffers:       []gfx.Buffer{particles},
		PushConstants: []uint32{4},
	})
	c.Assert(err, qt.IsNil)
	sim := pass.Pipeline(0)
	c.Assert(rp.Pipeline(0).Wait(sim.ID()), qt.IsNil)
	dep := r.ctx.dependencies[sim.ID()]

	cl, err := r.device.BeginCompute(pass)
	c.Assert(err, qt.IsNil)
	c.Assert(cl.Queue(), qt.Equals, ComputeQueue)
	c.Assert(func() { r.device.Dispatch(cl, 1, 1, 1) }, qt.PanicMatches, `vkr: dispatch without a bound compute pipeline`)

	r.device.BindCompute(cl, sim)
	r.device.PushCompute(cl, 0, []byte{1, 0, 0, 0})
	c.Assert(func() { r.device.PushCompute(cl, 2, []byte{1, 0, 0, 0}) }, qt.PanicMatches, `vkr: push constants \[2,6\) outside of simulate's range \[0,4\)`)
	r.device.Dispatch(cl, 4, 1, 1)
	c.Assert(r.device.EndCompute(pass, cl), qt.IsNil)
	c.Assert(r.device.ComputeFrame(), qt.Equals, uint64(1))
	c.Assert(r.drv.dispatches, qt.DeepEquals, [][3]uint32{{4, 1, 1}})

	last := r.drv.submits[len(r.drv.submits)-1]
	c.Assert(last.queue, qt.Equals, ComputeQueue)
	c.Assert(last.info.Signal, qt.DeepEquals, []Handle{dep.semaphores[0]})
	c.Assert(last.info.Fence, qt.Equals, r.device.computeFence[0])

	r.frame(c, rp)
	frames := r.frameSubmits()
	c.Assert(frames[0].Wait, qt.DeepEquals, []Handle{dep.semaphores[0], r.device.sync[0].imageAvailable})
	c.Assert(frames[0].WaitStages, qt.DeepEquals, []gfx.PipelineStage{computeResultStages, gfx.StageColorAttachmentOutput})

	// Without new compute work there is nothing to wait on.
	r.frame(c, rp)
	frames = r.frameSubmits()
	c.Assert(frames[1].Wait, qt.DeepEquals, []Handle{r.device.sync[1].imageAvailable})

	pass.Destroy()
	rp.Destroy()
	r.alloc.Release(particles)
	r.close()
	c.Assert(r.drv.live, qt.HasLen, 0)
}

func TestDeviceDestroy(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, DefaultPresentationConfig())

	c.Assert(r.device.Destroy(), qt.IsNil)
	c.Assert(r.drv.leaked("fence", "semaphore", "command buffer"), qt.HasLen, 0)
	c.Assert(r.drv.idle, qt.Equals, 1)
}

// boundBuffer returns the buffer last written to binding of set.
func (f *fakeDriver) boundBuffer(set Handle, binding uint32) Handle {
	for i := len(f.writes) - 1; i >= 0; i-- {
		if w := f.writes[i]; w.Set == set && w.Binding == binding {
			return w.Buffer
		}
	}
	return NullHandle
}

func TestComputeAndGraphicsShareFrameCopy(t *testing.T) {
	c := qt.New(t)
	r := newRig(t, DefaultPresentationConfig())

	particles := gfx.NewStructuredBuffer(1, gfx.ComputeStage|gfx.VertexStage, 16, 64, true)
	c.Assert(r.alloc.CreateStructuredBuffer(particles, nil), qt.IsNil)
	c.Assert(particles.IDs, qt.HasLen, r.ctx.FramesInFlight())

	rp := r.renderPass(t, SubPassDesc{Pipeline: gfx.GraphicsPipelineDesc{
		Name:           "forward",
		VertexShader:   "forward.vert",
		FragmentShader: "forward.frag",
		Buffers:        []gfx.Buffer{particles},
	}})
	pass, err := NewComputePass(r.pipes, gfx.ComputePipelineDesc{
		Name:          "simulate",
		Shader:        "simulate.comp",
		Buffers:       []gfx.Buffer{particles},
		PushConstants: []uint32{4},
	})
	c.Assert(err, qt.IsNil)
	sim := pass.Pipeline(0)
	c.Assert(rp.Pipeline(0).Wait(sim.ID()), qt.IsNil)

	// Per-frame work starts only once the frame's fence was waited on.
	record := func() *CommandList {
		fenceWaits := r.drv.count("WaitForFence")
		cl, ok, err := r.device.BeginRecording(rp)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)
		c.Assert(r.drv.count("WaitForFence"), qt.Equals, fenceWaits+1)

		ccl, err := r.device.BeginCompute(pass)
		c.Assert(err, qt.IsNil)
		c.Assert(ccl.Frame, qt.Equals, cl.Frame)
		c.Assert(ccl.Slot, qt.Equals, cl.Slot)
		r.device.BindCompute(ccl, sim)
		r.device.Dispatch(ccl, 1, 1, 1)
		c.Assert(r.device.EndCompute(pass, ccl), qt.IsNil)
		c.Assert(r.device.EndRecording(rp, cl), qt.IsNil)
		return cl
	}
	check := func(cl *CommandList) {
		want := r.ctx.nativeBuffer(particles.Sub(cl.Slot))
		c.Assert(r.drv.boundBuffer(r.pipes.GlobalSet(sim, cl.Frame), 1), qt.Equals, want)
		c.Assert(r.drv.boundBuffer(r.pipes.GlobalSet(rp.Pipeline(0), cl.Frame), 1), qt.Equals, want)
	}

	for i := 0; i < 3; i++ {
		cl := record()
		c.Assert(cl.Frame, qt.Equals, uint64(i))
		check(cl)
	}

	// A skipped frame advances neither stream.
	r.drv.acquire = []Status{StatusOutOfDate}
	_, ok, err := r.device.BeginRecording(rp)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(r.device.Frame(), qt.Equals, r.device.ComputeFrame())

	cl := record()
	c.Assert(cl.Frame, qt.Equals, uint64(3))
	check(cl)
	c.Assert(r.drv.boundBuffer(r.pipes.GlobalSet(sim, 2), 1), qt.Not(qt.Equals), r.drv.boundBuffer(r.pipes.GlobalSet(sim, 3), 1))

	pass.Destroy()
	rp.Destroy()
	r.alloc.Release(particles)
	r.close()
	c.Assert(r.drv.live, qt.HasLen, 0)
}
