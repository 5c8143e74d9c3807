// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/model"
)

func newPipelines(c *qt.C, shaders fakeShaders) (*fakeDriver, *Pipelines, RenderPassHandle) {
	drv, alloc, d, mb := newBinder(c, 2)
	native, err := drv.CreateRenderPass(RenderPassInfo{})
	c.Assert(err, qt.IsNil)
	return drv, NewPipelines(alloc, d, mb, shaders), alloc.ctx.renderPasses.insert(native)
}

func forwardDesc() gfx.GraphicsPipelineDesc {
	return gfx.GraphicsPipelineDesc{
		Name:           "forward",
		VertexShader:   "forward.vert",
		FragmentShader: "forward.frag",
		VertexLayout:   model.Layout(),
		Buffers:        []gfx.Buffer{gfx.NewUniformBuffer(0, gfx.AllGraphicsStages, model.UniformSize)},
	}
}

func TestGraphicsPipelineLessOrEqualDepth(t *testing.T) {
	c := qt.New(t)
	drv, pipes, rp := newPipelines(c, fakeShaders{})

	desc := forwardDesc()
	desc.Depth = gfx.DepthState{Test: true, Write: true, Compare: gfx.CompareLessOrEqual}
	c.Assert(pipes.Allocator().CreateUniformBuffer(desc.Buffers[0].(*gfx.UniformBuffer)), qt.IsNil)

	gp, err := pipes.CreateGraphics(desc, rp)
	c.Assert(err, qt.IsNil)
	c.Assert(gp.Name(), qt.Equals, "forward")
	c.Assert(gp.ID().Nil(), qt.IsFalse)

	c.Assert(drv.graphics, qt.HasLen, 1)
	info := drv.graphics[0]
	c.Assert(info.Depth.Compare, qt.Equals, gfx.CompareLessOrEqual)
	c.Assert(info.Depth.Compare.Passes(0.5, 0.5), qt.IsTrue)
	c.Assert(info.Depth.Compare.Passes(0.6, 0.5), qt.IsFalse)
	c.Assert(info.EntryPoint, qt.Equals, "main")
	c.Assert(info.ColorAttachments, qt.Equals, 1)
	c.Assert(info.Samples, qt.Equals, gfx.Samples1)
	c.Assert(info.Raster, qt.Equals, gfx.RasterFlags(0).Resolve())

	// Shader modules only live for the creation.
	c.Assert(drv.leaked("shader"), qt.HasLen, 0)

	g0 := pipes.GlobalSet(gp, 0)
	c.Assert(pipes.GlobalSet(gp, 1), qt.Not(qt.Equals), g0)
	c.Assert(pipes.GlobalSet(gp, 2), qt.Equals, g0)
	c.Assert(pipes.UpdateGlobal(gp), qt.IsNil)
}

func TestUnsupportedEntryPointPanics(t *testing.T) {
	c := qt.New(t)
	_, pipes, rp := newPipelines(c, fakeShaders{})

	desc := forwardDesc()
	desc.EntryPoint = "other"
	c.Assert(func() { pipes.CreateGraphics(desc, rp) }, qt.PanicMatches, `pipeline forward asks for "other": .*`)

	c.Assert(func() {
		pipes.CreateCompute(gfx.ComputePipelineDesc{Name: "cull", Shader: "cull.comp", EntryPoint: "cs_main"})
	}, qt.PanicMatches, `pipeline cull asks for "cs_main": .*`)
}

func TestGraphicsPipelineFailureCleansUp(t *testing.T) {
	c := qt.New(t)
	drv, pipes, rp := newPipelines(c, fakeShaders{"broken.frag": {1, 2, 3}})
	kinds := []string{"pipeline layout", "pool", "set layout", "shader", "pipeline"}
	before := drv.leaked(kinds...)

	desc := forwardDesc()
	desc.Buffers = nil
	desc.FragmentShader = "broken.frag"
	_, err := pipes.CreateGraphics(desc, rp)
	c.Assert(err, qt.ErrorMatches, `shader broken.frag: 3 bytes is not SPIR-V`)
	c.Assert(drv.leaked(kinds...), qt.DeepEquals, before)

	drv.failPipeline = true
	desc.FragmentShader = "forward.frag"
	_, err = pipes.CreateGraphics(desc, rp)
	c.Assert(err, qt.ErrorMatches, `graphics pipeline forward: fake: pipeline rejected`)
	c.Assert(drv.leaked(kinds...), qt.DeepEquals, before)
}

func TestComputePipelineWait(t *testing.T) {
	c := qt.New(t)
	drv, pipes, _ := newPipelines(c, fakeShaders{})

	particles := gfx.NewStructuredBuffer(0, gfx.ComputeStage, 32, 128, false)
	c.Assert(pipes.Allocator().CreateStructuredBuffer(particles, nil), qt.IsNil)

	sim, err := pipes.CreateCompute(gfx.ComputePipelineDesc{
		Name:          "simulate",
		Shader:        "simulate.comp",
		Buffers:       []gfx.Buffer{particles},
		PushConstants: []uint32{16, 8},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(drv.compute, qt.HasLen, 1)

	emit, err := pipes.CreateCompute(gfx.ComputePipelineDesc{Name: "emit", Shader: "emit.comp"})
	c.Assert(err, qt.IsNil)

	err = sim.Wait(sim.ID())
	c.Assert(err, qt.ErrorMatches, `vkr: pipeline simulate cannot wait on itself`)

	c.Assert(sim.Wait(emit.ID()), qt.IsNil)
	c.Assert(sim.Wait(emit.ID()), qt.IsNil)
	c.Assert(sim.Waits(), qt.DeepEquals, []PipelineID{emit.ID()})
	c.Assert(drv.leaked("semaphore"), qt.DeepEquals, map[string]int{"semaphore": 2})

	pipes.Destroy(emit)
	c.Assert(drv.leaked("semaphore"), qt.HasLen, 0)
	c.Assert(pipes.Context().pipelines.valid(emit.ID()), qt.IsFalse)
}

func TestWaitNeedsLiveComputePipeline(t *testing.T) {
	c := qt.New(t)
	drv, pipes, rp := newPipelines(c, fakeShaders{})

	desc := forwardDesc()
	desc.Buffers = nil
	forward, err := pipes.CreateGraphics(desc, rp)
	c.Assert(err, qt.IsNil)
	desc.Name = "composite"
	composite, err := pipes.CreateGraphics(desc, rp)
	c.Assert(err, qt.IsNil)

	err = composite.Wait(forward.ID())
	c.Assert(err, qt.ErrorIs, ErrDependency)
	c.Assert(err, qt.ErrorMatches, `pipeline composite waits on graphics pipeline forward: .*`)

	err = composite.Wait(PipelineID{Index: 999, Gen: 7})
	c.Assert(err, qt.ErrorIs, ErrDependency)

	cull, err := pipes.CreateCompute(gfx.ComputePipelineDesc{Name: "cull", Shader: "cull.comp"})
	c.Assert(err, qt.IsNil)
	stale := cull.ID()
	pipes.Destroy(cull)
	c.Assert(composite.Wait(stale), qt.ErrorIs, ErrDependency)

	c.Assert(composite.Waits(), qt.HasLen, 0)
	c.Assert(drv.leaked("semaphore"), qt.HasLen, 0)
}
