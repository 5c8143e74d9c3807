// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"time"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kiln/core"
	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/gfx/vkr"
	"github.com/devblok/kiln/model"
)

const (
	particles      = 1024
	particleStride = 16
	workgroup      = 64
	maxMaterials   = 16
)

type renderer struct {
	driver vkr.Driver
	ctx    *vkr.Context
	alloc  *vkr.Allocator
	desc   *vkr.Descriptors
	mats   *vkr.MaterialBinder
	pipes  *vkr.Pipelines
	pres   *vkr.Presentation
	device *vkr.Device

	uniform   *gfx.UniformBuffer
	particles *gfx.StructuredBuffer
	pass      *vkr.RenderPass
	compute   *vkr.ComputePass
	albedo    *gfx.Texture

	log     *log.Entry
	elapsed time.Duration
}

func newRenderer(driver vkr.Driver, window vkr.Window, shaders vkr.ShaderSource, cfg core.Configuration, entry *log.Entry) (r *renderer, err error) {
	partial := &renderer{driver: driver, log: entry}
	defer func() {
		if err != nil {
			partial.destroy()
		}
	}()
	r = partial

	r.ctx = vkr.NewContext(driver, cfg.Renderer.Context(), entry)
	r.alloc = vkr.NewAllocator(r.ctx)
	r.desc = vkr.NewDescriptors(r.ctx)
	if r.mats, err = vkr.NewMaterialBinder(r.alloc, r.desc, maxMaterials); err != nil {
		return nil, err
	}
	r.pipes = vkr.NewPipelines(r.alloc, r.desc, r.mats, shaders)

	r.pres = vkr.NewPresentation(r.alloc, window, cfg.Renderer.Presentation())
	if err = r.pres.Init(); err != nil {
		return nil, err
	}
	if err = r.pres.InitSwapChain(); err != nil {
		return nil, err
	}
	if r.device, err = vkr.NewDevice(r.pipes, r.pres); err != nil {
		return nil, err
	}

	r.uniform = gfx.NewUniformBuffer(0, gfx.AllGraphicsStages, model.UniformSize)
	if err = r.alloc.CreateUniformBuffer(r.uniform); err != nil {
		return nil, err
	}
	// One particle buffer per frame in flight: compute for frame f writes
	// the copy graphics frame f reads, never one an older frame still reads.
	r.particles = gfx.NewStructuredBuffer(1, gfx.ComputeStage|gfx.VertexStage, particleStride, particles, true)
	if err = r.alloc.CreateStructuredBuffer(r.particles, nil); err != nil {
		return nil, err
	}

	r.compute, err = vkr.NewComputePass(r.pipes, gfx.ComputePipelineDesc{
		Name:          "simulate",
		Shader:        "simulate.comp",
		Buffers:       []gfx.Buffer{r.particles},
		PushConstants: []uint32{4},
	})
	if err != nil {
		return nil, err
	}

	r.albedo = &gfx.Texture{
		Name:    "gbuffer albedo",
		Format:  gfx.FormatRGBA8Unorm,
		Binding: gfx.Binding{Slot: 1, Stages: gfx.FragmentStage},
	}
	r.pass, err = vkr.NewRenderPass(r.pipes, r.pres, []vkr.SubPassDesc{
		{
			Pipeline: gfx.GraphicsPipelineDesc{
				Name:           "geometry",
				VertexShader:   "geometry.vert",
				FragmentShader: "geometry.frag",
				VertexLayout:   model.Layout(),
				Depth:          gfx.DepthState{Test: true, Write: true, Compare: gfx.CompareLessOrEqual},
				Buffers:        []gfx.Buffer{r.uniform, r.particles},
			},
			Attachments: []*gfx.Texture{r.albedo},
		},
		{
			Pipeline: gfx.GraphicsPipelineDesc{
				Name:           "composite",
				VertexShader:   "fullscreen.vert",
				FragmentShader: "composite.frag",
				Buffers:        []gfx.Buffer{r.uniform},
			},
			Inputs: []int{0},
		},
	})
	if err != nil {
		return nil, err
	}

	// The geometry pass reads the particles the compute pass wrote.
	if err = r.pass.Pipeline(0).Wait(r.compute.Pipeline(0).ID()); err != nil {
		return nil, err
	}
	return r, nil
}

// simulate recomputes the particles of frame from the elapsed time. It must
// run after BeginRecording so both streams use the same buffer copy.
func (r *renderer) simulate(frame uint64) error {
	cl, err := r.device.BeginCompute(r.compute)
	if err != nil {
		return err
	}
	if cl.Frame != frame {
		return errors.Errorf("compute frame %d out of step with graphics frame %d", cl.Frame, frame)
	}
	r.device.BindCompute(cl, r.compute.Pipeline(0))
	r.device.PushCompute(cl, 0, float32Bytes(float32(r.elapsed.Seconds())))
	r.device.Dispatch(cl, particles/workgroup, 1, 1)
	return r.device.EndCompute(r.compute, cl)
}

func (r *renderer) camera() model.Uniform {
	extent := r.pres.Extent()
	eye := glm.Vec3{0, 1.5, 4}
	projection := glm.Perspective(glm.DegToRad(45), float32(extent.Width)/float32(extent.Height), 0.1, 100)
	// Vulkan's clip space y points down.
	projection[5] *= -1
	return model.Uniform{
		View:       glm.LookAtV(eye, glm.Vec3{}, glm.Vec3{0, 1, 0}),
		Projection: projection,
		Eye:        eye.Vec4(1),
	}
}

// frame simulates, then renders the scene. Skipped frames are not errors.
// Per-frame buffers are written only once BeginRecording waited on the
// frame's fence.
func (r *renderer) frame(s *scene, delta time.Duration) error {
	r.elapsed += delta
	s.object.SetRotation(glm.HomogRotate3DY(float32(r.elapsed.Seconds())))

	cl, ok, err := r.device.BeginRecording(r.pass)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Debug("frame skipped")
		return nil
	}

	u := r.camera()
	if err := r.alloc.WriteBuffer(r.uniform, cl.Frame, u.Bytes()); err != nil {
		return err
	}
	if err := r.simulate(cl.Frame); err != nil {
		return err
	}
	r.device.Draw(cl, s.geometry, s.object.World())
	r.device.BeginSubPass(cl, r.pass, 1)
	r.device.DrawVertices(cl, 3)
	return r.device.EndRecording(r.pass, cl)
}

func (r *renderer) destroy() {
	if r.device != nil {
		if err := r.device.Destroy(); err != nil {
			r.log.WithError(err).Warn("device destroy")
		}
	}
	if r.pass != nil {
		r.pass.Destroy()
	}
	if r.compute != nil {
		r.compute.Destroy()
	}
	if r.uniform != nil && r.uniform.Created() {
		r.alloc.Release(r.uniform)
	}
	if r.particles != nil && r.particles.Created() {
		r.alloc.Release(r.particles)
	}
	if r.pres != nil {
		r.pres.Destroy()
	}
	if r.mats != nil {
		r.mats.Destroy()
	}
	if r.alloc != nil {
		r.alloc.Destroy()
	}
	if r.ctx != nil {
		r.ctx.Destroy()
	}
	r.driver.Destroy()
}
