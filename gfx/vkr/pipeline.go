// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	"github.com/devblok/kiln/gfx"
	"github.com/devblok/kiln/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ShaderSource supplies precompiled SPIR-V by name.
type ShaderSource interface {
	ReadAll(name string) ([]byte, error)
}

// Push constant ranges of every graphics pipeline.
var graphicsPushConstants = []PushConstantRange{
	{Stages: gfx.VertexStage, Offset: 0, Size: model.VertexPushSize},
	{Stages: gfx.FragmentStage, Offset: model.FragmentPushOffset, Size: model.FragmentPushSize},
}

func entryPoint(pipeline, name string) string {
	switch name {
	case "", "main":
		return "main"
	}
	panic(errors.Wrapf(ErrShaderEntryPoint, "pipeline %s asks for %q", pipeline, name))
}

// pipelineBase is the part graphics and compute pipelines share: the
// set 0 layout and one set per frame in flight.
type pipelineBase struct {
	ctx    *Context
	id     PipelineID
	name   string
	layout PipelineLayoutHandle
	global LayoutHandle
	pool   PoolHandle
	start  int
	count  int
	waits  []PipelineID

	buffers  []gfx.Buffer
	textures []*gfx.Texture
}

// ID returns the pipeline's identity.
func (p *pipelineBase) ID() PipelineID {
	return p.id
}

// Name returns the declared pipeline name.
func (p *pipelineBase) Name() string {
	return p.name
}

// Waits returns the pipelines whose submissions this one waits on.
func (p *pipelineBase) Waits() []PipelineID {
	return p.waits
}

// GraphicsPipeline is a compiled graphics pipeline.
type GraphicsPipeline struct {
	pipelineBase
	Desc gfx.GraphicsPipelineDesc
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline struct {
	pipelineBase
	Desc gfx.ComputePipelineDesc
}

// Pipelines builds pipelines from declarative descriptions.
type Pipelines struct {
	ctx         *Context
	alloc       *Allocator
	descriptors *Descriptors
	materials   *MaterialBinder
	shaders     ShaderSource
	log         *log.Entry
}

// NewPipelines creates a pipeline builder.
func NewPipelines(alloc *Allocator, descriptors *Descriptors, materials *MaterialBinder, shaders ShaderSource) *Pipelines {
	return &Pipelines{
		ctx:         alloc.ctx,
		alloc:       alloc,
		descriptors: descriptors,
		materials:   materials,
		shaders:     shaders,
		log:         alloc.ctx.Log("pipelines"),
	}
}

// Context returns the backend context.
func (p *Pipelines) Context() *Context {
	return p.ctx
}

// Allocator returns the resource allocator.
func (p *Pipelines) Allocator() *Allocator {
	return p.alloc
}

// Descriptors returns the descriptor manager.
func (p *Pipelines) Descriptors() *Descriptors {
	return p.descriptors
}

// Materials returns the material binder.
func (p *Pipelines) Materials() *MaterialBinder {
	return p.materials
}

func (p *Pipelines) loadShader(name string) (Handle, error) {
	code, err := p.shaders.ReadAll(name)
	if err != nil {
		return NullHandle, errors.Wrapf(err, "shader %s", name)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return NullHandle, errors.Errorf("shader %s: %d bytes is not SPIR-V", name, len(code))
	}
	return p.ctx.driver.CreateShaderModule(code)
}

// createGlobal creates the set 0 layout and one set per frame in flight.
func (p *Pipelines) createGlobal(base *pipelineBase) error {
	layout, err := p.descriptors.CreateDescriptorSetLayout(base.buffers, base.textures)
	if err != nil {
		return err
	}
	base.global = layout

	var uniforms, storage, textures uint32
	for _, b := range base.buffers {
		switch gfx.KindOf(b) {
		case gfx.UniformKind:
			uniforms++
		case gfx.StructuredKind:
			storage++
		}
	}
	textures = uint32(len(base.textures))

	f := uint32(p.ctx.framesInFlight)
	pool, err := p.descriptors.CreateDescriptorPool(uniforms*f, textures*f, storage*f, f)
	if err != nil {
		return err
	}
	base.pool = pool

	base.count = p.ctx.framesInFlight
	base.start, err = p.descriptors.CreateDescriptorSets(layout, base.count, pool, base.buffers, base.textures)
	return err
}

func (p *Pipelines) destroyBase(base *pipelineBase) {
	if p.ctx.pipelines.valid(base.id) {
		p.ctx.driver.DestroyPipeline(p.ctx.pipelines.remove(base.id).native)
	}
	if p.ctx.pipelineLayouts.valid(base.layout) {
		p.ctx.driver.DestroyPipelineLayout(p.ctx.pipelineLayouts.remove(base.layout))
	}
	if p.ctx.pools.valid(base.pool) {
		p.descriptors.DestroyDescriptorPool(base.pool, base.textures...)
	}
	if p.ctx.setLayouts.valid(base.global) {
		p.descriptors.DestroyDescriptorSetLayout(base.global)
	}
	if dep, ok := p.ctx.dependencies[base.id]; ok {
		for _, s := range dep.semaphores {
			p.ctx.driver.DestroySemaphore(s)
		}
		delete(p.ctx.dependencies, base.id)
	}
}

// CreateGraphics compiles a graphics pipeline for a subpass of renderPass.
// Set 0 holds the pipeline's own bindings, set 1 the material.
func (p *Pipelines) CreateGraphics(desc gfx.GraphicsPipelineDesc, renderPass RenderPassHandle) (gp *GraphicsPipeline, err error) {
	entry := entryPoint(desc.Name, desc.EntryPoint)
	gp = &GraphicsPipeline{
		pipelineBase: pipelineBase{ctx: p.ctx, name: desc.Name, buffers: desc.Buffers, textures: desc.Textures},
		Desc:         desc,
	}
	partial := gp
	defer func() {
		if err != nil {
			p.destroyBase(&partial.pipelineBase)
		}
	}()

	if err := p.createGlobal(&gp.pipelineBase); err != nil {
		return nil, err
	}

	sets := []Handle{p.ctx.setLayouts.get(gp.global).native, p.ctx.setLayouts.get(p.materials.Layout()).native}
	nativeLayout, err := p.ctx.driver.CreatePipelineLayout(sets, graphicsPushConstants)
	if err != nil {
		return nil, err
	}
	gp.layout = p.ctx.pipelineLayouts.insert(nativeLayout)

	vert, err := p.loadShader(desc.VertexShader)
	if err != nil {
		return nil, err
	}
	defer p.ctx.driver.DestroyShaderModule(vert)

	frag, err := p.loadShader(desc.FragmentShader)
	if err != nil {
		return nil, err
	}
	defer p.ctx.driver.DestroyShaderModule(frag)

	colors := desc.ColorAttachments
	if colors < 1 {
		colors = 1
	}
	samples := desc.Samples
	if samples == 0 {
		samples = gfx.Samples1
	}

	native, err := p.ctx.driver.CreateGraphicsPipeline(GraphicsPipelineInfo{
		Layout:           nativeLayout,
		RenderPass:       *p.ctx.renderPasses.get(renderPass),
		Subpass:          uint32(desc.Subpass),
		Vertex:           vert,
		Fragment:         frag,
		EntryPoint:       entry,
		VertexLayout:     desc.VertexLayout,
		Topology:         desc.Topology,
		Raster:           desc.Raster.Resolve(),
		Blend:            desc.Blend,
		Depth:            desc.Depth,
		ColorAttachments: colors,
		Samples:          samples,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "graphics pipeline %s", desc.Name)
	}
	gp.id = p.ctx.pipelines.insert(pipelineRecord{
		native: native,
		layout: gp.layout,
		point:  BindGraphics,
		name:   desc.Name,
	})

	p.log.WithFields(log.Fields{"pipeline": desc.Name, "subpass": desc.Subpass}).Debug("graphics pipeline created")
	return gp, nil
}

// CreateCompute compiles a compute pipeline. Its push constant range
// covers the sum of the declared payloads.
func (p *Pipelines) CreateCompute(desc gfx.ComputePipelineDesc) (cp *ComputePipeline, err error) {
	entry := entryPoint(desc.Name, desc.EntryPoint)
	cp = &ComputePipeline{
		pipelineBase: pipelineBase{ctx: p.ctx, name: desc.Name, buffers: desc.Buffers, textures: desc.Textures},
		Desc:         desc,
	}
	partial := cp
	defer func() {
		if err != nil {
			p.destroyBase(&partial.pipelineBase)
		}
	}()

	if err := p.createGlobal(&cp.pipelineBase); err != nil {
		return nil, err
	}

	var push []PushConstantRange
	if size := desc.PushConstantSize(); size > 0 {
		push = append(push, PushConstantRange{Stages: gfx.ComputeStage, Size: size})
	}
	nativeLayout, err := p.ctx.driver.CreatePipelineLayout([]Handle{p.ctx.setLayouts.get(cp.global).native}, push)
	if err != nil {
		return nil, err
	}
	cp.layout = p.ctx.pipelineLayouts.insert(nativeLayout)

	shader, err := p.loadShader(desc.Shader)
	if err != nil {
		return nil, err
	}
	defer p.ctx.driver.DestroyShaderModule(shader)

	native, err := p.ctx.driver.CreateComputePipeline(ComputePipelineInfo{
		Layout:     nativeLayout,
		Shader:     shader,
		EntryPoint: entry,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "compute pipeline %s", desc.Name)
	}
	cp.id = p.ctx.pipelines.insert(pipelineRecord{
		native: native,
		layout: cp.layout,
		point:  BindCompute,
		name:   desc.Name,
	})

	p.log.WithField("pipeline", desc.Name).Debug("compute pipeline created")
	return cp, nil
}

// Wait makes submissions using this pipeline wait for the most recent
// submission of other. The first declaration on other creates one
// semaphore per frame in flight. Only compute submissions signal, so other
// must be a live compute pipeline.
func (p *pipelineBase) Wait(other PipelineID) error {
	if other == p.id {
		return fmt.Errorf("vkr: pipeline %s cannot wait on itself", p.name)
	}
	if !p.ctx.pipelines.valid(other) {
		return errors.Wrapf(ErrDependency, "pipeline %s waits on %d/%d", p.name, other.Index, other.Gen)
	}
	if rec := p.ctx.pipelines.get(other); rec.point != BindCompute {
		return errors.Wrapf(ErrDependency, "pipeline %s waits on graphics pipeline %s", p.name, rec.name)
	}
	for _, w := range p.waits {
		if w == other {
			return nil
		}
	}
	if _, err := p.ctx.dependencyOn(other); err != nil {
		return err
	}
	p.waits = append(p.waits, other)
	return nil
}

func (p *pipelineBase) base() *pipelineBase {
	return p
}

// Pipeline is either a *GraphicsPipeline or a *ComputePipeline.
type Pipeline interface {
	ID() PipelineID
	Name() string
	Wait(other PipelineID) error
	base() *pipelineBase
}

// GlobalSet returns the set 0 descriptor set used in frame.
func (p *Pipelines) GlobalSet(pipeline Pipeline, frame uint64) Handle {
	b := pipeline.base()
	return p.descriptors.Sets(b.pool, b.start, b.count)[frame%uint64(b.count)]
}

// UpdateGlobal rewrites the set 0 descriptors after a bound resource was
// replaced.
func (p *Pipelines) UpdateGlobal(pipeline Pipeline) error {
	b := pipeline.base()
	return p.descriptors.UpdateDescriptorSets(b.pool, b.buffers, b.textures, b.start, b.count, AllFrames)
}

// Destroy destroys a pipeline with its layouts, pool and dependency semaphores.
func (p *Pipelines) Destroy(pipeline Pipeline) {
	p.destroyBase(pipeline.base())
}
