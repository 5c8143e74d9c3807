// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the vulkan renderer.
package vkr

import (
	"github.com/devblok/kiln/gfx"
	log "github.com/sirupsen/logrus"
)

// Arena handles, one per backend object kind.
type (
	BufferHandle         = gfx.Handle
	MemoryHandle         = gfx.Handle
	ImageHandle          = gfx.Handle
	ViewHandle           = gfx.Handle
	SamplerHandle        = gfx.Handle
	LayoutHandle         = gfx.Handle
	PoolHandle           = gfx.Handle
	PipelineLayoutHandle = gfx.Handle
	RenderPassHandle     = gfx.Handle

	// PipelineID identifies a graphics or compute pipeline.
	PipelineID = gfx.Handle
)

type bufferRecord struct {
	native Handle
	memory MemoryHandle
	size   uint64
}

type memoryRecord struct {
	native Handle
	size   uint64
	props  gfx.MemoryProperty
}

type imageRecord struct {
	native Handle
	memory MemoryHandle
	info   ImageInfo
}

type layoutRecord struct {
	native   Handle
	bindings []gfx.LayoutBinding
}

type poolRecord struct {
	native  Handle
	maxSets int
	sets    []Handle
}

type pipelineRecord struct {
	native Handle
	layout PipelineLayoutHandle
	point  BindPoint
	name   string
}

// dependency is the semaphore ring other submissions wait on when they
// declared a dependency on a compute pipeline. pending[i] is set from the
// signalling submission until a graphics submission consumed it.
type dependency struct {
	semaphores []Handle
	pending    []bool
}

// ContextConfig configures the backend context.
type ContextConfig struct {
	// FramesInFlight is how many frames the CPU may record ahead of the GPU.
	FramesInFlight int
}

// Context owns every backend object arena. All renderer components share
// one context and the single thread that drives it.
type Context struct {
	driver         Driver
	framesInFlight int
	memoryTypes    []MemoryType
	limits         Limits
	log            *log.Entry

	buffers         *arena[bufferRecord]
	memories        *arena[memoryRecord]
	images          *arena[imageRecord]
	views           *arena[Handle]
	samplers        *arena[Handle]
	setLayouts      *arena[layoutRecord]
	pools           *arena[poolRecord]
	pipelineLayouts *arena[Handle]
	pipelines       *arena[pipelineRecord]
	renderPasses    *arena[Handle]

	// Texture redirection tables. Index 0 is reserved so that a zero
	// TextureID is never valid.
	imageTable  []ImageHandle
	memoryTable []MemoryHandle
	viewTable   []ViewHandle

	dependencies map[PipelineID]*dependency
}

// NewContext creates a context on top of driver. A nil entry logs to the
// standard logger.
func NewContext(driver Driver, cfg ContextConfig, entry *log.Entry) *Context {
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = 2
	}
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &Context{
		driver:          driver,
		framesInFlight:  cfg.FramesInFlight,
		memoryTypes:     driver.MemoryTypes(),
		limits:          driver.Limits(),
		log:             entry,
		buffers:         newArena[bufferRecord]("buffer"),
		memories:        newArena[memoryRecord]("memory"),
		images:          newArena[imageRecord]("image"),
		views:           newArena[Handle]("image view"),
		samplers:        newArena[Handle]("sampler"),
		setLayouts:      newArena[layoutRecord]("descriptor set layout"),
		pools:           newArena[poolRecord]("descriptor pool"),
		pipelineLayouts: newArena[Handle]("pipeline layout"),
		pipelines:       newArena[pipelineRecord]("pipeline"),
		renderPasses:    newArena[Handle]("render pass"),
		imageTable:      make([]ImageHandle, 1),
		memoryTable:     make([]MemoryHandle, 1),
		viewTable:       make([]ViewHandle, 1),
		dependencies:    make(map[PipelineID]*dependency),
	}
}

// Driver returns the native driver.
func (c *Context) Driver() Driver {
	return c.driver
}

// FramesInFlight returns the number of frames recorded ahead of the GPU.
func (c *Context) FramesInFlight() int {
	return c.framesInFlight
}

// Limits returns the device limits.
func (c *Context) Limits() Limits {
	return c.limits
}

// Log returns a logger for the named component.
func (c *Context) Log(component string) *log.Entry {
	return c.log.WithField("component", component)
}

func (c *Context) bindTexture(image ImageHandle, memory MemoryHandle, view ViewHandle) gfx.TextureID {
	c.imageTable = append(c.imageTable, image)
	c.memoryTable = append(c.memoryTable, memory)
	c.viewTable = append(c.viewTable, view)
	return gfx.TextureID{
		ID:       uint32(len(c.imageTable) - 1),
		MemoryID: uint32(len(c.memoryTable) - 1),
		ViewID:   uint32(len(c.viewTable) - 1),
	}
}

func (c *Context) rebindTexture(id gfx.TextureID, image ImageHandle, memory MemoryHandle, view ViewHandle) {
	c.imageTable[id.ID] = image
	c.memoryTable[id.MemoryID] = memory
	c.viewTable[id.ViewID] = view
}

func (c *Context) unbindTexture(id gfx.TextureID) {
	c.imageTable[id.ID] = gfx.Handle{}
	c.memoryTable[id.MemoryID] = gfx.Handle{}
	c.viewTable[id.ViewID] = gfx.Handle{}
}

// TextureImage resolves the current image behind a logical texture.
func (c *Context) TextureImage(id gfx.TextureID) ImageHandle {
	return c.imageTable[id.ID]
}

// TextureMemory resolves the current memory behind a logical texture.
func (c *Context) TextureMemory(id gfx.TextureID) MemoryHandle {
	return c.memoryTable[id.MemoryID]
}

// TextureView resolves the current view behind a logical texture.
func (c *Context) TextureView(id gfx.TextureID) ViewHandle {
	return c.viewTable[id.ViewID]
}

func (c *Context) nativeImage(id gfx.TextureID) Handle {
	return c.images.get(c.TextureImage(id)).native
}

func (c *Context) nativeView(id gfx.TextureID) Handle {
	return *c.views.get(c.TextureView(id))
}

func (c *Context) nativeBuffer(h BufferHandle) Handle {
	return c.buffers.get(h).native
}

// dependencyOn returns the semaphore ring of pipeline, creating it on
// first use.
func (c *Context) dependencyOn(pipeline PipelineID) (*dependency, error) {
	if dep, ok := c.dependencies[pipeline]; ok {
		return dep, nil
	}
	dep := &dependency{
		semaphores: make([]Handle, c.framesInFlight),
		pending:    make([]bool, c.framesInFlight),
	}
	for i := range dep.semaphores {
		sem, err := c.driver.CreateSemaphore()
		if err != nil {
			for _, s := range dep.semaphores[:i] {
				c.driver.DestroySemaphore(s)
			}
			return nil, err
		}
		dep.semaphores[i] = sem
	}
	c.dependencies[pipeline] = dep
	return dep, nil
}

// signalDependency returns the semaphore a submission of pipeline for the
// given slot should signal, if another pipeline waits on it and the slot
// was consumed since it was last signalled.
func (c *Context) signalDependency(pipeline PipelineID, slot int) (Handle, bool) {
	dep, ok := c.dependencies[pipeline]
	if !ok || dep.pending[slot] {
		return NullHandle, false
	}
	dep.pending[slot] = true
	return dep.semaphores[slot], true
}

// consumeDependencies returns every pending semaphore of the given
// pipelines and clears them.
func (c *Context) consumeDependencies(pipelines []PipelineID) []Handle {
	var waits []Handle
	for _, p := range pipelines {
		dep, ok := c.dependencies[p]
		if !ok {
			continue
		}
		for i, pending := range dep.pending {
			if pending {
				waits = append(waits, dep.semaphores[i])
				dep.pending[i] = false
			}
		}
	}
	return waits
}

// Destroy releases every live backend object, dependents first.
func (c *Context) Destroy() {
	for _, dep := range c.dependencies {
		for _, s := range dep.semaphores {
			c.driver.DestroySemaphore(s)
		}
	}
	c.dependencies = make(map[PipelineID]*dependency)

	c.pipelines.each(func(h gfx.Handle, p *pipelineRecord) {
		c.driver.DestroyPipeline(p.native)
		c.pipelines.remove(h)
	})
	c.pipelineLayouts.each(func(h gfx.Handle, native *Handle) {
		c.driver.DestroyPipelineLayout(*native)
		c.pipelineLayouts.remove(h)
	})
	c.pools.each(func(h gfx.Handle, p *poolRecord) {
		c.driver.DestroyDescriptorPool(p.native)
		c.pools.remove(h)
	})
	c.setLayouts.each(func(h gfx.Handle, l *layoutRecord) {
		c.driver.DestroyDescriptorSetLayout(l.native)
		c.setLayouts.remove(h)
	})
	c.samplers.each(func(h gfx.Handle, native *Handle) {
		c.driver.DestroySampler(*native)
		c.samplers.remove(h)
	})
	c.renderPasses.each(func(h gfx.Handle, native *Handle) {
		c.driver.DestroyRenderPass(*native)
		c.renderPasses.remove(h)
	})
	c.views.each(func(h gfx.Handle, native *Handle) {
		c.driver.DestroyImageView(*native)
		c.views.remove(h)
	})
	c.images.each(func(h gfx.Handle, img *imageRecord) {
		c.driver.DestroyImage(img.native)
		c.images.remove(h)
	})
	c.buffers.each(func(h gfx.Handle, buf *bufferRecord) {
		c.driver.DestroyBuffer(buf.native)
		c.buffers.remove(h)
	})
	c.memories.each(func(h gfx.Handle, mem *memoryRecord) {
		c.driver.FreeMemory(mem.native)
		c.memories.remove(h)
	})

	c.imageTable = c.imageTable[:1]
	c.memoryTable = c.memoryTable[:1]
	c.viewTable = c.viewTable[:1]
	c.log.Debug("backend context destroyed")
}
