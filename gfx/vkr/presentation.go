// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	"github.com/devblok/kiln/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Window is the part of the window the presentation needs.
type Window interface {
	// FramebufferSize is the drawable size in pixels, zero while minimized.
	FramebufferSize() gfx.Extent2D

	// WaitEvents blocks until the window received an event.
	WaitEvents()
}

// State of the presentation.
type State int

// Presentation states.
const (
	StateUninitialized State = iota
	StateSurfaceReady
	StateSwapchainReady
	StateAcquiring
	StatePresenting
	StateResizing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSurfaceReady:
		return "surface ready"
	case StateSwapchainReady:
		return "swapchain ready"
	case StateAcquiring:
		return "acquiring"
	case StatePresenting:
		return "presenting"
	case StateResizing:
		return "resizing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PresentationConfig are the preferences the swapchain is matched against.
type PresentationConfig struct {
	ImageCount  uint32
	PresentMode gfx.PresentMode
	Format      SurfaceFormat
	Samples     gfx.SampleCount
}

// DefaultPresentationConfig asks for double buffered FIFO presentation
// of sRGB images without multisampling.
func DefaultPresentationConfig() PresentationConfig {
	return PresentationConfig{
		ImageCount:  2,
		PresentMode: gfx.PresentFifo,
		Format:      SurfaceFormat{Format: gfx.FormatBGRA8Srgb, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
		Samples:     gfx.Samples1,
	}
}

// Depth formats in order of preference.
var depthFormats = []gfx.Format{
	gfx.FormatD32Float,
	gfx.FormatD32FloatS8Uint,
	gfx.FormatD24UnormS8Uint,
	gfx.FormatD16Unorm,
}

// undefinedExtent in the current extent lets the swapchain pick its size.
const undefinedExtent = 0xFFFFFFFF

// ChooseSurfaceFormat picks the preferred format if the surface offers it
// and the first offered one otherwise.
func ChooseSurfaceFormat(available []SurfaceFormat, preferred SurfaceFormat) SurfaceFormat {
	if len(available) == 0 {
		return preferred
	}
	if len(available) == 1 && available[0].Format == gfx.FormatUndefined {
		return preferred
	}
	for _, f := range available {
		if f == preferred {
			return f
		}
	}
	return available[0]
}

// ChoosePresentMode returns preferred when supported, FIFO otherwise.
func ChoosePresentMode(available []gfx.PresentMode, preferred gfx.PresentMode) gfx.PresentMode {
	for _, m := range available {
		if m == preferred {
			return m
		}
	}
	return gfx.PresentFifo
}

// ChooseExtent uses the surface's current extent unless the surface
// leaves it to the swapchain, then the framebuffer size is clamped to the
// supported range.
func ChooseExtent(caps SurfaceCapabilities, framebuffer gfx.Extent2D) gfx.Extent2D {
	if caps.CurrentExtent.Width != undefinedExtent {
		return caps.CurrentExtent
	}
	return gfx.Extent2D{
		Width:  clamp(framebuffer.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(framebuffer.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if max != 0 && v > max {
		return max
	}
	return v
}

// ChooseImageCount is the target count but at least one more than the
// minimum, capped at the maximum when there is one.
func ChooseImageCount(target uint32, caps SurfaceCapabilities) uint32 {
	count := target
	if count < caps.MinImageCount+1 {
		count = caps.MinImageCount + 1
	}
	if caps.MaxImageCount != 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// ChooseSampleCount returns the highest supported count not above requested.
func ChooseSampleCount(requested, supported gfx.SampleCount) gfx.SampleCount {
	for s := gfx.Samples64; s > gfx.Samples1; s >>= 1 {
		if s <= requested && supported&s != 0 {
			return s
		}
	}
	return gfx.Samples1
}

// ChooseDepthFormat returns the first depth format usable as an attachment.
func ChooseDepthFormat(driver Driver) (gfx.Format, error) {
	for _, f := range depthFormats {
		if driver.FormatSupported(f, gfx.ImageDepthStencilAttachment) {
			return f, nil
		}
	}
	return gfx.FormatUndefined, errors.New("vkr: no supported depth format")
}

// Presentation owns the swapchain, its image views and the multisampled
// color and depth targets rendered into before the swapchain image.
type Presentation struct {
	ctx    *Context
	alloc  *Allocator
	window Window
	cfg    PresentationConfig
	log    *log.Entry

	state     State
	stale     bool
	swapchain Handle
	images    []Handle
	views     []Handle

	format  SurfaceFormat
	mode    gfx.PresentMode
	extent  gfx.Extent2D
	samples gfx.SampleCount

	color *gfx.Texture
	depth *gfx.Texture

	listeners []func() error
}

// NewPresentation creates an uninitialized presentation for window.
func NewPresentation(alloc *Allocator, window Window, cfg PresentationConfig) *Presentation {
	if cfg.ImageCount == 0 {
		cfg.ImageCount = 2
	}
	return &Presentation{
		ctx:    alloc.ctx,
		alloc:  alloc,
		window: window,
		cfg:    cfg,
		log:    alloc.ctx.Log("presentation"),
	}
}

func (p *Presentation) expect(want State) {
	if p.state != want {
		panic(fmt.Sprintf("vkr: presentation is %s, expected %s", p.state, want))
	}
}

// State returns the current state.
func (p *Presentation) State() State {
	return p.state
}

// Init checks the surface the driver was created with and picks the
// sample count.
func (p *Presentation) Init() error {
	p.expect(StateUninitialized)
	if _, err := p.ctx.driver.SurfaceCapabilities(); err != nil {
		return errors.Wrap(err, "surface")
	}
	p.samples = ChooseSampleCount(p.cfg.Samples, p.ctx.limits.FramebufferSamples)
	p.state = StateSurfaceReady
	p.log.WithField("samples", p.samples).Debug("surface ready")
	return nil
}

// InitSwapChain creates the swapchain with its views and the color and
// depth targets.
func (p *Presentation) InitSwapChain() error {
	p.expect(StateSurfaceReady)

	if err := p.createSwapchain(p.window.FramebufferSize()); err != nil {
		return err
	}

	depthFormat, err := ChooseDepthFormat(p.ctx.driver)
	if err != nil {
		return err
	}
	p.depth = &gfx.Texture{
		Name:           "depth",
		Format:         depthFormat,
		Usage:          gfx.ImageDepthStencilAttachment,
		Samples:        p.samples,
		SwapchainSized: true,
		InitialLayout:  gfx.LayoutDepthStencilAttachment,
		FinalLayout:    gfx.LayoutDepthStencilAttachment,
	}
	if err := p.alloc.CreateAttachment(p.depth, p.extent); err != nil {
		return err
	}

	if p.samples > gfx.Samples1 {
		p.color = &gfx.Texture{
			Name:           "color",
			Format:         p.format.Format,
			Usage:          gfx.ImageColorAttachment | gfx.ImageTransientAttachment,
			Samples:        p.samples,
			SwapchainSized: true,
			InitialLayout:  gfx.LayoutColorAttachment,
			FinalLayout:    gfx.LayoutColorAttachment,
		}
		if err := p.alloc.CreateAttachment(p.color, p.extent); err != nil {
			return err
		}
	}

	p.state = StateSwapchainReady
	return nil
}

func (p *Presentation) createSwapchain(framebuffer gfx.Extent2D) error {
	drv := p.ctx.driver
	caps, err := drv.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "surface capabilities")
	}
	formats, err := drv.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "surface formats")
	}
	modes, err := drv.PresentModes()
	if err != nil {
		return errors.Wrap(err, "present modes")
	}

	p.format = ChooseSurfaceFormat(formats, p.cfg.Format)
	p.mode = ChoosePresentMode(modes, p.cfg.PresentMode)
	p.extent = ChooseExtent(caps, framebuffer)

	swapchain, err := drv.CreateSwapchain(SwapchainInfo{
		Format:      p.format,
		PresentMode: p.mode,
		Extent:      p.extent,
		ImageCount:  ChooseImageCount(p.cfg.ImageCount, caps),
	})
	if err != nil {
		return errors.Wrap(err, "swapchain")
	}
	p.swapchain = swapchain

	if p.images, err = drv.SwapchainImages(swapchain); err != nil {
		return errors.Wrap(err, "swapchain images")
	}
	p.views = make([]Handle, 0, len(p.images))
	for _, img := range p.images {
		view, err := drv.CreateImageView(ViewInfo{Image: img, Format: p.format.Format, MipLevels: 1, Layers: 1})
		if err != nil {
			return errors.Wrap(err, "swapchain image view")
		}
		p.views = append(p.views, view)
	}

	p.stale = false
	p.log.WithFields(log.Fields{
		"width":  p.extent.Width,
		"height": p.extent.Height,
		"images": len(p.images),
		"format": p.format.Format,
		"mode":   p.mode,
	}).Info("swapchain created")
	return nil
}

func (p *Presentation) destroySwapchain() {
	drv := p.ctx.driver
	for _, v := range p.views {
		drv.DestroyImageView(v)
	}
	p.views = nil
	p.images = nil
	if p.swapchain != NullHandle {
		drv.DestroySwapchain(p.swapchain)
		p.swapchain = NullHandle
	}
}

// Acquire gets the next swapchain image, signalling semaphore once it can
// be rendered to. When the swapchain is out of date it is recreated and
// ok is false, the frame has to be skipped.
func (p *Presentation) Acquire(semaphore Handle) (index uint32, ok bool, err error) {
	p.expect(StateSwapchainReady)
	p.state = StateAcquiring

	index, status, err := p.ctx.driver.AcquireNextImage(p.swapchain, semaphore)
	if err != nil {
		p.state = StateSwapchainReady
		return 0, false, errors.Wrap(err, "acquire")
	}
	if status == StatusOutOfDate {
		p.log.Warn("swapchain out of date on acquire")
		p.state = StateSwapchainReady
		return 0, false, p.Recreate()
	}
	if status == StatusSuboptimal {
		p.stale = true
	}
	return index, true, nil
}

// Present queues image index for display once wait is signalled. An out
// of date or suboptimal swapchain is recreated, the next frame proceeds
// normally.
func (p *Presentation) Present(index uint32, wait Handle) error {
	p.expect(StateAcquiring)
	p.state = StatePresenting

	status, err := p.ctx.driver.QueuePresent(p.swapchain, index, wait)
	p.state = StateSwapchainReady
	if err != nil {
		return errors.Wrap(err, "present")
	}
	if status != StatusSuccess || p.stale {
		p.log.WithField("status", status).Warn("recreating swapchain after present")
		return p.Recreate()
	}
	return nil
}

// Invalidate makes the next Present recreate the swapchain, for windows
// that report resizes themselves.
func (p *Presentation) Invalidate() {
	p.stale = true
}

// Recreate waits for a drawable framebuffer and for the device to go
// idle, then rebuilds the swapchain and every swapchain sized target at
// the current framebuffer size. Listeners run last.
func (p *Presentation) Recreate() error {
	p.expect(StateSwapchainReady)
	p.state = StateResizing

	extent := p.window.FramebufferSize()
	if extent.Area() == 0 {
		p.log.Warn("framebuffer has zero area, waiting")
		for extent.Area() == 0 {
			p.window.WaitEvents()
			extent = p.window.FramebufferSize()
		}
	}

	if err := p.ctx.driver.DeviceWaitIdle(); err != nil {
		return errors.Wrap(err, "device wait idle")
	}

	p.destroySwapchain()
	if err := p.createSwapchain(extent); err != nil {
		return err
	}
	for _, t := range []*gfx.Texture{p.color, p.depth} {
		if t == nil {
			continue
		}
		if err := p.alloc.RecreateTexture(t, p.extent); err != nil {
			return err
		}
	}
	for _, fn := range p.listeners {
		if err := fn(); err != nil {
			return err
		}
	}

	p.state = StateSwapchainReady
	return nil
}

// OnResize registers fn to run after every recreation.
func (p *Presentation) OnResize(fn func() error) {
	p.listeners = append(p.listeners, fn)
}

// Extent of the swapchain images.
func (p *Presentation) Extent() gfx.Extent2D {
	return p.extent
}

// ImageCount is the number of swapchain images.
func (p *Presentation) ImageCount() int {
	return len(p.images)
}

// Format of the swapchain images.
func (p *Presentation) Format() SurfaceFormat {
	return p.format
}

// PresentMode in use.
func (p *Presentation) PresentMode() gfx.PresentMode {
	return p.mode
}

// Samples is the sample count of the color and depth targets.
func (p *Presentation) Samples() gfx.SampleCount {
	return p.samples
}

// ColorTarget is the multisampled color target, nil without multisampling.
func (p *Presentation) ColorTarget() *gfx.Texture {
	return p.color
}

// DepthTarget is the depth target.
func (p *Presentation) DepthTarget() *gfx.Texture {
	return p.depth
}

// Image returns the native swapchain image at index.
func (p *Presentation) Image(index uint32) Handle {
	return p.images[index]
}

// View returns the native view of the swapchain image at index.
func (p *Presentation) View(index uint32) Handle {
	return p.views[index]
}

// Destroy destroys the targets and the swapchain. The device must be idle.
func (p *Presentation) Destroy() {
	if p.color != nil {
		p.alloc.DestroyTexture(p.color)
	}
	if p.depth != nil {
		p.alloc.DestroyTexture(p.depth)
	}
	p.destroySwapchain()
	p.listeners = nil
	p.state = StateUninitialized
}
