// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/kiln/gfx"
)

func TestChooseSurfaceFormat(t *testing.T) {
	c := qt.New(t)
	srgb := SurfaceFormat{Format: gfx.FormatBGRA8Srgb}
	unorm := SurfaceFormat{Format: gfx.FormatBGRA8Unorm}

	c.Assert(ChooseSurfaceFormat([]SurfaceFormat{unorm, srgb}, srgb), qt.Equals, srgb)
	c.Assert(ChooseSurfaceFormat([]SurfaceFormat{unorm}, srgb), qt.Equals, unorm)
	c.Assert(ChooseSurfaceFormat([]SurfaceFormat{{Format: gfx.FormatUndefined}}, srgb), qt.Equals, srgb)
	c.Assert(ChooseSurfaceFormat(nil, srgb), qt.Equals, srgb)
}

func TestChoosePresentMode(t *testing.T) {
	c := qt.New(t)
	modes := []gfx.PresentMode{gfx.PresentImmediate, gfx.PresentFifo}

	c.Assert(ChoosePresentMode(modes, gfx.PresentImmediate), qt.Equals, gfx.PresentImmediate)
	c.Assert(ChoosePresentMode(modes, gfx.PresentMailbox), qt.Equals, gfx.PresentFifo)
}

func TestChooseExtent(t *testing.T) {
	c := qt.New(t)
	caps := SurfaceCapabilities{
		CurrentExtent: gfx.Extent2D{Width: 640, Height: 480},
		MinExtent:     gfx.Extent2D{Width: 100, Height: 100},
		MaxExtent:     gfx.Extent2D{Width: 1000, Height: 1000},
	}
	c.Assert(ChooseExtent(caps, gfx.Extent2D{Width: 1, Height: 1}), qt.Equals, caps.CurrentExtent)

	caps.CurrentExtent = gfx.Extent2D{Width: undefinedExtent, Height: undefinedExtent}
	c.Assert(ChooseExtent(caps, gfx.Extent2D{Width: 50, Height: 2000}), qt.Equals, gfx.Extent2D{Width: 100, Height: 1000})
	c.Assert(ChooseExtent(caps, gfx.Extent2D{Width: 300, Height: 200}), qt.Equals, gfx.Extent2D{Width: 300, Height: 200})
}

func TestChooseImageCount(t *testing.T) {
	c := qt.New(t)

	c.Assert(ChooseImageCount(2, SurfaceCapabilities{MinImageCount: 2}), qt.Equals, uint32(3))
	c.Assert(ChooseImageCount(4, SurfaceCapabilities{MinImageCount: 2}), qt.Equals, uint32(4))
	c.Assert(ChooseImageCount(4, SurfaceCapabilities{MinImageCount: 1, MaxImageCount: 3}), qt.Equals, uint32(3))
}

func TestChooseSampleCount(t *testing.T) {
	c := qt.New(t)
	supported := gfx.Samples1 | gfx.Samples2 | gfx.Samples4

	c.Assert(ChooseSampleCount(gfx.Samples8, supported), qt.Equals, gfx.Samples4)
	c.Assert(ChooseSampleCount(gfx.Samples2, supported), qt.Equals, gfx.Samples2)
	c.Assert(ChooseSampleCount(gfx.Samples1, supported), qt.Equals, gfx.Samples1)
	c.Assert(ChooseSampleCount(gfx.Samples4, gfx.Samples1), qt.Equals, gfx.Samples1)
}

func TestChooseDepthFormat(t *testing.T) {
	c := qt.New(t)
	drv := newFakeDriver()

	drv.depth = map[gfx.Format]bool{gfx.FormatD24UnormS8Uint: true, gfx.FormatD16Unorm: true}
	f, err := ChooseDepthFormat(drv)
	c.Assert(err, qt.IsNil)
	c.Assert(f, qt.Equals, gfx.FormatD24UnormS8Uint)

	drv.depth = nil
	_, err = ChooseDepthFormat(drv)
	c.Assert(err, qt.ErrorMatches, `vkr: no supported depth format`)
}

func newPresentation(cfg PresentationConfig) (*fakeDriver, *fakeWindow, *Presentation) {
	drv, alloc := newAllocator()
	win := &fakeWindow{size: gfx.Extent2D{Width: 800, Height: 600}}
	return drv, win, NewPresentation(alloc, win, cfg)
}

func TestPresentationStates(t *testing.T) {
	c := qt.New(t)
	drv, _, p := newPresentation(DefaultPresentationConfig())

	c.Assert(p.State(), qt.Equals, StateUninitialized)
	c.Assert(func() { p.InitSwapChain() }, qt.PanicMatches, `vkr: presentation is uninitialized, expected surface ready`)

	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateSurfaceReady)
	c.Assert(p.InitSwapChain(), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateSwapchainReady)

	c.Assert(p.Extent(), qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(p.ImageCount(), qt.Equals, 3)
	c.Assert(p.Format().Format, qt.Equals, gfx.FormatBGRA8Srgb)
	c.Assert(p.PresentMode(), qt.Equals, gfx.PresentFifo)
	c.Assert(p.Samples(), qt.Equals, gfx.Samples1)
	c.Assert(p.ColorTarget(), qt.IsNil)
	c.Assert(p.DepthTarget().Format, qt.Equals, gfx.FormatD32Float)
	c.Assert(drv.swapchain[0].ImageCount, qt.Equals, uint32(3))

	index, ok, err := p.Acquire(NullHandle)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(p.State(), qt.Equals, StateAcquiring)
	c.Assert(func() { p.Recreate() }, qt.PanicMatches, `vkr: presentation is acquiring, expected swapchain ready`)

	c.Assert(p.Present(index, NullHandle), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateSwapchainReady)
	c.Assert(drv.idle, qt.Equals, 0)

	p.Destroy()
	c.Assert(p.State(), qt.Equals, StateUninitialized)
	c.Assert(drv.leaked("swapchain", "view", "image", "memory"), qt.HasLen, 0)
}

func TestPresentationMultisampled(t *testing.T) {
	c := qt.New(t)
	cfg := DefaultPresentationConfig()
	cfg.Samples = gfx.Samples8
	_, _, p := newPresentation(cfg)

	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.InitSwapChain(), qt.IsNil)
	c.Assert(p.Samples(), qt.Equals, gfx.Samples4)
	c.Assert(p.ColorTarget(), qt.Not(qt.IsNil))
	c.Assert(p.ColorTarget().Samples, qt.Equals, gfx.Samples4)
	c.Assert(p.DepthTarget().Samples, qt.Equals, gfx.Samples4)
}

func TestAcquireOutOfDateRecreates(t *testing.T) {
	c := qt.New(t)
	drv, win, p := newPresentation(DefaultPresentationConfig())
	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.InitSwapChain(), qt.IsNil)
	depth := p.DepthTarget().ID

	var resized int
	p.OnResize(func() error {
		resized++
		return nil
	})

	win.size = gfx.Extent2D{Width: 1280, Height: 720}
	drv.acquire = []Status{StatusOutOfDate}
	_, ok, err := p.Acquire(NullHandle)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(p.State(), qt.Equals, StateSwapchainReady)
	c.Assert(p.Extent(), qt.Equals, win.size)
	c.Assert(p.DepthTarget().ID, qt.Equals, depth)
	c.Assert(p.DepthTarget().Extent, qt.Equals, win.size)
	c.Assert(resized, qt.Equals, 1)
	c.Assert(drv.idle, qt.Equals, 1)
	c.Assert(drv.leaked("swapchain"), qt.DeepEquals, map[string]int{"swapchain": 1})
}

func TestSuboptimalRecreatesAfterPresent(t *testing.T) {
	c := qt.New(t)
	drv, _, p := newPresentation(DefaultPresentationConfig())
	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.InitSwapChain(), qt.IsNil)

	drv.acquire = []Status{StatusSuboptimal}
	index, ok, err := p.Acquire(NullHandle)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(drv.swapchain, qt.HasLen, 1)

	c.Assert(p.Present(index, NullHandle), qt.IsNil)
	c.Assert(drv.swapchain, qt.HasLen, 2)

	drv.present = []Status{StatusOutOfDate}
	index, _, err = p.Acquire(NullHandle)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Present(index, NullHandle), qt.IsNil)
	c.Assert(drv.swapchain, qt.HasLen, 3)

	index, _, err = p.Acquire(NullHandle)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Present(index, NullHandle), qt.IsNil)
	c.Assert(drv.swapchain, qt.HasLen, 3)
}

func TestRecreateWaitsForDrawableWindow(t *testing.T) {
	c := qt.New(t)
	_, win, p := newPresentation(DefaultPresentationConfig())
	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.InitSwapChain(), qt.IsNil)

	win.size = gfx.Extent2D{}
	win.sizes = []gfx.Extent2D{{Width: 0, Height: 10}, {Width: 320, Height: 240}}
	p.Invalidate()
	c.Assert(p.Recreate(), qt.IsNil)
	c.Assert(win.waited, qt.Equals, 2)
	c.Assert(p.Extent(), qt.Equals, gfx.Extent2D{Width: 320, Height: 240})
}

func TestRecreateTwiceIsStable(t *testing.T) {
	c := qt.New(t)
	drv, win, p := newPresentation(DefaultPresentationConfig())
	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.InitSwapChain(), qt.IsNil)

	var resized int
	p.OnResize(func() error {
		resized++
		return nil
	})

	win.size = gfx.Extent2D{Width: 1024, Height: 512}
	c.Assert(p.Recreate(), qt.IsNil)
	extent, images, depth := p.Extent(), p.ImageCount(), p.DepthTarget().ID
	live := drv.leaked("swapchain", "view", "image", "memory")

	c.Assert(p.Recreate(), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateSwapchainReady)
	c.Assert(p.Extent(), qt.Equals, extent)
	c.Assert(p.Extent(), qt.Equals, win.size)
	c.Assert(p.ImageCount(), qt.Equals, images)
	c.Assert(p.DepthTarget().ID, qt.Equals, depth)
	c.Assert(drv.leaked("swapchain", "view", "image", "memory"), qt.DeepEquals, live)
	c.Assert(resized, qt.Equals, 2)

	p.Destroy()
	c.Assert(drv.leaked("swapchain", "view", "image", "memory"), qt.HasLen, 0)
}

func TestAcquireError(t *testing.T) {
	c := qt.New(t)
	drv, _, p := newPresentation(DefaultPresentationConfig())
	c.Assert(p.Init(), qt.IsNil)
	c.Assert(p.InitSwapChain(), qt.IsNil)

	drv.acquireErr = errors.New("device lost")
	_, ok, err := p.Acquire(NullHandle)
	c.Assert(ok, qt.IsFalse)
	c.Assert(err, qt.ErrorMatches, `acquire: device lost`)
	c.Assert(p.State(), qt.Equals, StateSwapchainReady)
}
