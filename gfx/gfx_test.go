// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"image"
	"image/color"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/kiln/gfx"
)

func TestTransitionMasks(t *testing.T) {
	c := qt.New(t)

	m, ok := gfx.TransitionMasks(gfx.LayoutUndefined, gfx.LayoutTransferDst)
	c.Assert(ok, qt.IsTrue)
	c.Assert(m, qt.Equals, gfx.BarrierMasks{
		DstAccess: gfx.AccessTransferWrite,
		SrcStage:  gfx.StageTopOfPipe,
		DstStage:  gfx.StageTransfer,
	})

	m, ok = gfx.TransitionMasks(gfx.LayoutColorAttachment, gfx.LayoutPresentSrc)
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.SrcAccess, qt.Equals, gfx.AccessColorAttachmentWrite)
	c.Assert(m.DstStage, qt.Equals, gfx.StageBottomOfPipe)

	_, ok = gfx.TransitionMasks(gfx.LayoutPresentSrc, gfx.LayoutTransferSrc)
	c.Assert(ok, qt.IsFalse)
}

func TestRasterResolve(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.RasterFlags(0).Resolve(), qt.Equals, gfx.RasterState{
		Polygon: gfx.PolygonFill,
		Cull:    gfx.CullBack,
		Front:   gfx.Clockwise,
	})

	rs := (gfx.RasterWireframe | gfx.RasterPoints | gfx.RasterCullFront | gfx.RasterCullNone | gfx.RasterCounterClockwise).Resolve()
	c.Assert(rs, qt.Equals, gfx.RasterState{
		Polygon: gfx.PolygonLine,
		Cull:    gfx.CullNone,
		Front:   gfx.CounterClockwise,
	})
}

func TestComparePasses(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.CompareLessOrEqual.Passes(0.5, 0.5), qt.IsTrue)
	c.Assert(gfx.CompareLess.Passes(0.5, 0.5), qt.IsFalse)
	c.Assert(gfx.CompareGreater.Passes(0.6, 0.5), qt.IsTrue)
	c.Assert(gfx.CompareLessOrEqual.Passes(0.6, 0.5), qt.IsFalse)
}

func TestBufferIDs(t *testing.T) {
	c := qt.New(t)

	ub := gfx.NewUniformBuffer(0, gfx.AllGraphicsStages, 64)
	c.Assert(ub.Created(), qt.IsFalse)
	c.Assert(func() { ub.ID(0) }, qt.PanicMatches, "gfx: buffer has no backend resources")

	ub.IDs = []gfx.Handle{{Index: 1, Gen: 1}, {Index: 2, Gen: 1}}
	for frame := uint64(0); frame < 16; frame++ {
		c.Assert(ub.ID(frame), qt.Equals, ub.IDs[frame%2])
	}
	c.Assert(ub.Sub(1), qt.Equals, ub.IDs[1])
	c.Assert(func() { ub.Sub(2) }, qt.PanicMatches, `gfx: buffer sub-resource 2 out of range \[0,2\)`)

	vb := &gfx.VertexBuffer{}
	vb.IDs = []gfx.Handle{{Index: 7, Gen: 3}}
	c.Assert(vb.ID(41), qt.Equals, vb.IDs[0])
	c.Assert(vb.Sub(5), qt.Equals, vb.IDs[0])
}

func TestKindOf(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.KindOf(&gfx.VertexBuffer{}), qt.Equals, gfx.VertexKind)
	c.Assert(gfx.KindOf(&gfx.IndexBuffer{}), qt.Equals, gfx.IndexKind)
	c.Assert(gfx.KindOf(gfx.NewUniformBuffer(0, gfx.VertexStage, 4)), qt.Equals, gfx.UniformKind)
	c.Assert(gfx.KindOf(gfx.NewStructuredBuffer(1, gfx.ComputeStage, 16, 8, true)), qt.Equals, gfx.StructuredKind)
	c.Assert(gfx.StructuredKind.String(), qt.Equals, "structured")
}

func TestTextureWriters(t *testing.T) {
	c := qt.New(t)

	pool := gfx.Handle{Index: 0, Gen: 1}
	other := gfx.Handle{Index: 1, Gen: 1}

	var tex gfx.Texture
	tex.RecordWriter(gfx.DescriptorRef{Pool: pool, Set: 0, Binding: 1})
	tex.RecordWriter(gfx.DescriptorRef{Pool: pool, Set: 0, Binding: 1})
	tex.RecordWriter(gfx.DescriptorRef{Pool: other, Set: 3, Binding: 0})
	c.Assert(tex.Writers(), qt.HasLen, 2)

	tex.ForgetWriters(pool)
	c.Assert(tex.Writers(), qt.DeepEquals, []gfx.DescriptorRef{{Pool: other, Set: 3, Binding: 0}})

	c.Assert(tex.Levels(), qt.Equals, uint32(1))
	c.Assert(tex.SampleCount(), qt.Equals, gfx.Samples1)
	tex.Cubemap = true
	c.Assert(tex.Layers(), qt.Equals, uint32(6))
}

func TestMipChain(t *testing.T) {
	c := qt.New(t)

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	px := gfx.PixelsFromImage(img)
	c.Assert(px.Validate(), qt.IsNil)
	c.Assert(gfx.MaxMipLevels(8, 4), qt.Equals, uint32(4))

	chain := px.MipChain(10)
	c.Assert(chain, qt.HasLen, 4)
	want := []gfx.Extent2D{{8, 4}, {4, 2}, {2, 1}, {1, 1}}
	for i, level := range chain {
		c.Assert(level.Level, qt.Equals, uint32(i))
		c.Assert(level.Extent, qt.Equals, want[i])
		c.Assert(level.Data, qt.HasLen, int(want[i].Area()*4))
		c.Assert(level.Data[0], qt.Equals, uint8(255))
	}
}

func TestCubeFromStrip(t *testing.T) {
	c := qt.New(t)

	_, err := gfx.CubeFromStrip(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	c.Assert(err, qt.ErrorMatches, "gfx: cubemap strip must be 6 faces tall, got 4x4")

	cube, err := gfx.CubeFromStrip(image.NewRGBA(image.Rect(0, 0, 2, 12)))
	c.Assert(err, qt.IsNil)
	c.Assert(cube.Layers, qt.Equals, uint32(6))
	c.Assert(cube.Validate(), qt.IsNil)

	chain := cube.MipChain(2)
	c.Assert(chain, qt.HasLen, 12)
	c.Assert(chain[6].Level, qt.Equals, uint32(1))
	c.Assert(chain[11].Layer, qt.Equals, uint32(5))
}

func TestParse(t *testing.T) {
	c := qt.New(t)

	f, ok := gfx.ParseFormat("bgra8_srgb")
	c.Assert(ok, qt.IsTrue)
	c.Assert(f, qt.Equals, gfx.FormatBGRA8Srgb)
	c.Assert(gfx.FormatD24UnormS8Uint.HasStencil(), qt.IsTrue)
	c.Assert(gfx.FormatD32Float.IsDepth(), qt.IsTrue)
	c.Assert(gfx.FormatRGBA8Unorm.IsDepth(), qt.IsFalse)

	m, ok := gfx.ParsePresentMode("mailbox")
	c.Assert(ok, qt.IsTrue)
	c.Assert(m, qt.Equals, gfx.PresentMailbox)
	_, ok = gfx.ParsePresentMode("vsync")
	c.Assert(ok, qt.IsFalse)
}

func benchmarkImage(size int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return img
}

func BenchmarkPixelsFromImageSmall(b *testing.B) {
	img := benchmarkImage(64)
	for idx := 0; idx < b.N; idx++ {
		gfx.PixelsFromImage(img)
	}
}

func BenchmarkPixelsFromImageBig(b *testing.B) {
	img := benchmarkImage(1024)
	for idx := 0; idx < b.N; idx++ {
		gfx.PixelsFromImage(img)
	}
}

func BenchmarkMipChain(b *testing.B) {
	p := gfx.PixelsFromImage(benchmarkImage(512))
	levels := gfx.MaxMipLevels(512, 512)
	for idx := 0; idx < b.N; idx++ {
		p.MipChain(levels)
	}
}
