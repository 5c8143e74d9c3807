// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Pixels is tightly packed RGBA8 data for one or more equally sized layers.
type Pixels struct {
	Width  uint32
	Height uint32
	Layers uint32
	Data   []byte
}

// LayerSize is the byte size of a single layer.
func (p *Pixels) LayerSize() int {
	return int(p.Width) * int(p.Height) * 4
}

// Validate checks that Data holds every layer.
func (p *Pixels) Validate() error {
	layers := p.Layers
	if layers == 0 {
		layers = 1
	}
	if want := p.LayerSize() * int(layers); len(p.Data) != want {
		return fmt.Errorf("gfx: pixel data is %d bytes, %dx%dx%d RGBA8 needs %d", len(p.Data), p.Width, p.Height, layers, want)
	}
	return nil
}

// Layer returns the pixels of layer i.
func (p *Pixels) Layer(i uint32) []byte {
	size := p.LayerSize()
	return p.Data[int(i)*size : int(i+1)*size]
}

func (p *Pixels) layerImage(i uint32) *image.RGBA {
	return &image.RGBA{
		Pix:    p.Layer(i),
		Stride: int(p.Width) * 4,
		Rect:   image.Rect(0, 0, int(p.Width), int(p.Height)),
	}
}

// PixelsFromImage converts any image into a single RGBA8 layer.
func PixelsFromImage(img image.Image) *Pixels {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Pixels{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Layers: 1,
		Data:   rgba.Pix,
	}
}

// CubeFromStrip splits a vertical strip of six square faces into cubemap layers.
func CubeFromStrip(img image.Image) (*Pixels, error) {
	b := img.Bounds()
	if b.Dy() != 6*b.Dx() {
		return nil, fmt.Errorf("gfx: cubemap strip must be 6 faces tall, got %dx%d", b.Dx(), b.Dy())
	}
	p := PixelsFromImage(img)
	p.Height = p.Width
	p.Layers = 6
	return p, nil
}

// MaxMipLevels returns the length of a full mip chain for the given size.
func MaxMipLevels(width, height uint32) uint32 {
	size := width
	if height > size {
		size = height
	}
	levels := uint32(1)
	for size > 1 {
		size >>= 1
		levels++
	}
	return levels
}

// MipLevel is one level of one layer in a mip chain.
type MipLevel struct {
	Level  uint32
	Layer  uint32
	Extent Extent2D
	Data   []byte
}

// MipChain downsamples every layer into the requested number of levels.
// Level 0 is the original data. The result is ordered by level, then layer.
func (p *Pixels) MipChain(levels uint32) []MipLevel {
	layers := p.Layers
	if layers == 0 {
		layers = 1
	}
	if levels == 0 {
		levels = 1
	}
	if max := MaxMipLevels(p.Width, p.Height); levels > max {
		levels = max
	}

	chain := make([]MipLevel, 0, levels*layers)
	previous := make([]*image.RGBA, layers)
	for layer := uint32(0); layer < layers; layer++ {
		previous[layer] = p.layerImage(layer)
		chain = append(chain, MipLevel{
			Layer:  layer,
			Extent: Extent2D{p.Width, p.Height},
			Data:   p.Layer(layer),
		})
	}

	for level := uint32(1); level < levels; level++ {
		w, h := mipSize(p.Width, level), mipSize(p.Height, level)
		for layer := uint32(0); layer < layers; layer++ {
			dst := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
			draw.BiLinear.Scale(dst, dst.Bounds(), previous[layer], previous[layer].Bounds(), draw.Src, nil)
			previous[layer] = dst
			chain = append(chain, MipLevel{
				Level:  level,
				Layer:  layer,
				Extent: Extent2D{w, h},
				Data:   dst.Pix,
			})
		}
	}
	return chain
}

func mipSize(size, level uint32) uint32 {
	if s := size >> level; s > 0 {
		return s
	}
	return 1
}
