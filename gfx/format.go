// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// Format is a pixel or vertex attribute format.
type Format int

// Formats understood by the renderer.
const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatRGBA16Float
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatD16Unorm
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
)

var formatNames = map[Format]string{
	FormatUndefined:      "undefined",
	FormatR8Unorm:        "r8_unorm",
	FormatRGBA8Unorm:     "rgba8_unorm",
	FormatRGBA8Srgb:      "rgba8_srgb",
	FormatBGRA8Unorm:     "bgra8_unorm",
	FormatBGRA8Srgb:      "bgra8_srgb",
	FormatRGBA16Float:    "rgba16_float",
	FormatR32Float:       "r32_float",
	FormatRG32Float:      "rg32_float",
	FormatRGB32Float:     "rgb32_float",
	FormatRGBA32Float:    "rgba32_float",
	FormatD16Unorm:       "d16_unorm",
	FormatD32Float:       "d32_float",
	FormatD24UnormS8Uint: "d24_unorm_s8_uint",
	FormatD32FloatS8Uint: "d32_float_s8_uint",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFormat looks a format up by the name String returns.
func ParseFormat(name string) (Format, bool) {
	for f, n := range formatNames {
		if n == name {
			return f, true
		}
	}
	return FormatUndefined, false
}

// IsDepth reports whether the format carries a depth component.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Float, FormatD24UnormS8Uint, FormatD32FloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32FloatS8Uint
}

// ColorSpace of presentable images.
type ColorSpace int

// Supported color spaces.
const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceExtendedSRGBLinear
)

// PresentMode decides how the swapchain hands images to the display.
type PresentMode int

// Present modes. FIFO is the zero value because it's the one mode
// every implementation must support.
const (
	PresentFifo PresentMode = iota
	PresentFifoRelaxed
	PresentMailbox
	PresentImmediate
)

var presentModeNames = map[PresentMode]string{
	PresentFifo:        "fifo",
	PresentFifoRelaxed: "fifo_relaxed",
	PresentMailbox:     "mailbox",
	PresentImmediate:   "immediate",
}

func (p PresentMode) String() string {
	return presentModeNames[p]
}

// ParsePresentMode looks a present mode up by the name String returns.
func ParsePresentMode(name string) (PresentMode, bool) {
	for m, n := range presentModeNames {
		if n == name {
			return m, true
		}
	}
	return PresentFifo, false
}

// SampleCount is the number of rasterization samples per pixel.
type SampleCount uint32

// Sample counts, the value is the actual count.
const (
	Samples1  SampleCount = 1
	Samples2  SampleCount = 2
	Samples4  SampleCount = 4
	Samples8  SampleCount = 8
	Samples16 SampleCount = 16
	Samples32 SampleCount = 32
	Samples64 SampleCount = 64
)

// Tiling of image memory.
type Tiling int

// Image tilings.
const (
	TilingOptimal Tiling = iota
	TilingLinear
)

// IndexType is the element type of an index buffer.
type IndexType int

// Index types.
const (
	IndexUint32 IndexType = iota
	IndexUint16
)

// Size returns the byte size of one index.
func (t IndexType) Size() uint64 {
	if t == IndexUint16 {
		return 2
	}
	return 4
}
