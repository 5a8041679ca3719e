// Package rimage holds the single-channel frame and plane types the frame sources produce, along
// with conversion, binning and image file helpers.
package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Frame is one capture of unsigned samples with a bit depth of 8 or 16, stored row-major.
type Frame struct {
	width    int
	height   int
	bitDepth int

	data []uint16
}

// NewFrame returns a zeroed frame.
func NewFrame(width, height, bitDepth int) *Frame {
	return &Frame{
		width:    width,
		height:   height,
		bitDepth: normalizeDepth(bitDepth),
		data:     make([]uint16, width*height),
	}
}

// NewFrameFromData wraps data, which must hold width*height samples, without copying it.
func NewFrameFromData(width, height, bitDepth int, data []uint16) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("bad frame dimensions %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, errors.Errorf("frame %dx%d needs %d samples, got %d", width, height, width*height, len(data))
	}
	return &Frame{width: width, height: height, bitDepth: normalizeDepth(bitDepth), data: data}, nil
}

func normalizeDepth(bitDepth int) int {
	if bitDepth > 8 {
		return 16
	}
	return 8
}

// Width is the number of columns.
func (f *Frame) Width() int {
	return f.width
}

// Height is the number of rows.
func (f *Frame) Height() int {
	return f.height
}

// BitDepth is 8 or 16.
func (f *Frame) BitDepth() int {
	return f.bitDepth
}

// Get returns the sample at column x, row y.
func (f *Frame) Get(x, y int) uint16 {
	return f.data[y*f.width+x]
}

// Set stores a sample at column x, row y.
func (f *Frame) Set(x, y int, v uint16) {
	f.data[y*f.width+x] = v
}

// Data returns the backing samples.
func (f *Frame) Data() []uint16 {
	return f.data
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	data := make([]uint16, len(f.data))
	copy(data, f.data)
	return &Frame{width: f.width, height: f.height, bitDepth: f.bitDepth, data: data}
}

// ByteSwap swaps the bytes of every sample in place. Some cameras write big endian samples into
// little endian containers.
func (f *Frame) ByteSwap() {
	for i, v := range f.data {
		f.data[i] = v<<8 | v>>8
	}
}

// Rotate90 returns the frame rotated a quarter turn counter-clockwise, so a portrait frame
// becomes landscape.
func (f *Frame) Rotate90() *Frame {
	out := NewFrame(f.height, f.width, f.bitDepth)
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			out.Set(y, f.width-1-x, f.Get(x, y))
		}
	}
	return out
}

// Image returns the frame as a standard library gray image of its bit depth.
func (f *Frame) Image() image.Image {
	if f.bitDepth == 8 {
		img := image.NewGray(image.Rect(0, 0, f.width, f.height))
		for i, v := range f.data {
			img.Pix[i] = uint8(v)
		}
		return img
	}
	img := image.NewGray16(image.Rect(0, 0, f.width, f.height))
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: f.Get(x, y)})
		}
	}
	return img
}
