package rimage

import (
	"math"
)

// Plane is a float valued image with the shape of a frame. Chunk summaries (max, average and
// standard deviation) are planes.
type Plane struct {
	width  int
	height int

	data []float64
}

// NewPlane returns a zeroed plane.
func NewPlane(width, height int) *Plane {
	return &Plane{width: width, height: height, data: make([]float64, width*height)}
}

// PlaneFromFrame copies a frame's samples into a new plane.
func PlaneFromFrame(f *Frame) *Plane {
	p := NewPlane(f.width, f.height)
	for i, v := range f.data {
		p.data[i] = float64(v)
	}
	return p
}

// Width is the number of columns.
func (p *Plane) Width() int {
	return p.width
}

// Height is the number of rows.
func (p *Plane) Height() int {
	return p.height
}

// At returns the value at column x, row y.
func (p *Plane) At(x, y int) float64 {
	return p.data[y*p.width+x]
}

// Set stores a value at column x, row y.
func (p *Plane) Set(x, y int, v float64) {
	p.data[y*p.width+x] = v
}

// Data returns the backing values.
func (p *Plane) Data() []float64 {
	return p.data
}

// SameShape reports whether both planes have the same dimensions.
func (p *Plane) SameShape(other *Plane) bool {
	return p.width == other.width && p.height == other.height
}

// Clone returns a deep copy.
func (p *Plane) Clone() *Plane {
	data := make([]float64, len(p.data))
	copy(data, p.data)
	return &Plane{width: p.width, height: p.height, data: data}
}

// ToFrame rounds and clamps the plane into a frame of the given bit depth.
func (p *Plane) ToFrame(bitDepth int) *Frame {
	f := NewFrame(p.width, p.height, bitDepth)
	limit := float64(math.MaxUint8)
	if f.bitDepth == 16 {
		limit = math.MaxUint16
	}
	for i, v := range p.data {
		f.data[i] = uint16(math.Max(0, math.Min(limit, math.Round(v))))
	}
	return f
}
