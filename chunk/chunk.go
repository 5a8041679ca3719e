// Package chunk summarizes runs of frames into maximum, average and standard deviation planes
// and memoizes the most recent summary.
package chunk

import (
	"fmt"

	"github.com/meteorcam/frameinput/rimage"
)

// Identity names a chunk by its first frame and frame count. Two loads with equal identities
// produce identical chunks.
type Identity struct {
	First int
	Count int
}

func (id Identity) String() string {
	return fmt.Sprintf("first:%d,size:%d", id.First, id.Count)
}

// A Chunk is the summary of consecutive frames.
type Chunk struct {
	Identity Identity

	MaxPixel *rimage.Plane
	AvePixel *rimage.Plane
	StdPixel *rimage.Plane
	// MaxFrame holds, per pixel, the index within the chunk of the frame that produced the
	// maximum. It is nil when the source cannot tell.
	MaxFrame *rimage.Frame

	// FrameCount is the number of frames that actually went into the chunk. It is lower than the
	// requested count when the source ran out of frames or skipped corrupt ones.
	FrameCount int
	BitDepth   int
}

// Width of every plane.
func (c *Chunk) Width() int {
	return c.MaxPixel.Width()
}

// Height of every plane.
func (c *Chunk) Height() int {
	return c.MaxPixel.Height()
}

// Empty returns a chunk of zero planes that summarizes no frames.
func Empty(width, height, bitDepth int) *Chunk {
	return &Chunk{
		MaxPixel: rimage.NewPlane(width, height),
		AvePixel: rimage.NewPlane(width, height),
		StdPixel: rimage.NewPlane(width, height),
		BitDepth: bitDepth,
	}
}

// MergeMax combines already summarized chunks of one shape by taking the element-wise maximum of
// each plane. The result is an approximation: the maximum of averages is not the average of the
// union, and likewise for deviations. MaxFrame is dropped.
func MergeMax(chunks ...*Chunk) *Chunk {
	if len(chunks) == 0 {
		return nil
	}
	first := chunks[0]
	out := &Chunk{
		MaxPixel:   first.MaxPixel.Clone(),
		AvePixel:   first.AvePixel.Clone(),
		StdPixel:   first.StdPixel.Clone(),
		FrameCount: first.FrameCount,
		BitDepth:   first.BitDepth,
	}
	for _, c := range chunks[1:] {
		maxInto(out.MaxPixel, c.MaxPixel)
		maxInto(out.AvePixel, c.AvePixel)
		maxInto(out.StdPixel, c.StdPixel)
		out.FrameCount += c.FrameCount
		if c.BitDepth > out.BitDepth {
			out.BitDepth = c.BitDepth
		}
	}
	return out
}

func maxInto(dst, src *rimage.Plane) {
	d, s := dst.Data(), src.Data()
	for i := range d {
		if s[i] > d[i] {
			d[i] = s[i]
		}
	}
}
