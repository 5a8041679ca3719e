package chunk

import (
	"math"

	"github.com/pkg/errors"

	"github.com/meteorcam/frameinput/rimage"
)

// Summarizer accumulates whole frames one at a time. The average is the exact integer sum over
// the count and the deviation uses Welford's running update, so only one pass over the frames is
// needed.
type Summarizer struct {
	width    int
	height   int
	bitDepth int
	count    int

	max      []uint16
	maxFrame []uint16
	sum      []uint64
	mean     []float64
	m2       []float64
}

// NewSummarizer returns a summarizer for frames of the given shape.
func NewSummarizer(width, height int) *Summarizer {
	n := width * height
	return &Summarizer{
		width:    width,
		height:   height,
		bitDepth: 8,
		max:      make([]uint16, n),
		maxFrame: make([]uint16, n),
		sum:      make([]uint64, n),
		mean:     make([]float64, n),
		m2:       make([]float64, n),
	}
}

// Count is the number of frames added so far.
func (s *Summarizer) Count() int {
	return s.count
}

// Add folds one frame into the summary.
func (s *Summarizer) Add(f *rimage.Frame) error {
	if f.Width() != s.width || f.Height() != s.height {
		return errors.Errorf("frame is %dx%d, summary expects %dx%d", f.Width(), f.Height(), s.width, s.height)
	}
	if f.BitDepth() > s.bitDepth {
		s.bitDepth = f.BitDepth()
	}

	// Indices past the range of a 16-bit frame saturate.
	index := uint16(min(s.count, math.MaxUint16))
	s.count++
	k := float64(s.count)
	for i, v := range f.Data() {
		if s.count == 1 || v > s.max[i] {
			s.max[i] = v
			s.maxFrame[i] = index
		}
		s.sum[i] += uint64(v)

		x := float64(v)
		delta := x - s.mean[i]
		s.mean[i] += delta / k
		s.m2[i] += delta * (x - s.mean[i])
	}
	return nil
}

// Chunk materializes the summary. With no frames added every plane is zero.
func (s *Summarizer) Chunk() *Chunk {
	c := Empty(s.width, s.height, s.bitDepth)
	c.FrameCount = s.count
	if s.count == 0 {
		return c
	}

	maxFrame := rimage.NewFrame(s.width, s.height, 16)
	maxPlane, avePlane, stdPlane, frames := c.MaxPixel.Data(), c.AvePixel.Data(), c.StdPixel.Data(), maxFrame.Data()
	n := float64(s.count)
	for i := range s.max {
		maxPlane[i] = float64(s.max[i])
		avePlane[i] = float64(s.sum[i]) / n
		stdPlane[i] = math.Sqrt(math.Max(0, s.m2[i]/n))
		frames[i] = s.maxFrame[i]
	}
	c.MaxFrame = maxFrame
	return c
}

// WindowAccumulator builds a chunk out of small square windows pasted onto a canvas, the way
// detection records store only the pixels around a moving object. Pixels never covered by a
// window stay zero in every plane.
type WindowAccumulator struct {
	width  int
	height int

	max   []float64
	sum   []uint64
	count []uint32
	mean  []float64
	m2    []float64
}

// NewWindowAccumulator returns an accumulator for a canvas of the given shape.
func NewWindowAccumulator(width, height int) *WindowAccumulator {
	n := width * height
	return &WindowAccumulator{
		width:  width,
		height: height,
		max:    make([]float64, n),
		sum:    make([]uint64, n),
		count:  make([]uint32, n),
		mean:   make([]float64, n),
		m2:     make([]float64, n),
	}
}

// AddWindow pastes win with its top-left corner at (x0, y0). Parts outside the canvas are
// clipped.
func (w *WindowAccumulator) AddWindow(x0, y0 int, win *rimage.Frame) {
	for wy := 0; wy < win.Height(); wy++ {
		y := y0 + wy
		if y < 0 || y >= w.height {
			continue
		}
		for wx := 0; wx < win.Width(); wx++ {
			x := x0 + wx
			if x < 0 || x >= w.width {
				continue
			}
			i := y*w.width + x
			v := win.Get(wx, wy)
			x64 := float64(v)

			w.count[i]++
			if x64 > w.max[i] {
				w.max[i] = x64
			}
			w.sum[i] += uint64(v)
			delta := x64 - w.mean[i]
			w.mean[i] += delta / float64(w.count[i])
			w.m2[i] += delta * (x64 - w.mean[i])
		}
	}
}

// Covered reports whether any window touched column x, row y.
func (w *WindowAccumulator) Covered(x, y int) bool {
	return w.count[y*w.width+x] > 0
}

// Chunk materializes the canvas as a chunk of frameCount frames.
func (w *WindowAccumulator) Chunk(frameCount, bitDepth int) *Chunk {
	c := Empty(w.width, w.height, bitDepth)
	c.FrameCount = frameCount
	maxPlane, avePlane, stdPlane := c.MaxPixel.Data(), c.AvePixel.Data(), c.StdPixel.Data()
	for i, n := range w.count {
		if n == 0 {
			continue
		}
		maxPlane[i] = w.max[i]
		avePlane[i] = float64(w.sum[i]) / float64(n)
		stdPlane[i] = math.Sqrt(math.Max(0, w.m2[i]/float64(n)))
	}
	return c
}
