package chunk

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/stat"

	"github.com/meteorcam/frameinput/rimage"
)

func randomFrames(t *testing.T, n, width, height, bitDepth int, seed int64) []*rimage.Frame {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	limit := 256
	if bitDepth == 16 {
		limit = 65536
	}
	frames := make([]*rimage.Frame, n)
	for i := range frames {
		f := rimage.NewFrame(width, height, bitDepth)
		for j := range f.Data() {
			f.Data()[j] = uint16(r.Intn(limit))
		}
		frames[i] = f
	}
	return frames
}

func TestSummarizerMatchesTwoPass(t *testing.T) {
	for _, bitDepth := range []int{8, 16} {
		frames := randomFrames(t, 37, 5, 4, bitDepth, int64(bitDepth))
		s := NewSummarizer(5, 4)
		for _, f := range frames {
			test.That(t, s.Add(f), test.ShouldBeNil)
		}
		c := s.Chunk()
		test.That(t, c.FrameCount, test.ShouldEqual, 37)
		test.That(t, c.BitDepth, test.ShouldEqual, bitDepth)

		samples := make([]float64, len(frames))
		for i := range frames[0].Data() {
			var maxVal float64
			for k, f := range frames {
				samples[k] = float64(f.Data()[i])
				if samples[k] > maxVal {
					maxVal = samples[k]
				}
			}
			mean, variance := stat.PopMeanVariance(samples, nil)
			test.That(t, c.MaxPixel.Data()[i], test.ShouldEqual, maxVal)
			test.That(t, c.AvePixel.Data()[i], test.ShouldAlmostEqual, mean, 1e-9)
			test.That(t, c.StdPixel.Data()[i], test.ShouldAlmostEqual, stat.PopStdDev(samples, nil), 1e-6)
			test.That(t, c.StdPixel.Data()[i]*c.StdPixel.Data()[i], test.ShouldAlmostEqual, variance, 1e-3)

			// max >= ave >= 0 and std >= 0
			test.That(t, c.MaxPixel.Data()[i], test.ShouldBeGreaterThanOrEqualTo, c.AvePixel.Data()[i])
			test.That(t, c.StdPixel.Data()[i], test.ShouldBeGreaterThanOrEqualTo, 0)

			// MaxFrame points at the first frame reaching the maximum.
			idx := int(c.MaxFrame.Data()[i])
			test.That(t, float64(frames[idx].Data()[i]), test.ShouldEqual, maxVal)
			for k := 0; k < idx; k++ {
				test.That(t, float64(frames[k].Data()[i]), test.ShouldBeLessThan, maxVal)
			}
		}
	}
}

func TestSummarizerConstantFrames(t *testing.T) {
	s := NewSummarizer(2, 2)
	for i := 0; i < 10; i++ {
		f := rimage.NewFrame(2, 2, 8)
		for j := range f.Data() {
			f.Data()[j] = 77
		}
		test.That(t, s.Add(f), test.ShouldBeNil)
	}
	c := s.Chunk()
	for i := range c.MaxPixel.Data() {
		test.That(t, c.MaxPixel.Data()[i], test.ShouldEqual, 77.0)
		test.That(t, c.AvePixel.Data()[i], test.ShouldEqual, 77.0)
		test.That(t, c.StdPixel.Data()[i], test.ShouldEqual, 0.0)
		test.That(t, c.MaxFrame.Data()[i], test.ShouldEqual, uint16(0))
	}
}

func TestSummarizerEmptyAndMismatch(t *testing.T) {
	s := NewSummarizer(3, 2)
	c := s.Chunk()
	test.That(t, c.FrameCount, test.ShouldEqual, 0)
	test.That(t, c.MaxFrame, test.ShouldBeNil)
	test.That(t, c.Width(), test.ShouldEqual, 3)
	test.That(t, c.Height(), test.ShouldEqual, 2)
	test.That(t, c.MaxPixel.Data(), test.ShouldResemble, make([]float64, 6))

	err := s.Add(rimage.NewFrame(2, 3, 8))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "summary expects 3x2")
	test.That(t, s.Count(), test.ShouldEqual, 0)
}

func TestWindowAccumulator(t *testing.T) {
	acc := NewWindowAccumulator(6, 5)

	win := func(v uint16) *rimage.Frame {
		f := rimage.NewFrame(2, 2, 8)
		for i := range f.Data() {
			f.Data()[i] = v
		}
		return f
	}
	acc.AddWindow(1, 1, win(10))
	acc.AddWindow(2, 1, win(30))
	// Clipped at the bottom right corner.
	acc.AddWindow(5, 4, win(50))

	c := acc.Chunk(3, 8)
	test.That(t, c.FrameCount, test.ShouldEqual, 3)
	test.That(t, c.MaxFrame, test.ShouldBeNil)

	// (1,1) only covered by the first window.
	test.That(t, c.MaxPixel.At(1, 1), test.ShouldEqual, 10.0)
	test.That(t, c.AvePixel.At(1, 1), test.ShouldEqual, 10.0)
	test.That(t, c.StdPixel.At(1, 1), test.ShouldEqual, 0.0)
	// (2,1) covered by both.
	test.That(t, c.MaxPixel.At(2, 1), test.ShouldEqual, 30.0)
	test.That(t, c.AvePixel.At(2, 1), test.ShouldEqual, 20.0)
	test.That(t, c.StdPixel.At(2, 1), test.ShouldAlmostEqual, 10.0, 1e-9)
	test.That(t, c.MaxPixel.At(5, 4), test.ShouldEqual, 50.0)

	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			if acc.Covered(x, y) {
				continue
			}
			test.That(t, c.MaxPixel.At(x, y), test.ShouldEqual, 0.0)
			test.That(t, c.AvePixel.At(x, y), test.ShouldEqual, 0.0)
			test.That(t, c.StdPixel.At(x, y), test.ShouldEqual, 0.0)
		}
	}
	test.That(t, acc.Covered(0, 0), test.ShouldBeFalse)
	test.That(t, acc.Covered(3, 2), test.ShouldBeTrue)
}

func TestMergeMax(t *testing.T) {
	a := Empty(2, 1, 8)
	a.MaxPixel.Set(0, 0, 9)
	a.AvePixel.Set(1, 0, 4)
	a.StdPixel.Set(0, 0, 1)
	a.FrameCount = 256
	b := Empty(2, 1, 16)
	b.MaxPixel.Set(0, 0, 3)
	b.MaxPixel.Set(1, 0, 7)
	b.AvePixel.Set(1, 0, 2)
	b.StdPixel.Set(0, 0, 5)
	b.FrameCount = 100

	m := MergeMax(a, b)
	test.That(t, m.MaxPixel.Data(), test.ShouldResemble, []float64{9, 7})
	test.That(t, m.AvePixel.Data(), test.ShouldResemble, []float64{0, 4})
	test.That(t, m.StdPixel.Data(), test.ShouldResemble, []float64{5, 0})
	test.That(t, m.FrameCount, test.ShouldEqual, 356)
	test.That(t, m.BitDepth, test.ShouldEqual, 16)
	// Inputs are untouched.
	test.That(t, a.MaxPixel.Data(), test.ShouldResemble, []float64{9, 0})
	test.That(t, MergeMax(), test.ShouldBeNil)
}

func TestCache(t *testing.T) {
	var cache Cache[Identity, *Chunk]
	loads := 0
	load := func() (*Chunk, error) {
		loads++
		return Empty(1, 1, 8), nil
	}

	first, err := cache.GetOrLoad(Identity{0, 64}, load)
	test.That(t, err, test.ShouldBeNil)
	again, err := cache.GetOrLoad(Identity{0, 64}, load)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, first)
	test.That(t, loads, test.ShouldEqual, 1)

	second, err := cache.GetOrLoad(Identity{64, 64}, load)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second, test.ShouldNotEqual, first)
	test.That(t, loads, test.ShouldEqual, 2)

	// The first entry was replaced.
	_, ok := cache.Get(Identity{0, 64})
	test.That(t, ok, test.ShouldBeFalse)
	key, ok := cache.Key()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, key.String(), test.ShouldEqual, "first:64,size:64")

	// A failed load keeps the resident entry.
	_, err = cache.GetOrLoad(Identity{128, 64}, func() (*Chunk, error) { return nil, errors.New("boom") })
	test.That(t, err, test.ShouldNotBeNil)
	resident, ok := cache.Get(Identity{64, 64})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, resident, test.ShouldEqual, second)

	hits, misses := cache.Stats()
	test.That(t, hits, test.ShouldEqual, 2)
	test.That(t, misses, test.ShouldEqual, 4)

	cache.Reset()
	_, ok = cache.Key()
	test.That(t, ok, test.ShouldBeFalse)
}
