package framesource

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/formats/video"
	"github.com/meteorcam/frameinput/logging"
	"github.com/meteorcam/frameinput/rimage"
)

var start = time.Date(2019, 8, 12, 3, 4, 5, 250000000, time.UTC)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{Logger: logging.NewTestLogger(t)}
}

// syntheticFrame is frame index of a deterministic 8-bit sequence.
func syntheticFrame(width, height, index int) *rimage.Frame {
	f := rimage.NewFrame(width, height, 8)
	for i := range f.Data() {
		f.Data()[i] = uint16((index*7 + i*3) % 256)
	}
	return f
}

// fakeVideo is a video.Reader over synthetic frames that counts decoder runs.
type fakeVideo struct {
	info    video.Info
	decodes int
	closed  bool
}

func newFakeVideo(frames int) *fakeVideo {
	return &fakeVideo{info: video.Info{Width: 8, Height: 6, FPS: 25, TotalFrames: frames}}
}

func (v *fakeVideo) Info() video.Info {
	return v.info
}

func (v *fakeVideo) Decode(first, count int, fn video.FrameFunc) (int, error) {
	v.decodes++
	n := 0
	for i := first; i < first+count && i < v.info.TotalFrames; i++ {
		if err := fn(i, syntheticFrame(v.info.Width, v.info.Height, i)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (v *fakeVideo) Close() error {
	v.closed = true
	return nil
}

// assertChunkInvariants checks the shape and ordering every chunk must satisfy.
func assertChunkInvariants(t *testing.T, c *chunk.Chunk, width, height int) {
	t.Helper()
	test.That(t, c.Width(), test.ShouldEqual, width)
	test.That(t, c.Height(), test.ShouldEqual, height)
	test.That(t, c.AvePixel.SameShape(c.MaxPixel), test.ShouldBeTrue)
	test.That(t, c.StdPixel.SameShape(c.MaxPixel), test.ShouldBeTrue)
	if c.FrameCount == 0 {
		return
	}
	for i, v := range c.MaxPixel.Data() {
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, c.AvePixel.Data()[i])
		test.That(t, c.StdPixel.Data()[i], test.ShouldBeGreaterThanOrEqualTo, 0.0)
	}
}

func assertTimeNear(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := time.Duration(math.Abs(float64(got.Sub(want))))
	test.That(t, diff, test.ShouldBeLessThanOrEqualTo, tolerance)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
