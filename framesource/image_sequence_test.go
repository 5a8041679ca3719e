package framesource

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/meteorcam/frameinput/logging"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// writeSequence writes frames 8-bit PNG frames into a directory named after start, plus files
// that are not part of the sequence.
func writeSequence(t *testing.T, frames int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "20190812_030405.250000")
	test.That(t, os.Mkdir(dir, 0o750), test.ShouldBeNil)
	for i := 0; i < frames; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		test.That(t, rimage.WriteFrameToFile(path, syntheticFrame(6, 4, i)), test.ShouldBeNil)
	}
	for _, name := range []string{"flat_0001.png", "master_dark.png"} {
		test.That(t, rimage.WriteFrameToFile(filepath.Join(dir, name), syntheticFrame(6, 4, 99)), test.ShouldBeNil)
	}
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("clear sky"), 0o600), test.ShouldBeNil)
	return dir
}

func newCountingSequence(t *testing.T, dir string) (*ImageSequence, *int) {
	t.Helper()
	files, err := utils.ListFiles(dir, isSequenceImage)
	test.That(t, err, test.ShouldBeNil)
	decodes := 0
	s, err := newImageSequence(dir, files, testOptions(t).withDefaults(), func(path string) (*rimage.Frame, error) {
		decodes++
		return rimage.ReadFrameFromFile(path)
	})
	test.That(t, err, test.ShouldBeNil)
	return s, &decodes
}

func TestImageSequenceChunks(t *testing.T) {
	dir := writeSequence(t, 70)
	s, err := NewImageSequence(dir, testOptions(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.Kind(), test.ShouldEqual, KindImageSequence)
	test.That(t, s.TotalFrames(), test.ShouldEqual, 70)
	test.That(t, s.ChunkSize(), test.ShouldEqual, DefaultImageSequenceChunkSize)
	test.That(t, s.TotalChunks(), test.ShouldEqual, 2)
	test.That(t, s.BeginningTime().Equal(start), test.ShouldBeTrue)
	test.That(t, filepath.Base(s.Name()), test.ShouldEqual, "frame_0000.png")

	s.NextChunk()
	c, err := s.LoadChunk()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.FrameCount, test.ShouldEqual, 6)
	assertChunkInvariants(t, c, 6, 4)
	test.That(t, s.CurrentTime().Equal(start.Add(67*time.Second/25)), test.ShouldBeTrue)
	test.That(t, s.FrameTime(10).Equal(start.Add(10*time.Second/25)), test.ShouldBeTrue)

	s.SetFrame(66)
	f, err := s.LoadFrame(false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Data(), test.ShouldResemble, syntheticFrame(6, 4, 66).Data())
	test.That(t, filepath.Base(s.Name()), test.ShouldEqual, "frame_0066.png")
}

func TestImageSequenceCacheAndCorruptFrames(t *testing.T) {
	dir := writeSequence(t, 70)
	test.That(t, os.WriteFile(filepath.Join(dir, "frame_0010.png"), []byte("truncated"), 0o600), test.ShouldBeNil)

	s, decodes := newCountingSequence(t, dir)
	// The first file once for its shape, then every file of the first chunk.
	test.That(t, *decodes, test.ShouldEqual, 1+64)

	c, err := s.LoadChunk()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *decodes, test.ShouldEqual, 1+64)
	test.That(t, c.FrameCount, test.ShouldEqual, 63)
	// The midpoint follows the frames actually summarized.
	test.That(t, s.CurrentTime().Equal(start.Add(63*time.Second/50)), test.ShouldBeTrue)

	_, err = s.LoadChunk(WithFirstFrame(5), WithFrameCount(3))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *decodes, test.ShouldEqual, 1+64+3)

	s.SetFrame(10)
	_, err = s.LoadFrame(false)
	test.That(t, err, test.ShouldNotBeNil)
}

// timestampedFrame builds a 16-bit frame as a timestamping camera stores it: marker in the first
// two samples and the capture time in samples 6 to 9, every sample byte swapped.
func timestampedFrame(at time.Time, marked bool) *rimage.Frame {
	swap := func(v uint16) uint16 { return v<<8 | v>>8 }
	f := rimage.NewFrame(12, 4, 16)
	for i := range f.Data() {
		f.Data()[i] = swap(uint16(1000 + 17*i))
	}
	if marked {
		f.Set(0, 0, uwoMagic0)
		f.Set(1, 0, uwoMagic1)
	}
	ts, tu := uint32(at.Unix()), uint32(at.Nanosecond()/int(time.Microsecond))
	f.Set(6, 0, swap(uint16(ts)))
	f.Set(7, 0, swap(uint16(ts>>16)))
	f.Set(8, 0, swap(uint16(tu)))
	f.Set(9, 0, swap(uint16(tu>>16)))
	return f
}

func uwoTime(i int) time.Time {
	return start.Add(time.Duration(i) * 40 * time.Millisecond)
}

// writeTimestamped writes 30 timestamped frames; the last one lacks its marker.
func writeTimestamped(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < 30; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%06d.png", i))
		test.That(t, rimage.WriteFrameToFile(path, timestampedFrame(uwoTime(i), i != 29)), test.ShouldBeNil)
	}
	return dir
}

func TestImageSequenceEmbeddedTimes(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewImageSequence(writeTimestamped(t), Options{Logger: logger})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.timestamped, test.ShouldBeTrue)
	test.That(t, s.BeginningTime().Equal(start), test.ShouldBeTrue)
	test.That(t, s.FPS(), test.ShouldAlmostEqual, 25.0, 1e-6)
	test.That(t, logs.FilterMessage("frame has no usable time").Len(), test.ShouldEqual, 1)

	// Frame 29 joins the mean at its clock time, which matches the cadence of the others.
	assertTimeNear(t, s.CurrentTime(), start.Add(580*time.Millisecond), time.Microsecond)
	test.That(t, s.FrameTime(3).Equal(uwoTime(3)), test.ShouldBeTrue)

	assertTimeNear(t, s.FrameTime(29), start.Add(29*time.Second/25), time.Microsecond)
	test.That(t, logs.FilterMessage("using clock time for frame").Len(), test.ShouldEqual, 1)

	// Frames come back with their samples in native order.
	s.SetFrame(2)
	f, err := s.LoadFrame(false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Get(11, 3), test.ShouldEqual, uint16(1000+17*47))

	// So does a frame that lost its marker.
	s.SetFrame(29)
	f, err = s.LoadFrame(false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Get(11, 3), test.ShouldEqual, uint16(1000+17*47))
	test.That(t, f.Get(0, 0), test.ShouldEqual, uint16(1000))
}

func TestImageSequenceExplicitRate(t *testing.T) {
	opts := testOptions(t)
	opts.FPS = 10
	s, err := NewImageSequence(writeTimestamped(t), opts)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.FPS(), test.ShouldEqual, 10.0)
	test.That(t, s.FrameTime(3).Equal(uwoTime(3)), test.ShouldBeTrue)
	assertTimeNear(t, s.FrameTime(29), start.Add(2900*time.Millisecond), time.Microsecond)
}

func TestImageSequenceExplicitBeginning(t *testing.T) {
	opts := testOptions(t)
	opts.BeginningTime = start.Add(time.Hour)
	s, err := NewImageSequence(writeTimestamped(t), opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.BeginningTime().Equal(start.Add(time.Hour)), test.ShouldBeTrue)
	test.That(t, s.FrameTime(3).Equal(uwoTime(3)), test.ShouldBeTrue)
}

func TestImageSequenceNoImages(t *testing.T) {
	dir := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(dir, "bias.png"), []byte("x"), 0o600), test.ShouldBeNil)
	_, err := NewImageSequence(dir, testOptions(t))
	test.That(t, err, test.ShouldNotBeNil)
}
