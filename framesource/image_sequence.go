package framesource

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/config"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// First two samples of a timestamped PNG, as decoded before byte swapping.
const (
	uwoMagic0 = 22121
	uwoMagic1 = 17410
)

// calibrationWords mark files in an image directory that are not frames of the sequence.
var calibrationWords = []string{"flat", "dark", "bias", "grid"}

func isSequenceImage(name string) bool {
	lower := strings.ToLower(name)
	return rimage.IsImageFile(name) && !lo.SomeBy(calibrationWords, func(word string) bool {
		return strings.Contains(lower, word)
	})
}

// isTimestamped reports whether a frame is a timestamped 16-bit PNG whose samples are stored
// with swapped bytes.
func isTimestamped(f *rimage.Frame) bool {
	return f.BitDepth() == 16 && f.Width() >= 10 && f.Get(0, 0) == uwoMagic0 && f.Get(1, 0) == uwoMagic1
}

// embeddedTime reads the capture time from the first row of a byte swapped frame: seconds in
// samples 6 and 7, microseconds in samples 8 and 9, low word first.
func embeddedTime(f *rimage.Frame) (time.Time, error) {
	if f.Width() < 10 {
		return time.Time{}, errors.Errorf("frame is %d samples wide, need 10", f.Width())
	}
	ts := int64(f.Get(6, 0)) | int64(f.Get(7, 0))<<16
	tu := int64(f.Get(8, 0)) | int64(f.Get(9, 0))<<16
	if tu >= 1000000 {
		return time.Time{}, errors.Errorf("microseconds %d out of range", tu)
	}
	return time.Unix(ts, tu*int64(time.Microsecond)).UTC(), nil
}

// decodedImage is one frame of an image sequence with its embedded time, if any.
type decodedImage struct {
	frame   *rimage.Frame
	time    time.Time
	timeErr error
}

// ImageSequence reads a directory with one image file per frame. Frames are timed by the clock,
// or, when the images are timestamped PNGs, by the time stored in each frame.
type ImageSequence struct {
	base

	files       []string
	timestamped bool
	times       *timestampTable
	decode      func(path string) (*rimage.Frame, error)
}

// NewImageSequence opens a directory of images. Calibration frames are ignored.
func NewImageSequence(dir string, opts Options) (*ImageSequence, error) {
	opts = opts.withDefaults()
	files, err := utils.ListFiles(dir, isSequenceImage)
	if err != nil {
		return nil, utils.NewNoUsableInputError(dir, err.Error())
	}
	return newImageSequence(dir, files, opts, rimage.ReadFrameFromFile)
}

func newImageSequence(
	dir string,
	files []string,
	opts Options,
	decode func(string) (*rimage.Frame, error),
) (*ImageSequence, error) {
	if len(files) == 0 {
		return nil, utils.NewNoUsableInputError(dir, "no images")
	}
	s := &ImageSequence{base: newBase(KindImageSequence, dir, opts), files: files, decode: decode}
	first, err := decode(files[0])
	if err != nil {
		return nil, utils.NewNoUsableInputError(dir, err.Error())
	}
	s.timestamped = isTimestamped(first)
	s.width, s.height = s.binnedSize(first.Width(), first.Height())
	s.totalFrames = len(files)
	s.chunkSize = s.conf.ChunkSize(string(KindImageSequence), DefaultImageSequenceChunkSize)
	s.times = newTimestampTable(s.totalFrames)
	s.initFPS(opts, 0)
	s.initBeginning(opts, func() (time.Time, error) {
		if s.timestamped {
			first.ByteSwap()
			return embeddedTime(first)
		}
		name := filepath.Base(dir)
		t, err := time.Parse(config.BeginningTimeLayout, name)
		if err != nil {
			return time.Time{}, utils.NewMalformedTimestampError(name, err)
		}
		return t, nil
	})

	if _, err := s.LoadChunk(); err != nil {
		return nil, err
	}
	if s.timestamped && opts.FPS <= 0 {
		if fps, ok := estimateFPS(s.current.times); ok {
			s.fps = fps
		}
	}
	s.logger.Infow("using image sequence", "path", dir, "frames", s.totalFrames, "timestamped", s.timestamped, "fps", s.fps)
	return s, nil
}

// readFrame decodes frame index. In a timestamped sequence every frame is byte swapped, and the
// time is read from those that carry the marker.
func (s *ImageSequence) readFrame(index int) (decodedImage, error) {
	f, err := s.decode(s.files[index])
	if err != nil {
		return decodedImage{}, utils.NewCorruptFrameDataError(index, err)
	}
	img := decodedImage{frame: f}
	if !s.timestamped {
		return img, nil
	}
	marked := isTimestamped(f)
	f.ByteSwap()
	if !marked {
		img.timeErr = utils.NewMalformedTimestampError(s.files[index], errors.New("missing timestamp marker"))
		return img, nil
	}
	t, err := embeddedTime(f)
	if err != nil {
		img.timeErr = utils.NewMalformedTimestampError(s.files[index], err)
		return img, nil
	}
	img.time = t
	s.times.put(index, t)
	return img, nil
}

// Name is the file of the current frame.
func (s *ImageSequence) Name() string {
	return s.files[s.frame]
}

// LoadChunk decodes one file per frame. Files that fail to decode are skipped. A frame without a
// readable time is timed by the clock.
func (s *ImageSequence) LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error) {
	return s.load(opts, func(id chunk.Identity) (*summary, error) {
		sum := chunk.NewSummarizer(s.width, s.height)
		var times []time.Time
		for index := id.First; index < id.First+id.Count; index++ {
			img, err := s.readFrame(index)
			if err != nil {
				s.skip(index, err)
				continue
			}
			if !s.fold(sum, index, img.frame) || !s.timestamped {
				continue
			}
			t := img.time
			if img.timeErr != nil {
				s.logger.Warnw("frame has no usable time", "frame", index, "error", img.timeErr)
				t = s.clockTime(float64(index))
			}
			times = append(times, t)
		}
		return &summary{chunk: sum.Chunk(), times: times}, nil
	})
}

func (s *ImageSequence) LoadFrame(bool) (*rimage.Frame, error) {
	img, err := s.readFrame(s.frame)
	if err != nil {
		return nil, err
	}
	return s.prepare(img.frame)
}

// CurrentTime is the mean embedded time of the current chunk for timestamped images and the
// clock midpoint otherwise.
func (s *ImageSequence) CurrentTime() time.Time {
	if s.timestamped {
		return s.embeddedMidpoint()
	}
	return s.clockMidpoint()
}

func (s *ImageSequence) ChunkLabel(useBeginning bool) string {
	return s.label(useBeginning, s.CurrentTime())
}

func (s *ImageSequence) FrameTime(n int) time.Time {
	if !s.timestamped {
		return s.clockTime(float64(n))
	}
	return s.lookupTime(s.times, n, func(n int) (time.Time, error) {
		img, err := s.readFrame(n)
		if err != nil {
			return time.Time{}, err
		}
		return img.time, img.timeErr
	})
}

func (s *ImageSequence) CurrentFrameTime() time.Time {
	return s.FrameTime(s.frame)
}
