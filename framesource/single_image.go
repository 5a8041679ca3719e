package framesource

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// singleImageTimeLayout is the capture time embedded at offset 4 of names such as
// 027_2019-08-12_030405_DSC_0001.jpg.
const singleImageTimeLayout = "2006-01-02_150405"

// singleImageTime parses the capture time out of a still image name.
func singleImageTime(path string) (time.Time, error) {
	name := filepath.Base(path)
	end := 4 + len(singleImageTimeLayout)
	if len(name) < end {
		return time.Time{}, utils.NewMalformedTimestampError(name, errors.New("name too short"))
	}
	t, err := time.Parse(singleImageTimeLayout, name[4:end])
	if err != nil {
		return time.Time{}, utils.NewMalformedTimestampError(name, err)
	}
	return t, nil
}

// SingleImage is one still image treated as a whole observation: a single frame and a single
// chunk. Portrait images are turned to landscape.
type SingleImage struct {
	base

	image *rimage.Frame
}

// NewSingleImage opens the image at path.
func NewSingleImage(path string, opts Options) (*SingleImage, error) {
	opts = opts.withDefaults()
	f, err := rimage.ReadFrameFromFile(path)
	if err != nil {
		return nil, utils.NewNoUsableInputError(path, err.Error())
	}
	return newSingleImage(path, f, opts)
}

func newSingleImage(path string, f *rimage.Frame, opts Options) (*SingleImage, error) {
	s := &SingleImage{base: newBase(KindSingleImage, path, opts)}
	if f.Height() > f.Width() {
		f = f.Rotate90()
	}
	s.image = f
	s.width, s.height = f.Width(), f.Height()
	s.totalFrames = 1
	s.chunkSize = 1
	s.initFPS(opts, 0)
	s.initBeginning(opts, func() (time.Time, error) { return singleImageTime(path) })

	if _, err := s.LoadChunk(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadChunk summarizes the image alone whatever range is asked for.
func (s *SingleImage) LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error) {
	return s.load(opts, func(chunk.Identity) (*summary, error) {
		sum := chunk.NewSummarizer(s.width, s.height)
		if err := sum.Add(s.image); err != nil {
			return nil, err
		}
		return &summary{chunk: sum.Chunk()}, nil
	})
}

func (s *SingleImage) LoadFrame(bool) (*rimage.Frame, error) {
	return s.image.Clone(), nil
}

func (s *SingleImage) CurrentTime() time.Time {
	return s.clockMidpoint()
}

func (s *SingleImage) ChunkLabel(useBeginning bool) string {
	return s.label(useBeginning, s.CurrentTime())
}

func (s *SingleImage) FrameTime(n int) time.Time {
	return s.clockTime(float64(n))
}

func (s *SingleImage) CurrentFrameTime() time.Time {
	return s.FrameTime(s.frame)
}
