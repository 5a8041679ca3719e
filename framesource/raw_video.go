package framesource

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/config"
	"github.com/meteorcam/frameinput/formats/video"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// RawVideo reads a video container. Frames are timed by the clock from the beginning time,
// which unless given is parsed from a file name like 20200101_010203.000000.mp4.
type RawVideo struct {
	base

	reader video.Reader
}

// NewRawVideo opens the video at path with ffmpeg.
func NewRawVideo(path string, opts Options) (*RawVideo, error) {
	opts = opts.withDefaults()
	reader, err := video.NewFFmpegReader(path, opts.Logger.Sublogger(string(KindRawVideo)))
	if err != nil {
		return nil, utils.NewNoUsableInputError(path, err.Error())
	}
	s, err := newRawVideo(path, reader, opts)
	if err != nil {
		return nil, multierr.Combine(err, reader.Close())
	}
	return s, nil
}

func newRawVideo(path string, reader video.Reader, opts Options) (*RawVideo, error) {
	s := &RawVideo{base: newBase(KindRawVideo, path, opts), reader: reader}
	info := reader.Info()
	if info.TotalFrames <= 0 {
		return nil, utils.NewNoUsableInputError(path, "video has no frames")
	}
	s.width, s.height = s.binnedSize(info.Width, info.Height)
	s.totalFrames = info.TotalFrames
	s.chunkSize = s.conf.ChunkSize(string(KindRawVideo), DefaultRawVideoChunkSize)
	s.initFPS(opts, info.FPS)
	s.initBeginning(opts, func() (time.Time, error) {
		name := utils.BaseNoExt(path)
		t, err := time.Parse(config.BeginningTimeLayout, name)
		if err != nil {
			return time.Time{}, utils.NewMalformedTimestampError(name, err)
		}
		return t, nil
	})
	s.logger.Infow("using video", "path", path, "frames", s.totalFrames, "fps", s.fps)

	if _, err := s.LoadChunk(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadChunk decodes the range in one pass. A decoder failure part way through keeps the frames
// decoded so far.
func (s *RawVideo) LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error) {
	return s.load(opts, func(id chunk.Identity) (*summary, error) {
		sum := chunk.NewSummarizer(s.width, s.height)
		_, err := s.reader.Decode(id.First, id.Count, func(index int, f *rimage.Frame) error {
			s.fold(sum, index, f)
			return nil
		})
		if err != nil {
			if sum.Count() == 0 {
				return nil, err
			}
			s.logger.Warnw("video chunk cut short", "chunk", id.String(), "frames", sum.Count(), "error", err)
		}
		return &summary{chunk: sum.Chunk()}, nil
	})
}

func (s *RawVideo) LoadFrame(bool) (*rimage.Frame, error) {
	var frame *rimage.Frame
	n, err := s.reader.Decode(s.frame, 1, func(_ int, f *rimage.Frame) error {
		frame = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Wrapf(utils.ErrEndOfStream, "frame %d", s.frame)
	}
	return s.prepare(frame)
}

func (s *RawVideo) CurrentTime() time.Time {
	return s.clockMidpoint()
}

func (s *RawVideo) ChunkLabel(useBeginning bool) string {
	return s.label(useBeginning, s.CurrentTime())
}

func (s *RawVideo) FrameTime(n int) time.Time {
	return s.clockTime(float64(n))
}

func (s *RawVideo) CurrentFrameTime() time.Time {
	return s.FrameTime(s.frame)
}

// Close stops the decoder.
func (s *RawVideo) Close() error {
	return s.reader.Close()
}
