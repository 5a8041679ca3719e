package framesource

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/formats/vid"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// ProprietaryVideo reads the binary .vid stream. Every record carries its own capture time and
// sequence number, so times are read from the data and the frame rate is estimated from the
// first chunk.
type ProprietaryVideo struct {
	base

	reader *vid.Reader
	times  *timestampTable
}

// NewProprietaryVideo opens the .vid file at path.
func NewProprietaryVideo(path string, opts Options) (*ProprietaryVideo, error) {
	opts = opts.withDefaults()
	reader, err := vid.Open(path)
	if err != nil {
		return nil, utils.NewNoUsableInputError(path, err.Error())
	}
	s, err := newProprietaryVideo(path, reader, opts)
	if err != nil {
		return nil, multierr.Combine(err, reader.Close())
	}
	return s, nil
}

func newProprietaryVideo(path string, reader *vid.Reader, opts Options) (*ProprietaryVideo, error) {
	s := &ProprietaryVideo{base: newBase(KindProprietaryVideo, path, opts), reader: reader}
	if reader.TotalFrames() == 0 {
		return nil, utils.NewNoUsableInputError(path, "no records")
	}
	info := reader.Info()
	s.width, s.height = s.binnedSize(int(info.Width), int(info.Height))
	s.totalFrames = reader.TotalFrames()
	s.chunkSize = s.conf.ChunkSize(string(KindProprietaryVideo), DefaultProprietaryVideoChunkSize)
	s.times = newTimestampTable(s.totalFrames)
	s.initFPS(opts, 0)
	s.initBeginning(opts, func() (time.Time, error) { return recordTime(info) })

	if _, err := s.LoadChunk(); err != nil {
		return nil, err
	}
	if fps, ok := estimateFPS(s.current.times); ok && opts.FPS <= 0 {
		s.fps = fps
	} else if !ok {
		s.logger.Warnw("cannot estimate frame rate, using configured rate", "path", path, "fps", s.fps)
	}
	s.logger.Infow("using vid stream", "path", path, "frames", s.totalFrames, "fps", s.fps)
	return s, nil
}

// recordTime is the capture time of a record, rejecting impossible microsecond fields.
func recordTime(h vid.Header) (time.Time, error) {
	if h.TU < 0 || h.TU >= 1000000 {
		return time.Time{}, utils.NewMalformedTimestampError("vid header",
			errors.Errorf("microseconds %d out of range", h.TU))
	}
	return h.Time(), nil
}

// LoadChunk reads the records of the range sequentially. Corrupt records are skipped, and the
// stream ending early shortens the chunk. A record with an impossible time is timed by the clock.
func (s *ProprietaryVideo) LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error) {
	return s.load(opts, func(id chunk.Identity) (*summary, error) {
		if err := s.reader.Seek(id.First); err != nil {
			return nil, err
		}
		sum := chunk.NewSummarizer(s.width, s.height)
		var times []time.Time
		for i := 0; i < id.Count; i++ {
			index := id.First + i
			frame, err := s.reader.Next()
			if errors.Is(err, utils.ErrEndOfStream) {
				break
			}
			if err != nil {
				s.skip(index, err)
				continue
			}
			if !s.fold(sum, index, frame.Pixels) {
				continue
			}
			t, err := recordTime(frame.Header)
			if err != nil {
				s.logger.Warnw("frame has no usable time", "frame", index, "error", err)
				times = append(times, s.clockTime(float64(index)))
				continue
			}
			times = append(times, t)
			s.times.put(index, t)
		}
		return &summary{chunk: sum.Chunk(), times: times}, nil
	})
}

func (s *ProprietaryVideo) LoadFrame(bool) (*rimage.Frame, error) {
	if err := s.reader.Seek(s.frame); err != nil {
		return nil, err
	}
	frame, err := s.reader.Next()
	if err != nil {
		return nil, err
	}
	if t, err := recordTime(frame.Header); err == nil {
		s.times.put(s.frame, t)
	}
	return s.prepare(frame.Pixels)
}

// CurrentTime is the mean capture time of the frames in the current chunk.
func (s *ProprietaryVideo) CurrentTime() time.Time {
	return s.embeddedMidpoint()
}

func (s *ProprietaryVideo) ChunkLabel(useBeginning bool) string {
	return s.label(useBeginning, s.CurrentTime())
}

// FrameTime reads the capture time from the record header. The sequential read position is left
// where it was.
func (s *ProprietaryVideo) FrameTime(n int) time.Time {
	return s.lookupTime(s.times, n, func(n int) (time.Time, error) {
		h, err := s.reader.HeaderAt(n)
		if err != nil {
			return time.Time{}, err
		}
		return recordTime(h)
	})
}

func (s *ProprietaryVideo) CurrentFrameTime() time.Time {
	return s.FrameTime(s.frame)
}

// SequenceNumber is the counter the camera wrote into the current record. It differs from the
// frame pointer when the camera dropped frames.
func (s *ProprietaryVideo) SequenceNumber() int {
	h, err := s.reader.HeaderAt(s.frame)
	if err != nil {
		s.logger.Warnw("cannot read sequence number", "frame", s.frame, "error", err)
		return s.frame
	}
	return int(h.Seq)
}

// Close releases the file.
func (s *ProprietaryVideo) Close() error {
	return s.reader.Close()
}
