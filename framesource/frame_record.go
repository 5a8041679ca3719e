package framesource

import (
	"time"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/formats/fr"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// recordWindow is one frame of a FrameRecord source: a detection window and the file it came from.
type recordWindow struct {
	file   int
	window fr.Window
}

// FrameRecord reads detection records. Every window of every line of every file is one frame,
// in file, line and window order, pasted onto a blank canvas the size of the camera.
type FrameRecord struct {
	base

	files   []string
	windows []recordWindow
}

// NewFrameRecord opens path, a directory of detection record files or one such file.
func NewFrameRecord(path string, opts Options) (*FrameRecord, error) {
	opts = opts.withDefaults()
	files, err := listNamed(path, fr.ValidName)
	if err != nil {
		return nil, err
	}
	s := &FrameRecord{base: newBase(KindFrameRecord, path, opts)}
	for _, file := range files {
		rec, err := fr.Read(file)
		if err != nil {
			s.logger.Warnw("skipping unreadable detection record", "path", file, "error", err)
			continue
		}
		s.addFile(file, rec)
	}
	return s.init(opts)
}

func (s *FrameRecord) addFile(path string, rec *fr.File) {
	index := len(s.files)
	s.files = append(s.files, path)
	for _, win := range rec.Windows() {
		s.windows = append(s.windows, recordWindow{file: index, window: win})
	}
}

func (s *FrameRecord) init(opts Options) (*FrameRecord, error) {
	if len(s.windows) == 0 {
		return nil, utils.NewNoUsableInputError(s.path, "no detection windows")
	}
	s.width, s.height = s.conf.Width, s.conf.Height
	s.totalFrames = len(s.windows)
	s.chunkSize = s.conf.ChunkSize(string(KindFrameRecord), DefaultFrameRecordChunkSize)
	s.initFPS(opts, 0)
	s.initBeginning(opts, func() (time.Time, error) { return fr.NameTime(s.files[0]) })
	s.logger.Infow("using detection records", "path", s.path, "files", len(s.files), "windows", s.totalFrames)

	if _, err := s.LoadChunk(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name is the file holding the current frame.
func (s *FrameRecord) Name() string {
	return s.files[s.windows[s.frame].file]
}

// LoadChunk pastes the windows of the range onto the canvas. Pixels no window covers are zero in
// every plane.
func (s *FrameRecord) LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error) {
	return s.load(opts, func(id chunk.Identity) (*summary, error) {
		acc := chunk.NewWindowAccumulator(s.width, s.height)
		for _, rw := range s.windows[id.First : id.First+id.Count] {
			fr.Paste(acc, rw.window)
		}
		return &summary{chunk: acc.Chunk(id.Count, 8)}, nil
	})
}

// LoadFrame returns the current window on a blank canvas. There is no average to reconstruct
// from, so useAverage has no effect.
func (s *FrameRecord) LoadFrame(bool) (*rimage.Frame, error) {
	acc := chunk.NewWindowAccumulator(s.width, s.height)
	fr.Paste(acc, s.windows[s.frame].window)
	return acc.Chunk(1, 8).MaxPixel.ToFrame(8), nil
}

func (s *FrameRecord) CurrentTime() time.Time {
	return s.clockMidpoint()
}

func (s *FrameRecord) ChunkLabel(useBeginning bool) string {
	return s.label(useBeginning, s.CurrentTime())
}

func (s *FrameRecord) FrameTime(n int) time.Time {
	return s.clockTime(float64(n))
}

func (s *FrameRecord) CurrentFrameTime() time.Time {
	return s.FrameTime(s.frame)
}
