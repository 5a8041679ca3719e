package framesource

import (
	"time"

	"github.com/pkg/errors"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/formats/ff"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// CompressedStack reads a directory of compressed stack files, or a single one. Every file is
// one native chunk. Times come from the file names.
type CompressedStack struct {
	base

	files   []string
	perFile int
	read    func(path string) (*ff.File, error)

	// frameFile holds the one file individual frames are reconstructed from.
	frameFile chunk.Cache[string, *ff.File]
}

// NewCompressedStack opens path, a directory of compressed stack files or one such file.
func NewCompressedStack(path string, opts Options) (*CompressedStack, error) {
	opts = opts.withDefaults()
	files, err := listNamed(path, ff.ValidName)
	if err != nil {
		return nil, err
	}
	return newCompressedStack(path, files, opts, ff.Read)
}

func newCompressedStack(path string, files []string, opts Options, read func(string) (*ff.File, error)) (*CompressedStack, error) {
	if len(files) == 0 {
		return nil, utils.NewNoUsableInputError(path, "no compressed stack files")
	}
	s := &CompressedStack{base: newBase(KindCompressedStack, path, opts), files: files, read: read}

	first, err := read(files[0])
	if err != nil {
		return nil, utils.NewNoUsableInputError(path, err.Error())
	}
	s.frameFile.Put(files[0], first)

	s.width, s.height = first.Cols, first.Rows
	s.perFile = first.NFrames
	if s.perFile <= 0 {
		s.perFile = ff.DefaultFrames
	}
	s.chunkSize = s.perFile
	s.totalFrames = len(files) * s.perFile
	s.initFPS(Options{}, first.FPS)
	s.initBeginning(opts, func() (time.Time, error) { return ff.NameTime(files[0]) })
	s.logger.Infow("using compressed stacks", "path", path, "files", len(files), "fps", s.fps)

	if _, err := s.LoadChunk(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name is the file of the current chunk.
func (s *CompressedStack) Name() string {
	return s.files[s.chunkIndex]
}

// BeginningTime is the start of the current file. An explicit beginning time only applies while
// the file name carries none.
func (s *CompressedStack) BeginningTime() time.Time {
	if t, err := ff.NameTime(s.Name()); err == nil {
		return t
	}
	return s.beginning
}

// LoadChunk returns the stored summary of a file when the range covers exactly that file. Any
// other range is approximated from the stored images: within one file by keeping the max pixels
// whose max frame falls in the range, across files by the element-wise maximum of each part.
func (s *CompressedStack) LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error) {
	return s.load(opts, s.build)
}

func (s *CompressedStack) build(id chunk.Identity) (*summary, error) {
	if id.First%s.perFile == 0 && id.Count == s.perFile {
		f, err := s.readFile(id.First / s.perFile)
		if err != nil {
			s.skip(id.First, err)
			return &summary{chunk: chunk.Empty(s.width, s.height, 8)}, nil
		}
		return &summary{chunk: f.Chunk()}, nil
	}

	firstFile, lastFile := id.First/s.perFile, (id.First+id.Count-1)/s.perFile
	parts := make([]*chunk.Chunk, 0, lastFile-firstFile+1)
	for i := firstFile; i <= lastFile; i++ {
		offset := i * s.perFile
		lo := max(id.First, offset) - offset
		hi := min(id.First+id.Count, offset+s.perFile) - 1 - offset
		f, err := s.readFile(i)
		if err != nil {
			s.skip(offset+lo, err)
			continue
		}
		part := f.Chunk()
		part.MaxPixel = rimage.PlaneFromFrame(f.SelectFrames(f.MaxPixel, lo, hi))
		part.FrameCount = hi - lo + 1
		parts = append(parts, part)
	}
	switch len(parts) {
	case 0:
		return &summary{chunk: chunk.Empty(s.width, s.height, 8)}, nil
	case 1:
		return &summary{chunk: parts[0]}, nil
	default:
		return &summary{chunk: chunk.MergeMax(parts...)}, nil
	}
}

// readFile reads file i and checks it has the shape of the first file.
func (s *CompressedStack) readFile(i int) (*ff.File, error) {
	f, err := s.read(s.files[i])
	if err != nil {
		return nil, err
	}
	if f.Rows != s.height || f.Cols != s.width {
		return nil, errors.Errorf("%q is %dx%d, expected %dx%d", s.files[i], f.Cols, f.Rows, s.width, s.height)
	}
	return f, nil
}

// LoadFrame reconstructs the current frame from the file holding it.
func (s *CompressedStack) LoadFrame(useAverage bool) (*rimage.Frame, error) {
	i := s.frame / s.perFile
	f, err := s.frameFile.GetOrLoad(s.files[i], func() (*ff.File, error) { return s.readFile(i) })
	if err != nil {
		return nil, utils.NewCorruptFrameDataError(s.frame, err)
	}
	return f.ReconstructFrame(s.frame%s.perFile, useAverage), nil
}

// CurrentTime is the middle of the current file.
func (s *CompressedStack) CurrentTime() time.Time {
	t, err := ff.MiddleTime(s.Name(), s.perFile, s.fps)
	if err != nil {
		s.logger.Warnw("using clock time for chunk", "chunk", s.chunkIndex, "error", err)
		return s.clockMidpoint()
	}
	return t
}

func (s *CompressedStack) ChunkLabel(useBeginning bool) string {
	if useBeginning {
		return s.BeginningTime().Format(LabelLayout)
	}
	return s.CurrentTime().Format(LabelLayout)
}

// FrameTime counts from the start of the file holding frame n.
func (s *CompressedStack) FrameTime(n int) time.Time {
	if n < 0 || n >= s.totalFrames {
		return s.clockTime(float64(n))
	}
	start, err := ff.NameTime(s.files[n/s.perFile])
	if err != nil {
		s.logger.Warnw("using clock time for frame", "frame", n, "error", err)
		return s.clockTime(float64(n))
	}
	return ff.FrameTime(start, n%s.perFile, s.fps)
}

func (s *CompressedStack) CurrentFrameTime() time.Time {
	return s.FrameTime(s.frame)
}
