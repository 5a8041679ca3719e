package framesource

import (
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/config"
	"github.com/meteorcam/frameinput/logging"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// summary is what a source caches for one loaded range: the chunk and, for sources with
// embedded timestamps, the capture times of the frames that went into it.
type summary struct {
	chunk *chunk.Chunk
	times []time.Time
}

// base carries the state and behavior every kind shares: navigation, range resolution, the
// single entry chunk cache and clock based timing.
type base struct {
	kind      Kind
	path      string
	conf      *config.Config
	detection bool
	logger    logging.Logger

	width     int
	height    int
	fps       float64
	beginning time.Time

	totalFrames int
	chunkSize   int
	frame       int
	chunkIndex  int

	cache   chunk.Cache[chunk.Identity, *summary]
	current *summary
}

func newBase(kind Kind, path string, opts Options) base {
	return base{
		kind:      kind,
		path:      path,
		conf:      opts.Config,
		detection: opts.Detection,
		logger:    opts.Logger.Sublogger(string(kind)),
	}
}

func (b *base) Kind() Kind {
	return b.kind
}

func (b *base) Name() string {
	return b.path
}

func (b *base) Dimensions() (int, int) {
	return b.width, b.height
}

func (b *base) FPS() float64 {
	return b.fps
}

func (b *base) TotalFrames() int {
	return b.totalFrames
}

func (b *base) ChunkSize() int {
	return b.chunkSize
}

// TotalChunks counts a trailing partial chunk as a chunk.
func (b *base) TotalChunks() int {
	return max(1, utils.CeilDiv(b.totalFrames, b.chunkSize))
}

func (b *base) CurrentFrame() int {
	return b.frame
}

func (b *base) CurrentChunk() int {
	return b.chunkIndex
}

func (b *base) NextChunk() {
	b.moveChunk(1)
}

func (b *base) PrevChunk() {
	b.moveChunk(-1)
}

func (b *base) moveChunk(delta int) {
	b.chunkIndex = utils.Mod(b.chunkIndex+delta, b.TotalChunks())
	b.frame = utils.Mod(b.chunkIndex*b.chunkSize, b.totalFrames)
}

func (b *base) NextFrame() {
	b.SetFrame(b.frame + 1)
}

func (b *base) PrevFrame() {
	b.SetFrame(b.frame - 1)
}

func (b *base) SetFrame(n int) {
	b.frame = utils.Mod(n, b.totalFrames)
}

func (b *base) BeginningTime() time.Time {
	return b.beginning
}

func (b *base) SequenceNumber() int {
	return b.frame
}

func (b *base) Close() error {
	return nil
}

// resolve turns chunk options into a normalized identity.
func (b *base) resolve(opts []ChunkOption) (chunk.Identity, error) {
	var req chunkRequest
	for _, opt := range opts {
		opt(&req)
	}
	if req.hasCount && req.count == -1 {
		return chunk.Identity{First: 0, Count: b.totalFrames}, nil
	}

	first := b.chunkIndex * b.chunkSize
	if req.hasFirst {
		first = req.first
	}
	first = utils.Mod(first, b.totalFrames)

	count := b.chunkSize
	if req.hasCount {
		if req.count < 1 {
			return chunk.Identity{}, errors.Errorf("frame count must be positive or -1, got %d", req.count)
		}
		count = req.count
	}
	if first+count > b.totalFrames {
		count = b.totalFrames - first
	}
	return chunk.Identity{First: first, Count: count}, nil
}

// load resolves the range, serves it from the cache or builds it, and makes it current.
func (b *base) load(opts []ChunkOption, build func(id chunk.Identity) (*summary, error)) (*chunk.Chunk, error) {
	id, err := b.resolve(opts)
	if err != nil {
		return nil, err
	}
	s, err := b.cache.GetOrLoad(id, func() (*summary, error) {
		b.logger.Debugw("building chunk", "chunk", id.String())
		s, err := build(id)
		if err != nil {
			return nil, err
		}
		s.chunk.Identity = id
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	b.current = s
	return s.chunk, nil
}

// initBeginning takes an explicit beginning time from opts or derives one from the data. A time
// that cannot be derived is logged and replaced by the unix epoch.
func (b *base) initBeginning(opts Options, fromData func() (time.Time, error)) {
	if t, ok := opts.beginning(); ok {
		b.beginning = t
		return
	}
	t, err := fromData()
	if err != nil {
		b.logger.Warnw("cannot derive beginning time, using the unix epoch", "path", b.path, "error", err)
		t = time.Unix(0, 0).UTC()
	}
	b.beginning = t
}

// initFPS picks the explicit frame rate, then the one read from the data, then the config's.
func (b *base) initFPS(opts Options, fromData float64) {
	switch {
	case opts.FPS > 0:
		b.fps = opts.FPS
	case fromData > 0:
		b.fps = fromData
	default:
		b.fps = b.conf.FPS
	}
}

// prepare applies detection binning.
func (b *base) prepare(f *rimage.Frame) (*rimage.Frame, error) {
	if !b.detection {
		return f, nil
	}
	return f.Bin(b.conf.DetectionBinningFactor, b.conf.DetectionBinningMethod)
}

// binnedSize is the shape frames of the given size have after prepare.
func (b *base) binnedSize(width, height int) (int, int) {
	if factor := b.conf.DetectionBinningFactor; b.detection && factor > 1 {
		return width / factor, height / factor
	}
	return width, height
}

// fold adds a decoded frame to s. Frames that cannot be binned or have the wrong shape are
// skipped and do not count.
func (b *base) fold(s *chunk.Summarizer, index int, f *rimage.Frame) bool {
	f, err := b.prepare(f)
	if err == nil {
		err = s.Add(f)
	}
	if err != nil {
		b.skip(index, err)
		return false
	}
	return true
}

func (b *base) skip(index int, err error) {
	b.logger.Warnw("skipping frame", "frame", index, "error", err)
}

// clockTime is the time of a possibly fractional frame offset from the beginning.
func (b *base) clockTime(frames float64) time.Time {
	return b.beginning.Add(time.Duration(frames * float64(time.Second) / b.fps))
}

// clockMidpoint is the middle of the current chunk, using the number of frames actually loaded
// when the current chunk is the one resident in the cache.
func (b *base) clockMidpoint() time.Time {
	first := b.chunkIndex * b.chunkSize
	count := min(b.chunkSize, b.totalFrames-first)
	if b.current != nil && b.current.chunk.Identity.First == first {
		count = b.current.chunk.FrameCount
	}
	return b.clockTime(float64(first) + float64(count)/2)
}

// embeddedMidpoint is the mean capture time of the frames in the resident chunk. It falls back to
// the clock when nothing with a time was loaded.
func (b *base) embeddedMidpoint() time.Time {
	if b.current == nil || len(b.current.times) == 0 {
		return b.clockMidpoint()
	}
	return meanTime(b.current.times)
}

func (b *base) label(useBeginning bool, current time.Time) string {
	if useBeginning {
		return b.beginning.Format(LabelLayout)
	}
	return current.Format(LabelLayout)
}

// lookupTime returns the memoized capture time of frame n, reading and storing it on first use.
// A time that cannot be read is logged and replaced by the clock time of that frame alone.
func (b *base) lookupTime(table *timestampTable, n int, read func(n int) (time.Time, error)) time.Time {
	if n < 0 || n >= b.totalFrames {
		return b.clockTime(float64(n))
	}
	if t, ok := table.get(n); ok {
		return t
	}
	t, err := read(n)
	if err != nil {
		b.logger.Warnw("using clock time for frame", "frame", n, "error", err)
		return b.clockTime(float64(n))
	}
	table.put(n, t)
	return t
}

// meanTime averages times as offsets from the first one, keeping full precision.
func meanTime(times []time.Time) time.Time {
	offsets := make([]float64, len(times))
	for i, t := range times {
		offsets[i] = t.Sub(times[0]).Seconds()
	}
	return times[0].Add(time.Duration(stat.Mean(offsets, nil) * float64(time.Second)))
}

// estimateFPS derives the frame rate from consecutive capture times.
func estimateFPS(times []time.Time) (float64, bool) {
	if len(times) < 2 {
		return 0, false
	}
	span := times[len(times)-1].Sub(times[0]).Seconds()
	if span <= 0 {
		return 0, false
	}
	return float64(len(times)-1) / span, true
}
