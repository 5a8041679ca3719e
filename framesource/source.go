// Package framesource exposes every supported kind of meteor camera recording as a uniform,
// time addressable sequence of frames that are summarized in chunks.
//
// A Source is bound to one file or directory for its whole life. Navigation only moves the
// frame and chunk pointers; decoding happens in LoadChunk and LoadFrame. Each source keeps at
// most one summarized chunk in memory and replaces it when a different range is loaded.
// Sources are not safe for concurrent use.
package framesource

import (
	"time"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/config"
	"github.com/meteorcam/frameinput/logging"
	"github.com/meteorcam/frameinput/rimage"
)

// Kind names a family of recordings.
type Kind string

// The supported kinds. The values double as keys of config.Config.ChunkSizes.
const (
	KindCompressedStack  Kind = "ff"
	KindFrameRecord      Kind = "fr"
	KindRawVideo         Kind = "video"
	KindProprietaryVideo Kind = "vid"
	KindImageSequence    Kind = "images"
	KindSingleImage      Kind = "image"
)

// Nominal chunk sizes per kind. Compressed stacks use the frame count stored in their files.
const (
	DefaultFrameRecordChunkSize      = 256
	DefaultRawVideoChunkSize         = 256
	DefaultProprietaryVideoChunkSize = 128
	DefaultImageSequenceChunkSize    = 64
)

// LabelLayout is how ChunkLabel formats times.
const LabelLayout = "2006-01-02 15:04:05.000000"

// A Source is a sequence of frames that can be summarized in chunks.
type Source interface {
	Kind() Kind
	// Name is the file currently being read, or the path the source was opened on.
	Name() string
	// Dimensions of the frames and chunks the source produces, after any detection binning.
	Dimensions() (width, height int)
	FPS() float64
	TotalFrames() int
	ChunkSize() int
	TotalChunks() int

	CurrentFrame() int
	CurrentChunk() int
	// NextChunk and PrevChunk move the chunk index by one, wrapping around, and put the frame
	// pointer on the first frame of the new chunk. Nothing is decoded.
	NextChunk()
	PrevChunk()
	// NextFrame, PrevFrame and SetFrame move the frame pointer, wrapping around.
	NextFrame()
	PrevFrame()
	SetFrame(n int)

	// LoadChunk summarizes a range of frames. Without options it loads the current chunk.
	LoadChunk(opts ...ChunkOption) (*chunk.Chunk, error)
	// LoadFrame decodes the frame at the frame pointer. useAverage selects the average based
	// reconstruction for sources that store summaries instead of frames.
	LoadFrame(useAverage bool) (*rimage.Frame, error)

	BeginningTime() time.Time
	// CurrentTime is the middle of the current chunk.
	CurrentTime() time.Time
	// ChunkLabel formats either the beginning time or the current time with LabelLayout.
	ChunkLabel(useBeginning bool) string
	FrameTime(n int) time.Time
	CurrentFrameTime() time.Time
	// SequenceNumber is the number of the current frame since acquisition started.
	SequenceNumber() int

	Close() error
}

// Options are the settings shared by every kind of source.
type Options struct {
	Config *config.Config
	// BeginningTime overrides the time derived from the data, when set. Compressed stacks report
	// the time in the name of the current file whenever it parses.
	BeginningTime time.Time
	// FPS overrides the frame rate found in the data, when positive. Compressed stacks always
	// use the rate stored in their files.
	FPS float64
	// Detection enables the configured spatial binning of decoded frames.
	Detection bool
	Logger    logging.Logger
}

func (opts Options) withDefaults() Options {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("framesource")
	}
	return opts
}

// beginning returns the explicit beginning time from the options or the config.
func (opts Options) beginning() (time.Time, bool) {
	if !opts.BeginningTime.IsZero() {
		return opts.BeginningTime, true
	}
	return opts.Config.Beginning()
}

type chunkRequest struct {
	first    int
	hasFirst bool
	count    int
	hasCount bool
}

// A ChunkOption selects the range LoadChunk summarizes.
type ChunkOption func(*chunkRequest)

// WithFirstFrame starts the chunk at frame n, taken modulo the total frame count.
func WithFirstFrame(n int) ChunkOption {
	return func(req *chunkRequest) {
		req.first, req.hasFirst = n, true
	}
}

// WithFrameCount sets the number of frames, clamped to the end of the source. A count of -1
// selects every frame.
func WithFrameCount(n int) ChunkOption {
	return func(req *chunkRequest) {
		req.count, req.hasCount = n, true
	}
}

// AllFrames selects every frame of the source regardless of any first frame.
func AllFrames() ChunkOption {
	return WithFrameCount(-1)
}
