// Package video decodes frames of container formats (mp4, avi, mkv) as gray frames through an
// external ffmpeg process.
package video

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/meteorcam/frameinput/logging"
	"github.com/meteorcam/frameinput/rimage"
)

// Extensions are the container extensions recognized as video files.
var Extensions = []string{".mp4", ".avi", ".mkv"}

// IsVideoFile reports whether path has a video container extension.
func IsVideoFile(path string) bool {
	return lo.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}

// Info describes a video stream.
type Info struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
}

// FrameFunc receives decoded frames in order. index is the absolute frame number.
type FrameFunc func(index int, frame *rimage.Frame) error

// A Reader decodes ranges of frames from one video.
type Reader interface {
	Info() Info
	// Decode calls fn for up to count frames starting at first and returns how many were
	// delivered. Running out of frames early is not an error.
	Decode(first, count int, fn FrameFunc) (int, error)
	Close() error
}

// FFmpegReader is a Reader backed by the ffmpeg and ffprobe binaries.
type FFmpegReader struct {
	path   string
	info   Info
	logger logging.Logger

	ctx    context.Context
	cancel func()
}

// NewFFmpegReader probes path and returns a reader for its first video stream.
func NewFFmpegReader(path string, logger logging.Logger) (*FFmpegReader, error) {
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FFmpegReader{path: path, info: info, logger: logger, ctx: ctx, cancel: cancel}, nil
}

// Info returns the probed stream description.
func (r *FFmpegReader) Info() Info {
	return r.info
}

// Decode runs ffmpeg once for the requested range, converting to 8-bit gray and slicing the raw
// output into frames as it arrives.
func (r *FFmpegReader) Decode(first, count int, fn FrameFunc) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	sink := &frameSink{width: r.info.Width, height: r.info.Height, next: first, fn: fn}
	sink.buf = make([]byte, 0, sink.width*sink.height)

	stream := ffmpeg.Input(r.path).
		Filter("select", ffmpeg.Args{"gte(n\\," + cast.ToString(first) + ")"}).
		Output("pipe:", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "gray",
			"vsync":   "0",
			"vframes": count,
		}).
		WithOutput(sink)
	stream.Context = r.ctx
	r.logger.Debugw("decoding video frames", "path", r.path, "first", first, "count", count)
	runErr := stream.Run()
	if sink.err != nil {
		return sink.delivered, sink.err
	}
	if runErr != nil && sink.delivered == 0 {
		return 0, errors.Wrapf(runErr, "ffmpeg failed on %q", r.path)
	}
	if runErr != nil {
		r.logger.Warnw("ffmpeg stopped early", "path", r.path, "delivered", sink.delivered, "error", runErr)
	}
	return sink.delivered, nil
}

// Close stops any running decode.
func (r *FFmpegReader) Close() error {
	r.cancel()
	return nil
}

// frameSink turns a raw gray byte stream into frames.
type frameSink struct {
	width, height int
	buf           []byte
	next          int
	delivered     int
	fn            FrameFunc
	err           error
}

func (s *frameSink) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	size := s.width * s.height
	written := len(p)
	for len(p) > 0 {
		n := min(size-len(s.buf), len(p))
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		if len(s.buf) < size {
			break
		}
		frame := rimage.NewFrame(s.width, s.height, 8)
		for i, v := range s.buf {
			frame.Data()[i] = uint16(v)
		}
		s.buf = s.buf[:0]
		if err := s.fn(s.next, frame); err != nil {
			s.err = err
			return 0, err
		}
		s.next++
		s.delivered++
	}
	return written, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string      `json:"codec_type"`
		Width        int         `json:"width"`
		Height       int         `json:"height"`
		AvgFrameRate string      `json:"avg_frame_rate"`
		RFrameRate   string      `json:"r_frame_rate"`
		NbFrames     interface{} `json:"nb_frames"`
		Duration     interface{} `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration interface{} `json:"duration"`
	} `json:"format"`
}

// Probe describes the first video stream of path with ffprobe.
func Probe(path string) (Info, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return Info{}, errors.Wrapf(err, "cannot probe %q", path)
	}
	return parseProbe(raw)
}

func parseProbe(raw string) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Info{}, errors.Wrap(err, "cannot parse probe output")
	}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := Info{Width: s.Width, Height: s.Height}
		info.FPS = parseRate(s.AvgFrameRate)
		if info.FPS <= 0 {
			info.FPS = parseRate(s.RFrameRate)
		}
		if frames, err := cast.ToIntE(s.NbFrames); err == nil && frames > 0 {
			info.TotalFrames = frames
		} else if duration, err := streamDuration(s.Duration, out.Format.Duration); err == nil && info.FPS > 0 {
			info.TotalFrames = int(duration*info.FPS + 0.5)
		}
		if info.Width <= 0 || info.Height <= 0 {
			return Info{}, errors.Errorf("video stream has bad dimensions %dx%d", info.Width, info.Height)
		}
		return info, nil
	}
	return Info{}, errors.New("no video stream")
}

// streamDuration prefers the stream duration and falls back to the container's.
func streamDuration(stream, container interface{}) (float64, error) {
	if d, err := cast.ToFloat64E(stream); err == nil && d > 0 {
		return d, nil
	}
	return cast.ToFloat64E(container)
}

// parseRate parses ffprobe rates such as "30000/1001".
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := cast.ToFloat64E(num)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := cast.ToFloat64E(den)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
