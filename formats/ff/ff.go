// Package ff reads and writes compressed frame stacks: files that summarize a block of
// consecutive frames as four 8-bit images (max pixel, index of the max frame, average and
// standard deviation).
//
// Layout, little endian:
//
//	int32  -1 (version 2 marker)
//	uint32 rows, cols, nbits (frames per file = 1 << nbits), first frame, camera number,
//	       decimation factor, interleave, fps * 1000
//	uint8  maxpixel[rows*cols], maxframe[rows*cols], avepixel[rows*cols], stdpixel[rows*cols]
package ff

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/rimage"
)

const (
	versionMarker = -1
	maxDimension  = 16384
	maxNBits      = 16
	fpsScale      = 1000
)

// DefaultFrames is the number of frames a standard file summarizes.
const DefaultFrames = 256

// File is one decoded compressed stack.
type File struct {
	Rows       int
	Cols       int
	NFrames    int
	First      int
	CamNo      int
	Decimation int
	Interleave int
	FPS        float64

	MaxPixel *rimage.Frame
	MaxFrame *rimage.Frame
	AvePixel *rimage.Frame
	StdPixel *rimage.Frame
}

// New returns an empty file of the given shape summarizing nframes frames.
func New(rows, cols, nframes int, fps float64) *File {
	return &File{
		Rows:       rows,
		Cols:       cols,
		NFrames:    nframes,
		Decimation: 1,
		FPS:        fps,
		MaxPixel:   rimage.NewFrame(cols, rows, 8),
		MaxFrame:   rimage.NewFrame(cols, rows, 8),
		AvePixel:   rimage.NewFrame(cols, rows, 8),
		StdPixel:   rimage.NewFrame(cols, rows, 8),
	}
}

type header struct {
	Marker     int32
	Rows       uint32
	Cols       uint32
	NBits      uint32
	First      uint32
	CamNo      uint32
	Decimation uint32
	Interleave uint32
	MilliFPS   uint32
}

// Read decodes the file at path.
func Read(path string) (*File, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	ff, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read compressed stack %q", path)
	}
	return ff, nil
}

// ReadHeader decodes only the header of the file at path; the images are left nil.
func ReadHeader(path string) (*File, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	return DecodeHeader(f)
}

// DecodeHeader reads and validates only the header from r; the images are left nil.
func DecodeHeader(r io.Reader) (*File, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, errors.Wrap(err, "cannot read header")
	}
	if h.Marker != versionMarker {
		return nil, errors.Errorf("unsupported version marker %d", h.Marker)
	}
	if h.Rows == 0 || h.Cols == 0 || h.Rows > maxDimension || h.Cols > maxDimension {
		return nil, errors.Errorf("bad dimensions %dx%d", h.Cols, h.Rows)
	}
	if h.NBits == 0 || h.NBits > maxNBits {
		return nil, errors.Errorf("bad frame count exponent %d", h.NBits)
	}
	return &File{
		Rows:       int(h.Rows),
		Cols:       int(h.Cols),
		NFrames:    1 << h.NBits,
		First:      int(h.First),
		CamNo:      int(h.CamNo),
		Decimation: int(h.Decimation),
		Interleave: int(h.Interleave),
		FPS:        float64(h.MilliFPS) / fpsScale,
	}, nil
}

// Decode reads a whole file from r.
func Decode(r io.Reader) (*File, error) {
	ff, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, ff.Rows*ff.Cols)
	planes := []**rimage.Frame{&ff.MaxPixel, &ff.MaxFrame, &ff.AvePixel, &ff.StdPixel}
	for _, plane := range planes {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "truncated image data")
		}
		frame := rimage.NewFrame(ff.Cols, ff.Rows, 8)
		for i, v := range buf {
			frame.Data()[i] = uint16(v)
		}
		*plane = frame
	}
	return ff, nil
}

// Encode writes the file to w.
func (ff *File) Encode(w io.Writer) error {
	nbits := 0
	for 1<<nbits < ff.NFrames {
		nbits++
	}
	h := header{
		Marker:     versionMarker,
		Rows:       uint32(ff.Rows),
		Cols:       uint32(ff.Cols),
		NBits:      uint32(nbits),
		First:      uint32(ff.First),
		CamNo:      uint32(ff.CamNo),
		Decimation: uint32(ff.Decimation),
		Interleave: uint32(ff.Interleave),
		MilliFPS:   uint32(ff.FPS*fpsScale + 0.5),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf := make([]byte, ff.Rows*ff.Cols)
	for _, plane := range []*rimage.Frame{ff.MaxPixel, ff.MaxFrame, ff.AvePixel, ff.StdPixel} {
		for i, v := range plane.Data() {
			buf[i] = uint8(v)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// Write stores the file at path.
func Write(path string, ff *File) error {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	w := bufio.NewWriter(f)
	if err := ff.Encode(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Chunk returns the stored images as a chunk, unchanged.
func (ff *File) Chunk() *chunk.Chunk {
	return &chunk.Chunk{
		MaxPixel:   rimage.PlaneFromFrame(ff.MaxPixel),
		AvePixel:   rimage.PlaneFromFrame(ff.AvePixel),
		StdPixel:   rimage.PlaneFromFrame(ff.StdPixel),
		MaxFrame:   ff.MaxFrame.Clone(),
		FrameCount: ff.NFrames,
		BitDepth:   8,
	}
}

// SelectFrames returns img with every pixel whose max frame lies outside [minFrame, maxFrame]
// replaced by the average. It is how a sub-range of a single file is approximated.
func (ff *File) SelectFrames(img *rimage.Frame, minFrame, maxFrame int) *rimage.Frame {
	out := img.Clone()
	frames, ave := ff.MaxFrame.Data(), ff.AvePixel.Data()
	for i, n := range frames {
		if int(n) < minFrame || int(n) > maxFrame {
			out.Data()[i] = ave[i]
		}
	}
	return out
}

// ReconstructFrame rebuilds frame n of the file. Pixels whose maximum happened on frame n get the
// max value; every other pixel is zero, or the average when useAverage is set.
func (ff *File) ReconstructFrame(n int, useAverage bool) *rimage.Frame {
	var out *rimage.Frame
	if useAverage {
		out = ff.AvePixel.Clone()
	} else {
		out = rimage.NewFrame(ff.Cols, ff.Rows, 8)
	}
	frames, maxPixel := ff.MaxFrame.Data(), ff.MaxPixel.Data()
	for i, idx := range frames {
		if int(idx) == n {
			out.Data()[i] = maxPixel[i]
		}
	}
	return out
}
