package vid

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/meteorcam/frameinput/rimage"
)

// Writer appends fixed length records to w.
type Writer struct {
	w      io.Writer
	width  int
	height int
	depth  int
	num    int
}

// NewWriter returns a writer for frames of the given shape and bit depth.
func NewWriter(w io.Writer, width, height, depth int) *Writer {
	return &Writer{w: w, width: width, height: height, depth: depth}
}

// RecordLength is the size of one record.
func (w *Writer) RecordLength() int {
	return HeaderSize + 2*w.width*w.height
}

// WriteFrame appends one record with the given sequence number and capture time.
func (w *Writer) WriteFrame(seq uint32, t time.Time, pixels *rimage.Frame) error {
	if pixels.Width() != w.width || pixels.Height() != w.height {
		return errors.Errorf("frame is %dx%d, stream is %dx%d", pixels.Width(), pixels.Height(), w.width, w.height)
	}
	h := Header{
		Magic:   Magic,
		SeqLen:  uint32(w.RecordLength()),
		HeadLen: HeaderSize,
		Seq:     seq,
		TS:      int32(t.Unix()),
		TU:      int32(t.Nanosecond() / int(time.Microsecond)),
		Num:     int16(w.num),
		Width:   int16(w.width),
		Height:  int16(w.height),
		Depth:   int16(w.depth),
	}
	copy(h.Text[:], "frameinput")
	if err := binary.Write(w.w, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf := make([]byte, 2*len(pixels.Data()))
	for i, v := range pixels.Data() {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	w.num++
	return nil
}
