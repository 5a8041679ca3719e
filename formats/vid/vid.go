// Package vid reads and writes the proprietary binary video stream: fixed length records, each a
// header followed by 16-bit little endian pixels.
//
// Header layout, little endian:
//
//	uint32 magic, record length, header length, flags, sequence number
//	int32  unix seconds, microseconds
//	int16  frame number, width, height, bit depth
//	uint16 pointing x, pointing y, stream, reserved
//	uint32 exposure, reserved
//	[64]byte free text
//
// Pixels start at the header length offset within the record.
package vid

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// Magic marks every record header.
const Magic uint32 = 0x00000FE0

// HeaderSize is the encoded size of Header.
const HeaderSize = 116

const maxDimension = 8192

// Header is the metadata preceding the pixels of each record.
type Header struct {
	Magic     uint32
	SeqLen    uint32
	HeadLen   uint32
	Flags     uint32
	Seq       uint32
	TS        int32
	TU        int32
	Num       int16
	Width     int16
	Height    int16
	Depth     int16
	HX        uint16
	HY        uint16
	Stream    uint16
	Reserved0 uint16
	Expose    uint32
	Reserved1 uint32
	Text      [64]byte
}

// Time is the capture time of the record.
func (h Header) Time() time.Time {
	return time.Unix(int64(h.TS), int64(h.TU)*int64(time.Microsecond)).UTC()
}

// Validate checks that the header describes a record this package can decode.
func (h Header) Validate() error {
	if h.Magic != Magic {
		return errors.Errorf("bad magic %#x", h.Magic)
	}
	if h.Width <= 0 || h.Height <= 0 || h.Width > maxDimension || h.Height > maxDimension {
		return errors.Errorf("bad dimensions %dx%d", h.Width, h.Height)
	}
	if h.HeadLen < HeaderSize {
		return errors.Errorf("header length %d shorter than %d", h.HeadLen, HeaderSize)
	}
	if int(h.SeqLen) < int(h.HeadLen)+2*int(h.Width)*int(h.Height) {
		return errors.Errorf("record length %d cannot hold %dx%d pixels", h.SeqLen, h.Width, h.Height)
	}
	return nil
}

// Frame is one decoded record.
type Frame struct {
	Header Header
	Pixels *rimage.Frame
}

// Reader walks the records of a file. Next reads sequentially; HeaderAt peeks at any record and
// leaves the sequential position untouched. A Reader is not safe for concurrent use.
type Reader struct {
	f     *os.File
	info  Header
	total int
	pos   int
}

// Open opens a file and validates its first record.
func Open(path string) (*Reader, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{f: f}
	if err := r.init(); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot open vid %q", path), f.Close())
	}
	return r, nil
}

func (r *Reader) init() error {
	if err := binary.Read(r.f, binary.LittleEndian, &r.info); err != nil {
		return err
	}
	if err := r.info.Validate(); err != nil {
		return err
	}
	stat, err := r.f.Stat()
	if err != nil {
		return err
	}
	r.total = int(stat.Size() / int64(r.info.SeqLen))
	return r.Seek(0)
}

// Info is the header of the first record.
func (r *Reader) Info() Header {
	return r.info
}

// TotalFrames is the number of whole records in the file.
func (r *Reader) TotalFrames() int {
	return r.total
}

// Position is the index of the record the next call to Next returns.
func (r *Reader) Position() int {
	return r.pos
}

// Seek moves the sequential position to record i.
func (r *Reader) Seek(i int) error {
	if i < 0 || i > r.total {
		return errors.Errorf("record %d out of range [0, %d]", i, r.total)
	}
	if _, err := r.f.Seek(int64(i)*int64(r.info.SeqLen), io.SeekStart); err != nil {
		return err
	}
	r.pos = i
	return nil
}

// Next decodes the record at the current position and advances past it. It returns
// utils.ErrEndOfStream after the last record and an error wrapping utils.ErrCorruptFrameData for
// a record that does not decode; the position still advances in that case.
func (r *Reader) Next() (*Frame, error) {
	if r.pos >= r.total {
		return nil, utils.ErrEndOfStream
	}
	index := r.pos
	record := make([]byte, r.info.SeqLen)
	n, err := io.ReadFull(r.f, record)
	r.pos++
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, utils.ErrEndOfStream
		}
		return nil, utils.NewCorruptFrameDataError(index, err)
	}

	var h Header
	if err := binary.Read(bytes.NewReader(record[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, utils.NewCorruptFrameDataError(index, err)
	}
	if err := h.Validate(); err != nil {
		return nil, utils.NewCorruptFrameDataError(index, err)
	}
	if h.SeqLen != r.info.SeqLen || h.Width != r.info.Width || h.Height != r.info.Height {
		return nil, utils.NewCorruptFrameDataError(index, errors.New("record shape changed mid-stream"))
	}

	width, height := int(h.Width), int(h.Height)
	pixels := rimage.NewFrame(width, height, int(h.Depth))
	raw := record[h.HeadLen : int(h.HeadLen)+2*width*height]
	data := pixels.Data()
	for i := range data {
		data[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return &Frame{Header: h, Pixels: pixels}, nil
}

// HeaderAt reads the header of record i, then restores the read position.
func (r *Reader) HeaderAt(i int) (Header, error) {
	if i < 0 || i >= r.total {
		return Header{}, errors.Errorf("record %d out of range [0, %d)", i, r.total)
	}
	saved := r.pos
	var h Header
	if _, err := r.f.Seek(int64(i)*int64(r.info.SeqLen), io.SeekStart); err != nil {
		return h, err
	}
	readErr := binary.Read(r.f, binary.LittleEndian, &h)
	if err := r.Seek(saved); err != nil {
		return h, err
	}
	if readErr != nil {
		return h, utils.NewCorruptFrameDataError(i, readErr)
	}
	return h, nil
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.f.Close()
}
