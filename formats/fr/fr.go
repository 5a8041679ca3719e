// Package fr reads and writes detection records: for every detected line, the small square
// windows cut out around the moving object on each frame it was seen.
//
// Layout, little endian uint32 throughout:
//
//	lines
//	per line:   windows
//	per window: y centre, x centre, frame index, size, then size*size uint8 pixels
package fr

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"github.com/meteorcam/frameinput/chunk"
	"github.com/meteorcam/frameinput/formats/ff"
	"github.com/meteorcam/frameinput/rimage"
)

const (
	maxLines   = 1 << 16
	maxWindows = 1 << 20
	maxSize    = 4096
)

// Window is one cut-out centred on (X, Y) taken from frame T.
type Window struct {
	Y, X   int
	T      int
	Pixels *rimage.Frame
}

// Size is the side length of the window.
func (w Window) Size() int {
	return w.Pixels.Width()
}

// Origin is the canvas position of the window's top-left pixel.
func (w Window) Origin() (x, y int) {
	half := w.Size() / 2
	return w.X - half, w.Y - half
}

// Line is the run of windows belonging to one detection.
type Line struct {
	Windows []Window
}

// File is a decoded record file.
type File struct {
	Lines []Line
}

// Windows returns every window in line order, then window order.
func (f *File) Windows() []Window {
	return lo.FlatMap(f.Lines, func(line Line, _ int) []Window {
		return line.Windows
	})
}

// ValidName reports whether name looks like FR*.bin.
func ValidName(name string) bool {
	name = filepath.Base(name)
	return strings.HasPrefix(name, "FR") && strings.ToLower(filepath.Ext(name)) == ".bin"
}

// NameTime parses the start time from a name laid out like a compressed stack name.
func NameTime(name string) (time.Time, error) {
	return ff.NameTime(name)
}

// Read decodes the file at path.
func Read(path string) (*File, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	rec, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read detection record %q", path)
	}
	return rec, nil
}

func readUint32(r io.Reader) (int, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return int(v), nil
}

// Decode reads a whole file from r.
func Decode(r io.Reader) (*File, error) {
	lines, err := readUint32(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read line count")
	}
	if lines > maxLines {
		return nil, errors.Errorf("implausible line count %d", lines)
	}
	rec := &File{Lines: make([]Line, lines)}
	for i := range rec.Lines {
		count, err := readUint32(r)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: cannot read window count", i)
		}
		if count > maxWindows {
			return nil, errors.Errorf("line %d: implausible window count %d", i, count)
		}
		windows := make([]Window, count)
		for j := range windows {
			var fields [4]uint32
			if err := binary.Read(r, binary.LittleEndian, &fields); err != nil {
				return nil, errors.Wrapf(err, "line %d window %d", i, j)
			}
			size := int(fields[3])
			if size == 0 || size > maxSize {
				return nil, errors.Errorf("line %d window %d: bad size %d", i, j, size)
			}
			buf := make([]byte, size*size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, errors.Wrapf(err, "line %d window %d: truncated pixels", i, j)
			}
			pixels := rimage.NewFrame(size, size, 8)
			for k, v := range buf {
				pixels.Data()[k] = uint16(v)
			}
			windows[j] = Window{Y: int(fields[0]), X: int(fields[1]), T: int(fields[2]), Pixels: pixels}
		}
		rec.Lines[i].Windows = windows
	}
	return rec, nil
}

// Encode writes the file to w.
func (f *File) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(f.Lines))); err != nil {
		return err
	}
	for _, line := range f.Lines {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(line.Windows))); err != nil {
			return err
		}
		for _, win := range line.Windows {
			fields := [4]uint32{uint32(win.Y), uint32(win.X), uint32(win.T), uint32(win.Size())}
			if err := binary.Write(w, binary.LittleEndian, fields); err != nil {
				return err
			}
			buf := make([]byte, win.Size()*win.Size())
			for k, v := range win.Pixels.Data() {
				buf[k] = uint8(v)
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Write stores the file at path.
func Write(path string, f *File) error {
	//nolint:gosec
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(out.Close)
	w := bufio.NewWriter(out)
	if err := f.Encode(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return out.Sync()
}

// Paste adds the window to acc at its canvas position.
func Paste(acc *chunk.WindowAccumulator, win Window) {
	x, y := win.Origin()
	acc.AddWindow(x, y, win.Pixels)
}
