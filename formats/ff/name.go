package ff

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/meteorcam/frameinput/utils"
)

const nameTimeLayout = "20060102_150405"

// ValidName reports whether name looks like FF_<station>_<YYYYMMDD>_<hhmmss>_<mmm>_<frame>.bin.
func ValidName(name string) bool {
	name = filepath.Base(name)
	if !strings.HasPrefix(name, "FF") || strings.ToLower(filepath.Ext(name)) != ".bin" {
		return false
	}
	return len(nameFields(name)) >= 5
}

func nameFields(name string) []string {
	return strings.Split(utils.BaseNoExt(name), "_")
}

// NameTime parses the start time encoded in a file name.
func NameTime(name string) (time.Time, error) {
	name = filepath.Base(name)
	fields := nameFields(name)
	if len(fields) < 5 {
		return time.Time{}, utils.NewMalformedTimestampError(name, nil)
	}
	t, err := time.Parse(nameTimeLayout, fields[2]+"_"+fields[3])
	if err != nil {
		return time.Time{}, utils.NewMalformedTimestampError(name, err)
	}
	ms, err := strconv.Atoi(fields[4])
	if err != nil || ms < 0 || ms > 999 {
		return time.Time{}, utils.NewMalformedTimestampError(name, err)
	}
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// FrameTime returns the time of frame n of a file starting at start.
func FrameTime(start time.Time, n int, fps float64) time.Time {
	return start.Add(time.Duration(float64(n) * float64(time.Second) / fps))
}

// MiddleTime returns the time halfway through a file named name.
func MiddleTime(name string, nframes int, fps float64) (time.Time, error) {
	start, err := NameTime(name)
	if err != nil {
		return time.Time{}, err
	}
	return FrameTime(start, nframes/2, fps), nil
}

// Name builds a file name for the given station and start time.
func Name(station string, start time.Time, firstFrame int) string {
	start = start.UTC()
	return "FF_" + station + "_" + start.Format(nameTimeLayout) + "_" +
		leftPad(strconv.Itoa(start.Nanosecond()/int(time.Millisecond)), 3) + "_" +
		leftPad(strconv.Itoa(firstFrame), 7) + ".bin"
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
