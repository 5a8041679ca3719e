package framesource

import (
	"bytes"
	"encoding/binary"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"github.com/meteorcam/frameinput/formats/ff"
	"github.com/meteorcam/frameinput/formats/fr"
	"github.com/meteorcam/frameinput/formats/vid"
	"github.com/meteorcam/frameinput/formats/video"
	"github.com/meteorcam/frameinput/rimage"
	"github.com/meteorcam/frameinput/utils"
)

// sniffLen is how much of a file content sniffing looks at.
const sniffLen = 512

// maxRecordLines bounds the line count a plausible detection record starts with.
const maxRecordLines = 1 << 16

// Detect classifies path. A directory holding compressed stack names is a CompressedStack, one
// holding detection record names a FrameRecord, and one holding images an ImageSequence. A file
// is classified by its leading bytes, with the extension deciding only between formats the
// bytes cannot tell apart.
func Detect(path string) (Kind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", utils.NewNoUsableInputError(path, err.Error())
	}
	if info.IsDir() {
		return detectDir(path)
	}
	return detectFile(path)
}

func detectDir(dir string) (Kind, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", utils.NewNoUsableInputError(dir, err.Error())
	}
	names := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (string, bool) {
		return entry.Name(), !entry.IsDir()
	})
	if len(names) == 0 {
		return "", utils.NewNoUsableInputError(dir, "empty directory")
	}
	switch {
	case lo.SomeBy(names, ff.ValidName):
		return KindCompressedStack, nil
	case lo.SomeBy(names, fr.ValidName):
		return KindFrameRecord, nil
	case lo.SomeBy(names, isSequenceImage):
		return KindImageSequence, nil
	default:
		return "", utils.NewUnrecognizedInputFormatError(dir)
	}
}

func detectFile(path string) (Kind, error) {
	head, err := readHead(path)
	if err != nil {
		return "", utils.NewNoUsableInputError(path, err.Error())
	}
	name := filepath.Base(path)
	contentType := http.DetectContentType(head)

	switch {
	case ff.ValidName(name) && isCompressedStack(head):
		return KindCompressedStack, nil
	case fr.ValidName(name) && isFrameRecord(head):
		return KindFrameRecord, nil
	case isVid(head):
		return KindProprietaryVideo, nil
	case strings.HasPrefix(contentType, "video/"):
		return KindRawVideo, nil
	case strings.HasPrefix(contentType, "image/"):
		return KindSingleImage, nil
	case contentType == "application/octet-stream" && rimage.IsImageFile(name):
		// TIFF, PPM and QOI are not sniffed by net/http.
		return KindSingleImage, nil
	case contentType == "application/octet-stream" && video.IsVideoFile(name):
		return KindRawVideo, nil
	default:
		return "", utils.NewUnrecognizedInputFormatError(path)
	}
}

func readHead(path string) ([]byte, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}

// isCompressedStack checks for the version marker and a readable header.
func isCompressedStack(head []byte) bool {
	if len(head) < 4 || int32(binary.LittleEndian.Uint32(head)) != -1 {
		return false
	}
	_, err := ff.DecodeHeader(bytes.NewReader(head))
	return err == nil
}

// isFrameRecord checks the file starts with a plausible line count.
func isFrameRecord(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	lines := binary.LittleEndian.Uint32(head)
	return lines > 0 && lines < maxRecordLines
}

// isVid checks the first record header.
func isVid(head []byte) bool {
	var h vid.Header
	if len(head) < vid.HeaderSize {
		return false
	}
	if err := binary.Read(bytes.NewReader(head[:vid.HeaderSize]), binary.LittleEndian, &h); err != nil {
		return false
	}
	return h.Validate() == nil
}

// Open detects the kind of path and opens the matching source.
func Open(path string, opts Options) (Source, error) {
	opts = opts.withDefaults()
	kind, err := Detect(path)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debugw("detected input", "path", path, "kind", kind)
	switch kind {
	case KindCompressedStack:
		return opened(NewCompressedStack(path, opts))
	case KindFrameRecord:
		return opened(NewFrameRecord(path, opts))
	case KindProprietaryVideo:
		return opened(NewProprietaryVideo(path, opts))
	case KindRawVideo:
		return opened(NewRawVideo(path, opts))
	case KindImageSequence:
		return opened(NewImageSequence(path, opts))
	case KindSingleImage:
		return opened(NewSingleImage(path, opts))
	default:
		return nil, utils.NewUnrecognizedInputFormatError(path)
	}
}

// opened drops the typed nil a failed constructor returns, so callers can compare the Source
// with nil.
func opened[S Source](s S, err error) (Source, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// listNamed lists the files in dir whose names pass valid, or returns path alone when it is a
// file with such a name.
func listNamed(path string, valid func(string) bool) ([]string, error) {
	if utils.IsDir(path) {
		files, err := utils.ListFiles(path, valid)
		if err != nil {
			return nil, utils.NewNoUsableInputError(path, err.Error())
		}
		return files, nil
	}
	if valid(filepath.Base(path)) {
		return []string{path}, nil
	}
	return nil, nil
}
