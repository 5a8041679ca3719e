package rimage

import (
	"bufio"
	"image"
	// register gif.
	_ "image/gif"
	// register jpeg.
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	goutils "go.viam.com/utils"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".ppm":  true,
	".qoi":  true,
}

// IsImageFile reports whether the path has an extension of a decodable image format.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ReadImageFile decodes an image file without any orientation or color changes.
func ReadImageFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image %q", path)
	}
	return img, nil
}

// ReadFrameFromFile decodes an image file into a single-channel frame.
func ReadFrameFromFile(path string) (*Frame, error) {
	img, err := ReadImageFile(path)
	if err != nil {
		return nil, err
	}
	return FrameFromImage(img), nil
}

// WriteFrameToFile encodes the frame in the format given by the path's extension.
func WriteFrameToFile(path string, f *Frame) error {
	//nolint:gosec
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(out.Close)

	w := bufio.NewWriter(out)
	if err := EncodeImage(w, filepath.Ext(path), f.Image()); err != nil {
		return errors.Wrapf(err, "cannot encode %q", path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return out.Sync()
}

// EncodeImage writes img in the format named by ext (".png", ".bmp", ...).
func EncodeImage(w io.Writer, ext string, img image.Image) error {
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, nil)
	case ".ppm":
		return ppm.Encode(w, img)
	case ".qoi":
		return qoi.Encode(w, img)
	case ".jpg", ".jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(100))
	default:
		return errors.Errorf("unsupported image extension %q", ext)
	}
}
