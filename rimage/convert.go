package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// Intensity weights applied to color images.
const (
	redWeight   = 0.299
	greenWeight = 0.587
	blueWeight  = 0.114
)

// FrameFromImage converts any image into a single-channel frame. Gray images keep their samples.
// Color images are reduced to 0.299R + 0.587G + 0.114B at their own bit depth.
func FrameFromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	switch typed := img.(type) {
	case *image.Gray:
		f := NewFrame(width, height, 8)
		for y := 0; y < height; y++ {
			row := typed.Pix[y*typed.Stride : y*typed.Stride+width]
			for x, v := range row {
				f.data[y*width+x] = uint16(v)
			}
		}
		return f
	case *image.Gray16:
		f := NewFrame(width, height, 16)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				f.data[y*width+x] = typed.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y
			}
		}
		return f
	}

	bitDepth := 8
	switch img.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model, color.Alpha16Model:
		bitDepth = 16
	}
	f := NewFrame(width, height, bitDepth)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if bitDepth == 8 {
				r, g, b = r>>8, g>>8, b>>8
			}
			f.data[y*width+x] = uint16(math.Round(redWeight*float64(r) + greenWeight*float64(g) + blueWeight*float64(b)))
		}
	}
	return f
}

// Bin reduces the frame by factor in both directions. Method "avg" takes the truncated mean of
// each factor x factor block, "decimate" keeps the block's top-left sample. Trailing rows and
// columns that do not fill a block are dropped.
func (f *Frame) Bin(factor int, method string) (*Frame, error) {
	if factor <= 1 {
		return f, nil
	}
	width, height := f.width/factor, f.height/factor
	if width == 0 || height == 0 {
		return nil, errors.Errorf("cannot bin %dx%d frame by %d", f.width, f.height, factor)
	}
	out := NewFrame(width, height, f.bitDepth)
	switch method {
	case "decimate":
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out.Set(x, y, f.Get(x*factor, y*factor))
			}
		}
	case "avg", "":
		area := uint64(factor * factor)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				var sum uint64
				for dy := 0; dy < factor; dy++ {
					for dx := 0; dx < factor; dx++ {
						sum += uint64(f.Get(x*factor+dx, y*factor+dy))
					}
				}
				out.Set(x, y, uint16(sum/area))
			}
		}
	default:
		return nil, errors.Errorf("unknown binning method %q", method)
	}
	return out, nil
}
