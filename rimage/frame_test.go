package rimage

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func rampFrame(width, height, bitDepth int) *Frame {
	f := NewFrame(width, height, bitDepth)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Set(x, y, uint16(y*width+x))
		}
	}
	return f
}

func TestFrameBasics(t *testing.T) {
	f := rampFrame(4, 3, 12)
	test.That(t, f.BitDepth(), test.ShouldEqual, 16)
	test.That(t, f.Width(), test.ShouldEqual, 4)
	test.That(t, f.Height(), test.ShouldEqual, 3)
	test.That(t, f.Get(2, 1), test.ShouldEqual, uint16(6))

	clone := f.Clone()
	clone.Set(2, 1, 99)
	test.That(t, f.Get(2, 1), test.ShouldEqual, uint16(6))

	_, err := NewFrameFromData(4, 3, 8, make([]uint16, 11))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewFrameFromData(0, 3, 8, nil)
	test.That(t, err, test.ShouldNotBeNil)
	wrapped, err := NewFrameFromData(2, 1, 8, []uint16{1, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wrapped.Get(1, 0), test.ShouldEqual, uint16(2))
}

func TestByteSwap(t *testing.T) {
	f, err := NewFrameFromData(2, 1, 16, []uint16{0x5669, 0x0102})
	test.That(t, err, test.ShouldBeNil)
	f.ByteSwap()
	test.That(t, f.Data(), test.ShouldResemble, []uint16{0x6956, 0x0201})
}

func TestRotate90(t *testing.T) {
	// 2 wide, 3 tall:
	// 0 1
	// 2 3
	// 4 5
	f := rampFrame(2, 3, 8)
	r := f.Rotate90()
	test.That(t, r.Width(), test.ShouldEqual, 3)
	test.That(t, r.Height(), test.ShouldEqual, 2)
	// 1 3 5
	// 0 2 4
	test.That(t, r.Data(), test.ShouldResemble, []uint16{1, 3, 5, 0, 2, 4})
}

func TestFrameFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	f := FrameFromImage(gray)
	test.That(t, f.BitDepth(), test.ShouldEqual, 8)
	test.That(t, f.Get(1, 1), test.ShouldEqual, uint16(200))

	gray16 := image.NewGray16(image.Rect(0, 0, 2, 2))
	gray16.SetGray16(0, 1, color.Gray16{Y: 40000})
	f = FrameFromImage(gray16)
	test.That(t, f.BitDepth(), test.ShouldEqual, 16)
	test.That(t, f.Get(0, 1), test.ShouldEqual, uint16(40000))

	rgba := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgba.SetRGBA(0, 0, color.RGBA{R: 100, G: 150, B: 200, A: 255})
	f = FrameFromImage(rgba)
	test.That(t, f.BitDepth(), test.ShouldEqual, 8)
	// 0.299*100 + 0.587*150 + 0.114*200 = 140.75
	test.That(t, f.Get(0, 0), test.ShouldEqual, uint16(141))

	rgba64 := image.NewRGBA64(image.Rect(0, 0, 1, 1))
	rgba64.SetRGBA64(0, 0, color.RGBA64{R: 1000, G: 1000, B: 1000, A: 0xffff})
	f = FrameFromImage(rgba64)
	test.That(t, f.BitDepth(), test.ShouldEqual, 16)
	test.That(t, f.Get(0, 0), test.ShouldEqual, uint16(1000))
}

func TestBin(t *testing.T) {
	f := rampFrame(5, 4, 8)

	avg, err := f.Bin(2, "avg")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, avg.Width(), test.ShouldEqual, 2)
	test.That(t, avg.Height(), test.ShouldEqual, 2)
	// (0+1+5+6)/4 = 3, (2+3+7+8)/4 = 5, (10+11+15+16)/4 = 13, (12+13+17+18)/4 = 15
	test.That(t, avg.Data(), test.ShouldResemble, []uint16{3, 5, 13, 15})

	dec, err := f.Bin(2, "decimate")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dec.Data(), test.ShouldResemble, []uint16{0, 2, 10, 12})

	same, err := f.Bin(1, "avg")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldEqual, f)

	_, err = f.Bin(2, "median")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = f.Bin(8, "avg")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlane(t *testing.T) {
	p := NewPlane(3, 1)
	p.Set(0, 0, -2)
	p.Set(1, 0, 127.6)
	p.Set(2, 0, 300)
	test.That(t, p.ToFrame(8).Data(), test.ShouldResemble, []uint16{0, 128, 255})
	test.That(t, p.ToFrame(16).Data(), test.ShouldResemble, []uint16{0, 128, 300})

	back := PlaneFromFrame(rampFrame(3, 1, 8))
	test.That(t, back.Data(), test.ShouldResemble, []float64{0, 1, 2})
	test.That(t, back.SameShape(p), test.ShouldBeTrue)
	test.That(t, back.SameShape(NewPlane(1, 3)), test.ShouldBeFalse)
}

func TestImageFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := rampFrame(8, 6, 8)

	for _, ext := range []string{".png", ".bmp", ".tiff", ".ppm", ".qoi"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "frame"+ext)
			test.That(t, IsImageFile(path), test.ShouldBeTrue)
			test.That(t, WriteFrameToFile(path, f), test.ShouldBeNil)

			got, err := ReadFrameFromFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got.Width(), test.ShouldEqual, 8)
			test.That(t, got.Height(), test.ShouldEqual, 6)
			test.That(t, got.Data(), test.ShouldResemble, f.Data())
		})
	}

	deep := rampFrame(8, 6, 16)
	deep.Set(3, 3, 60000)
	path := filepath.Join(dir, "deep.png")
	test.That(t, WriteFrameToFile(path, deep), test.ShouldBeNil)
	got, err := ReadFrameFromFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.BitDepth(), test.ShouldEqual, 16)
	test.That(t, got.Get(3, 3), test.ShouldEqual, uint16(60000))

	test.That(t, IsImageFile("notes.txt"), test.ShouldBeFalse)
	test.That(t, WriteFrameToFile(filepath.Join(dir, "frame.xyz"), f), test.ShouldNotBeNil)
	_, err = ReadFrameFromFile(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}
