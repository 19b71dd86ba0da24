package vision

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

var ErrEmptyRegion = errors.New("vision: empty image region")

// CropPadded copies box grown by pad pixels on every side, clamped to the
// frame bounds. The copy does not share pixels with frame.
func CropPadded(frame image.Image, box Box, pad int) (*image.RGBA, error) {
	r := image.Rect(box.X1-pad, box.Y1-pad, box.X2+pad, box.Y2+pad).Intersect(frame.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
	return dst, nil
}

// Resize scales img to a size x size square.
func Resize(img image.Image, size int) (*image.RGBA, error) {
	if img == nil || img.Bounds().Empty() || size <= 0 {
		return nil, ErrEmptyRegion
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// Clone returns an RGBA copy of img with bounds starting at the origin.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
