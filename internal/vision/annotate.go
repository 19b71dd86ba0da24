package vision

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	ColorViolating = color.RGBA{R: 255, A: 255}
	ColorNormal    = color.RGBA{G: 255, A: 255}
	ColorPhone     = color.RGBA{R: 255, G: 165, A: 255}
	ColorBanner    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const strokeWidth = 2

// DrawBox outlines box on dst and writes label just above it.
func DrawBox(dst *image.RGBA, box Box, c color.Color, label string) {
	r := box.Rect().Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
	if label == "" {
		return
	}
	y := r.Min.Y - 4
	if y < basicfont.Face7x13.Height {
		y = r.Min.Y + basicfont.Face7x13.Height
	}
	drawText(dst, r.Min.X, y, c, label)
}

// DrawBanner writes text in the top-left corner of dst.
func DrawBanner(dst *image.RGBA, text string, c color.Color) {
	drawText(dst, 10, 10+basicfont.Face7x13.Height, c, text)
}

func drawText(dst *image.RGBA, x, y int, c color.Color, text string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
