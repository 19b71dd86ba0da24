package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNearestDetection(t *testing.T) {
	dets := []Detection{
		{Box: Box{0, 0, 10, 10}, Class: ClassNormal},
		{Box: Box{100, 100, 120, 120}, Class: ClassLookingAround},
		{Box: Box{40, 40, 60, 60}, Class: ClassNormal},
	}

	idx, ok := NearestDetection(Box{95, 95, 115, 115}, dets)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = NearestDetection(Box{45, 45, 55, 55}, dets)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = NearestDetection(Box{0, 0, 1, 1}, nil)
	assert.False(t, ok)
}

func TestNearestDetectionTieGoesToFirst(t *testing.T) {
	dets := []Detection{
		{Box: Box{0, 0, 10, 10}},
		{Box: Box{20, 0, 30, 10}},
	}
	idx, _ := NearestDetection(Box{10, 0, 20, 10}, dets)
	assert.Equal(t, 0, idx)
}

func TestFilterConfident(t *testing.T) {
	dets := []Detection{{Confidence: 0.35}, {Confidence: 0.40}, {Confidence: 0.9}}
	got := FilterConfident(dets, 0.40)
	assert.Len(t, got, 2)
	assert.Equal(t, 0.40, got[0].Confidence)
}

func TestIoU(t *testing.T) {
	a := Box{0, 0, 10, 10}
	assert.InDelta(t, 1.0, a.IoU(a), 1e-9)
	assert.InDelta(t, 25.0/175.0, a.IoU(Box{5, 5, 15, 15}), 1e-9)
	assert.Zero(t, a.IoU(Box{20, 20, 30, 30}))
}

func TestCropPaddedClampsToFrame(t *testing.T) {
	frame := solid(100, 80, color.RGBA{B: 200, A: 255})

	crop, err := CropPadded(frame, Box{10, 10, 30, 30}, 20)
	require.NoError(t, err)
	// left/top padding is clipped at 0
	assert.Equal(t, image.Rect(0, 0, 50, 50), crop.Bounds())

	crop, err = CropPadded(frame, Box{90, 70, 99, 79}, 20)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 30), crop.Bounds())
	assert.Equal(t, color.RGBA{B: 200, A: 255}, crop.RGBAAt(0, 0))
}

func TestCropPaddedOutsideFrame(t *testing.T) {
	frame := solid(50, 50, color.Black)
	_, err := CropPadded(frame, Box{200, 200, 220, 220}, 20)
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestCropDoesNotAliasFrame(t *testing.T) {
	frame := solid(40, 40, color.RGBA{G: 10, A: 255})
	crop, err := CropPadded(frame, Box{0, 0, 10, 10}, 0)
	require.NoError(t, err)
	frame.Set(0, 0, color.RGBA{R: 255, A: 255})
	assert.Equal(t, color.RGBA{G: 10, A: 255}, crop.RGBAAt(0, 0))
}

func TestResize(t *testing.T) {
	out, err := Resize(solid(33, 71, color.White), 160)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 160), out.Bounds())

	_, err = Resize(image.NewRGBA(image.Rectangle{}), 160)
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestDrawBoxPaintsOutline(t *testing.T) {
	img := solid(64, 64, color.Black)
	DrawBox(img, Box{20, 20, 40, 40}, ColorViolating, "ID:1 looking_around")
	assert.Equal(t, ColorViolating, img.RGBAAt(20, 30))
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(30, 30))

	// boxes fully outside are ignored
	DrawBox(img, Box{100, 100, 120, 120}, ColorNormal, "x")
}

func TestClone(t *testing.T) {
	src := solid(8, 4, color.White)
	sub := src.SubImage(image.Rect(2, 1, 6, 3))
	c := Clone(sub)
	assert.Equal(t, image.Rect(0, 0, 4, 2), c.Bounds())
}
