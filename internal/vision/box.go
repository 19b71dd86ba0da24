package vision

import (
	"image"

	"gonum.org/v1/gonum/floats"
)

// Detector class labels. Class 0 is the violating behavior.
const (
	ClassLookingAround = 0
	ClassNormal        = 1
)

// ClassName maps a class label to its display name.
func ClassName(class int) string {
	switch class {
	case ClassLookingAround:
		return "looking_around"
	case ClassNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Box is an axis-aligned rectangle in pixel coordinates, x1,y1 inclusive.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Center() (float64, float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b Box) Area() float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return float64(w * h)
}

// IoU is intersection over union, 0 for disjoint or degenerate boxes.
func (b Box) IoU(o Box) float64 {
	inter := b.Rect().Intersect(o.Rect())
	ia := float64(inter.Dx() * inter.Dy())
	if ia == 0 {
		return 0
	}
	union := b.Area() + o.Area() - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// Detection is one detector output.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Class      int     `json:"class"`
}

// Track is a tracker output: a box with a persistent id.
type Track struct {
	ID  int `json:"id"`
	Box Box `json:"box"`
}

// FilterConfident keeps detections at or above min.
func FilterConfident(dets []Detection, min float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// NearestDetection returns the index of the detection whose box center is
// closest to the center of box. Ties go to the earlier detection.
func NearestDetection(box Box, dets []Detection) (int, bool) {
	if len(dets) == 0 {
		return -1, false
	}
	cx, cy := box.Center()
	c := []float64{cx, cy}
	best, bestDist := -1, 0.0
	for i, d := range dets {
		dx, dy := d.Box.Center()
		dist := floats.Distance(c, []float64{dx, dy}, 2)
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best, true
}
