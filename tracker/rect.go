package tracker

import (
	"math"
)

// Tlwh (top-left x, top-left y, width, height) represents a 1x4 matrix
type Tlwh []float32

// Tlbr (top-left x, top-left y, bottom-right x, bottom-right y) represents
// a 1x4 matrix
type Tlbr []float32

// Xyah (center x, center y, aspect ratio, height) represents a 1x4 matrix
type Xyah []float32

// Rect represents a bounding box with Tlwh (top-left, width, height) format
type Rect struct {
	Tlwh Tlwh
}

// NewRect creates a new Rect with given coordinates
func NewRect(x, y, width, height float32) Rect {
	return Rect{
		Tlwh: Tlwh{x, y, width, height},
	}
}

// X returns the x coordinate of the rectangle
func (r *Rect) X() float32 {
	return r.Tlwh[0]
}

// Y returns the y coordinate of the rectangle
func (r *Rect) Y() float32 {
	return r.Tlwh[1]
}

// Width returns the width of the rectangle
func (r *Rect) Width() float32 {
	return r.Tlwh[2]
}

// Height returns the height of the rectangle
func (r *Rect) Height() float32 {
	return r.Tlwh[3]
}

// SetX sets the x coordinate of the rectangle
func (r *Rect) SetX(x float32) {
	r.Tlwh[0] = x
}

// SetY sets the y coordinate of the rectangle
func (r *Rect) SetY(y float32) {
	r.Tlwh[1] = y
}

// SetWidth sets the width of the rectangle
func (r *Rect) SetWidth(width float32) {
	r.Tlwh[2] = width
}

// SetHeight sets the height of the rectangle
func (r *Rect) SetHeight(height float32) {
	r.Tlwh[3] = height
}

// TLX returns the top-left x coordinate of the rectangle
func (r *Rect) TLX() float32 {
	return r.Tlwh[0]
}

// TLY returns the top-left y coordinate of the rectangle
func (r *Rect) TLY() float32 {
	return r.Tlwh[1]
}

// BRX returns the bottom-right x coordinate of the rectangle
func (r *Rect) BRX() float32 {
	return r.Tlwh[0] + r.Tlwh[2]
}

// BRY returns the bottom-right y coordinate of the rectangle
func (r *Rect) BRY() float32 {
	return r.Tlwh[1] + r.Tlwh[3]
}

// GetTlbr converts the rectangle to Tlbr (top-left, bottom-right) format
func (r *Rect) GetTlbr() Tlbr {
	return Tlbr{
		r.Tlwh[0],
		r.Tlwh[1],
		r.Tlwh[0] + r.Tlwh[2],
		r.Tlwh[1] + r.Tlwh[3],
	}
}

// GetXyah converts the rectangle to Xyah (center x, center y, aspect ratio,
// height) format
func (r *Rect) GetXyah() Xyah {
	return Xyah{
		r.Tlwh[0] + r.Tlwh[2]/2,
		r.Tlwh[1] + r.Tlwh[3]/2,
		r.Tlwh[2] / r.Tlwh[3],
		r.Tlwh[3],
	}
}

// GenerateRectByTlbr creates a Rect from Tlbr (top-left, bottom-right) format
func GenerateRectByTlbr(tlbr Tlbr) Rect {
	return NewRect(tlbr[0], tlbr[1], tlbr[2]-tlbr[0], tlbr[3]-tlbr[1])
}

// GenerateRectByXyah creates a Rect from Xyah (center x, center y,
// aspect ratio, height) format
func GenerateRectByXyah(xyah Xyah) Rect {
	width := xyah[2] * xyah[3]
	return NewRect(xyah[0]-width/2, xyah[1]-xyah[3]/2, width, xyah[3])
}

// CalcIoUBatch calculates the pairwise Intersection over Union (IoU) between
// two sets of boxes in Tlbr format.  The result is an NxM matrix with values
// in [0,1].  Degenerate boxes (zero or negative area) and any non-finite
// ratio produce an IoU of 0 rather than NaN, as detectors can legitimately
// emit such boxes
func CalcIoUBatch(aBoxes, bBoxes []Tlbr) [][]float32 {

	if len(aBoxes)*len(bBoxes) == 0 {
		return nil
	}

	ious := make([][]float32, len(aBoxes))
	for i := range ious {
		ious[i] = make([]float32, len(bBoxes))
	}

	for ai, a := range aBoxes {

		aArea := (a[2] - a[0]) * (a[3] - a[1])

		for bi, b := range bBoxes {

			iw := minf(a[2], b[2]) - maxf(a[0], b[0])
			if iw <= 0 {
				continue
			}

			ih := minf(a[3], b[3]) - maxf(a[1], b[1])
			if ih <= 0 {
				continue
			}

			bArea := (b[2] - b[0]) * (b[3] - b[1])
			inter := iw * ih
			union := aArea + bArea - inter

			iou := inter / union

			// coerce division-by-zero and other non-finite results to
			// zero overlap
			if math.IsNaN(float64(iou)) || math.IsInf(float64(iou), 0) || iou < 0 {
				iou = 0
			}

			ious[ai][bi] = iou
		}
	}

	return ious
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
