package tracker

import (
	"math"
	"testing"
)

// almostEqual checks if two float32 values are approximately equal
func almostEqual(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a)-float64(b))) <= tolerance
}

func TestRectConversions(t *testing.T) {

	r := NewRect(10, 20, 30, 60)

	tlbr := r.GetTlbr()
	wantTlbr := Tlbr{10, 20, 40, 80}

	for i := range wantTlbr {
		if tlbr[i] != wantTlbr[i] {
			t.Errorf("tlbr[%d]: expected %v, got %v", i, wantTlbr[i], tlbr[i])
		}
	}

	xyah := r.GetXyah()
	wantXyah := Xyah{25, 50, 0.5, 60}

	for i := range wantXyah {
		if xyah[i] != wantXyah[i] {
			t.Errorf("xyah[%d]: expected %v, got %v", i, wantXyah[i], xyah[i])
		}
	}

	back := GenerateRectByTlbr(tlbr)

	for i := range r.Tlwh {
		if back.Tlwh[i] != r.Tlwh[i] {
			t.Errorf("tlbr round trip mismatch at %d: %v != %v",
				i, back.Tlwh[i], r.Tlwh[i])
		}
	}

	back = GenerateRectByXyah(xyah)

	for i := range r.Tlwh {
		if back.Tlwh[i] != r.Tlwh[i] {
			t.Errorf("xyah round trip mismatch at %d: %v != %v",
				i, back.Tlwh[i], r.Tlwh[i])
		}
	}
}

func TestCalcIoUBatch(t *testing.T) {

	const tolerance = 1e-6

	tests := []struct {
		name string
		a, b Tlbr
		want float32
	}{
		{"identical", Tlbr{0, 0, 10, 10}, Tlbr{0, 0, 10, 10}, 1.0},
		{"half overlap", Tlbr{0, 0, 10, 10}, Tlbr{0, 0, 10, 5}, 0.5},
		{"quarter overlap", Tlbr{0, 0, 10, 10}, Tlbr{5, 5, 15, 15}, 25.0 / 175.0},
		{"disjoint", Tlbr{0, 0, 10, 10}, Tlbr{20, 20, 30, 30}, 0.0},
		{"touching edges", Tlbr{0, 0, 10, 10}, Tlbr{10, 0, 20, 10}, 0.0},
		{"zero area a", Tlbr{5, 5, 5, 5}, Tlbr{0, 0, 10, 10}, 0.0},
		{"zero area both", Tlbr{5, 5, 5, 5}, Tlbr{5, 5, 5, 5}, 0.0},
		{"inverted box", Tlbr{10, 10, 0, 0}, Tlbr{0, 0, 10, 10}, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			ious := CalcIoUBatch([]Tlbr{tc.a}, []Tlbr{tc.b})

			if len(ious) != 1 || len(ious[0]) != 1 {
				t.Fatalf("expected 1x1 matrix, got %v", ious)
			}

			got := ious[0][0]

			if math.IsNaN(float64(got)) || math.IsInf(float64(got), 0) {
				t.Fatalf("expected finite IoU, got %v", got)
			}

			if !almostEqual(got, tc.want, tolerance) {
				t.Errorf("expected IoU %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCalcIoUBatchShape(t *testing.T) {

	a := []Tlbr{{0, 0, 10, 10}, {20, 20, 30, 30}, {0, 0, 1, 1}}
	b := []Tlbr{{0, 0, 10, 10}, {25, 25, 35, 35}}

	ious := CalcIoUBatch(a, b)

	if len(ious) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(ious))
	}

	for i := range ious {
		if len(ious[i]) != 2 {
			t.Fatalf("expected 2 columns in row %d, got %d", i, len(ious[i]))
		}
	}

	if !almostEqual(ious[0][0], 1.0, 1e-6) {
		t.Errorf("expected ious[0][0] = 1, got %v", ious[0][0])
	}

	if ious[0][1] != 0 || ious[1][0] != 0 {
		t.Errorf("expected zero IoU for disjoint pairs, got %v and %v",
			ious[0][1], ious[1][0])
	}

	// empty inputs yield no matrix
	if got := CalcIoUBatch(nil, b); got != nil {
		t.Errorf("expected nil matrix for empty input, got %v", got)
	}

	if got := CalcIoUBatch(a, nil); got != nil {
		t.Errorf("expected nil matrix for empty input, got %v", got)
	}
}
