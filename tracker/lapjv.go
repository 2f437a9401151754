package tracker

import (
	"github.com/pkg/errors"
)

// large is the cost value used as "infinity" by the solver
const large = 1000000.0

// solveLapjv solves the rectangular linear assignment problem for the given
// cost matrix with the Jonker-Volgenant algorithm.  The matrix is extended
// to a square one with padding of costLimit/2 so that any pairing with cost
// at or above costLimit is priced out in favour of leaving both sides
// unassigned.  rowsol[i] holds the column assigned to row i (-1 when
// unassigned) and colsol the reverse mapping
func solveLapjv(cost [][]float32, costLimit float32) (rowsol, colsol []int, err error) {

	nRows := len(cost)
	nCols := len(cost[0])
	rowsol = make([]int, nRows)
	colsol = make([]int, nCols)

	// extend to a (nRows+nCols) square matrix.  The original rows/cols
	// keep their costs, the dummy block diagonal is free, and everything
	// else costs costLimit/2 so a real match is only taken when it beats
	// sending both row and column to their dummies
	n := nRows + nCols
	costExt := make([][]float64, n)

	for i := range costExt {
		costExt[i] = make([]float64, n)
		for j := range costExt[i] {
			costExt[i][j] = float64(costLimit) / 2.0
		}
	}

	for i := nRows; i < n; i++ {
		for j := nCols; j < n; j++ {
			costExt[i][j] = 0
		}
	}

	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			costExt[i][j] = float64(cost[i][j])
		}
	}

	x := make([]int, n)
	y := make([]int, n)

	if err := lapjvInternal(n, costExt, x, y); err != nil {
		return nil, nil, errors.Wrap(err, "lapjv solve failed")
	}

	// assignments into the dummy block mean unassigned
	for i := 0; i < n; i++ {
		if x[i] >= nCols {
			x[i] = -1
		}
		if y[i] >= nRows {
			y[i] = -1
		}
	}

	copy(rowsol, x[:nRows])
	copy(colsol, y[:nCols])

	return rowsol, colsol, nil
}

// lapjvInternal solves the dense square LAP (Linear Assignment Problem)
// using the Jonker-Volgenant algorithm
func lapjvInternal(n int, cost [][]float64, x, y []int) error {

	freeRows := make([]int, n)
	v := make([]float64, n)

	free := ccrrtDense(n, cost, freeRows, x, y, v)

	for i := 0; free > 0 && i < 2; i++ {
		free = carrDense(n, cost, free, freeRows, x, y, v)
	}

	if free > 0 {
		return caDense(n, cost, free, freeRows, x, y, v)
	}

	return nil
}

// ccrrtDense performs column reduction and reduction transfer for a dense
// cost matrix
func ccrrtDense(n int, cost [][]float64, freeRows, x, y []int, v []float64) int {

	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		x[i] = -1
		v[i] = large
		y[i] = 0
		unique[i] = true
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := cost[i][j]; c < v[j] {
				v[j] = c
				y[j] = i
			}
		}
	}

	for j := n - 1; j >= 0; j-- {
		i := y[j]
		if x[i] < 0 {
			x[i] = j
		} else {
			unique[i] = false
			y[j] = -1
		}
	}

	nFreeRows := 0

	for i := 0; i < n; i++ {

		if x[i] < 0 {
			freeRows[nFreeRows] = i
			nFreeRows++
			continue
		}

		if !unique[i] {
			continue
		}

		j := x[i]
		minVal := large

		for j2 := 0; j2 < n; j2++ {
			if j2 == j {
				continue
			}

			if c := cost[i][j2] - v[j2]; c < minVal {
				minVal = c
			}
		}

		v[j] -= minVal
	}

	return nFreeRows
}

// carrDense performs augmenting row reduction for a dense cost matrix
func carrDense(n int, cost [][]float64, nFreeRows int, freeRows,
	x, y []int, v []float64) int {

	current := 0
	newFreeRows := 0
	rrCnt := 0

	for current < nFreeRows {

		rrCnt++
		freeI := freeRows[current]
		current++

		// find the two columns with minimum reduced cost for this row
		j1 := 0
		v1 := cost[freeI][0] - v[0]
		j2 := -1
		v2 := float64(large)

		for j := 1; j < n; j++ {
			c := cost[freeI][j] - v[j]
			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := y[j1]
		v1New := v[j1] - (v2 - v1)
		v1Lowers := v1New < v[j1]

		if rrCnt < current*n {
			if v1Lowers {
				v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					freeRows[current] = i0
				} else {
					freeRows[newFreeRows] = i0
					newFreeRows++
				}
			}
		} else if i0 >= 0 {
			freeRows[newFreeRows] = i0
			newFreeRows++
		}

		x[freeI] = j1
		y[j1] = freeI
	}

	return newFreeRows
}

// findDense finds columns with minimum d[j] and puts them on the SCAN list
func findDense(n int, lo int, d []float64, cols []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < n; k++ {

		j := cols[k]

		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}

			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return hi
}

// scanDense scans the TODO columns from the SCAN list, trying to lower
// their path costs.  Returns a free column index when one is reached,
// otherwise -1
func scanDense(n int, cost [][]float64, lo, hi *int, d []float64,
	cols, pred, y []int, v []float64) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := y[j]
		mind := d[j]
		h := cost[i][j] - v[j] - mind

		for k := *hi; k < n; k++ {
			j = cols[k]
			credIJ := cost[i][j] - v[j] - h

			if credIJ < d[j] {
				d[j] = credIJ
				pred[j] = i

				if credIJ == mind {
					if y[j] < 0 {
						return j
					}

					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}

	return -1
}

// findPathDense runs one iteration of the modified Dijkstra shortest path
// search from the JV paper over a dense matrix
func findPathDense(n int, cost [][]float64, startI int, y []int, v []float64,
	pred []int) int {

	lo := 0
	hi := 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)

	for i := 0; i < n; i++ {
		cols[i] = i
		pred[i] = startI
		d[i] = cost[startI][i] - v[i]
	}

	for finalJ == -1 {
		// no columns left on the SCAN list
		if lo == hi {
			nReady = lo
			hi = findDense(n, lo, d, cols)

			for k := lo; k < hi; k++ {
				j := cols[k]

				if y[j] < 0 {
					finalJ = j
				}
			}
		}

		if finalJ == -1 {
			finalJ = scanDense(n, cost, &lo, &hi, d, cols, pred, y, v)
		}
	}

	mind := d[cols[lo]]

	for k := 0; k < nReady; k++ {
		j := cols[k]
		v[j] += d[j] - mind
	}

	return finalJ
}

// caDense augments the partial solution for each remaining free row
func caDense(n int, cost [][]float64, nFreeRows int, freeRows,
	x, y []int, v []float64) error {

	pred := make([]int, n)

	for _, freeI := range freeRows[:nFreeRows] {

		i := -1
		k := 0

		j := findPathDense(n, cost, freeI, y, v, pred)

		if j < 0 || j >= n {
			return errors.Errorf("augmentation produced invalid column %d", j)
		}

		for i != freeI {

			i = pred[j]
			y[j] = i
			j, x[i] = x[i], j
			k++

			if k >= n {
				return errors.New("augmentation cycled without termination")
			}
		}
	}

	return nil
}
