package tracker

import (
	"github.com/pkg/errors"
)

// iouDistance builds the association cost matrix 1 - IoU between the current
// boxes of two sets of tracks.  A cost of 1 means no overlap at all
func iouDistance(aTracks, bTracks []*STrack) [][]float32 {

	aBoxes := make([]Tlbr, len(aTracks))
	for i, track := range aTracks {
		aBoxes[i] = track.GetRect().GetTlbr()
	}

	bBoxes := make([]Tlbr, len(bTracks))
	for i, track := range bTracks {
		bBoxes[i] = track.GetRect().GetTlbr()
	}

	return iouCostMatrix(aBoxes, bBoxes)
}

// iouCostMatrix builds the 1 - IoU cost matrix for two sets of tlbr boxes
func iouCostMatrix(aBoxes, bBoxes []Tlbr) [][]float32 {

	ious := CalcIoUBatch(aBoxes, bBoxes)

	costMatrix := make([][]float32, len(ious))

	for i, iouRow := range ious {
		row := make([]float32, len(iouRow))
		for j, iou := range iouRow {
			row[j] = 1 - iou
		}
		costMatrix[i] = row
	}

	return costMatrix
}

// fuseScore blends detection confidence into an IoU cost matrix.  For each
// detection column the similarity 1 - cost is multiplied by that detection's
// score and the cost re-derived, which biases assignment toward higher
// confidence detections without a separate weighting parameter
func fuseScore(costMatrix [][]float32, detections []*STrack) [][]float32 {

	if len(costMatrix) == 0 {
		return costMatrix
	}

	fused := make([][]float32, len(costMatrix))

	for i, row := range costMatrix {
		fusedRow := make([]float32, len(row))
		for j, cost := range row {
			fusedRow[j] = 1 - (1-cost)*detections[j].GetScore()
		}
		fused[i] = fusedRow
	}

	return fused
}

// linearAssignment solves the bipartite assignment over the cost matrix with
// nRows tracks and nCols detections.  Pairs with cost at or above thresh are
// rejected and reported as unmatched on both sides.  An empty cost matrix
// yields no matches with every index unmatched
func linearAssignment(costMatrix [][]float32, nRows, nCols int,
	thresh float32) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {

	if len(costMatrix) == 0 {
		for i := 0; i < nRows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < nCols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return matches, unmatchedRows, unmatchedCols, nil
	}

	rowsol, colsol, err := solveLapjv(costMatrix, thresh)

	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "linear assignment failed")
	}

	matchedCols := make([]bool, nCols)

	for i, j := range rowsol {
		// the cost limit already prices out poor pairings, the explicit
		// check keeps the rejection boundary exact
		if j >= 0 && costMatrix[i][j] < thresh {
			matches = append(matches, [2]int{i, j})
			matchedCols[j] = true
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j := range colsol {
		if !matchedCols[j] {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return matches, unmatchedRows, unmatchedCols, nil
}
