package preprocess

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// IQRFactor is the whisker multiplier for the outlier bounds.
const IQRFactor = 1.5

// FilterOutliers drops every row with at least one feature outside
// [Q1-1.5*IQR, Q3+1.5*IQR], quartiles computed per column from the input
// itself. One outlying feature discards the whole row; that is deliberately
// conservative and intended for training data only. No state survives the
// call.
func FilterOutliers(features *mat.Dense, target []float64) (*mat.Dense, []float64, error) {
	rows, cols := features.Dims()
	if target != nil && len(target) != rows {
		return nil, nil, fmt.Errorf("preprocess: target has %d values, features have %d rows", len(target), rows)
	}

	lower := make([]float64, cols)
	upper := make([]float64, cols)
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, features)
		sort.Float64s(col)
		q1 := stat.Quantile(0.25, stat.LinInterp, col, nil)
		q3 := stat.Quantile(0.75, stat.LinInterp, col, nil)
		iqr := q3 - q1
		lower[j] = q1 - IQRFactor*iqr
		upper[j] = q3 + IQRFactor*iqr
	}

	keep := make([]bool, rows)
	kept := 0
	for i := 0; i < rows; i++ {
		keep[i] = true
		for j := 0; j < cols; j++ {
			v := features.At(i, j)
			if v < lower[j] || v > upper[j] {
				keep[i] = false
				break
			}
		}
		if keep[i] {
			kept++
		}
	}

	if kept == 0 {
		return nil, nil, fmt.Errorf("preprocess: outlier filter removed every row")
	}

	out := mat.NewDense(kept, cols, nil)
	var outTarget []float64
	if target != nil {
		outTarget = make([]float64, 0, kept)
	}
	row := 0
	for i := 0; i < rows; i++ {
		if !keep[i] {
			continue
		}
		for j := 0; j < cols; j++ {
			out.Set(row, j, features.At(i, j))
		}
		if target != nil {
			outTarget = append(outTarget, target[i])
		}
		row++
	}
	return out, outTarget, nil
}
