// Package matrix provides the batch-statistics helper the IMU
// initializer uses to cross-check its incremental Welford mean against
// a directly computed mean over the accumulated sample batch.
package matrix

import (
	"gonum.org/v1/gonum/mat"
)

// ColSums returns a slice containing m's column sums: m has one IMU
// sample per row (acc or gyro, 3 columns), so ColSums totals each axis
// across the batch. It panics if m is nil.
func ColSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	sum := make([]float64, cols)

	for i := 0; i < cols; i++ {
		sum[i] = mat.Sum(m.ColView(i))
	}

	return sum
}

// ColMeans returns m's column-wise sample mean: ColSums scaled by
// 1/rows. This is the batch mean initializer.BatchMean cross-checks
// against the running Welford mean once accumulation completes.
func ColMeans(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	means := ColSums(m)
	for i := range means {
		means[i] /= float64(rows)
	}
	return means
}
