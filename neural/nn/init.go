package nn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func uniform(data []float64, lo, hi float64, rng *rand.Rand) {
	for i := range data {
		data[i] = lo + (hi-lo)*rng.Float64()
	}
}

// xavierBlocks fills a [rows, blocks*width] matrix with Xavier-uniform values,
// sizing the bound per gate block of width columns.
func xavierBlocks(data []float64, rows, width, blocks int, rng *rand.Rand) {
	bound := math.Sqrt(6.0 / float64(rows+width))
	cols := width * blocks
	for r := 0; r < rows; r++ {
		uniform(data[r*cols:(r+1)*cols], -bound, bound, rng)
	}
}

// orthogonalBlocks fills each [n, n] gate block of a [n, blocks*n] matrix with
// a random orthogonal matrix taken from the QR decomposition of a Gaussian one.
func orthogonalBlocks(data []float64, n, blocks int, rng *rand.Rand) {
	cols := n * blocks
	for b := 0; b < blocks; b++ {
		gauss := make([]float64, n*n)
		for i := range gauss {
			gauss[i] = rng.NormFloat64()
		}
		var qr mat.QR
		qr.Factorize(mat.NewDense(n, n, gauss))
		var q, r mat.Dense
		qr.QTo(&q)
		qr.RTo(&r)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := q.At(i, j)
				// Sign correction makes the distribution uniform over orthogonal matrices.
				if r.At(j, j) < 0 {
					v = -v
				}
				data[i*cols+b*n+j] = v
			}
		}
	}
}
