package predictor

import (
	"math"
	"math/rand/v2"
)

// matrix is a dense row-major float64 matrix.
type matrix struct {
	rows, cols int
	w          []float64
}

func newMatrix(rows, cols int) matrix {
	return matrix{rows: rows, cols: cols, w: make([]float64, rows*cols)}
}

func (m matrix) row(i int) []float64 { return m.w[i*m.cols : (i+1)*m.cols] }

// mulVec computes dst = m·x + b.
func (m matrix) mulVec(dst, x, b []float64) {
	for i := range m.rows {
		r := m.row(i)
		s := b[i]
		for j, v := range r {
			s += v * x[j]
		}
		dst[i] = s
	}
}

// mulVecT accumulates dst += mᵀ·y.
func (m matrix) mulVecT(dst, y []float64) {
	for i := range m.rows {
		if y[i] == 0 {
			continue
		}
		r := m.row(i)
		for j, v := range r {
			dst[j] += v * y[i]
		}
	}
}

// addOuter accumulates m += y ⊗ x.
func (m matrix) addOuter(y, x []float64) {
	for i := range m.rows {
		if y[i] == 0 {
			continue
		}
		r := m.row(i)
		for j := range r {
			r[j] += y[i] * x[j]
		}
	}
}

// fillUniform sets every weight to U(-bound, bound).
func fillUniform(w []float64, bound float64, rng *rand.Rand) {
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
}

// fillNormal sets every weight to N(0, 1).
func fillNormal(w []float64, rng *rand.Rand) {
	for i := range w {
		w[i] = rng.NormFloat64()
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func sumSquares(w []float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v * v
	}
	return s
}

func scale(w []float64, f float64) {
	for i := range w {
		w[i] *= f
	}
}

// logSoftmax rewrites logits in place into log-probabilities.
func logSoftmax(logits []float64) {
	hi := math.Inf(-1)
	for _, v := range logits {
		hi = max(hi, v)
	}
	sum := 0.0
	for _, v := range logits {
		sum += math.Exp(v - hi)
	}
	lse := hi + math.Log(sum)
	for i := range logits {
		logits[i] -= lse
	}
}
