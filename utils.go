package savigp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

const (
	log2Pi = 1.8378770664093453 // log(2π)

	// logBound limits every log-space parameter so exp never over- or
	// underflows during a line search.
	logBound = 15.0

	// maxJitterTries bounds the jitter escalation in choleskyWithJitter.
	maxJitterTries = 6

	// varianceFloor keeps predictive and marginal variances strictly positive.
	varianceFloor = 1e-12
)

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
//
// Returns:
// - Probability that a standard normal random variable is less than x.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
//
// Returns:
// - Value of the standard normal PDF at x.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// rowsOf returns the rows of m as slices sharing m's backing storage.
func rowsOf(m *mat.Dense) [][]float64 {
	if m == nil || m.IsEmpty() {
		return nil
	}

	r, _ := m.Dims()

	out := make([][]float64, r)
	for i := range out {
		out[i] = m.RawRowView(i)
	}

	return out
}

// column copies column j of m.
func column(m *mat.Dense, j int) []float64 {
	return mat.Col(nil, j, m)
}

// numRows returns 0 for nil or empty matrices.
func numRows(m *mat.Dense) int {
	if m == nil || m.IsEmpty() {
		return 0
	}

	r, _ := m.Dims()

	return r
}

// numCols returns 0 for nil or empty matrices.
func numCols(m *mat.Dense) int {
	if m == nil || m.IsEmpty() {
		return 0
	}

	_, c := m.Dims()

	return c
}

// clampLog keeps a log-space parameter inside [-logBound, logBound].
func clampLog(x float64) float64 {
	return math.Max(-logBound, math.Min(logBound, x))
}

// softmax maps unconstrained weights to mixture proportions.
func softmax(w []float64) []float64 {
	out := make([]float64, len(w))
	if len(w) == 0 {
		return out
	}

	lse := floats.LogSumExp(w)
	for i, v := range w {
		out[i] = math.Exp(v - lse)
	}

	return out
}

// choleskyWithJitter factorises k, adding increasing multiples of the mean
// diagonal to the diagonal until the factorisation succeeds. k is not
// modified.
func choleskyWithJitter(k *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if chol.Factorize(k) {
		return &chol, nil
	}

	n := k.SymmetricDim()

	var meanDiag float64
	for i := 0; i < n; i++ {
		meanDiag += k.At(i, i)
	}

	meanDiag /= float64(n)
	if meanDiag <= 0 || math.IsNaN(meanDiag) {
		return nil, invalidArgument("covariance matrix has non-positive diagonal")
	}

	jitter := meanDiag * 1e-6
	for try := 0; try < maxJitterTries; try++ {
		jittered := mat.NewSymDense(n, nil)
		jittered.CopySym(k)

		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, jittered.At(i, i)+jitter)
		}

		if chol.Factorize(jittered) {
			return &chol, nil
		}

		jitter *= 10
	}

	return nil, invalidArgument("covariance matrix is not positive definite, even with jitter %g", jitter/10)
}
