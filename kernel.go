package savigp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RBF implements the Radial Basis Function (squared exponential) kernel.
//
// Fields:
// - Variance: signal variance, k(x, x) = Variance
// - Lengthscales: one shared lengthscale, or one per input dimension (ARD)
//
// Mathematical formula:
//
//	k(x1, x2) = Variance * exp(-0.5 * sum_j ((x1_j - x2_j) / l_j)^2)
//
// An RBF is mutated in place by optimisation; models clone the kernel they
// are given so two models never share one.
type RBF struct {
	Variance     float64
	Lengthscales []float64
}

// NewRBF returns an RBF kernel. Without lengthscales a single lengthscale of
// 1 is used.
func NewRBF(variance float64, lengthscales ...float64) *RBF {
	if len(lengthscales) == 0 {
		lengthscales = []float64{1}
	}

	ls := make([]float64, len(lengthscales))
	copy(ls, lengthscales)

	return &RBF{Variance: variance, Lengthscales: ls}
}

// Clone returns a deep copy.
func (k *RBF) Clone() *RBF {
	return NewRBF(k.Variance, k.Lengthscales...)
}

func (k *RBF) lengthscale(j int) float64 {
	if len(k.Lengthscales) == 1 {
		return k.Lengthscales[0]
	}

	return k.Lengthscales[j]
}

// Validate checks the kernel can be evaluated on inputs of dimension d.
func (k *RBF) Validate(d int) error {
	if k.Variance <= 0 {
		return invalidArgument("kernel variance must be positive, got %g", k.Variance)
	}

	if len(k.Lengthscales) != 1 && len(k.Lengthscales) != d {
		return invalidArgument("kernel has %d lengthscales, inputs have %d dimensions", len(k.Lengthscales), d)
	}

	for j, l := range k.Lengthscales {
		if l <= 0 {
			return invalidArgument("lengthscale %d must be positive, got %g", j, l)
		}
	}

	return nil
}

// Eval returns the covariance between two points.
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns Variance for identical points
func (k *RBF) Eval(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := (x1[i] - x2[i]) / k.lengthscale(i)

		sum += diff * diff
	}

	return k.Variance * math.Exp(-0.5*sum)
}

// Matrix returns the len(x1)×len(x2) cross-covariance matrix.
func (k *RBF) Matrix(x1, x2 [][]float64) *mat.Dense {
	out := mat.NewDense(len(x1), len(x2), nil)
	for i := range x1 {
		row := out.RawRowView(i)
		for j := range x2 {
			row[j] = k.Eval(x1[i], x2[j])
		}
	}

	return out
}

// Sym returns the covariance matrix of x with itself.
func (k *RBF) Sym(x [][]float64) *mat.SymDense {
	n := len(x)

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, k.Variance)

		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, k.Eval(x[i], x[j]))
		}
	}

	return out
}

// Params returns the log-space parameters: log variance followed by the log
// lengthscales.
func (k *RBF) Params() []float64 {
	p := make([]float64, 1+len(k.Lengthscales))

	p[0] = math.Log(k.Variance)
	for i, l := range k.Lengthscales {
		p[i+1] = math.Log(l)
	}

	return p
}

// SetParams is the inverse of Params. Values are clamped to a safe range.
func (k *RBF) SetParams(p []float64) {
	k.Variance = math.Exp(clampLog(p[0]))
	for i := range k.Lengthscales {
		k.Lengthscales[i] = math.Exp(clampLog(p[i+1]))
	}
}

// ParamNames names the values returned by ParamValues.
func (k *RBF) ParamNames() []string {
	names := []string{"rbf_variance"}
	for i := range k.Lengthscales {
		names = append(names, fmt.Sprintf("rbf_lengthscale_%d", i))
	}

	return names
}

// ParamValues returns variance followed by the lengthscales.
func (k *RBF) ParamValues() []float64 {
	return append([]float64{k.Variance}, k.Lengthscales...)
}
