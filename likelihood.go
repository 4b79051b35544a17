package savigp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Likelihood is the conditional likelihood p(y | f) of a single output.
//
// Sigma is the noise variance; it is the parameter exposed to the "ll"
// optimisation group and to the exact GP baseline.
type Likelihood interface {
	Sigma() float64
	SetSigma(sigma float64)
	LogDensity(y, f float64) float64
}

// GaussianExpectation is implemented by likelihoods whose expected log
// density under a Gaussian f has a closed form. Variational models use it in
// place of Monte Carlo estimation.
type GaussianExpectation interface {
	// ExpectedLogDensity returns E[log p(y|f)] for f ~ N(mean, variance) and
	// its derivatives with respect to mean and variance.
	ExpectedLogDensity(y, mean, variance float64) (value, dMean, dVariance float64)
}

// gaussianExpectedLogDensity is the closed form for a Gaussian likelihood
// with noise variance sigma.
func gaussianExpectedLogDensity(sigma, y, mean, variance float64) (value, dMean, dVariance float64) {
	diff := y - mean
	value = -0.5*(log2Pi+math.Log(sigma)) - (diff*diff+variance)/(2*sigma)

	return value, diff / sigma, -0.5 / sigma
}

func gaussianLogDensity(sigma, y, f float64) float64 {
	diff := y - f

	return -0.5*(log2Pi+math.Log(sigma)) - diff*diff/(2*sigma)
}

//////
// Univariate Gaussian.
//////

// UnivariateGaussian is y = f + e with e ~ N(0, sigma).
type UnivariateGaussian struct {
	sigma float64
}

// NewUnivariateGaussian returns a Gaussian likelihood with noise variance
// sigma.
func NewUnivariateGaussian(sigma float64) *UnivariateGaussian {
	return &UnivariateGaussian{sigma: sigma}
}

// Sigma returns the noise variance.
func (l *UnivariateGaussian) Sigma() float64 { return l.sigma }

// SetSigma sets the noise variance.
func (l *UnivariateGaussian) SetSigma(sigma float64) { l.sigma = sigma }

// LogDensity returns log N(y; f, sigma).
func (l *UnivariateGaussian) LogDensity(y, f float64) float64 {
	return gaussianLogDensity(l.sigma, y, f)
}

// ExpectedLogDensity implements GaussianExpectation.
func (l *UnivariateGaussian) ExpectedLogDensity(y, mean, variance float64) (float64, float64, float64) {
	return gaussianExpectedLogDensity(l.sigma, y, mean, variance)
}

//////
// Multivariate Gaussian.
//////

// MultivariateGaussian holds a full noise covariance over the outputs. The
// models in this package have a single output, so only the leading entry
// enters the objective; SetSigma rescales the whole matrix so its leading
// entry becomes sigma.
type MultivariateGaussian struct {
	cov *mat.SymDense
}

// NewMultivariateGaussian builds the likelihood from a square, symmetric
// covariance with a positive diagonal.
func NewMultivariateGaussian(cov [][]float64) (*MultivariateGaussian, error) {
	n := len(cov)
	if n == 0 {
		return nil, invalidArgument("noise covariance is empty")
	}

	sym := mat.NewSymDense(n, nil)
	for i := range cov {
		if len(cov[i]) != n {
			return nil, invalidArgument("noise covariance is not square: row %d has %d entries", i, len(cov[i]))
		}

		if cov[i][i] <= 0 {
			return nil, invalidArgument("noise covariance diagonal entry %d must be positive", i)
		}

		for j := i; j < n; j++ {
			if cov[i][j] != cov[j][i] {
				return nil, invalidArgument("noise covariance is not symmetric at (%d, %d)", i, j)
			}

			sym.SetSym(i, j, cov[i][j])
		}
	}

	return &MultivariateGaussian{cov: sym}, nil
}

// Sigma returns the leading noise variance.
func (l *MultivariateGaussian) Sigma() float64 { return l.cov.At(0, 0) }

// SetSigma rescales the covariance so Sigma returns sigma.
func (l *MultivariateGaussian) SetSigma(sigma float64) {
	l.cov.ScaleSym(sigma/l.cov.At(0, 0), l.cov)
}

// Cov returns a copy of the noise covariance.
func (l *MultivariateGaussian) Cov() *mat.SymDense {
	return mat.NewSymDense(l.cov.SymmetricDim(), append([]float64(nil), l.cov.RawSymmetric().Data...))
}

// LogDensity returns log N(y; f, Sigma()).
func (l *MultivariateGaussian) LogDensity(y, f float64) float64 {
	return gaussianLogDensity(l.Sigma(), y, f)
}

// ExpectedLogDensity implements GaussianExpectation.
func (l *MultivariateGaussian) ExpectedLogDensity(y, mean, variance float64) (float64, float64, float64) {
	return gaussianExpectedLogDensity(l.Sigma(), y, mean, variance)
}
