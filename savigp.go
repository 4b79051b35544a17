package savigp

import (
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// SAVIGP is a sparse variational Gaussian Process: M inducing inputs Z and a
// variational posterior q(u) over the latent function at Z. The objective is
// the evidence lower bound
//
//	ELBO = E_q[log p(Y | f)] + E_q[log p(u)] + H[q(u)]
//
// where the expected log-likelihood is closed form for likelihoods that
// implement GaussianExpectation and a Monte Carlo estimate over nSamples
// fixed base draws otherwise.
//
// Two posterior families are available: NewDiag (mixture of K diagonal
// Gaussians, entropy replaced by its Jensen bound) and NewFull (one Gaussian
// with full covariance, exact entropy).
type SAVIGP struct {
	x, z   *mat.Dense
	y      []float64
	kernel *RBF
	lik    Likelihood
	post   posterior

	// eps are standard normal base samples shared by every Monte Carlo
	// estimate so the objective is deterministic.
	eps []float64

	// ks caches the kernel-dependent matrices for the current
	// hyperparameters. Nil means stale.
	ks *kernelState

	logger *zap.Logger
}

// kernelState holds everything the ELBO needs that depends only on the
// kernel hyperparameters.
type kernelState struct {
	chol   *mat.Cholesky
	kinv   *mat.SymDense
	logDet float64

	// a is Kxz Kzz^-1 (N×M), a2 its element-wise square.
	a, a2 *mat.Dense

	// kt is the conditional prior variance k(x,x) - a·k(z,x) per row.
	kt []float64
}

//////
// Factory.
//////

// NewDiag builds a SAVIGP whose posterior is a mixture of numComponents
// Gaussians with diagonal covariances.
//
// Parameters:
// - X, Y: training inputs (n×d) and targets (n×1)
// - numInducing: number of inducing inputs, drawn without replacement from X
// - numComponents: number of mixture components
// - lik: conditional likelihood; owned by the model afterwards
// - kernel: covariance function; cloned
// - nSamples: Monte Carlo draws, only used without a closed-form likelihood
// - rng: randomness for inducing inputs, initial means and base samples
//
// Usage example:
//
//	rng := rand.New(rand.NewSource(12000))
//	m, err := NewDiag(Xtrain, Ytrain, 300, 2, NewUnivariateGaussian(1), NewRBF(1, 1), 10000, rng)
//	if err != nil {
//	    return err
//	}
//	_ = m.Optimize(OptimizeOptions{Groups: []ParamGroup{GroupMoG, GroupHyp, GroupLikelihood}})
func NewDiag(
	X, Y *mat.Dense,
	numInducing, numComponents int,
	lik Likelihood,
	kernel *RBF,
	nSamples int,
	rng *rand.Rand,
	opts ...ModelOption,
) (*SAVIGP, error) {
	if numComponents < 1 {
		return nil, invalidArgument("need at least one mixture component, got %d", numComponents)
	}

	return newSAVIGP(X, Y, numInducing, lik, kernel, nSamples, rng, func(m int, rng *rand.Rand) posterior {
		return newDiagMixture(numComponents, m, rng)
	}, opts)
}

// NewFull builds a SAVIGP whose posterior is a single Gaussian with full
// covariance. Arguments are as for NewDiag.
func NewFull(
	X, Y *mat.Dense,
	numInducing int,
	lik Likelihood,
	kernel *RBF,
	nSamples int,
	rng *rand.Rand,
	opts ...ModelOption,
) (*SAVIGP, error) {
	return newSAVIGP(X, Y, numInducing, lik, kernel, nSamples, rng, func(m int, _ *rand.Rand) posterior {
		return newFullGaussian(m)
	}, opts)
}

func newSAVIGP(
	X, Y *mat.Dense,
	numInducing int,
	lik Likelihood,
	kernel *RBF,
	nSamples int,
	rng *rand.Rand,
	build func(m int, rng *rand.Rand) posterior,
	opts []ModelOption,
) (*SAVIGP, error) {
	n := numRows(X)
	if n == 0 {
		return nil, invalidArgument("no training data")
	}

	if n != numRows(Y) {
		return nil, invalidArgument("X has %d rows, Y has %d", n, numRows(Y))
	}

	if numCols(Y) != 1 {
		return nil, invalidArgument("only single-output models are supported, Y has %d columns", numCols(Y))
	}

	if lik == nil || kernel == nil {
		return nil, invalidArgument("likelihood and kernel are required")
	}

	if lik.Sigma() <= 0 {
		return nil, invalidArgument("noise variance must be positive, got %g", lik.Sigma())
	}

	if err := kernel.Validate(numCols(X)); err != nil {
		return nil, err
	}

	_, closedForm := lik.(GaussianExpectation)
	if !closedForm && nSamples < 1 {
		return nil, invalidArgument("likelihood needs Monte Carlo samples, got %d", nSamples)
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	o := applyModelOptions(opts)

	z := o.inducing
	if z == nil {
		if numInducing < 1 || numInducing > n {
			return nil, invalidArgument("number of inducing points must be in [1, %d], got %d", n, numInducing)
		}

		z = mat.NewDense(numInducing, numCols(X), nil)
		for i, idx := range rng.Perm(n)[:numInducing] {
			z.SetRow(i, X.RawRowView(idx))
		}
	} else if numCols(z) != numCols(X) {
		return nil, invalidArgument("inducing inputs have %d columns, X has %d", numCols(z), numCols(X))
	}

	m := &SAVIGP{
		x:      mat.DenseCopyOf(X),
		z:      mat.DenseCopyOf(z),
		y:      column(Y, 0),
		kernel: kernel.Clone(),
		lik:    lik,
		post:   build(numRows(z), rng),
		logger: o.logger,
	}

	if !closedForm {
		m.eps = make([]float64, nSamples)
		for i := range m.eps {
			m.eps[i] = rng.NormFloat64()
		}
	}

	if _, err := m.state(); err != nil {
		return nil, err
	}

	return m, nil
}

//////
// Methods.
//////

// newKernelState computes the kernel-dependent quantities for inputs x and
// inducing inputs z.
func newKernelState(kernel *RBF, x, z *mat.Dense) (*kernelState, error) {
	xs, zs := rowsOf(x), rowsOf(z)

	chol, err := choleskyWithJitter(kernel.Sym(zs))
	if err != nil {
		return nil, err
	}

	var kinv mat.SymDense
	if err := chol.InverseTo(&kinv); err != nil {
		return nil, invalidArgument("inverting inducing covariance: %v", err)
	}

	kxz := kernel.Matrix(xs, zs)

	var at mat.Dense
	if err := chol.SolveTo(&at, kxz.T()); err != nil {
		return nil, invalidArgument("projecting onto inducing inputs: %v", err)
	}

	a := mat.DenseCopyOf(at.T())
	n, _ := a.Dims()

	a2 := mat.NewDense(n, numRows(z), nil)
	a2.MulElem(a, a)

	kt := make([]float64, n)
	for i := range kt {
		kt[i] = math.Max(kernel.Variance-floats.Dot(a.RawRowView(i), kxz.RawRowView(i)), 0)
	}

	return &kernelState{
		chol:   chol,
		kinv:   &kinv,
		logDet: chol.LogDet(),
		a:      a,
		a2:     a2,
		kt:     kt,
	}, nil
}

// state returns the cached kernel state, recomputing it if stale.
func (m *SAVIGP) state() (*kernelState, error) {
	if m.ks != nil {
		return m.ks, nil
	}

	ks, err := newKernelState(m.kernel, m.x, m.z)
	if err != nil {
		return nil, err
	}

	m.ks = ks

	return ks, nil
}

// expectation is the expected log-likelihood term for one observation.
func (m *SAVIGP) expectation(y, mean, variance float64) (float64, float64, float64) {
	if ge, ok := m.lik.(GaussianExpectation); ok {
		return ge.ExpectedLogDensity(y, mean, variance)
	}

	sd := math.Sqrt(variance)

	var value, dMean, dVar float64

	for _, e := range m.eps {
		g := m.lik.LogDensity(y, mean+sd*e)
		value += g
		dMean += g * e / sd
		dVar += g * (e*e - 1) / (2 * variance)
	}

	n := float64(len(m.eps))

	return value / n, dMean / n, dVar / n
}

// ELBO returns the evidence lower bound at the current parameters, or -Inf
// if the inducing covariance cannot be factorised.
func (m *SAVIGP) ELBO() float64 {
	ks, err := m.state()
	if err != nil {
		return math.Inf(-1)
	}

	return m.post.elbo(m.post.params(), ks, m.y, m.expectation, nil)
}

// Optimize maximises the ELBO with L-BFGS, cycling through opts.Groups
// (default: mog, hyp, ll). Running out of iterations is not an error; the
// best parameters found are kept.
func (m *SAVIGP) Optimize(opts OptimizeOptions) error {
	logger := m.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}

	start := m.ELBO()

	final, err := optimizeGroups(m, opts, []ParamGroup{GroupMoG, GroupHyp, GroupLikelihood}, logger, lbfgs)
	if err != nil {
		return err
	}

	logger.Info("variational model optimised",
		zap.String("kind", m.Kind()),
		zap.Float64("elbo_start", start),
		zap.Float64("elbo", -final),
		zap.Float64s("kernel", m.kernel.ParamValues()),
		zap.Float64("sigma", m.lik.Sigma()),
	)

	return nil
}

// Predict returns the predictive mean and variance of y (noise included) for
// each row of Xnew.
func (m *SAVIGP) Predict(Xnew *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if numRows(Xnew) == 0 {
		return nil, nil, invalidArgument("no inputs to predict")
	}

	if numCols(Xnew) != numCols(m.x) {
		return nil, nil, invalidArgument("inputs have %d columns, model was trained on %d", numCols(Xnew), numCols(m.x))
	}

	ks, err := m.state()
	if err != nil {
		return nil, nil, err
	}

	kzs := m.kernel.Matrix(rowsOf(m.z), rowsOf(Xnew))

	var a mat.Dense
	if err := ks.chol.SolveTo(&a, kzs); err != nil {
		return nil, nil, invalidArgument("projecting onto inducing inputs: %v", err)
	}

	rows := numRows(Xnew)
	means := make([]float64, rows)
	variances := make([]float64, rows)
	sigma := m.lik.Sigma()

	for i := 0; i < rows; i++ {
		ai := mat.Col(nil, i, &a)
		kt := math.Max(m.kernel.Variance-floats.Dot(ai, mat.Col(nil, i, kzs)), 0)

		mean, variance := m.post.predict(ai, kt)
		means[i] = mean
		variances[i] = variance + sigma
	}

	return mat.NewDense(rows, 1, means), mat.NewDense(rows, 1, variances), nil
}

// Inducing returns a copy of the inducing inputs.
func (m *SAVIGP) Inducing() *mat.Dense { return mat.DenseCopyOf(m.z) }

// Kind implements Model.
func (m *SAVIGP) Kind() string { return m.post.kind() }

// ParamNames implements Model: posterior, then kernel, then likelihood.
func (m *SAVIGP) ParamNames() []string {
	names := append(m.post.names(), m.kernel.ParamNames()...)

	return append(names, "ll_sigma")
}

// ParamValues implements Model.
func (m *SAVIGP) ParamValues() []float64 {
	values := append(m.post.values(), m.kernel.ParamValues()...)

	return append(values, m.lik.Sigma())
}

//////
// groupObjective.
//////

func (m *SAVIGP) supports(ParamGroup) bool { return true }

func (m *SAVIGP) groupParams(g ParamGroup) []float64 {
	switch g {
	case GroupMoG:
		return m.post.params()
	case GroupHyp:
		return m.kernel.Params()
	default:
		return []float64{math.Log(m.lik.Sigma())}
	}
}

func (m *SAVIGP) setGroupParams(g ParamGroup, p []float64) {
	switch g {
	case GroupMoG:
		m.post.setParams(p)
	case GroupHyp:
		m.kernel.SetParams(p)
		m.ks = nil
	default:
		m.lik.SetSigma(math.Exp(clampLog(p[0])))
	}
}

func (m *SAVIGP) negObjective(g ParamGroup, p, grad []float64) float64 {
	if g == GroupMoG {
		ks, err := m.state()
		if err != nil {
			return math.Inf(1)
		}

		value := m.post.elbo(p, ks, m.y, m.expectation, grad)
		if grad != nil {
			floats.Scale(-1, grad)
		}

		return -value
	}

	eval := func(q []float64) float64 {
		switch g {
		case GroupHyp:
			k := m.kernel.Clone()
			k.SetParams(q)

			ks, err := newKernelState(k, m.x, m.z)
			if err != nil {
				return math.Inf(1)
			}

			return -m.post.elbo(m.post.params(), ks, m.y, m.expectation, nil)
		default:
			ks, err := m.state()
			if err != nil {
				return math.Inf(1)
			}

			old := m.lik.Sigma()
			m.lik.SetSigma(math.Exp(clampLog(q[0])))
			defer m.lik.SetSigma(old)

			return -m.post.elbo(m.post.params(), ks, m.y, m.expectation, nil)
		}
	}

	if grad != nil {
		numericalGradient(grad, eval, p)
	}

	return eval(p)
}
