package savigp

import (
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

// ExactGP implements exact Gaussian Process regression with an RBF kernel and
// a Gaussian likelihood. It is the full-covariance baseline compared against
// the variational model, and the surrogate of the initial hyperparameter
// search.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: observed input points (each point is a slice of float64)
// - Y: observed targets, one per point in X
// - kernel, lik: hyperparameters, owned by the model
// - chol, alpha: cached factorisation of K + sigma*I and (K + sigma*I)^-1 y
//
// Thread safety:
// - Predict and LogMarginalLikelihood take the read lock
// - Update and Optimize take the write lock
//
// Memory usage:
// - O(n^2) for the cached Cholesky factor.
type ExactGP struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the input points. Length of inner slices must be consistent.
	X [][]float64

	// Y stores the observed values at each point in X.
	Y []float64

	kernel *RBF
	lik    Likelihood

	// normalize standardises Y before fitting.
	normalize bool
	yMean     float64
	yStd      float64

	chol  *mat.Cholesky
	alpha *mat.VecDense

	logger *zap.Logger
}

//////
// Factory.
//////

// NewExactGP fits an exact GP to X (n×d) and Y (n×1). The kernel is cloned;
// the likelihood is owned by the model from here on.
//
// Usage example:
//
//	gp, err := NewExactGP(Xtrain, Ytrain, NewUnivariateGaussian(1), NewRBF(1, 1))
//	if err != nil {
//	    return err
//	}
//	_ = gp.Optimize(OptimizeOptions{MaxIterations: 200})
//	mean, variance, err := gp.Predict(Xtest)
func NewExactGP(X, Y *mat.Dense, lik Likelihood, kernel *RBF, opts ...ModelOption) (*ExactGP, error) {
	if numRows(X) == 0 {
		return nil, invalidArgument("exact GP needs at least one observation")
	}

	if numRows(X) != numRows(Y) {
		return nil, invalidArgument("X has %d rows, Y has %d", numRows(X), numRows(Y))
	}

	if numCols(Y) != 1 {
		return nil, invalidArgument("exact GP supports a single output, Y has %d columns", numCols(Y))
	}

	gp, err := newEmptyExactGP(numCols(X), lik, kernel, opts...)
	if err != nil {
		return nil, err
	}

	for i, row := range rowsOf(X) {
		gp.X = append(gp.X, append([]float64(nil), row...))
		gp.Y = append(gp.Y, Y.At(i, 0))
	}

	if err := gp.refit(); err != nil {
		return nil, err
	}

	return gp, nil
}

// newEmptyExactGP returns a model with no observations; Predict returns the
// prior until Update is called.
func newEmptyExactGP(d int, lik Likelihood, kernel *RBF, opts ...ModelOption) (*ExactGP, error) {
	if lik == nil || kernel == nil {
		return nil, invalidArgument("likelihood and kernel are required")
	}

	if lik.Sigma() <= 0 {
		return nil, invalidArgument("noise variance must be positive, got %g", lik.Sigma())
	}

	if err := kernel.Validate(d); err != nil {
		return nil, err
	}

	o := applyModelOptions(opts)

	return &ExactGP{
		kernel:    kernel.Clone(),
		lik:       lik,
		normalize: o.normalize,
		yStd:      1,
		logger:    o.logger,
	}, nil
}

//////
// Methods.
//////

// Update adds a new observation and refits the cached factorisation. The
// observation is committed only when the enlarged kernel matrix factorises;
// on error the model is left exactly as it was.
//
// Important notes:
// - Creates a deep copy of input slice x to prevent external modifications
// - O(n^3) per call; intended for the small surrogate of the search
func (gp *ExactGP) Update(x []float64, y float64) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if len(gp.X) > 0 && len(x) != len(gp.X[0]) {
		return invalidArgument("point has %d dimensions, model has %d", len(x), len(gp.X[0]))
	}

	if err := gp.kernel.Validate(len(x)); err != nil {
		return err
	}

	// Create deep copy of input to prevent external modifications
	newX := make([]float64, len(x))
	copy(newX, x)

	X := append(append(make([][]float64, 0, len(gp.X)+1), gp.X...), newX)
	Y := append(append(make([]float64, 0, len(gp.Y)+1), gp.Y...), y)

	chol, alpha, mean, std, err := gp.factorize(X, Y, gp.kernel, gp.lik.Sigma())
	if err != nil {
		return err
	}

	gp.X, gp.Y = X, Y
	gp.chol, gp.alpha, gp.yMean, gp.yStd = chol, alpha, mean, std

	return nil
}

// refit recomputes the factorisation. Callers hold the write lock.
func (gp *ExactGP) refit() error {
	chol, alpha, mean, std, err := gp.factorize(gp.X, gp.Y, gp.kernel, gp.lik.Sigma())
	if err != nil {
		return err
	}

	gp.chol, gp.alpha, gp.yMean, gp.yStd = chol, alpha, mean, std

	return nil
}

// factorize computes the Cholesky factor of K + sigma*I and the weights for
// the given observations and hyperparameters without touching the model.
func (gp *ExactGP) factorize(X [][]float64, Y []float64, kernel *RBF, sigma float64) (*mat.Cholesky, *mat.VecDense, float64, float64, error) {
	n := len(X)

	k := kernel.Sym(X)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, k.At(i, i)+sigma)
	}

	chol, err := choleskyWithJitter(k)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	y, mean, std := gp.targets(Y)

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, mat.NewVecDense(n, y)); err != nil {
		return nil, nil, 0, 0, invalidArgument("solving for GP weights: %v", err)
	}

	return chol, &alpha, mean, std, nil
}

// targets returns a copy of Y, standardised when normalize is set.
func (gp *ExactGP) targets(Y []float64) (y []float64, mean, std float64) {
	y = append([]float64(nil), Y...)
	if !gp.normalize || len(y) == 0 {
		return y, 0, 1
	}

	mean, std = stat.PopMeanStdDev(y, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	for i := range y {
		y[i] = (y[i] - mean) / std
	}

	return y, mean, std
}

// logMarginal evaluates the log marginal likelihood for the given
// hyperparameters. It returns -Inf when the kernel matrix cannot be
// factorised.
func (gp *ExactGP) logMarginal(kernel *RBF, sigma float64) float64 {
	chol, alpha, _, _, err := gp.factorize(gp.X, gp.Y, kernel, sigma)
	if err != nil {
		return math.Inf(-1)
	}

	y, _, _ := gp.targets(gp.Y)
	n := float64(len(y))

	return -0.5*floats.Dot(y, alpha.RawVector().Data) - 0.5*chol.LogDet() - 0.5*n*log2Pi
}

// LogMarginalLikelihood returns log p(Y | X, hyperparameters).
func (gp *ExactGP) LogMarginalLikelihood() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.logMarginal(gp.kernel, gp.lik.Sigma())
}

// PredictPoint estimates the predictive mean and variance of y at x.
//
// Returns:
// - mean: predictive mean
// - variance: predictive variance including the noise variance
//
// Important notes:
// - Returns the prior (0, variance + noise) if no observations exist, or if
//   x cannot be predicted (wrong dimension)
// - Thread-safe (uses read lock)
func (gp *ExactGP) PredictPoint(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	prior := gp.kernel.Variance + gp.lik.Sigma()

	if len(gp.X) == 0 {
		return 0, prior
	}

	means, variances, err := gp.predictRows([][]float64{x})
	if err != nil {
		gp.logger.Debug("falling back to the prior", zap.Error(err))

		return 0, prior
	}

	return means[0], variances[0]
}

// Predict returns the predictive mean and variance (noise included) for each
// row of Xnew.
func (gp *ExactGP) Predict(Xnew *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if numRows(Xnew) == 0 {
		return nil, nil, invalidArgument("no inputs to predict")
	}

	if len(gp.X) == 0 {
		return nil, nil, invalidArgument("cannot predict with a GP without observations")
	}

	means, variances, err := gp.predictRows(rowsOf(Xnew))
	if err != nil {
		return nil, nil, err
	}

	return mat.NewDense(len(means), 1, means), mat.NewDense(len(variances), 1, variances), nil
}

// predictRows assumes at least one observation and the read lock held.
func (gp *ExactGP) predictRows(xs [][]float64) (means, variances []float64, err error) {
	d := len(gp.X[0])
	for _, x := range xs {
		if len(x) != d {
			return nil, nil, invalidArgument("inputs have %d columns, model was trained on %d", len(x), d)
		}
	}

	ks := gp.kernel.Matrix(xs, gp.X)

	var mu mat.VecDense
	mu.MulVec(ks, gp.alpha)

	var w mat.Dense
	if err := gp.chol.SolveTo(&w, ks.T()); err != nil {
		return nil, nil, invalidArgument("solving predictive variance: %v", err)
	}

	means = make([]float64, len(xs))
	variances = make([]float64, len(xs))

	for i := range xs {
		q := mat.Dot(ks.RowView(i), w.ColView(i))
		v := math.Max(gp.kernel.Variance-q, varianceFloor) + gp.lik.Sigma()

		means[i] = mu.AtVec(i)*gp.yStd + gp.yMean
		variances[i] = v * gp.yStd * gp.yStd
	}

	return means, variances, nil
}

// Optimize maximises the log marginal likelihood with BFGS over the kernel
// ("hyp") and noise ("ll") groups. The "mog" group does not apply and is
// skipped. Running out of iterations is not an error.
func (gp *ExactGP) Optimize(opts OptimizeOptions) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if len(gp.X) == 0 {
		return invalidArgument("cannot optimise a GP without observations")
	}

	final, err := optimizeGroups(gp, opts, []ParamGroup{GroupHyp, GroupLikelihood}, gp.logger, bfgs)
	if err != nil {
		return err
	}

	gp.logger.Info("exact GP optimised",
		zap.Float64("log_marginal_likelihood", -final),
		zap.Float64s("kernel", gp.kernel.ParamValues()),
		zap.Float64("sigma", gp.lik.Sigma()),
	)

	return gp.refit()
}

// ParamNames implements Model.
func (gp *ExactGP) ParamNames() []string {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return append(gp.kernel.ParamNames(), "ll_sigma")
}

// ParamValues implements Model.
func (gp *ExactGP) ParamValues() []float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return append(gp.kernel.ParamValues(), gp.lik.Sigma())
}

// Kind implements Model.
func (gp *ExactGP) Kind() string { return "gp.ExactGP" }

//////
// groupObjective.
//////

func (gp *ExactGP) supports(g ParamGroup) bool {
	return g == GroupHyp || g == GroupLikelihood
}

func (gp *ExactGP) groupParams(g ParamGroup) []float64 {
	if g == GroupHyp {
		return gp.kernel.Params()
	}

	return []float64{math.Log(gp.lik.Sigma())}
}

func (gp *ExactGP) setGroupParams(g ParamGroup, p []float64) {
	if g == GroupHyp {
		gp.kernel.SetParams(p)

		return
	}

	gp.lik.SetSigma(math.Exp(clampLog(p[0])))
}

func (gp *ExactGP) negObjective(g ParamGroup, p, grad []float64) float64 {
	eval := func(q []float64) float64 {
		if g == GroupHyp {
			k := gp.kernel.Clone()
			k.SetParams(q)

			return -gp.logMarginal(k, gp.lik.Sigma())
		}

		return -gp.logMarginal(gp.kernel, math.Exp(clampLog(q[0])))
	}

	if grad != nil {
		numericalGradient(grad, eval, p)
	}

	return eval(p)
}
