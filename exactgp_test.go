package savigp

import (
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// gridData samples sin(3x) on n evenly spaced points starting at -1.5.
func gridData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 1, nil)
	Y := mat.NewDense(n, 1, nil)

	for i := 0; i < n; i++ {
		x := -1.5 + 0.5*float64(i)
		X.Set(i, 0, x)
		Y.Set(i, 0, math.Sin(3*x))
	}

	return X, Y
}

func TestExactGPInterpolates(t *testing.T) {
	X, Y := gridData(7)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(1e-6), NewRBF(1, 0.5))
	require.NoError(t, err)

	mean, variance, err := gp.Predict(X)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		assert.InDelta(t, Y.At(i, 0), mean.At(i, 0), 1e-3)
		assert.Less(t, variance.At(i, 0), 1e-3)
	}
}

func TestExactGPPredictionIncludesNoise(t *testing.T) {
	X, Y := gridData(3)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(0.2), NewRBF(1, 0.5))
	require.NoError(t, err)

	// Far from the data the prediction falls back to the prior.
	_, variance, err := gp.Predict(mat.NewDense(1, 1, []float64{100}))
	require.NoError(t, err)

	assert.InDelta(t, 1.2, variance.At(0, 0), 1e-9)
}

func TestExactGPOptimizeImprovesLogMarginal(t *testing.T) {
	X, Y := gridData(7)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(1), NewRBF(1, 1))
	require.NoError(t, err)

	before := gp.LogMarginalLikelihood()

	require.NoError(t, gp.Optimize(OptimizeOptions{MaxIterations: 100}))

	assert.GreaterOrEqual(t, gp.LogMarginalLikelihood(), before)
	assert.Equal(t, []string{"rbf_variance", "rbf_lengthscale_0", "ll_sigma"}, gp.ParamNames())
	assert.Len(t, gp.ParamValues(), 3)
	assert.Equal(t, "gp.ExactGP", gp.Kind())
}

func TestExactGPOptimizeSkipsMoG(t *testing.T) {
	X, Y := gridData(4)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(1), NewRBF(1, 1))
	require.NoError(t, err)

	before := gp.ParamValues()

	require.NoError(t, gp.Optimize(OptimizeOptions{Groups: []ParamGroup{GroupMoG}}))
	assert.Equal(t, before, gp.ParamValues())

	err = gp.Optimize(OptimizeOptions{Groups: []ParamGroup{"bogus"}})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestExactGPDoesNotShareKernel(t *testing.T) {
	X, Y := gridData(5)
	kernel := NewRBF(1, 1)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(1), kernel)
	require.NoError(t, err)
	require.NoError(t, gp.Optimize(OptimizeOptions{MaxIterations: 20}))

	assert.Equal(t, 1.0, kernel.Variance)
	assert.Equal(t, []float64{1}, kernel.Lengthscales)
}

func TestExactGPValidation(t *testing.T) {
	X, Y := gridData(3)

	_, err := NewExactGP(mat.NewDense(2, 1, nil), Y, NewUnivariateGaussian(1), NewRBF(1))
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewExactGP(X, Y, NewUnivariateGaussian(0), NewRBF(1))
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(1), NewRBF(1))
	require.NoError(t, err)

	_, _, err = gp.Predict(mat.NewDense(1, 2, nil))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestExactGPUpdateAndConcurrentReads(t *testing.T) {
	gp, err := newEmptyExactGP(1, NewUnivariateGaussian(1e-3), NewRBF(2))
	require.NoError(t, err)

	mean, variance := gp.PredictPoint([]float64{0})
	assert.Equal(t, 0.0, mean)
	assert.InDelta(t, 2.001, variance, 1e-12)

	for i := 0; i < 5; i++ {
		require.NoError(t, gp.Update([]float64{float64(i)}, float64(i)))
	}

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			m, v := gp.PredictPoint([]float64{2})
			assert.InDelta(t, 2, m, 0.1)
			assert.Greater(t, v, 0.0)
		}()
	}

	wg.Wait()
}

func TestExactGPFailedUpdateLeavesModelIntact(t *testing.T) {
	X, Y := gridData(2)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(0.01), NewRBF(1, 0.5))
	require.NoError(t, err)

	mean, variance := gp.PredictPoint([]float64{-1.2})

	err = gp.Update([]float64{math.NaN()}, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	err = gp.Update([]float64{0, 1}, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	assert.Len(t, gp.X, 2)
	assert.Len(t, gp.Y, 2)

	m, v := gp.PredictPoint([]float64{-1.2})
	assert.Equal(t, mean, m)
	assert.Equal(t, variance, v)

	means, _, err := gp.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 2, means.RawMatrix().Rows)

	// The model still accepts valid points afterwards.
	require.NoError(t, gp.Update([]float64{0.5}, math.Sin(1.5)))
	assert.Len(t, gp.X, 3)
}

func TestExactGPPredictWithoutObservations(t *testing.T) {
	gp, err := newEmptyExactGP(1, NewUnivariateGaussian(1), NewRBF(1))
	require.NoError(t, err)

	_, _, err = gp.Predict(mat.NewDense(1, 1, nil))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestExactGPPredictPointWrongDimension(t *testing.T) {
	X, Y := gridData(3)

	gp, err := NewExactGP(X, Y, NewUnivariateGaussian(0.5), NewRBF(2))
	require.NoError(t, err)

	mean, variance := gp.PredictPoint([]float64{0, 0})
	assert.Equal(t, 0.0, mean)
	assert.InDelta(t, 2.5, variance, 1e-12)
}

func TestExactGPNormalizedOutputs(t *testing.T) {
	X, Y := gridData(6)

	shifted := mat.NewDense(6, 1, nil)
	for i := 0; i < 6; i++ {
		shifted.Set(i, 0, 1000+Y.At(i, 0))
	}

	gp, err := NewExactGP(X, shifted, NewUnivariateGaussian(1e-4), NewRBF(1, 0.5), WithNormalizedOutputs())
	require.NoError(t, err)

	mean, _, err := gp.Predict(X)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		assert.InDelta(t, shifted.At(i, 0), mean.At(i, 0), 0.05)
	}
}
