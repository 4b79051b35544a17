package savigp

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// indexedData returns X with rows [i, 10i] and Y with rows [100i], so every
// row can be traced back to its index.
func indexedData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	Y := mat.NewDense(n, 1, nil)

	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(10*i))
		Y.Set(i, 0, float64(100*i))
	}

	return X, Y
}

func TestSplitPartitionsRows(t *testing.T) {
	X, Y := indexedData(50)

	Xtrain, Ytrain, Xtest, Ytest, err := Split(X, Y, 30, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 30, numRows(Xtrain))
	assert.Equal(t, 30, numRows(Ytrain))
	assert.Equal(t, 20, numRows(Xtest))
	assert.Equal(t, 20, numRows(Ytest))

	var seen []int

	for _, part := range []struct{ x, y *mat.Dense }{{Xtrain, Ytrain}, {Xtest, Ytest}} {
		for i := 0; i < numRows(part.x); i++ {
			idx := part.x.At(i, 0)

			// Rows travel together.
			assert.Equal(t, 10*idx, part.x.At(i, 1))
			assert.Equal(t, 100*idx, part.y.At(i, 0))

			seen = append(seen, int(idx))
		}
	}

	sort.Ints(seen)

	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestSplitDoesNotMutateInputs(t *testing.T) {
	X, Y := indexedData(10)
	Xc, Yc := mat.DenseCopyOf(X), mat.DenseCopyOf(Y)

	_, _, _, _, err := Split(X, Y, 4, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	assert.True(t, mat.Equal(X, Xc))
	assert.True(t, mat.Equal(Y, Yc))
}

func TestSplitIsReproducibleForASeed(t *testing.T) {
	X, Y := indexedData(20)

	a, _, _, _, err := Split(X, Y, 10, rand.New(rand.NewSource(12000)))
	require.NoError(t, err)

	b, _, _, _, err := Split(X, Y, 10, rand.New(rand.NewSource(12000)))
	require.NoError(t, err)

	assert.True(t, mat.Equal(a, b))
}

func TestSplitEdges(t *testing.T) {
	X, Y := indexedData(5)

	Xtrain, _, Xtest, _, err := Split(X, Y, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, Xtrain)
	assert.Equal(t, 5, numRows(Xtest))

	Xtrain, _, Xtest, _, err = Split(X, Y, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, numRows(Xtrain))
	assert.Nil(t, Xtest)
}

func TestSplitRejectsBadArguments(t *testing.T) {
	X, Y := indexedData(5)

	_, _, _, _, err := Split(X, Y, 6, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, _, _, _, err = Split(X, Y, -1, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, Yshort := indexedData(4)
	_, _, _, _, err = Split(X, Yshort, 2, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
