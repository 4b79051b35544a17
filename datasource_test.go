package savigp

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestNormal1D(t *testing.T) {
	X, Y, err := Normal1D(200, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 200, numRows(X))
	assert.Equal(t, 1, numCols(X))

	// Without noise the targets are exactly sin(3x).
	for i := 0; i < 200; i++ {
		assert.InDelta(t, math.Sin(3*X.At(i, 0)), Y.At(i, 0), 1e-12)
	}

	_, _, err = Normal1D(0, 0.1, nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func writeDataset(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadDelimitedWhitespace(t *testing.T) {
	path := writeDataset(t, "# housing\n 0.1  2   24.0\n0.3 4 21.5\n\n")

	X, Y, err := LoadDelimited(path, DelimitedOptions{Target: -1})
	require.NoError(t, err)

	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{0.1, 2, 0.3, 4}), X))
	assert.True(t, mat.Equal(mat.NewDense(2, 1, []float64{24, 21.5}), Y))
}

func TestLoadDelimitedCSVWithHeader(t *testing.T) {
	path := writeDataset(t, "y,a,b\n1,2,3\n4,5,6\n")

	X, Y, err := LoadDelimited(path, DelimitedOptions{Delimiter: ",", SkipHeader: true})
	require.NoError(t, err)

	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{2, 3, 5, 6}), X))
	assert.True(t, mat.Equal(mat.NewDense(2, 1, []float64{1, 4}), Y))
}

func TestLoadDelimitedErrors(t *testing.T) {
	_, _, err := LoadDelimited(filepath.Join(t.TempDir(), "none"), DelimitedOptions{})
	assert.True(t, errors.Is(err, ErrIOFailure))

	_, _, err = LoadDelimited(writeDataset(t, "1 2\n3 x\n"), DelimitedOptions{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, _, err = LoadDelimited(writeDataset(t, "1 2\n3\n"), DelimitedOptions{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, _, err = LoadDelimited(writeDataset(t, "1 2\n"), DelimitedOptions{Target: 5})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestStandardize(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})

	s := Standardize(m)

	mean, std := stat.PopMeanStdDev(column(s, 0), nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)

	assert.Equal(t, []float64{0, 0, 0, 0}, column(s, 1))
	assert.Equal(t, 1.0, m.At(0, 0))
}
