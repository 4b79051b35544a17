package savigp

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNLPD(t *testing.T) {
	assert.InDelta(t, 2.1447, NLPD(2, 1, 0.5), 1e-4)
	assert.InDelta(t, math.Log(2*math.Pi), NLPD(1, 1, 1), 1e-12)
}

// writeExperiment exports a tiny experiment with two constant predictors.
func writeExperiment(t *testing.T, root string) {
	t.Helper()

	Xtrain := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	Ytrain := mat.NewDense(4, 1, []float64{1, 2, 3, 2}) // mean 2

	Xtest := mat.NewDense(2, 1, []float64{4, 5})
	Ytest := mat.NewDense(2, 1, []float64{1, 3})

	exact := mat.NewDense(2, 1, []float64{1, 3})
	offset := mat.NewDense(2, 1, []float64{2, 2})
	variance := mat.NewDense(2, 1, []float64{0.5, 0.5})

	require.NoError(t, ExportTrain(root, "exp", Xtrain, Ytrain))
	require.NoError(t, ExportTest(root, "exp", Xtest, Ytest,
		[]*mat.Dense{exact, offset},
		[]*mat.Dense{variance, variance},
		[]string{"gp", "savigp"},
	))
}

func TestLoadMetrics(t *testing.T) {
	root := t.TempDir()
	writeExperiment(t, root)

	m, err := LoadMetrics(root, "exp", []string{"gp", "savigp"})
	require.NoError(t, err)

	assert.Equal(t, []string{"gp", "savigp"}, m.Models)

	// Reference error: mean((2-1)^2, (2-3)^2) = 1.
	assert.Equal(t, []float64{0, 0}, m.SSE["gp"])
	assert.Equal(t, []float64{1, 1}, m.SSE["savigp"])

	assert.InDelta(t, 2.1447, m.NLPD["savigp"][0], 1e-4)
	assert.InDelta(t, math.Log(math.Pi), m.NLPD["gp"][1], 1e-12)

	summary := m.Summary()
	assert.InDelta(t, 1.0, summary["savigp"].MeanSSE, 1e-12)
	assert.InDelta(t, 0.0, summary["gp"].MeanSSE, 1e-12)
}

func TestLoadMetricsUnknownModel(t *testing.T) {
	root := t.TempDir()
	writeExperiment(t, root)

	_, err := LoadMetrics(root, "exp", []string{"missing"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestLoadMetricsMissingFiles(t *testing.T) {
	_, err := LoadMetrics(t.TempDir(), "exp", []string{"gp"})
	assert.True(t, errors.Is(err, ErrIOFailure))
}

func TestReadTableRejectsDuplicateColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.csv")
	require.NoError(t, os.WriteFile(path, []byte("Ytrue0,Ypred_gp_0,Ypred_gp_0\n1,2,3\n"), 0o644))

	_, err := ReadTable(path)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
