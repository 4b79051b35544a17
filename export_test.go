package savigp

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// stubModel predicts a constant and records nothing else. A non-nil err is
// returned by Predict.
type stubModel struct {
	mean, variance float64
	names          []string
	values         []float64
	err            error
}

func (s *stubModel) Optimize(OptimizeOptions) error { return nil }

func (s *stubModel) Predict(X *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if s.err != nil {
		return nil, nil, s.err
	}

	n := numRows(X)
	mean := mat.NewDense(n, 1, nil)
	variance := mat.NewDense(n, 1, nil)

	for i := 0; i < n; i++ {
		mean.Set(i, 0, s.mean)
		variance.Set(i, 0, s.variance)
	}

	return mean, variance, nil
}

func (s *stubModel) ParamNames() []string { return s.names }

func (s *stubModel) ParamValues() []float64 { return s.values }

func (s *stubModel) Kind() string { return "stub.Constant" }

func readLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	var lines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	require.NoError(t, scanner.Err())

	return lines
}

func TestExportTrainRoundTrip(t *testing.T) {
	root := t.TempDir()

	X := mat.NewDense(3, 2, []float64{0.1, 1e-9, -2, 3.25, 1.0 / 3, 7})
	Y := mat.NewDense(3, 1, []float64{1.5, -0.25, 2.0 / 3})

	require.NoError(t, ExportTrain(root, "exp", X, Y))

	table, err := ReadTable(TrainPath(root, "exp"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Y0", "X0", "X1"}, table.Header)
	assert.Equal(t, 3, table.Rows)
	assert.Equal(t, column(Y, 0), table.Columns["Y0"])
	assert.Equal(t, column(X, 0), table.Columns["X0"])
	assert.Equal(t, column(X, 1), table.Columns["X1"])
}

func TestExportTestColumnOrder(t *testing.T) {
	root := t.TempDir()

	X := mat.NewDense(2, 1, []float64{1, 2})
	Ytrue := mat.NewDense(2, 1, []float64{3, 4})
	gpMean := mat.NewDense(2, 1, []float64{5, 6})
	gpVar := mat.NewDense(2, 1, []float64{7, 8})
	svMean := mat.NewDense(2, 1, []float64{9, 10})
	svVar := mat.NewDense(2, 1, []float64{11, 12})

	err := ExportTest(root, "exp", X, Ytrue,
		[]*mat.Dense{gpMean, svMean},
		[]*mat.Dense{gpVar, svVar},
		[]string{"gp", "savigp"},
	)
	require.NoError(t, err)

	lines := readLines(t, TestPath(root, "exp"))
	require.Len(t, lines, 3)

	assert.Equal(t, "Ytrue0,Ypred_gp_0,Ypred_savigp_0,Yvar_pred_gp_0,Yvar_pred_savigp_0,X0", lines[0])
	assert.Equal(t, "3,5,9,7,11,1", lines[1])
	assert.Equal(t, "4,6,10,8,12,2", lines[2])
}

func TestExportTestRejectsMismatchedLists(t *testing.T) {
	root := t.TempDir()

	X := mat.NewDense(2, 1, []float64{1, 2})
	Y := mat.NewDense(2, 1, []float64{3, 4})
	short := mat.NewDense(1, 1, []float64{5})

	err := ExportTest(root, "exp", X, Y, []*mat.Dense{Y}, nil, []string{"gp"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	err = ExportTest(root, "exp", X, Y, []*mat.Dense{short}, []*mat.Dense{short}, []string{"gp"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, statErr := os.Stat(TestPath(root, "exp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportTestRejectsDuplicateModelNames(t *testing.T) {
	root := t.TempDir()

	X := mat.NewDense(2, 1, []float64{1, 2})
	Y := mat.NewDense(2, 1, []float64{3, 4})

	err := ExportTest(root, "exp", X, Y, []*mat.Dense{Y, Y}, []*mat.Dense{Y, Y}, []string{"gp", "gp"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	err = ExportTest(root, "exp", X, Y, []*mat.Dense{Y}, []*mat.Dense{Y}, []string{""})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, statErr := os.Stat(TestPath(root, "exp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportModelIsIdempotent(t *testing.T) {
	root := t.TempDir()

	model := &stubModel{
		names:  []string{"rbf_variance", "ll_sigma"},
		values: []float64{1.25, 0.5},
	}

	require.NoError(t, ExportModel(root, "exp", model))

	first, err := os.ReadFile(ModelPath(root, "exp"))
	require.NoError(t, err)

	require.NoError(t, ExportModel(root, "exp", model))

	second, err := os.ReadFile(ModelPath(root, "exp"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "#model,stub.Constant\nrbf_variance,1.25\nll_sigma,0.5\n", string(second))
}

func TestExportModelNilIsNoop(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, ExportModel(root, "exp", nil))

	_, err := os.Stat(ExperimentDir(root, "exp"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportTolerancesExistingDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "exp"), 0o755))

	X := mat.NewDense(1, 1, []float64{1})
	require.NoError(t, ExportTrain(root, "exp", X, X))
}

func TestExportFailureIsIOFailure(t *testing.T) {
	root := t.TempDir()

	// A file where the experiment directory should be.
	blocker := filepath.Join(root, "exp")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	X := mat.NewDense(1, 1, []float64{1})
	err := ExportTrain(root, "exp", X, X)
	assert.True(t, errors.Is(err, ErrIOFailure))
}

func TestExportFourHundredPointPipeline(t *testing.T) {
	root := t.TempDir()
	rng := rand.New(rand.NewSource(12000))

	X, Y, err := Normal1D(400, 0.01, rng)
	require.NoError(t, err)

	Xtrain, Ytrain, Xtest, Ytest, err := Split(X, Y, 300, rng)
	require.NoError(t, err)
	require.Equal(t, 100, numRows(Xtest))

	model := &stubModel{mean: 0, variance: 1, names: []string{"c"}, values: []float64{0}}

	mean, variance, err := model.Predict(Xtest)
	require.NoError(t, err)

	require.NoError(t, ExportTest(root, "normal_1D", Xtest, Ytest, []*mat.Dense{mean}, []*mat.Dense{variance}, []string{"stub"}))
	require.NoError(t, ExportTrain(root, "normal_1D", Xtrain, Ytrain))
	require.NoError(t, ExportModel(root, "normal_1D", model))

	train := readLines(t, TrainPath(root, "normal_1D"))
	assert.Len(t, train, 301)
	assert.Equal(t, "Y0,X0", train[0])

	test := readLines(t, TestPath(root, "normal_1D"))
	assert.Len(t, test, 101)
	assert.True(t, strings.HasPrefix(test[0], "Ytrue0,Ypred_stub_0,Yvar_pred_stub_0,X0"))
}
