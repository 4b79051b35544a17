package savigp

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

//////
// Paths.
//////

// ExperimentDir is <root>/<name>.
func ExperimentDir(root, name string) string { return filepath.Join(root, name) }

// GraphDir is <root>/<name>/graphs.
func GraphDir(root, name string) string { return filepath.Join(root, name, "graphs") }

// TrainPath is <root>/<name>/train_<name>.csv.
func TrainPath(root, name string) string {
	return filepath.Join(root, name, "train_"+name+".csv")
}

// ModelPath is <root>/<name>/model_<name>.csv.
func ModelPath(root, name string) string {
	return filepath.Join(root, name, "model_"+name+".csv")
}

// TestPath is <root>/<name>/test_<name>.csv.
func TestPath(root, name string) string {
	return filepath.Join(root, name, "test_"+name+".csv")
}

// ensureDir creates dir and its parents; an existing directory is fine.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioFailure(err, "creating %s", dir)
	}

	return nil
}

//////
// Exported functionalities.
//////

// ExportTrain writes the training set to TrainPath with columns
// Y0..Yk-1 followed by X0..Xm-1, one row per observation.
func ExportTrain(root, name string, Xtrain, Ytrain *mat.Dense) error {
	n := numRows(Xtrain)
	if n != numRows(Ytrain) {
		return invalidArgument("Xtrain has %d rows, Ytrain has %d", n, numRows(Ytrain))
	}

	header := append(columnNames("Y%d", numCols(Ytrain)), columnNames("X%d", numCols(Xtrain))...)

	return writeMatrices(root, name, TrainPath(root, name), header, n, Ytrain, Xtrain)
}

// ExportModel writes the model's parameters to ModelPath: a "#model,<kind>"
// row followed by one "name,value" row per parameter. A nil model writes
// nothing and is not an error.
func ExportModel(root, name string, model Model) error {
	if model == nil {
		return nil
	}

	names, values := model.ParamNames(), model.ParamValues()
	if len(names) != len(values) {
		return invalidArgument("model reports %d parameter names and %d values", len(names), len(values))
	}

	records := make([][]string, 0, len(names)+1)
	records = append(records, []string{"#model", model.Kind()})

	for i := range names {
		records = append(records, []string{names[i], formatFloat(values[i])})
	}

	if err := ensureDir(ExperimentDir(root, name)); err != nil {
		return err
	}

	return writeRecords(ModelPath(root, name), records)
}

// ExportTest writes the test set and every model's predictions to TestPath.
// Columns are Ytrue<j>, Ypred_<model>_<j> for each model in order,
// Yvar_pred_<model>_<j> for each model in order, then X<j>.
//
// Ypred, Yvar and modelNames are matched by position and must have the same
// length; every matrix must have as many rows as X. Model names must be
// unique and non-empty.
func ExportTest(root, name string, X, Ytrue *mat.Dense, Ypred, Yvar []*mat.Dense, modelNames []string) error {
	if len(Ypred) != len(modelNames) || len(Yvar) != len(modelNames) {
		return invalidArgument("got %d predictions and %d variances for %d model names", len(Ypred), len(Yvar), len(modelNames))
	}

	if len(modelNames) == 0 {
		return invalidArgument("no predictions to export")
	}

	seen := make(map[string]struct{}, len(modelNames))
	for _, m := range modelNames {
		if m == "" {
			return invalidArgument("model names must not be empty")
		}

		if _, dup := seen[m]; dup {
			return invalidArgument("duplicate model name %q", m)
		}

		seen[m] = struct{}{}
	}

	n := numRows(X)
	if n != numRows(Ytrue) {
		return invalidArgument("X has %d rows, Ytrue has %d", n, numRows(Ytrue))
	}

	for i := range modelNames {
		if numRows(Ypred[i]) != n || numRows(Yvar[i]) != n {
			return invalidArgument("predictions of %q have %d/%d rows, expected %d", modelNames[i], numRows(Ypred[i]), numRows(Yvar[i]), n)
		}
	}

	header := columnNames("Ytrue%d", numCols(Ytrue))

	for _, m := range modelNames {
		header = append(header, columnNames("Ypred_"+m+"_%d", numCols(Ypred[0]))...)
	}

	for _, m := range modelNames {
		header = append(header, columnNames("Yvar_pred_"+m+"_%d", numCols(Yvar[0]))...)
	}

	header = append(header, columnNames("X%d", numCols(X))...)

	blocks := []*mat.Dense{Ytrue}
	blocks = append(blocks, Ypred...)
	blocks = append(blocks, Yvar...)
	blocks = append(blocks, X)

	return writeMatrices(root, name, TestPath(root, name), header, n, blocks...)
}

//////
// Helper functions.
//////

func columnNames(format string, n int) []string {
	names := make([]string, n)
	for j := range names {
		names[j] = fmt.Sprintf(format, j)
	}

	return names
}

// formatFloat uses the shortest representation that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeMatrices horizontally stacks blocks under header and writes them to
// path, creating the experiment directory first.
func writeMatrices(root, name, path string, header []string, n int, blocks ...*mat.Dense) error {
	width := 0
	for _, b := range blocks {
		width += numCols(b)
	}

	if width != len(header) {
		return invalidArgument("header has %d columns, data has %d", len(header), width)
	}

	records := make([][]string, 0, n+1)
	records = append(records, header)

	for i := 0; i < n; i++ {
		rec := make([]string, 0, width)

		for _, b := range blocks {
			for _, v := range b.RawRowView(i) {
				rec = append(rec, formatFloat(v))
			}
		}

		records = append(records, rec)
	}

	if err := ensureDir(ExperimentDir(root, name)); err != nil {
		return err
	}

	return writeRecords(path, records)
}

// writeRecords truncates path and writes records as CSV.
func writeRecords(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return ioFailure(err, "creating %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()

		return ioFailure(err, "writing %s", path)
	}

	if err := f.Close(); err != nil {
		return ioFailure(err, "closing %s", path)
	}

	return nil
}
