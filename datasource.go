package savigp

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Normal1D generates n noisy observations of sin(3x) with x ~ N(0, 1) and
// Gaussian noise of variance sigma.
func Normal1D(n int, sigma float64, rng *rand.Rand) (X, Y *mat.Dense, err error) {
	if n < 1 {
		return nil, nil, invalidArgument("need at least one observation, got %d", n)
	}

	if sigma < 0 {
		return nil, nil, invalidArgument("noise variance must be non-negative, got %g", sigma)
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	X = mat.NewDense(n, 1, nil)
	Y = mat.NewDense(n, 1, nil)

	noise := math.Sqrt(sigma)
	for i := 0; i < n; i++ {
		x := rng.NormFloat64()
		X.Set(i, 0, x)
		Y.Set(i, 0, math.Sin(3*x)+noise*rng.NormFloat64())
	}

	return X, Y, nil
}

// DelimitedOptions describes a numeric table on disk.
type DelimitedOptions struct {
	// Delimiter separates fields. Empty splits on runs of whitespace, as in
	// the UCI housing table.
	Delimiter string

	// Target is the output column. Negative values count from the end, so -1
	// is the last column.
	Target int

	// SkipHeader drops the first non-comment line.
	SkipHeader bool
}

// LoadDelimited reads a numeric table and splits it into inputs (every column
// but the target) and a single-column output. Blank lines and lines starting
// with '#' are ignored.
func LoadDelimited(path string, opts DelimitedOptions) (X, Y *mat.Dense, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, ioFailure(err, "opening dataset %s", path)
	}
	defer f.Close()

	records, err := readRecords(f, opts)
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		return nil, nil, invalidArgument("dataset %s has no rows", path)
	}

	width := len(records[0])
	if width < 2 {
		return nil, nil, invalidArgument("dataset %s needs at least two columns, got %d", path, width)
	}

	target := opts.Target
	if target < 0 {
		target += width
	}

	if target < 0 || target >= width {
		return nil, nil, invalidArgument("target column %d out of range for %d columns", opts.Target, width)
	}

	X = mat.NewDense(len(records), width-1, nil)
	Y = mat.NewDense(len(records), 1, nil)

	for i, rec := range records {
		if len(rec) != width {
			return nil, nil, invalidArgument("%s row %d has %d fields, expected %d", path, i+1, len(rec), width)
		}

		col := 0

		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, invalidArgument("%s row %d column %d: %v", path, i+1, j, err)
			}

			if j == target {
				Y.Set(i, 0, v)

				continue
			}

			X.Set(i, col, v)
			col++
		}
	}

	return X, Y, nil
}

func readRecords(r io.Reader, opts DelimitedOptions) ([][]string, error) {
	var records [][]string

	skipped := !opts.SkipHeader

	if opts.Delimiter == "" {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			if !skipped {
				skipped = true

				continue
			}

			records = append(records, strings.Fields(line))
		}

		if err := scanner.Err(); err != nil {
			return nil, ioFailure(err, "reading dataset")
		}

		return records, nil
	}

	cr := csv.NewReader(r)
	cr.Comma = []rune(opts.Delimiter)[0]
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, invalidArgument("parsing dataset: %v", err)
		}

		if !skipped {
			skipped = true

			continue
		}

		records = append(records, rec)
	}

	return records, nil
}

// Standardize returns a copy of m with every column shifted to zero mean and
// scaled to unit (population) standard deviation. Constant columns are only
// centred.
func Standardize(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()

	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		col := column(m, j)

		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}

		for i, v := range col {
			out.Set(i, j, (v-mean)/std)
		}
	}

	return out
}
