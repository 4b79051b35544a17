package savigp

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
)

// Table is a CSV file written by the exporter, read back column-wise.
type Table struct {
	Header  []string
	Columns map[string][]float64
	Rows    int
}

// Column returns the named column or an ErrInvalidArgument naming the file's
// columns.
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.Columns[name]
	if !ok {
		return nil, invalidArgument("no column %q (have %s)", name, strings.Join(t.Header, ","))
	}

	return col, nil
}

// ReadTable parses a header-first numeric CSV file. Header names must be
// unique.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioFailure(err, "opening %s", path)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, invalidArgument("parsing %s: %v", path, err)
	}

	if len(records) == 0 {
		return nil, invalidArgument("%s is empty", path)
	}

	t := &Table{
		Header:  records[0],
		Columns: make(map[string][]float64, len(records[0])),
		Rows:    len(records) - 1,
	}

	for _, h := range t.Header {
		if _, dup := t.Columns[h]; dup {
			return nil, invalidArgument("%s has duplicate column %q", path, h)
		}

		t.Columns[h] = make([]float64, 0, t.Rows)
	}

	for i, rec := range records[1:] {
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, invalidArgument("%s row %d column %s: %v", path, i+1, t.Header[j], err)
			}

			t.Columns[t.Header[j]] = append(t.Columns[t.Header[j]], v)
		}
	}

	return t, nil
}
