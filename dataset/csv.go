package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// missingTokens are cell values read as NaN (compared lower-cased).
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

// LoadCSV reads a CSV file with a header row.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return t, nil
}

// ReadCSV parses CSV with a header row into a Table. Every cell is parsed as
// float64. Cells that are not numbers become NaN and produce one
// DataConversionWarning per column. Duplicate header names keep the first.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewModelError("dataset.ReadCSV", "missing header", errors.ErrEmptyData)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for j, h := range header {
		names[j] = NormalizeName(strings.TrimPrefix(h, "\ufeff"))
		if seen[names[j]] {
			errors.Warn(errors.NewDataConversionWarning(names[j], "column", "dropped",
				"duplicate column name, first occurrence kept"))
		}
		seen[names[j]] = true
	}

	cols := make([][]float64, len(names))
	badCells := make([]int, len(names))
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line+1)
		}
		line++
		for j := range names {
			v := math.NaN()
			if j < len(record) {
				var ok bool
				v, ok = parseCell(record[j])
				if !ok {
					badCells[j]++
				}
			}
			cols[j] = append(cols[j], v)
		}
	}

	for j, n := range badCells {
		if n > 0 {
			errors.Warn(errors.NewDataConversionWarning(names[j], "string", "float64",
				strconv.Itoa(n)+" non-numeric values read as NaN"))
		}
	}

	return NewTable(names, cols)
}

// parseCell returns NaN with ok=true for recognised missing tokens and NaN
// with ok=false for text that is not a number.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if _, missing := missingTokens[strings.ToLower(s)]; missing {
		return math.NaN(), true
	}
	switch strings.ToLower(s) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}
