// Package dataset reads CSV datasets.
//
// Training and validation files have a header line, the target in the first column
// and features in the rest. Inference requests have features only, without header.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrEmpty is returned when a dataset has no rows.
	ErrEmpty = errors.New("dataset is empty")

	// ErrMalformed is returned when a dataset cannot be read as numbers.
	ErrMalformed = errors.New("malformed dataset")
)

type Dataset struct {
	// Target is the name of the target column.
	Target string

	// Features are names of feature columns.
	Features []string

	X [][]float64
	Y []float64
}

func (d Dataset) Len() int {
	return len(d.Y)
}

// Load reads a dataset file.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, err
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Read reads a dataset with header. The first column is the target.
func Read(r io.Reader) (Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Dataset{}, ErrEmpty
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(header) < 2 {
		return Dataset{}, fmt.Errorf("%w: needs a target and at least one feature, got %d columns", ErrMalformed, len(header))
	}

	ds := Dataset{Target: header[0], Features: header[1:]}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line += 1
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		values, err := parseFloats(rec)
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
		}
		ds.Y = append(ds.Y, values[0])
		ds.X = append(ds.X, values[1:])
	}
	if len(ds.Y) == 0 {
		return Dataset{}, ErrEmpty
	}
	return ds, nil
}

// ParseFeatures reads header-less rows of features.
//
// All rows should have the same number of columns.
func ParseFeatures(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(recs) == 0 {
		return nil, ErrEmpty
	}
	x := make([][]float64, 0, len(recs))
	for i, rec := range recs {
		values, err := parseFloats(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, i+1, err)
		}
		x = append(x, values)
	}
	return x, nil
}

func parseFloats(rec []string) ([]float64, error) {
	values := make([]float64, len(rec))
	for i, v := range rec {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		values[i] = f
	}
	return values, nil
}

// FormatPredictions writes one value per line, without header and index.
func FormatPredictions(w io.Writer, values []float64) error {
	cw := csv.NewWriter(w)
	for _, v := range values {
		if err := cw.Write([]string{strconv.FormatFloat(v, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
