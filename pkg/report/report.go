// Package report handles the report file: a CSV log of training runs.
//
// Each training run appends one row,
//
//	date_time, hyperparameters, commit_hash, training_job_name, <metric>...
//
// and rows are never removed.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	ColumnDateTime        = "date_time"
	ColumnHyperparameters = "hyperparameters"
	ColumnCommitHash      = "commit_hash"
	ColumnTrainingJobName = "training_job_name"
)

// DateTimeLayout is the format of date_time column. Times are in UTC.
const DateTimeLayout = "2006-01-02 15:04:05"

var (
	// ErrNoEntry is returned when the report has no rows to be picked.
	ErrNoEntry = errors.New("report has no entries")

	// ErrMalformed is returned when the report file cannot be read as a report.
	ErrMalformed = errors.New("malformed report")
)

// IdentityColumns returns the fixed leading columns of a report.
func IdentityColumns() []string {
	return []string{ColumnDateTime, ColumnHyperparameters, ColumnCommitHash, ColumnTrainingJobName}
}

// Columns returns the columns of a new report for the metrics.
func Columns(metricKeys []string) []string {
	return append(IdentityColumns(), metricKeys...)
}

type Metric struct {
	Name  string
	Value float64
}

// Entry is a record of a training run.
type Entry struct {
	DateTime        time.Time
	Hyperparameters map[string]string
	CommitHash      string
	TrainingJobName string

	// Metrics are written in this order when they introduce new columns.
	Metrics []Metric
}

// MetricNames returns names of e.Metrics, in order.
func (e Entry) MetricNames() []string {
	names := make([]string, len(e.Metrics))
	for i, m := range e.Metrics {
		names[i] = m.Name
	}
	return names
}

// Table is an in-memory report file.
//
// Table is a value. Methods returning Table do not modify the receiver.
type Table struct {
	columns []string
	rows    [][]string
}

// Template returns a report without rows.
func Template(metricKeys []string) Table {
	return Table{columns: Columns(metricKeys)}
}

// Parse reads a report file: a CSV with a header line and without an index column.
func Parse(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0 // all records should have as many fields as the header.

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, fmt.Errorf("%w: no header", ErrMalformed)
	}
	if err != nil {
		return Table{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	for _, col := range IdentityColumns() {
		if !slices.Contains(header, col) {
			return Table{}, fmt.Errorf("%w: column %s is missing", ErrMalformed, col)
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Table{columns: header, rows: rows}, nil
}

// Encode writes the table as CSV, header first.
func (t Table) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return err
	}
	return cw.Error()
}

// Bytes returns the table encoded as CSV.
func (t Table) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := t.Encode(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t Table) Columns() []string {
	return slices.Clone(t.columns)
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.rows)
}

func (t Table) Rows() []Row {
	rows := make([]Row, len(t.rows))
	for i := range t.rows {
		rows[i] = t.row(i)
	}
	return rows
}

func (t Table) row(i int) Row {
	return Row{columns: t.columns, values: t.rows[i]}
}

// Append returns a new table which has the entry as its last row.
//
// Metrics without a column get new columns at the end of the header.
// Earlier rows have empty values for them.
func (t Table) Append(e Entry) (Table, error) {
	hp := []byte("{}")
	if len(e.Hyperparameters) != 0 {
		b, err := json.Marshal(e.Hyperparameters)
		if err != nil {
			return t, err
		}
		hp = b
	}

	columns := slices.Clone(t.columns)
	if len(columns) == 0 {
		columns = IdentityColumns()
	}
	for _, m := range e.Metrics {
		if !slices.Contains(columns, m.Name) {
			columns = append(columns, m.Name)
		}
	}

	values := map[string]string{
		ColumnDateTime:        e.DateTime.UTC().Format(DateTimeLayout),
		ColumnHyperparameters: string(hp),
		ColumnCommitHash:      e.CommitHash,
		ColumnTrainingJobName: e.TrainingJobName,
	}
	for _, m := range e.Metrics {
		values[m.Name] = strconv.FormatFloat(m.Value, 'f', -1, 64)
	}

	rows := make([][]string, 0, len(t.rows)+1)
	for _, r := range t.rows {
		widened := make([]string, len(columns))
		copy(widened, r)
		rows = append(rows, widened)
	}
	newRow := make([]string, len(columns))
	for i, c := range columns {
		newRow[i] = values[c]
	}
	rows = append(rows, newRow)

	return Table{columns: columns, rows: rows}, nil
}

// Latest returns the row with the newest date_time.
//
// When some rows have the same date_time, the one appended later wins.
func (t Table) Latest() (Row, error) {
	if len(t.rows) == 0 {
		return Row{}, ErrNoEntry
	}

	latest := -1
	var latestAt time.Time
	for i := range t.rows {
		at, err := t.row(i).DateTime()
		if err != nil {
			return Row{}, err
		}
		if latest < 0 || !at.Before(latestAt) {
			latest = i
			latestAt = at
		}
	}
	return t.row(latest), nil
}

// FindByCommit returns rows recorded for the commit, in order.
func (t Table) FindByCommit(commitHash string) []Row {
	found := []Row{}
	for i := range t.rows {
		r := t.row(i)
		if r.CommitHash() == commitHash {
			found = append(found, r)
		}
	}
	return found
}

// Row is a row of a report.
type Row struct {
	columns []string
	values  []string
}

// Get returns the value in the column.
func (r Row) Get(column string) (string, bool) {
	i := slices.Index(r.columns, column)
	if i < 0 || len(r.values) <= i {
		return "", false
	}
	return r.values[i], true
}

func (r Row) get(column string) string {
	v, _ := r.Get(column)
	return v
}

func (r Row) CommitHash() string {
	return r.get(ColumnCommitHash)
}

func (r Row) TrainingJobName() string {
	return r.get(ColumnTrainingJobName)
}

func (r Row) DateTime() (time.Time, error) {
	v := r.get(ColumnDateTime)
	at, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(v), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date_time %q: %w", ErrMalformed, v, err)
	}
	return at, nil
}

func (r Row) Hyperparameters() (map[string]string, error) {
	v := r.get(ColumnHyperparameters)
	hp := map[string]string{}
	if v == "" {
		return hp, nil
	}
	if err := json.Unmarshal([]byte(v), &hp); err != nil {
		return nil, fmt.Errorf("%w: hyperparameters %q: %w", ErrMalformed, v, err)
	}
	return hp, nil
}

// Metric returns the value of the metric column.
func (r Row) Metric(name string) (float64, error) {
	v, ok := r.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: no metric column %s", ErrMalformed, name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: metric %s = %q: %w", ErrMalformed, name, v, err)
	}
	return f, nil
}
