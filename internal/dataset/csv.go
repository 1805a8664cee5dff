// Package dataset loads numeric feature tables from CSV into iforest matrices.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/todmy/isoforest/pkg/iforest"
)

// CSVOptions controls how a CSV file is read
type CSVOptions struct {
	// Header treats the first record as column names.
	Header bool
	// Columns selects columns by index, in the given order. Empty means all.
	Columns []int
	// Comma is the field delimiter; zero means ','.
	Comma rune
}

// Table is a loaded feature table.
type Table struct {
	Columns []string
	Matrix  *iforest.Matrix
}

// ParseError reports a cell that is not a finite number
type ParseError struct {
	Line   int
	Column int
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: cannot use %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadCSV reads every record of r as one feature row.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	in := csv.NewReader(r)
	in.FieldsPerRecord = -1
	in.TrimLeadingSpace = true
	if opts.Comma != 0 {
		in.Comma = opts.Comma
	}

	var (
		table  = &Table{}
		matrix *iforest.Matrix
		row    []float64
		width  = -1
	)

	if opts.Header {
		header, err := in.Read()
		if err == io.EOF {
			return nil, iforest.ErrEmptyInput
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		width = len(header)
		cols, err := selectColumns(opts.Columns, width)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			table.Columns = append(table.Columns, strings.TrimSpace(header[c]))
		}
	}

	var cols []int
	for {
		record, err := in.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		line, _ := in.FieldPos(0)

		if width < 0 {
			width = len(record)
		}
		if len(record) != width {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d",
				iforest.ErrShapeMismatch, line, len(record), width)
		}

		if matrix == nil {
			if cols, err = selectColumns(opts.Columns, width); err != nil {
				return nil, err
			}
			if matrix, err = iforest.NewMatrix(len(cols)); err != nil {
				return nil, err
			}
			row = make([]float64, len(cols))
		}

		for i, c := range cols {
			v, err := parseCell(record[c])
			if err != nil {
				return nil, &ParseError{Line: line, Column: c + 1, Value: record[c], Err: err}
			}
			row[i] = v
		}
		if err := matrix.AppendRow(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}

	if matrix == nil {
		return nil, iforest.ErrEmptyInput
	}
	if table.Columns == nil {
		table.Columns = defaultNames(cols)
	}
	table.Matrix = matrix
	return table, nil
}

// LoadCSVFile reads the CSV file at path.
func LoadCSVFile(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, opts)
}

func selectColumns(selected []int, width int) ([]int, error) {
	if width == 0 {
		return nil, fmt.Errorf("%w: no fields", iforest.ErrShapeMismatch)
	}
	if len(selected) == 0 {
		cols := make([]int, width)
		for i := range cols {
			cols[i] = i
		}
		return cols, nil
	}
	for _, c := range selected {
		if c < 0 || c >= width {
			return nil, fmt.Errorf("%w: column %d of %d", iforest.ErrIndexOutOfRange, c, width)
		}
	}
	return selected, nil
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return 0, numErr.Err
		}
		return 0, err
	}
	return v, nil
}

func defaultNames(cols []int) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = "x" + strconv.Itoa(c)
	}
	return names
}
