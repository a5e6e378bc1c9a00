// Package export provides CSV export of filter states through the row
// marshaling contract.
package export

import (
	"bufio"
	"fmt"
	"os"

	eskf "github.com/milosgajdos/go-eskf"
)

// Exporter defines an export interface.
type Exporter interface {
	// Write exports the state at the given timestamp
	Write(m eskf.RowMarshaler, t float64) error
	// Close flushes and closes the export
	Close() error
}

// CSVExporter writes state rows to a CSV file. The header of the state
// type is written on creation, every Write appends one row with 17
// significant digits per floating point field.
type CSVExporter struct {
	f *os.File
	w *bufio.Writer
}

// NewCSVExporter creates the file at path and writes the header of m.
func NewCSVExporter(path string, m eskf.RowMarshaler) (*CSVExporter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %v", err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(m.Header() + "\n"); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVExporter{f: f, w: w}, nil
}

// Write appends the row of m at timestamp t.
func (e *CSVExporter) Write(m eskf.RowMarshaler, t float64) error {
	_, err := e.w.WriteString(m.ToRow(t) + "\n")

	return err
}

// Close flushes buffered rows and closes the file.
func (e *CSVExporter) Close() error {
	if err := e.w.Flush(); err != nil {
		e.f.Close()
		return err
	}

	return e.f.Close()
}
