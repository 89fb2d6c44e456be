package feed

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/justapithecus/catalogfeed/types"
)

// Encoder renders the header and record rows as CSV.
// Each call returns a self-contained chunk so batches can be appended
// independently.
type Encoder struct {
	columns []string
}

// NewEncoder creates an encoder for the given columns.
func NewEncoder(columns []string) *Encoder {
	return &Encoder{columns: columns}
}

// Header returns the encoded header row.
func (e *Encoder) Header() ([]byte, error) {
	return encodeRows([][]string{e.columns})
}

// Records encodes records in the given order.
// Every record must carry exactly one field per column.
func (e *Encoder) Records(records []types.Record) ([]byte, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		if len(r.Fields) != len(e.columns) {
			return nil, fmt.Errorf("record %d has %d fields, want %d", r.ID, len(r.Fields), len(e.columns))
		}
		rows[i] = r.Fields
	}
	return encodeRows(rows)
}

func encodeRows(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
