// Package csv reads GTFS tables into column-mapped rows. It wraps the stdlib
// csv reader with header-based column lookup, per-row missing-value tracking
// and UTF BOM handling, which is all the structure the table parsers need.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/transitboard/gtfs/constants"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Table is a single open GTFS table. Columns are declared up front with
// Required and Optional; rows are then visited with Next and read through the
// column handles.
type Table struct {
	name            constants.StaticFile
	reader          *csv.Reader
	header          []string
	headerIndex     map[string]int
	missingRequired []string
	current         *row
	rowNumber       int
	readErr         error
	closer          func() error
}

type row struct {
	cells       []string
	missingKeys []string
}

// Open reads the header row of a table. The reader is closed by Table.Close,
// or here when the header itself cannot be read.
func Open(name constants.StaticFile, r io.ReadCloser) (*Table, error) {
	reader := newBOMAwareReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		r.Close()
		return nil, fmt.Errorf("%s contains no rows", name)
	} else if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to read %s header: %w", name, err)
	}
	// The header is kept as-is for diagnostics; data rows can share the
	// reader's backing array.
	reader.ReuseRecord = true
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	return &Table{
		name:        name,
		reader:      reader,
		header:      header,
		headerIndex: index,
		closer:      r.Close,
	}, nil
}

func (t *Table) Name() constants.StaticFile {
	return t.name
}

func (t *Table) Header() []string {
	return t.header
}

// RequiredColumn reads a column that every row must populate. A row missing
// the value has the column name recorded in MissingRowKeys.
type RequiredColumn struct {
	i int
	s string
	t *Table
}

// Required declares a column the table must carry. If the header lacks the
// column it is recorded and reported by MissingRequiredColumns; callers are
// expected to check that before iterating rows.
func (t *Table) Required(name string) RequiredColumn {
	i, ok := t.headerIndex[name]
	if !ok {
		t.missingRequired = append(t.missingRequired, name)
		i = -1
	}
	return RequiredColumn{i: i, s: name, t: t}
}

// MissingRequiredColumns lists required columns absent from the header, in
// declaration order.
func (t *Table) MissingRequiredColumns() []string {
	if len(t.missingRequired) == 0 {
		return nil
	}
	return t.missingRequired
}

func (c RequiredColumn) Read() string {
	r := c.t.current
	if c.i < 0 || c.i >= len(r.cells) || r.cells[c.i] == "" {
		r.missingKeys = append(r.missingKeys, c.s)
		return ""
	}
	return r.cells[c.i]
}

// OptionalColumn reads a column that may be absent from the header or empty
// in any row.
type OptionalColumn struct {
	i int
	t *Table
}

func (t *Table) Optional(name string) OptionalColumn {
	i, ok := t.headerIndex[name]
	if !ok {
		i = -1
	}
	return OptionalColumn{i: i, t: t}
}

func (c OptionalColumn) Read() string {
	if c.i < 0 || c.i >= len(c.t.current.cells) {
		return ""
	}
	return c.t.current.cells[c.i]
}

// ReadOr returns the cell value, or def when the column is absent or the
// cell is empty.
func (c OptionalColumn) ReadOr(def string) string {
	s := c.Read()
	if s == "" {
		return def
	}
	return s
}

// Next advances to the next data row. It returns false at the end of the
// table or on a read error; Err distinguishes the two.
func (t *Table) Next() bool {
	cells, err := t.reader.Read()
	if err == io.EOF {
		t.current = nil
		return false
	}
	if err != nil {
		t.current = nil
		t.readErr = err
		return false
	}
	if t.current == nil {
		t.current = &row{}
	}
	t.rowNumber++
	t.current.cells = cells
	t.current.missingKeys = nil
	return true
}

// RowNumber is the 1-based position of the current data row, excluding the
// header.
func (t *Table) RowNumber() int {
	return t.rowNumber
}

// MissingRowKeys lists the required columns the current row left empty.
func (t *Table) MissingRowKeys() []string {
	return t.current.missingKeys
}

// Err returns the terminal read error, if Next stopped on one.
func (t *Table) Err() error {
	return t.readErr
}

func (t *Table) Close() error {
	closeErr := t.closer()
	if t.readErr != nil {
		return t.readErr
	}
	return closeErr
}

// newBOMAwareReader builds a csv reader that strips a UTF byte order mark
// from the start of the data, if one is present, and otherwise reads the
// data unchanged.
func newBOMAwareReader(r io.Reader) *csv.Reader {
	transformer := unicode.BOMOverride(encoding.Nop.NewDecoder())
	reader := csv.NewReader(transform.NewReader(r, transformer))
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	// Feeds in the wild have ragged rows; the column handles bounds-check.
	reader.FieldsPerRecord = -1
	return reader
}
