package mysql

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-mysql-native/mysql/internal/protocol"
)

// Result is the flat, arrival-ordered collection of result sets
// produced by one Execute call. Multi-statement SQL chains more than
// one set; iterate by index rather than through an embedded "next"
// pointer so the structure stays acyclic (spec.md §9, "Cyclic
// result-set chain").
type Result struct {
	sets []*ResultSet
}

// NumSets returns how many result sets this Result chains.
func (r *Result) NumSets() int { return len(r.sets) }

// Set returns the i'th result set, or nil if out of range.
func (r *Result) Set(i int) *ResultSet {
	if i < 0 || i >= len(r.sets) {
		return nil
	}
	return r.sets[i]
}

// First is a convenience accessor for Set(0), the common case of a
// single-statement execute.
func (r *Result) First() *ResultSet {
	return r.Set(0)
}

// ResultSet is one statement's worth of result: either a row set
// (Columns non-empty, possibly zero rows) or a write acknowledgement
// (AffectedRows/LastInsertID, no columns).
type ResultSet struct {
	Columns      []*protocol.ColumnDefinition
	Rows         []Row
	AffectedRows uint64
	LastInsertID uint64

	stream <-chan Row
}

// NumColumns returns the column count of this result set.
func (rs *ResultSet) NumColumns() int { return len(rs.Columns) }

// NumRows returns the buffered row count. It is always 0 for an
// iterable result set; use RowsStream instead.
func (rs *ResultSet) NumRows() int { return len(rs.Rows) }

// ColumnNames returns the result set's column names in order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// RowsStream returns the channel rows are delivered on for an
// iterable result set. It is nil for a buffered result set.
func (rs *ResultSet) RowsStream() <-chan Row {
	return rs.stream
}

// Cell is one decoded row value. Exactly one representation is
// meaningful at a time: IsNull, or one of Text/Opaque (text-protocol
// or opaque-binary source), or Native (binary-protocol source,
// already a Go-native int64/uint64/float64/time.Time/string).
type Cell struct {
	IsNull bool
	Text   string
	Opaque []byte
	Native any
}

// Row is a decoded result row paired with the column vector it was
// read against, enabling both positional and named access (spec.md
// §6, Row accessors).
type Row struct {
	cols  []*protocol.ColumnDefinition
	cells []Cell
}

func newTextRow(cols []*protocol.ColumnDefinition, cells []protocol.TextCell) Row {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		out[i] = Cell{IsNull: c.IsNull, Text: c.Str, Opaque: c.Opaque}
	}
	return Row{cols: cols, cells: out}
}

func newBinaryRow(cols []*protocol.ColumnDefinition, cells []protocol.BinaryCell) Row {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		switch {
		case c.IsNull:
			out[i] = Cell{IsNull: true}
		case c.HasTime:
			out[i] = Cell{Native: c.Time}
		case c.Opaque != nil:
			out[i] = Cell{Opaque: c.Opaque}
		case c.Str != "" || !isNumericColumn(cols[i].Type):
			out[i] = Cell{Native: c.Str}
		default:
			out[i] = binaryNumericCell(cols[i], c)
		}
	}
	return Row{cols: cols, cells: out}
}

func binaryNumericCell(col *protocol.ColumnDefinition, c protocol.BinaryCell) Cell {
	if col.Flags&protocol.FlagUnsigned != 0 {
		return Cell{Native: c.Uint}
	}
	switch col.Type {
	case protocol.FieldTypeFloat:
		return Cell{Native: float64(c.Float32)}
	case protocol.FieldTypeDouble:
		return Cell{Native: c.Float64}
	default:
		return Cell{Native: c.Int}
	}
}

// NumColumns returns the number of cells in the row.
func (r Row) NumColumns() int { return len(r.cells) }

func (r Row) colIndex(name string) int {
	for i, c := range r.cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Raw returns the i'th cell's raw representation: the decoded
// string/bytes for a text-protocol cell, or the native Go value for
// a binary-protocol cell.
func (r Row) Raw(i int) any {
	c := r.cells[i]
	switch {
	case c.IsNull:
		return nil
	case c.Native != nil:
		return c.Native
	case c.Opaque != nil:
		return c.Opaque
	default:
		return c.Text
	}
}

// ByName is Raw, but looks the column up case-insensitively by name.
// It returns (nil, false) if no such column exists.
func (r Row) ByName(name string) (any, bool) {
	i := r.colIndex(name)
	if i < 0 {
		return nil, false
	}
	return r.Raw(i), true
}

// Assoc returns the row as a map from column name to its raw
// representation (spec.md §4.8, assoc()).
func (r Row) Assoc() map[string]any {
	out := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		out[c.Name] = r.Raw(i)
	}
	return out
}

// TypedAssoc returns the row as a map from column name to its best
// native type per column type (spec.md §4.8, typed_assoc()).
func (r Row) TypedAssoc() map[string]any {
	out := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		v, err := r.typed(i, protocol.BestNativeType(c))
		if err != nil {
			v = r.Raw(i)
		}
		out[c.Name] = v
	}
	return out
}

// Int converts the i'th cell to an int64 per the allowed-conversions
// table (spec.md §4.8). Only TINY/SHORT/LONG/LONGLONG/INT24/YEAR
// columns may be read this way.
func (r Row) Int(i int) (int64, error) {
	return r.typedInt(i)
}

// Bool converts the i'th cell to a bool. Only permitted for a TINY
// column with declared length 1 (spec.md §4.8).
func (r Row) Bool(i int) (bool, error) {
	col := r.cols[i]
	if col.Type != protocol.FieldTypeTiny || col.Length != 1 {
		return false, newProtocolError(ErrBadConversion, nil)
	}
	v, err := r.typedInt(i)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Float converts the i'th cell to a float64 (spec.md §4.8).
func (r Row) Float(i int) (float64, error) {
	col := r.cols[i]
	if !isNumericColumn(col.Type) {
		return 0, newProtocolError(ErrBadConversion, nil)
	}
	c := r.cells[i]
	if c.IsNull {
		return 0, nil
	}
	if c.Native != nil {
		return toFloat64(c.Native)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
	if err != nil {
		return 0, newProtocolError(ErrBadConversion, err)
	}
	return f, nil
}

// Time converts the i'th cell to a time.Time. Only permitted for
// DATE/DATETIME/TIMESTAMP columns (spec.md §4.8).
func (r Row) Time(i int) (time.Time, error) {
	col := r.cols[i]
	switch col.Type {
	case protocol.FieldTypeDate, protocol.FieldTypeNewDate, protocol.FieldTypeDateTime, protocol.FieldTypeTimestamp:
	default:
		return time.Time{}, newProtocolError(ErrBadConversion, nil)
	}
	c := r.cells[i]
	if c.IsNull {
		return time.Time{}, nil
	}
	if t, ok := c.Native.(time.Time); ok {
		return t, nil
	}
	text := strings.TrimSpace(c.Text)
	layout := "2006-01-02 15:04:05"
	if len(text) == len("2006-01-02") {
		layout = "2006-01-02"
	}
	t, err := time.Parse(layout, text)
	if err != nil {
		return time.Time{}, newProtocolError(ErrBadConversion, err)
	}
	return t, nil
}

func (r Row) typedInt(i int) (int64, error) {
	col := r.cols[i]
	if !isIntegerColumn(col.Type) {
		return 0, newProtocolError(ErrBadConversion, nil)
	}
	c := r.cells[i]
	if c.IsNull {
		return 0, nil
	}
	if c.Native != nil {
		switch v := c.Native.(type) {
		case int64:
			return v, nil
		case uint64:
			return int64(v), nil
		}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(c.Text), 10, 64)
	if err != nil {
		return 0, newProtocolError(ErrBadConversion, err)
	}
	return v, nil
}

// isIntegerColumn reports the integer-family column types that may be
// read through Int/Bool: TINY/SHORT/LONG/LONGLONG/INT24/YEAR (spec.md
// §4.8). FLOAT/DOUBLE are numeric but not integer-valued on the wire,
// so they are excluded here and only accepted by Float.
func isIntegerColumn(t protocol.FieldType) bool {
	switch t {
	case protocol.FieldTypeTiny, protocol.FieldTypeShort, protocol.FieldTypeLong,
		protocol.FieldTypeLongLong, protocol.FieldTypeInt24, protocol.FieldTypeYear:
		return true
	default:
		return false
	}
}

func isNumericColumn(t protocol.FieldType) bool {
	if isIntegerColumn(t) {
		return true
	}
	switch t {
	case protocol.FieldTypeFloat, protocol.FieldTypeDouble:
		return true
	default:
		return false
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, newProtocolError(ErrBadConversion, nil)
	}
}

// typed resolves the i'th cell per BestNativeType, used by
// TypedAssoc.
func (r Row) typed(i int, nt protocol.NativeType) (any, error) {
	switch nt {
	case protocol.NativeBool:
		return r.Bool(i)
	case protocol.NativeInteger, protocol.NativeUnsignedInteger:
		return r.typedInt(i)
	case protocol.NativeFloat, protocol.NativeDouble:
		return r.Float(i)
	case protocol.NativeDateTime:
		return r.Time(i)
	default:
		return r.Raw(i), nil
	}
}
