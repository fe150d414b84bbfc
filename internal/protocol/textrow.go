package protocol

// TextCell is one decoded text-protocol cell: either NULL, a UTF-8
// string, or opaque bytes (spec.md §4.4).
type TextCell struct {
	IsNull bool
	Str    string
	Opaque []byte
}

// DecodeTextRow decodes one text-protocol result row (spec.md §4.4).
// cols must line up with the row's column-definition vector.
func DecodeTextRow(data []byte, cols []*ColumnDefinition) ([]TextCell, error) {
	cells := make([]TextCell, len(cols))
	pos := 0
	for i, col := range cols {
		raw, isNull, n, err := ReadLengthEncodedString(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		if isNull {
			cells[i] = TextCell{IsNull: true}
			continue
		}
		if ColumnShouldBeBinary(col) {
			cells[i] = TextCell{Opaque: append([]byte(nil), raw...)}
		} else {
			cells[i] = TextCell{Str: string(raw)}
		}
	}
	return cells, nil
}
