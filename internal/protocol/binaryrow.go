package protocol

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrUnimplementedBinaryType is a ProtocolError-class failure: the
// binary row decoder met a column type it has no wire encoding for
// (spec.md §7, "non-implemented binary type during decode").
var ErrUnimplementedBinaryType = errors.New("protocol: unimplemented binary row type")

// BinaryCell is one decoded binary-protocol cell.
type BinaryCell struct {
	IsNull bool
	// Exactly one of the following is populated, matching the
	// NativeType the caller resolved for the column.
	Int     int64
	Uint    uint64
	Float32 float32
	Float64 float64
	Str     string
	Opaque  []byte
	Time    time.Time
	HasTime bool
}

// DecodeBinaryRow decodes one binary-protocol result row (spec.md
// §4.5). loc is used for DATE/DATETIME/TIMESTAMP decoding.
func DecodeBinaryRow(data []byte, cols []*ColumnDefinition, loc *time.Location) ([]BinaryCell, error) {
	if len(data) < 1 || data[0] != 0x00 {
		return nil, ErrUnexpectedPacket
	}
	n := len(cols)
	bitmapLen := NullBitmapSize(n)
	if 1+bitmapLen > len(data) {
		return nil, ErrUnexpectedPacket
	}
	bitmap := data[1 : 1+bitmapLen]
	pos := 1 + bitmapLen

	cells := make([]BinaryCell, n)
	for i, col := range cols {
		if NullBitmapGet(bitmap, i) {
			cells[i] = BinaryCell{IsNull: true}
			continue
		}
		cell, consumed, err := decodeBinaryValue(data[pos:], col, loc)
		if err != nil {
			return nil, err
		}
		cells[i] = cell
		pos += consumed
	}
	return cells, nil
}

func decodeBinaryValue(b []byte, col *ColumnDefinition, loc *time.Location) (BinaryCell, int, error) {
	switch col.Type {
	case FieldTypeTiny:
		if len(b) < 1 {
			return BinaryCell{}, 0, ErrUnexpectedPacket
		}
		if col.Flags&FlagUnsigned != 0 {
			return BinaryCell{Uint: uint64(b[0])}, 1, nil
		}
		return BinaryCell{Int: int64(int8(b[0]))}, 1, nil

	case FieldTypeShort, FieldTypeYear:
		if len(b) < 2 {
			return BinaryCell{}, 0, ErrUnexpectedPacket
		}
		v := binary.LittleEndian.Uint16(b[:2])
		if col.Flags&FlagUnsigned != 0 {
			return BinaryCell{Uint: uint64(v)}, 2, nil
		}
		return BinaryCell{Int: int64(int16(v))}, 2, nil

	case FieldTypeLong, FieldTypeInt24:
		if len(b) < 4 {
			return BinaryCell{}, 0, ErrUnexpectedPacket
		}
		v := binary.LittleEndian.Uint32(b[:4])
		if col.Flags&FlagUnsigned != 0 {
			return BinaryCell{Uint: uint64(v)}, 4, nil
		}
		return BinaryCell{Int: int64(int32(v))}, 4, nil

	case FieldTypeLongLong:
		if len(b) < 8 {
			return BinaryCell{}, 0, ErrUnexpectedPacket
		}
		v := binary.LittleEndian.Uint64(b[:8])
		if col.Flags&FlagUnsigned != 0 {
			return BinaryCell{Uint: v}, 8, nil
		}
		return BinaryCell{Int: int64(v)}, 8, nil

	case FieldTypeFloat:
		if len(b) < 4 {
			return BinaryCell{}, 0, ErrUnexpectedPacket
		}
		return BinaryCell{Float32: math.Float32frombits(binary.LittleEndian.Uint32(b[:4]))}, 4, nil

	case FieldTypeDouble:
		if len(b) < 8 {
			return BinaryCell{}, 0, ErrUnexpectedPacket
		}
		return BinaryCell{Float64: math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))}, 8, nil

	case FieldTypeDate, FieldTypeNewDate, FieldTypeDateTime, FieldTypeTimestamp:
		t, consumed, err := decodeBinaryDateTime(b, loc)
		if err != nil {
			return BinaryCell{}, 0, err
		}
		return BinaryCell{Time: t, HasTime: true}, consumed, nil

	case FieldTypeTime:
		s, consumed, err := decodeBinaryTime(b)
		if err != nil {
			return BinaryCell{}, 0, err
		}
		return BinaryCell{Str: s}, consumed, nil

	case FieldTypeDecimal, FieldTypeNewDecimal, FieldTypeVarChar, FieldTypeBit,
		FieldTypeEnum, FieldTypeSet, FieldTypeTinyBLOB, FieldTypeMediumBLOB,
		FieldTypeLongBLOB, FieldTypeBLOB, FieldTypeVarString, FieldTypeString,
		FieldTypeGeometry, FieldTypeJSON:
		raw, isNull, n, err := ReadLengthEncodedString(b)
		if err != nil {
			return BinaryCell{}, 0, err
		}
		if isNull {
			return BinaryCell{IsNull: true}, n, nil
		}
		if ColumnShouldBeBinary(col) || col.Type == FieldTypeBit || col.Type == FieldTypeGeometry {
			return BinaryCell{Opaque: append([]byte(nil), raw...)}, n, nil
		}
		return BinaryCell{Str: string(raw)}, n, nil

	default:
		return BinaryCell{}, 0, errors.Wrapf(ErrUnimplementedBinaryType, "type code 0x%02x", byte(col.Type))
	}
}

// decodeBinaryDateTime decodes the 0/4/7/11-byte DATE/DATETIME/
// TIMESTAMP wire format (spec.md §4.5).
func decodeBinaryDateTime(b []byte, loc *time.Location) (time.Time, int, error) {
	if len(b) < 1 {
		return time.Time{}, 0, ErrUnexpectedPacket
	}
	length := int(b[0])
	if len(b) < 1+length {
		return time.Time{}, 0, ErrUnexpectedPacket
	}
	body := b[1 : 1+length]
	var year int
	var month, day, hour, min, sec int
	var nsec int
	switch length {
	case 0:
		// zero date
	case 4, 7, 11:
		year = int(binary.LittleEndian.Uint16(body[0:2]))
		month = int(body[2])
		day = int(body[3])
		if length >= 7 {
			hour = int(body[4])
			min = int(body[5])
			sec = int(body[6])
		}
		if length == 11 {
			micro := binary.LittleEndian.Uint32(body[7:11])
			nsec = int(micro) * 1000
		}
	default:
		return time.Time{}, 0, errors.Errorf("protocol: illegal datetime length %d", length)
	}
	if year == 0 && month == 0 && day == 0 {
		return time.Time{}, 1 + length, nil
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, nsec, loc), 1 + length, nil
}

// decodeBinaryTime decodes the 0/8/12-byte TIME wire format into its
// textual [-][H]HH:MM:SS[.fractal] form, matching the teacher's
// decision to surface TIME as a string (spec.md §4.5).
func decodeBinaryTime(b []byte) (string, int, error) {
	if len(b) < 1 {
		return "", 0, ErrUnexpectedPacket
	}
	length := int(b[0])
	if len(b) < 1+length {
		return "", 0, ErrUnexpectedPacket
	}
	if length == 0 {
		return "00:00:00", 1, nil
	}
	body := b[1 : 1+length]
	sign := ""
	if body[0] != 0 {
		sign = "-"
	}
	days := binary.LittleEndian.Uint32(body[1:5])
	hour := int(body[5])
	min := int(body[6])
	sec := int(body[7])
	totalHours := int(days)*24 + hour
	s := formatTimeComponents(sign, totalHours, min, sec)
	if length == 12 {
		micro := binary.LittleEndian.Uint32(body[8:12])
		s += formatMicros(micro)
	}
	return s, 1 + length, nil
}

func formatTimeComponents(sign string, hour, min, sec int) string {
	buf := make([]byte, 0, 9)
	buf = append(buf, sign...)
	buf = appendPadded(buf, hour, 2)
	buf = append(buf, ':')
	buf = appendPadded(buf, min, 2)
	buf = append(buf, ':')
	buf = appendPadded(buf, sec, 2)
	return string(buf)
}

func appendPadded(buf []byte, v, width int) []byte {
	s := itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	return append(buf, s...)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var b [20]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

func formatMicros(micro uint32) string {
	s := itoa(int(micro))
	for len(s) < 6 {
		s = "0" + s
	}
	return "." + s
}

// EncodeBinaryDateTime encodes t in the 11-byte (or 0-byte for a
// zero time) DATE/DATETIME wire format used to bind a time.Time
// parameter (spec.md §4.5, §4.7).
func EncodeBinaryDateTime(t time.Time) []byte {
	if t.IsZero() {
		return []byte{0}
	}
	buf := make([]byte, 12)
	buf[0] = 11
	binary.LittleEndian.PutUint16(buf[1:3], uint16(t.Year()))
	buf[3] = byte(t.Month())
	buf[4] = byte(t.Day())
	buf[5] = byte(t.Hour())
	buf[6] = byte(t.Minute())
	buf[7] = byte(t.Second())
	binary.LittleEndian.PutUint32(buf[8:12], uint32(t.Nanosecond()/1000))
	return buf
}

// EncodeBinaryInt encodes a signed integer as the narrowest of
// TINY/SHORT/LONG/LONGLONG able to hold it (paired with
// InferParamType's inference).
func EncodeBinaryInt(ft FieldType, v int64) []byte {
	switch ft {
	case FieldTypeTiny:
		return []byte{byte(v)}
	case FieldTypeShort:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf
	case FieldTypeLong:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return buf
	default:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf
	}
}

// EncodeBinaryUint64 encodes an unsigned LONGLONG parameter.
func EncodeBinaryUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// EncodeBinaryDouble encodes a DOUBLE parameter.
func EncodeBinaryDouble(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// EncodeBinaryLengthEncodedBytes wraps raw bytes (string/blob
// parameter values) in their length-encoded wire form.
func EncodeBinaryLengthEncodedBytes(b []byte) []byte {
	return AppendLengthEncodedString2(nil, b)
}
