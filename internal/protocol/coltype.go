package protocol

import "time"

// NativeType is the language-neutral type enum the column-type
// bridge maps wire type codes onto (spec.md §2, L2 "Column-type
// bridge").
type NativeType int

const (
	NativeOpaque NativeType = iota
	NativeString
	NativeInteger
	NativeUnsignedInteger
	NativeFloat
	NativeDouble
	NativeDateTime
	NativeBool
)

var blobTypes = map[FieldType]bool{
	FieldTypeTinyBLOB:   true,
	FieldTypeMediumBLOB: true,
	FieldTypeLongBLOB:   true,
	FieldTypeBLOB:       true,
}

// ColumnShouldBeBinary implements the text-protocol classification of
// spec.md §4.4: whether a column's value should be delivered as raw
// bytes rather than a UTF-8 string.
func ColumnShouldBeBinary(col *ColumnDefinition) bool {
	if col.Type == FieldTypeGeometry || col.Type == FieldTypeBit {
		return true
	}
	if blobTypes[col.Type] {
		return col.Collation == BinaryCollation || col.Flags&FlagBinary != 0
	}
	return false
}

// BestNativeType selects the "best native type" for a text-protocol
// column value per spec.md §4.8/§9 ("Text-protocol numerics"):
// DECIMAL/NEW_DECIMAL always stay strings to preserve precision.
func BestNativeType(col *ColumnDefinition) NativeType {
	switch col.Type {
	case FieldTypeTiny:
		if col.Length == 1 {
			return NativeBool
		}
		return NativeInteger
	case FieldTypeShort, FieldTypeLong, FieldTypeLongLong, FieldTypeInt24, FieldTypeYear:
		if col.Flags&FlagUnsigned != 0 {
			return NativeUnsignedInteger
		}
		return NativeInteger
	case FieldTypeFloat:
		return NativeFloat
	case FieldTypeDouble:
		return NativeDouble
	case FieldTypeDate, FieldTypeNewDate, FieldTypeDateTime, FieldTypeTimestamp:
		return NativeDateTime
	case FieldTypeDecimal, FieldTypeNewDecimal:
		return NativeString
	default:
		if ColumnShouldBeBinary(col) {
			return NativeOpaque
		}
		return NativeString
	}
}

// InferParamType maps a Go value to the wire FieldType used to bind
// it as a COM_STMT_EXECUTE parameter (spec.md §4.7, "Parameter type
// inference").
func InferParamType(v any) (FieldType, bool /* unsigned */, bool /* ok */) {
	switch x := v.(type) {
	case nil:
		return FieldTypeNULL, false, true
	case bool:
		return FieldTypeTiny, false, true
	case int, int8, int16, int32, int64:
		n := toInt64(x)
		switch {
		case n >= -128 && n <= 127:
			return FieldTypeTiny, false, true
		case n >= -(1<<15) && n < (1<<15):
			return FieldTypeShort, false, true
		case n >= -(1<<31) && n < (1<<31):
			return FieldTypeLong, false, true
		default:
			return FieldTypeLongLong, false, true
		}
	case uint, uint8, uint16, uint32, uint64:
		return FieldTypeLongLong, true, true
	case float32, float64:
		return FieldTypeDouble, false, true
	case string:
		return FieldTypeVarString, false, true
	case time.Time:
		return FieldTypeDateTime, false, true
	case []byte:
		switch {
		case len(x) <= 255:
			return FieldTypeTinyBLOB, false, true
		case len(x) <= 65535:
			return FieldTypeMediumBLOB, false, true
		case len(x) <= 16777215:
			return FieldTypeLongBLOB, false, true
		default:
			return FieldTypeBLOB, false, true
		}
	default:
		return 0, false, false
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	default:
		return 0
	}
}
