package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PacketKind classifies a generic response packet by its leading byte
// and length, per the dispatch rules in spec.md §4.2.
type PacketKind int

const (
	KindOther PacketKind = iota
	KindOK
	KindEOF
	KindErr
	KindAuthMoreData
	KindLocalInFile
)

// ClassifyResponse applies the generic dispatch rule: the first byte
// determines the packet kind, with the length qualifications spec.md
// §4.2 calls out (short 0xFE is EOF even during authentication).
func ClassifyResponse(data []byte) PacketKind {
	if len(data) == 0 {
		return KindOther
	}
	switch data[0] {
	case IndicatorOK:
		if len(data) >= 7 {
			return KindOK
		}
		return KindOther
	case IndicatorErr:
		return KindErr
	case IndicatorEOF:
		if len(data) < 9 {
			return KindEOF
		}
		return KindOther
	case IndicatorAuthMoreData:
		return KindAuthMoreData
	case IndicatorLocalInFile:
		return KindLocalInFile
	default:
		return KindOther
	}
}

// OKPacket carries the fields this client exposes from an OK packet
// (spec.md §4.2, "OK decode").
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  StatusFlag
	Warnings     uint16
}

// DecodeOK decodes an OK (or short-EOF-as-OK) packet.
func DecodeOK(data []byte) (*OKPacket, error) {
	if len(data) < 1 {
		return nil, ErrUnexpectedPacket
	}
	pos := 1
	affected, _, n := ReadLengthEncodedInteger(data[pos:])
	if n == 0 {
		return nil, ErrUnexpectedPacket
	}
	pos += n
	insertID, _, n := ReadLengthEncodedInteger(data[pos:])
	if n == 0 {
		return nil, ErrUnexpectedPacket
	}
	pos += n

	ok := &OKPacket{AffectedRows: affected, LastInsertID: insertID}
	if pos+2 <= len(data) {
		ok.StatusFlags = StatusFlag(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
	}
	if pos+2 <= len(data) {
		ok.Warnings = binary.LittleEndian.Uint16(data[pos : pos+2])
	}
	return ok, nil
}

// EOFPacket carries the status flags from an EOF packet (spec.md
// §4.2, "EOF decode"). Warnings are read but discarded.
type EOFPacket struct {
	StatusFlags StatusFlag
}

// DecodeEOF decodes an EOF packet. It tolerates the bare
// one-byte-indicator form (no warnings/status) used at the tail of
// COM_STMT_PREPARE's parameter/column definition blocks on some
// servers.
func DecodeEOF(data []byte) (*EOFPacket, error) {
	if len(data) < 1 || data[0] != IndicatorEOF {
		return nil, ErrUnexpectedPacket
	}
	if len(data) < 5 {
		return &EOFPacket{}, nil
	}
	return &EOFPacket{StatusFlags: StatusFlag(binary.LittleEndian.Uint16(data[3:5]))}, nil
}

// ErrPacket carries the server error code and message (spec.md §4.2,
// "Error decode"). The SQL state is read off the wire but discarded
// per spec.
type ErrPacket struct {
	Code    uint16
	Message string
}

// DecodeErr decodes a server ERR packet.
func DecodeErr(data []byte) (*ErrPacket, error) {
	if len(data) < 3 || data[0] != IndicatorErr {
		return nil, ErrUnexpectedPacket
	}
	code := binary.LittleEndian.Uint16(data[1:3])
	pos := 3
	if len(data) > 3 && data[3] == '#' {
		pos = 9
		if pos > len(data) {
			pos = len(data)
		}
	}
	return &ErrPacket{Code: code, Message: string(data[pos:])}, nil
}

// ColumnDefinition describes one result-set column (spec.md §3).
type ColumnDefinition struct {
	Catalog      string
	Schema       string
	Table        string
	OrigTable    string
	Name         string
	OrigName     string
	Collation    uint16
	Length       uint32
	Type         FieldType
	Flags        FieldFlag
	Decimals     byte
}

// DecodeColumnDefinition decodes one COM_QUERY/COM_STMT_PREPARE
// column-definition packet (spec.md §4.2).
func DecodeColumnDefinition(data []byte) (*ColumnDefinition, error) {
	var col ColumnDefinition
	pos := 0

	readStr := func() (string, error) {
		s, _, n, err := ReadLengthEncodedString(data[pos:])
		if err != nil {
			return "", err
		}
		pos += n
		return string(s), nil
	}

	var err error
	if col.Catalog, err = readStr(); err != nil {
		return nil, err
	}
	if col.Schema, err = readStr(); err != nil {
		return nil, err
	}
	if col.Table, err = readStr(); err != nil {
		return nil, err
	}
	if col.OrigTable, err = readStr(); err != nil {
		return nil, err
	}
	if col.Name, err = readStr(); err != nil {
		return nil, err
	}
	if col.OrigName, err = readStr(); err != nil {
		return nil, err
	}

	// fixed-field length, conventionally 0x0c
	_, _, n := ReadLengthEncodedInteger(data[pos:])
	if n == 0 {
		return nil, errors.Wrap(ErrMalformedLenEnc, "column definition fixed-field length")
	}
	pos += n

	if pos+2 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	col.Collation = binary.LittleEndian.Uint16(data[pos : pos+2])
	pos += 2

	if pos+4 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	col.Length = binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	if pos+1 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	col.Type = FieldType(data[pos])
	pos++

	if pos+2 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	col.Flags = FieldFlag(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2

	if pos+1 > len(data) {
		return nil, ErrUnexpectedPacket
	}
	col.Decimals = data[pos]

	return &col, nil
}
