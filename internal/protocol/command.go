package protocol

import "encoding/binary"

// EncodeComQuit builds the COM_QUIT payload.
func EncodeComQuit() []byte {
	return []byte{byte(ComQuit)}
}

// EncodeComInitDB builds the COM_INIT_DB payload.
func EncodeComInitDB(schema string) []byte {
	buf := make([]byte, 1+len(schema))
	buf[0] = byte(ComInitDB)
	copy(buf[1:], schema)
	return buf
}

// EncodeComQuery builds the COM_QUERY payload carrying literal SQL.
func EncodeComQuery(sql string) []byte {
	buf := make([]byte, 1+len(sql))
	buf[0] = byte(ComQuery)
	copy(buf[1:], sql)
	return buf
}

// EncodeComStmtPrepare builds the COM_STMT_PREPARE payload.
func EncodeComStmtPrepare(sql string) []byte {
	buf := make([]byte, 1+len(sql))
	buf[0] = byte(ComStmtPrepare)
	copy(buf[1:], sql)
	return buf
}

// EncodeComStmtClose builds the COM_STMT_CLOSE payload.
func EncodeComStmtClose(stmtID uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(ComStmtClose)
	binary.LittleEndian.PutUint32(buf[1:5], stmtID)
	return buf
}

// PrepareOK is the decoded COM_STMT_PREPARE response header (spec.md
// §4.7).
type PrepareOK struct {
	StatementID  uint32
	ColumnCount  uint16
	ParamCount   uint16
	WarningCount uint16
}

// DecodePrepareOK decodes the COM_STMT_PREPARE OK header packet.
func DecodePrepareOK(data []byte) (*PrepareOK, error) {
	if len(data) < 12 || data[0] != IndicatorOK {
		return nil, ErrUnexpectedPacket
	}
	return &PrepareOK{
		StatementID:  binary.LittleEndian.Uint32(data[1:5]),
		ColumnCount:  binary.LittleEndian.Uint16(data[5:7]),
		ParamCount:   binary.LittleEndian.Uint16(data[7:9]),
		WarningCount: binary.LittleEndian.Uint16(data[10:12]),
	}, nil
}

// StmtExecuteParam is one bound parameter for COM_STMT_EXECUTE.
type StmtExecuteParam struct {
	Type    FieldType
	Value   []byte // pre-encoded wire bytes per spec.md §4.5; empty+IsNull for NULL
	IsNull  bool
	Unsigned bool
}

// EncodeComStmtExecute builds the full COM_STMT_EXECUTE payload
// (spec.md §4.7 "Binary parameter encoding").
func EncodeComStmtExecute(stmtID uint32, params []StmtExecuteParam) []byte {
	buf := make([]byte, 0, 16+len(params)*8)
	buf = append(buf, byte(ComStmtExecute))
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], stmtID)
	buf = append(buf, idBuf[:]...)
	buf = append(buf, 0x00) // flags
	buf = append(buf, 0x01, 0x00, 0x00, 0x00) // iteration_count = 1

	if len(params) == 0 {
		return buf
	}

	nullBitmapLen := ParamNullBitmapSize(len(params))
	nullBitmapPos := len(buf)
	buf = append(buf, make([]byte, nullBitmapLen)...)
	for i, p := range params {
		if p.IsNull {
			ParamNullBitmapSet(buf[nullBitmapPos:nullBitmapPos+nullBitmapLen], i)
		}
	}

	buf = append(buf, 0x01) // new-params-bound flag

	typesPos := len(buf)
	buf = append(buf, make([]byte, len(params)*2)...)
	for i, p := range params {
		buf[typesPos+i*2] = byte(p.Type)
		if p.Unsigned {
			buf[typesPos+i*2+1] = 0x80
		} else {
			buf[typesPos+i*2+1] = 0x00
		}
	}

	for _, p := range params {
		if !p.IsNull {
			buf = append(buf, p.Value...)
		}
	}

	return buf
}
