// Package protocol implements the MySQL/MariaDB wire format: packet
// framing, the length-encoded integer/string primitives, and the
// payload encoders/decoders for every packet type the session state
// machine needs.
//
// Nothing here owns a socket. Callers hand it raw bytes (inbound) or
// ask it for bytes to send (outbound); the session (package mysql)
// drives the actual I/O.
package protocol

// CapabilityFlag is the client/server capability bitset negotiated
// during the handshake.
type CapabilityFlag uint32

// Capability flags. Values must match the wire exactly (spec.md §6).
const (
	ClientLongPassword               CapabilityFlag = 0x00000001
	ClientFoundRows                  CapabilityFlag = 0x00000002
	ClientLongFlag                   CapabilityFlag = 0x00000004
	ClientConnectWithDB              CapabilityFlag = 0x00000008
	ClientNoSchema                   CapabilityFlag = 0x00000010
	ClientCompress                   CapabilityFlag = 0x00000020
	ClientODBC                       CapabilityFlag = 0x00000040
	ClientLocalFiles                 CapabilityFlag = 0x00000080
	ClientIgnoreSpace                CapabilityFlag = 0x00000100
	ClientProtocol41                 CapabilityFlag = 0x00000200
	ClientInteractive                CapabilityFlag = 0x00000400
	ClientSSL                        CapabilityFlag = 0x00000800
	ClientIgnoreSIGPIPE              CapabilityFlag = 0x00001000
	ClientTransactions               CapabilityFlag = 0x00002000
	ClientReserved                   CapabilityFlag = 0x00004000
	ClientSecureConnection           CapabilityFlag = 0x00008000
	ClientMultiStatements            CapabilityFlag = 0x00010000
	ClientMultiResults               CapabilityFlag = 0x00020000
	ClientPSMultiResults             CapabilityFlag = 0x00040000
	ClientPluginAuth                 CapabilityFlag = 0x00080000
	ClientConnectAttrs               CapabilityFlag = 0x00100000
	ClientPluginAuthLenEncClientData CapabilityFlag = 0x00200000
	ClientCanHandleExpiredPasswords  CapabilityFlag = 0x00400000
	ClientSessionTrack               CapabilityFlag = 0x00800000
	ClientDeprecateEOF               CapabilityFlag = 0x01000000
)

// StatusFlag is the server status bitset carried on OK/EOF packets.
type StatusFlag uint16

const (
	StatusInTrans            StatusFlag = 0x0001
	StatusAutocommit         StatusFlag = 0x0002
	StatusMoreResultsExists  StatusFlag = 0x0008
	StatusNoGoodIndexUsed    StatusFlag = 0x0010
	StatusNoIndexUsed        StatusFlag = 0x0020
	StatusCursorExists       StatusFlag = 0x0040
	StatusLastRowSent        StatusFlag = 0x0080
	StatusDBDropped          StatusFlag = 0x0100
	StatusNoBackslashEscapes StatusFlag = 0x0200
)

// Command is a COM_* command byte.
type Command byte

const (
	ComQuit        Command = 0x01
	ComInitDB      Command = 0x02
	ComQuery       Command = 0x03
	ComStmtPrepare Command = 0x16
	ComStmtExecute Command = 0x17
	ComStmtClose   Command = 0x19
)

// Generic response packet indicator bytes (spec.md §4.2).
const (
	IndicatorOK           byte = 0x00
	IndicatorAuthMoreData byte = 0x01
	IndicatorLocalInFile  byte = 0xFB
	IndicatorEOF          byte = 0xFE
	IndicatorErr          byte = 0xFF
)

// FieldType is a MySQL column type code.
type FieldType byte

const (
	FieldTypeDecimal    FieldType = 0x00
	FieldTypeTiny       FieldType = 0x01
	FieldTypeShort      FieldType = 0x02
	FieldTypeLong       FieldType = 0x03
	FieldTypeFloat      FieldType = 0x04
	FieldTypeDouble     FieldType = 0x05
	FieldTypeNULL       FieldType = 0x06
	FieldTypeTimestamp  FieldType = 0x07
	FieldTypeLongLong   FieldType = 0x08
	FieldTypeInt24      FieldType = 0x09
	FieldTypeDate       FieldType = 0x0a
	FieldTypeTime       FieldType = 0x0b
	FieldTypeDateTime   FieldType = 0x0c
	FieldTypeYear       FieldType = 0x0d
	FieldTypeNewDate    FieldType = 0x0e
	FieldTypeVarChar    FieldType = 0x0f
	FieldTypeBit        FieldType = 0x10
	FieldTypeJSON       FieldType = 0xf5
	FieldTypeNewDecimal FieldType = 0xf6
	FieldTypeEnum       FieldType = 0xf7
	FieldTypeSet        FieldType = 0xf8
	FieldTypeTinyBLOB   FieldType = 0xf9
	FieldTypeMediumBLOB FieldType = 0xfa
	FieldTypeLongBLOB   FieldType = 0xfb
	FieldTypeBLOB       FieldType = 0xfc
	FieldTypeVarString  FieldType = 0xfd
	FieldTypeString     FieldType = 0xfe
	FieldTypeGeometry   FieldType = 0xff
)

// FieldFlag is a column definition flag bitset.
type FieldFlag uint16

const (
	FlagNotNULL     FieldFlag = 0x0001
	FlagPriKey      FieldFlag = 0x0002
	FlagUniqueKey   FieldFlag = 0x0004
	FlagMultipleKey FieldFlag = 0x0008
	FlagBlob        FieldFlag = 0x0010
	FlagUnsigned    FieldFlag = 0x0020
	FlagZerofill    FieldFlag = 0x0040
	FlagBinary      FieldFlag = 0x0080
	FlagEnum        FieldFlag = 0x0100
	FlagAutoIncrement FieldFlag = 0x0200
	FlagTimestamp   FieldFlag = 0x0400
	FlagSet         FieldFlag = 0x0800
)

// BinaryCollation is the reserved collation id meaning "binary" (spec.md §4.4).
const BinaryCollation = 63

// MinProtocolVersion is the lowest initial-handshake protocol_version
// this client will speak to.
const MinProtocolVersion = 10

// MaxPacketSize is the largest single MySQL packet payload
// (2^24-1). The client does not support fragmenting a single logical
// payload across more than one packet (spec.md §4.1).
const MaxPacketSize = 1<<24 - 1

// ClientMaxPacketSize is the max_packet_size field the client
// advertises in its handshake response / SSL request when the caller
// has not configured one of its own (spec.md §4.2).
const ClientMaxPacketSize = 50 * 1024 * 1024
