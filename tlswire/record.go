package tlswire

import (
	"golang.org/x/xerrors"

	"github.com/lanikai/tlswire/internal/packet"
)

// This file implements C6: the record layer. Three record shapes share the
// package: SSLv2Record (ssl2.go), Record (SSLv3/TLS), and DTLSRecord.

// ContentType is the 8-bit discriminant of a TLS/DTLS record's payload.
type ContentType uint8

const (
	ChangeCipherSpecContentType ContentType = 20
	AlertContentType            ContentType = 21
	HandshakeContentType        ContentType = 22
	ApplicationDataContentType  ContentType = 23
	HeartbeatContentType        ContentType = 24
)

func (c ContentType) String() string {
	switch c {
	case ChangeCipherSpecContentType:
		return "change_cipher_spec"
	case AlertContentType:
		return "alert"
	case HandshakeContentType:
		return "handshake"
	case ApplicationDataContentType:
		return "application_data"
	case HeartbeatContentType:
		return "heartbeat"
	default:
		return "unknown_content_type"
	}
}

// Record is the SSLv3/TLS record: content_type:u8; version:{u8,u8};
// length:u16; payload[length].
type Record struct {
	ContentType ContentType
	Major       byte
	Minor       byte
	Payload     []byte
}

// RecordHeaderSize is the fixed size, in bytes, of a Record's header.
const RecordHeaderSize = 5

// DecodeRecord decodes one Record from b. Returns NotEnoughData, leaving
// the caller's slice untouched, if fewer than RecordHeaderSize + length
// bytes are available (invariant I1).
func DecodeRecord(b []byte) (*Record, []byte, error) {
	if len(b) < RecordHeaderSize {
		return nil, b, errNotEnoughData("record.header", RecordHeaderSize, len(b))
	}
	r := packet.NewReader(b)

	ct, _ := readUint8(r, "record.content_type")
	major, _ := readUint8(r, "record.version.major")
	minor, _ := readUint8(r, "record.version.minor")
	length, _ := readUint16(r, "record.length")

	payload, err := readFixed(r, "record.payload", int(length))
	if err != nil {
		return nil, b, err
	}

	rec := &Record{
		ContentType: ContentType(ct),
		Major:       major,
		Minor:       minor,
		Payload:     payload,
	}
	return rec, b[r.Offset():], nil
}

// Encode serializes the Record header and payload. The length field is
// always recomputed from len(Payload) (invariant I3).
func (r *Record) Encode() []byte {
	w := packet.NewWriterSize(RecordHeaderSize + len(r.Payload))
	w.WriteByte(byte(r.ContentType))
	w.WriteByte(r.Major)
	w.WriteByte(r.Minor)
	w.WriteUint16(uint16(len(r.Payload)))
	w.WriteSlice(r.Payload)
	return w.Bytes()
}

// Version returns the ProtocolVersion for this record's wire (major,
// minor), or ok=false if unrecognized.
func (r *Record) Version() (ProtocolVersion, bool) {
	return GetVersionByID(r.Major, r.Minor)
}

// DTLSRecordHeaderSize is the fixed size, in bytes, of a DTLSRecord's
// header.
const DTLSRecordHeaderSize = 13

// DTLSRecord is the DTLS record: content_type:u8; version; epoch:u16;
// sequence_number:u48; length:u16; payload[length].
type DTLSRecord struct {
	ContentType    ContentType
	Major          byte
	Minor          byte
	Epoch          uint16
	SequenceNumber uint64 // 48-bit
	Payload        []byte
}

// DecodeDTLSRecord decodes one DTLSRecord from b.
func DecodeDTLSRecord(b []byte) (*DTLSRecord, []byte, error) {
	if len(b) < DTLSRecordHeaderSize {
		return nil, b, errNotEnoughData("dtls_record.header", DTLSRecordHeaderSize, len(b))
	}
	r := packet.NewReader(b)

	ct, _ := readUint8(r, "dtls_record.content_type")
	major, _ := readUint8(r, "dtls_record.version.major")
	minor, _ := readUint8(r, "dtls_record.version.minor")
	epoch, _ := readUint16(r, "dtls_record.epoch")
	seq, _ := readUint48(r, "dtls_record.sequence_number")
	length, _ := readUint16(r, "dtls_record.length")

	payload, err := readFixed(r, "dtls_record.payload", int(length))
	if err != nil {
		return nil, b, err
	}

	rec := &DTLSRecord{
		ContentType:    ContentType(ct),
		Major:          major,
		Minor:          minor,
		Epoch:          epoch,
		SequenceNumber: seq & 0xffffffffffff,
		Payload:        payload,
	}
	return rec, b[r.Offset():], nil
}

// Encode serializes the DTLSRecord header and payload.
func (r *DTLSRecord) Encode() []byte {
	w := packet.NewWriterSize(DTLSRecordHeaderSize + len(r.Payload))
	w.WriteByte(byte(r.ContentType))
	w.WriteByte(r.Major)
	w.WriteByte(r.Minor)
	w.WriteUint16(r.Epoch)
	writeUint48(w, r.SequenceNumber)
	w.WriteUint16(uint16(len(r.Payload)))
	w.WriteSlice(r.Payload)
	return w.Bytes()
}

func (r *DTLSRecord) Version() (ProtocolVersion, bool) {
	return GetVersionByID(r.Major, r.Minor)
}

// --- Content sub-grammars (spec §4.6) ---

// Alert is the alert content-type payload: {level:u8, description:u8}.
type Alert struct {
	Level       uint8
	Description uint8
}

func DecodeAlert(b []byte) (*Alert, error) {
	if len(b) != 2 {
		return nil, xerrors.New("alert: body must be exactly 2 bytes")
	}
	return &Alert{Level: b[0], Description: b[1]}, nil
}

func (a *Alert) Encode() []byte {
	return []byte{a.Level, a.Description}
}

// ChangeCipherSpec is the change_cipher_spec content-type payload:
// {type:u8 = 1}.
type ChangeCipherSpec struct {
	Type uint8
}

func DecodeChangeCipherSpec(b []byte) (*ChangeCipherSpec, error) {
	if len(b) != 1 {
		return nil, xerrors.New("change_cipher_spec: body must be exactly 1 byte")
	}
	return &ChangeCipherSpec{Type: b[0]}, nil
}

func (c *ChangeCipherSpec) Encode() []byte {
	return []byte{c.Type}
}

// HeartbeatMessage is the heartbeat content-type payload: {type:u8,
// payload_length:u16, payload[payload_length], padding[remainder]}.
type HeartbeatMessage struct {
	Type    uint8
	Payload []byte
	Padding []byte
}

func DecodeHeartbeatMessage(b []byte) (*HeartbeatMessage, error) {
	r := packet.NewReader(b)
	typ, err := readUint8(r, "heartbeat.type")
	if err != nil {
		return nil, err
	}
	plen, err := readUint16(r, "heartbeat.payload_length")
	if err != nil {
		return nil, err
	}
	payload, err := readFixed(r, "heartbeat.payload", int(plen))
	if err != nil {
		return nil, err
	}
	padding := r.ReadRemaining()
	return &HeartbeatMessage{Type: typ, Payload: payload, Padding: append([]byte(nil), padding...)}, nil
}

func (h *HeartbeatMessage) Encode() []byte {
	w := packet.NewWriterSize(3 + len(h.Payload) + len(h.Padding))
	w.WriteByte(h.Type)
	w.WriteUint16(uint16(len(h.Payload)))
	w.WriteSlice(h.Payload)
	w.WriteSlice(h.Padding)
	return w.Bytes()
}
