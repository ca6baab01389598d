package tlswire

import (
	"golang.org/x/xerrors"

	"github.com/lanikai/tlswire/internal/packet"
)

// This file implements the SSLv2 record framing and handshake grammars
// from spec §4.5/§4.6. SSLv2 has no extensions and no separate record
// version/length-prefixed payload in the TLS sense: the header shape
// itself is discriminated by the high bits of its first byte (P9).

// RecordKind distinguishes which of the three record shapes a chunk of
// bytes starts with, per the detection rule in spec §4.6.
type RecordKind int

const (
	UnknownRecordKind RecordKind = iota
	SSLv2RecordKind
	TLSRecordKind
)

// DetectRecordKind inspects the first few bytes of b to decide which
// record shape to parse next, per spec §4.6: "multi-record detection is
// by the first few bytes of the stream: if byte 3 == 0x00 and byte 4 ==
// 0x02 -> SSLv2Record; else if byte 1 == 0x03 -> SSLv3/TLS Record."
// Fewer than 5 bytes available yields NotEnoughData.
func DetectRecordKind(b []byte) (RecordKind, error) {
	if len(b) < 5 {
		return UnknownRecordKind, errNotEnoughData("record.detect", 5, len(b))
	}
	if b[3] == 0x00 && b[4] == 0x02 {
		return SSLv2RecordKind, nil
	}
	if b[1] == 0x03 {
		return TLSRecordKind, nil
	}
	return UnknownRecordKind, &Error{Kind: MalformedVector, Field: "record.detect", cause: xerrors.New("unrecognized record header")}
}

// SSLv2Record is the SSLv2 record, one of two header shapes selected by
// the high bit of the first byte (spec §4.6).
type SSLv2Record struct {
	// TwoByteHeader is true when byte0&0x80==0x80 (2-byte header, no
	// padding); false selects the 3-byte header (escape bit + padding).
	TwoByteHeader bool
	IsEscape      bool // only meaningful when !TwoByteHeader
	Type          uint8
	Body          []byte
	Padding       []byte // only present when !TwoByteHeader
	Parsed        HandshakeBody
}

// DecodeSSLv2Record decodes one SSLv2Record from b.
func DecodeSSLv2Record(b []byte) (*SSLv2Record, []byte, error) {
	if len(b) < 3 {
		return nil, b, errNotEnoughData("ssl2_record.header", 3, len(b))
	}

	byte0 := b[0]
	rec := &SSLv2Record{}

	// length counts type:u8 plus the body that follows it (classic SSLv2
	// framing); padding, present only in the 3-byte form, is additional.
	var headerLen, length int
	var paddingLength int
	if byte0&0x80 == 0x80 {
		rec.TwoByteHeader = true
		headerLen = 2
		length = int(byte0&0x7f)<<8 | int(b[1])
	} else {
		rec.TwoByteHeader = false
		rec.IsEscape = byte0&0x40 != 0
		headerLen = 3
		length = int(byte0&0x3f)<<8 | int(b[1])
		paddingLength = int(b[2])
	}
	if length < 1 {
		return nil, b, &Error{Kind: MalformedVector, Field: "ssl2_record.length",
			cause: xerrors.New("length must cover at least the type byte")}
	}
	bodyLength := length - 1

	total := headerLen + length + paddingLength
	if len(b) < total {
		return nil, b, errNotEnoughData("ssl2_record", total, len(b))
	}

	r := packet.NewReader(b)
	r.Skip(headerLen)
	typ, err := readUint8(r, "ssl2_record.type")
	if err != nil {
		return nil, b, err
	}
	rec.Type = typ

	body, err := readFixed(r, "ssl2_record.body", bodyLength)
	if err != nil {
		return nil, b, err
	}
	rec.Body = body

	if !rec.TwoByteHeader {
		padding, err := readFixed(r, "ssl2_record.padding", paddingLength)
		if err != nil {
			return nil, b, err
		}
		rec.Padding = padding
	}

	if grammar, ok := ssl2Registry[HandshakeType(typ)]; ok {
		parsed, err := grammar(body)
		if err != nil {
			return nil, b, xerrors.Errorf("ssl2 handshake %d: %w", typ, err)
		}
		rec.Parsed = parsed
	}

	return rec, b[r.Offset():], nil
}

// Encode serializes the SSLv2Record using whichever header shape it was
// decoded with (or constructed with).
func (r *SSLv2Record) Encode() ([]byte, error) {
	body := r.Body
	if r.Parsed != nil {
		encoded, err := r.Parsed.Encode()
		if err != nil {
			return nil, err
		}
		body = encoded
	}

	length := 1 + len(body) // type byte plus body
	var header []byte
	if r.TwoByteHeader {
		header = []byte{byte(0x80 | (length>>8)&0x7f), byte(length)}
	} else {
		b0 := byte(length>>8) & 0x3f
		if r.IsEscape {
			b0 |= 0x40
		}
		header = []byte{b0, byte(length), byte(len(r.Padding))}
	}

	out := append([]byte{}, header...)
	out = append(out, r.Type)
	out = append(out, body...)
	if !r.TwoByteHeader {
		out = append(out, r.Padding...)
	}
	return out, nil
}

// ssl2Registry dispatches an SSLv2Record's type byte to its handshake
// sub-grammar, mirroring handshakeRegistry for the stream/DTLS case.
var ssl2Registry = make(map[HandshakeType]func(body []byte) (HandshakeBody, error))

func init() {
	ssl2Registry[ClientHelloType] = decodeSSLv2ClientHello
	ssl2Registry[ServerHelloType] = decodeSSLv2ServerHello
}

// SSLv2CipherSuite is a 24-bit SSLv2 cipher-suite identifier.
type SSLv2CipherSuite [3]byte

// SSLv2ClientHello is the SSLv2 ClientHello grammar (spec §4.5):
// version; cipher_suites_length:u16; session_id_length:u16;
// challenge_length:u16; cipher_suites[cipher_suites_length as 3-byte
// items]; session_id[session_id_length]; challenge[challenge_length].
type SSLv2ClientHello struct {
	VersionMajor, VersionMinor byte
	CipherSuites               []SSLv2CipherSuite
	SessionID                  []byte
	Challenge                  []byte
}

func decodeSSLv2ClientHello(body []byte) (HandshakeBody, error) {
	r := packet.NewReader(body)

	major, err := readUint8(r, "ssl2_client_hello.version.major")
	if err != nil {
		return nil, err
	}
	minor, err := readUint8(r, "ssl2_client_hello.version.minor")
	if err != nil {
		return nil, err
	}

	cipherSuitesLength, err := readUint16(r, "ssl2_client_hello.cipher_suites_length")
	if err != nil {
		return nil, err
	}
	sessionIDLength, err := readUint16(r, "ssl2_client_hello.session_id_length")
	if err != nil {
		return nil, err
	}
	challengeLength, err := readUint16(r, "ssl2_client_hello.challenge_length")
	if err != nil {
		return nil, err
	}

	if cipherSuitesLength%3 != 0 {
		return nil, &Error{Kind: MalformedVector, Field: "ssl2_client_hello.cipher_suites",
			cause: xerrors.Errorf("cipher suite items shorter than 3 bytes: length %d not a multiple of 3", cipherSuitesLength)}
	}

	ch := &SSLv2ClientHello{VersionMajor: major, VersionMinor: minor}

	n := int(cipherSuitesLength) / 3
	for i := 0; i < n; i++ {
		raw, err := readFixed(r, "ssl2_client_hello.cipher_suites.entry", 3)
		if err != nil {
			return nil, err
		}
		var cs SSLv2CipherSuite
		copy(cs[:], raw)
		ch.CipherSuites = append(ch.CipherSuites, cs)
	}

	sessionID, err := readFixed(r, "ssl2_client_hello.session_id", int(sessionIDLength))
	if err != nil {
		return nil, err
	}
	ch.SessionID = sessionID

	challenge, err := readFixed(r, "ssl2_client_hello.challenge", int(challengeLength))
	if err != nil {
		return nil, err
	}
	ch.Challenge = challenge

	return ch, nil
}

func (ch *SSLv2ClientHello) Encode() ([]byte, error) {
	w := packet.NewWriterSize(8 + 3*len(ch.CipherSuites) + len(ch.SessionID) + len(ch.Challenge))
	w.WriteByte(ch.VersionMajor)
	w.WriteByte(ch.VersionMinor)
	w.WriteUint16(uint16(3 * len(ch.CipherSuites)))
	w.WriteUint16(uint16(len(ch.SessionID)))
	w.WriteUint16(uint16(len(ch.Challenge)))
	for _, cs := range ch.CipherSuites {
		w.WriteSlice(cs[:])
	}
	w.WriteSlice(ch.SessionID)
	w.WriteSlice(ch.Challenge)
	return w.Bytes(), nil
}

// SSLv2ServerHello is the SSLv2 ServerHello grammar (spec §4.5):
// session_id_hit:u8; certificate_type:u8; version; certificate_length:u16;
// cipher_suites_length:u16; connection_id_length:u16; certificate[...];
// cipher_suites[...]; connection_id[...].
type SSLv2ServerHello struct {
	SessionIDHit    uint8
	CertificateType uint8
	VersionMajor    byte
	VersionMinor    byte
	Certificate     []byte
	CipherSuites    []SSLv2CipherSuite
	ConnectionID    []byte
}

func decodeSSLv2ServerHello(body []byte) (HandshakeBody, error) {
	r := packet.NewReader(body)

	hit, err := readUint8(r, "ssl2_server_hello.session_id_hit")
	if err != nil {
		return nil, err
	}
	certType, err := readUint8(r, "ssl2_server_hello.certificate_type")
	if err != nil {
		return nil, err
	}
	major, err := readUint8(r, "ssl2_server_hello.version.major")
	if err != nil {
		return nil, err
	}
	minor, err := readUint8(r, "ssl2_server_hello.version.minor")
	if err != nil {
		return nil, err
	}
	certLength, err := readUint16(r, "ssl2_server_hello.certificate_length")
	if err != nil {
		return nil, err
	}
	cipherSuitesLength, err := readUint16(r, "ssl2_server_hello.cipher_suites_length")
	if err != nil {
		return nil, err
	}
	connIDLength, err := readUint16(r, "ssl2_server_hello.connection_id_length")
	if err != nil {
		return nil, err
	}

	if cipherSuitesLength%3 != 0 {
		return nil, &Error{Kind: MalformedVector, Field: "ssl2_server_hello.cipher_suites",
			cause: xerrors.Errorf("cipher suite items shorter than 3 bytes: length %d not a multiple of 3", cipherSuitesLength)}
	}

	sh := &SSLv2ServerHello{
		SessionIDHit:    hit,
		CertificateType: certType,
		VersionMajor:    major,
		VersionMinor:    minor,
	}

	cert, err := readFixed(r, "ssl2_server_hello.certificate", int(certLength))
	if err != nil {
		return nil, err
	}
	sh.Certificate = cert

	n := int(cipherSuitesLength) / 3
	for i := 0; i < n; i++ {
		raw, err := readFixed(r, "ssl2_server_hello.cipher_suites.entry", 3)
		if err != nil {
			return nil, err
		}
		var cs SSLv2CipherSuite
		copy(cs[:], raw)
		sh.CipherSuites = append(sh.CipherSuites, cs)
	}

	connID, err := readFixed(r, "ssl2_server_hello.connection_id", int(connIDLength))
	if err != nil {
		return nil, err
	}
	sh.ConnectionID = connID

	return sh, nil
}

func (sh *SSLv2ServerHello) Encode() ([]byte, error) {
	w := packet.NewWriterSize(10 + len(sh.Certificate) + 3*len(sh.CipherSuites) + len(sh.ConnectionID))
	w.WriteByte(sh.SessionIDHit)
	w.WriteByte(sh.CertificateType)
	w.WriteByte(sh.VersionMajor)
	w.WriteByte(sh.VersionMinor)
	w.WriteUint16(uint16(len(sh.Certificate)))
	w.WriteUint16(uint16(3 * len(sh.CipherSuites)))
	w.WriteUint16(uint16(len(sh.ConnectionID)))
	w.WriteSlice(sh.Certificate)
	for _, cs := range sh.CipherSuites {
		w.WriteSlice(cs[:])
	}
	w.WriteSlice(sh.ConnectionID)
	return w.Bytes(), nil
}
