package tlswire

import (
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/xerrors"

	"github.com/lanikai/tlswire/internal/packet"
)

// This file implements C5: the handshake message grammars, and the C3
// payload-polymorphism dispatch for the "handshake messages keyed by type
// within a record" case (spec §4.3).

// HandshakeType is the 8-bit discriminant of a handshake message.
type HandshakeType uint8

const (
	HelloRequest       HandshakeType = 0
	ClientHelloType    HandshakeType = 1
	ServerHelloType    HandshakeType = 2
	HelloVerifyRequest HandshakeType = 3 // DTLS only
	CertificateType    HandshakeType = 11
	ServerKeyExchange  HandshakeType = 12
	CertificateRequest HandshakeType = 13
	ServerHelloDone    HandshakeType = 14
	CertificateVerify  HandshakeType = 15
	ClientKeyExchange  HandshakeType = 16
	Finished           HandshakeType = 20
)

func (t HandshakeType) String() string {
	switch t {
	case HelloRequest:
		return "hello_request"
	case ClientHelloType:
		return "client_hello"
	case ServerHelloType:
		return "server_hello"
	case HelloVerifyRequest:
		return "hello_verify_request"
	case CertificateType:
		return "certificate"
	case ServerKeyExchange:
		return "server_key_exchange"
	case CertificateRequest:
		return "certificate_request"
	case ServerHelloDone:
		return "server_hello_done"
	case CertificateVerify:
		return "certificate_verify"
	case ClientKeyExchange:
		return "client_key_exchange"
	case Finished:
		return "finished"
	default:
		return "unknown_handshake_type"
	}
}

// HandshakeBody is a decoded handshake sub-grammar (C3's payload slot). It
// returns OverflowingLengthField rather than truncating when a field
// doesn't fit its wire width (spec §7, invariant I2).
type HandshakeBody interface {
	Encode() ([]byte, error)
}

// HandshakeGrammar decodes the body bytes of a handshake message of a
// registered type. isDTLS lets a single registry entry branch on the
// stream-vs-cookie ClientHello shape.
type HandshakeGrammar func(body []byte, isDTLS bool) (HandshakeBody, error)

var handshakeRegistry = make(map[HandshakeType]HandshakeGrammar)

// RegisterHandshakePayload adds (or replaces) the sub-grammar used to
// decode handshake bodies of the given type (spec §6: register_payload).
func RegisterHandshakePayload(t HandshakeType, grammar HandshakeGrammar) {
	handshakeRegistry[t] = grammar
}

func init() {
	RegisterHandshakePayload(ClientHelloType, decodeClientHelloBody)
	RegisterHandshakePayload(ServerHelloType, decodeServerHelloBody)
	RegisterHandshakePayload(HelloVerifyRequest, decodeHelloVerifyRequestBody)
	RegisterHandshakePayload(CertificateType, decodeCertificateBody)
	RegisterHandshakePayload(ServerHelloDone, decodeServerHelloDoneBody)
	RegisterHandshakePayload(ServerKeyExchange, decodeOpaqueHandshakeBody)
	RegisterHandshakePayload(ClientKeyExchange, decodeOpaqueHandshakeBody)
}

// Handshake is the stream-TLS handshake wrapper: type:u8; length:u24;
// body[length].
type Handshake struct {
	MessageType HandshakeType
	Body        []byte
	Parsed      HandshakeBody
}

// DecodeHandshake decodes one Handshake record from b, which must contain
// at least the 4-byte header. Returns NotEnoughData (cursor unchanged) if
// body isn't fully present yet.
func DecodeHandshake(b []byte) (*Handshake, []byte, error) {
	r := packet.NewReader(b)
	mark := r.Offset()

	typ, err := readUint8(r, "handshake.type")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	length, err := readUint24(r, "handshake.length")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	body, err := readFixed(r, "handshake.body", int(length))
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}

	h := &Handshake{MessageType: HandshakeType(typ), Body: body}
	if grammar, ok := handshakeRegistry[h.MessageType]; ok {
		parsed, err := grammar(body, false)
		if err != nil {
			return nil, b, xerrors.Errorf("handshake %s: %w", h.MessageType, err)
		}
		h.Parsed = parsed
	}
	return h, b[r.Offset():], nil
}

// Encode serializes the Handshake header and body. If Parsed is set, its
// Encode() output supersedes Body (spec §4.3 encode rule).
func (h *Handshake) Encode() ([]byte, error) {
	body := h.Body
	if h.Parsed != nil {
		encoded, err := h.Parsed.Encode()
		if err != nil {
			return nil, err
		}
		body = encoded
	}
	w := packet.NewWriterSize(4 + len(body))
	w.WriteByte(byte(h.MessageType))
	writeUint24(w, uint32(len(body)))
	w.WriteSlice(body)
	return w.Bytes(), nil
}

// DTLSHandshake is the DTLS handshake wrapper: type:u8; length:u24;
// message_seq:u16; fragment_offset:u24; fragment_length:u24;
// body[fragment_length]. A fully reassembled message has fragment_offset=0
// and fragment_length=length (invariant I4).
type DTLSHandshake struct {
	MessageType     HandshakeType
	Length          uint32
	MessageSeq      uint16
	FragmentOffset  uint32
	FragmentLength  uint32
	Body            []byte
	Parsed          HandshakeBody
}

// IsFragment reports whether this message is a strict subrange of a larger
// handshake message (invariant I4).
func (h *DTLSHandshake) IsFragment() bool {
	return h.FragmentOffset != 0 || h.FragmentLength != h.Length
}

// DecodeDTLSHandshakeHeader decodes only the 12-byte DTLS handshake header
// plus its fragment bytes, without attempting sub-grammar decode (the
// reassembler decides when that is safe to do, per spec §4.7's DTLS
// fragment carve-out).
func DecodeDTLSHandshakeHeader(b []byte) (*DTLSHandshake, []byte, error) {
	r := packet.NewReader(b)
	mark := r.Offset()

	typ, err := readUint8(r, "dtls_handshake.type")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	length, err := readUint24(r, "dtls_handshake.length")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	seq, err := readUint16(r, "dtls_handshake.message_seq")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	fragOffset, err := readUint24(r, "dtls_handshake.fragment_offset")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	fragLength, err := readUint24(r, "dtls_handshake.fragment_length")
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}
	body, err := readFixed(r, "dtls_handshake.body", int(fragLength))
	if err != nil {
		r.Seek(mark)
		return nil, b, err
	}

	h := &DTLSHandshake{
		MessageType:    HandshakeType(typ),
		Length:         length,
		MessageSeq:     seq,
		FragmentOffset: fragOffset,
		FragmentLength: fragLength,
		Body:           body,
	}
	return h, b[r.Offset():], nil
}

// decodeBody runs this message's registered sub-grammar over Body,
// treating the DTLS ClientHello/HelloVerifyRequest shapes correctly. Only
// called by the reassembler once a message is fully assembled (IsFragment
// == false), per spec §4.3's DTLS fragment carve-out.
func (h *DTLSHandshake) decodeBody() error {
	grammar, ok := handshakeRegistry[h.MessageType]
	if !ok {
		return nil
	}
	parsed, err := grammar(h.Body, true)
	if err != nil {
		return xerrors.Errorf("dtls handshake %s: %w", h.MessageType, err)
	}
	h.Parsed = parsed
	return nil
}

// Encode serializes the full (non-fragmented) DTLSHandshake header and
// body. The codec does not fragment on send (spec §4.8): FragmentOffset is
// always 0 and FragmentLength always equals Length.
func (h *DTLSHandshake) Encode() ([]byte, error) {
	body := h.Body
	if h.Parsed != nil {
		encoded, err := h.Parsed.Encode()
		if err != nil {
			return nil, err
		}
		body = encoded
	}
	h.Length = uint32(len(body))
	h.FragmentOffset = 0
	h.FragmentLength = h.Length

	w := packet.NewWriterSize(12 + len(body))
	w.WriteByte(byte(h.MessageType))
	writeUint24(w, h.Length)
	w.WriteUint16(h.MessageSeq)
	writeUint24(w, h.FragmentOffset)
	writeUint24(w, h.FragmentLength)
	w.WriteSlice(body)
	return w.Bytes(), nil
}

// --- ClientHello / DTLS ClientHello ---

type CipherSuite uint16
type CompressionMethod uint8

// ClientHello covers both the stream-TLS grammar and, when IsDTLS is set,
// the DTLS grammar which adds the cookie field (spec §4.5). A DTLS decode
// always leaves Cookie non-nil, possibly zero-length.
type ClientHello struct {
	VersionMajor, VersionMinor byte
	Random                     Random
	SessionID                  []byte
	Cookie                     []byte // DTLS only; ignored unless IsDTLS
	IsDTLS                     bool
	CipherSuites               []CipherSuite
	CompressionMethods         []CompressionMethod
	Extensions                 []Extension
	// ExtensionsPresent records whether decode saw an explicit (possibly
	// zero-length) extensions header, vs. no extensions field at all.
	// Encode does not consult it: an empty list always encodes to zero
	// bytes either way (spec §4.2/P8).
	ExtensionsPresent bool
}

func decodeClientHelloBody(body []byte, isDTLS bool) (HandshakeBody, error) {
	s := cryptobyte.String(body)
	var ch ClientHello
	ch.IsDTLS = isDTLS

	r := packet.NewReader([]byte(s))
	verMajor, err := readUint8(r, "client_hello.version.major")
	if err != nil {
		return nil, err
	}
	verMinor, err := readUint8(r, "client_hello.version.minor")
	if err != nil {
		return nil, err
	}
	ch.VersionMajor, ch.VersionMinor = verMajor, verMinor
	rnd, err := decodeRandom(r)
	if err != nil {
		return nil, err
	}
	ch.Random = rnd
	s = cryptobyte.String(body[r.Offset():])

	sessionID, err := DecodeVectorOpaque(&s, "client_hello.session_id", Width8)
	if err != nil {
		return nil, err
	}
	ch.SessionID = sessionID

	if isDTLS {
		cookie, err := DecodeVectorOpaque(&s, "client_hello.cookie", Width8)
		if err != nil {
			return nil, err
		}
		ch.Cookie = cookie
		if ch.Cookie == nil {
			ch.Cookie = []byte{}
		}
	}

	rawSuites, err := DecodeUint16List(&s, "client_hello.cipher_suites", Width16)
	if err != nil {
		return nil, err
	}
	for _, v := range rawSuites {
		ch.CipherSuites = append(ch.CipherSuites, CipherSuite(v))
	}

	rawComp, err := DecodeUint8List(&s, "client_hello.compression_methods", Width8)
	if err != nil {
		return nil, err
	}
	for _, v := range rawComp {
		ch.CompressionMethods = append(ch.CompressionMethods, CompressionMethod(v))
	}

	exts, present, err := DecodeExtensions(&s)
	if err != nil {
		return nil, err
	}
	ch.Extensions, ch.ExtensionsPresent = exts, present

	return &ch, nil
}

func (ch *ClientHello) Encode() ([]byte, error) {
	w := packet.NewWriterSize(2)
	w.WriteByte(ch.VersionMajor)
	w.WriteByte(ch.VersionMinor)
	out := append(w.Bytes(), ch.Random.Encode()...)

	b := cryptobyte.NewBuilder(out)
	if err := EncodeVectorOpaque(b, Width8, "client_hello.session_id", ch.SessionID); err != nil {
		return nil, err
	}
	if ch.IsDTLS {
		if err := EncodeVectorOpaque(b, Width8, "client_hello.cookie", ch.Cookie); err != nil {
			return nil, err
		}
	}
	raw := make([]uint16, len(ch.CipherSuites))
	for i, cs := range ch.CipherSuites {
		raw[i] = uint16(cs)
	}
	EncodeUint16List(b, Width16, raw)

	rawComp := make([]uint8, len(ch.CompressionMethods))
	for i, cm := range ch.CompressionMethods {
		rawComp[i] = uint8(cm)
	}
	EncodeUint8List(b, Width8, rawComp)

	if err := EncodeExtensions(b, ch.Extensions); err != nil {
		return nil, err
	}
	return b.BytesOrPanic(), nil
}

// --- ServerHello ---

type ServerHello struct {
	VersionMajor, VersionMinor byte
	Random                     Random
	SessionID                  []byte
	CipherSuite                CipherSuite
	CompressionMethod          CompressionMethod
	Extensions                 []Extension
	// ExtensionsPresent records whether decode saw an explicit (possibly
	// zero-length) extensions header, vs. no extensions field at all.
	// Encode does not consult it: an empty list always encodes to zero
	// bytes either way (spec §4.2/P8).
	ExtensionsPresent bool
}

func decodeServerHelloBody(body []byte, isDTLS bool) (HandshakeBody, error) {
	r := packet.NewReader(body)
	var sh ServerHello

	major, err := readUint8(r, "server_hello.version.major")
	if err != nil {
		return nil, err
	}
	minor, err := readUint8(r, "server_hello.version.minor")
	if err != nil {
		return nil, err
	}
	sh.VersionMajor, sh.VersionMinor = major, minor

	rnd, err := decodeRandom(r)
	if err != nil {
		return nil, err
	}
	sh.Random = rnd

	s := cryptobyte.String(body[r.Offset():])
	sessionID, err := DecodeVectorOpaque(&s, "server_hello.session_id", Width8)
	if err != nil {
		return nil, err
	}
	sh.SessionID = sessionID

	var suite uint16
	if !s.ReadUint16(&suite) {
		return nil, xerrors.New("server_hello: truncated cipher_suite")
	}
	sh.CipherSuite = CipherSuite(suite)

	var comp uint8
	if !s.ReadUint8(&comp) {
		return nil, xerrors.New("server_hello: truncated compression_method")
	}
	sh.CompressionMethod = CompressionMethod(comp)

	exts, present, err := DecodeExtensions(&s)
	if err != nil {
		return nil, err
	}
	sh.Extensions, sh.ExtensionsPresent = exts, present

	return &sh, nil
}

func (sh *ServerHello) Encode() ([]byte, error) {
	w := packet.NewWriterSize(2)
	w.WriteByte(sh.VersionMajor)
	w.WriteByte(sh.VersionMinor)
	out := append(w.Bytes(), sh.Random.Encode()...)

	b := cryptobyte.NewBuilder(out)
	if err := EncodeVectorOpaque(b, Width8, "server_hello.session_id", sh.SessionID); err != nil {
		return nil, err
	}
	b.AddUint16(uint16(sh.CipherSuite))
	b.AddUint8(uint8(sh.CompressionMethod))
	if err := EncodeExtensions(b, sh.Extensions); err != nil {
		return nil, err
	}
	return b.BytesOrPanic(), nil
}

// --- HelloVerifyRequest (DTLS only) ---

type HelloVerifyRequestMsg struct {
	VersionMajor, VersionMinor byte
	Cookie                     []byte
}

func decodeHelloVerifyRequestBody(body []byte, isDTLS bool) (HandshakeBody, error) {
	r := packet.NewReader(body)
	major, err := readUint8(r, "hello_verify_request.version.major")
	if err != nil {
		return nil, err
	}
	minor, err := readUint8(r, "hello_verify_request.version.minor")
	if err != nil {
		return nil, err
	}
	s := cryptobyte.String(body[r.Offset():])
	cookie, err := DecodeVectorOpaque(&s, "hello_verify_request.cookie", Width8)
	if err != nil {
		return nil, err
	}
	return &HelloVerifyRequestMsg{VersionMajor: major, VersionMinor: minor, Cookie: cookie}, nil
}

func (h *HelloVerifyRequestMsg) Encode() ([]byte, error) {
	w := packet.NewWriterSize(2)
	w.WriteByte(h.VersionMajor)
	w.WriteByte(h.VersionMinor)
	b := cryptobyte.NewBuilder(w.Bytes())
	if err := EncodeVectorOpaque(b, Width8, "hello_verify_request.cookie", h.Cookie); err != nil {
		return nil, err
	}
	return b.BytesOrPanic(), nil
}

// --- ServerCertificate ---

// ServerCertificate carries certificate_list, a <u24>* vector of
// <u24>-opaque blobs. Certificate parsing itself is out of scope (spec
// §1): each entry is treated as an opaque DER blob.
type ServerCertificate struct {
	Certificates [][]byte
}

func decodeCertificateBody(body []byte, isDTLS bool) (HandshakeBody, error) {
	s := cryptobyte.String(body)
	var out ServerCertificate
	err := decodeItems(&s, "certificate.certificate_list", Width24, func(item *cryptobyte.String) error {
		cert, err := DecodeVectorOpaque(item, "certificate.certificate_list.entry", Width24)
		if err != nil {
			return err
		}
		out.Certificates = append(out.Certificates, cert)
		return nil
	})
	return &out, err
}

func (c *ServerCertificate) Encode() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	err := encodeItems(b, Width24, len(c.Certificates), func(child *cryptobyte.Builder, i int) error {
		return EncodeVectorOpaque(child, Width24, "certificate.certificate_list.entry", c.Certificates[i])
	})
	if err != nil {
		return nil, err
	}
	return b.BytesOrPanic(), nil
}

// --- ServerHelloDone ---

type ServerHelloDoneMsg struct{}

func decodeServerHelloDoneBody(body []byte, isDTLS bool) (HandshakeBody, error) {
	if len(body) != 0 {
		return nil, xerrors.New("server_hello_done: body must be empty")
	}
	return &ServerHelloDoneMsg{}, nil
}

func (*ServerHelloDoneMsg) Encode() ([]byte, error) { return nil, nil }

// --- ServerKeyExchange / ClientKeyExchange ---

// OpaqueHandshakeBody is used for ServerKeyExchange and ClientKeyExchange:
// their grammar depends on the negotiated key-exchange method, which this
// library does not model (spec §4.5: "treated as raw body").
type OpaqueHandshakeBody struct {
	Raw []byte
}

func decodeOpaqueHandshakeBody(body []byte, isDTLS bool) (HandshakeBody, error) {
	return &OpaqueHandshakeBody{Raw: append([]byte(nil), body...)}, nil
}

func (o *OpaqueHandshakeBody) Encode() ([]byte, error) { return o.Raw, nil }
