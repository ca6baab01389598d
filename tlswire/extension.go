package tlswire

import (
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/xerrors"
)

// This file implements C4: the extension registry, a static
// type→sub-grammar dispatch table populated once via init() in this file
// (the "dependency-neutral module" the Design Notes call for, breaking the
// record/handshake/extension import cycle the Python source resolves with
// late imports).

// ExtensionType is the 16-bit discriminant of a handshake extension.
type ExtensionType uint16

const (
	ExtServerName              ExtensionType = 0x0000
	ExtEllipticCurves          ExtensionType = 0x000a
	ExtECPointFormats          ExtensionType = 0x000b
	ExtSignatureAlgorithms     ExtensionType = 0x000d
	ExtUseSRTP                 ExtensionType = 0x000e
	ExtHeartbeat               ExtensionType = 0x000f
	ExtALPN                    ExtensionType = 0x0010
	ExtExtendedMasterSecret    ExtensionType = 0x0017
	ExtSessionTicketTLS        ExtensionType = 0x0023
	ExtNextProtocolNegotiation ExtensionType = 0x3374
	ExtRenegotiationInfo       ExtensionType = 0xff01
)

// ExtensionBody is a decoded extension sub-grammar. Encode must reproduce
// exactly the bytes that would appear inside the extension's body (i.e.
// without the type/length header, which Extension itself owns). It
// returns OverflowingLengthField rather than truncating when a field
// doesn't fit its wire width (spec §7, invariant I2).
type ExtensionBody interface {
	Encode() ([]byte, error)
}

// ExtensionGrammar decodes the raw body bytes of an extension of a
// registered type. body may be empty (spec §4.4: empty bodies round-trip).
type ExtensionGrammar func(body []byte) (ExtensionBody, error)

var extensionRegistry = make(map[ExtensionType]ExtensionGrammar)

// RegisterExtension adds (or replaces) the sub-grammar used to decode
// extensions of the given type. The built-in grammars are registered from
// init() in this file; callers may also register grammars for extension
// types this package doesn't know about.
func RegisterExtension(t ExtensionType, grammar ExtensionGrammar) {
	extensionRegistry[t] = grammar
}

func init() {
	RegisterExtension(ExtServerName, decodeServerNameList)
	RegisterExtension(ExtEllipticCurves, decodeEllipticCurves)
	RegisterExtension(ExtECPointFormats, decodeECPointFormats)
	RegisterExtension(ExtSignatureAlgorithms, decodeSignatureAlgorithms)
	RegisterExtension(ExtHeartbeat, decodeHeartbeatMode)
	RegisterExtension(ExtALPN, decodeALPNProtocolList)
	RegisterExtension(ExtSessionTicketTLS, decodeSessionTicket)
	RegisterExtension(ExtNextProtocolNegotiation, decodeNPNProtocolList)
}

// Extension is a {type, length, body} triple inside a ClientHello or
// ServerHello. Body carries the raw bytes; Parsed carries the registered
// sub-grammar's decoded form when the type is known (UnknownPayloadType is
// not an error, per spec §7: the body is simply left opaque).
type Extension struct {
	Type   ExtensionType
	Body   []byte
	Parsed ExtensionBody
}

// decodeOneExtension reads a single {type:u16, length:u16, body} triple
// from s and returns it.
func decodeOneExtension(s *cryptobyte.String) (Extension, error) {
	var e Extension
	var typ uint16
	if !s.ReadUint16(&typ) {
		return e, xerrors.New("extension: truncated type")
	}
	e.Type = ExtensionType(typ)

	var body cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&body) {
		return e, xerrors.New("extension: truncated body")
	}
	e.Body = append([]byte(nil), body...)

	if grammar, ok := extensionRegistry[e.Type]; ok {
		parsed, err := grammar(e.Body)
		if err != nil {
			return e, xerrors.Errorf("extension %d: %w", typ, err)
		}
		e.Parsed = parsed
	}
	return e, nil
}

// Encode serializes the extension's {type, length, body} header and body.
// If Parsed is set, its Encode() output is authoritative (spec §4.3
// encode rule: re-derive the body from the typed payload when present).
func (e Extension) Encode() ([]byte, error) {
	body := e.Body
	if e.Parsed != nil {
		encoded, err := e.Parsed.Encode()
		if err != nil {
			return nil, err
		}
		body = encoded
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(uint16(e.Type))
	b.AddUint16LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddBytes(body)
	})
	return b.BytesOrPanic(), nil
}

// DecodeExtensions decodes the Extensions vector described in spec §4.2's
// special case: if zero bytes remain at the decode position, the field is
// absent entirely (no length prefix at all), distinct from an explicit
// empty list. Both round-trip to zero bytes on Encode.
func DecodeExtensions(s *cryptobyte.String) ([]Extension, bool, error) {
	if len(*s) == 0 {
		return nil, false, nil
	}

	body, err := readLengthPrefixed(s, "extensions", Width16)
	if err != nil {
		return nil, true, err
	}

	var exts []Extension
	for len(body) > 0 {
		e, err := decodeOneExtension(&body)
		if err != nil {
			return nil, true, errMalformedVector("extensions", err)
		}
		exts = append(exts, e)
	}
	return exts, true, nil
}

// EncodeExtensions serializes exts as the Extensions vector. Per spec
// §4.2's special case, an empty list always produces zero bytes on
// encode — regardless of whether the original decode saw an absent field
// or an explicit zero-length header, those two states collapse into the
// same wire form (P8). The first extension that fails to encode (e.g. an
// oversized field inside it) aborts the whole vector with that error.
func EncodeExtensions(b *cryptobyte.Builder, exts []Extension) error {
	if len(exts) == 0 {
		return nil
	}
	var encErr error
	b.AddUint16LengthPrefixed(func(child *cryptobyte.Builder) {
		for _, e := range exts {
			if encErr != nil {
				return
			}
			encoded, err := e.Encode()
			if err != nil {
				encErr = err
				return
			}
			child.AddBytes(encoded)
		}
	})
	return encErr
}
