package tlswire

import (
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/xerrors"
)

// This file implements the non-exhaustive set of extension sub-grammars
// named in spec §4.5, each registered with RegisterExtension in extension.go.

// --- server_name (0x0000) ---

const hostNameType = 0

// ServerName is one entry of a ServerNameList: {name_type:u8, payload}.
// Only name_type=0 (host_name) is given a typed payload; any other
// name_type is carried as an opaque blob.
type ServerName struct {
	NameType byte
	HostName string // valid when NameType == hostNameType
	Opaque   []byte // valid otherwise
}

type ServerNameList struct {
	Names []ServerName
}

func decodeServerNameList(body []byte) (ExtensionBody, error) {
	s := cryptobyte.String(body)
	if len(s) == 0 {
		return &ServerNameList{}, nil
	}
	var list cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&list) {
		return nil, xerrors.New("server_name: truncated list")
	}
	var out ServerNameList
	for len(list) > 0 {
		var nameType byte
		if !list.ReadUint8(&nameType) {
			return nil, xerrors.New("server_name: truncated name_type")
		}
		sn := ServerName{NameType: nameType}
		if nameType == hostNameType {
			var host cryptobyte.String
			if !list.ReadUint16LengthPrefixed(&host) {
				return nil, xerrors.New("server_name: truncated host_name")
			}
			sn.HostName = string(host)
		} else {
			// Unknown name_type: no length is defined generically, so we
			// cannot skip it correctly. The grammar is only defined for
			// host_name; treat anything else as consuming the remainder.
			sn.Opaque = append([]byte(nil), list...)
			list = nil
		}
		out.Names = append(out.Names, sn)
	}
	return &out, nil
}

func (l *ServerNameList) Encode() ([]byte, error) {
	if len(l.Names) == 0 {
		return nil, nil
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
		for _, n := range l.Names {
			list.AddUint8(n.NameType)
			if n.NameType == hostNameType {
				list.AddUint16LengthPrefixed(func(h *cryptobyte.Builder) {
					h.AddBytes([]byte(n.HostName))
				})
			} else {
				list.AddBytes(n.Opaque)
			}
		}
	})
	return b.BytesOrPanic(), nil
}

// --- elliptic_curves (0x000a) ---

type EllipticCurves struct {
	Curves []uint16
}

func decodeEllipticCurves(body []byte) (ExtensionBody, error) {
	s := cryptobyte.String(body)
	curves, err := DecodeUint16List(&s, "elliptic_curves", Width16)
	if err != nil {
		return nil, err
	}
	return &EllipticCurves{Curves: curves}, nil
}

func (c *EllipticCurves) Encode() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	EncodeUint16List(b, Width16, c.Curves)
	return b.BytesOrPanic(), nil
}

// --- ec_point_formats (0x000b) ---

type ECPointFormats struct {
	Formats []uint8
}

func decodeECPointFormats(body []byte) (ExtensionBody, error) {
	s := cryptobyte.String(body)
	formats, err := DecodeUint8List(&s, "ec_point_formats", Width8)
	if err != nil {
		return nil, err
	}
	return &ECPointFormats{Formats: formats}, nil
}

func (f *ECPointFormats) Encode() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	EncodeUint8List(b, Width8, f.Formats)
	return b.BytesOrPanic(), nil
}

// --- signature_algorithms (0x000d) ---

type SignatureAndHashAlgorithm struct {
	Hash      uint8
	Signature uint8
}

type SignatureAlgorithms struct {
	Algorithms []SignatureAndHashAlgorithm
}

func decodeSignatureAlgorithms(body []byte) (ExtensionBody, error) {
	s := cryptobyte.String(body)
	var out SignatureAlgorithms
	err := decodeItems(&s, "signature_algorithms", Width16, func(item *cryptobyte.String) error {
		var a SignatureAndHashAlgorithm
		if !item.ReadUint8(&a.Hash) || !item.ReadUint8(&a.Signature) {
			return xerrors.New("signature_algorithms: truncated item")
		}
		out.Algorithms = append(out.Algorithms, a)
		return nil
	})
	return &out, err
}

func (a *SignatureAlgorithms) Encode() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	// Fixed two-byte items can never overflow a vector header; the error
	// return is always nil here.
	_ = encodeItems(b, Width16, len(a.Algorithms), func(child *cryptobyte.Builder, i int) error {
		child.AddUint8(a.Algorithms[i].Hash)
		child.AddUint8(a.Algorithms[i].Signature)
		return nil
	})
	return b.BytesOrPanic(), nil
}

// --- heartbeat (0x000f) ---

type HeartbeatMode uint8

const (
	HeartbeatPeerAllowedToSend    HeartbeatMode = 1
	HeartbeatPeerNotAllowedToSend HeartbeatMode = 2
)

type Heartbeat struct {
	Mode HeartbeatMode
}

func decodeHeartbeatMode(body []byte) (ExtensionBody, error) {
	if len(body) != 1 {
		return nil, xerrors.New("heartbeat: body must be exactly 1 byte")
	}
	return &Heartbeat{Mode: HeartbeatMode(body[0])}, nil
}

func (h *Heartbeat) Encode() ([]byte, error) {
	return []byte{byte(h.Mode)}, nil
}

// --- application_layer_protocol_negotiation (0x0010) ---

type ALPNProtocolList struct {
	Protocols [][]byte
}

func decodeALPNProtocolList(body []byte) (ExtensionBody, error) {
	s := cryptobyte.String(body)
	var out ALPNProtocolList
	err := decodeItems(&s, "alpn", Width16, func(item *cryptobyte.String) error {
		proto, err := DecodeVectorOpaque(item, "alpn.protocol", Width8)
		if err != nil {
			return err
		}
		out.Protocols = append(out.Protocols, proto)
		return nil
	})
	return &out, err
}

func (a *ALPNProtocolList) Encode() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	err := encodeItems(b, Width16, len(a.Protocols), func(child *cryptobyte.Builder, i int) error {
		return EncodeVectorOpaque(child, Width8, "alpn.protocol", a.Protocols[i])
	})
	if err != nil {
		return nil, err
	}
	return b.BytesOrPanic(), nil
}

// --- session_ticket_tls (0x0023) ---

// SessionTicket carries an opaque session ticket. A present-but-empty
// ticket (len(Ticket) == 0) is valid and distinct from the extension being
// absent entirely (spec §4.5).
type SessionTicket struct {
	Ticket []byte
}

func decodeSessionTicket(body []byte) (ExtensionBody, error) {
	return &SessionTicket{Ticket: append([]byte(nil), body...)}, nil
}

func (t *SessionTicket) Encode() ([]byte, error) {
	return t.Ticket, nil
}

// --- next_protocol_negotiation (0x3374) ---

// NPNProtocolList is a list of opaque protocol names with no outer length
// prefix: items simply pack until the extension body is exhausted (spec
// §4.5).
type NPNProtocolList struct {
	Protocols [][]byte
}

func decodeNPNProtocolList(body []byte) (ExtensionBody, error) {
	s := cryptobyte.String(body)
	var out NPNProtocolList
	for len(s) > 0 {
		proto, err := DecodeVectorOpaque(&s, "npn.protocol", Width8)
		if err != nil {
			return nil, err
		}
		out.Protocols = append(out.Protocols, proto)
	}
	return &out, nil
}

func (n *NPNProtocolList) Encode() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	for _, p := range n.Protocols {
		if err := EncodeVectorOpaque(b, Width8, "npn.protocol", p); err != nil {
			return nil, err
		}
	}
	return b.BytesOrPanic(), nil
}
