package tlswire

import (
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/xerrors"
)

// This file implements C2: length-prefixed vector framing. A vector's
// header gives the *byte* length of its body, never an item count (spec
// §4.2). cryptobyte.String/Builder already implement exactly this framing
// for 8/16/24-bit headers, so the vector codecs are thin adapters around
// them rather than hand-rolled length arithmetic.

// lengthWidth is the bit width of a vector's length header.
type lengthWidth int

const (
	Width8  lengthWidth = 8
	Width16 lengthWidth = 16
	Width24 lengthWidth = 24
)

// readLengthPrefixed peels an L-bit length-prefixed slab off s and returns
// it as its own cryptobyte.String, without decoding its contents. Fails
// with NotEnoughData if the header or the declared body is incomplete.
func readLengthPrefixed(s *cryptobyte.String, field string, width lengthWidth) (cryptobyte.String, error) {
	var body cryptobyte.String
	have := len(*s)

	var ok bool
	switch width {
	case Width8:
		ok = s.ReadUint8LengthPrefixed(&body)
	case Width16:
		ok = s.ReadUint16LengthPrefixed(&body)
	case Width24:
		ok = s.ReadUint24LengthPrefixed(&body)
	default:
		panic("tlswire: unsupported vector length width")
	}
	if !ok {
		// cryptobyte doesn't distinguish "header truncated" from "body
		// truncated"; either way the caller needs more bytes. headerBytes
		// bounds the worst case so NotEnoughData.Needed is a reasonable
		// (if not exact) hint.
		headerBytes := int(width) / 8
		return nil, errNotEnoughData(field, headerBytes, have)
	}
	return body, nil
}

// writeLengthPrefixed appends fn's output to b as an L-bit length-prefixed
// slab. It returns no error: if fn writes more than 2^width-1 bytes,
// cryptobyte records an internal error that surfaces when Bytes() is
// called (BytesOrPanic panics). EncodeVectorOpaque checks the length
// before calling it and returns OverflowingLengthField (invariant I2).
func writeLengthPrefixed(b *cryptobyte.Builder, width lengthWidth, fn func(child *cryptobyte.Builder)) {
	switch width {
	case Width8:
		b.AddUint8LengthPrefixed(fn)
	case Width16:
		b.AddUint16LengthPrefixed(fn)
	case Width24:
		b.AddUint24LengthPrefixed(fn)
	default:
		panic("tlswire: unsupported vector length width")
	}
}

// DecodeVectorOpaque reads an L-bit length-prefixed opaque byte string.
func DecodeVectorOpaque(s *cryptobyte.String, field string, width lengthWidth) ([]byte, error) {
	body, err := readLengthPrefixed(s, field, width)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), body...), nil
}

// EncodeVectorOpaque appends body as an L-bit length-prefixed opaque byte
// string, failing with OverflowingLengthField if it doesn't fit.
func EncodeVectorOpaque(b *cryptobyte.Builder, width lengthWidth, field string, body []byte) error {
	if len(body) >= 1<<uint(width) {
		return errOverflowingLength(field, int(width), len(body))
	}
	writeLengthPrefixed(b, width, func(child *cryptobyte.Builder) {
		child.AddBytes(body)
	})
	return nil
}

// decodeItems reads the L-bit length-prefixed slab for field, then repeatedly
// applies decodeItem to the slab's remaining bytes until it is empty. A
// trailing partial item (decodeItem reports an error without consuming the
// whole slab) is MalformedVector, per spec §4.2.
func decodeItems(s *cryptobyte.String, field string, width lengthWidth, decodeItem func(*cryptobyte.String) error) error {
	body, err := readLengthPrefixed(s, field, width)
	if err != nil {
		return err
	}
	for len(body) > 0 {
		before := len(body)
		if err := decodeItem(&body); err != nil {
			return errMalformedVector(field, err)
		}
		if len(body) >= before {
			// decodeItem must make progress; a non-advancing decoder
			// would spin forever.
			return errMalformedVector(field, xerrors.Errorf("%s: item decoder made no progress", field))
		}
	}
	return nil
}

// encodeItems writes an L-bit length-prefixed slab for field, invoking
// encodeItem once per item in order. The first error an item returns (e.g.
// OverflowingLengthField from a nested EncodeVectorOpaque) stops the loop
// and is returned to the caller instead of silently truncating the list.
func encodeItems(b *cryptobyte.Builder, width lengthWidth, n int, encodeItem func(*cryptobyte.Builder, int) error) error {
	var itemErr error
	writeLengthPrefixed(b, width, func(child *cryptobyte.Builder) {
		for i := 0; i < n; i++ {
			if itemErr != nil {
				return
			}
			if err := encodeItem(child, i); err != nil {
				itemErr = err
				return
			}
		}
	})
	return itemErr
}

// DecodeUint8List decodes a vector of plain u8 items (e.g. compression
// methods).
func DecodeUint8List(s *cryptobyte.String, field string, width lengthWidth) ([]uint8, error) {
	var items []uint8
	err := decodeItems(s, field, width, func(body *cryptobyte.String) error {
		var v uint8
		if !body.ReadUint8(&v) {
			return xerrors.Errorf("%s: truncated u8 item", field)
		}
		items = append(items, v)
		return nil
	})
	return items, err
}

// EncodeUint8List appends items as a length-prefixed vector of plain u8s.
// Plain u8 items can never individually overflow a vector header, so this
// never fails; encodeItems' error return is always nil here.
func EncodeUint8List(b *cryptobyte.Builder, width lengthWidth, items []uint8) {
	_ = encodeItems(b, width, len(items), func(child *cryptobyte.Builder, i int) error {
		child.AddUint8(items[i])
		return nil
	})
}

// DecodeUint16List decodes a vector of plain u16 items (e.g. cipher suites
// when represented as raw u16 identifiers, elliptic curve IDs).
func DecodeUint16List(s *cryptobyte.String, field string, width lengthWidth) ([]uint16, error) {
	var items []uint16
	err := decodeItems(s, field, width, func(body *cryptobyte.String) error {
		var v uint16
		if !body.ReadUint16(&v) {
			return xerrors.Errorf("%s: truncated u16 item", field)
		}
		items = append(items, v)
		return nil
	})
	return items, err
}

// EncodeUint16List appends items as a length-prefixed vector of plain u16s.
// Plain u16 items can never individually overflow a vector header, so this
// never fails; encodeItems' error return is always nil here.
func EncodeUint16List(b *cryptobyte.Builder, width lengthWidth, items []uint16) {
	_ = encodeItems(b, width, len(items), func(child *cryptobyte.Builder, i int) error {
		child.AddUint16(items[i])
		return nil
	})
}
