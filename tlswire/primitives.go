package tlswire

import (
	"golang.org/x/xerrors"

	"github.com/lanikai/tlswire/internal/packet"
)

// This file implements C1: fixed-width primitive field codecs. Every
// primitive is big-endian, unsigned, and exactly its declared width on the
// wire (invariant I6). Decoding fails with NotEnoughData, leaving the
// reader's cursor unchanged, when fewer than width bytes remain.

// readUint8 reads an 8-bit unsigned integer.
func readUint8(r *packet.Reader, field string) (uint8, error) {
	if r.Remaining() < 1 {
		return 0, errNotEnoughData(field, 1, r.Remaining())
	}
	return r.ReadByte(), nil
}

// readUint16 reads a 16-bit big-endian unsigned integer.
func readUint16(r *packet.Reader, field string) (uint16, error) {
	if r.Remaining() < 2 {
		return 0, errNotEnoughData(field, 2, r.Remaining())
	}
	return r.ReadUint16(), nil
}

// readUint24 reads a 24-bit big-endian unsigned integer, encoded as the
// (u8, u16) pair described in spec §4.1: value = high<<16 | low.
func readUint24(r *packet.Reader, field string) (uint32, error) {
	if r.Remaining() < 3 {
		return 0, errNotEnoughData(field, 3, r.Remaining())
	}
	return r.ReadUint24(), nil
}

// readUint48 reads a 48-bit big-endian unsigned integer, encoded as the
// (u16, u32) pair described in spec §4.1: value = high<<32 | low.
func readUint48(r *packet.Reader, field string) (uint64, error) {
	if r.Remaining() < 6 {
		return 0, errNotEnoughData(field, 6, r.Remaining())
	}
	high := uint64(r.ReadUint16())
	low := uint64(r.ReadUint32())
	return high<<32 | low, nil
}

// readFixed reads an n-byte fixed-size field with no length prefix (e.g.
// Random, invariant I7).
func readFixed(r *packet.Reader, field string, n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, errNotEnoughData(field, n, r.Remaining())
	}
	// Copy out: ReadSlice aliases the reader's backing array, and callers
	// of readFixed keep the result past the lifetime of the input chunk.
	src := r.ReadSlice(n)
	dst := make([]byte, n)
	copy(dst, src)
	return dst, nil
}

func writeUint24(w *packet.Writer, v uint32) {
	w.WriteUint24(v)
}

func writeUint48(w *packet.Writer, v uint64) {
	w.WriteUint16(uint16(v >> 32))
	w.WriteUint32(uint32(v))
}

// RandomSize is the fixed width, in bytes, of a Random field (invariant I7).
const RandomSize = 32

// Random is a fixed 32-byte field with no length prefix.
type Random [RandomSize]byte

func (r Random) Encode() []byte {
	b := make([]byte, RandomSize)
	copy(b, r[:])
	return b
}

func decodeRandom(reader *packet.Reader) (Random, error) {
	var r Random
	b, err := readFixed(reader, "random", RandomSize)
	if err != nil {
		return r, xerrors.Errorf("random: %w", err)
	}
	copy(r[:], b)
	return r, nil
}

// Enum wraps a primitive integer value together with a human-readable name
// looked up in a static mapping. The mapping never affects the wire form;
// it exists purely for labels (spec §4.1).
type Enum struct {
	Value uint32
	names map[uint32]string
	byName map[string]uint32
}

// NewEnum constructs an Enum bound to the given name table. The zero value
// of Enum is valid (Value 0, no names).
func NewEnum(names map[uint32]string) Enum {
	byName := make(map[string]uint32, len(names))
	for v, n := range names {
		if prev, dup := byName[n]; !dup || v < prev {
			byName[n] = v
		}
	}
	return Enum{names: names, byName: byName}
}

// Name returns the label for the current value, or "" if it has none.
func (e Enum) Name() string {
	if n, ok := e.names[e.Value]; ok {
		return n
	}
	return ""
}

// SetByName looks up name in the enum's table and sets Value to the first
// (lowest) matching integer. Returns InvalidEnumName if name is not
// registered.
func (e *Enum) SetByName(field, name string) error {
	v, ok := e.byName[name]
	if !ok {
		return errInvalidEnumName(field, name)
	}
	e.Value = v
	return nil
}
