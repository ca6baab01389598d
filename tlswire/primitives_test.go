package tlswire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/tlswire/internal/packet"
)

// P1: round-trip on all primitives, plus exact-width encoding.
func TestPrimitiveRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name  string
		bytes []byte
		read  func(r *packet.Reader) (uint64, error)
	}{
		{"uint8", []byte{0x42}, func(r *packet.Reader) (uint64, error) {
			v, err := readUint8(r, "x")
			return uint64(v), err
		}},
		{"uint16", []byte{0x12, 0x34}, func(r *packet.Reader) (uint64, error) {
			v, err := readUint16(r, "x")
			return uint64(v), err
		}},
		{"uint24", []byte{0x01, 0x02, 0x03}, func(r *packet.Reader) (uint64, error) {
			v, err := readUint24(r, "x")
			return uint64(v), err
		}},
		{"uint48", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02}, func(r *packet.Reader) (uint64, error) {
			return readUint48(r, "x")
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := packet.NewReader(tc.bytes)
			v, err := tc.read(r)
			require.NoError(t, err)
			assert.Equal(t, len(tc.bytes), r.Offset())

			// Re-encode and compare.
			var got []byte
			switch tc.name {
			case "uint8":
				w := packet.NewWriterSize(1)
				w.WriteByte(byte(v))
				got = w.Bytes()
			case "uint16":
				w := packet.NewWriterSize(2)
				w.WriteUint16(uint16(v))
				got = w.Bytes()
			case "uint24":
				w := packet.NewWriterSize(3)
				writeUint24(w, uint32(v))
				got = w.Bytes()
			case "uint48":
				w := packet.NewWriterSize(6)
				writeUint48(w, v)
				got = w.Bytes()
			}
			assert.Equal(t, tc.bytes, got)
		})
	}
}

// P4 (cursor half): NotEnoughData on a short primitive leaves the cursor
// unchanged.
func TestPrimitiveNotEnoughDataLeavesCursor(t *testing.T) {
	r := packet.NewReader([]byte{0x01, 0x02})
	mark := r.Offset()

	_, err := readUint24(r, "field")
	require.Error(t, err)
	assert.True(t, IsNotEnoughData(err))
	assert.Equal(t, mark, r.Offset())
}

func TestRandomEncodeDecode(t *testing.T) {
	var r Random
	for i := range r {
		r[i] = byte(i)
	}
	encoded := r.Encode()
	assert.Len(t, encoded, RandomSize)

	reader := packet.NewReader(encoded)
	decoded, err := decodeRandom(reader)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestEnumSetByName(t *testing.T) {
	e := NewEnum(map[uint32]string{1: "peer_allowed_to_send", 2: "peer_not_allowed_to_send"})

	require.NoError(t, e.SetByName("mode", "peer_allowed_to_send"))
	assert.Equal(t, uint32(1), e.Value)
	assert.Equal(t, "peer_allowed_to_send", e.Name())

	err := e.SetByName("mode", "bogus")
	require.Error(t, err)
	var tErr *Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, InvalidEnumName, tErr.Kind)
}
