package tlswire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
)

// P2: vector round-trip for each length-header width.
func TestVectorOpaqueRoundTrip(t *testing.T) {
	for _, width := range []lengthWidth{Width8, Width16, Width24} {
		body := []byte{0xde, 0xad, 0xbe, 0xef}

		b := cryptobyte.NewBuilder(nil)
		require.NoError(t, EncodeVectorOpaque(b, width, "field", body))
		wire := b.BytesOrPanic()

		s := cryptobyte.String(wire)
		got, err := DecodeVectorOpaque(&s, "field", width)
		require.NoError(t, err)
		assert.Equal(t, body, got)
		assert.Empty(t, s)
	}
}

func TestVectorOpaqueEmpty(t *testing.T) {
	b := cryptobyte.NewBuilder(nil)
	require.NoError(t, EncodeVectorOpaque(b, Width16, "field", nil))
	wire := b.BytesOrPanic()
	assert.Equal(t, []byte{0x00, 0x00}, wire)

	s := cryptobyte.String(wire)
	got, err := DecodeVectorOpaque(&s, "field", Width16)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVectorOpaqueOverflow(t *testing.T) {
	b := cryptobyte.NewBuilder(nil)
	err := EncodeVectorOpaque(b, Width8, "field", make([]byte, 256))
	require.Error(t, err)
	var tErr *Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, OverflowingLengthField, tErr.Kind)
}

func TestUint16ListRoundTrip(t *testing.T) {
	items := []uint16{0xc014, 0xc00a, 0x0039}

	b := cryptobyte.NewBuilder(nil)
	EncodeUint16List(b, Width16, items)
	wire := b.BytesOrPanic()

	s := cryptobyte.String(wire)
	got, err := DecodeUint16List(&s, "cipher_suites", Width16)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestUint8ListRoundTrip(t *testing.T) {
	items := []uint8{0, 1}

	b := cryptobyte.NewBuilder(nil)
	EncodeUint8List(b, Width8, items)
	wire := b.BytesOrPanic()

	s := cryptobyte.String(wire)
	got, err := DecodeUint8List(&s, "compression_methods", Width8)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

// Trailing partial item inside a slab is MalformedVector, per spec §4.2.
func TestUint16ListTrailingPartialItem(t *testing.T) {
	// Length header says 3 bytes follow, but a u16 item needs 2 at a time;
	// 3 is not a multiple of 2, so the final byte is a partial item.
	wire := []byte{0x00, 0x03, 0xaa, 0xbb, 0xcc}
	s := cryptobyte.String(wire)

	_, err := DecodeUint16List(&s, "field", Width16)
	require.Error(t, err)
	var tErr *Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, MalformedVector, tErr.Kind)
}

func TestVectorNotEnoughData(t *testing.T) {
	// Header claims 10 bytes but only 2 are present.
	wire := []byte{0x00, 0x0a, 0x01, 0x02}
	s := cryptobyte.String(wire)

	_, err := DecodeVectorOpaque(&s, "field", Width16)
	require.Error(t, err)
	assert.True(t, IsNotEnoughData(err))
}
