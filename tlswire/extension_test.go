package tlswire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
)

func TestServerNameExtensionRoundTrip(t *testing.T) {
	snl := &ServerNameList{Names: []ServerName{
		{NameType: 0, HostName: "example.com"},
	}}
	body, err := snl.Encode()
	require.NoError(t, err)

	decoded, err := decodeServerNameList(body)
	require.NoError(t, err)
	got := decoded.(*ServerNameList)
	require.Len(t, got.Names, 1)
	assert.Equal(t, "example.com", got.Names[0].HostName)
	gotBody, err := got.Encode()
	require.NoError(t, err)
	assert.Equal(t, body, gotBody)
}

func TestHeartbeatExtensionRoundTrip(t *testing.T) {
	hb := &Heartbeat{Mode: 1}
	body, err := hb.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, body)

	decoded, err := decodeHeartbeatMode(body)
	require.NoError(t, err)
	assert.Equal(t, hb, decoded)
}

// P8: absent extensions field vs. an explicit empty list both encode to
// zero bytes and both decode successfully.
func TestExtensionsAbsentVsEmpty(t *testing.T) {
	// Absent: zero bytes remaining at decode position.
	absent := cryptobyte.String(nil)
	exts, present, err := DecodeExtensions(&absent)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Empty(t, exts)

	b := cryptobyte.NewBuilder(nil)
	require.NoError(t, EncodeExtensions(b, exts))
	assert.Empty(t, b.BytesOrPanic())

	// Explicit empty list: a u16 zero-length header.
	empty := cryptobyte.String([]byte{0x00, 0x00})
	exts2, present2, err := DecodeExtensions(&empty)
	require.NoError(t, err)
	assert.True(t, present2)
	assert.Empty(t, exts2)

	b2 := cryptobyte.NewBuilder(nil)
	require.NoError(t, EncodeExtensions(b2, exts2))
	assert.Empty(t, b2.BytesOrPanic())
}

func TestExtensionsUnknownTypeStaysOpaque(t *testing.T) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddUint16(0x9999) // unregistered type
		child.AddUint16LengthPrefixed(func(body *cryptobyte.Builder) {
			body.AddBytes([]byte{0xaa, 0xbb})
		})
	})
	wire := cryptobyte.String(b.BytesOrPanic())

	exts, present, err := DecodeExtensions(&wire)
	require.NoError(t, err)
	assert.True(t, present)
	require.Len(t, exts, 1)
	assert.Nil(t, exts[0].Parsed)
	assert.Equal(t, []byte{0xaa, 0xbb}, exts[0].Body)
}

func TestSessionTicketEmptyButPresent(t *testing.T) {
	st := &SessionTicket{Ticket: nil}
	body, err := st.Encode()
	require.NoError(t, err)
	assert.Empty(t, body)

	decoded, err := decodeSessionTicket(body)
	require.NoError(t, err)
	assert.Equal(t, &SessionTicket{}, decoded)
}
