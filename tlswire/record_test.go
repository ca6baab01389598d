package tlswire

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// S3: SSLv3 Alert round-trip.
func TestRecordAlertRoundTrip(t *testing.T) {
	wire := hexBytes(t, "15030000020102")

	rec, rest, err := DecodeRecord(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, AlertContentType, rec.ContentType)
	assert.EqualValues(t, 2, len(rec.Payload))

	alert, err := DecodeAlert(rec.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, 1, alert.Level)
	assert.EqualValues(t, 2, alert.Description)

	rec.Payload = alert.Encode()
	assert.Equal(t, wire, rec.Encode())
}

// S5: DTLS HelloVerifyRequest.
func TestDTLSRecordHelloVerifyRequest(t *testing.T) {
	wire := hexBytes(t, "16feff0000000000000000002303000017000000000000"+
		"0017feff142c24633bb13af58be4a0f50e47767cfa93e63515")

	rec, rest, err := DecodeDTLSRecord(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, HandshakeContentType, rec.ContentType)
	assert.EqualValues(t, 0xfe, rec.Major)
	assert.EqualValues(t, 0xff, rec.Minor)
	assert.EqualValues(t, 0, rec.Epoch)
	assert.EqualValues(t, 0, rec.SequenceNumber)
	assert.EqualValues(t, 35, len(rec.Payload))

	version, ok := rec.Version()
	require.True(t, ok)
	assert.Equal(t, DTLSv10, version)

	hs, rest2, err := DecodeDTLSHandshakeHeader(rec.Payload)
	require.NoError(t, err)
	assert.Empty(t, rest2)
	assert.Equal(t, HelloVerifyRequest, hs.MessageType)
	assert.EqualValues(t, 23, hs.Length)
	assert.EqualValues(t, 0, hs.MessageSeq)
	assert.EqualValues(t, 0, hs.FragmentOffset)
	assert.EqualValues(t, 23, hs.FragmentLength)
	assert.False(t, hs.IsFragment())

	require.NoError(t, hs.decodeBody())
	hvr := hs.Parsed.(*HelloVerifyRequestMsg)
	assert.Len(t, hvr.Cookie, 20)
}

// P3/P4: record round-trip, and every proper prefix of a complete record
// fails with NotEnoughData while leaving the caller's slice untouched.
func TestRecordTruncationSafety(t *testing.T) {
	wire := hexBytes(t, "15030000020102")

	for n := 0; n < len(wire); n++ {
		prefix := wire[:n]
		_, rest, err := DecodeRecord(prefix)
		require.Error(t, err, "prefix length %d", n)
		assert.True(t, IsNotEnoughData(err), "prefix length %d", n)
		assert.Equal(t, prefix, rest, "prefix length %d should be returned unchanged", n)
	}

	rec, rest, err := DecodeRecord(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, wire, rec.Encode())
}

func TestChangeCipherSpecRoundTrip(t *testing.T) {
	ccs, err := DecodeChangeCipherSpec([]byte{0x01})
	require.NoError(t, err)
	assert.EqualValues(t, 1, ccs.Type)
	assert.Equal(t, []byte{0x01}, ccs.Encode())
}

func TestHeartbeatMessageRoundTrip(t *testing.T) {
	wire := []byte{0x01, 0x00, 0x02, 0xaa, 0xbb, 0x00, 0x00, 0x00}
	hb, err := DecodeHeartbeatMessage(wire)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hb.Type)
	assert.Equal(t, []byte{0xaa, 0xbb}, hb.Payload)
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, hb.Padding)
	assert.Equal(t, wire, hb.Encode())
}
