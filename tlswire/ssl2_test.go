package tlswire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DetectRecordKind tells an SSLv2 header from a TLS header by the first
// five bytes; fewer than five bytes is NotEnoughData.
func TestDetectRecordKind(t *testing.T) {
	sslv2 := hexBytes(t, "802e010002001500000010")
	kind, err := DetectRecordKind(sslv2)
	require.NoError(t, err)
	assert.Equal(t, SSLv2RecordKind, kind)

	tls := hexBytes(t, "1603000005deadbeefff")
	kind, err = DetectRecordKind(tls)
	require.NoError(t, err)
	assert.Equal(t, TLSRecordKind, kind)

	_, err = DetectRecordKind([]byte{0x01, 0x02})
	require.Error(t, err)
	assert.True(t, IsNotEnoughData(err))
}

// S4: SSLv2 ClientHello.
func TestSSLv2ClientHelloDecode(t *testing.T) {
	wire := hexBytes(t, "802e010002001500000010"+
		"050080030080010080"+"0700c0060040040080020080"+
		"44daa86b5ce6cbddde1d6948488e258e")

	rec, rest, err := DecodeSSLv2Record(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, rec.TwoByteHeader)
	assert.Nil(t, rec.Padding)
	assert.EqualValues(t, byte(ClientHelloType), rec.Type)
	assert.Len(t, rec.Body, 45)

	ch := rec.Parsed.(*SSLv2ClientHello)
	assert.EqualValues(t, 0, ch.VersionMajor)
	assert.EqualValues(t, 2, ch.VersionMinor)
	assert.Len(t, ch.CipherSuites, 7)
	assert.Empty(t, ch.SessionID)
	assert.Len(t, ch.Challenge, 16)

	gotWire, err := rec.Encode()
	require.NoError(t, err)
	assert.Equal(t, wire, gotWire)
}

func TestSSLv2RecordRoundTripThreeByteHeader(t *testing.T) {
	rec := &SSLv2Record{
		TwoByteHeader: false,
		IsEscape:      true,
		Type:          99,
		Body:          []byte{0x01, 0x02, 0x03},
		Padding:       []byte{0xaa, 0xaa},
	}
	wire, err := rec.Encode()
	require.NoError(t, err)

	decoded, rest, err := DecodeSSLv2Record(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.False(t, decoded.TwoByteHeader)
	assert.True(t, decoded.IsEscape)
	assert.EqualValues(t, 99, decoded.Type)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, decoded.Body)
	assert.Equal(t, []byte{0xaa, 0xaa}, decoded.Padding)
}

func TestSSLv2ServerHelloRoundTrip(t *testing.T) {
	sh := &SSLv2ServerHello{
		SessionIDHit:    1,
		CertificateType: 1,
		VersionMajor:    0,
		VersionMinor:    2,
		Certificate:     []byte{0xde, 0xad},
		CipherSuites:    []SSLv2CipherSuite{{0x05, 0x00, 0x80}},
		ConnectionID:    []byte{0x01, 0x02, 0x03, 0x04},
	}
	rec := &SSLv2Record{TwoByteHeader: true, Type: byte(ServerHelloType), Parsed: sh}
	wire, err := rec.Encode()
	require.NoError(t, err)

	decoded, rest, err := DecodeSSLv2Record(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	got := decoded.Parsed.(*SSLv2ServerHello)
	assert.Equal(t, sh, got)
}
