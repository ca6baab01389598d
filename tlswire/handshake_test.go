package tlswire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: TLS ClientHello decode.
const s1Wire = "1603000088" +
	"0100008403000a629b0e415bb5c62ba473e0d9c14b75b189039413669a9457eb2bada593a40800" +
	"005c" +
	"c014c00a0039003800880087c00fc00500350084c013c00900330032009a009900450044c00ec004002f009600410007c011c007c00cc00200050004c012c00800160013c00dc003000a001500120009" +
	"0014001100080006000300ff" +
	"020100"

func TestClientHelloDecode(t *testing.T) {
	wire := hexBytes(t, s1Wire)

	rec, rest, err := DecodeRecord(wire)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, HandshakeContentType, rec.ContentType)
	assert.EqualValues(t, 3, rec.Major)
	assert.EqualValues(t, 0, rec.Minor)
	assert.EqualValues(t, 0x88, len(rec.Payload))

	h, rest2, err := DecodeHandshake(rec.Payload)
	require.NoError(t, err)
	assert.Empty(t, rest2)
	assert.Equal(t, ClientHelloType, h.MessageType)
	assert.EqualValues(t, 132, len(h.Body))

	ch := h.Parsed.(*ClientHello)
	assert.EqualValues(t, 3, ch.VersionMajor)
	assert.EqualValues(t, 0, ch.VersionMinor)
	assert.False(t, ch.IsDTLS)
	assert.Empty(t, ch.SessionID)
	assert.Len(t, ch.CipherSuites, 46)
	assert.Len(t, ch.CompressionMethods, 2)
	assert.False(t, ch.ExtensionsPresent)
	assert.Empty(t, ch.Extensions)

	encoded, err := h.Encode()
	require.NoError(t, err)
	rec.Payload = encoded
	assert.Equal(t, wire, rec.Encode())
}

func TestDTLSClientHelloHasCookie(t *testing.T) {
	ch := &ClientHello{
		VersionMajor: 0xfe, VersionMinor: 0xfd,
		Random:             Random{},
		SessionID:          []byte{},
		IsDTLS:             true,
		Cookie:             []byte{0x01, 0x02, 0x03},
		CipherSuites:       []CipherSuite{0xc02f},
		CompressionMethods: []CompressionMethod{0},
	}
	wire, err := ch.Encode()
	require.NoError(t, err)

	decoded, err := decodeClientHelloBody(wire, true)
	require.NoError(t, err)
	got := decoded.(*ClientHello)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.Cookie)
	assert.True(t, got.IsDTLS)
	gotWire, err := got.Encode()
	require.NoError(t, err)
	assert.Equal(t, wire, gotWire)
}

func TestServerHelloRoundTrip(t *testing.T) {
	sh := &ServerHello{
		VersionMajor: 3, VersionMinor: 3,
		Random:            Random{42},
		SessionID:         []byte{0xaa, 0xbb},
		CipherSuite:       0xc02f,
		CompressionMethod: 0,
	}
	body, err := sh.Encode()
	require.NoError(t, err)

	decoded, err := decodeServerHelloBody(body, false)
	require.NoError(t, err)
	got := decoded.(*ServerHello)
	assert.Equal(t, sh.SessionID, got.SessionID)
	assert.Equal(t, sh.CipherSuite, got.CipherSuite)
	assert.False(t, got.ExtensionsPresent)
	gotBody, err := got.Encode()
	require.NoError(t, err)
	assert.Equal(t, body, gotBody)
}

func TestServerHelloDoneMustBeEmpty(t *testing.T) {
	_, err := decodeServerHelloDoneBody([]byte{0x00}, false)
	require.Error(t, err)

	done, err := decodeServerHelloDoneBody(nil, false)
	require.NoError(t, err)
	doneWire, err := done.Encode()
	require.NoError(t, err)
	assert.Empty(t, doneWire)
}

func TestOpaqueHandshakeBodyRoundTrip(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	parsed, err := decodeOpaqueHandshakeBody(raw, false)
	require.NoError(t, err)
	parsedWire, err := parsed.Encode()
	require.NoError(t, err)
	assert.Equal(t, raw, parsedWire)
}

func TestServerCertificateRoundTrip(t *testing.T) {
	cert := &ServerCertificate{Certificates: [][]byte{
		{0x01, 0x02, 0x03},
		{0x04, 0x05},
	}}
	body, err := cert.Encode()
	require.NoError(t, err)

	decoded, err := decodeCertificateBody(body, false)
	require.NoError(t, err)
	got := decoded.(*ServerCertificate)
	assert.Equal(t, cert.Certificates, got.Certificates)
	gotBody, err := got.Encode()
	require.NoError(t, err)
	assert.Equal(t, body, gotBody)
}

func TestServerCertificateEncodeOverflowsLengthField(t *testing.T) {
	cert := &ServerCertificate{Certificates: [][]byte{make([]byte, 1<<24)}}
	_, err := cert.Encode()
	require.Error(t, err)
	var tErr *Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, OverflowingLengthField, tErr.Kind)
}
