package tlswire

import "fmt"

// ProtocolVersion is an internal symbolic identifier for a wire protocol
// version. The mapping to the wire (major, minor) pair is total and
// bijective; see versionTable.
type ProtocolVersion int

const (
	SSLv2 ProtocolVersion = iota
	SSLv3
	TLSv10
	TLSv11
	TLSv12
	DTLSv10
	DTLSv12
)

type wireVersion struct {
	major, minor byte
}

type versionEntry struct {
	id   ProtocolVersion
	wire wireVersion
	name string
}

// versionTable is populated once at init and never mutated afterward (see
// Design Notes on global registries).
var versionTable = []versionEntry{
	{SSLv2, wireVersion{0, 2}, "SSLv2"},
	{SSLv3, wireVersion{3, 0}, "SSLv3"},
	{TLSv10, wireVersion{3, 1}, "TLSv1.0"},
	{TLSv11, wireVersion{3, 2}, "TLSv1.1"},
	{TLSv12, wireVersion{3, 3}, "TLSv1.2"},
	// DTLS uses the ones'-complement form: 1.0 is (254,255), 1.2 is (254,253).
	{DTLSv10, wireVersion{0xfe, 0xff}, "DTLSv1.0"},
	{DTLSv12, wireVersion{0xfe, 0xfd}, "DTLSv1.2"},
}

var (
	versionByWire = make(map[wireVersion]ProtocolVersion, len(versionTable))
	versionByID   = make(map[ProtocolVersion]versionEntry, len(versionTable))
)

func init() {
	for _, e := range versionTable {
		versionByWire[e.wire] = e.id
		versionByID[e.id] = e
	}
}

// GetVersionByID maps a wire (major, minor) pair to the internal symbolic
// ProtocolVersion. ok is false for a pair this library doesn't recognize.
func GetVersionByID(major, minor byte) (v ProtocolVersion, ok bool) {
	v, ok = versionByWire[wireVersion{major, minor}]
	return
}

// GetVersionName returns the human-readable name of v, or "" if v is not a
// registered version.
func GetVersionName(v ProtocolVersion) string {
	return versionByID[v].name
}

// GetWireVersion returns the wire (major, minor) byte pair for v.
func GetWireVersion(v ProtocolVersion) (major, minor byte) {
	e := versionByID[v]
	return e.wire.major, e.wire.minor
}

func (v ProtocolVersion) String() string {
	if name := GetVersionName(v); name != "" {
		return name
	}
	return fmt.Sprintf("ProtocolVersion(%d)", int(v))
}

// IsDTLS reports whether v is one of the DTLS versions.
func (v ProtocolVersion) IsDTLS() bool {
	return v == DTLSv10 || v == DTLSv12
}
