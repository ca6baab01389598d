package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/tlswire/internal/inspector"
	"github.com/lanikai/tlswire/tlswire"
)

var (
	flagDTLS    bool
	flagWatch   string
	flagVersion string
	flagHelp    bool
)

func init() {
	flag.BoolVarP(&flagDTLS, "dtls", "d", false, "Decode input as DTLS datagrams instead of stream TLS")
	flag.StringVarP(&flagWatch, "watch", "w", "", "Serve the decoded stream live over a websocket at ADDR")
	flag.StringVarP(&flagVersion, "version", "V", "TLSv1.2", "Expected protocol version (e.g. TLSv1.2, DTLSv1.2, SSLv3)")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}

	version, ok := versionByFlagName(flagVersion)
	if !ok {
		fmt.Fprintf(os.Stderr, "tlsdump: unrecognized --version %q\n", flagVersion)
		os.Exit(1)
	}

	data, err := readInput()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tlsdump: %s\n", err)
		os.Exit(1)
	}

	var watcher *inspector.Server
	if flagWatch != "" {
		watcher = inspector.NewServer()
		go func() {
			log.Printf("tlsdump: serving live decode stream on %s", flagWatch)
			if err := watcher.ListenAndServe(flagWatch); err != nil {
				log.Fatalf("tlsdump: watch server: %s", err)
			}
		}()
	}

	switch {
	case version == tlswire.SSLv2:
		dumpSSLv2(data, watcher)
	case flagDTLS:
		dumpDTLS(version, data, watcher)
	default:
		dumpStream(version, data, watcher)
	}
}

// readInput loads the capture from the first positional argument, or stdin
// if none was given, and returns it unmodified; decodeMaybeHex decides
// later whether it is a hex dump or raw bytes.
func readInput() ([]byte, error) {
	var raw []byte
	var err error
	if args := flag.Args(); len(args) > 0 {
		raw, err = ioutil.ReadFile(args[0])
	} else {
		raw, err = ioutil.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

var hexLineRE = regexp.MustCompile(`^[ \t0-9a-fA-F]+$`)

// decodeMaybeHex splits raw into lines; if every non-blank line looks like
// hex, each line is decoded as one logical unit (one record/datagram) and
// the units are returned separately. Otherwise raw is returned as the sole
// unit, unmodified.
func decodeMaybeHex(raw []byte) ([][]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines []string
	allHex := true
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := bytes.TrimSpace([]byte(line))
		if len(trimmed) == 0 {
			continue
		}
		if !hexLineRE.MatchString(string(trimmed)) {
			allHex = false
			break
		}
		lines = append(lines, string(trimmed))
	}

	if !allHex || len(lines) == 0 {
		return [][]byte{raw}, nil
	}

	units := make([][]byte, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(line), "")
		b, err := hex.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("decoding hex line %q: %w", line, err)
		}
		units = append(units, b)
	}
	return units, nil
}

func dumpStream(version tlswire.ProtocolVersion, raw []byte, watcher *inspector.Server) {
	units, err := decodeMaybeHex(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tlsdump: %s\n", err)
		os.Exit(1)
	}

	conn := tlswire.NewTLSConnection(version)
	for _, u := range units {
		if err := conn.Decode(u); err != nil {
			fmt.Fprintf(os.Stderr, "tlsdump: decode error: %s\n", err)
			break
		}
		drain(conn, watcher)
	}
}

// dumpSSLv2 decodes raw as a run of SSLv2 records. SSLv2 has no record
// version/content-type multiplexing to coalesce (spec §4.6), so unlike
// dumpStream/dumpDTLS it never goes through a TLSConnection/DTLSConnection
// facade — it decodes records directly off the front of the buffer.
func dumpSSLv2(raw []byte, watcher *inspector.Server) {
	units, err := decodeMaybeHex(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tlsdump: %s\n", err)
		os.Exit(1)
	}

	for _, u := range units {
		buf := u
		for len(buf) > 0 {
			kind, err := tlswire.DetectRecordKind(buf)
			if err != nil {
				if tlswire.IsNotEnoughData(err) {
					break
				}
				fmt.Fprintf(os.Stderr, "tlsdump: decode error: %s\n", err)
				return
			}
			if kind != tlswire.SSLv2RecordKind {
				fmt.Fprintf(os.Stderr, "tlsdump: decode error: not an SSLv2 record\n")
				return
			}

			rec, rest, err := tlswire.DecodeSSLv2Record(buf)
			if err != nil {
				if tlswire.IsNotEnoughData(err) {
					break
				}
				fmt.Fprintf(os.Stderr, "tlsdump: decode error: %s\n", err)
				return
			}
			buf = rest

			printSSLv2Record(rec)
			if watcher != nil {
				watcher.BroadcastSSLv2(rec)
			}
		}
	}
}

func printSSLv2Record(rec *tlswire.SSLv2Record) {
	fmt.Printf("%s ", typeColor("ssl2"))
	switch parsed := rec.Parsed.(type) {
	case *tlswire.SSLv2ClientHello:
		fmt.Println(detailColor(fmt.Sprintf("client_hello version=%d.%d cipher_suites=%d",
			parsed.VersionMajor, parsed.VersionMinor, len(parsed.CipherSuites))))
	case *tlswire.SSLv2ServerHello:
		fmt.Println(detailColor(fmt.Sprintf("server_hello version=%d.%d session_id_hit=%d",
			parsed.VersionMajor, parsed.VersionMinor, parsed.SessionIDHit)))
	default:
		fmt.Println(summaryColor(fmt.Sprintf("type=%d %d bytes", rec.Type, len(rec.Body))))
	}
}

func dumpDTLS(version tlswire.ProtocolVersion, raw []byte, watcher *inspector.Server) {
	units, err := decodeMaybeHex(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tlsdump: %s\n", err)
		os.Exit(1)
	}

	conn := tlswire.NewDTLSConnection(version)
	for _, datagram := range units {
		if err := conn.Decode(datagram); err != nil {
			fmt.Fprintf(os.Stderr, "tlsdump: decode error: %s\n", err)
			break
		}
		drainDTLS(conn, watcher)
	}
}

func drain(conn *tlswire.TLSConnection, watcher *inspector.Server) {
	for !conn.IsEmpty() {
		msg := conn.PopRecord()
		printMessage(msg)
		if watcher != nil {
			watcher.Broadcast(msg)
		}
	}
}

func drainDTLS(conn *tlswire.DTLSConnection, watcher *inspector.Server) {
	for !conn.IsEmpty() {
		msg := conn.PopRecord()
		printMessage(msg)
		if watcher != nil {
			watcher.Broadcast(msg)
		}
	}
}

var (
	typeColor    = color.New(color.FgCyan).SprintFunc()
	detailColor  = color.New(color.FgYellow).SprintFunc()
	summaryColor = color.New(color.FgGreen).SprintFunc()
)

// printMessage renders one DecodedMessage as a single summary line. Deep
// field dumps are left to a richer consumer (e.g. the --watch inspector);
// this is meant to be skimmable over a stream of many records.
func printMessage(msg *tlswire.DecodedMessage) {
	fmt.Printf("%s ", typeColor(msg.ContentType))
	switch msg.ContentType {
	case tlswire.HandshakeContentType:
		if msg.Handshake != nil {
			fmt.Println(detailColor(msg.Handshake.MessageType))
		} else if msg.DTLSHandshake != nil {
			fmt.Println(detailColor(fmt.Sprintf("%s seq=%d", msg.DTLSHandshake.MessageType, msg.DTLSHandshake.MessageSeq)))
		}
	case tlswire.AlertContentType:
		fmt.Println(summaryColor(fmt.Sprintf("level=%d description=%d", msg.Alert.Level, msg.Alert.Description)))
	case tlswire.ChangeCipherSpecContentType:
		fmt.Println(summaryColor(fmt.Sprintf("type=%d", msg.ChangeCipherSpec.Type)))
	case tlswire.HeartbeatContentType:
		fmt.Println(summaryColor(fmt.Sprintf("payload=%d bytes", len(msg.Heartbeat.Payload))))
	case tlswire.ApplicationDataContentType:
		fmt.Println(summaryColor(fmt.Sprintf("%d bytes", len(msg.ApplicationData))))
	default:
		fmt.Println()
	}
}

func versionByFlagName(name string) (tlswire.ProtocolVersion, bool) {
	for _, v := range []tlswire.ProtocolVersion{
		tlswire.SSLv2, tlswire.SSLv3, tlswire.TLSv10, tlswire.TLSv11,
		tlswire.TLSv12, tlswire.DTLSv10, tlswire.DTLSv12,
	} {
		if tlswire.GetVersionName(v) == name {
			return v, true
		}
	}
	return 0, false
}
