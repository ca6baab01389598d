package tlswire

import (
	"github.com/pkg/errors"

	"github.com/lanikai/tlswire/internal/logging"
)

// This file implements C7 (the stream-TLS content-type coalescer) and the
// stream half of C11 (the TLSConnection facade).

// DecodedMessage is one fully-decoded unit handed to the caller by
// TLSConnection.PopRecord or DTLSConnection.PopRecord. Exactly one of the
// typed fields is non-nil, selected by ContentType.
type DecodedMessage struct {
	ContentType      ContentType
	Handshake        *Handshake
	DTLSHandshake    *DTLSHandshake
	Alert            *Alert
	ChangeCipherSpec *ChangeCipherSpec
	Heartbeat        *HeartbeatMessage
	ApplicationData  []byte
}

// TLSConnection holds the stream-TLS assembler state described in spec §3:
// expected_version, the unparsed byte buffer, the current coalesced
// content type, and the queue of decoded messages pending handoff.
type TLSConnection struct {
	ExpectedVersion ProtocolVersion

	raw []byte

	curType    *ContentType
	curPayload []byte

	queue []*DecodedMessage

	log *logging.Logger
}

// NewTLSConnection constructs a TLSConnection that only accepts records
// whose version matches expectedVersion.
func NewTLSConnection(expectedVersion ProtocolVersion) *TLSConnection {
	return &TLSConnection{
		ExpectedVersion: expectedVersion,
		log:             logging.DefaultLogger.WithTag("tlswire"),
	}
}

// Decode appends chunk to the connection's stream buffer and drains as
// many complete records (and, transitively, complete handshake messages)
// as are available. A NotEnoughData record parse simply stops the drain
// loop, per §5's failure-atomicity guarantee: unconsumed bytes remain in
// the buffer untouched.
func (c *TLSConnection) Decode(chunk []byte) error {
	c.raw = append(c.raw, chunk...)

	for {
		rec, rest, err := DecodeRecord(c.raw)
		if err != nil {
			if IsNotEnoughData(err) {
				return nil
			}
			return errors.Wrapf(err, "tlswire: decoding record at offset %d", len(c.raw)-len(rest))
		}
		c.raw = rest

		version, ok := rec.Version()
		if !ok || version != c.ExpectedVersion {
			c.log.Debug("record version mismatch: got (%d,%d), want %s", rec.Major, rec.Minor, c.ExpectedVersion)
			return errWrongVersion("record.version", rec)
		}

		if err := c.consumeRecord(rec); err != nil {
			return errors.Wrapf(err, "tlswire: decoding %s payload", rec.ContentType)
		}
	}
}

// consumeRecord implements steps 4-6 of spec §4.7. Heartbeat is special:
// its padding is defined as "the remainder of the record body" (spec
// §4.6), so it is never coalesced with neighboring records and is decoded
// directly from this record's own payload.
func (c *TLSConnection) consumeRecord(rec *Record) error {
	if rec.ContentType == HeartbeatContentType {
		c.flushCurrent()
		hb, err := DecodeHeartbeatMessage(rec.Payload)
		if err != nil {
			return err
		}
		c.queue = append(c.queue, &DecodedMessage{ContentType: HeartbeatContentType, Heartbeat: hb})
		return nil
	}

	if c.curType == nil {
		ct := rec.ContentType
		c.curType = &ct
	} else if *c.curType != rec.ContentType {
		// Invariant I5: never merge payload bytes of differing content
		// types. Flush what's pending under the old type before starting
		// the new run.
		c.flushCurrent()
		ct := rec.ContentType
		c.curType = &ct
	}

	c.curPayload = append(c.curPayload, rec.Payload...)
	return c.drainCurrent()
}

// drainCurrent repeatedly decodes sub-messages of *c.curType from
// c.curPayload until a NotEnoughData leaves a remainder (or the buffer is
// exhausted), appending each decoded message to the output queue.
func (c *TLSConnection) drainCurrent() error {
	for len(c.curPayload) > 0 {
		switch *c.curType {
		case HandshakeContentType:
			h, rest, err := DecodeHandshake(c.curPayload)
			if err != nil {
				if IsNotEnoughData(err) {
					return nil
				}
				return err
			}
			c.curPayload = rest
			c.queue = append(c.queue, &DecodedMessage{ContentType: HandshakeContentType, Handshake: h})

		case AlertContentType:
			if len(c.curPayload) < 2 {
				return nil
			}
			a, err := DecodeAlert(c.curPayload[:2])
			if err != nil {
				return err
			}
			c.curPayload = c.curPayload[2:]
			c.queue = append(c.queue, &DecodedMessage{ContentType: AlertContentType, Alert: a})

		case ChangeCipherSpecContentType:
			ccs, err := DecodeChangeCipherSpec(c.curPayload[:1])
			if err != nil {
				return err
			}
			c.curPayload = c.curPayload[1:]
			c.queue = append(c.queue, &DecodedMessage{ContentType: ChangeCipherSpecContentType, ChangeCipherSpec: ccs})

		case ApplicationDataContentType:
			data := c.curPayload
			c.curPayload = nil
			c.queue = append(c.queue, &DecodedMessage{ContentType: ApplicationDataContentType, ApplicationData: data})

		default:
			// Unrecognized content type: the bytes stay in curPayload and
			// are never emitted; flushCurrent discards them on the next
			// content-type transition.
			return nil
		}
	}
	return nil
}

// flushCurrent ends the current content-type run. Leftover application
// data bytes are queued as one message; any other leftover (e.g. a
// trailing partial handshake message in a stream that is switching types)
// is discarded. It is only invoked on a content-type transition or
// heartbeat interruption, per spec §4.7 step 5.
func (c *TLSConnection) flushCurrent() {
	if c.curType == nil || len(c.curPayload) == 0 {
		return
	}
	switch *c.curType {
	case ApplicationDataContentType:
		c.queue = append(c.queue, &DecodedMessage{ContentType: ApplicationDataContentType, ApplicationData: c.curPayload})
	}
	c.curPayload = nil
}

// Encode serializes each DecodedMessage as its own Record, framed with
// this connection's ExpectedVersion. Each message produces exactly one
// record (the codec does not fragment handshake messages across records
// on send).
func (c *TLSConnection) Encode(messages []*DecodedMessage) ([][]byte, error) {
	major, minor := GetWireVersion(c.ExpectedVersion)
	out := make([][]byte, 0, len(messages))
	for _, m := range messages {
		var payload []byte
		var err error
		switch m.ContentType {
		case HandshakeContentType:
			payload, err = m.Handshake.Encode()
		case AlertContentType:
			payload = m.Alert.Encode()
		case ChangeCipherSpecContentType:
			payload = m.ChangeCipherSpec.Encode()
		case HeartbeatContentType:
			payload = m.Heartbeat.Encode()
		case ApplicationDataContentType:
			payload = m.ApplicationData
		default:
			return nil, errors.Errorf("tlswire: cannot encode unknown content type %v", m.ContentType)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "tlswire: encoding %s payload", m.ContentType)
		}
		rec := &Record{ContentType: m.ContentType, Major: major, Minor: minor, Payload: payload}
		out = append(out, rec.Encode())
	}
	return out, nil
}

// IsEmpty reports whether there are no decoded messages waiting to be
// popped.
func (c *TLSConnection) IsEmpty() bool {
	return len(c.queue) == 0
}

// PopRecord removes and returns the oldest decoded message, in the order
// its final bytes arrived (spec §5 ordering rule). Returns nil when empty.
func (c *TLSConnection) PopRecord() *DecodedMessage {
	if len(c.queue) == 0 {
		return nil
	}
	m := c.queue[0]
	c.queue = c.queue[1:]
	return m
}

// ClearRecords discards all pending decoded messages without returning
// them.
func (c *TLSConnection) ClearRecords() {
	c.queue = nil
}
