package tlswire

import (
	"github.com/pkg/errors"

	"github.com/lanikai/tlswire/internal/logging"
)

// This file implements C8 (the DTLS fragment reassembler) and the DTLS
// half of C11 (the DTLSConnection facade).

const replayWindowSize = 64

// replayWindow is the 64-slot structure named in spec §4.8/§3. Per the
// Design Notes open question, replay semantics are scaffolded but not
// enforced: Accept keeps the highest sequence number seen per slot and
// never refuses one. A future version that wants real replay rejection has somewhere to
// hang it without changing DTLSConnection's shape.
type replayWindow struct {
	highest [replayWindowSize]uint64
	seen    [replayWindowSize]bool
}

// Accept records sequenceNumber in its residue-class slot and reports
// whether this looks like a replay of the highest sequence number
// previously seen in that slot. The caller is free to ignore the result;
// nothing in this package drops records based on it.
func (w *replayWindow) Accept(sequenceNumber uint64) (isReplay bool) {
	slot := sequenceNumber % replayWindowSize
	if w.seen[slot] && w.highest[slot] == sequenceNumber {
		isReplay = true
	}
	if !w.seen[slot] || sequenceNumber > w.highest[slot] {
		w.highest[slot] = sequenceNumber
		w.seen[slot] = true
	}
	return isReplay
}

// pendingFragment is one entry in the reassembly queue: either a raw
// handshake fragment still awaiting merge, or (once its range covers
// [0,length)) a fully reassembled message.
type pendingFragment struct {
	msg *DTLSHandshake
}

func (p *pendingFragment) offset() uint32 { return p.msg.FragmentOffset }
func (p *pendingFragment) end() uint32    { return p.msg.FragmentOffset + p.msg.FragmentLength }

// dtlsReassembler implements the per-message-sequence merge algorithm of
// spec §4.8.
type dtlsReassembler struct {
	nextReceiveSeq uint16
	queue          []*pendingFragment

	log *logging.Logger
}

// feed processes one incoming handshake fragment and returns, in
// message_seq order, every handshake message this fragment's arrival
// completed (spec §4.8, P7). A fragment may complete nothing yet (more
// bytes still needed), exactly one message, or — if earlier arrivals had
// already fully covered later message_seqs while waiting on this one —
// several in a row.
func (r *dtlsReassembler) feed(frag *DTLSHandshake) ([]*DTLSHandshake, error) {
	if frag.MessageSeq != r.nextReceiveSeq {
		// Per the Design Notes open question, the source silently drops
		// fragments whose message_seq is ahead of what's expected. This
		// implementation instead queues them regardless of whether they
		// are ahead of or behind next_receive_seq, so they are available
		// to merge once their turn comes.
		r.log.Debug("dtls: queueing out-of-order fragment seq=%d (want %d)", frag.MessageSeq, r.nextReceiveSeq)
		r.queue = append(r.queue, &pendingFragment{msg: frag})
		return nil, nil
	}

	r.queue = append(r.queue, &pendingFragment{msg: frag})

	var completed []*DTLSHandshake
	for {
		head := r.mergeHead(r.nextReceiveSeq)
		if head == nil || head.msg.IsFragment() {
			// Either nothing queued yet for the expected message_seq, or
			// what's there is still incomplete; leave it at the head of
			// the queue for the next arrival to merge against.
			break
		}
		r.removeHead(r.nextReceiveSeq)
		if err := head.msg.decodeBody(); err != nil {
			return completed, err
		}
		r.nextReceiveSeq++
		completed = append(completed, head.msg)
	}
	return completed, nil
}

// mergeHead merges every queued fragment for messageSeq into the first one
// found, iterating to a fixed point, and returns the merged entry (which
// may still be a strict fragment if coverage is incomplete).
func (r *dtlsReassembler) mergeHead(messageSeq uint16) *pendingFragment {
	var head *pendingFragment
	var rest []*pendingFragment
	for _, p := range r.queue {
		if p.msg.MessageSeq != messageSeq {
			rest = append(rest, p)
			continue
		}
		if head == nil {
			head = p
			continue
		}
		rest = append(rest, p)
	}
	if head == nil {
		return nil
	}

	changed := true
	for changed {
		changed = false
		var remaining []*pendingFragment
		for _, p := range rest {
			if r.tryMerge(head, p) {
				changed = true
				continue
			}
			remaining = append(remaining, p)
		}
		rest = remaining
	}

	// Rebuild the queue: head (possibly updated in place) plus everything
	// for other message sequences, plus whatever for this sequence didn't
	// merge (disjoint ranges, kept for a later round).
	newQueue := make([]*pendingFragment, 0, len(r.queue))
	for _, p := range r.queue {
		if p.msg.MessageSeq != messageSeq {
			newQueue = append(newQueue, p)
		}
	}
	newQueue = append(newQueue, head)
	newQueue = append(newQueue, rest...)
	r.queue = newQueue

	return head
}

// tryMerge applies the merge rule of spec §4.8 for candidate p against
// head's current range. Returns true if p was merged into (or dropped as
// fully covered by) head.
func (r *dtlsReassembler) tryMerge(head, p *pendingFragment) bool {
	if p == head {
		return false
	}
	o, l := head.offset(), head.msg.FragmentLength
	pOff, pEnd := p.offset(), p.end()

	if pEnd < o || pOff > o+l {
		// Disjoint; keep p for a later round.
		return false
	}

	if pOff < o && pEnd >= o {
		// Prepend p.body[0 .. o-pOff).
		prefixLen := o - pOff
		merged := make([]byte, 0, prefixLen+len(head.msg.Body))
		merged = append(merged, p.msg.Body[:prefixLen]...)
		merged = append(merged, head.msg.Body...)
		head.msg.FragmentOffset = pOff
		head.msg.FragmentLength = uint32(len(merged))
		head.msg.Body = merged
		return true
	}

	if pOff <= o+l && pEnd > o+l {
		// Append p.body[(o+l-pOff) ..].
		skip := (o + l) - pOff
		merged := append(append([]byte(nil), head.msg.Body...), p.msg.Body[skip:]...)
		head.msg.FragmentLength = uint32(len(merged))
		head.msg.Body = merged
		return true
	}

	// Otherwise p is fully covered by head; drop it.
	return true
}

func (r *dtlsReassembler) removeHead(messageSeq uint16) {
	out := r.queue[:0]
	removed := false
	for _, p := range r.queue {
		if !removed && p.msg.MessageSeq == messageSeq {
			removed = true
			continue
		}
		out = append(out, p)
	}
	r.queue = out
}

// DTLSConnection holds the per-connection DTLS state described in spec §3:
// expected_version, the replay window, send/receive handshake message_seq
// counters, the record send sequence counter, epoch, the reassembly
// queue, and the accumulator of decoded messages.
type DTLSConnection struct {
	ExpectedVersion ProtocolVersion

	replay replayWindow

	nextSendSeq       uint16
	nextRecordSendSeq uint64
	Epoch             uint16

	reassembler dtlsReassembler

	queue []*DecodedMessage

	log *logging.Logger
}

// NewDTLSConnection constructs a DTLSConnection that only accepts records
// whose version matches expectedVersion.
func NewDTLSConnection(expectedVersion ProtocolVersion) *DTLSConnection {
	log := logging.DefaultLogger.WithTag("tlswire")
	return &DTLSConnection{
		ExpectedVersion: expectedVersion,
		reassembler:     dtlsReassembler{log: log},
		log:             log,
	}
}

// Decode processes one datagram: every complete DTLS record it contains is
// parsed, version-checked, and (for handshake records) run through the
// fragment reassembler; non-handshake records are emitted directly (spec
// §4.8).
func (c *DTLSConnection) Decode(datagram []byte) error {
	buf := datagram
	for len(buf) > 0 {
		rec, rest, err := DecodeDTLSRecord(buf)
		if err != nil {
			if IsNotEnoughData(err) {
				return nil
			}
			return errors.Wrapf(err, "tlswire: decoding dtls record")
		}
		buf = rest

		version, ok := rec.Version()
		if !ok || version != c.ExpectedVersion {
			c.log.Debug("dtls record version mismatch: got (%d,%d), want %s", rec.Major, rec.Minor, c.ExpectedVersion)
			return errWrongVersion("dtls_record.version", &Record{ContentType: rec.ContentType, Major: rec.Major, Minor: rec.Minor, Payload: rec.Payload})
		}

		c.replay.Accept(rec.SequenceNumber)

		if rec.ContentType != HandshakeContentType {
			c.queue = append(c.queue, decodedNonHandshakeDTLS(rec))
			continue
		}

		if err := c.consumeHandshakeRecord(rec); err != nil {
			return errors.Wrapf(err, "tlswire: decoding dtls handshake payload")
		}
	}
	return nil
}

func decodedNonHandshakeDTLS(rec *DTLSRecord) *DecodedMessage {
	switch rec.ContentType {
	case AlertContentType:
		if a, err := DecodeAlert(rec.Payload); err == nil {
			return &DecodedMessage{ContentType: AlertContentType, Alert: a}
		}
	case ChangeCipherSpecContentType:
		if ccs, err := DecodeChangeCipherSpec(rec.Payload); err == nil {
			return &DecodedMessage{ContentType: ChangeCipherSpecContentType, ChangeCipherSpec: ccs}
		}
	case HeartbeatContentType:
		if hb, err := DecodeHeartbeatMessage(rec.Payload); err == nil {
			return &DecodedMessage{ContentType: HeartbeatContentType, Heartbeat: hb}
		}
	}
	return &DecodedMessage{ContentType: ApplicationDataContentType, ApplicationData: rec.Payload}
}

// consumeHandshakeRecord parses one (or, if a record carries more than one
// back-to-back, several) DTLS handshake fragment headers out of rec's
// payload and runs each through the reassembler.
func (c *DTLSConnection) consumeHandshakeRecord(rec *DTLSRecord) error {
	buf := rec.Payload
	for len(buf) > 0 {
		frag, rest, err := DecodeDTLSHandshakeHeader(buf)
		if err != nil {
			return err
		}
		buf = rest

		completed, err := c.reassembler.feed(frag)
		for _, msg := range completed {
			c.queue = append(c.queue, &DecodedMessage{ContentType: HandshakeContentType, DTLSHandshake: msg})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes each DecodedMessage's DTLSHandshake (assigning
// message_seq and resetting fragment_offset/length, since the codec does
// not fragment on send) or other payload into its own DTLS record,
// stamping each with the current Epoch (which Encode does not change) and
// advancing the record sequence number as it goes.
func (c *DTLSConnection) Encode(messages []*DecodedMessage) ([][]byte, error) {
	major, minor := GetWireVersion(c.ExpectedVersion)
	out := make([][]byte, 0, len(messages))
	for _, m := range messages {
		var payload []byte
		var err error
		switch m.ContentType {
		case HandshakeContentType:
			m.DTLSHandshake.MessageSeq = c.nextSendSeq
			c.nextSendSeq++
			payload, err = m.DTLSHandshake.Encode()
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

		rec := &DTLSRecord{
			ContentType:    m.ContentType,
			Major:          major,
			Minor:          minor,
			Epoch:          c.Epoch,
			SequenceNumber: c.nextRecordSendSeq,
			Payload:        payload,
		}
		c.nextRecordSendSeq++
		out = append(out, rec.Encode())
	}
	return out, nil
}

// IsEmpty reports whether there are no decoded messages waiting to be
// popped.
func (c *DTLSConnection) IsEmpty() bool {
	return len(c.queue) == 0
}

// PopRecord removes and returns the oldest decoded message: message_seq
// order for handshake messages, arrival order for everything else (spec
// §5).
func (c *DTLSConnection) PopRecord() *DecodedMessage {
	if len(c.queue) == 0 {
		return nil
	}
	m := c.queue[0]
	c.queue = c.queue[1:]
	return m
}

// ClearRecords discards all pending decoded messages without returning
// them.
func (c *DTLSConnection) ClearRecords() {
	c.queue = nil
}
