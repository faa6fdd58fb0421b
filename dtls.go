package tlsengine

import (
	"crypto/hmac"
	"crypto/sha256"
)

// DTLS transport (C3): handshake-message reassembly across datagrams,
// flight retransmission timing, and the mandatory HelloVerifyRequest
// cookie exchange. The record-layer epoch/anti-replay handling itself
// lives in record-layer.go; this file is the layer above it that the
// state machine (C6) drives.

// fragment is one arrived contribution to a reassembling handshake message.
type fragment struct {
	offset, length int
	data           []byte
}

// reassembler buffers out-of-order DTLS handshake fragments keyed by
// message_seq, merging overlapping contributions and reporting a message
// complete once bytes [0, length) are all present, per §4.3.
type reassembler struct {
	pending map[uint16]*pendingMessage
}

type pendingMessage struct {
	msgType   HandshakeType
	total     int
	fragments []fragment
	have      int
}

func newReassembler() *reassembler {
	return &reassembler{pending: make(map[uint16]*pendingMessage)}
}

// addFragment returns the full message body once every byte has arrived.
func (r *reassembler) addFragment(h HandshakeHeader, body []byte) ([]byte, bool) {
	pm, ok := r.pending[h.MessageSeq]
	if !ok {
		pm = &pendingMessage{msgType: h.MsgType, total: int(h.Length)}
		r.pending[h.MessageSeq] = pm
	}
	if int(h.FragmentOffset)+int(h.FragmentLength) > pm.total {
		return nil, false // malformed fragment, silently ignored; sender will retransmit
	}
	pm.fragments = append(pm.fragments, fragment{offset: int(h.FragmentOffset), length: int(h.FragmentLength), data: body})

	covered := make([]bool, pm.total)
	for _, f := range pm.fragments {
		for i := 0; i < f.length; i++ {
			covered[f.offset+i] = true
		}
	}
	for _, c := range covered {
		if !c {
			return nil, false
		}
	}

	full := make([]byte, pm.total)
	for _, f := range pm.fragments {
		copy(full[f.offset:f.offset+f.length], f.data)
	}
	delete(r.pending, h.MessageSeq)
	return full, true
}

// flightTimer implements §4.3's exponential-backoff retransmission timer.
// The engine has no internal clock (§5): the caller drives it via tick.
type flightTimer struct {
	initialMillis int
	maximumMillis int
	currentMillis int
	elapsedMillis int
	active        bool
}

func newFlightTimer(policy *Policy) *flightTimer {
	return &flightTimer{initialMillis: policy.DtlsInitialTimeoutMillis, maximumMillis: policy.DtlsMaximumTimeoutMillis}
}

// start (re)arms the timer at the initial timeout, called when a flight is
// sent for the first time.
func (t *flightTimer) start() {
	t.currentMillis = t.initialMillis
	t.elapsedMillis = 0
	t.active = true
}

// cancel stops the timer; called on any progress-proving receipt from the
// peer (§4.3).
func (t *flightTimer) cancel() {
	t.active = false
}

// tick advances the timer by elapsedMillis and reports whether the current
// flight must be retransmitted, doubling the timeout up to maximumMillis.
func (t *flightTimer) tick(elapsedMillis int) (retransmit bool) {
	if !t.active {
		return false
	}
	t.elapsedMillis += elapsedMillis
	if t.elapsedMillis < t.currentMillis {
		return false
	}
	t.elapsedMillis = 0
	t.currentMillis *= 2
	if t.currentMillis > t.maximumMillis {
		t.currentMillis = t.maximumMillis
	}
	return true
}

// flight is the contiguous batch of handshake messages one side sends
// before awaiting the peer, §4.3/GLOSSARY. Retransmission resends every
// message in the flight verbatim (same message_seq, same fragment bytes).
type flight struct {
	messages [][]byte // each already framed with its DTLS handshake header
}

func (f *flight) add(framed []byte) {
	f.messages = append(f.messages, framed)
}

func (f *flight) bytes() []byte {
	var out []byte
	for _, m := range f.messages {
		out = append(out, m...)
	}
	return out
}

// cookie exchange, RFC 6347 §4.2.1: the server MUST NOT allocate
// handshake state until the client echoes a cookie the server computed
// from the client's first ClientHello, keyed by a server-local secret so
// no per-client state is needed before the round trip completes.
const cookieLen = 32

type cookieSecret struct {
	key []byte
}

func newCookieSecret(key []byte) *cookieSecret {
	return &cookieSecret{key: key}
}

// compute derives a deterministic cookie from the client's address and
// its initial ClientHello parameters (random plus session id), so the
// server can verify the echoed cookie without retaining any state from
// the first round trip.
func (c *cookieSecret) compute(clientAddr string, clientRandom Random, sessionID []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(clientAddr))
	mac.Write(clientRandom[:])
	mac.Write(sessionID)
	return mac.Sum(nil)[:cookieLen]
}

func (c *cookieSecret) verify(clientAddr string, clientRandom Random, sessionID []byte, cookie []byte) bool {
	want := c.compute(clientAddr, clientRandom, sessionID)
	return hmacEqual(want, cookie)
}
