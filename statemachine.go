package tlsengine

import (
	"crypto"
	"crypto/rand"
)

// Handshake state machine (C6) — the core. One handshake struct serves
// both sides; side-specific behavior branches on h.side rather than two
// parallel type hierarchies, per §9's "avoid deep inheritance, prefer a
// trait/interface with a handful of methods" guidance applied to state
// instead of message types.

type hsState int

const (
	hsInitial hsState = iota
	hsSentClientHello
	hsSentHelloVerifyRequest
	hsReceivedClientHello
	hsSentServerHello
	hsSentCertificate
	hsSentServerKeyExchange
	hsSentCertificateRequest
	hsSentServerHelloDone
	hsReceivedServerHello
	hsReceivedCertificate
	hsReceivedServerKeyExchange
	hsReceivedCertificateRequest
	hsReceivedServerHelloDone
	hsSentClientCertificate
	hsSentClientKeyExchange
	hsSentCertificateVerify
	hsReceivedClientCertificate
	hsReceivedClientKeyExchange
	hsReceivedClientCertificateVerify
	hsAwaitingChangeCipherSpecFromPeer
	hsSentChangeCipherSpec
	hsSentFinished
	hsReceivedFinished
	hsActive
	hsClosed
)

// handshake carries every piece of per-connection negotiation state; it is
// owned by one endpoint (client.go/server.go) and never shared.
type handshake struct {
	side     ConnectionSide
	policy   *Policy
	hooks    *Hooks
	creds    Credentials
	sessions SessionCache
	rlOut    *DefaultRecordLayer // this side's write direction
	rlIn     *DefaultRecordLayer // this side's read direction
	datagram bool

	state hsState

	transcript *transcript
	hsBuf      []byte // TLS stream reassembly buffer for handshake records
	reasm      *reassembler
	sendSeq    uint16
	recvSeq    uint16
	cookies    *cookieSecret
	timer      *flightTimer
	outFlight  flight

	clientRandom, serverRandom Random
	sessionID                  []byte
	resuming                   bool
	resumedSession             *Session

	offeredSuites []CipherSuite
	suite         CipherSuiteParams
	version       ProtocolVersion

	extendedMasterSecret bool
	encryptThenMAC       bool
	sessionHashAtCKE     []byte

	preMasterSecret []byte
	masterSecret    []byte

	group        NamedGroup
	ourShare     []byte
	ourSharePriv interface{}
	peerShare    []byte

	serverHostname    string
	peerCertificates  [][]byte
	clientCertAsked   bool
	clientCertSent    bool

	offeredALPN []string
	chosenALPN  string

	clientVerifyData []byte
	serverVerifyData []byte

	pskIdentity          string
	clientOfferedVersion ProtocolVersion
	lastClientHello      *ClientHello
	sentOwnFinished      bool
	peerSupportsTickets  bool
	receivedTicket       []byte

	lastError error
}

func newHandshake(side ConnectionSide, policy *Policy, hooks *Hooks, creds Credentials, sessions SessionCache, rlOut, rlIn *DefaultRecordLayer, datagram bool) *handshake {
	h := &handshake{
		side: side, policy: policy, hooks: hooks, creds: creds, sessions: sessions,
		rlOut: rlOut, rlIn: rlIn, datagram: datagram,
		transcript: newTranscript(crypto.SHA256, crypto.SHA384),
	}
	if datagram {
		h.reasm = newReassembler()
		h.timer = newFlightTimer(policy)
	}
	return h
}

// --- outbound handshake message plumbing ---

type handshakeBody interface {
	Marshal() ([]byte, error)
}

func (h *handshake) send(msgType HandshakeType, body handshakeBody) error {
	raw, err := body.Marshal()
	if err != nil {
		return err
	}
	header := HandshakeHeader{MsgType: msgType, Length: uint32(len(raw))}
	if h.datagram {
		header.MessageSeq = h.sendSeq
		h.sendSeq++
		header.FragmentOffset = 0
		header.FragmentLength = uint32(len(raw))
	}
	// RFC 6347 §4.2.6: the transcript hash treats every handshake message as
	// a single non-fragmented unit, so message_seq/fragment_offset/
	// fragment_length never enter it even for DTLS; only the wire framing
	// carries them.
	h.transcript.append(append(marshalHandshakeHeader(HandshakeHeader{MsgType: msgType, Length: header.Length}, false), raw...))
	framed := append(marshalHandshakeHeader(header, h.datagram), raw...)
	if h.datagram {
		h.outFlight.add(framed)
	}
	return h.rlOut.WriteRecord(NewTLSPlaintext(RecordTypeHandshake, h.rlOut.Epoch(), framed))
}

// appendInboundToTranscript mirrors send()'s transcript hashing rule for
// inbound messages: the conceptual 4-byte header plus the reassembled body,
// regardless of TLS/DTLS framing.
func (h *handshake) appendInboundToTranscript(hdr HandshakeHeader, body []byte) {
	h.transcript.append(append(marshalHandshakeHeader(HandshakeHeader{MsgType: hdr.MsgType, Length: uint32(len(body))}, false), body...))
}

// flushFlight arms the DTLS retransmission timer once a flight is complete,
// §4.3; the flight's messages were already written by send().
func (h *handshake) flushFlight() {
	if !h.datagram {
		return
	}
	h.timer.start()
}

// retransmit rewrites every handshake message held in h.outFlight, which
// collects each message sent since the handshake began (it is not cleared
// between flights). flightTimer.tick reports when a timeout is due; no code
// in this package calls retransmit.
func (h *handshake) retransmit() error {
	for _, m := range h.outFlight.messages {
		if err := h.rlOut.WriteRecord(NewTLSPlaintext(RecordTypeHandshake, h.rlOut.Epoch(), m)); err != nil {
			return err
		}
	}
	return nil
}

// --- inbound handshake message reassembly ---

// feedHandshakeRecord accepts one decrypted handshake-content-type record
// and returns every complete handshake message it yields, in order. TLS
// messages may straddle records (stream reassembly); DTLS messages may
// arrive as out-of-order fragments (datagram reassembly via reasm).
func (h *handshake) feedHandshakeRecord(fragment []byte) ([]HandshakeHeader, [][]byte, error) {
	var headers []HandshakeHeader
	var bodies [][]byte

	if !h.datagram {
		h.hsBuf = append(h.hsBuf, fragment...)
		for {
			hdr, hlen, err := parseHandshakeHeader(h.hsBuf, false)
			if err != nil {
				return headers, bodies, nil // not enough bytes yet
			}
			total := hlen + int(hdr.Length)
			if len(h.hsBuf) < total {
				return headers, bodies, nil
			}
			body := append([]byte{}, h.hsBuf[hlen:total]...)
			h.hsBuf = h.hsBuf[total:]
			headers = append(headers, hdr)
			bodies = append(bodies, body)
		}
	}

	off := 0
	for off < len(fragment) {
		hdr, hlen, err := parseHandshakeHeader(fragment[off:], true)
		if err != nil {
			return headers, bodies, err
		}
		fragBody := fragment[off+hlen : off+hlen+int(hdr.FragmentLength)]
		off += hlen + int(hdr.FragmentLength)
		full, complete := h.reasm.addFragment(hdr, fragBody)
		if !complete {
			continue
		}
		headers = append(headers, HandshakeHeader{MsgType: hdr.MsgType, Length: hdr.Length, MessageSeq: hdr.MessageSeq})
		bodies = append(bodies, full)
	}
	return headers, bodies, nil
}

// --- negotiation helpers shared by client and server paths ---

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, InternalError("tlsengine.statemachine: rand: " + err.Error())
	}
	return b, nil
}

func newRandom() (Random, error) {
	var r Random
	b, err := randomBytes(32)
	if err != nil {
		return r, err
	}
	copy(r[:], b)
	return r, nil
}

// deriveMaster computes and stores the master secret once both randoms,
// the pre-master, and (if extended) the session hash are known, §4.5.
func (h *handshake) deriveMaster() {
	sessionHash := h.sessionHashAtCKE
	h.masterSecret = deriveMasterSecret(h.version, h.suite.PRFHash, h.preMasterSecret, h.clientRandom[:], h.serverRandom[:], sessionHash, h.extendedMasterSecret)
	for i := range h.preMasterSecret {
		h.preMasterSecret[i] = 0
	}
}

// keyBlockFor expands the derived master secret into the six key-block
// values (client and server MAC key, cipher key and IV), §4.5.
func (h *handshake) keyBlockFor() keyBlock {
	return deriveKeyBlock(h.version, h.suite, h.masterSecret, h.clientRandom[:], h.serverRandom[:])
}

func (h *handshake) finished(side ConnectionSide) []byte {
	return finishedVerifyData(h.version, h.suite.PRFHash, h.masterSecret, side, h.transcript.sum())
}

// installWriteKeys installs this side's own key-block quadrant on the write
// record layer, called right before sending our own ChangeCipherSpec.
func (h *handshake) installWriteKeys() error {
	kb := h.keyBlockFor()
	key, mac, iv := kb.ClientKey, kb.ClientMAC, kb.ClientIV
	if h.side == SideServer {
		key, mac, iv = kb.ServerKey, kb.ServerMAC, kb.ServerIV
	}
	return h.rlOut.Rekey(h.rlOut.Epoch()+1, h.suite, &KeySet{Keys: map[string][]byte{
		labelForKey: key, labelForMAC: mac, labelForIV: iv,
	}}, h.encryptThenMAC)
}

// installReadKeys installs the peer's key-block quadrant on the read record
// layer, called on receipt of the peer's ChangeCipherSpec.
func (h *handshake) installReadKeys() error {
	kb := h.keyBlockFor()
	key, mac, iv := kb.ServerKey, kb.ServerMAC, kb.ServerIV
	if h.side == SideServer {
		key, mac, iv = kb.ClientKey, kb.ClientMAC, kb.ClientIV
	}
	return h.rlIn.Rekey(h.rlIn.Epoch()+1, h.suite, &KeySet{Keys: map[string][]byte{
		labelForKey: key, labelForMAC: mac, labelForIV: iv,
	}}, h.encryptThenMAC)
}

// processPeerChangeCipherSpec handles the bare ChangeCipherSpec record that
// precedes the peer's Finished, installing our read-direction keys.
func (h *handshake) processPeerChangeCipherSpec() error {
	if h.state != hsAwaitingChangeCipherSpecFromPeer {
		return UnexpectedMessageError{State: "handshake", Got: HandshakeType(0)}
	}
	return h.installReadKeys()
}

// processPeerFinished verifies the peer's Finished verify_data against the
// transcript as it stood before this message arrived, then appends it (the
// append was deliberately skipped in dispatchHandshakeMessage so the hash
// used here excludes it, per §4.5 "up to, but not including, this
// message"). If we have not already sent our own ChangeCipherSpec+Finished
// (the abbreviated handshake's server-goes-first ordering, or the full
// handshake's server-goes-second ordering), sends it now before
// transitioning Active; that send's own verify_data is computed over the
// transcript including the peer's Finished, which is the correct input for
// the second Finished in either ordering.
func (h *handshake) processPeerFinished(hdr HandshakeHeader, body []byte, sendOwn func() error) error {
	var f Finished
	if _, err := syntaxUnmarshal(body, &f); err != nil {
		return err
	}
	peerSide := SideServer
	if h.side == SideServer {
		peerSide = SideClient
	}
	want := h.finished(peerSide)
	if !hmacEqual(want, f.VerifyData) {
		return HandshakeFailureError("tlsengine.statemachine: finished verify_data mismatch")
	}
	h.appendInboundToTranscript(hdr, body)
	if peerSide == SideServer {
		h.serverVerifyData = f.VerifyData
	} else {
		h.clientVerifyData = f.VerifyData
	}
	if !h.sentOwnFinished {
		if err := sendOwn(); err != nil {
			return err
		}
	}
	h.state = hsActive
	return nil
}

// toSession builds the immutable Session record on handshake completion,
// §3/§4.7.
func (h *handshake) toSession() *Session {
	ms := append([]byte{}, h.masterSecret...)
	return &Session{
		Version: h.version, CipherSuite: h.suite, MasterSecret: ms,
		SessionID: append([]byte{}, h.sessionID...), PeerCertificates: h.peerCertificates,
		ServerHostname: h.serverHostname, StartTime: timeNow(),
		ExtendedMasterSecret: h.extendedMasterSecret, EncryptThenMAC: h.encryptThenMAC,
		Ticket: append([]byte{}, h.receivedTicket...),
	}
}

// negotiatedBool reports whether both the client's and the server's
// extension lists carry extension t, §4.5/RFC 7627/RFC 7366.
func negotiatedBool(clientExts, serverExts ExtensionList, t ExtensionType) bool {
	_, c := clientExts.Find(t)
	_, s := serverExts.Find(t)
	return c && s
}
