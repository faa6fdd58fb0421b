package tlsengine

import "sync"

// Config carries the embedder-supplied collaborators §1/§6 name as
// external: policy, callback hooks, credential provider, and session
// cache. Built once and passed to NewClient/NewServer; read-only for the
// lifetime of the endpoints built from it.
type Config struct {
	Policy         *Policy
	Hooks          *Hooks
	Credentials    Credentials
	SessionCache   SessionCache
	ServerHostname string   // client: SNI value and session-cache lookup key
	ALPNProtocols  []string // client: offered list; server: supported set
	Datagram       bool     // selects DTLS framing and transport behavior
}

func (c *Config) policy() *Policy {
	if c.Policy != nil {
		return c.Policy
	}
	return DefaultPolicy()
}

// lifecycleState is §3's endpoint lifecycle: Initial, mid-handshake states
// (tracked separately in handshake.state), Active, Closed.
type lifecycleState int

const (
	lifecycleInitial lifecycleState = iota
	lifecycleActive
	lifecycleClosed
)

// Endpoint is the shared machinery behind Client and Server: byte-in,
// byte-out, application send, close/alert, callback dispatch (C10). Each
// instance is single-threaded with respect to itself, per §5 — callers
// must serialize ReceivedData/Send/Close on one endpoint.
type Endpoint struct {
	mu        sync.Mutex
	side      ConnectionSide
	cfg       *Config
	rlOut     *DefaultRecordLayer // write direction
	rlIn      *DefaultRecordLayer // read direction
	hs        *handshake
	lifecycle lifecycleState
	closedOut bool // local half closed (sent close_notify or fatal)
	closedIn  bool // peer half closed (received close_notify)

	sessionEstablishedFired bool
}

func newEndpoint(side ConnectionSide, cfg *Config) *Endpoint {
	var rlOut, rlIn *DefaultRecordLayer
	if cfg.Datagram {
		rlOut = NewRecordLayerDTLS(DirectionWrite)
		rlIn = NewRecordLayerDTLS(DirectionRead)
	} else {
		rlOut = NewRecordLayerTLS(DirectionWrite)
		rlIn = NewRecordLayerTLS(DirectionRead)
	}
	e := &Endpoint{side: side, cfg: cfg, rlOut: rlOut, rlIn: rlIn}
	e.hs = newHandshake(side, cfg.policy(), cfg.Hooks, cfg.Credentials, cfg.SessionCache, rlOut, rlIn, cfg.Datagram)
	return e
}

// IsActive reports whether the handshake has completed, §4.8.
func (e *Endpoint) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle == lifecycleActive
}

// IsClosed reports whether the endpoint has transitioned to Closed.
func (e *Endpoint) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle == lifecycleClosed
}

// ApplicationProtocol returns the ALPN result, "" if none was negotiated.
func (e *Endpoint) ApplicationProtocol() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hs.chosenALPN
}

// PeerCertChain returns the peer's certificate chain, leaf first; nil if
// the peer never authenticated (anonymous KEX, or client auth not
// requested/required).
func (e *Endpoint) PeerCertChain() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hs.peerCertificates
}

// KeyMaterialExport implements §4.8's exporter: PRF(master, label,
// client_random ‖ server_random ‖ length-prefixed context) truncated to
// length. Valid only once Active.
func (e *Endpoint) KeyMaterialExport(label string, context []byte, length int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleActive {
		return nil, ErrNotActive
	}
	return keyMaterialExport(e.hs.version, e.hs.suite.PRFHash, e.hs.masterSecret, e.hs.clientRandom[:], e.hs.serverRandom[:], label, context, length), nil
}

// Send encrypts and enqueues application data, valid only when Active
// (§4.8). bytes longer than the fragment limit are split across records.
func (e *Endpoint) Send(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != lifecycleActive {
		return ErrNotActive
	}
	for len(data) > 0 {
		n := len(data)
		if n > maxFragmentLen {
			n = maxFragmentLen
		}
		if err := e.rlOut.WriteRecord(NewTLSPlaintext(RecordTypeApplicationData, e.rlOut.Epoch(), data[:n])); err != nil {
			return err
		}
		data = data[n:]
	}
	e.drainAndEmit()
	return nil
}

// SendWarningAlert and SendFatalAlert emit the given alert description at
// the named level; SendFatalAlert also transitions to Closed, per §4.8.
func (e *Endpoint) SendWarningAlert(d AlertDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendAlertLocked(warningAlert(d))
}

func (e *Endpoint) SendFatalAlert(d AlertDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sendAlertLocked(fatalAlert(d)); err != nil {
		return err
	}
	e.closeLocked()
	return nil
}

// Close sends close_notify and transitions to Closed. Idempotent after the
// first call, per §5's cancellation contract.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closedOut {
		return nil
	}
	err := e.sendAlertLocked(warningAlert(AlertCloseNotify))
	e.closeLocked()
	return err
}

func (e *Endpoint) sendAlertLocked(a Alert) error {
	if e.closedOut {
		return nil
	}
	body := []byte{byte(a.Level), byte(a.Description)}
	if err := e.rlOut.WriteRecord(NewTLSPlaintext(RecordTypeAlert, e.rlOut.Epoch(), body)); err != nil {
		return err
	}
	e.closedOut = true
	e.hs.hooks.alert(a, true)
	e.drainAndEmit()
	return nil
}

func (e *Endpoint) closeLocked() {
	e.lifecycle = lifecycleClosed
}

func (e *Endpoint) drainAndEmit() {
	out := e.rlOut.DrainOutbound()
	e.hs.hooks.emit(out)
}

// ReceivedData feeds inbound wire bytes and drives the engine forward,
// §4.8. It returns a hint for how many more bytes are needed before the
// next record can be parsed; 0 means a full record was available and
// consumed (there may be more already buffered — callers loop until the
// hint is non-zero or no data remains).
func (e *Endpoint) ReceivedData(data []byte, step func(e *Endpoint, pt *TLSPlaintext) error) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == lifecycleClosed {
		return 0, nil
	}
	e.rlIn.PushInbound(data)
	for {
		pt, err := e.rlIn.ReadRecord()
		if err == AlertWouldBlock {
			break
		}
		if alertErr, ok := err.(alertError); ok {
			e.handleLocalFailureLocked(alertErr)
			break
		}
		if err != nil {
			return 0, err
		}
		if procErr := step(e, pt); procErr != nil {
			if alertErr, ok := procErr.(alertError); ok {
				e.handleLocalFailureLocked(alertErr)
			} else {
				return 0, procErr
			}
			break
		}
	}
	e.drainAndEmit()
	return e.rlIn.NeededHint(), nil
}

// handleLocalFailureLocked maps any alertError raised while processing
// inbound data to a fatal (or warning, for UserCanceled) outbound alert
// and closes the connection, §7.
func (e *Endpoint) handleLocalFailureLocked(err alertError) {
	a := err.Alert()
	_ = e.sendAlertLocked(a)
	e.closeLocked()
}

// handleAlertRecord processes a received Alert record: fatal alerts close
// the connection; close_notify closes the inbound half; other warnings are
// only reported, §7.
func (e *Endpoint) handleAlertRecord(body []byte) error {
	if len(body) != 2 {
		return newDecodeError("tlsengine.endpoint: malformed alert record")
	}
	a := Alert{Level: AlertLevel(body[0]), Description: AlertDescription(body[1])}
	e.hs.hooks.alert(a, false)
	if a.IsFatal() {
		e.closeLocked()
		return nil
	}
	if a.Description == AlertCloseNotify {
		e.closedIn = true
	}
	return nil
}

// maybeFireSessionEstablished transitions to Active and fires the
// session_established callback exactly once, §4.8.
func (e *Endpoint) maybeFireSessionEstablished() {
	if e.sessionEstablishedFired {
		return
	}
	e.sessionEstablishedFired = true
	e.lifecycle = lifecycleActive
	session := e.hs.toSession()
	if e.hs.hooks.sessionEstablished(session) && e.cfg.SessionCache != nil {
		_ = e.cfg.SessionCache.Save(session)
	}
}
