package tlsengine

import (
	"time"

	"github.com/codahale/etm"
)

// Stateless session tickets (RFC 5077, folded into §4.7's resumption
// story): the server seals a Session under a key only it holds and hands
// the ciphertext to the client as the SessionTicket extension body; the
// client stores it opaquely and replays it on the next ClientHello in lieu
// of (or alongside) a cached SessionID. Sealing reuses
// github.com/codahale/etm the same way the Encrypt-then-MAC record cipher
// does (ciphersuite.go's etmFactory), just against a fixed AES-128-SHA256
// instance keyed by SessionCache.SessionTicketKey() rather than a
// handshake-derived key.
const ticketNonceLen = 16

// sealTicket encodes s into a flat buffer and seals it under key, which
// must be SessionCache.SessionTicketKey(). The nonce is drawn from the
// front of the random read the caller supplies so encryption stays
// deterministic-free without pulling in a package-level RNG here.
func sealTicket(key []byte, nonce []byte, s *Session) ([]byte, error) {
	if len(nonce) != ticketNonceLen {
		return nil, InternalError("tlsengine.ticket: nonce must be 16 bytes")
	}
	aead, err := etm.NewAES128SHA256(key)
	if err != nil {
		return nil, InternalError("tlsengine.ticket: " + err.Error())
	}
	plain := marshalTicketPayload(s)
	sealed := aead.Seal(nil, nonce, plain, nonce)
	return append(append([]byte{}, nonce...), sealed...), nil
}

// openTicket reverses sealTicket. A failure (wrong key, corrupt ticket,
// stale key rotation) is reported as ok=false so callers fall back to a
// full handshake rather than treating it as fatal.
func openTicket(key []byte, ticket []byte) (*Session, bool) {
	if len(ticket) < ticketNonceLen {
		return nil, false
	}
	nonce, sealed := ticket[:ticketNonceLen], ticket[ticketNonceLen:]
	aead, err := etm.NewAES128SHA256(key)
	if err != nil {
		return nil, false
	}
	plain, err := aead.Open(nil, nonce, sealed, nonce)
	if err != nil {
		return nil, false
	}
	s, err := unmarshalTicketPayload(plain)
	if err != nil {
		return nil, false
	}
	return s, true
}

func marshalTicketPayload(s *Session) []byte {
	buf := make([]byte, 0, 128+len(s.MasterSecret))
	verBuf := []byte{s.Version.Major, s.Version.Minor}
	buf = append(buf, verBuf...)
	suiteBuf := make([]byte, 2)
	encodeUint(uint64(s.CipherSuite.Suite), 2, suiteBuf)
	buf = append(buf, suiteBuf...)
	buf = writeOpaque16(buf, s.MasterSecret)
	buf = writeOpaque8(buf, s.SessionID)
	buf = writeOpaque16(buf, []byte(s.ServerHostname))
	startBuf := make([]byte, 8)
	encodeUint(uint64(s.StartTime.Unix()), 8, startBuf)
	buf = append(buf, startBuf...)
	lifetimeBuf := make([]byte, 8)
	encodeUint(uint64(s.LifetimeHint/time.Second), 8, lifetimeBuf)
	buf = append(buf, lifetimeBuf...)
	srtpBuf := make([]byte, 2)
	encodeUint(uint64(s.SRTPProfile), 2, srtpBuf)
	buf = append(buf, srtpBuf...)
	flags := byte(0)
	if s.ExtendedMasterSecret {
		flags |= 1
	}
	if s.EncryptThenMAC {
		flags |= 2
	}
	buf = append(buf, flags)
	return buf
}

func unmarshalTicketPayload(data []byte) (*Session, error) {
	if len(data) < 4 {
		return nil, newDecodeError("tlsengine.ticket: truncated payload")
	}
	version := ProtocolVersion{Major: data[0], Minor: data[1]}
	suite, err := decodeUint(data[2:4], 2)
	if err != nil {
		return nil, err
	}
	params, ok := LookupCipherSuite(CipherSuite(suite))
	if !ok {
		return nil, newDecodeError("tlsengine.ticket: unknown cipher suite in ticket")
	}
	rest := data[4:]

	masterSecret, rest, err := readOpaque16(rest)
	if err != nil {
		return nil, err
	}
	sessionID, rest, err := readOpaque8(rest)
	if err != nil {
		return nil, err
	}
	hostnameBytes, rest, err := readOpaque16(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) < 18 {
		return nil, newDecodeError("tlsengine.ticket: truncated trailer")
	}
	startUnix, err := decodeUint(rest[0:8], 8)
	if err != nil {
		return nil, err
	}
	lifetimeSecs, err := decodeUint(rest[8:16], 8)
	if err != nil {
		return nil, err
	}
	srtp, err := decodeUint(rest[16:18], 2)
	if err != nil {
		return nil, err
	}
	flags := byte(0)
	if len(rest) > 18 {
		flags = rest[18]
	}

	return &Session{
		Version:              version,
		CipherSuite:          params,
		MasterSecret:         append([]byte{}, masterSecret...),
		SessionID:            append([]byte{}, sessionID...),
		ServerHostname:       string(hostnameBytes),
		StartTime:            time.Unix(int64(startUnix), 0),
		LifetimeHint:         time.Duration(lifetimeSecs) * time.Second,
		SRTPProfile:          uint16(srtp),
		ExtendedMasterSecret: flags&1 != 0,
		EncryptThenMAC:       flags&2 != 0,
	}, nil
}

// SessionTicketExtension builds the empty-on-offer / ticket-bearing form of
// the SessionTicket extension (RFC 5077 §3.2): clients with no stored
// ticket send it empty to advertise support; clients resuming send the
// stored opaque ticket bytes.
func SessionTicketExtension(ticket []byte) Extension {
	return Extension{Type: ExtensionSessionTicket, Body: append([]byte{}, ticket...)}
}

// ParseSessionTicket extracts the raw ticket bytes from a SessionTicket
// extension; an empty result with ok=true means the peer advertised
// support without presenting a ticket.
func ParseSessionTicket(e Extension) (ticket []byte, ok bool) {
	if e.Type != ExtensionSessionTicket {
		return nil, false
	}
	return e.Body, true
}
