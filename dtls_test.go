package tlsengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReassemblerOutOfOrderFragments(t *testing.T) {
	r := newReassembler()
	msg := []byte("0123456789abcdef")
	hdr := HandshakeHeader{MsgType: HandshakeTypeCertificate, Length: uint32(len(msg)), MessageSeq: 3}

	h1 := hdr
	h1.FragmentOffset, h1.FragmentLength = 8, 8
	_, complete := r.addFragment(h1, msg[8:])
	require.False(t, complete)

	h2 := hdr
	h2.FragmentOffset, h2.FragmentLength = 0, 8
	full, complete := r.addFragment(h2, msg[:8])
	require.True(t, complete)
	require.Equal(t, msg, full)
}

func TestReassemblerOverlappingFragmentsMerge(t *testing.T) {
	r := newReassembler()
	msg := []byte("abcdefgh")
	hdr := HandshakeHeader{MsgType: HandshakeTypeCertificate, Length: uint32(len(msg)), MessageSeq: 1}

	h1 := hdr
	h1.FragmentOffset, h1.FragmentLength = 0, 5
	_, complete := r.addFragment(h1, msg[:5])
	require.False(t, complete)

	h2 := hdr
	h2.FragmentOffset, h2.FragmentLength = 3, 5
	full, complete := r.addFragment(h2, msg[3:])
	require.True(t, complete)
	require.Equal(t, msg, full)
}

func TestReassemblerRejectsFragmentBeyondDeclaredLength(t *testing.T) {
	r := newReassembler()
	hdr := HandshakeHeader{MsgType: HandshakeTypeCertificate, Length: 4, MessageSeq: 1}
	hdr.FragmentOffset, hdr.FragmentLength = 0, 10
	_, complete := r.addFragment(hdr, make([]byte, 10))
	require.False(t, complete)
}

func TestFlightTimerExponentialBackoff(t *testing.T) {
	policy := &Policy{DtlsInitialTimeoutMillis: 100, DtlsMaximumTimeoutMillis: 300}
	timer := newFlightTimer(policy)
	timer.start()

	require.False(t, timer.tick(50))
	require.True(t, timer.tick(50))  // 100ms elapsed, fires, doubles to 200
	require.False(t, timer.tick(150))
	require.True(t, timer.tick(50))  // 200ms elapsed, fires, doubles to 300 (capped)

	timer.cancel()
	require.False(t, timer.tick(10000))
}

func TestCookieSecretVerifiesOwnCookie(t *testing.T) {
	cs := newCookieSecret([]byte("server-side-secret"))
	random := Random{1, 2, 3}
	sessionID := []byte{9, 9}
	cookie := cs.compute("198.51.100.1:1234", random, sessionID)
	require.Len(t, cookie, cookieLen)
	require.True(t, cs.verify("198.51.100.1:1234", random, sessionID, cookie))
}

func TestCookieSecretRejectsTamperedInputs(t *testing.T) {
	cs := newCookieSecret([]byte("server-side-secret"))
	random := Random{1, 2, 3}
	sessionID := []byte{9, 9}
	cookie := cs.compute("198.51.100.1:1234", random, sessionID)

	require.False(t, cs.verify("203.0.113.9:1234", random, sessionID, cookie))
	require.False(t, cs.verify("198.51.100.1:1234", Random{9, 9, 9}, sessionID, cookie))

	other := newCookieSecret([]byte("a different secret"))
	require.False(t, other.verify("198.51.100.1:1234", random, sessionID, cookie))
}
