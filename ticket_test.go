package tlsengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSession() *Session {
	suite, _ := LookupCipherSuite(TLS_PSK_WITH_AES_128_GCM_SHA256)
	return &Session{
		Version:              VersionTLS12,
		CipherSuite:          suite,
		MasterSecret:         []byte("0123456789abcdef0123456789abcdef0123456789ab"),
		SessionID:            []byte{1, 2, 3, 4},
		ServerHostname:       "example.test",
		StartTime:            time.Unix(1700000000, 0),
		LifetimeHint:         2 * time.Hour,
		ExtendedMasterSecret: true,
		EncryptThenMAC:       true,
	}
}

func TestSealOpenTicketRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	nonce := make([]byte, ticketNonceLen)
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}

	s := testSession()
	ticket, err := sealTicket(key, nonce, s)
	require.NoError(t, err)

	got, ok := openTicket(key, ticket)
	require.True(t, ok)
	require.Equal(t, s.Version, got.Version)
	require.Equal(t, s.CipherSuite.Suite, got.CipherSuite.Suite)
	require.Equal(t, s.MasterSecret, got.MasterSecret)
	require.Equal(t, s.SessionID, got.SessionID)
	require.Equal(t, s.ServerHostname, got.ServerHostname)
	require.Equal(t, s.StartTime.Unix(), got.StartTime.Unix())
	require.Equal(t, s.LifetimeHint, got.LifetimeHint)
	require.True(t, got.ExtendedMasterSecret)
	require.True(t, got.EncryptThenMAC)
}

func TestOpenTicketRejectsWrongKey(t *testing.T) {
	key := make([]byte, 16)
	nonce := make([]byte, ticketNonceLen)
	ticket, err := sealTicket(key, nonce, testSession())
	require.NoError(t, err)

	wrongKey := make([]byte, 16)
	wrongKey[0] = 0xff
	_, ok := openTicket(wrongKey, ticket)
	require.False(t, ok)
}

func TestOpenTicketRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 16)
	nonce := make([]byte, ticketNonceLen)
	ticket, err := sealTicket(key, nonce, testSession())
	require.NoError(t, err)

	ticket[len(ticket)-1] ^= 0xff
	_, ok := openTicket(key, ticket)
	require.False(t, ok)
}

func TestOpenTicketRejectsTruncatedTicket(t *testing.T) {
	_, ok := openTicket(make([]byte, 16), []byte{1, 2, 3})
	require.False(t, ok)
}
