package tlsengine

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// pskCreds is the minimal Credentials implementation a PSK-only suite needs:
// no certificates, no private keys, just a shared secret keyed by identity.
type pskCreds struct {
	key []byte
}

func (c *pskCreds) TrustedCertificateAuthorities(CredentialType, string) [][]byte { return nil }
func (c *pskCreds) FindCertChain([]AuthMethod, [][]byte, CredentialType, string) [][]byte {
	return nil
}
func (c *pskCreds) PrivateKeyFor([]byte, CredentialType, string) (interface{}, bool) {
	return nil, false
}
func (c *pskCreds) PSK(typ CredentialType, context, identity string) ([]byte, bool) {
	return c.key, true
}

func pskOnlyPolicy() *Policy {
	return &Policy{
		AllowedVersions:           []ProtocolVersion{VersionTLS12},
		AllowedCiphers:            []CipherSuite{TLS_PSK_WITH_AES_128_GCM_SHA256},
		AllowedKeyExchangeMethods: []KeyExchangeMethod{KexPSK},
	}
}

// pump shuttles buffered wire bytes between a client and a server until
// neither side has anything queued, bounding the number of round trips so a
// stuck handshake fails the test instead of hanging.
func pump(t *testing.T, c *Client, s *Server, clientOut, serverOut *[]byte) {
	t.Helper()
	for round := 0; round < 20; round++ {
		if len(*clientOut) == 0 && len(*serverOut) == 0 {
			return
		}
		if len(*clientOut) > 0 {
			data := *clientOut
			*clientOut = nil
			_, err := s.ReceivedData(data)
			require.NoError(t, err)
		}
		if len(*serverOut) > 0 {
			data := *serverOut
			*serverOut = nil
			_, err := c.ReceivedData(data)
			require.NoError(t, err)
		}
	}
	t.Fatal("handshake did not converge within the round budget")
}

func newPipedEndpoints(t *testing.T, clientCfg, serverCfg *Config) (*Client, *Server, *[]byte, *[]byte) {
	t.Helper()
	var clientOut, serverOut []byte
	clientCfg.Hooks = &Hooks{EmitData: func(d []byte) { clientOut = append(clientOut, d...) }}
	serverCfg.Hooks = &Hooks{EmitData: func(d []byte) { serverOut = append(serverOut, d...) }}

	server, err := NewServer(serverCfg)
	require.NoError(t, err)
	client, err := NewClient(clientCfg)
	require.NoError(t, err)
	return client, server, &clientOut, &serverOut
}

func TestHandshakePSKFullAndApplicationData(t *testing.T) {
	psk := []byte("shared-secret-between-both-sides")
	policy := pskOnlyPolicy()

	client, server, clientOut, serverOut := newPipedEndpoints(t,
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, ServerHostname: "example.test"},
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}},
	)
	pump(t, client, server, clientOut, serverOut)

	require.True(t, client.IsActive())
	require.True(t, server.IsActive())

	var received []byte
	server.hs.hooks.RecordReceived = func(seq uint64, data []byte) { received = append(received, data...) }
	require.NoError(t, client.Send([]byte("hello over the wire")))
	pump(t, client, server, clientOut, serverOut)
	require.Equal(t, "hello over the wire", string(received))
}

func TestHandshakePSKSessionIDResumption(t *testing.T) {
	psk := []byte("shared-secret-between-both-sides")
	policy := pskOnlyPolicy()
	clientCache := NewMemorySessionCache(nil)
	serverCache := NewMemorySessionCache(nil)

	client1, server1, clientOut1, serverOut1 := newPipedEndpoints(t,
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, ServerHostname: "example.test", SessionCache: clientCache},
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, SessionCache: serverCache},
	)
	pump(t, client1, server1, clientOut1, serverOut1)
	require.True(t, client1.IsActive())
	require.True(t, server1.IsActive())
	require.False(t, client1.hs.resuming)

	client2, server2, clientOut2, serverOut2 := newPipedEndpoints(t,
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, ServerHostname: "example.test", SessionCache: clientCache},
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, SessionCache: serverCache},
	)
	pump(t, client2, server2, clientOut2, serverOut2)
	require.True(t, client2.IsActive())
	require.True(t, server2.IsActive())
	require.True(t, client2.hs.resuming)
	require.True(t, server2.hs.resuming)
}

func TestHandshakePSKStatelessTicketResumption(t *testing.T) {
	psk := []byte("shared-secret-between-both-sides")
	policy := pskOnlyPolicy()
	policy.IssueSessionTickets = true

	ticketKey := make([]byte, 16)
	_, err := rand.Read(ticketKey)
	require.NoError(t, err)

	clientCache := NewMemorySessionCache(nil)
	serverCacheConn1 := NewMemorySessionCache(ticketKey)

	client1, server1, clientOut1, serverOut1 := newPipedEndpoints(t,
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, ServerHostname: "example.test", SessionCache: clientCache},
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, SessionCache: serverCacheConn1},
	)
	pump(t, client1, server1, clientOut1, serverOut1)
	require.True(t, client1.IsActive())
	require.NotEmpty(t, client1.hs.receivedTicket)

	// A fresh server-side cache with no saved sessions, but the same ticket
	// key, models a second, independent server process: SessionID-based
	// resumption cannot succeed here, only the stateless ticket can.
	serverCacheConn2 := NewMemorySessionCache(ticketKey)
	client2, server2, clientOut2, serverOut2 := newPipedEndpoints(t,
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, ServerHostname: "example.test", SessionCache: clientCache},
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, SessionCache: serverCacheConn2},
	)
	pump(t, client2, server2, clientOut2, serverOut2)
	require.True(t, client2.IsActive())
	require.True(t, server2.IsActive())
	require.True(t, server2.hs.resuming)
}

func TestHandshakeDTLSPSKWithCookieRoundTrip(t *testing.T) {
	psk := []byte("shared-secret-between-both-sides")
	policy := pskOnlyPolicy()
	policy.AllowedVersions = []ProtocolVersion{VersionDTLS12}

	client, server, clientOut, serverOut := newPipedEndpoints(t,
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, Datagram: true},
		&Config{Policy: policy, Credentials: &pskCreds{key: psk}, Datagram: true},
	)

	pump(t, client, server, clientOut, serverOut)

	require.True(t, client.IsActive())
	require.True(t, server.IsActive())
	require.NotNil(t, server.hs.cookies)
}
