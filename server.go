package tlsengine

import cryptorand "crypto/rand"

// Server is the server-side endpoint façade (C10): construction only
// allocates the record/handshake state. The handshake itself begins the
// first time ReceivedData delivers a ClientHello.
type Server struct {
	*Endpoint
}

// NewServer builds a server endpoint against cfg. For DTLS it also
// provisions a cookie secret so the handshake can demand RFC 6347
// §4.2.1's cookie round trip before allocating any per-client state.
func NewServer(cfg *Config) (*Server, error) {
	e := newEndpoint(SideServer, cfg)
	if cfg.Datagram {
		key := make([]byte, 32)
		if _, err := cryptorand.Read(key); err != nil {
			return nil, InternalError("tlsengine.server: cookie secret: " + err.Error())
		}
		e.hs.cookies = newCookieSecret(key)
	}
	return &Server{Endpoint: e}, nil
}

// ReceivedData feeds inbound bytes to the server handshake/record state.
func (s *Server) ReceivedData(data []byte) (int, error) {
	return s.Endpoint.ReceivedData(data, handshakeStep)
}
