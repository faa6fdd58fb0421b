package tlsengine

// Client is the client-side endpoint façade (C10): construction
// immediately sends the first ClientHello, after which ReceivedData
// drives the rest of the handshake and then application traffic.
type Client struct {
	*Endpoint
}

// NewClient builds a client endpoint against cfg and sends the initial
// ClientHello (or, for DTLS, the first uncookied one). Any send-side
// failure building that first flight is returned immediately rather than
// deferred to the first ReceivedData call.
func NewClient(cfg *Config) (*Client, error) {
	e := newEndpoint(SideClient, cfg)
	if err := e.hs.clientBegin(cfg); err != nil {
		return nil, err
	}
	e.drainAndEmit()
	return &Client{Endpoint: e}, nil
}

// ReceivedData feeds inbound bytes to the client handshake/record state.
func (c *Client) ReceivedData(data []byte) (int, error) {
	return c.Endpoint.ReceivedData(data, handshakeStep)
}
