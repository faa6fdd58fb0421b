package tlsengine

import "github.com/qref/tlsengine/syntax"

// HandshakeType identifies a handshake message body, RFC 5246 §7.4 plus
// HelloVerifyRequest from RFC 6347 §4.2.2.
type HandshakeType uint8

const (
	HandshakeTypeHelloRequest       HandshakeType = 0
	HandshakeTypeClientHello        HandshakeType = 1
	HandshakeTypeServerHello        HandshakeType = 2
	HandshakeTypeHelloVerifyRequest HandshakeType = 3
	HandshakeTypeNewSessionTicket   HandshakeType = 4
	HandshakeTypeCertificate        HandshakeType = 11
	HandshakeTypeServerKeyExchange  HandshakeType = 12
	HandshakeTypeCertificateRequest HandshakeType = 13
	HandshakeTypeServerHelloDone    HandshakeType = 14
	HandshakeTypeCertificateVerify  HandshakeType = 15
	HandshakeTypeClientKeyExchange  HandshakeType = 16
	HandshakeTypeFinished           HandshakeType = 20
)

func (t HandshakeType) String() string {
	switch t {
	case HandshakeTypeHelloRequest:
		return "hello_request"
	case HandshakeTypeClientHello:
		return "client_hello"
	case HandshakeTypeServerHello:
		return "server_hello"
	case HandshakeTypeHelloVerifyRequest:
		return "hello_verify_request"
	case HandshakeTypeNewSessionTicket:
		return "new_session_ticket"
	case HandshakeTypeCertificate:
		return "certificate"
	case HandshakeTypeServerKeyExchange:
		return "server_key_exchange"
	case HandshakeTypeCertificateRequest:
		return "certificate_request"
	case HandshakeTypeServerHelloDone:
		return "server_hello_done"
	case HandshakeTypeCertificateVerify:
		return "certificate_verify"
	case HandshakeTypeClientKeyExchange:
		return "client_key_exchange"
	case HandshakeTypeFinished:
		return "finished"
	default:
		return "unknown_handshake_type"
	}
}

// HandshakeHeader is the envelope wrapped around every handshake body,
// RFC 5246 §7.4 for TLS; RFC 6347 §4.2.2 adds message_seq/fragment_offset/
// fragment_length for DTLS.
type HandshakeHeader struct {
	MsgType        HandshakeType
	Length         uint32
	MessageSeq     uint16
	FragmentOffset uint32
	FragmentLength uint32
}

func marshalHandshakeHeader(h HandshakeHeader, datagram bool) []byte {
	buf := make([]byte, 1, 12)
	buf[0] = byte(h.MsgType)
	lenBuf := make([]byte, 3)
	encodeUint(uint64(h.Length), 3, lenBuf)
	buf = append(buf, lenBuf...)
	if datagram {
		seqBuf := make([]byte, 2)
		encodeUint(uint64(h.MessageSeq), 2, seqBuf)
		offBuf := make([]byte, 3)
		encodeUint(uint64(h.FragmentOffset), 3, offBuf)
		flBuf := make([]byte, 3)
		encodeUint(uint64(h.FragmentLength), 3, flBuf)
		buf = append(buf, seqBuf...)
		buf = append(buf, offBuf...)
		buf = append(buf, flBuf...)
	}
	return buf
}

func parseHandshakeHeader(data []byte, datagram bool) (HandshakeHeader, int, error) {
	headerLen := 4
	if datagram {
		headerLen = 12
	}
	if len(data) < headerLen {
		return HandshakeHeader{}, 0, newDecodeError("tlsengine.handshake: truncated handshake header")
	}
	length, _ := decodeUint(data[1:4], 3)
	h := HandshakeHeader{MsgType: HandshakeType(data[0]), Length: uint32(length)}
	if datagram {
		seq, _ := decodeUint(data[4:6], 2)
		off, _ := decodeUint(data[6:9], 3)
		fl, _ := decodeUint(data[9:12], 3)
		h.MessageSeq = uint16(seq)
		h.FragmentOffset = uint32(off)
		h.FragmentLength = uint32(fl)
	} else {
		h.FragmentLength = uint32(length)
	}
	return h, headerLen, nil
}

// Random is the 32-byte client/server random, §3.
type Random [32]byte

// ClientHello is the first message of every handshake, RFC 5246 §7.4.1.2.
type ClientHello struct {
	LegacyVersion      ProtocolVersion
	Random             Random
	SessionID          []byte          `tls:"head=1,max=32"`
	Cookie             []byte          `tls:"head=1,max=255"` // DTLS only; empty for TLS
	CipherSuites       []CipherSuite   `tls:"head=2"`
	CompressionMethods []byte          `tls:"head=1"`
	Extensions         ExtensionList   `tls:"head=2"`
}

func (m *ClientHello) Marshal() ([]byte, error) {
	out, err := syntax.Marshal(bareClientHello(*m))
	return out, err
}

func (m *ClientHello) Unmarshal(data []byte) (int, error) {
	var b bareClientHelloAlias
	n, err := syntax.Unmarshal(data, &b)
	if err != nil {
		return 0, err
	}
	*m = ClientHello(b)
	return n, nil
}

// bareClientHello exists only so syntax.Marshal sees a type whose fields
// are exactly the wire fields, without recursing back into ClientHello's
// own Marshal method (syntax treats any type satisfying marshaler
// specially, so encoding must happen on a distinct, tag-only type).
type bareClientHelloAlias ClientHello

func bareClientHello(m ClientHello) bareClientHelloAlias { return bareClientHelloAlias(m) }

// ServerHello is the server's response, RFC 5246 §7.4.1.3.
type ServerHello struct {
	Version           ProtocolVersion
	Random            Random
	SessionID         []byte        `tls:"head=1,max=32"`
	CipherSuite       CipherSuite
	CompressionMethod uint8
	Extensions        ExtensionList `tls:"head=2"`
}

// HelloVerifyRequest is DTLS's mandatory pre-handshake round trip, RFC
// 6347 §4.2.1: the server never allocates handshake state until the
// client echoes this cookie.
type HelloVerifyRequest struct {
	Version ProtocolVersion
	Cookie  []byte `tls:"head=1,max=255"`
}

// CertificateMessage carries the peer's certificate chain, leaf first,
// RFC 5246 §7.4.2. Parsing/validating the DER contents is out of scope
// (§1); each entry is kept as an opaque blob.
type CertificateMessage struct {
	CertificateList [][]byte `tls:"head=3"`
}

// ServerKeyExchangeRaw carries the KEX-specific payload (params + signature
// for signed KEX methods) as an opaque blob: its shape depends on KEX
// method (DHE/ECDHE parameters, PSK identity hint), which the state
// machine interprets using the negotiated CipherSuiteParams rather than a
// fixed struct shape.
type ServerKeyExchangeRaw struct {
	Params []byte `tls:"head=3,max=16777215"`
}

// CertificateRequest asks the client for a certificate, RFC 5246 §7.4.4.
type CertificateRequest struct {
	CertificateTypes        []byte            `tls:"head=1"`
	SupportedSignatureAlgorithms []SignatureScheme `tls:"head=2"`
	CertificateAuthorities   [][]byte          `tls:"head=2"`
}

// ClientKeyExchangeRaw mirrors ServerKeyExchangeRaw: the KEX-specific
// client contribution (encrypted pre-master for RSA, public value for
// (EC)DHE), opaque to this layer.
type ClientKeyExchangeRaw struct {
	Params []byte `tls:"head=3,max=16777215"`
}

// CertificateVerify carries the client's signature over the handshake
// transcript, RFC 5246 §7.4.8.
type CertificateVerify struct {
	Scheme    SignatureScheme
	Signature []byte `tls:"head=2"`
}

// Finished carries the verify_data computed in keyschedule.go, RFC 5246
// §7.4.9. Always exactly 12 bytes for the legacy PRF.
type Finished struct {
	VerifyData []byte `tls:"head=1,min=12,max=12"`
}

// NewSessionTicket offers a stateless resumption ticket, RFC 5077 §3.3.
type NewSessionTicket struct {
	LifetimeHint uint32
	Ticket       []byte `tls:"head=2"`
}

// ServerHelloDone and HelloRequest carry no body.
type ServerHelloDone struct{}
type HelloRequest struct{}
