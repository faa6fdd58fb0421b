package tlsengine

// Hooks is the callback surface §6 requires the embedder to implement; the
// engine holds a non-owning reference to it for an endpoint's lifetime
// (§9 "Cyclic references between Channel and Callbacks"). Every method has
// a description of when the engine invokes it; nil methods are treated as
// no-ops except where noted.
type Hooks struct {
	// EmitData delivers outbound wire bytes. Required.
	EmitData func(data []byte)

	// RecordReceived delivers decrypted application data, keyed by the
	// record-layer sequence number it arrived on.
	RecordReceived func(seq uint64, data []byte)

	// Alert notifies of a sent or received alert.
	Alert func(a Alert, local bool)

	// SessionEstablished fires once, on transition to Active; returning
	// false vetoes caching the session (but does not abort the
	// connection, which is already Active).
	SessionEstablished func(s *Session) bool

	// VerifyCertChain validates a peer certificate chain. ocspResponses and
	// trustedRoots are opaque byte blobs; X.509 parsing itself is out of
	// scope (§1) and left to the embedder.
	VerifyCertChain func(chain [][]byte, ocspResponses [][]byte, trustedRoots [][]byte, hostname string, policy *Policy) error

	// ModifyExtensions lets the embedder add extensions to an outbound
	// message before it is sent; must not introduce a duplicate type (§4.4).
	ModifyExtensions func(exts ExtensionList, side ConnectionSide) ExtensionList

	// ExamineExtensions is called with the extensions received on an
	// inbound message, for observation only.
	ExamineExtensions func(exts ExtensionList, side ConnectionSide)

	// ServerChooseAppProtocol selects an ALPN protocol from the client's
	// ordered offer; server-side only. Returning "" with a non-empty
	// offer fails the handshake with a handshake_failure fatal alert; no
	// no_application_protocol alert is sent.
	ServerChooseAppProtocol func(offered []string) string

	// TLSSignMessage and TLSVerifyMessage are the pluggable signature
	// primitives backing ServerKeyExchange/CertificateVerify, kept out of
	// the engine per §1.
	TLSSignMessage   func(scheme SignatureScheme, message []byte) (signature []byte, err error)
	TLSVerifyMessage func(scheme SignatureScheme, message, signature []byte, cert []byte) error

	// TLSGenerateKeyShare and TLSFinishKeyAgreement split the ephemeral
	// (EC)DHE primitive in two, since the server must publish its share in
	// ServerKeyExchange before the client's share arrives in
	// ClientKeyExchange: generate returns a public share plus an opaque
	// handle to the private scalar; finish consumes that handle against the
	// peer's share once it is known. The pluggable KEX primitive per §1.
	// credentials.go supplies a default X25519 implementation for
	// testability.
	TLSGenerateKeyShare   func(group NamedGroup) (share []byte, priv interface{}, err error)
	TLSFinishKeyAgreement func(group NamedGroup, priv interface{}, peerShare []byte) (sharedSecret []byte, err error)

	// TLSDecryptSessionTicket decrypts a NewSessionTicket payload using the
	// server's ticket key; server-side resumption hook.
	TLSDecryptSessionTicket func(ticket []byte, ticketKey []byte) (*Session, error)

	// TLSEncryptPreMasterRSA and TLSDecryptPreMasterRSA back RSA key
	// transport (client encrypts a random pre-master under the server's
	// public key; server decrypts it), the other pluggable KEX primitive
	// alongside TLSGenerateKeyShare/TLSFinishKeyAgreement. Kept external per §1's exclusion
	// of public-key operations from the engine itself.
	TLSEncryptPreMasterRSA func(serverCert []byte, preMaster []byte) (encrypted []byte, err error)
	TLSDecryptPreMasterRSA func(encrypted []byte) (preMaster []byte, err error)
}

func (h *Hooks) emit(data []byte) {
	if h != nil && h.EmitData != nil && len(data) > 0 {
		h.EmitData(data)
	}
}

func (h *Hooks) recordReceived(seq uint64, data []byte) {
	if h != nil && h.RecordReceived != nil {
		h.RecordReceived(seq, data)
	}
}

func (h *Hooks) alert(a Alert, local bool) {
	if h != nil && h.Alert != nil {
		h.Alert(a, local)
	}
}

func (h *Hooks) sessionEstablished(s *Session) bool {
	if h != nil && h.SessionEstablished != nil {
		return h.SessionEstablished(s)
	}
	return true
}

func (h *Hooks) verifyCertChain(chain, ocspResponses, trustedRoots [][]byte, hostname string, policy *Policy) error {
	if h != nil && h.VerifyCertChain != nil {
		return h.VerifyCertChain(chain, ocspResponses, trustedRoots, hostname, policy)
	}
	return nil
}

func (h *Hooks) modifyExtensions(exts ExtensionList, side ConnectionSide) ExtensionList {
	if h != nil && h.ModifyExtensions != nil {
		return h.ModifyExtensions(exts, side)
	}
	return exts
}

func (h *Hooks) examineExtensions(exts ExtensionList, side ConnectionSide) {
	if h != nil && h.ExamineExtensions != nil {
		h.ExamineExtensions(exts, side)
	}
}

func (h *Hooks) chooseAppProtocol(offered []string) string {
	if h != nil && h.ServerChooseAppProtocol != nil {
		return h.ServerChooseAppProtocol(offered)
	}
	return ""
}
