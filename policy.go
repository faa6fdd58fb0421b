package tlsengine

import (
	"crypto"
	"time"
)

// Policy is the pure predicate object (C7) the state machine consults for
// every negotiation decision. It is read-only during a handshake and safe
// to share across concurrently running endpoints once a handshake starts.
type Policy struct {
	AllowedVersions                     []ProtocolVersion
	AllowedCiphers                      []CipherSuite
	AllowedMACs                         []crypto.Hash
	AllowedKeyExchangeMethods           []KeyExchangeMethod
	AllowedSignatureMethods             []SignatureScheme
	AllowedGroups                       []NamedGroup
	AllowedEccCurvesForPointCompression bool

	MinimumRSABits          int
	MinimumDHGroupSize      int
	MinimumECDHGroupSize    int
	MinimumSignatureStrength int // bits

	NegotiateEncryptThenMAC bool

	// AcceptableProtocolVersion lets an embedder narrow acceptance beyond
	// AllowedVersions (e.g. time-boxed deprecation of a version).
	AcceptableProtocolVersion func(v ProtocolVersion) bool

	SendFallbackSCSV bool

	DtlsInitialTimeoutMillis int
	DtlsMaximumTimeoutMillis int

	SupportCertStatusMessage bool

	AllowClientInitiatedRenegotiation bool
	AllowServerInitiatedRenegotiation bool

	RequireCertRevocationInfo bool

	// RequireClientAuth: when true the server fails the handshake if the
	// client never sends a Certificate message in response to
	// CertificateRequest, instead of silently treating it as anonymous.
	RequireClientAuth bool

	// IssueSessionTickets: server-side, supplements §4.7 with RFC 5077
	// stateless tickets alongside SessionID-keyed resumption.
	IssueSessionTickets   bool
	SessionTicketLifetime time.Duration
}

// DefaultPolicy returns a conservative, modern-leaning policy: TLS 1.2 and
// DTLS 1.2 only, forward-secret AEAD suites first, then the ECDHE CBC suite,
// then static-RSA AES-GCM last, Encrypt-then-MAC
// requested when available. Embedders loosen it explicitly for legacy
// interop.
func DefaultPolicy() *Policy {
	return &Policy{
		AllowedVersions: []ProtocolVersion{VersionTLS12, VersionDTLS12},
		AllowedCiphers: []CipherSuite{
			TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			TLS_DHE_RSA_WITH_AES_128_GCM_SHA256,
			TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			TLS_RSA_WITH_AES_128_GCM_SHA256,
		},
		AllowedKeyExchangeMethods: []KeyExchangeMethod{KexECDHE, KexDHE, KexRSA},
		AllowedSignatureMethods: []SignatureScheme{
			ECDSAWithP256AndSHA256, RSAWithSHA256, RSAWithSHA1, ECDSAWithSHA1,
		},
		AllowedGroups:                       []NamedGroup{GroupX25519, GroupP256, GroupP384},
		AllowedEccCurvesForPointCompression: false,
		MinimumRSABits:                      2048,
		MinimumDHGroupSize:                  2048,
		MinimumECDHGroupSize:                256,
		MinimumSignatureStrength:            128,
		NegotiateEncryptThenMAC:             true,
		AcceptableProtocolVersion:           func(ProtocolVersion) bool { return true },
		DtlsInitialTimeoutMillis:            1000,
		DtlsMaximumTimeoutMillis:            60000,
		SupportCertStatusMessage:            true,
		AllowClientInitiatedRenegotiation:   false,
		AllowServerInitiatedRenegotiation:   false,
		RequireCertRevocationInfo:           false,
		RequireClientAuth:                   false,
		IssueSessionTickets:                 false,
		SessionTicketLifetime:               7 * 24 * time.Hour,
	}
}

func (p *Policy) allowsVersion(v ProtocolVersion) bool {
	for _, allowed := range p.AllowedVersions {
		if allowed == v {
			if p.AcceptableProtocolVersion == nil || p.AcceptableProtocolVersion(v) {
				return true
			}
		}
	}
	return false
}

func (p *Policy) allowsCipher(cs CipherSuite) bool {
	for _, allowed := range p.AllowedCiphers {
		if allowed == cs {
			return true
		}
	}
	return false
}

func (p *Policy) allowsGroup(g NamedGroup) bool {
	for _, allowed := range p.AllowedGroups {
		if allowed == g {
			return true
		}
	}
	return false
}

func (p *Policy) allowsSignatureScheme(s SignatureScheme) bool {
	for _, allowed := range p.AllowedSignatureMethods {
		if allowed == s {
			return true
		}
	}
	return false
}

// bestVersion picks the best mutually acceptable version, per §4.5's
// "min(server_max, client_max) subject to policy" negotiation rule.
func (p *Policy) bestVersion(offered []ProtocolVersion) (ProtocolVersion, bool) {
	var best ProtocolVersion
	found := false
	for _, v := range offered {
		if !p.allowsVersion(v) {
			continue
		}
		if !found || best.Less(v) {
			best = v
			found = true
		}
	}
	return best, found
}

// chooseCipherSuite implements the "first policy suite the client also
// offered" rule, §4.5.
func (p *Policy) chooseCipherSuite(offered []CipherSuite) (CipherSuiteParams, bool) {
	offeredSet := make(map[CipherSuite]bool, len(offered))
	for _, cs := range offered {
		offeredSet[cs] = true
	}
	for _, cs := range p.AllowedCiphers {
		if !offeredSet[cs] {
			continue
		}
		params, ok := LookupCipherSuite(cs)
		if !ok {
			continue
		}
		found := false
		for _, kex := range p.AllowedKeyExchangeMethods {
			if kex == params.KEX {
				found = true
				break
			}
		}
		if found {
			return params, true
		}
	}
	return CipherSuiteParams{}, false
}
