package tlsengine

import (
	"crypto/rand"
	"crypto/x509"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/ocsp"
)

// CredentialType distinguishes the two directions a Credentials surface is
// consulted from, per §6.
type CredentialType int

const (
	CredentialTypeServerAuth CredentialType = iota
	CredentialTypeClientAuth
)

// Credentials is the provider surface §6 names: trusted roots, certificate
// chains, private keys, and PSKs, all looked up by (type, context) so one
// provider can serve multiple hostnames/roles, with a context string
// selecting which identity to present.
type Credentials interface {
	TrustedCertificateAuthorities(typ CredentialType, context string) [][]byte
	FindCertChain(acceptedKeyTypes []AuthMethod, acceptableCAs [][]byte, typ CredentialType, context string) [][]byte
	PrivateKeyFor(cert []byte, typ CredentialType, context string) (handle interface{}, ok bool)
	PSK(typ CredentialType, context, identity string) ([]byte, bool)
}

// DefaultGenerateKeyShare and DefaultFinishKeyAgreement implement
// Hooks.TLSGenerateKeyShare/TLSFinishKeyAgreement for GroupX25519 only,
// using golang.org/x/crypto/curve25519. They exist so the engine is
// exercisable end-to-end without a full elliptic-curve stack plugged in;
// production embedders are expected to supply their own hooks for the rest
// of AllowedGroups.
func DefaultGenerateKeyShare(group NamedGroup) (share []byte, priv interface{}, err error) {
	if group != GroupX25519 {
		return nil, nil, InternalError("tlsengine.credentials: default key agreement only supports x25519")
	}
	var scalar [32]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return nil, nil, InternalError("tlsengine.credentials: rand: " + err.Error())
	}
	ourPublic, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, InternalError("tlsengine.credentials: " + err.Error())
	}
	return ourPublic, scalar, nil
}

func DefaultFinishKeyAgreement(group NamedGroup, priv interface{}, peerShare []byte) (sharedSecret []byte, err error) {
	if group != GroupX25519 {
		return nil, InternalError("tlsengine.credentials: default key agreement only supports x25519")
	}
	scalar, ok := priv.([32]byte)
	if !ok {
		return nil, InternalError("tlsengine.credentials: mismatched key share handle")
	}
	shared, err := curve25519.X25519(scalar[:], peerShare)
	if err != nil {
		return nil, newIllegalParameterError("tlsengine.credentials: invalid x25519 peer share: %v", err)
	}
	return shared, nil
}

// CheckOCSPResponse is a helper VerifyCertChain implementations can call
// when Policy.SupportCertStatusMessage negotiated a status_request
// extension (RFC 6066/6961): it parses the stapled OCSP response and
// reports revocation. Chain-building and signature verification of the
// certificates themselves is the embedder's responsibility (§1 excludes
// X.509 validation from the engine).
func CheckOCSPResponse(raw []byte, issuer *x509.Certificate) error {
	resp, err := ocsp.ParseResponse(raw, issuer)
	if err != nil {
		return BadCertificateError{Reason: "ocsp parse: " + err.Error(), Kind: AlertBadCertificateStatusResponse}
	}
	if resp.Status == ocsp.Revoked {
		return BadCertificateError{Reason: "certificate revoked per stapled OCSP response", Kind: AlertCertificateRevoked}
	}
	return nil
}
