package tlsengine

// NamedGroup enumerates the ECDHE/FFDHE groups offered in the
// SupportedGroups extension, per RFC 4492/8422 and RFC 7919.
type NamedGroup uint16

const (
	GroupP256   NamedGroup = 23
	GroupP384   NamedGroup = 24
	GroupP521   NamedGroup = 25
	GroupX25519 NamedGroup = 29
	GroupFFDHE2048 NamedGroup = 256
	GroupFFDHE3072 NamedGroup = 257
)

func (g NamedGroup) String() string {
	switch g {
	case GroupP256:
		return "secp256r1"
	case GroupP384:
		return "secp384r1"
	case GroupP521:
		return "secp521r1"
	case GroupX25519:
		return "x25519"
	case GroupFFDHE2048:
		return "ffdhe2048"
	case GroupFFDHE3072:
		return "ffdhe3072"
	default:
		return "unknown group"
	}
}

// SignatureScheme names the (hash, signature) pair used for
// CertificateVerify and ServerKeyExchange signing, per RFC 5246 §7.4.1.4.1.
// TLS 1.2 codepoints only; the engine does not negotiate TLS 1.3's RSA-PSS
// schemes since 1.3 itself is out of scope.
type SignatureScheme uint16

const (
	RSAWithSHA1     SignatureScheme = 0x0201
	RSAWithSHA256   SignatureScheme = 0x0401
	RSAWithSHA384   SignatureScheme = 0x0501
	ECDSAWithSHA1   SignatureScheme = 0x0203
	ECDSAWithP256AndSHA256 SignatureScheme = 0x0403
	ECDSAWithP384AndSHA384 SignatureScheme = 0x0503
	DSAWithSHA1     SignatureScheme = 0x0202
	DSAWithSHA256   SignatureScheme = 0x0402
)

func (s SignatureScheme) authMethod() AuthMethod {
	switch s {
	case RSAWithSHA1, RSAWithSHA256, RSAWithSHA384:
		return AuthRSA
	case ECDSAWithSHA1, ECDSAWithP256AndSHA256, ECDSAWithP384AndSHA384:
		return AuthECDSA
	case DSAWithSHA1, DSAWithSHA256:
		return AuthDSA
	default:
		return AuthImplicit
	}
}
