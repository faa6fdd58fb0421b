package tlsengine

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	_ "crypto/sha512" // registers crypto.SHA384/crypto.SHA512 for hmacPRF
	"fmt"

	"github.com/codahale/etm"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyExchangeMethod enumerates the KEX half of a cipher suite, per §3.
type KeyExchangeMethod int

const (
	KexRSA KeyExchangeMethod = iota
	KexDH
	KexDHE
	KexECDH
	KexECDHE
	KexPSK
	KexDHEPSK
	KexECDHEPSK
	KexCECPQ1
)

// AuthMethod enumerates the authentication half of a cipher suite.
type AuthMethod int

const (
	AuthRSA AuthMethod = iota
	AuthECDSA
	AuthDSA
	AuthAnonymous
	AuthImplicit // authentication is implicit in the KEX (e.g. plain PSK)
)

// BulkCipherMode names the symmetric construction a suite uses.
type BulkCipherMode int

const (
	CipherBlockCBC BulkCipherMode = iota
	CipherAEADGCM
	CipherAEADCCM
	CipherAEADOCB
	CipherAEADChaCha20Poly1305
	CipherStream
)

// CipherSuite is the 16-bit codepoint from the IANA TLS CipherSuite
// registry.
type CipherSuite uint16

// Well-known suites. Names follow the IANA registry exactly so that a
// Policy's AllowedCiphers list (by name) and a wire capture are easy to
// cross-reference.
const (
	TLS_RSA_WITH_AES_128_CBC_SHA               CipherSuite = 0x002f
	TLS_RSA_WITH_AES_256_CBC_SHA               CipherSuite = 0x0035
	TLS_RSA_WITH_AES_128_CBC_SHA256            CipherSuite = 0x003c
	TLS_RSA_WITH_AES_128_GCM_SHA256            CipherSuite = 0x009c
	TLS_RSA_WITH_AES_256_GCM_SHA384            CipherSuite = 0x009d
	TLS_RSA_WITH_3DES_EDE_CBC_SHA              CipherSuite = 0x000a
	TLS_DHE_RSA_WITH_AES_128_CBC_SHA           CipherSuite = 0x0033
	TLS_DHE_RSA_WITH_AES_256_CBC_SHA           CipherSuite = 0x0039
	TLS_DHE_RSA_WITH_AES_128_GCM_SHA256        CipherSuite = 0x009e
	TLS_DHE_DSS_WITH_AES_128_CBC_SHA           CipherSuite = 0x0032
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA         CipherSuite = 0xc013
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA         CipherSuite = 0xc014
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256      CipherSuite = 0xc02f
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384      CipherSuite = 0xc030
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA       CipherSuite = 0xc009
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA       CipherSuite = 0xc00a
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256    CipherSuite = 0xc02b
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384    CipherSuite = 0xc02c
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256   CipherSuite = 0xcca8
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256 CipherSuite = 0xcca9
	TLS_DHE_RSA_WITH_CHACHA20_POLY1305_SHA256     CipherSuite = 0xccaa
	TLS_PSK_WITH_AES_128_CBC_SHA               CipherSuite = 0x008c
	TLS_PSK_WITH_AES_128_GCM_SHA256            CipherSuite = 0x00a8
	TLS_DHE_PSK_WITH_AES_128_CBC_SHA           CipherSuite = 0x0090
	TLS_ECDHE_PSK_WITH_AES_128_CBC_SHA         CipherSuite = 0xc035
	TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256 CipherSuite = 0xccac

	// SCSVs, per GLOSSARY: fake codepoints used only as signalling flags.
	TLS_EMPTY_RENEGOTIATION_INFO_SCSV CipherSuite = 0x00ff
	TLS_FALLBACK_SCSV                 CipherSuite = 0x5600
)

// AEADFactory builds an AEAD instance from a raw key. It is the pluggable
// seam over the "AEAD modes" that §1 names as an external collaborator; the
// factories registered in defaultAEADFactories are reference
// implementations suitable for testing the engine end-to-end, not a
// hard-wired dependency the state machine must use.
type AEADFactory func(key []byte) (cipher.AEAD, error)

// CipherSuiteParams is the static tuple §3 describes: (KEX, AUTH, cipher,
// MAC, PRF) plus the sizes the record layer and key schedule need.
type CipherSuiteParams struct {
	Suite      CipherSuite
	Name       string
	KEX        KeyExchangeMethod
	Auth       AuthMethod
	Cipher     BulkCipherMode
	MACHash    crypto.Hash // zero for AEAD suites
	PRFHash    crypto.Hash
	MinVersion ProtocolVersion
	KeyLen     int
	FixedIVLen int // explicit-nonce suites also add a per-record IV carried on the wire
	MACKeyLen  int // zero for AEAD suites
	AEAD       AEADFactory
}

// IsAEAD reports whether the suite uses an AEAD construction (record-layer
// framing differs materially between AEAD and CBC/stream suites, §4.2).
func (p CipherSuiteParams) IsAEAD() bool {
	switch p.Cipher {
	case CipherAEADGCM, CipherAEADCCM, CipherAEADOCB, CipherAEADChaCha20Poly1305:
		return true
	default:
		return false
	}
}

func gcmFactory(keyLen int) AEADFactory {
	return func(key []byte) (cipher.AEAD, error) {
		if len(key) != keyLen {
			return nil, InternalError(fmt.Sprintf("tlsengine.ciphersuite: GCM key length %d != %d", len(key), keyLen))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
}

func chacha20poly1305Factory() AEADFactory {
	return func(key []byte) (cipher.AEAD, error) {
		return chacha20poly1305.New(key)
	}
}

// etmFactory wires github.com/codahale/etm's Encrypt-then-MAC AES-CBC/HMAC
// composition in as a cipher.AEAD, so the record layer's single
// encrypt/decrypt path (record-layer.go) serves both true AEAD suites and the
// CBC Encrypt-then-MAC mode RFC 7366 describes, without a second code path.
// MAC-then-encrypt (the legacy default) is handled separately in cbc.go,
// since etm's composition order is fixed at encrypt-then-MAC.
func etmFactory(macKeyLen int) AEADFactory {
	return func(key []byte) (cipher.AEAD, error) {
		if len(key) < aes.BlockSize+macKeyLen {
			return nil, InternalError("tlsengine.ciphersuite: etm key material too short")
		}
		switch macKeyLen {
		case sha256.Size:
			return etm.NewAES128SHA256(key)
		default:
			return nil, InternalError("tlsengine.ciphersuite: unsupported etm MAC size")
		}
	}
}

var cipherSuiteCatalogue = map[CipherSuite]CipherSuiteParams{
	TLS_RSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_RSA_WITH_AES_128_CBC_SHA, Name: "TLS_RSA_WITH_AES_128_CBC_SHA",
		KEX: KexRSA, Auth: AuthImplicit, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_RSA_WITH_AES_256_CBC_SHA: {
		Suite: TLS_RSA_WITH_AES_256_CBC_SHA, Name: "TLS_RSA_WITH_AES_256_CBC_SHA",
		KEX: KexRSA, Auth: AuthImplicit, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 32, MACKeyLen: sha1.Size,
	},
	TLS_RSA_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_RSA_WITH_AES_128_GCM_SHA256, Name: "TLS_RSA_WITH_AES_128_GCM_SHA256",
		KEX: KexRSA, Auth: AuthImplicit, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: 16, FixedIVLen: 4, AEAD: gcmFactory(16),
	},
	TLS_RSA_WITH_AES_256_GCM_SHA384: {
		Suite: TLS_RSA_WITH_AES_256_GCM_SHA384, Name: "TLS_RSA_WITH_AES_256_GCM_SHA384",
		KEX: KexRSA, Auth: AuthImplicit, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA384, MinVersion: VersionTLS12,
		KeyLen: 32, FixedIVLen: 4, AEAD: gcmFactory(32),
	},
	TLS_DHE_RSA_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_DHE_RSA_WITH_AES_128_GCM_SHA256, Name: "TLS_DHE_RSA_WITH_AES_128_GCM_SHA256",
		KEX: KexDHE, Auth: AuthRSA, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: 16, FixedIVLen: 4, AEAD: gcmFactory(16),
	},
	TLS_DHE_RSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_DHE_RSA_WITH_AES_128_CBC_SHA, Name: "TLS_DHE_RSA_WITH_AES_128_CBC_SHA",
		KEX: KexDHE, Auth: AuthRSA, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_DHE_DSS_WITH_AES_128_CBC_SHA: {
		Suite: TLS_DHE_DSS_WITH_AES_128_CBC_SHA, Name: "TLS_DHE_DSS_WITH_AES_128_CBC_SHA",
		KEX: KexDHE, Auth: AuthDSA, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, Name: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		KEX: KexECDHE, Auth: AuthRSA, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: 16, FixedIVLen: 4, AEAD: gcmFactory(16),
	},
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384: {
		Suite: TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, Name: "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
		KEX: KexECDHE, Auth: AuthRSA, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA384, MinVersion: VersionTLS12,
		KeyLen: 32, FixedIVLen: 4, AEAD: gcmFactory(32),
	},
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, Name: "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
		KEX: KexECDHE, Auth: AuthECDSA, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: 16, FixedIVLen: 4, AEAD: gcmFactory(16),
	},
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: {
		Suite: TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, Name: "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
		KEX: KexECDHE, Auth: AuthECDSA, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA384, MinVersion: VersionTLS12,
		KeyLen: 32, FixedIVLen: 4, AEAD: gcmFactory(32),
	},
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, Name: "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
		KEX: KexECDHE, Auth: AuthRSA, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA: {
		Suite: TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA, Name: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA",
		KEX: KexECDHE, Auth: AuthECDSA, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
		KEX: KexECDHE, Auth: AuthRSA, Cipher: CipherAEADChaCha20Poly1305,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: chacha20poly1305.KeySize, FixedIVLen: chacha20poly1305.NonceSize, AEAD: chacha20poly1305Factory(),
	},
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
		KEX: KexECDHE, Auth: AuthECDSA, Cipher: CipherAEADChaCha20Poly1305,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: chacha20poly1305.KeySize, FixedIVLen: chacha20poly1305.NonceSize, AEAD: chacha20poly1305Factory(),
	},
	TLS_DHE_RSA_WITH_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_DHE_RSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_DHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
		KEX: KexDHE, Auth: AuthRSA, Cipher: CipherAEADChaCha20Poly1305,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: chacha20poly1305.KeySize, FixedIVLen: chacha20poly1305.NonceSize, AEAD: chacha20poly1305Factory(),
	},
	TLS_PSK_WITH_AES_128_CBC_SHA: {
		Suite: TLS_PSK_WITH_AES_128_CBC_SHA, Name: "TLS_PSK_WITH_AES_128_CBC_SHA",
		KEX: KexPSK, Auth: AuthImplicit, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_PSK_WITH_AES_128_GCM_SHA256: {
		Suite: TLS_PSK_WITH_AES_128_GCM_SHA256, Name: "TLS_PSK_WITH_AES_128_GCM_SHA256",
		KEX: KexPSK, Auth: AuthImplicit, Cipher: CipherAEADGCM,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: 16, FixedIVLen: 4, AEAD: gcmFactory(16),
	},
	TLS_DHE_PSK_WITH_AES_128_CBC_SHA: {
		Suite: TLS_DHE_PSK_WITH_AES_128_CBC_SHA, Name: "TLS_DHE_PSK_WITH_AES_128_CBC_SHA",
		KEX: KexDHEPSK, Auth: AuthImplicit, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_ECDHE_PSK_WITH_AES_128_CBC_SHA: {
		Suite: TLS_ECDHE_PSK_WITH_AES_128_CBC_SHA, Name: "TLS_ECDHE_PSK_WITH_AES_128_CBC_SHA",
		KEX: KexECDHEPSK, Auth: AuthImplicit, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: 16, MACKeyLen: sha1.Size,
	},
	TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256: {
		Suite: TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256",
		KEX: KexECDHEPSK, Auth: AuthImplicit, Cipher: CipherAEADChaCha20Poly1305,
		PRFHash: crypto.SHA256, MinVersion: VersionTLS12,
		KeyLen: chacha20poly1305.KeySize, FixedIVLen: chacha20poly1305.NonceSize, AEAD: chacha20poly1305Factory(),
	},
	TLS_RSA_WITH_3DES_EDE_CBC_SHA: {
		Suite: TLS_RSA_WITH_3DES_EDE_CBC_SHA, Name: "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
		KEX: KexRSA, Auth: AuthImplicit, Cipher: CipherBlockCBC,
		MACHash: crypto.SHA1, PRFHash: crypto.SHA256, MinVersion: VersionTLS10,
		KeyLen: des.BlockSize * 3, MACKeyLen: sha1.Size,
	},
}

// LookupCipherSuite returns the static tuple for a codepoint, per §4.8's
// catalogue responsibility. ok is false for unknown or SCSV codepoints.
func LookupCipherSuite(cs CipherSuite) (CipherSuiteParams, bool) {
	p, ok := cipherSuiteCatalogue[cs]
	return p, ok
}

func (cs CipherSuite) String() string {
	if p, ok := cipherSuiteCatalogue[cs]; ok {
		return p.Name
	}
	return fmt.Sprintf("CipherSuite(0x%04x)", uint16(cs))
}

// etmAEADFactory exposes the Encrypt-then-MAC construction keyed to a CBC
// suite's MAC size, used when Policy.NegotiateEncryptThenMAC is true and
// both peers advertise the extension (RFC 7366).
func etmAEADFactory(p CipherSuiteParams) (AEADFactory, error) {
	if p.Cipher != CipherBlockCBC {
		return nil, InternalError("tlsengine.ciphersuite: encrypt-then-mac only applies to CBC suites")
	}
	return etmFactory(p.MACKeyLen), nil
}

// hmacPRF is the thin HMAC-composition the legacy TLS PRF is built from
// (§GLOSSARY "PRF"); this is engine-owned plumbing per C6, distinct from
// the externally pluggable block-cipher/AEAD/signature primitives.
func hmacPRF(hash crypto.Hash, secret []byte) func([]byte) []byte {
	return func(data []byte) []byte {
		h := hmac.New(hash.New, secret)
		h.Write(data)
		return h.Sum(nil)
	}
}
