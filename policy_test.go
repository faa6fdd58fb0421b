package tlsengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyAllowsVersionRespectsAcceptableProtocolVersion(t *testing.T) {
	p := &Policy{
		AllowedVersions:           []ProtocolVersion{VersionTLS12},
		AcceptableProtocolVersion: func(ProtocolVersion) bool { return false },
	}
	require.False(t, p.allowsVersion(VersionTLS12))

	p.AcceptableProtocolVersion = nil
	require.True(t, p.allowsVersion(VersionTLS12))
	require.False(t, p.allowsVersion(VersionTLS11))
}

func TestPolicyBestVersionPicksHighestMutuallyAcceptable(t *testing.T) {
	p := &Policy{AllowedVersions: []ProtocolVersion{VersionTLS10, VersionTLS11, VersionTLS12}}

	v, ok := p.bestVersion([]ProtocolVersion{VersionTLS10, VersionTLS11})
	require.True(t, ok)
	require.Equal(t, VersionTLS11, v)
}

func TestPolicyBestVersionFailsWithNoOverlap(t *testing.T) {
	p := &Policy{AllowedVersions: []ProtocolVersion{VersionTLS12}}
	_, ok := p.bestVersion([]ProtocolVersion{VersionTLS10, VersionTLS11})
	require.False(t, ok)
}

func TestPolicyAllowsCipherGroupSignature(t *testing.T) {
	p := &Policy{
		AllowedCiphers:          []CipherSuite{TLS_RSA_WITH_AES_128_GCM_SHA256},
		AllowedGroups:           []NamedGroup{GroupX25519},
		AllowedSignatureMethods: []SignatureScheme{RSAWithSHA256},
	}
	require.True(t, p.allowsCipher(TLS_RSA_WITH_AES_128_GCM_SHA256))
	require.False(t, p.allowsCipher(TLS_RSA_WITH_AES_128_CBC_SHA))
	require.True(t, p.allowsGroup(GroupX25519))
	require.False(t, p.allowsGroup(GroupP256))
	require.True(t, p.allowsSignatureScheme(RSAWithSHA256))
	require.False(t, p.allowsSignatureScheme(RSAWithSHA1))
}

func TestPolicyChooseCipherSuitePrefersPolicyOrder(t *testing.T) {
	p := &Policy{
		AllowedCiphers: []CipherSuite{
			TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			TLS_RSA_WITH_AES_128_GCM_SHA256,
		},
		AllowedKeyExchangeMethods: []KeyExchangeMethod{KexECDHE, KexRSA},
	}
	offered := []CipherSuite{TLS_RSA_WITH_AES_128_GCM_SHA256, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}

	params, ok := p.chooseCipherSuite(offered)
	require.True(t, ok)
	require.Equal(t, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, params.Suite)
}

func TestPolicyChooseCipherSuiteSkipsUnofferedKex(t *testing.T) {
	p := &Policy{
		AllowedCiphers:            []CipherSuite{TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
		AllowedKeyExchangeMethods: []KeyExchangeMethod{KexRSA},
	}
	_, ok := p.chooseCipherSuite([]CipherSuite{TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256})
	require.False(t, ok)
}

func TestPolicyChooseCipherSuiteFailsWithNoOverlap(t *testing.T) {
	p := DefaultPolicy()
	_, ok := p.chooseCipherSuite([]CipherSuite{TLS_RSA_WITH_AES_128_CBC_SHA})
	require.False(t, ok)
}

func TestDefaultPolicyAcceptsItsOwnSuiteSet(t *testing.T) {
	p := DefaultPolicy()
	for _, cs := range p.AllowedCiphers {
		require.True(t, p.allowsCipher(cs))
	}
	require.True(t, p.allowsVersion(VersionTLS12))
	require.True(t, p.allowsVersion(VersionDTLS12))
	require.False(t, p.allowsVersion(VersionTLS10))
}
