package tlsengine

import (
	"crypto"
	"crypto/hmac"
	_ "crypto/md5"
	_ "crypto/sha1"
)

// Key schedule (part of C6): master secret, key-block, Finished, and
// key-export derivations, per §4.5 and the GLOSSARY's PRF entry. TLS 1.0
// and 1.1 share the MD5/SHA-1 split PRF (RFC 2246 §5); TLS 1.2 uses a
// single HMAC-hash PRF keyed by the suite's PRFHash (RFC 5246 §5).

func pHash(hash crypto.Hash, secret, seed []byte, length int) []byte {
	mac := hmac.New(hash.New, secret)
	mac.Write(seed)
	a := mac.Sum(nil)

	out := make([]byte, 0, length)
	for len(out) < length {
		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)

		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)
	}
	return out[:length]
}

func pHashMD5SHA1(secret, seed []byte, length int) []byte {
	half := (len(secret) + 1) / 2
	s1 := secret[:half]
	s2 := secret[len(secret)-half:]
	p1 := pHash(crypto.MD5, s1, seed, length)
	p2 := pHash(crypto.SHA1, s2, seed, length)
	out := make([]byte, length)
	for i := range out {
		out[i] = p1[i] ^ p2[i]
	}
	return out
}

// prf dispatches the legacy-vs-1.2 PRF split, per GLOSSARY "PRF".
func prf(version ProtocolVersion, suiteHash crypto.Hash, secret, label, seed []byte, length int) []byte {
	full := append(append([]byte{}, label...), seed...)
	if isTLS12OrLater(version) {
		h := suiteHash
		if h == 0 {
			h = crypto.SHA256
		}
		return pHash(h, secret, full, length)
	}
	return pHashMD5SHA1(secret, full, length)
}

func isTLS12OrLater(v ProtocolVersion) bool {
	switch v {
	case VersionTLS12, VersionDTLS12:
		return true
	default:
		return false
	}
}

var (
	labelMasterSecret         = []byte("master secret")
	labelExtendedMasterSecret = []byte("extended master secret")
	labelKeyExpansion         = []byte("key expansion")
	labelClientFinished       = []byte("client finished")
	labelServerFinished       = []byte("server finished")
)

const masterSecretLen = 48

// deriveMasterSecret implements §4.5's two master-secret variants. When
// extendedMasterSecret is true, the seed is the session-hash (transcript
// hash up to and including ClientKeyExchange, RFC 7627) rather than the
// client/server random concatenation.
func deriveMasterSecret(version ProtocolVersion, suiteHash crypto.Hash, preMaster []byte, clientRandom, serverRandom, sessionHash []byte, extendedMasterSecret bool) []byte {
	if extendedMasterSecret {
		return prf(version, suiteHash, preMaster, labelExtendedMasterSecret, sessionHash, masterSecretLen)
	}
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf(version, suiteHash, preMaster, labelMasterSecret, seed, masterSecretLen)
}

// keyBlock partitions PRF(master, "key expansion", server_random ‖
// client_random) into the six values §3's "Epoch / cipher state" names.
type keyBlock struct {
	ClientMAC, ServerMAC []byte
	ClientKey, ServerKey []byte
	ClientIV, ServerIV   []byte
}

func deriveKeyBlock(version ProtocolVersion, suite CipherSuiteParams, master, clientRandom, serverRandom []byte) keyBlock {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	macLen := suite.MACKeyLen
	keyLen := suite.KeyLen
	ivLen := suite.FixedIVLen
	if suite.IsAEAD() && ivLen == 0 {
		ivLen = 4
	}
	total := 2*macLen + 2*keyLen + 2*ivLen
	block := prf(version, suite.PRFHash, master, labelKeyExpansion, seed, total)

	off := 0
	next := func(n int) []byte {
		v := block[off : off+n]
		off += n
		return v
	}
	return keyBlock{
		ClientMAC: next(macLen), ServerMAC: next(macLen),
		ClientKey: next(keyLen), ServerKey: next(keyLen),
		ClientIV: next(ivLen), ServerIV: next(ivLen),
	}
}

// finishedVerifyData computes the Finished payload, §4.5: PRF(master,
// "{client,server} finished", hash(transcript)) truncated to 12 bytes.
func finishedVerifyData(version ProtocolVersion, suiteHash crypto.Hash, master []byte, side ConnectionSide, transcriptHash []byte) []byte {
	label := labelServerFinished
	if side == SideClient {
		label = labelClientFinished
	}
	return prf(version, suiteHash, master, label, transcriptHash, 12)
}

// keyMaterialExport implements §4.8's key_material_export: PRF(master,
// label, client_random ‖ server_random ‖ length-prefixed context)
// truncated to length.
func keyMaterialExport(version ProtocolVersion, suiteHash crypto.Hash, master []byte, clientRandom, serverRandom []byte, label string, context []byte, length int) []byte {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	if context != nil {
		ctxLen := make([]byte, 2)
		encodeUint(uint64(len(context)), 2, ctxLen)
		seed = append(seed, ctxLen...)
		seed = append(seed, context...)
	}
	return prf(version, suiteHash, master, []byte(label), seed, length)
}
