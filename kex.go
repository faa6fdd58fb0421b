package tlsengine

// Key-exchange parameter encoding (part of C6): the opaque ServerKeyExchange
// / ClientKeyExchange payloads, shaped per §4.5 by the negotiated suite's
// KeyExchangeMethod. RSA key transport and (EC)DHE/PSK agreement stay
// external per §1 (TLSEncryptPreMasterRSA/TLSDecryptPreMasterRSA and
// TLSGenerateKeyShare/TLSFinishKeyAgreement); this file only assembles and parses the bytes
// those hooks produce and consume.

func writeOpaque8(dst []byte, v []byte) []byte {
	dst = append(dst, byte(len(v)))
	return append(dst, v...)
}

func readOpaque8(data []byte) (v []byte, rest []byte, err error) {
	if len(data) < 1 || len(data)-1 < int(data[0]) {
		return nil, nil, newDecodeError("tlsengine.kex: truncated opaque<8>")
	}
	n := int(data[0])
	return data[1 : 1+n], data[1+n:], nil
}

func writeOpaque16(dst []byte, v []byte) []byte {
	lenBuf := make([]byte, 2)
	encodeUint(uint64(len(v)), 2, lenBuf)
	dst = append(dst, lenBuf...)
	return append(dst, v...)
}

func readOpaque16(data []byte) (v []byte, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, newDecodeError("tlsengine.kex: truncated opaque<16> length")
	}
	n, _ := decodeUint(data[0:2], 2)
	if uint64(len(data)-2) < n {
		return nil, nil, newDecodeError("tlsengine.kex: truncated opaque<16> body")
	}
	return data[2 : 2+n], data[2+n:], nil
}

// pskPreMaster implements RFC 4279 §2's combined pre-master secret:
// uint16(len(other)) ‖ other ‖ uint16(len(psk)) ‖ psk. other is nil for
// plain PSK suites, in which case N zero bytes are used (N = psk length),
// per the RFC's "other_secret is N zero bytes" rule for plain PSK.
func pskPreMaster(otherSecret, psk []byte) []byte {
	if otherSecret == nil {
		otherSecret = make([]byte, len(psk))
	}
	var out []byte
	out = writeOpaque16(out, otherSecret)
	out = writeOpaque16(out, psk)
	return out
}

// serverKeyExchangeParams builds the ServerKeyExchange.Params payload for
// KEX methods that need one (every method except plain RSA, where the
// certificate's key is used directly). Signed KEX methods (anything but
// plain/PSK) append scheme ‖ opaque<16>(signature) over signedParams, RFC
// 5246 §7.4.3.
func serverKeyExchangeParams(kex KeyExchangeMethod, pskIdentityHint string, group NamedGroup, serverShare []byte, scheme SignatureScheme, signature []byte) []byte {
	var out []byte
	switch kex {
	case KexPSK:
		out = writeOpaque16(out, []byte(pskIdentityHint))
		return out
	case KexDHEPSK, KexECDHEPSK:
		out = writeOpaque16(out, []byte(pskIdentityHint))
		out = append(out, byte(group>>8), byte(group))
		out = writeOpaque8(out, serverShare)
	case KexDHE, KexECDHE, KexDH, KexECDH:
		out = append(out, byte(group>>8), byte(group))
		out = writeOpaque8(out, serverShare)
	default:
		return out
	}
	if signature != nil {
		out = append(out, byte(scheme>>8), byte(scheme))
		out = writeOpaque16(out, signature)
	}
	return out
}

type parsedServerKex struct {
	pskIdentityHint string
	group           NamedGroup
	serverShare     []byte
	scheme          SignatureScheme
	signature       []byte
	signedPortion   []byte // the group+share bytes the signature covers
}

func parseServerKeyExchangeParams(kex KeyExchangeMethod, data []byte) (parsedServerKex, error) {
	var p parsedServerKex
	var err error
	switch kex {
	case KexPSK:
		var hint []byte
		hint, _, err = readOpaque16(data)
		p.pskIdentityHint = string(hint)
	case KexDHEPSK, KexECDHEPSK:
		var hint []byte
		hint, data, err = readOpaque16(data)
		if err != nil {
			return p, err
		}
		p.pskIdentityHint = string(hint)
		p.signedPortion = data
		if len(data) < 2 {
			return p, newDecodeError("tlsengine.kex: truncated named group")
		}
		g, _ := decodeUint(data[0:2], 2)
		p.group = NamedGroup(g)
		var rest []byte
		p.serverShare, rest, err = readOpaque8(data[2:])
		_ = rest
	case KexDHE, KexECDHE, KexDH, KexECDH:
		p.signedPortion = data
		if len(data) < 2 {
			return p, newDecodeError("tlsengine.kex: truncated named group")
		}
		g, _ := decodeUint(data[0:2], 2)
		p.group = NamedGroup(g)
		var rest []byte
		p.serverShare, rest, err = readOpaque8(data[2:])
		if err == nil {
			p.signedPortion = data[:2+1+len(p.serverShare)]
			if len(rest) >= 2 {
				p.scheme = SignatureScheme(uint16(rest[0])<<8 | uint16(rest[1]))
				p.signature, _, err = readOpaque16(rest[2:])
			}
		}
	}
	return p, err
}

// clientKeyExchangeParams mirrors serverKeyExchangeParams for the client's
// contribution: the RSA-encrypted pre-master, a public share, or a PSK
// identity, per KEX method.
func clientKeyExchangeParams(kex KeyExchangeMethod, rsaEncryptedPreMaster []byte, pskIdentity string, clientShare []byte) []byte {
	var out []byte
	switch kex {
	case KexRSA:
		out = writeOpaque16(out, rsaEncryptedPreMaster)
	case KexPSK:
		out = writeOpaque16(out, []byte(pskIdentity))
	case KexDHEPSK, KexECDHEPSK:
		out = writeOpaque16(out, []byte(pskIdentity))
		out = writeOpaque8(out, clientShare)
	case KexDHE, KexECDHE, KexDH, KexECDH:
		out = writeOpaque8(out, clientShare)
	}
	return out
}

type parsedClientKex struct {
	rsaEncryptedPreMaster []byte
	pskIdentity           string
	clientShare           []byte
}

func parseClientKeyExchangeParams(kex KeyExchangeMethod, data []byte) (parsedClientKex, error) {
	var p parsedClientKex
	var err error
	switch kex {
	case KexRSA:
		p.rsaEncryptedPreMaster, _, err = readOpaque16(data)
	case KexPSK:
		var id []byte
		id, _, err = readOpaque16(data)
		p.pskIdentity = string(id)
	case KexDHEPSK, KexECDHEPSK:
		var id []byte
		id, data, err = readOpaque16(data)
		if err != nil {
			return p, err
		}
		p.pskIdentity = string(id)
		p.clientShare, _, err = readOpaque8(data)
	case KexDHE, KexECDHE, KexDH, KexECDH:
		p.clientShare, _, err = readOpaque8(data)
	}
	return p, err
}

// signedParams builds the byte string ServerKeyExchange's signature covers,
// RFC 5246 §7.4.3: client_random ‖ server_random ‖ ServerECDHParams.
func signedParams(clientRandom, serverRandom Random, params []byte) []byte {
	out := make([]byte, 0, 64+len(params))
	out = append(out, clientRandom[:]...)
	out = append(out, serverRandom[:]...)
	out = append(out, params...)
	return out
}
