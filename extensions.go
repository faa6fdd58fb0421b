package tlsengine

import (
	"fmt"

	"golang.org/x/net/idna"
)

// ExtensionType is the 16-bit codepoint identifying an extension, §3/§4.4.
type ExtensionType uint16

const (
	ExtensionServerName                  ExtensionType = 0
	ExtensionStatusRequest               ExtensionType = 5
	ExtensionSupportedGroups             ExtensionType = 10
	ExtensionECPointFormats              ExtensionType = 11
	ExtensionSignatureAlgorithms         ExtensionType = 13
	ExtensionUseSRTP                     ExtensionType = 14
	ExtensionALPN                        ExtensionType = 16
	ExtensionExtendedMasterSecret        ExtensionType = 23
	ExtensionSessionTicket               ExtensionType = 35
	ExtensionEncryptThenMAC              ExtensionType = 22
	ExtensionMaxFragmentLength           ExtensionType = 1
	ExtensionRenegotiationInfo           ExtensionType = 0xff01
	ExtensionSupportedVersions           ExtensionType = 43
)

// Extension is one decoded extension: either a recognized, typed body or an
// Unknown passthrough preserving exact bytes for round-trip fidelity (§3,
// §8 invariant 1 and scenario 4).
type Extension struct {
	Type ExtensionType
	Body []byte // raw body; typed accessors below parse it lazily
}

func (e Extension) Marshal() ([]byte, error) {
	buf := make([]byte, 2, 4+len(e.Body))
	encodeUint(uint64(e.Type), 2, buf[0:2])
	lenBuf := make([]byte, 2)
	encodeUint(uint64(len(e.Body)), 2, lenBuf)
	buf = append(buf, lenBuf...)
	buf = append(buf, e.Body...)
	return buf, nil
}

func parseExtension(data []byte) (Extension, int, error) {
	if len(data) < 4 {
		return Extension{}, 0, newDecodeError("tlsengine.extensions: truncated extension header")
	}
	typ, _ := decodeUint(data[0:2], 2)
	length, _ := decodeUint(data[2:4], 2)
	if len(data) < 4+int(length) {
		return Extension{}, 0, newDecodeError("tlsengine.extensions: truncated extension body")
	}
	body := append([]byte{}, data[4:4+int(length)]...)
	return Extension{Type: ExtensionType(typ), Body: body}, 4 + int(length), nil
}

// ExtensionList is the single length-prefixed vector of extensions per
// message, §4.4. It implements the syntax package's marshaler/unmarshaler
// interfaces directly, so a struct field tagged `tls:"head=2"` gets
// round-trip encoding for the whole list without per-extension tags.
type ExtensionList []Extension

func (l ExtensionList) Marshal() ([]byte, error) {
	var out []byte
	for _, e := range l {
		b, err := e.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func (l *ExtensionList) Unmarshal(data []byte) (int, error) {
	var out ExtensionList
	off := 0
	for off < len(data) {
		e, n, err := parseExtension(data[off:])
		if err != nil {
			return 0, err
		}
		out = append(out, e)
		off += n
	}
	*l = out
	return off, nil
}

// Find returns the first extension of the given type, honoring §4.4's
// "replace, don't duplicate" rule by only ever returning one value.
func (l ExtensionList) Find(t ExtensionType) (Extension, bool) {
	for _, e := range l {
		if e.Type == t {
			return e, true
		}
	}
	return Extension{}, false
}

// Upsert adds e, replacing any existing extension of the same type in
// place (§4.4: modify_extensions must not duplicate a type code).
func (l ExtensionList) Upsert(e Extension) ExtensionList {
	for i, existing := range l {
		if existing.Type == e.Type {
			l[i] = e
			return l
		}
	}
	return append(l, e)
}

// --- typed accessors for the extensions the engine itself negotiates ---

// ServerNameExtension builds the ServerNameIndication body (RFC 6066 §3),
// normalizing hostname to its IDNA A-label form.
func ServerNameExtension(hostname string) (Extension, error) {
	normalized, err := idna.New(idna.MapForLookup(), idna.Transitional(true), idna.VerifyDNSLength(true)).ToASCII(hostname)
	if err != nil {
		return Extension{}, newIllegalParameterError("tlsengine.extensions: invalid server name %q: %v", hostname, err)
	}
	nameBytes := []byte(normalized)
	body := make([]byte, 0, 5+len(nameBytes))
	listLen := make([]byte, 2)
	encodeUint(uint64(1+2+len(nameBytes)), 2, listLen)
	body = append(body, listLen...)
	body = append(body, 0) // host_name type
	nameLen := make([]byte, 2)
	encodeUint(uint64(len(nameBytes)), 2, nameLen)
	body = append(body, nameLen...)
	body = append(body, nameBytes...)
	return Extension{Type: ExtensionServerName, Body: body}, nil
}

// ParseServerName extracts the host_name entry from a ServerName extension
// body, per RFC 6066 §3.
func ParseServerName(e Extension) (string, error) {
	if e.Type != ExtensionServerName {
		return "", InternalError("tlsengine.extensions: not a server_name extension")
	}
	body := e.Body
	if len(body) < 2 {
		return "", newDecodeError("tlsengine.extensions: truncated server_name list")
	}
	listLen, _ := decodeUint(body[0:2], 2)
	body = body[2:]
	if uint64(len(body)) < listLen {
		return "", newDecodeError("tlsengine.extensions: truncated server_name list body")
	}
	for len(body) >= 3 {
		nameType := body[0]
		nameLen, _ := decodeUint(body[1:3], 2)
		if uint64(len(body)-3) < nameLen {
			return "", newDecodeError("tlsengine.extensions: truncated server_name entry")
		}
		name := body[3 : 3+nameLen]
		if nameType == 0 {
			return string(name), nil
		}
		body = body[3+nameLen:]
	}
	return "", newDecodeError("tlsengine.extensions: no host_name entry")
}

// ALPNExtension builds an ApplicationLayerProtocolNegotiation body, RFC
// 7301 §3.1, from an ordered list of protocol names.
func ALPNExtension(protocols []string) Extension {
	var list []byte
	for _, p := range protocols {
		list = append(list, byte(len(p)))
		list = append(list, p...)
	}
	body := make([]byte, 2, 2+len(list))
	encodeUint(uint64(len(list)), 2, body)
	body = append(body, list...)
	return Extension{Type: ExtensionALPN, Body: body}
}

// ParseALPN returns the ordered protocol list from an ALPN extension body.
func ParseALPN(e Extension) ([]string, error) {
	body := e.Body
	if len(body) < 2 {
		return nil, newDecodeError("tlsengine.extensions: truncated alpn list")
	}
	listLen, _ := decodeUint(body[0:2], 2)
	body = body[2:]
	if uint64(len(body)) != listLen {
		return nil, newDecodeError("tlsengine.extensions: alpn list length mismatch")
	}
	var out []string
	for len(body) > 0 {
		n := int(body[0])
		if len(body)-1 < n {
			return nil, newDecodeError("tlsengine.extensions: truncated alpn entry")
		}
		out = append(out, string(body[1:1+n]))
		body = body[1+n:]
	}
	return out, nil
}

// EmptyExtension builds a zero-length-body extension, the shape used by
// ExtendedMasterSecret, EncryptThenMAC, and RenegotiationInfo's initial
// (empty) case.
func EmptyExtension(t ExtensionType) Extension {
	return Extension{Type: t, Body: nil}
}

// RenegotiationInfoExtension builds RFC 5746's renegotiation_info body: a
// single length-prefixed opaque `renegotiated_connection` field, empty on
// an initial handshake, the client/server Finished values concatenated on
// a rehandshake.
func RenegotiationInfoExtension(renegotiatedConnection []byte) Extension {
	body := append([]byte{byte(len(renegotiatedConnection))}, renegotiatedConnection...)
	return Extension{Type: ExtensionRenegotiationInfo, Body: body}
}

func (t ExtensionType) String() string {
	switch t {
	case ExtensionServerName:
		return "server_name"
	case ExtensionStatusRequest:
		return "status_request"
	case ExtensionSupportedGroups:
		return "supported_groups"
	case ExtensionECPointFormats:
		return "ec_point_formats"
	case ExtensionSignatureAlgorithms:
		return "signature_algorithms"
	case ExtensionUseSRTP:
		return "use_srtp"
	case ExtensionALPN:
		return "application_layer_protocol_negotiation"
	case ExtensionExtendedMasterSecret:
		return "extended_master_secret"
	case ExtensionSessionTicket:
		return "session_ticket"
	case ExtensionEncryptThenMAC:
		return "encrypt_then_mac"
	case ExtensionMaxFragmentLength:
		return "max_fragment_length"
	case ExtensionRenegotiationInfo:
		return "renegotiation_info"
	case ExtensionSupportedVersions:
		return "supported_versions"
	default:
		return fmt.Sprintf("extension(%d)", uint16(t))
	}
}
