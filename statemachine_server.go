package tlsengine

import (
	"crypto"
	"time"
)

// Server-side handshake driving (C6), the mirror of statemachine_client.go.
// processClientHello handles the client's first flight; everything after
// follows the same feedHandshakeRecord/process* shape the client side uses.

// processClientHello parses the ClientHello, answers with HelloVerifyRequest
// when a DTLS cookie is missing or invalid, negotiates version, suite,
// extensions and resumption, then sends the server's first flight.
func (h *handshake) processClientHello(body []byte, clientAddr string) error {
	if h.state != hsInitial && h.state != hsSentHelloVerifyRequest {
		return UnexpectedMessageError{State: "server", Got: HandshakeTypeClientHello}
	}
	var ch ClientHello
	if _, err := ch.Unmarshal(body); err != nil {
		return err
	}
	h.hooks.examineExtensions(ch.Extensions, SideClient)

	if h.datagram && h.cookies != nil {
		if len(ch.Cookie) == 0 || !h.cookies.verify(clientAddr, ch.Random, ch.SessionID, ch.Cookie) {
			return h.sendHelloVerifyRequest(clientAddr, ch.Random, ch.SessionID)
		}
	}

	h.clientRandom = ch.Random
	h.offeredSuites = ch.CipherSuites
	h.lastClientHello = &ch

	version, ok := h.policy.bestVersion([]ProtocolVersion{ch.LegacyVersion})
	if !ok {
		return ProtocolVersionError("tlsengine.server: no acceptable version overlap with client offer")
	}
	h.version = version

	suite, ok := h.policy.chooseCipherSuite(ch.CipherSuites)
	if !ok {
		return HandshakeFailureError("tlsengine.server: no acceptable cipher suite overlap with client offer")
	}
	h.suite = suite
	h.transcript.fix(suite.PRFHash)

	if sni, ok := ch.Extensions.Find(ExtensionServerName); ok {
		if name, err := ParseServerName(sni); err == nil {
			h.serverHostname = name
		}
	}
	if alpn, ok := ch.Extensions.Find(ExtensionALPN); ok {
		if protos, err := ParseALPN(alpn); err == nil {
			h.offeredALPN = protos
			h.chosenALPN = h.hooks.chooseAppProtocol(protos)
			if h.chosenALPN == "" && len(protos) > 0 {
				return HandshakeFailureError("tlsengine.server: no_application_protocol")
			}
		}
	}
	h.extendedMasterSecret = negotiatedBoolFromSingle(ch.Extensions, ExtensionExtendedMasterSecret)
	if h.policy.NegotiateEncryptThenMAC {
		h.encryptThenMAC = negotiatedBoolFromSingle(ch.Extensions, ExtensionEncryptThenMAC)
	}

	if h.sessions != nil && len(ch.SessionID) > 0 {
		if s, ok := h.sessions.LoadFromSessionID(ch.SessionID); ok && s.CipherSuite.Suite == suite.Suite {
			h.resumedSession = s
			h.resuming = true
		}
	}

	if ticketExt, ok := ch.Extensions.Find(ExtensionSessionTicket); ok {
		h.peerSupportsTickets = true
		if !h.resuming && h.sessions != nil {
			if ticket, _ := ParseSessionTicket(ticketExt); len(ticket) > 0 {
				if s, ok := openTicket(h.sessions.SessionTicketKey(), ticket); ok && s.CipherSuite.Suite == suite.Suite {
					h.resumedSession = s
					h.resuming = true
					ch.SessionID = s.SessionID
				}
			}
		}
	}

	random, err := newRandom()
	if err != nil {
		return err
	}
	h.serverRandom = random
	if h.resuming {
		h.sessionID = ch.SessionID
		h.masterSecret = append([]byte{}, h.resumedSession.MasterSecret...)
		h.peerCertificates = h.resumedSession.PeerCertificates
	} else {
		sessionID, err := randomBytes(32)
		if err != nil {
			return err
		}
		h.sessionID = sessionID
	}

	h.state = hsReceivedClientHello
	return h.serverSendFirstFlight()
}

// sendHelloVerifyRequest issues RFC 6347 §4.2.1's cookie challenge without
// allocating any further handshake state (no transcript entry, no suite
// negotiation) until the client echoes it.
func (h *handshake) sendHelloVerifyRequest(clientAddr string, clientRandom Random, sessionID []byte) error {
	cookie := h.cookies.compute(clientAddr, clientRandom, sessionID)
	hvr := &HelloVerifyRequest{Version: VersionDTLS12, Cookie: cookie}
	if err := h.send(HandshakeTypeHelloVerifyRequest, syntaxBody{hvr}); err != nil {
		return err
	}
	// RFC 6347 §4.2.1: neither the first ClientHello nor HelloVerifyRequest
	// itself count toward the handshake hash; only the cookie-bearing
	// second ClientHello starts the real transcript.
	h.transcript = newTranscript(crypto.SHA256, crypto.SHA384)
	h.state = hsSentHelloVerifyRequest
	return nil
}

// serverSendFirstFlight assembles ServerHello/Certificate?/ServerKeyExchange?/
// CertificateRequest?/ServerHelloDone for a full handshake, or just
// ServerHello/ChangeCipherSpec/Finished for an abbreviated one, §4.5/§7.3.
func (h *handshake) serverSendFirstFlight() error {
	exts := ExtensionList{}
	if h.extendedMasterSecret {
		exts = exts.Upsert(EmptyExtension(ExtensionExtendedMasterSecret))
	}
	if h.encryptThenMAC {
		exts = exts.Upsert(EmptyExtension(ExtensionEncryptThenMAC))
	}
	if h.chosenALPN != "" {
		exts = exts.Upsert(ALPNExtension([]string{h.chosenALPN}))
	}
	exts = exts.Upsert(RenegotiationInfoExtension(nil))
	exts = h.hooks.modifyExtensions(exts, SideServer)

	sh := &ServerHello{
		Version:           h.version,
		Random:            h.serverRandom,
		SessionID:         h.sessionID,
		CipherSuite:       h.suite.Suite,
		CompressionMethod: 0,
		Extensions:        exts,
	}
	if err := h.send(HandshakeTypeServerHello, syntaxBody{sh}); err != nil {
		return err
	}
	h.state = hsSentServerHello

	if h.resuming {
		if err := h.sendChangeCipherSpecAndFinished(); err != nil {
			return err
		}
		h.state = hsAwaitingChangeCipherSpecFromPeer
		return nil
	}

	if h.suite.Auth != AuthImplicit || h.suite.KEX == KexDHE || h.suite.KEX == KexECDHE {
		chain := h.creds.FindCertChain(nil, nil, CredentialTypeServerAuth, h.serverHostname)
		if len(chain) == 0 {
			return HandshakeFailureError("tlsengine.server: no certificate chain available for negotiated suite")
		}
		if err := h.send(HandshakeTypeCertificate, syntaxBody{&CertificateMessage{CertificateList: chain}}); err != nil {
			return err
		}
		h.state = hsSentCertificate
	}

	if err := h.serverSendKeyExchange(); err != nil {
		return err
	}

	if h.policy.RequireClientAuth {
		cr := &CertificateRequest{
			CertificateTypes:             []byte{1, 64}, // rsa_sign, ecdsa_sign
			SupportedSignatureAlgorithms: h.policy.AllowedSignatureMethods,
		}
		if err := h.send(HandshakeTypeCertificateRequest, syntaxBody{cr}); err != nil {
			return err
		}
		h.state = hsSentCertificateRequest
		h.clientCertAsked = true
	}

	if err := h.send(HandshakeTypeServerHelloDone, syntaxBody{&ServerHelloDone{}}); err != nil {
		return err
	}
	h.state = hsSentServerHelloDone
	h.flushFlight()
	return nil
}

// serverSendKeyExchange emits ServerKeyExchange for every KEX method that
// needs one: (EC)DHE methods generate and sign a fresh ephemeral share;
// PSK/DHE-PSK/ECDHE-PSK carry an identity hint; plain RSA sends nothing.
func (h *handshake) serverSendKeyExchange() error {
	switch h.suite.KEX {
	case KexRSA, KexPSK:
		if h.suite.KEX == KexPSK {
			params := serverKeyExchangeParams(KexPSK, h.pskIdentityHint(), 0, nil, 0, nil)
			if err := h.send(HandshakeTypeServerKeyExchange, syntaxBody{&ServerKeyExchangeRaw{Params: params}}); err != nil {
				return err
			}
			h.state = hsSentServerKeyExchange
		}
		return nil

	case KexDHE, KexECDHE, KexDHEPSK, KexECDHEPSK:
		group, ok := h.chooseGroup()
		if !ok {
			return HandshakeFailureError("tlsengine.server: no acceptable group overlap with policy")
		}
		h.group = group
		ourShare, priv, err := h.hooks.TLSGenerateKeyShare(group)
		if err != nil {
			return err
		}
		h.ourShare = ourShare
		h.ourSharePriv = priv

		hint := ""
		if h.suite.KEX == KexDHEPSK || h.suite.KEX == KexECDHEPSK {
			hint = h.pskIdentityHint()
		}
		params := serverKeyExchangeParams(h.suite.KEX, hint, group, ourShare, 0, nil)

		if h.suite.Auth != AuthImplicit {
			scheme := pickSignatureScheme(h.policy, h.suite)
			message := signedParams(h.clientRandom, h.serverRandom, params)
			if h.hooks.TLSSignMessage == nil {
				return HandshakeFailureError("tlsengine.server: signed key exchange requires TLSSignMessage")
			}
			sig, err := h.hooks.TLSSignMessage(scheme, message)
			if err != nil {
				return newIllegalParameterError("tlsengine.server: server key exchange signing: %v", err)
			}
			params = serverKeyExchangeParams(h.suite.KEX, hint, group, ourShare, scheme, sig)
		}

		if err := h.send(HandshakeTypeServerKeyExchange, syntaxBody{&ServerKeyExchangeRaw{Params: params}}); err != nil {
			return err
		}
		h.state = hsSentServerKeyExchange
		return nil

	default:
		return InternalError("tlsengine.server: unsupported key exchange method")
	}
}

// pskIdentityHint lets an embedder name which PSK identity it expects; the
// engine itself carries no identity-hint policy beyond what Credentials
// already encodes, so an empty hint (client picks from its own store) is the
// common case.
func (h *handshake) pskIdentityHint() string { return "" }

// maybeIssueSessionTicket sends NewSessionTicket immediately before the
// server's own ChangeCipherSpec, RFC 5077 §3.3: only when policy opts in,
// a cache is configured to hand out a stable ticket key, and the client
// advertised support via an (possibly empty) SessionTicket extension.
func (h *handshake) maybeIssueSessionTicket() error {
	if !h.policy.IssueSessionTickets || h.sessions == nil || !h.peerSupportsTickets {
		return nil
	}
	key := h.sessions.SessionTicketKey()
	if len(key) == 0 {
		return nil
	}
	nonce, err := randomBytes(ticketNonceLen)
	if err != nil {
		return err
	}
	session := h.toSession()
	session.LifetimeHint = h.policy.SessionTicketLifetime
	ticket, err := sealTicket(key, nonce, session)
	if err != nil {
		return err
	}
	nst := &NewSessionTicket{LifetimeHint: uint32(h.policy.SessionTicketLifetime / time.Second), Ticket: ticket}
	return h.send(HandshakeTypeNewSessionTicket, syntaxBody{nst})
}

// chooseGroup picks the first policy-allowed group; a production embedder
// with per-client group preference would extend this to read the client's
// supported_groups extension, §4.4.
func (h *handshake) chooseGroup() (NamedGroup, bool) {
	if len(h.policy.AllowedGroups) == 0 {
		return 0, false
	}
	return h.policy.AllowedGroups[0], true
}

func (h *handshake) processClientCertificate(body []byte) error {
	if h.state != hsSentServerHelloDone {
		return UnexpectedMessageError{State: "server", Got: HandshakeTypeCertificate}
	}
	var cm CertificateMessage
	if _, err := syntaxUnmarshal(body, &cm); err != nil {
		return err
	}
	if len(cm.CertificateList) > 0 {
		if err := h.hooks.verifyCertChain(cm.CertificateList, nil, nil, "", h.policy); err != nil {
			return err
		}
		h.peerCertificates = cm.CertificateList
		h.clientCertSent = true
	} else if h.policy.RequireClientAuth {
		return HandshakeFailureError("tlsengine.server: client auth required but no certificate sent")
	}
	h.state = hsReceivedClientCertificate
	return nil
}

func (h *handshake) processClientKeyExchange(body []byte) error {
	switch h.state {
	case hsSentServerHelloDone, hsReceivedClientCertificate:
	default:
		return UnexpectedMessageError{State: "server", Got: HandshakeTypeClientKeyExchange}
	}
	if h.state == hsSentServerHelloDone && h.policy.RequireClientAuth {
		return HandshakeFailureError("tlsengine.server: client auth required but no certificate sent")
	}
	var raw ClientKeyExchangeRaw
	if _, err := syntaxUnmarshal(body, &raw); err != nil {
		return err
	}
	params, err := parseClientKeyExchangeParams(h.suite.KEX, raw.Params)
	if err != nil {
		return err
	}

	var preMaster []byte
	switch h.suite.KEX {
	case KexRSA:
		if h.hooks.TLSDecryptPreMasterRSA == nil {
			return HandshakeFailureError("tlsengine.server: rsa key transport requires TLSDecryptPreMasterRSA")
		}
		pm, err := h.hooks.TLSDecryptPreMasterRSA(params.rsaEncryptedPreMaster)
		if err != nil || len(pm) != 48 || pm[0] != h.clientOfferedVersionMajor() || pm[1] != h.clientOfferedVersionMinor() {
			// RFC 5246 §7.4.7.1's Bleichenbacher countermeasure: substitute a
			// random pre-master on any decode/version failure rather than
			// reporting which check failed, and continue the handshake as
			// if nothing were wrong; it simply fails at Finished.
			pm, _ = randomBytes(48)
		}
		preMaster = pm

	case KexDHE, KexECDHE, KexDH, KexECDH:
		shared, err := h.hooks.TLSFinishKeyAgreement(h.group, h.ourSharePriv, params.clientShare)
		if err != nil {
			return err
		}
		preMaster = shared

	case KexPSK:
		psk, ok := h.creds.PSK(CredentialTypeServerAuth, h.serverHostname, params.pskIdentity)
		if !ok {
			return HandshakeFailureError("tlsengine.server: unknown psk identity")
		}
		preMaster = pskPreMaster(nil, psk)

	case KexDHEPSK, KexECDHEPSK:
		psk, ok := h.creds.PSK(CredentialTypeServerAuth, h.serverHostname, params.pskIdentity)
		if !ok {
			return HandshakeFailureError("tlsengine.server: unknown psk identity")
		}
		shared, err := h.hooks.TLSFinishKeyAgreement(h.group, h.ourSharePriv, params.clientShare)
		if err != nil {
			return err
		}
		preMaster = pskPreMaster(shared, psk)

	default:
		return InternalError("tlsengine.server: unsupported key exchange method")
	}

	h.preMasterSecret = preMaster
	h.state = hsReceivedClientKeyExchange
	if h.extendedMasterSecret {
		h.sessionHashAtCKE = h.transcript.sum()
	}
	h.deriveMaster()
	return nil
}

func (h *handshake) clientOfferedVersionMajor() uint8 { return h.version.Major }
func (h *handshake) clientOfferedVersionMinor() uint8 { return h.version.Minor }

func (h *handshake) processClientCertificateVerify(body []byte) error {
	if h.state != hsReceivedClientKeyExchange || !h.clientCertSent {
		return UnexpectedMessageError{State: "server", Got: HandshakeTypeCertificateVerify}
	}
	var cv CertificateVerify
	if _, err := syntaxUnmarshal(body, &cv); err != nil {
		return err
	}
	if h.hooks.TLSVerifyMessage == nil {
		return HandshakeFailureError("tlsengine.server: client auth requires TLSVerifyMessage")
	}
	cert := firstOrNil(h.peerCertificates)
	if err := h.hooks.TLSVerifyMessage(cv.Scheme, h.transcript.sum(), cv.Signature, cert); err != nil {
		return BadCertificateError{Reason: "client certificate verify: " + err.Error(), Kind: AlertDecryptError}
	}
	h.state = hsReceivedClientCertificateVerify
	return nil
}

// serverAwaitClientFinished is called once the client's ClientKeyExchange
// (and CertificateVerify, if any) has been processed, and moves the
// handshake to wait for the client's ChangeCipherSpec. The client's
// ChangeCipherSpec and Finished are then handled by the shared
// processPeerChangeCipherSpec/processPeerFinished in statemachine.go; for a
// full (non-resumed) handshake processPeerFinished also sends the server's
// own ChangeCipherSpec/Finished.
func (h *handshake) serverAwaitClientFinished() error {
	switch h.state {
	case hsReceivedClientKeyExchange, hsReceivedClientCertificateVerify:
	default:
		return UnexpectedMessageError{State: "server", Got: HandshakeTypeFinished}
	}
	h.state = hsAwaitingChangeCipherSpecFromPeer
	return nil
}
