package tlsengine

import "crypto"

// Client-side handshake driving (C6). clientBegin sends the initial flight;
// dispatchHandshakeMessage (dispatch.go) routes every subsequent inbound
// message to the process* function here for h.state, enforcing §4.5's message ordering and producing whatever
// outbound messages that stage of the handshake requires.

func (h *handshake) buildClientHello(cfg *Config) (*ClientHello, error) {
	maxVersion, ok := h.policy.bestVersion(h.policy.AllowedVersions)
	if !ok {
		return nil, HandshakeFailureError("tlsengine.client: policy allows no versions")
	}
	h.clientOfferedVersion = maxVersion
	h.version = maxVersion

	random, err := newRandom()
	if err != nil {
		return nil, err
	}
	h.clientRandom = random

	sessionID := []byte{}
	var storedTicket []byte
	if cfg.ServerHostname != "" && h.sessions != nil {
		if s, ok := h.sessions.LoadFromServerInfo(cfg.ServerHostname, 0); ok {
			h.resumedSession = s
			sessionID = s.SessionID
			storedTicket = s.Ticket
		}
	}
	h.sessionID = sessionID

	h.offeredSuites = h.policy.AllowedCiphers
	h.serverHostname = cfg.ServerHostname
	h.offeredALPN = cfg.ALPNProtocols

	exts := ExtensionList{}
	if cfg.ServerHostname != "" {
		sni, err := ServerNameExtension(cfg.ServerHostname)
		if err != nil {
			return nil, err
		}
		exts = exts.Upsert(sni)
	}
	if len(cfg.ALPNProtocols) > 0 {
		exts = exts.Upsert(ALPNExtension(cfg.ALPNProtocols))
	}
	exts = exts.Upsert(EmptyExtension(ExtensionExtendedMasterSecret))
	if h.policy.NegotiateEncryptThenMAC {
		exts = exts.Upsert(EmptyExtension(ExtensionEncryptThenMAC))
	}
	exts = exts.Upsert(SessionTicketExtension(storedTicket))
	exts = exts.Upsert(RenegotiationInfoExtension(nil))
	exts = h.hooks.modifyExtensions(exts, SideClient)

	cookie := []byte{}
	if h.datagram && h.cookies != nil {
		// the cookie-bearing second ClientHello after HelloVerifyRequest is
		// built by clientResendWithCookie; nothing to do here.
	}

	return &ClientHello{
		LegacyVersion:      maxVersion,
		Random:             random,
		SessionID:          sessionID,
		Cookie:             cookie,
		CipherSuites:       h.offeredSuites,
		CompressionMethods: []byte{0},
		Extensions:         exts,
	}, nil
}

// clientBegin sends the first flight (ClientHello) and arms the DTLS
// retransmission timer, §4.3/§4.5.
func (h *handshake) clientBegin(cfg *Config) error {
	ch, err := h.buildClientHello(cfg)
	if err != nil {
		return err
	}
	h.lastClientHello = ch
	if err := h.send(HandshakeTypeClientHello, ch); err != nil {
		return err
	}
	h.state = hsSentClientHello
	h.flushFlight()
	return nil
}

// clientResendWithCookie rebuilds and resends ClientHello carrying the
// server's echoed cookie, RFC 6347 §4.2.1. The original (uncookied)
// ClientHello and the HelloVerifyRequest itself are excluded from the
// transcript; only the second ClientHello counts.
func (h *handshake) clientResendWithCookie(cookie []byte) error {
	h.transcript = newTranscript(crypto.SHA256, crypto.SHA384)
	ch := *h.lastClientHello
	ch.Cookie = cookie
	h.lastClientHello = &ch
	if err := h.send(HandshakeTypeClientHello, &ch); err != nil {
		return err
	}
	h.state = hsSentClientHello
	h.flushFlight()
	return nil
}

func (h *handshake) processServerHello(body []byte) error {
	if h.state != hsSentClientHello {
		return UnexpectedMessageError{State: "client", Got: HandshakeTypeServerHello}
	}
	var sh ServerHello
	if _, err := syntaxUnmarshal(body, &sh); err != nil {
		return err
	}
	h.hooks.examineExtensions(sh.Extensions, SideServer)

	if !h.policy.allowsVersion(sh.Version) {
		return ProtocolVersionError("tlsengine.client: server selected unacceptable version")
	}
	h.version = sh.Version
	h.serverRandom = sh.Random

	suite, ok := LookupCipherSuite(sh.CipherSuite)
	if !ok || !h.policy.allowsCipher(sh.CipherSuite) {
		return HandshakeFailureError("tlsengine.client: server selected unacceptable cipher suite")
	}
	h.suite = suite
	h.transcript.fix(suite.PRFHash)

	h.extendedMasterSecret = negotiatedBoolFromSingle(sh.Extensions, ExtensionExtendedMasterSecret)
	h.encryptThenMAC = negotiatedBoolFromSingle(sh.Extensions, ExtensionEncryptThenMAC)
	if alpn, ok := sh.Extensions.Find(ExtensionALPN); ok {
		if protos, err := ParseALPN(alpn); err == nil && len(protos) == 1 {
			h.chosenALPN = protos[0]
		}
	}

	h.resuming = h.resumedSession != nil && len(sh.SessionID) > 0 && string(sh.SessionID) == string(h.sessionID)
	h.sessionID = sh.SessionID
	h.state = hsReceivedServerHello

	if h.resuming {
		h.masterSecret = append([]byte{}, h.resumedSession.MasterSecret...)
		h.peerCertificates = h.resumedSession.PeerCertificates
		h.state = hsAwaitingChangeCipherSpecFromPeer
	}
	return nil
}

func (h *handshake) processCertificate(body []byte) error {
	if h.state != hsReceivedServerHello {
		return UnexpectedMessageError{State: "client", Got: HandshakeTypeCertificate}
	}
	var cm CertificateMessage
	if _, err := syntaxUnmarshal(body, &cm); err != nil {
		return err
	}
	if err := h.hooks.verifyCertChain(cm.CertificateList, nil, nil, h.serverHostname, h.policy); err != nil {
		return err
	}
	h.peerCertificates = cm.CertificateList
	h.state = hsReceivedCertificate
	return nil
}

func (h *handshake) processServerKeyExchange(body []byte) error {
	if h.state != hsReceivedCertificate && h.state != hsReceivedServerHello {
		return UnexpectedMessageError{State: "client", Got: HandshakeTypeServerKeyExchange}
	}
	var raw ServerKeyExchangeRaw
	if _, err := syntaxUnmarshal(body, &raw); err != nil {
		return err
	}
	params, err := parseServerKeyExchangeParams(h.suite.KEX, raw.Params)
	if err != nil {
		return err
	}
	h.pskIdentity = params.pskIdentityHint // carried through to ClientKeyExchange as a hint echo point
	h.group = params.group
	h.peerShare = params.serverShare

	if h.suite.Auth != AuthImplicit {
		if params.signature == nil || h.hooks.TLSVerifyMessage == nil {
			return HandshakeFailureError("tlsengine.client: signed key exchange missing signature or verifier")
		}
		message := signedParams(h.clientRandom, h.serverRandom, params.signedPortion)
		cert := firstOrNil(h.peerCertificates)
		if err := h.hooks.TLSVerifyMessage(params.scheme, message, params.signature, cert); err != nil {
			return BadCertificateError{Reason: "server key exchange signature: " + err.Error(), Kind: AlertDecryptError}
		}
	}
	h.state = hsReceivedServerKeyExchange
	return nil
}

func (h *handshake) processCertificateRequest(body []byte) error {
	if h.state != hsReceivedCertificate && h.state != hsReceivedServerKeyExchange {
		return UnexpectedMessageError{State: "client", Got: HandshakeTypeCertificateRequest}
	}
	h.clientCertAsked = true
	h.state = hsReceivedCertificateRequest
	return nil
}

func (h *handshake) processServerHelloDone(body []byte) error {
	switch h.state {
	case hsReceivedCertificate, hsReceivedServerKeyExchange, hsReceivedCertificateRequest:
	default:
		return UnexpectedMessageError{State: "client", Got: HandshakeTypeServerHelloDone}
	}
	h.state = hsReceivedServerHelloDone
	return h.clientSendSecondFlight()
}

// clientSendSecondFlight assembles Certificate?/ClientKeyExchange/
// CertificateVerify?/ChangeCipherSpec/Finished, §4.5.
func (h *handshake) clientSendSecondFlight() error {
	if h.clientCertAsked && h.creds != nil {
		chain := h.creds.FindCertChain(nil, nil, CredentialTypeClientAuth, h.serverHostname)
		if len(chain) > 0 {
			if err := h.send(HandshakeTypeCertificate, syntaxBody{&CertificateMessage{CertificateList: chain}}); err != nil {
				return err
			}
			h.clientCertSent = true
		} else {
			if err := h.send(HandshakeTypeCertificate, syntaxBody{&CertificateMessage{}}); err != nil {
				return err
			}
		}
		h.state = hsSentClientCertificate
	}

	preMaster, cke, err := h.computeClientKeyExchange()
	if err != nil {
		return err
	}
	h.preMasterSecret = preMaster
	if err := h.send(HandshakeTypeClientKeyExchange, syntaxBody{cke}); err != nil {
		return err
	}
	h.state = hsSentClientKeyExchange

	if h.extendedMasterSecret {
		h.sessionHashAtCKE = h.transcript.sum()
	}
	h.deriveMaster()

	if h.clientCertSent && h.hooks.TLSSignMessage != nil {
		sig, scheme, err := h.signCertificateVerify()
		if err != nil {
			return err
		}
		if err := h.send(HandshakeTypeCertificateVerify, syntaxBody{&CertificateVerify{Scheme: scheme, Signature: sig}}); err != nil {
			return err
		}
		h.state = hsSentCertificateVerify
	}

	if err := h.sendChangeCipherSpecAndFinished(); err != nil {
		return err
	}
	h.state = hsAwaitingChangeCipherSpecFromPeer
	return nil
}

func (h *handshake) computeClientKeyExchange() (preMaster []byte, cke *ClientKeyExchangeRaw, err error) {
	switch h.suite.KEX {
	case KexRSA:
		pm, err := randomBytes(48)
		if err != nil {
			return nil, nil, err
		}
		pm[0] = h.clientOfferedVersion.Major
		pm[1] = h.clientOfferedVersion.Minor
		serverCert := firstOrNil(h.peerCertificates)
		encrypted, err := h.hooks.TLSEncryptPreMasterRSA(serverCert, pm)
		if err != nil {
			return nil, nil, newIllegalParameterError("tlsengine.client: rsa pre-master encryption: %v", err)
		}
		return pm, &ClientKeyExchangeRaw{Params: clientKeyExchangeParams(KexRSA, encrypted, "", nil)}, nil

	case KexDHE, KexECDHE, KexDH, KexECDH:
		ourShare, priv, err := h.hooks.TLSGenerateKeyShare(h.group)
		if err != nil {
			return nil, nil, err
		}
		shared, err := h.hooks.TLSFinishKeyAgreement(h.group, priv, h.peerShare)
		if err != nil {
			return nil, nil, err
		}
		h.ourShare = ourShare
		return shared, &ClientKeyExchangeRaw{Params: clientKeyExchangeParams(h.suite.KEX, nil, "", ourShare)}, nil

	case KexPSK:
		psk, identity, err := h.lookupPSK()
		if err != nil {
			return nil, nil, err
		}
		return pskPreMaster(nil, psk), &ClientKeyExchangeRaw{Params: clientKeyExchangeParams(KexPSK, nil, identity, nil)}, nil

	case KexDHEPSK, KexECDHEPSK:
		psk, identity, err := h.lookupPSK()
		if err != nil {
			return nil, nil, err
		}
		ourShare, priv, err := h.hooks.TLSGenerateKeyShare(h.group)
		if err != nil {
			return nil, nil, err
		}
		other, err := h.hooks.TLSFinishKeyAgreement(h.group, priv, h.peerShare)
		if err != nil {
			return nil, nil, err
		}
		h.ourShare = ourShare
		return pskPreMaster(other, psk), &ClientKeyExchangeRaw{Params: clientKeyExchangeParams(h.suite.KEX, nil, identity, ourShare)}, nil

	default:
		return nil, nil, InternalError("tlsengine.client: unsupported key exchange method")
	}
}

func (h *handshake) lookupPSK() (psk []byte, identity string, err error) {
	if h.creds == nil {
		return nil, "", HandshakeFailureError("tlsengine.client: no PSK credentials configured")
	}
	psk, ok := h.creds.PSK(CredentialTypeClientAuth, h.serverHostname, h.pskIdentity)
	if !ok {
		return nil, "", HandshakeFailureError("tlsengine.client: no PSK available for identity hint")
	}
	return psk, h.pskIdentity, nil
}

func (h *handshake) signCertificateVerify() (signature []byte, scheme SignatureScheme, err error) {
	scheme = pickSignatureScheme(h.policy, h.suite)
	sig, err := h.hooks.TLSSignMessage(scheme, h.transcript.sum())
	return sig, scheme, err
}

func pickSignatureScheme(policy *Policy, suite CipherSuiteParams) SignatureScheme {
	for _, s := range policy.AllowedSignatureMethods {
		if s.authMethod() == suite.Auth {
			return s
		}
	}
	if len(policy.AllowedSignatureMethods) > 0 {
		return policy.AllowedSignatureMethods[0]
	}
	return RSAWithSHA256
}

// sendChangeCipherSpecAndFinished writes our own ChangeCipherSpec, installs
// our write-direction keys for the next epoch, and sends Finished. Shared by
// both sides: the full handshake's client-goes-first Finished and the
// abbreviated handshake's server-goes-first Finished both call this.
func (h *handshake) sendChangeCipherSpecAndFinished() error {
	if h.side == SideServer {
		if err := h.maybeIssueSessionTicket(); err != nil {
			return err
		}
	}
	if err := h.rlOut.WriteRecord(NewTLSPlaintext(RecordTypeChangeCipherSpec, h.rlOut.Epoch(), []byte{1})); err != nil {
		return err
	}
	if err := h.installWriteKeys(); err != nil {
		return err
	}
	finished := h.finished(h.side)
	if h.side == SideClient {
		h.clientVerifyData = finished
	} else {
		h.serverVerifyData = finished
	}
	h.sentOwnFinished = true
	return h.send(HandshakeTypeFinished, syntaxBody{&Finished{VerifyData: finished}})
}

func firstOrNil(chain [][]byte) []byte {
	if len(chain) == 0 {
		return nil
	}
	return chain[0]
}

func negotiatedBoolFromSingle(exts ExtensionList, t ExtensionType) bool {
	_, ok := exts.Find(t)
	return ok
}
