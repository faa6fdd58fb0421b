package tlsengine

// handshakeStep is the Endpoint.ReceivedData callback shared by Client and
// Server (C10 wiring onto C6): it classifies each decrypted record by
// content type and, for handshake records, reassembles and dispatches each
// complete message to the side-appropriate handshake.process* method.
func handshakeStep(e *Endpoint, pt *TLSPlaintext) error {
	h := e.hs
	switch pt.ContentType() {
	case RecordTypeHandshake:
		headers, bodies, err := h.feedHandshakeRecord(pt.Fragment())
		if err != nil {
			return err
		}
		for i, hdr := range headers {
			if err := dispatchHandshakeMessage(e, hdr, bodies[i]); err != nil {
				return err
			}
		}
		return nil

	case RecordTypeChangeCipherSpec:
		return h.processPeerChangeCipherSpec()

	case RecordTypeAlert:
		return e.handleAlertRecord(pt.Fragment())

	case RecordTypeApplicationData:
		if e.lifecycle != lifecycleActive {
			return UnexpectedMessageError{State: h.side.String(), Got: HandshakeType(0)}
		}
		h.hooks.recordReceived(pt.Seq(), pt.Fragment())
		return nil

	default:
		return newDecodeError("tlsengine: unhandled record content type")
	}
}

// dispatchHandshakeMessage routes one reassembled handshake message to its
// handler, recording it in the transcript first (§4.5) except for
// HelloVerifyRequest, which RFC 6347 §4.2.1 excludes from the hash, and
// Finished, whose own verify_data must be checked against the transcript
// as it stood before this message arrived (§4.5: "up to, but not
// including, this message"); processPeerFinished appends it itself once
// verification passes.
func dispatchHandshakeMessage(e *Endpoint, hdr HandshakeHeader, body []byte) error {
	h := e.hs
	if hdr.MsgType != HandshakeTypeHelloVerifyRequest && hdr.MsgType != HandshakeTypeFinished {
		h.appendInboundToTranscript(hdr, body)
	}

	switch hdr.MsgType {
	case HandshakeTypeHelloVerifyRequest:
		if h.side != SideClient {
			return UnexpectedMessageError{State: "server", Got: hdr.MsgType}
		}
		var hvr HelloVerifyRequest
		if _, err := syntaxUnmarshal(body, &hvr); err != nil {
			return err
		}
		return h.clientResendWithCookie(hvr.Cookie)

	case HandshakeTypeClientHello:
		if h.side != SideServer {
			return UnexpectedMessageError{State: "client", Got: hdr.MsgType}
		}
		return h.processClientHello(body, "")

	case HandshakeTypeServerHello:
		if h.side != SideClient {
			return UnexpectedMessageError{State: "server", Got: hdr.MsgType}
		}
		return h.processServerHello(body)

	case HandshakeTypeCertificate:
		if h.side == SideClient {
			return h.processCertificate(body)
		}
		return h.processClientCertificate(body)

	case HandshakeTypeServerKeyExchange:
		if h.side != SideClient {
			return UnexpectedMessageError{State: "server", Got: hdr.MsgType}
		}
		return h.processServerKeyExchange(body)

	case HandshakeTypeCertificateRequest:
		if h.side != SideClient {
			return UnexpectedMessageError{State: "server", Got: hdr.MsgType}
		}
		return h.processCertificateRequest(body)

	case HandshakeTypeServerHelloDone:
		if h.side != SideClient {
			return UnexpectedMessageError{State: "server", Got: hdr.MsgType}
		}
		return h.processServerHelloDone(body)

	case HandshakeTypeClientKeyExchange:
		if h.side != SideServer {
			return UnexpectedMessageError{State: "client", Got: hdr.MsgType}
		}
		if err := h.processClientKeyExchange(body); err != nil {
			return err
		}
		return h.serverAwaitClientFinished()

	case HandshakeTypeCertificateVerify:
		if h.side != SideServer {
			return UnexpectedMessageError{State: "client", Got: hdr.MsgType}
		}
		if err := h.processClientCertificateVerify(body); err != nil {
			return err
		}
		return h.serverAwaitClientFinished()

	case HandshakeTypeFinished:
		err := h.processPeerFinished(hdr, body, h.sendChangeCipherSpecAndFinished)
		if err != nil {
			return err
		}
		if h.state == hsActive {
			e.maybeFireSessionEstablished()
		}
		return nil

	case HandshakeTypeNewSessionTicket:
		if h.side != SideClient {
			return UnexpectedMessageError{State: "server", Got: hdr.MsgType}
		}
		var nst NewSessionTicket
		if _, err := syntaxUnmarshal(body, &nst); err != nil {
			return err
		}
		h.receivedTicket = nst.Ticket
		return nil

	default:
		return UnexpectedMessageError{State: h.side.String(), Got: hdr.MsgType}
	}
}
