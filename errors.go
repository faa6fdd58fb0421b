package tlsengine

import "fmt"

// alertError is implemented by every error kind in §7: each knows exactly
// which alert it maps to, so the endpoint façade (C10) never needs a second
// classification switch alongside the one that produced the error.
type alertError interface {
	error
	Alert() Alert
}

// DecodeError signals malformed wire data (record or handshake message).
// A plain string type with an Alert() method attached.
type DecodeError string

func (e DecodeError) Error() string { return string(e) }
func (e DecodeError) Alert() Alert  { return fatalAlert(AlertDecodeError) }

func newDecodeError(format string, args ...interface{}) DecodeError {
	return DecodeError(fmt.Sprintf(format, args...))
}

// IllegalParameterError: a field decoded fine but its value is out of the
// range the protocol or policy defines for it.
type IllegalParameterError string

func (e IllegalParameterError) Error() string { return string(e) }
func (e IllegalParameterError) Alert() Alert   { return fatalAlert(AlertIllegalParameter) }

func newIllegalParameterError(format string, args ...interface{}) IllegalParameterError {
	return IllegalParameterError(fmt.Sprintf(format, args...))
}

// UnexpectedMessageError: a handshake message arrived when the state graph
// (C6) did not accept that type.
type UnexpectedMessageError struct {
	State   string
	Got     HandshakeType
	Allowed []HandshakeType
}

func (e UnexpectedMessageError) Error() string {
	return fmt.Sprintf("tlsengine: unexpected message %s in state %s (allowed: %v)", e.Got, e.State, e.Allowed)
}
func (e UnexpectedMessageError) Alert() Alert { return fatalAlert(AlertUnexpectedMessage) }

// BadRecordMacError: AEAD or MAC verification failed at the record layer.
type BadRecordMacError string

func (e BadRecordMacError) Error() string { return string(e) }
func (e BadRecordMacError) Alert() Alert   { return fatalAlert(AlertBadRecordMac) }

// HandshakeFailureError: negotiation (version, suite, group, ALPN, ...)
// found no acceptable overlap between offer and policy.
type HandshakeFailureError string

func (e HandshakeFailureError) Error() string { return string(e) }
func (e HandshakeFailureError) Alert() Alert   { return fatalAlert(AlertHandshakeFailure) }

// BadCertificateError wraps a verify_cert_chain failure. Kind distinguishes
// the three alert codes §7 maps to the same underlying kind of failure.
type BadCertificateError struct {
	Reason string
	Kind   AlertDescription // one of AlertBadCertificate, AlertCertificateRevoked, AlertCertificateExpired
}

func (e BadCertificateError) Error() string { return "tlsengine: bad certificate: " + e.Reason }
func (e BadCertificateError) Alert() Alert   { return fatalAlert(e.Kind) }

// UnsupportedCertError: the certificate's key type or signature algorithm is
// not one the policy or cipher suite permits.
type UnsupportedCertError string

func (e UnsupportedCertError) Error() string { return string(e) }
func (e UnsupportedCertError) Alert() Alert   { return fatalAlert(AlertUnsupportedCertificate) }

// ProtocolVersionError: no version overlap, or offer below policy minimum.
type ProtocolVersionError string

func (e ProtocolVersionError) Error() string { return string(e) }
func (e ProtocolVersionError) Alert() Alert   { return fatalAlert(AlertProtocolVersion) }

// InsufficientSecurityError: suite/key size below the policy's minimum.
type InsufficientSecurityError string

func (e InsufficientSecurityError) Error() string { return string(e) }
func (e InsufficientSecurityError) Alert() Alert   { return fatalAlert(AlertInsufficientSecurity) }

// InternalError: an engine invariant was violated; never caused by peer
// input alone.
type InternalError string

func (e InternalError) Error() string { return string(e) }
func (e InternalError) Alert() Alert   { return fatalAlert(AlertInternalError) }

// UserCanceledError: the local side closed before the handshake completed.
// Per §7 this is a warning (user_canceled) immediately followed by a
// close_notify, not a fatal alert.
type UserCanceledError string

func (e UserCanceledError) Error() string { return string(e) }
func (e UserCanceledError) Alert() Alert   { return warningAlert(AlertUserCanceled) }

// ErrNotActive is returned by Send when the endpoint has not completed its
// handshake; it is the one error path §7 allows past the public API as a
// plain Go error rather than an alert (programmer misuse, not a protocol
// event).
var ErrNotActive = fmt.Errorf("tlsengine: connection not active")
