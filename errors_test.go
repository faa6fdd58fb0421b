package tlsengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindsMapToExpectedFatalAlerts(t *testing.T) {
	cases := []struct {
		err  alertError
		want AlertDescription
	}{
		{newDecodeError("truncated message"), AlertDecodeError},
		{newIllegalParameterError("bad value"), AlertIllegalParameter},
		{UnexpectedMessageError{State: "st", Got: HandshakeTypeCertificate}, AlertUnexpectedMessage},
		{BadRecordMacError("mac failed"), AlertBadRecordMac},
		{HandshakeFailureError("no overlap"), AlertHandshakeFailure},
		{BadCertificateError{Reason: "expired", Kind: AlertCertificateExpired}, AlertCertificateExpired},
		{UnsupportedCertError("bad key type"), AlertUnsupportedCertificate},
		{ProtocolVersionError("too old"), AlertProtocolVersion},
		{InsufficientSecurityError("weak group"), AlertInsufficientSecurity},
		{InternalError("invariant violated"), AlertInternalError},
	}
	for _, c := range cases {
		a := c.err.Alert()
		require.True(t, a.IsFatal())
		require.Equal(t, c.want, a.Description)
		require.NotEmpty(t, c.err.Error())
	}
}

func TestUserCanceledErrorIsAWarning(t *testing.T) {
	a := UserCanceledError("local close").Alert()
	require.False(t, a.IsFatal())
	require.Equal(t, AlertUserCanceled, a.Description)
}

func TestAlertDescriptionStringFallsBackForUnknownCode(t *testing.T) {
	require.Equal(t, "close_notify", AlertCloseNotify.String())
	require.Equal(t, "alert(255)", AlertDescription(255).String())
}
