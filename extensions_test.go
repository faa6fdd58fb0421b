package tlsengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtensionListUpsertReplacesInPlace(t *testing.T) {
	var l ExtensionList
	l = l.Upsert(ALPNExtension([]string{"h2"}))
	l = l.Upsert(EmptyExtension(ExtensionExtendedMasterSecret))
	require.Len(t, l, 2)

	l = l.Upsert(ALPNExtension([]string{"http/1.1"}))
	require.Len(t, l, 2, "upsert of an existing type must not duplicate it")

	e, ok := l.Find(ExtensionALPN)
	require.True(t, ok)
	protos, err := ParseALPN(e)
	require.NoError(t, err)
	require.Equal(t, []string{"http/1.1"}, protos)
}

func TestExtensionListMarshalUnmarshalRoundTrip(t *testing.T) {
	var l ExtensionList
	l = l.Upsert(EmptyExtension(ExtensionEncryptThenMAC))
	l = l.Upsert(ALPNExtension([]string{"h2", "http/1.1"}))

	raw, err := l.Marshal()
	require.NoError(t, err)

	var out ExtensionList
	n, err := out.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)
	require.Equal(t, l, out)
}

func TestServerNameExtensionRoundTrip(t *testing.T) {
	e, err := ServerNameExtension("example.com")
	require.NoError(t, err)
	name, err := ParseServerName(e)
	require.NoError(t, err)
	require.Equal(t, "example.com", name)
}

func TestServerNameExtensionRejectsInvalidHostname(t *testing.T) {
	overlong := "a-label-that-is-far-too-long-for-a-single-dns-label-to-ever-be-valid-per-rfc-1035"
	_, err := ServerNameExtension(overlong + ".com")
	require.Error(t, err)
}

func TestALPNExtensionRoundTrip(t *testing.T) {
	e := ALPNExtension([]string{"h2", "http/1.1"})
	protos, err := ParseALPN(e)
	require.NoError(t, err)
	require.Equal(t, []string{"h2", "http/1.1"}, protos)
}

func TestRenegotiationInfoExtensionEmptyInitialHandshake(t *testing.T) {
	e := RenegotiationInfoExtension(nil)
	require.Equal(t, ExtensionRenegotiationInfo, e.Type)
	require.Equal(t, []byte{0}, e.Body)
}

func TestSessionTicketExtensionRoundTrip(t *testing.T) {
	ticket := []byte{0xde, 0xad, 0xbe, 0xef}
	e := SessionTicketExtension(ticket)
	got, ok := ParseSessionTicket(e)
	require.True(t, ok)
	require.Equal(t, ticket, got)

	empty := SessionTicketExtension(nil)
	got, ok = ParseSessionTicket(empty)
	require.True(t, ok)
	require.Empty(t, got)
}
