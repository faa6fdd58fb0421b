package tlsengine

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCBCPair(t *testing.T) (enc, dec *cbcState) {
	t.Helper()
	suite, ok := LookupCipherSuite(TLS_RSA_WITH_AES_128_CBC_SHA)
	require.True(t, ok)
	key := make([]byte, suite.KeyLen)
	for i := range key {
		key[i] = byte(i + 1)
	}
	macKey := make([]byte, sha1.Size)
	for i := range macKey {
		macKey[i] = byte(i + 100)
	}
	return newCBCState(suite, key, append([]byte{}, macKey...), nil),
		newCBCState(suite, key, append([]byte{}, macKey...), nil)
}

func TestCBCEncryptDecryptRoundTrip(t *testing.T) {
	enc, dec := newTestCBCPair(t)
	header := []byte{byte(RecordTypeApplicationData), 3, 3}
	fragment := []byte("some application data that spans more than one block of plaintext")

	record, err := enc.encrypt(5, header, RecordTypeApplicationData, fragment)
	require.NoError(t, err)

	got, err := dec.decrypt(5, header, RecordTypeApplicationData, record)
	require.NoError(t, err)
	require.Equal(t, fragment, got)
}

func TestCBCDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, dec := newTestCBCPair(t)
	header := []byte{byte(RecordTypeApplicationData), 3, 3}
	record, err := enc.encrypt(1, header, RecordTypeApplicationData, []byte("hello"))
	require.NoError(t, err)

	record[len(record)-1] ^= 0xff
	_, err = dec.decrypt(1, header, RecordTypeApplicationData, record)
	require.Error(t, err)
}

func TestCBCDecryptRejectsWrongSequenceNumber(t *testing.T) {
	enc, dec := newTestCBCPair(t)
	header := []byte{byte(RecordTypeApplicationData), 3, 3}
	record, err := enc.encrypt(1, header, RecordTypeApplicationData, []byte("hello"))
	require.NoError(t, err)

	_, err = dec.decrypt(2, header, RecordTypeApplicationData, record)
	require.Error(t, err)
}

func TestCBCDecryptRejectsShortRecord(t *testing.T) {
	_, dec := newTestCBCPair(t)
	header := []byte{byte(RecordTypeApplicationData), 3, 3}
	_, err := dec.decrypt(1, header, RecordTypeApplicationData, []byte{1, 2, 3})
	require.Error(t, err)
}
