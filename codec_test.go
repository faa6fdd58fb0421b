package tlsengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint(0x0102, 2)
	w.WriteUint(0x030405, 3)
	w.WriteVector(1, []byte("abc"))
	w.WriteVector(2, []byte{})
	w.WriteBytes([]byte("tail"))
	out, err := w.Bytes()
	require.NoError(t, err)

	r := NewReader(out)
	v16, err := r.ReadUint(2)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0102), v16)

	v24, err := r.ReadUint(3)
	require.NoError(t, err)
	require.Equal(t, uint32(0x030405), v24)

	vec, err := r.ReadVector(1, 0, 255)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), vec)

	vec2, err := r.ReadVector(2, 0, 65535)
	require.NoError(t, err)
	require.Empty(t, vec2)

	require.Equal(t, []byte("tail"), r.Remaining())
	_, err = r.ReadUint(4)
	require.NoError(t, err)
	require.NoError(t, r.ExpectEmpty())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadUint(2)
	require.Error(t, err)
}

func TestReaderVectorBounds(t *testing.T) {
	w := NewWriter()
	w.WriteVector(1, []byte("ab"))
	out, err := w.Bytes()
	require.NoError(t, err)

	r := NewReader(out)
	_, err = r.ReadVector(1, 3, 10)
	require.Error(t, err)
}

func TestReaderVectorElements(t *testing.T) {
	w := NewWriter()
	w.WriteVector(2, []byte{1, 2, 3, 4, 5, 6})
	out, err := w.Bytes()
	require.NoError(t, err)

	r := NewReader(out)
	elems, err := r.ReadVectorElements(2, 2)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1, 2}, {3, 4}, {5, 6}}, elems)
}

func TestReaderVectorElementsNotMultiple(t *testing.T) {
	w := NewWriter()
	w.WriteVector(2, []byte{1, 2, 3})
	out, err := w.Bytes()
	require.NoError(t, err)

	r := NewReader(out)
	_, err = r.ReadVectorElements(2, 2)
	require.Error(t, err)
}

func TestExpectEmptyRejectsTrailingBytes(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_, err := r.ReadUint(1)
	require.NoError(t, err)
	require.Error(t, r.ExpectEmpty())
}
