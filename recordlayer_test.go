package tlsengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordLayerTLSPlaintextRoundTrip(t *testing.T) {
	out := NewRecordLayerTLS(DirectionWrite)
	require.NoError(t, out.WriteRecord(NewTLSPlaintext(RecordTypeApplicationData, out.Epoch(), []byte("hello"))))
	wire := out.DrainOutbound()
	require.NotEmpty(t, wire)

	in := NewRecordLayerTLS(DirectionRead)
	in.PushInbound(wire)
	pt, err := in.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, RecordTypeApplicationData, pt.ContentType())
	require.Equal(t, []byte("hello"), pt.Fragment())
}

func TestRecordLayerTLSReassemblesAcrossPushes(t *testing.T) {
	out := NewRecordLayerTLS(DirectionWrite)
	require.NoError(t, out.WriteRecord(NewTLSPlaintext(RecordTypeApplicationData, out.Epoch(), []byte("split-me"))))
	wire := out.DrainOutbound()

	in := NewRecordLayerTLS(DirectionRead)
	// feed the record one byte at a time, the way a stream socket would
	for i := 0; i < len(wire); i++ {
		in.PushInbound(wire[i : i+1])
		_, err := in.ReadRecord()
		if err == AlertWouldBlock {
			continue
		}
		require.NoError(t, err)
	}
	in2 := NewRecordLayerTLS(DirectionRead)
	in2.PushInbound(wire)
	pt, err := in2.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, []byte("split-me"), pt.Fragment())
}

func TestRecordLayerTLSRejectsOversizedLength(t *testing.T) {
	in := NewRecordLayerTLS(DirectionRead)
	header := []byte{byte(RecordTypeApplicationData), 3, 3, 0xff, 0xff} // declares 65535 bytes
	in.PushInbound(header)
	in.PushInbound(make([]byte, 0xffff))
	_, err := in.ReadRecord()
	require.Error(t, err)
	require.NotEqual(t, AlertWouldBlock, err)
}

func TestRecordLayerDTLSPlaintextRoundTrip(t *testing.T) {
	out := NewRecordLayerDTLS(DirectionWrite)
	require.NoError(t, out.WriteRecord(NewTLSPlaintext(RecordTypeHandshake, out.Epoch(), []byte("dtls-fragment"))))
	wire := out.DrainOutbound()
	require.Len(t, wire, recordHeaderLenDTLS+len("dtls-fragment"))

	in := NewRecordLayerDTLS(DirectionRead)
	in.PushInbound(wire)
	pt, err := in.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, RecordTypeHandshake, pt.ContentType())
	require.Equal(t, []byte("dtls-fragment"), pt.Fragment())
}

func TestRecordLayerDTLSAntiReplayDropsDuplicate(t *testing.T) {
	out := NewRecordLayerDTLS(DirectionWrite)
	require.NoError(t, out.WriteRecord(NewTLSPlaintext(RecordTypeHandshake, out.Epoch(), []byte("one"))))
	wire := out.DrainOutbound()

	in := NewRecordLayerDTLS(DirectionRead)
	in.PushInbound(wire)
	_, err := in.ReadRecord()
	require.NoError(t, err)

	// replay the exact same datagram
	in.PushInbound(append([]byte{}, wire...))
	_, err = in.ReadRecord()
	require.Equal(t, AlertWouldBlock, err)
}
