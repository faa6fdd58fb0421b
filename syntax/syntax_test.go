package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type simpleMessage struct {
	Type    uint8
	Version uint16
	Data    []byte `tls:"head=2"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := simpleMessage{Type: 1, Version: 0x0303, Data: []byte("hello")}
	wire, err := Marshal(&in)
	require.NoError(t, err)

	var out simpleMessage
	n, err := Unmarshal(wire, &out)
	require.NoError(t, err)
	require.Equal(t, len(wire), n)
	require.Equal(t, in, out)
}

type nestedList struct {
	Count uint8
	Items []simpleMessage `tls:"head=2"`
}

func TestMarshalUnmarshalNestedSlice(t *testing.T) {
	in := nestedList{
		Count: 2,
		Items: []simpleMessage{
			{Type: 1, Version: 0x0301, Data: []byte("a")},
			{Type: 2, Version: 0x0303, Data: []byte("bc")},
		},
	}
	wire, err := Marshal(&in)
	require.NoError(t, err)

	var out nestedList
	_, err = Unmarshal(wire, &out)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

type boundedVector struct {
	Body []byte `tls:"head=1,min=2,max=4"`
}

func TestMarshalRejectsBodyBelowMinimum(t *testing.T) {
	_, err := Marshal(&boundedVector{Body: []byte{1}})
	require.Error(t, err)
}

func TestMarshalRejectsBodyAboveMaximum(t *testing.T) {
	_, err := Marshal(&boundedVector{Body: []byte{1, 2, 3, 4, 5}})
	require.Error(t, err)
}

func TestUnmarshalRejectsLengthBelowMinimum(t *testing.T) {
	// head=1 byte declaring length 1, which is below min=2
	_, err := Unmarshal([]byte{1, 0xff}, &boundedVector{})
	require.Error(t, err)
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	var out simpleMessage
	_, err := Unmarshal([]byte{1, 0x03}, &out)
	require.Error(t, err)
}

func TestUnmarshalRequiresPointer(t *testing.T) {
	var out simpleMessage
	_, err := Unmarshal([]byte{1}, out)
	require.Error(t, err)
}

type fixedArray struct {
	ID [4]byte
}

func TestMarshalUnmarshalFixedArray(t *testing.T) {
	in := fixedArray{ID: [4]byte{9, 8, 7, 6}}
	wire, err := Marshal(&in)
	require.NoError(t, err)
	require.Len(t, wire, 4)

	var out fixedArray
	_, err = Unmarshal(wire, &out)
	require.NoError(t, err)
	require.Equal(t, in, out)
}
