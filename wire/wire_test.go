package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderUint16RoundTrip(t *testing.T) {
	w := NewWriter(4)
	w.Uint16(0xCDC5)
	r := NewReader(w.Finish())
	v, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0xCDC5), v)
}

func TestReaderTooShort(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.Uint16()
	require.ErrorIs(t, err, ErrTooShort)
}

func TestPackBitsLSBFirst(t *testing.T) {
	// ON, OFF, ON, ON, OFF, OFF, OFF, OFF, ON -> byte0=0b00001101, byte1=0b00000001
	values := []bool{true, false, true, true, false, false, false, false, true}
	packed := PackBits(values)
	require.Equal(t, []byte{0x0D, 0x01}, packed)
}

func TestUnpackBitsRoundTrip(t *testing.T) {
	values := []bool{true, false, true, true, false, true, false, false, true, false}
	packed := PackBits(values)
	got := UnpackBits(packed, len(values))
	require.Equal(t, values, got)
}

func TestByteCountForBits(t *testing.T) {
	require.Equal(t, 1, ByteCountForBits(1))
	require.Equal(t, 1, ByteCountForBits(8))
	require.Equal(t, 2, ByteCountForBits(9))
	require.Equal(t, 250, ByteCountForBits(2000))
}
