package bitstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUintAlignedByte(t *testing.T) {
	c := New([]byte{0xDE, 0xAD})
	v, err := c.ReadUint(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDE), v)
	v, err = c.ReadUint(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAD), v)
}

func TestReadUintSubByte(t *testing.T) {
	// 0xB5 = 1011 0101
	c := New([]byte{0xB5})
	v, err := c.ReadUint(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5), v) // 101
	v, err = c.ReadUint(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x15), v) // 10101
}

func TestReadUintCrossesByteBoundary(t *testing.T) {
	c := New([]byte{0x12, 0x34, 0x56})
	v, err := c.ReadUint(12)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x123), v)
	v, err = c.ReadUint(12)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x456), v)
}

func TestReadUintOutOfData(t *testing.T) {
	c := New([]byte{0xFF})
	_, err := c.ReadUint(9)
	assert.ErrorIs(t, err, ErrOutOfData)
}

func TestPeekUintDoesNotAdvance(t *testing.T) {
	c := New([]byte{0xAB, 0xCD})
	v, err := c.PeekUint(0, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAB), v)
	assert.Equal(t, 0, c.Position())
}

func TestReadIntTwosComplement(t *testing.T) {
	c := New([]byte{0xFF}) // -1 in 8-bit two's complement
	v, err := c.ReadInt(8, TwosComplement)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestReadIntSignMagnitude(t *testing.T) {
	c := New([]byte{0x81}) // sign bit set, magnitude 1
	v, err := c.ReadInt(8, SignMagnitude)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestReadIntOnesComplement(t *testing.T) {
	c := New([]byte{0xFE}) // one's complement of 1 is -1
	v, err := c.ReadInt(8, OnesComplement)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestReadBytesSubByteRightPads(t *testing.T) {
	// 5 bits: 10110 -> left-justified MSB first, padded with 3 zero bits
	c := New([]byte{0xB7}) // 1011 0111
	b, err := c.ReadBytes(5)
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, byte(0b10110_000), b[0])
}

func TestReadBytesAligned(t *testing.T) {
	c := New([]byte{0x01, 0x02, 0x03})
	b, err := c.ReadBytes(24)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, b)
}

func TestSkipAndRemaining(t *testing.T) {
	c := New([]byte{0, 0, 0})
	assert.Equal(t, 24, c.Remaining())
	require.NoError(t, c.Skip(10))
	assert.Equal(t, 14, c.Remaining())
	assert.Equal(t, 10, c.Position())
}

func TestSkipOutOfData(t *testing.T) {
	c := New([]byte{0})
	assert.ErrorIs(t, c.Skip(9), ErrOutOfData)
}
