package xtce

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacepacket/spp/bitstream"
)

func TestDecodeIntegerUnsigned(t *testing.T) {
	cur := bitstream.New([]byte{0xFF})
	v, err := DecodeInteger(cur, IntegerEncoding{SizeInBits: 8, Signed: bitstream.Unsigned})
	require.NoError(t, err)
	assert.Equal(t, KindUint, v.Kind)
	assert.Equal(t, uint64(255), v.U)
}

func TestDecodeIntegerTwosComplement(t *testing.T) {
	cur := bitstream.New([]byte{0xFF})
	v, err := DecodeInteger(cur, IntegerEncoding{SizeInBits: 8, Signed: bitstream.TwosComplement})
	require.NoError(t, err)
	assert.Equal(t, KindInt, v.Kind)
	assert.Equal(t, int64(-1), v.I)
}

func TestDecodeFloatIEEE754Single(t *testing.T) {
	// 1.0f = 0x3F800000
	cur := bitstream.New([]byte{0x3F, 0x80, 0x00, 0x00})
	v, err := DecodeFloat(cur, FloatEncoding{SizeInBits: 32, Scheme: IEEE754})
	require.NoError(t, err)
	f, _ := v.Float64()
	assert.Equal(t, 1.0, f)
}

func TestDecodeFloatIEEE754Half(t *testing.T) {
	// binary16 1.0 = 0x3C00
	cur := bitstream.New([]byte{0x3C, 0x00})
	v, err := DecodeFloat(cur, FloatEncoding{SizeInBits: 16, Scheme: IEEE754})
	require.NoError(t, err)
	f, _ := v.Float64()
	assert.Equal(t, 1.0, f)
}

func TestDecodeFloatMIL1750A(t *testing.T) {
	// mantissa=0x400000 (0.5 normalized), exponent=1 -> 0.5 * 2^(1-23+23)=0.5*2^1=1.0
	// Using formula value = mantissa * 2^(exponent-23); choose mantissa=1<<22 (0x400000), exponent=24
	// 0x400000 as int24 is 4194304; 4194304 * 2^(24-23) = 4194304*2 = 8388608 -- pick simpler case instead.
	// mantissa=1, exponent=23 -> value = 1 * 2^0 = 1.0
	raw := uint32(1)<<8 | uint32(23)
	cur := bitstream.New([]byte{byte(raw >> 24), byte(raw >> 16), byte(raw >> 8), byte(raw)})
	v, err := DecodeFloat(cur, FloatEncoding{SizeInBits: 32, Scheme: MIL1750A})
	require.NoError(t, err)
	f, _ := v.Float64()
	assert.Equal(t, 1.0, f)
}

func TestDecodeStringFixedLength(t *testing.T) {
	cur := bitstream.New([]byte("AB"))
	v, err := DecodeString(cur, StringEncoding{CharSet: UTF8, Length: FixedLength, SizeInBits: 16}, fakeLookup{})
	require.NoError(t, err)
	assert.Equal(t, "AB", v.S)
}

func TestDecodeStringTerminated(t *testing.T) {
	cur := bitstream.New([]byte("hello\x00world"))
	v, err := DecodeString(cur, StringEncoding{CharSet: UTF8, Length: TerminatedLength, Terminator: 0}, fakeLookup{})
	require.NoError(t, err)
	assert.Equal(t, "hello", v.S)
}

func TestDecodeStringPrefixedLength(t *testing.T) {
	cur := bitstream.New([]byte{0x03, 'f', 'o', 'o'})
	v, err := DecodeString(cur, StringEncoding{CharSet: UTF8, Length: PrefixedLength, SizeInBits: 8}, fakeLookup{})
	require.NoError(t, err)
	assert.Equal(t, "foo", v.S)
}

func TestDecodeStringDiscreteLookupLength(t *testing.T) {
	enc := StringEncoding{
		CharSet: UTF8,
		Length:  DiscreteLookupLength,
		DiscreteLengths: []DiscreteLengthCase{
			{Criterion: &Comparison{ParameterName: "Kind", Operator: OpEqual, Value: IntValue(1)}, LengthBits: 24},
		},
		DefaultLength: 8,
	}
	cur := bitstream.New([]byte("xyz"))
	v, err := DecodeString(cur, enc, fakeLookup{"Kind": IntValue(1)})
	require.NoError(t, err)
	assert.Equal(t, "xyz", v.S)
}

func TestDecodeBinaryFixedLength(t *testing.T) {
	cur := bitstream.New([]byte{0xDE, 0xAD})
	v, err := DecodeBinary(cur, BinaryEncoding{Length: FixedBinaryLength, SizeInBits: 16}, fakeLookup{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, v.B)
}

func TestDecodeBinaryDynamicLength(t *testing.T) {
	cur := bitstream.New([]byte{0x01, 0x02, 0x03})
	lookup := fakeLookup{"Len": IntValue(16)}
	v, err := DecodeBinary(cur, BinaryEncoding{Length: DynamicBinaryLength, LengthParamName: "Len"}, lookup)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, v.B)
}

func TestDecodeBinaryDynamicLengthMissingParameter(t *testing.T) {
	cur := bitstream.New([]byte{0x01})
	_, err := DecodeBinary(cur, BinaryEncoding{Length: DynamicBinaryLength, LengthParamName: "Missing"}, fakeLookup{})
	assert.Error(t, err)
}

func TestHalfToSingleBitsZeroAndInfinity(t *testing.T) {
	assert.Equal(t, uint32(0), halfToSingleBits(0))
	inf := halfToSingleBits(0x7C00)
	assert.True(t, math.IsInf(float64(math.Float32frombits(inf)), 1))
}
