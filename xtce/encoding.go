package xtce

import (
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/spacepacket/spp/bitstream"
)

// DecodeInteger reads enc.SizeInBits bits from cur and interprets them per
// enc.Signed.
func DecodeInteger(cur *bitstream.Cursor, enc IntegerEncoding) (Value, error) {
	if enc.SizeInBits <= 0 || enc.SizeInBits > 64 {
		return Value{}, fmt.Errorf("%w: integer size %d bits", ErrUnsupportedEncoding, enc.SizeInBits)
	}
	v, err := cur.ReadInt(enc.SizeInBits, enc.Signed)
	if err != nil {
		return Value{}, err
	}
	if enc.Signed == bitstream.Unsigned {
		return UintValue(uint64(v)), nil
	}
	return IntValue(v), nil
}

// DecodeFloat reads enc.SizeInBits bits from cur and interprets them as
// IEEE-754 binary16/32/64, or as MIL-STD-1750A at 32 bits.
func DecodeFloat(cur *bitstream.Cursor, enc FloatEncoding) (Value, error) {
	switch enc.Scheme {
	case IEEE754:
		return decodeIEEE754(cur, enc.SizeInBits)
	case MIL1750A:
		if enc.SizeInBits != 32 {
			return Value{}, fmt.Errorf("%w: MIL-1750A at %d bits", ErrUnsupportedEncoding, enc.SizeInBits)
		}
		return decodeMIL1750A(cur)
	default:
		return Value{}, fmt.Errorf("%w: float scheme %d", ErrUnsupportedEncoding, enc.Scheme)
	}
}

func decodeIEEE754(cur *bitstream.Cursor, sizeBits int) (Value, error) {
	raw, err := cur.ReadUint(sizeBits)
	if err != nil {
		return Value{}, err
	}
	switch sizeBits {
	case 16:
		return FloatValue(float64(math.Float32frombits(halfToSingleBits(uint16(raw))))), nil
	case 32:
		return FloatValue(float64(math.Float32frombits(uint32(raw)))), nil
	case 64:
		return FloatValue(math.Float64frombits(raw)), nil
	default:
		return Value{}, fmt.Errorf("%w: IEEE-754 at %d bits", ErrUnsupportedEncoding, sizeBits)
	}
}

// halfToSingleBits widens an IEEE-754 binary16 bit pattern to the
// equivalent binary32 bit pattern.
func halfToSingleBits(h uint16) uint32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h) & 0x3FF
	switch exp {
	case 0:
		if frac == 0 {
			return sign << 31
		}
		// subnormal half -> normalize into single precision
		e := 0
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3FF
		exp32 := uint32(127 - 15 + e + 1)
		return (sign << 31) | (exp32 << 23) | (frac << 13)
	case 0x1F:
		return (sign << 31) | (0xFF << 23) | (frac << 13)
	default:
		exp32 := exp - 15 + 127
		return (sign << 31) | (exp32 << 23) | (frac << 13)
	}
}

// decodeMIL1750A reads a 32-bit MIL-STD-1750A float: a 24-bit two's
// complement mantissa in bits 31..8, followed by an 8-bit two's complement
// exponent in bits 7..0. value = mantissa * 2^(exponent-23).
func decodeMIL1750A(cur *bitstream.Cursor) (Value, error) {
	raw, err := cur.ReadUint(32)
	if err != nil {
		return Value{}, err
	}
	mantissaRaw := (raw >> 8) & 0xFFFFFF
	exponentRaw := raw & 0xFF
	mantissa := twosComplementInt(mantissaRaw, 24)
	exponent := twosComplementInt(exponentRaw, 8)
	value := float64(mantissa) * math.Pow(2, float64(exponent-23))
	return FloatValue(value), nil
}

func twosComplementInt(raw uint64, bits int) int64 {
	if raw&(1<<(bits-1)) != 0 {
		return int64(raw) - (int64(1) << bits)
	}
	return int64(raw)
}

// DecodeString reads a character-string field per enc, calling lookup to
// resolve discrete-lookup length criteria if needed.
func DecodeString(cur *bitstream.Cursor, enc StringEncoding, lookup ValueLookup) (Value, error) {
	var raw []byte
	var err error
	switch enc.Length {
	case FixedLength:
		raw, err = cur.ReadBytes(enc.SizeInBits)
	case PrefixedLength:
		var n uint64
		n, err = cur.ReadUint(enc.SizeInBits)
		if err == nil {
			raw, err = cur.ReadBytes(int(n) * 8)
		}
	case TerminatedLength:
		raw, err = readTerminated(cur, enc.Terminator)
	case DiscreteLookupLength:
		bits, derr := resolveDiscreteLength(enc.DiscreteLengths, enc.DefaultLength, lookup)
		if derr != nil {
			return Value{}, derr
		}
		raw, err = cur.ReadBytes(bits)
	default:
		return Value{}, fmt.Errorf("%w: string length kind %d", ErrUnsupportedEncoding, enc.Length)
	}
	if err != nil {
		return Value{}, err
	}
	decoded, err := decodeCharSet(raw, enc.CharSet)
	if err != nil {
		return Value{}, err
	}
	return StringValue(decoded), nil
}

func readTerminated(cur *bitstream.Cursor, terminator byte) ([]byte, error) {
	var out []byte
	for {
		b, err := cur.ReadUint(8)
		if err != nil {
			return out, err
		}
		if byte(b) == terminator {
			return out, nil
		}
		out = append(out, byte(b))
	}
}

func decodeCharSet(raw []byte, cs CharSet) (string, error) {
	switch cs {
	case UTF8:
		return string(raw), nil
	case UTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("xtce: utf-16le decode: %w", err)
		}
		return string(out), nil
	case UTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("xtce: utf-16be decode: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: charset %d", ErrUnsupportedEncoding, cs)
	}
}

// DecodeBinary reads an opaque byte field per enc, calling lookup to
// resolve a dynamic or discrete-lookup length.
func DecodeBinary(cur *bitstream.Cursor, enc BinaryEncoding, lookup ValueLookup) (Value, error) {
	switch enc.Length {
	case FixedBinaryLength:
		raw, err := cur.ReadBytes(enc.SizeInBits)
		if err != nil {
			return Value{}, err
		}
		return BytesValue(raw), nil
	case DynamicBinaryLength:
		rawLen, _, ok := lookup.Lookup(enc.LengthParamName)
		if !ok {
			return Value{}, fmt.Errorf("xtce: binary length parameter %q not yet decoded", enc.LengthParamName)
		}
		n, err := rawLen.Float64()
		if err != nil {
			return Value{}, err
		}
		raw, err := cur.ReadBytes(int(n))
		if err != nil {
			return Value{}, err
		}
		return BytesValue(raw), nil
	case DiscreteLookupBinaryLength:
		bits, err := resolveDiscreteLength(enc.DiscreteLengths, enc.DefaultLength, lookup)
		if err != nil {
			return Value{}, err
		}
		raw, err := cur.ReadBytes(bits)
		if err != nil {
			return Value{}, err
		}
		return BytesValue(raw), nil
	default:
		return Value{}, fmt.Errorf("%w: binary length kind %d", ErrUnsupportedEncoding, enc.Length)
	}
}

func resolveDiscreteLength(cases []DiscreteLengthCase, defaultLength int, lookup ValueLookup) (int, error) {
	for _, c := range cases {
		ok, err := c.Criterion.Evaluate(lookup)
		if err != nil {
			return 0, err
		}
		if ok {
			return c.LengthBits, nil
		}
	}
	if defaultLength > 0 {
		return defaultLength, nil
	}
	return 0, fmt.Errorf("xtce: no discrete length case matched and no default length set")
}
