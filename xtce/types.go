package xtce

import "github.com/spacepacket/spp/bitstream"

// ParameterType is the closed set of parameter type kinds an XTCE document
// can declare. Each concrete type below implements it with an unexported
// marker method, so no type outside this package can add a new variant.
type ParameterType interface {
	parameterType()
	TypeName() string
}

type baseType struct {
	Name             string
	ShortDescription string
	LongDescription  string
}

func (t baseType) TypeName() string { return t.Name }

// IntegerParameterType decodes a fixed-width integer, optionally calibrated
// to an engineering value.
type IntegerParameterType struct {
	baseType
	Encoding           IntegerEncoding
	Units              string
	DefaultCalibrator  Calibrator        // nil if uncalibrated
	ContextCalibrators []ContextCalibrator
}

func (*IntegerParameterType) parameterType() {}

// FloatParameterType decodes an IEEE-754 or MIL-STD-1750A float, optionally
// calibrated.
type FloatParameterType struct {
	baseType
	Encoding           FloatEncoding
	Units              string
	DefaultCalibrator  Calibrator
	ContextCalibrators []ContextCalibrator
}

func (*FloatParameterType) parameterType() {}

// StringParameterType decodes a character-string field.
type StringParameterType struct {
	baseType
	Encoding StringEncoding
}

func (*StringParameterType) parameterType() {}

// BinaryParameterType decodes an opaque byte field.
type BinaryParameterType struct {
	baseType
	Encoding BinaryEncoding
}

func (*BinaryParameterType) parameterType() {}

// BooleanParameterType decodes a single-bit-or-wider integer as true/false.
type BooleanParameterType struct {
	baseType
	Encoding  IntegerEncoding
	ZeroLabel string // label for raw value 0, defaults to "False"
	OneLabel  string // label for raw value != 0, defaults to "True"
}

func (*BooleanParameterType) parameterType() {}

// EnumValue is one raw-value-to-label mapping in an enumeration list.
// Duplicate raw values are permitted; the first declared mapping for a raw
// value wins on lookup.
type EnumValue struct {
	Raw   int64
	Label string
}

// EnumeratedParameterType decodes an integer and maps it to a label via an
// enumeration list, independent of the Calibrator sum type (matching
// spec's distinction between calibrated engineering values and
// enumeration label lookup).
type EnumeratedParameterType struct {
	baseType
	Encoding    IntegerEncoding
	Enumeration []EnumValue
	DefaultRaw  *int64 // not set by Load and not consulted when decoding
}

func (*EnumeratedParameterType) parameterType() {}

// Label returns the label for a raw value, honoring first-match-wins over
// duplicate entries, and reports whether a match was found.
func (t *EnumeratedParameterType) Label(raw int64) (string, bool) {
	for _, e := range t.Enumeration {
		if e.Raw == raw {
			return e.Label, true
		}
	}
	return "", false
}

// TimeEpoch names the reference epoch an absolute time parameter type is
// measured from.
type TimeEpoch int

const (
	// EpochTAI1958 is the TAI epoch of 1958-01-01T00:00:00.
	EpochTAI1958 TimeEpoch = iota
	// EpochUnix is the Unix epoch of 1970-01-01T00:00:00 UTC.
	EpochUnix
	// EpochGPS is the GPS epoch of 1980-01-06T00:00:00.
	EpochGPS
	// EpochCustom is an epoch given by EpochDateTime.
	EpochCustom
)

// AbsoluteTimeParameterType decodes a numeric encoding as an offset in
// Units seconds (after calibration, if any) from an epoch.
type AbsoluteTimeParameterType struct {
	baseType
	Encoding      ParameterType // the underlying numeric (integer or float) type
	Epoch         TimeEpoch
	EpochDateTime string // RFC3339, used only when Epoch == EpochCustom
}

func (*AbsoluteTimeParameterType) parameterType() {}

// RelativeTimeParameterType decodes a numeric encoding as a duration in
// Units seconds, relative to another parameter or to packet receipt time.
type RelativeTimeParameterType struct {
	baseType
	Encoding ParameterType
}

func (*RelativeTimeParameterType) parameterType() {}

// Parameter binds a name to a parameter type within a space system.
type Parameter struct {
	Name             string
	TypeName         string
	ShortDescription string
	LongDescription  string
}

// IntegerEncoding describes how to read a fixed-width integer off the bit
// stream.
type IntegerEncoding struct {
	SizeInBits int
	Signed     bitstream.SignedEncoding
}

// FloatScheme names the bit layout used to interpret a float-sized field.
type FloatScheme int

const (
	// IEEE754 is the standard binary16/32/64 layout.
	IEEE754 FloatScheme = iota
	// MIL1750A is the MIL-STD-1750A 32-bit layout.
	MIL1750A
)

// FloatEncoding describes how to read a floating-point field off the bit
// stream.
type FloatEncoding struct {
	SizeInBits int
	Scheme     FloatScheme
}

// CharSet names the character encoding applied to a decoded string's bytes.
type CharSet int

const (
	// UTF8 decodes the raw bytes as UTF-8 (and is a correct interpretation
	// of plain ASCII, which is the common case in telemetry dictionaries).
	UTF8 CharSet = iota
	// UTF16LE decodes the raw bytes as little-endian UTF-16.
	UTF16LE
	// UTF16BE decodes the raw bytes as big-endian UTF-16.
	UTF16BE
)

// StringLengthKind is the closed set of ways a string field's length can be
// determined.
type StringLengthKind int

const (
	// FixedLength strings occupy exactly SizeInBits bits.
	FixedLength StringLengthKind = iota
	// TerminatedLength strings run until a single Terminator byte, which is
	// consumed but not part of the string. Running out of data before the
	// terminator fails with bitstream.ErrOutOfData. Multi-byte terminator
	// sequences are not supported.
	TerminatedLength
	// PrefixedLength strings are preceded by a SizeInBits-wide unsigned
	// integer giving the string's length in bytes.
	PrefixedLength
	// DiscreteLookupLength strings have their length resolved by matching
	// already-decoded parameter values against an ordered list of
	// criteria/length pairs, first match wins.
	DiscreteLookupLength
)

// DiscreteLengthCase is one criteria/length pair in a discrete-lookup
// length determination.
type DiscreteLengthCase struct {
	Criterion MatchCriterion
	LengthBits int
}

// StringEncoding describes how to read a character-string field off the
// bit stream.
type StringEncoding struct {
	CharSet         CharSet
	Length          StringLengthKind
	SizeInBits      int                  // meaning depends on Length
	Terminator      byte                 // used when Length == TerminatedLength
	DiscreteLengths []DiscreteLengthCase // used when Length == DiscreteLookupLength
	DefaultLength   int                  // fallback bits when no discrete case matches
}

// BinaryLengthKind is the closed set of ways a binary field's length can be
// determined.
type BinaryLengthKind int

const (
	// FixedBinaryLength fields occupy exactly SizeInBits bits.
	FixedBinaryLength BinaryLengthKind = iota
	// DynamicBinaryLength fields occupy a number of bits given by the
	// value of another, already-decoded, integer parameter.
	DynamicBinaryLength
	// DiscreteLookupBinaryLength fields have their length resolved by a
	// discrete lookup, identical in structure to DiscreteLookupLength for
	// strings.
	DiscreteLookupBinaryLength
)

// BinaryEncoding describes how to read an opaque byte field off the bit
// stream.
type BinaryEncoding struct {
	Length          BinaryLengthKind
	SizeInBits      int // used when Length == FixedBinaryLength
	LengthParamName string // used when Length == DynamicBinaryLength
	DiscreteLengths []DiscreteLengthCase
	DefaultLength   int
}
