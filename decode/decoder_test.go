package decode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacepacket/spp/xtce"
)

func loadTestDefinition(t *testing.T, xml string) *xtce.Definition {
	t.Helper()
	def, err := xtce.Load(strings.NewReader(xml))
	require.NoError(t, err)
	return def
}

// buildHeader encodes a 6-byte CCSDS primary header with version, type,
// and secondary-header flag all zero, for test packets that only care
// about apid/seqFlags/seqCount/pktLen.
func buildHeader(apid, seqFlags, seqCount, pktLen int) []byte {
	b := make([]byte, 6)
	w0 := uint16(apid & 0x7FF)
	b[0] = byte(w0 >> 8)
	b[1] = byte(w0)
	w1 := uint16((seqFlags&0x3)<<14 | (seqCount & 0x3FFF))
	b[2] = byte(w1 >> 8)
	b[3] = byte(w1)
	b[4] = byte(pktLen >> 8)
	b[5] = byte(pktLen)
	return b
}

func packet(header []byte, userData ...byte) []byte {
	return append(append([]byte(nil), header...), userData...)
}

const basicDictionary = `<?xml version="1.0"?>
<SpaceSystem name="Test">
  <TelemetryMetaData>
    <ParameterTypeSet>
      <IntegerParameterType name="u8">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
      </IntegerParameterType>
      <IntegerParameterType name="u8calibrated">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
        <DefaultCalibrator>
          <PolynomialCalibrator>
            <Term exponent="0" coefficient="0"/>
            <Term exponent="1" coefficient="2"/>
          </PolynomialCalibrator>
        </DefaultCalibrator>
      </IntegerParameterType>
      <EnumeratedParameterType name="mode">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
        <EnumerationList>
          <Enumeration value="0" label="OFF"/>
          <Enumeration value="1" label="ON"/>
        </EnumerationList>
      </EnumeratedParameterType>
      <BooleanParameterType name="flag" zeroStringValue="NO" oneStringValue="YES">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
      </BooleanParameterType>
    </ParameterTypeSet>
    <ParameterSet>
      <Parameter name="APID" parameterTypeRef="u8"/>
      <Parameter name="Counter" parameterTypeRef="u8calibrated"/>
      <Parameter name="Mode" parameterTypeRef="mode"/>
      <Parameter name="Flag" parameterTypeRef="flag"/>
    </ParameterSet>
    <ContainerSet>
      <SequenceContainer name="Base" abstract="true">
        <EntryList>
          <ParameterRefEntry parameterRef="APID"/>
        </EntryList>
      </SequenceContainer>
      <SequenceContainer name="Telemetry">
        <EntryList>
          <ParameterRefEntry parameterRef="Counter"/>
          <ParameterRefEntry parameterRef="Mode"/>
          <ParameterRefEntry parameterRef="Flag"/>
        </EntryList>
        <BaseContainer containerRef="Base">
          <RestrictionCriteria>
            <Comparison parameterRef="APID" value="1" comparisonOperator="=="/>
          </RestrictionCriteria>
        </BaseContainer>
      </SequenceContainer>
    </ContainerSet>
  </TelemetryMetaData>
</SpaceSystem>`

func TestDecoderDecodesCalibratedAndEnumeratedAndBoolean(t *testing.T) {
	def := loadTestDefinition(t, basicDictionary)
	def.RootContainer = "Base"

	dec := NewDecoder(def, nil)
	raw := packet(buildHeader(11, 3, 0, 3), 0x01, 0x05, 0x01, 0x01)
	rec, err := dec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Telemetry", rec.ContainerName)
	assert.Empty(t, rec.Warnings)

	raw0, derived, hasDerived, ok := rec.Value("Counter")
	require.True(t, ok)
	require.True(t, hasDerived)
	f, _ := raw0.Float64()
	assert.Equal(t, 5.0, f)
	df, _ := derived.Float64()
	assert.Equal(t, 10.0, df)

	_, derived, hasDerived, ok = rec.Value("Mode")
	require.True(t, ok)
	require.True(t, hasDerived)
	assert.Equal(t, "ON", derived.String())

	_, derived, hasDerived, ok = rec.Value("Flag")
	require.True(t, ok)
	require.True(t, hasDerived)
	assert.Equal(t, "YES", derived.String())
}

func TestDecoderDecodesPrimaryHeaderAsNamedParameters(t *testing.T) {
	def := loadTestDefinition(t, basicDictionary)
	def.RootContainer = "Base"

	dec := NewDecoder(def, nil)
	raw := packet(buildHeader(11, 3, 42, 3), 0x01, 0x05, 0x01, 0x01)
	rec, err := dec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, 11, rec.APID)
	assert.Equal(t, 42, rec.SequenceCount)

	for _, tc := range []struct {
		name string
		want float64
	}{
		{headerVersionName, 0},
		{headerTypeName, 0},
		{headerSecondaryHeaderFlagName, 0},
		{headerAPIDName, 11},
		{headerSeqFlagsName, 3},
		{headerSequenceCountName, 42},
		{headerPacketLengthName, 3},
	} {
		raw, _, _, ok := rec.Value(tc.name)
		require.True(t, ok, "missing header field %q", tc.name)
		f, err := raw.Float64()
		require.NoError(t, err)
		assert.Equal(t, tc.want, f, "header field %q", tc.name)
	}
}

func TestDecoderUnknownEnumValueWarns(t *testing.T) {
	def := loadTestDefinition(t, basicDictionary)
	def.RootContainer = "Base"

	var warnings []Warning
	dec := NewDecoder(def, func(w Warning) { warnings = append(warnings, w) })
	raw := packet(buildHeader(11, 3, 0, 3), 0x01, 0x05, 0x09, 0x01)
	rec, err := dec.Decode(raw)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, UnknownEnumValue, warnings[0].Kind)
	assert.Contains(t, rec.Warnings, warnings[0])

	_, _, hasDerived, ok := rec.Value("Mode")
	require.True(t, ok)
	assert.False(t, hasDerived)
}

func TestDecoderMalformedPacketOutOfData(t *testing.T) {
	def := loadTestDefinition(t, basicDictionary)
	def.RootContainer = "Base"

	dec := NewDecoder(def, nil)
	raw := packet(buildHeader(11, 3, 0, 1), 0x01, 0x05)
	_, err := dec.Decode(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecoderMalformedOnTruncatedHeader(t *testing.T) {
	def := loadTestDefinition(t, basicDictionary)
	def.RootContainer = "Base"

	dec := NewDecoder(def, nil)
	_, err := dec.Decode([]byte{0x00, 0x0B, 0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecoderUnderRunWarning(t *testing.T) {
	def := loadTestDefinition(t, basicDictionary)
	def.RootContainer = "Base"

	var warnings []Warning
	dec := NewDecoder(def, func(w Warning) { warnings = append(warnings, w) })
	// Two trailing bytes beyond what Base+Telemetry's entries consume:
	// 48 header bits + 32 entry bits consumed out of 96 bits available.
	raw := packet(buildHeader(11, 3, 0, 5), 0x01, 0x05, 0x01, 0x01, 0xFF, 0xFF)
	rec, err := dec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Telemetry", rec.ContainerName)

	require.Len(t, warnings, 1)
	assert.Equal(t, UnderRun, warnings[0].Kind)
	assert.Contains(t, warnings[0].Message, "16")
}

const ambiguousDictionary = `<?xml version="1.0"?>
<SpaceSystem name="Test">
  <TelemetryMetaData>
    <ParameterTypeSet>
      <IntegerParameterType name="u8">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
      </IntegerParameterType>
    </ParameterTypeSet>
    <ParameterSet>
      <Parameter name="APID" parameterTypeRef="u8"/>
    </ParameterSet>
    <ContainerSet>
      <SequenceContainer name="Base" abstract="true">
        <EntryList>
          <ParameterRefEntry parameterRef="APID"/>
        </EntryList>
      </SequenceContainer>
      <SequenceContainer name="First">
        <BaseContainer containerRef="Base">
          <RestrictionCriteria>
            <Comparison parameterRef="APID" value="1" comparisonOperator=">="/>
          </RestrictionCriteria>
        </BaseContainer>
      </SequenceContainer>
      <SequenceContainer name="Second">
        <BaseContainer containerRef="Base">
          <RestrictionCriteria>
            <Comparison parameterRef="APID" value="1" comparisonOperator=">="/>
          </RestrictionCriteria>
        </BaseContainer>
      </SequenceContainer>
    </ContainerSet>
  </TelemetryMetaData>
</SpaceSystem>`

func TestDecoderAmbiguousContainersResolveToFirstDeclared(t *testing.T) {
	def := loadTestDefinition(t, ambiguousDictionary)
	def.RootContainer = "Base"

	var warnings []Warning
	dec := NewDecoder(def, func(w Warning) { warnings = append(warnings, w) })
	raw := packet(buildHeader(11, 3, 0, 0), 0x05)
	rec, err := dec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "First", rec.ContainerName)

	require.Len(t, warnings, 1)
	assert.Equal(t, ContainerAmbiguity, warnings[0].Kind)
}
