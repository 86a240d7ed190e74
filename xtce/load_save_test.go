package xtce

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roundTripDictionary = `<?xml version="1.0"?>
<SpaceSystem name="RoundTrip">
  <TelemetryMetaData rootContainer="Base">
    <ParameterTypeSet>
      <IntegerParameterType name="u8">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
        <DefaultCalibrator>
          <PolynomialCalibrator>
            <Term exponent="0" coefficient="0"/>
            <Term exponent="1" coefficient="0.5"/>
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
    </ParameterTypeSet>
    <ParameterSet>
      <Parameter name="Counter" parameterTypeRef="u8"/>
      <Parameter name="Mode" parameterTypeRef="mode"/>
    </ParameterSet>
    <ContainerSet>
      <SequenceContainer name="Base">
        <EntryList>
          <ParameterRefEntry parameterRef="Counter"/>
          <ParameterRefEntry parameterRef="Mode"/>
        </EntryList>
      </SequenceContainer>
    </ContainerSet>
  </TelemetryMetaData>
</SpaceSystem>`

func sortedNames(m map[string]*Parameter) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func TestSaveLoadRoundTripPreservesStructure(t *testing.T) {
	original, err := Load(strings.NewReader(roundTripDictionary))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, original))

	reloaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, original.Name, reloaded.Name)
	assert.Equal(t, original.RootContainer, reloaded.RootContainer)
	assert.Equal(t, sortedNames(original.Parameters), sortedNames(reloaded.Parameters))
	assert.Equal(t, original.containerOrder, reloaded.containerOrder)

	origCounter := original.ParameterTypes["u8"].(*IntegerParameterType)
	reloadedCounter := reloaded.ParameterTypes["u8"].(*IntegerParameterType)
	assert.Equal(t, origCounter.Encoding, reloadedCounter.Encoding)
	origCal := origCounter.DefaultCalibrator.(*PolynomialCalibrator)
	reloadedCal := reloadedCounter.DefaultCalibrator.(*PolynomialCalibrator)
	assert.Equal(t, origCal.Coefficients, reloadedCal.Coefficients)

	origMode := original.ParameterTypes["mode"].(*EnumeratedParameterType)
	reloadedMode := reloaded.ParameterTypes["mode"].(*EnumeratedParameterType)
	assert.Equal(t, origMode.Enumeration, reloadedMode.Enumeration)

	origBase := original.Containers["Base"]
	reloadedBase := reloaded.Containers["Base"]
	assert.Equal(t, origBase.Entries, reloadedBase.Entries)
}

func TestSaveOmitsEmptyContextCalibratorList(t *testing.T) {
	def, err := Load(strings.NewReader(roundTripDictionary))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, def))
	assert.NotContains(t, buf.String(), "ContextCalibratorList")
}
