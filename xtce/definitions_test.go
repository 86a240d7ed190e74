package xtce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacepacket/spp/bitstream"
)

func intType(name string) *IntegerParameterType {
	return &IntegerParameterType{baseType: baseType{Name: name}, Encoding: IntegerEncoding{SizeInBits: 8, Signed: bitstream.Unsigned}}
}

func TestDefinitionAddContainerTracksDeclarationOrder(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addContainer(&SequenceContainer{Name: "Base", Abstract: true}))
	require.NoError(t, def.addContainer(&SequenceContainer{Name: "First", BaseContainer: "Base"}))
	require.NoError(t, def.addContainer(&SequenceContainer{Name: "Second", BaseContainer: "Base"}))
	assert.Equal(t, []string{"First", "Second"}, def.Inheritors("Base"))
}

func TestDefinitionAddContainerDuplicateName(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addContainer(&SequenceContainer{Name: "A"}))
	err := def.addContainer(&SequenceContainer{Name: "A"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestDefinitionValidateDanglingParameterType(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addParameter(&Parameter{Name: "X", TypeName: "Missing"}))
	err := def.validate()
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestDefinitionValidateDanglingContainerEntry(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addContainer(&SequenceContainer{
		Name:    "Base",
		Entries: []Entry{ParameterEntry{ParameterName: "Missing"}},
	}))
	err := def.validate()
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestDefinitionValidateCyclicInheritance(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addContainer(&SequenceContainer{Name: "A", BaseContainer: "B"}))
	require.NoError(t, def.addContainer(&SequenceContainer{Name: "B", BaseContainer: "A"}))
	err := def.validate()
	assert.ErrorIs(t, err, ErrCyclicInheritance)
}

func TestDefinitionValidateRootContainerMustExist(t *testing.T) {
	def := newDefinition()
	def.RootContainer = "Nope"
	err := def.validate()
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestDefinitionValidateAbsoluteTimeRequiresNumericBacking(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addParameterType(&StringParameterType{baseType: baseType{Name: "Str"}, Encoding: StringEncoding{Length: FixedLength, SizeInBits: 8}}))
	require.NoError(t, def.addParameterType(&AbsoluteTimeParameterType{baseType: baseType{Name: "T"}, Encoding: def.ParameterTypes["Str"]}))
	err := def.validate()
	assert.Error(t, err)
}

func TestDefinitionValidateHappyPath(t *testing.T) {
	def := newDefinition()
	require.NoError(t, def.addParameterType(intType("u8")))
	require.NoError(t, def.addParameter(&Parameter{Name: "Counter", TypeName: "u8"}))
	require.NoError(t, def.addContainer(&SequenceContainer{
		Name:    "Base",
		Entries: []Entry{ParameterEntry{ParameterName: "Counter"}},
	}))
	def.RootContainer = "Base"
	assert.NoError(t, def.validate())
}
