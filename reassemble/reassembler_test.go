package reassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacepacket/spp/decode"
)

func TestReassemblerUnsegmentedPassesThrough(t *testing.T) {
	r := New(0, nil)
	out, complete, warnings := r.Feed(1, 0, Unsegmented, []byte{1, 2, 3})
	assert.True(t, complete)
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.Empty(t, warnings)
}

func TestReassemblerFirstContinuationLast(t *testing.T) {
	r := New(0, nil)

	out, complete, warnings := r.Feed(1, 0, First, []byte{0xAA})
	assert.False(t, complete)
	assert.Nil(t, out)
	assert.Empty(t, warnings)

	out, complete, warnings = r.Feed(1, 1, Continuation, []byte{0xBB})
	assert.False(t, complete)
	assert.Nil(t, out)
	assert.Empty(t, warnings)

	out, complete, warnings = r.Feed(1, 2, Last, []byte{0xCC})
	require.True(t, complete)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, out)
	assert.Empty(t, warnings)
}

func TestReassemblerStripsSecondaryHeaderFromContinuationAndLast(t *testing.T) {
	r := New(2, nil)

	_, complete, _ := r.Feed(1, 0, First, []byte{0x01, 0x02, 0x03})
	assert.False(t, complete)

	// Continuation and Last segments carry a 2-byte secondary header that
	// must be stripped before appending.
	out, complete, _ := r.Feed(1, 1, Last, []byte{0xFF, 0xFF, 0x04, 0x05})
	require.True(t, complete)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, out)
}

func TestReassemblerOrphanContinuation(t *testing.T) {
	r := New(0, nil)
	out, complete, warnings := r.Feed(1, 5, Continuation, []byte{0x01})
	assert.False(t, complete)
	assert.Nil(t, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, decode.OrphanSegment, warnings[0].Kind)
}

func TestReassemblerOrphanLast(t *testing.T) {
	r := New(0, nil)
	out, complete, warnings := r.Feed(1, 5, Last, []byte{0x01})
	assert.False(t, complete)
	assert.Nil(t, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, decode.OrphanSegment, warnings[0].Kind)
}

func TestReassemblerUnexpectedStart(t *testing.T) {
	r := New(0, nil)
	_, complete, warnings := r.Feed(1, 0, First, []byte{0x01})
	require.False(t, complete)
	require.Empty(t, warnings)

	_, complete, warnings = r.Feed(1, 1, First, []byte{0x02})
	assert.False(t, complete)
	require.Len(t, warnings, 1)
	assert.Equal(t, decode.UnexpectedStart, warnings[0].Kind)
}

func TestReassemblerUnsegmentedWhileAccumulatingEmitsPartialAndResets(t *testing.T) {
	r := New(0, nil)
	_, complete, warnings := r.Feed(1, 0, First, []byte{0x01})
	require.False(t, complete)
	require.Empty(t, warnings)

	out, complete, warnings := r.Feed(1, 1, Unsegmented, []byte{0xAA, 0xBB})
	require.True(t, complete)
	assert.Equal(t, []byte{0xAA, 0xBB}, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, decode.UnexpectedStart, warnings[0].Kind)

	// State must be clean afterward: a later Continuation for the APID
	// is an orphan, not a corrupt append onto the dropped accumulator.
	out, complete, warnings = r.Feed(1, 2, Continuation, []byte{0xCC})
	assert.False(t, complete)
	assert.Nil(t, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, decode.OrphanSegment, warnings[0].Kind)
}

func TestReassemblerSequenceGap(t *testing.T) {
	r := New(0, nil)
	_, complete, _ := r.Feed(1, 0, First, []byte{0x01})
	require.False(t, complete)

	out, complete, warnings := r.Feed(1, 5, Last, []byte{0x02})
	require.True(t, complete)
	assert.Equal(t, []byte{0x01, 0x02}, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, decode.SequenceGap, warnings[0].Kind)
}

func TestReassemblerSequenceCountWrapsModulo2Pow14(t *testing.T) {
	r := New(0, nil)
	_, complete, _ := r.Feed(1, sequenceCountModulus-1, First, []byte{0x01})
	require.False(t, complete)

	// Wrapping from 16383 to 0 is a consecutive pair, not a gap.
	out, complete, warnings := r.Feed(1, 0, Last, []byte{0x02})
	require.True(t, complete)
	assert.Equal(t, []byte{0x01, 0x02}, out)
	assert.Empty(t, warnings)
}

func TestReassemblerIndependentStatePerAPID(t *testing.T) {
	r := New(0, nil)
	_, complete, _ := r.Feed(1, 0, First, []byte{0x01})
	require.False(t, complete)

	// A First segment on a different APID must not collide with APID 1's
	// in-progress accumulation.
	_, complete, warnings := r.Feed(2, 0, First, []byte{0x02})
	assert.False(t, complete)
	assert.Empty(t, warnings)

	out, complete, _ := r.Feed(1, 1, Last, []byte{0x03})
	require.True(t, complete)
	assert.Equal(t, []byte{0x01, 0x03}, out)
}

func TestReassemblerReportsToSink(t *testing.T) {
	var got []decode.Warning
	r := New(0, func(w decode.Warning) { got = append(got, w) })
	r.Feed(1, 5, Continuation, []byte{0x01})
	require.Len(t, got, 1)
	assert.Equal(t, decode.OrphanSegment, got[0].Kind)
}
