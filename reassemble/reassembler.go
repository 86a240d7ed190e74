// Package reassemble implements the per-APID segment reassembly state
// machine (component J): CCSDS packets whose sequence flags mark them as
// segments of a larger unit are accumulated until a last segment closes
// the unit, and the joined bytes are handed back as a single logical
// packet.
package reassemble

import (
	"fmt"

	"github.com/spacepacket/spp/decode"
)

// SeqFlags is the CCSDS primary header's two-bit segmentation flag.
type SeqFlags int

const (
	Continuation SeqFlags = 0b00
	First        SeqFlags = 0b01
	Last         SeqFlags = 0b10
	Unsegmented  SeqFlags = 0b11
)

const sequenceCountModulus = 1 << 14

type apidState struct {
	accumulating bool
	buf          []byte
	lastSeqCount int
}

// Reassembler tracks one state machine per APID. A zero-value
// Reassembler is ready to use.
type Reassembler struct {
	secondaryHeaderBytes int
	states               map[int]*apidState
	sink                 decode.Sink
}

// New returns a Reassembler that strips secondaryHeaderBytes from the
// front of every continuation and last segment before appending it (the
// secondary header, if any, is only meaningful on the first segment).
// sink, if non-nil, receives OrphanSegment/SequenceGap/UnexpectedStart
// warnings as they are raised.
func New(secondaryHeaderBytes int, sink decode.Sink) *Reassembler {
	return &Reassembler{
		secondaryHeaderBytes: secondaryHeaderBytes,
		states:               make(map[int]*apidState),
		sink:                 sink,
	}
}

// Feed processes one packet's user-data bytes for apid, sequenced at
// seqCount, with the given segmentation flags. It returns the joined bytes
// and true once a Last (or Unsegmented) segment completes a unit;
// otherwise it returns (nil, false) while accumulation continues.
func (r *Reassembler) Feed(apid int, seqCount int, flags SeqFlags, userData []byte) ([]byte, bool, []decode.Warning) {
	var warnings []decode.Warning
	if r.states == nil {
		r.states = make(map[int]*apidState)
	}
	st := r.states[apid]
	if st == nil {
		st = &apidState{}
		r.states[apid] = st
	}

	switch flags {
	case Unsegmented:
		if st.accumulating {
			w := decode.Warning{
				Kind:    decode.UnexpectedStart,
				APID:    apid,
				Message: fmt.Sprintf("unsegmented packet at sequence count %d while still accumulating from %d", seqCount, st.lastSeqCount),
			}
			warnings = append(warnings, w)
			r.report(w)
			st.accumulating = false
			st.buf = nil
		}
		return userData, true, warnings

	case First:
		if st.accumulating {
			w := decode.Warning{
				Kind:    decode.UnexpectedStart,
				APID:    apid,
				Message: fmt.Sprintf("first segment at sequence count %d while still accumulating from %d", seqCount, st.lastSeqCount),
			}
			warnings = append(warnings, w)
			r.report(w)
		}
		st.accumulating = true
		st.buf = append([]byte(nil), userData...)
		st.lastSeqCount = seqCount
		return nil, false, warnings

	case Continuation, Last:
		if !st.accumulating {
			w := decode.Warning{
				Kind:    decode.OrphanSegment,
				APID:    apid,
				Message: fmt.Sprintf("segment at sequence count %d with no in-progress first segment", seqCount),
			}
			warnings = append(warnings, w)
			r.report(w)
			return nil, false, warnings
		}
		if gap := sequenceGap(st.lastSeqCount, seqCount); gap > 1 {
			w := decode.Warning{
				Kind:    decode.SequenceGap,
				APID:    apid,
				Message: fmt.Sprintf("sequence count jumped from %d to %d (gap of %d)", st.lastSeqCount, seqCount, gap-1),
			}
			warnings = append(warnings, w)
			r.report(w)
		}
		body := userData
		if len(body) >= r.secondaryHeaderBytes {
			body = body[r.secondaryHeaderBytes:]
		}
		st.buf = append(st.buf, body...)
		st.lastSeqCount = seqCount
		if flags == Last {
			out := st.buf
			st.accumulating = false
			st.buf = nil
			return out, true, warnings
		}
		return nil, false, warnings

	default:
		return nil, false, warnings
	}
}

func (r *Reassembler) report(w decode.Warning) {
	if r.sink != nil {
		r.sink(w)
	}
}

// sequenceGap returns the forward distance from prev to next modulo 2^14,
// i.e. 1 for consecutive counts and >1 when one or more counts were
// skipped.
func sequenceGap(prev, next int) int {
	d := next - prev
	if d < 0 {
		d += sequenceCountModulus
	}
	return d
}
