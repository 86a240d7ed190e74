// Package decode implements the polymorphic packet decoder (component I):
// given a loaded xtce.Definition and a packet's full raw bytes (primary
// header included), it decodes the header into named parameters, walks
// the container-inheritance graph, decodes each entry in declaration
// order, and produces a Record.
package decode

import (
	"github.com/spacepacket/spp/xtce"
)

// WarningKind is the closed set of non-fatal conditions a decode can
// surface. None of these abort the decode that raised them; they are
// delivered to the caller's sink and also accumulated on the Record.
type WarningKind int

const (
	// ContainerAmbiguity: more than one inheritor's restriction criteria
	// matched; the first in declaration order was selected.
	ContainerAmbiguity WarningKind = iota
	// UnknownEnumValue: a raw value had no matching enumeration entry.
	UnknownEnumValue
	// UnderRun: the selected container's entries consumed fewer bits than
	// the packet holds (the record is still emitted), or, when raised by
	// ccsds.ScanFrames, the stream ended inside a primary header or a
	// declared packet body (that partial packet is not emitted).
	UnderRun
	// OrphanSegment: a continuation or last segment arrived with no
	// matching in-progress first segment for its APID.
	OrphanSegment
	// SequenceGap: consecutive segments for an APID skipped one or more
	// sequence counts.
	SequenceGap
	// UnexpectedStart: a first segment arrived for an APID that already
	// had an in-progress accumulation.
	UnexpectedStart
)

// String renders the warning kind for logging/JSON output.
func (k WarningKind) String() string {
	switch k {
	case ContainerAmbiguity:
		return "ContainerAmbiguity"
	case UnknownEnumValue:
		return "UnknownEnumValue"
	case UnderRun:
		return "UnderRun"
	case OrphanSegment:
		return "OrphanSegment"
	case SequenceGap:
		return "SequenceGap"
	case UnexpectedStart:
		return "UnexpectedStart"
	default:
		return "Unknown"
	}
}

// Warning is one non-fatal diagnostic raised while decoding a packet or
// reassembling its segments.
type Warning struct {
	Kind     WarningKind
	APID     int
	Position int // bit offset within the full packet (primary header included), where applicable
	Message  string
}

// Sink receives warnings as they are raised. A nil Sink is valid; warnings
// are still appended to the Record's Warnings field either way.
type Sink func(Warning)

// entry is one decoded parameter's value, keyed by parameter name.
type entry struct {
	raw        xtce.Value
	derived    xtce.Value
	hasDerived bool
}

// Record is one decoded packet: a name-indexed set of parameter values in
// the order they were decoded, plus the originating header fields and any
// warnings raised while decoding it. APID and SequenceCount are populated
// from the decoded primary header's PKT_APID and SRC_SEQ_CTR parameters,
// which are also present by name among the Record's own values.
type Record struct {
	APID          int
	SequenceCount int
	RawBytes      []byte
	ContainerName string // the most specific (leaf) container selected
	Warnings      []Warning

	order  []string
	values map[string]entry
}

// NewRecord returns an empty Record for a packet's full raw bytes (primary
// header included). APID and SequenceCount are filled in once the
// decoder has decoded the header.
func NewRecord(raw []byte) *Record {
	return &Record{
		RawBytes: raw,
		values:   make(map[string]entry),
	}
}

// Names returns parameter names in the order they were decoded.
func (r *Record) Names() []string {
	return r.order
}

// Value returns the raw and derived value for a decoded parameter name.
// derived equals raw and hasDerived is false for parameter types with no
// calibration or label concept (string, binary).
func (r *Record) Value(name string) (raw, derived xtce.Value, hasDerived, ok bool) {
	e, found := r.values[name]
	if !found {
		return xtce.Value{}, xtce.Value{}, false, false
	}
	return e.raw, e.derived, e.hasDerived, true
}

// Lookup implements xtce.ValueLookup so match criteria and calibrators can
// evaluate against a Record without this package's decoder importing back
// into xtce, nor xtce importing decode.
func (r *Record) Lookup(name string) (raw, derived xtce.Value, ok bool) {
	e, found := r.values[name]
	if !found {
		return xtce.Value{}, xtce.Value{}, false
	}
	if e.hasDerived {
		return e.raw, e.derived, true
	}
	return e.raw, e.raw, true
}

// set records a decoded parameter's value, preserving first-seen order.
func (r *Record) set(name string, raw, derived xtce.Value, hasDerived bool) {
	if _, exists := r.values[name]; !exists {
		r.order = append(r.order, name)
	}
	r.values[name] = entry{raw: raw, derived: derived, hasDerived: hasDerived}
}

// addWarning appends w to both the Record and, if non-nil, reports it to
// sink.
func (r *Record) addWarning(w Warning, sink Sink) {
	r.Warnings = append(r.Warnings, w)
	if sink != nil {
		sink(w)
	}
}
