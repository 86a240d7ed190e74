package decode

import (
	"errors"
	"fmt"
	"time"

	"github.com/spacepacket/spp/bitstream"
	"github.com/spacepacket/spp/xtce"
)

// ErrMalformed is returned when a packet's bytes cannot be decoded against
// its selected container: the bit cursor ran out of data, or no container
// could be selected at all. Malformed is fatal for the packet that raised
// it; the caller is expected to skip it and continue with the next one.
var ErrMalformed = errors.New("decode: malformed packet")

// Header field names the decoder always populates on every Record ahead
// of whatever the loaded XTCE document's own entries declare, so that
// restriction criteria and consumers can reference primary-header fields
// — PKT_APID above all, for APID-dependent container dispatch — like any
// other named parameter.
const (
	headerVersionName             = "VERSION"
	headerTypeName                = "TYPE"
	headerSecondaryHeaderFlagName = "SEC_HDR_FLG"
	headerAPIDName                = "PKT_APID"
	headerSeqFlagsName            = "SEQ_FLGS"
	headerSequenceCountName       = "SRC_SEQ_CTR"
	headerPacketLengthName        = "PKT_LEN"
)

// Decoder decodes packets against a single xtce.Definition.
type Decoder struct {
	def  *xtce.Definition
	sink Sink
}

// NewDecoder returns a Decoder bound to def. sink, if non-nil, receives
// every warning raised while decoding; warnings are also always appended
// to the returned Record regardless of sink.
func NewDecoder(def *xtce.Definition, sink Sink) *Decoder {
	return &Decoder{def: def, sink: sink}
}

// Decode decodes raw — a packet's full bytes, 6-byte CCSDS primary header
// included — against d's Definition, starting from RootContainer, and
// returns the resulting Record. The primary header is decoded first, into
// ordinary named parameters (see the header field name constants above);
// APID and SequenceCount on the returned Record come from those decoded
// fields rather than from the caller.
func (d *Decoder) Decode(raw []byte) (*Record, error) {
	if d.def.RootContainer == "" {
		return nil, fmt.Errorf("%w: definition has no root container", ErrMalformed)
	}
	rec := NewRecord(raw)
	cur := bitstream.New(raw)

	if err := d.decodeHeader(cur, rec); err != nil {
		return nil, err
	}

	chain, err := d.selectContainerChain(cur, rec, d.def.RootContainer)
	if err != nil {
		return nil, err
	}
	rec.ContainerName = chain[len(chain)-1]
	d.checkUnderRun(cur, rec)
	return rec, nil
}

// decodeHeader decodes the fixed 48-bit CCSDS primary header into named
// parameters on rec, ahead of whatever the loaded XTCE document's root
// container declares.
func (d *Decoder) decodeHeader(cur *bitstream.Cursor, rec *Record) error {
	fields := [...]struct {
		name string
		bits int
	}{
		{headerVersionName, 3},
		{headerTypeName, 1},
		{headerSecondaryHeaderFlagName, 1},
		{headerAPIDName, 11},
		{headerSeqFlagsName, 2},
		{headerSequenceCountName, 14},
		{headerPacketLengthName, 16},
	}
	values := make(map[string]uint64, len(fields))
	for _, f := range fields {
		v, err := cur.ReadUint(f.bits)
		if err != nil {
			return fmt.Errorf("%w: primary header field %q: %v", ErrMalformed, f.name, err)
		}
		rec.set(f.name, xtce.UintValue(v), xtce.UintValue(v), false)
		values[f.name] = v
	}
	rec.APID = int(values[headerAPIDName])
	rec.SequenceCount = int(values[headerSequenceCountName])
	return nil
}

// checkUnderRun compares bits consumed against the full packet buffer
// once the container chain's entry list is exhausted. Fewer bits consumed
// than the buffer holds is non-fatal: the packet is still emitted with
// what was parsed, alongside an UnderRun warning naming the bits left
// over. Consuming more bits than the buffer holds already fails earlier,
// as ErrOutOfData wrapped into ErrMalformed by decodeParameter.
func (d *Decoder) checkUnderRun(cur *bitstream.Cursor, rec *Record) {
	if rem := cur.Remaining(); rem > 0 {
		rec.addWarning(Warning{
			Kind:     UnderRun,
			APID:     rec.APID,
			Position: cur.Position(),
			Message:  fmt.Sprintf("%d bits unconsumed after entry list exhausted", rem),
		}, d.sink)
	}
}

// selectContainerChain walks the inheritance graph from root, decoding
// each container's own entries before evaluating its inheritors'
// restriction criteria — a later restriction criterion can reference a
// parameter decoded by an earlier container in the chain, so selection
// and entry decoding happen in the same top-down pass.
func (d *Decoder) selectContainerChain(cur *bitstream.Cursor, rec *Record, rootName string) ([]string, error) {
	chain := []string{rootName}
	current := rootName
	for {
		c := d.def.Containers[current]
		if err := d.decodeEntries(cur, rec, c.Entries); err != nil {
			return nil, err
		}
		inheritors := d.def.Inheritors(current)
		if len(inheritors) == 0 {
			if c.Abstract {
				return nil, fmt.Errorf("%w: abstract container %q has no matching inheritor", ErrMalformed, current)
			}
			return chain, nil
		}
		var matches []string
		for _, candidate := range inheritors {
			ic := d.def.Containers[candidate]
			ok, err := evalRestriction(ic, rec)
			if err != nil {
				return nil, err
			}
			if ok {
				matches = append(matches, candidate)
			}
		}
		if len(matches) == 0 {
			if c.Abstract {
				return nil, fmt.Errorf("%w: no inheritor of %q matched its restriction criteria", ErrMalformed, current)
			}
			return chain, nil
		}
		if len(matches) > 1 {
			rec.addWarning(Warning{
				Kind:     ContainerAmbiguity,
				APID:     rec.APID,
				Position: cur.Position(),
				Message:  fmt.Sprintf("containers %v all matched under %q; selected %q by declaration order", matches, current, matches[0]),
			}, d.sink)
		}
		current = matches[0]
		chain = append(chain, current)
	}
}

func evalRestriction(c *xtce.SequenceContainer, lookup xtce.ValueLookup) (bool, error) {
	if c.RestrictionCriteria == nil {
		return true, nil
	}
	return c.RestrictionCriteria.Evaluate(lookup)
}

// decodeEntries decodes a container's own EntryList, splicing in any
// ContainerEntry's entries inline (a textual include, not a new
// inheritance-selection step).
func (d *Decoder) decodeEntries(cur *bitstream.Cursor, rec *Record, entries []xtce.Entry) error {
	for _, e := range entries {
		switch v := e.(type) {
		case xtce.ParameterEntry:
			if err := d.decodeParameter(cur, rec, v.ParameterName); err != nil {
				return err
			}
		case xtce.ContainerEntry:
			included, ok := d.def.Containers[v.ContainerName]
			if !ok {
				return fmt.Errorf("%w: container entry references undefined container %q", ErrMalformed, v.ContainerName)
			}
			if err := d.decodeEntries(cur, rec, included.Entries); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) decodeParameter(cur *bitstream.Cursor, rec *Record, name string) error {
	p, ok := d.def.Parameters[name]
	if !ok {
		return fmt.Errorf("%w: entry references undefined parameter %q", ErrMalformed, name)
	}
	pt, ok := d.def.ParameterTypes[p.TypeName]
	if !ok {
		return fmt.Errorf("%w: parameter %q references undefined type %q", ErrMalformed, name, p.TypeName)
	}
	raw, derived, hasDerived, err := d.decodeScalar(cur, pt, rec)
	if err != nil {
		if errors.Is(err, bitstream.ErrOutOfData) {
			return fmt.Errorf("%w: parameter %q: %v", ErrMalformed, name, err)
		}
		return err
	}
	rec.set(name, raw, derived, hasDerived)
	return nil
}

// decodeScalar decodes a single value of parameter type pt. It is used
// both for top-level named parameters and for the numeric encoding nested
// inside AbsoluteTime/RelativeTime parameter types.
func (d *Decoder) decodeScalar(cur *bitstream.Cursor, pt xtce.ParameterType, rec *Record) (raw, derived xtce.Value, hasDerived bool, err error) {
	switch t := pt.(type) {
	case *xtce.IntegerParameterType:
		raw, err = xtce.DecodeInteger(cur, t.Encoding)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		derived, hasDerived, err = calibrate(raw, t.DefaultCalibrator, t.ContextCalibrators, rec)
		return raw, derived, hasDerived, err
	case *xtce.FloatParameterType:
		raw, err = xtce.DecodeFloat(cur, t.Encoding)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		derived, hasDerived, err = calibrate(raw, t.DefaultCalibrator, t.ContextCalibrators, rec)
		return raw, derived, hasDerived, err
	case *xtce.StringParameterType:
		raw, err = xtce.DecodeString(cur, t.Encoding, rec)
		return raw, raw, false, err
	case *xtce.BinaryParameterType:
		raw, err = xtce.DecodeBinary(cur, t.Encoding, rec)
		return raw, raw, false, err
	case *xtce.BooleanParameterType:
		raw, err = xtce.DecodeInteger(cur, t.Encoding)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		f, _ := raw.Float64()
		label := t.ZeroLabel
		if f != 0 {
			label = t.OneLabel
		}
		return raw, xtce.StringValue(label), true, nil
	case *xtce.EnumeratedParameterType:
		raw, err = xtce.DecodeInteger(cur, t.Encoding)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		f, _ := raw.Float64()
		label, ok := t.Label(int64(f))
		if !ok {
			rec.addWarning(Warning{
				Kind:     UnknownEnumValue,
				APID:     rec.APID,
				Position: cur.Position(),
				Message:  fmt.Sprintf("raw value %d has no enumeration entry in %q", int64(f), t.TypeName()),
			}, d.sink)
			return raw, xtce.Value{}, false, nil
		}
		return raw, xtce.StringValue(label), true, nil
	case *xtce.AbsoluteTimeParameterType:
		innerRaw, innerDerived, innerHas, err := d.decodeScalar(cur, t.Encoding, rec)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		seconds, err := numericValue(innerRaw, innerDerived, innerHas)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		base, err := epochTime(t.Epoch, t.EpochDateTime)
		if err != nil {
			return innerRaw, xtce.Value{}, false, err
		}
		when := base.Add(time.Duration(seconds * float64(time.Second)))
		return innerRaw, xtce.StringValue(when.UTC().Format(time.RFC3339Nano)), true, nil
	case *xtce.RelativeTimeParameterType:
		innerRaw, innerDerived, innerHas, err := d.decodeScalar(cur, t.Encoding, rec)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		seconds, err := numericValue(innerRaw, innerDerived, innerHas)
		if err != nil {
			return xtce.Value{}, xtce.Value{}, false, err
		}
		return innerRaw, xtce.FloatValue(seconds), true, nil
	default:
		return xtce.Value{}, xtce.Value{}, false, fmt.Errorf("%w: parameter type %T", xtce.ErrUnsupportedEncoding, pt)
	}
}

func numericValue(raw, derived xtce.Value, hasDerived bool) (float64, error) {
	if hasDerived {
		return derived.Float64()
	}
	return raw.Float64()
}

func epochTime(epoch xtce.TimeEpoch, custom string) (time.Time, error) {
	switch epoch {
	case xtce.EpochUnix:
		return time.Unix(0, 0).UTC(), nil
	case xtce.EpochGPS:
		return time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC), nil
	case xtce.EpochCustom:
		return time.Parse(time.RFC3339, custom)
	default: // EpochTAI1958
		return time.Date(1958, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
}

// calibrate applies the first matching context calibrator, falling back
// to the default calibrator, and returns hasDerived=false if neither is
// configured (an uncalibrated integer/float parameter).
func calibrate(raw xtce.Value, def xtce.Calibrator, ctx []xtce.ContextCalibrator, lookup xtce.ValueLookup) (xtce.Value, bool, error) {
	for _, cc := range ctx {
		ok, err := cc.Criterion.Evaluate(lookup)
		if err != nil {
			return xtce.Value{}, false, err
		}
		if ok {
			v, err := applyCalibrator(cc.Calibrator, raw, lookup)
			return v, true, err
		}
	}
	if def == nil {
		return xtce.Value{}, false, nil
	}
	v, err := applyCalibrator(def, raw, lookup)
	return v, true, err
}

func applyCalibrator(c xtce.Calibrator, raw xtce.Value, lookup xtce.ValueLookup) (xtce.Value, error) {
	if dl, ok := c.(*xtce.DiscreteLookupCalibrator); ok {
		return dl.CalibrateWithContext(lookup)
	}
	return c.Calibrate(raw)
}
