package xtce

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spacepacket/spp/bitstream"
)

// Save writes def back out as an XTCE-shaped document sufficient for
// structural round-trip equality with Load: loading the output of Save
// produces a Definition equal in every field that matters to a decoder
// (types, parameters, containers, calibrators, match criteria). Save does
// not attempt full XML fidelity — comments, processing instructions, and
// exact attribute ordering from whatever tool originally produced a
// document are not preserved, because nothing retains them after Load
// either.
func Save(w io.Writer, def *Definition) error {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&buf, "<SpaceSystem name=%s>\n", quote(def.Name))
	buf.WriteString("  <TelemetryMetaData")
	if def.RootContainer != "" {
		fmt.Fprintf(&buf, " rootContainer=%s", quote(def.RootContainer))
	}
	buf.WriteString(">\n")

	buf.WriteString("    <ParameterTypeSet>\n")
	for _, name := range sortedKeys(def.ParameterTypes) {
		if err := writeParameterType(&buf, def.ParameterTypes[name]); err != nil {
			return err
		}
	}
	buf.WriteString("    </ParameterTypeSet>\n")

	buf.WriteString("    <ParameterSet>\n")
	for _, name := range sortedKeys(def.Parameters) {
		p := def.Parameters[name]
		fmt.Fprintf(&buf, "      <Parameter name=%s parameterTypeRef=%s", quote(p.Name), quote(p.TypeName))
		if p.ShortDescription != "" {
			fmt.Fprintf(&buf, " shortDescription=%s", quote(p.ShortDescription))
		}
		if p.LongDescription != "" {
			fmt.Fprintf(&buf, ">\n        <LongDescription>%s</LongDescription>\n      </Parameter>\n", escapeText(p.LongDescription))
		} else {
			buf.WriteString("/>\n")
		}
	}
	buf.WriteString("    </ParameterSet>\n")

	buf.WriteString("    <ContainerSet>\n")
	for _, name := range def.containerOrder {
		writeSequenceContainer(&buf, def.Containers[name])
	}
	buf.WriteString("    </ContainerSet>\n")

	buf.WriteString("  </TelemetryMetaData>\n")
	buf.WriteString("</SpaceSystem>\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quote(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return `"` + b.String() + `"`
}

func escapeText(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func writeBaseTypeOpenTag(buf *bytes.Buffer, elem string, bt baseType) {
	fmt.Fprintf(buf, "      <%s name=%s", elem, quote(bt.Name))
	if bt.ShortDescription != "" {
		fmt.Fprintf(buf, " shortDescription=%s", quote(bt.ShortDescription))
	}
}

func writeParameterType(buf *bytes.Buffer, t ParameterType) error {
	switch v := t.(type) {
	case *IntegerParameterType:
		writeBaseTypeOpenTag(buf, "IntegerParameterType", v.baseType)
		buf.WriteString(">\n")
		writeUnits(buf, v.Units)
		writeIntegerEncoding(buf, v.Encoding)
		writeCalibrators(buf, v.DefaultCalibrator, v.ContextCalibrators)
		buf.WriteString("      </IntegerParameterType>\n")
	case *FloatParameterType:
		writeBaseTypeOpenTag(buf, "FloatParameterType", v.baseType)
		buf.WriteString(">\n")
		writeUnits(buf, v.Units)
		writeFloatEncoding(buf, v.Encoding)
		writeCalibrators(buf, v.DefaultCalibrator, v.ContextCalibrators)
		buf.WriteString("      </FloatParameterType>\n")
	case *StringParameterType:
		writeBaseTypeOpenTag(buf, "StringParameterType", v.baseType)
		buf.WriteString(">\n")
		writeStringEncoding(buf, v.Encoding)
		buf.WriteString("      </StringParameterType>\n")
	case *BinaryParameterType:
		writeBaseTypeOpenTag(buf, "BinaryParameterType", v.baseType)
		buf.WriteString(">\n")
		writeBinaryEncoding(buf, v.Encoding)
		buf.WriteString("      </BinaryParameterType>\n")
	case *BooleanParameterType:
		writeBaseTypeOpenTag(buf, "BooleanParameterType", v.baseType)
		fmt.Fprintf(buf, " zeroStringValue=%s oneStringValue=%s>\n", quote(v.ZeroLabel), quote(v.OneLabel))
		writeIntegerEncoding(buf, v.Encoding)
		buf.WriteString("      </BooleanParameterType>\n")
	case *EnumeratedParameterType:
		writeBaseTypeOpenTag(buf, "EnumeratedParameterType", v.baseType)
		buf.WriteString(">\n")
		writeIntegerEncoding(buf, v.Encoding)
		buf.WriteString("        <EnumerationList>\n")
		for _, e := range v.Enumeration {
			fmt.Fprintf(buf, "          <Enumeration value=%s label=%s/>\n", quote(strconv.FormatInt(e.Raw, 10)), quote(e.Label))
		}
		buf.WriteString("        </EnumerationList>\n")
		buf.WriteString("      </EnumeratedParameterType>\n")
	case *AbsoluteTimeParameterType:
		writeBaseTypeOpenTag(buf, "AbsoluteTimeParameterType", v.baseType)
		buf.WriteString(writeEpochAttr(v.Epoch, v.EpochDateTime))
		buf.WriteString(">\n        <Encoding>\n")
		if err := writeParameterType(buf, v.Encoding); err != nil {
			return err
		}
		buf.WriteString("        </Encoding>\n      </AbsoluteTimeParameterType>\n")
	case *RelativeTimeParameterType:
		writeBaseTypeOpenTag(buf, "RelativeTimeParameterType", v.baseType)
		buf.WriteString(">\n        <Encoding>\n")
		if err := writeParameterType(buf, v.Encoding); err != nil {
			return err
		}
		buf.WriteString("        </Encoding>\n      </RelativeTimeParameterType>\n")
	default:
		return fmt.Errorf("xtce: unknown parameter type %T", t)
	}
	return nil
}

func writeEpochAttr(epoch TimeEpoch, custom string) string {
	switch epoch {
	case EpochUnix:
		return ` epoch="Unix"`
	case EpochGPS:
		return ` epoch="GPS"`
	case EpochCustom:
		return fmt.Sprintf(" epoch=%s", quote(custom))
	default:
		return ` epoch="TAI"`
	}
}

func writeUnits(buf *bytes.Buffer, units string) {
	if units == "" {
		return
	}
	fmt.Fprintf(buf, "        <UnitSet><Unit>%s</Unit></UnitSet>\n", escapeText(units))
}

func writeIntegerEncoding(buf *bytes.Buffer, enc IntegerEncoding) {
	fmt.Fprintf(buf, "        <IntegerDataEncoding sizeInBits=%s encoding=%s/>\n", quote(strconv.Itoa(enc.SizeInBits)), quote(signedEncodingName(enc.Signed)))
}

func signedEncodingName(s bitstream.SignedEncoding) string {
	switch s {
	case bitstream.TwosComplement:
		return "twosComplement"
	case bitstream.SignMagnitude:
		return "signMagnitude"
	case bitstream.OnesComplement:
		return "onesComplement"
	default:
		return "unsigned"
	}
}

func writeFloatEncoding(buf *bytes.Buffer, enc FloatEncoding) {
	name := "IEEE754"
	if enc.Scheme == MIL1750A {
		name = "MIL1750A"
	}
	fmt.Fprintf(buf, "        <FloatDataEncoding sizeInBits=%s encoding=%s/>\n", quote(strconv.Itoa(enc.SizeInBits)), quote(name))
}

func writeStringEncoding(buf *bytes.Buffer, enc StringEncoding) {
	fmt.Fprintf(buf, "        <StringDataEncoding encoding=%s>\n", quote(charSetName(enc.CharSet)))
	switch enc.Length {
	case FixedLength:
		fmt.Fprintf(buf, "          <Fixed sizeInBits=%s/>\n", quote(strconv.Itoa(enc.SizeInBits)))
	case TerminatedLength:
		fmt.Fprintf(buf, "          <TerminationChar value=%s/>\n", quote(strconv.Itoa(int(enc.Terminator))))
	case PrefixedLength:
		fmt.Fprintf(buf, "          <LeadingSize sizeInBits=%s/>\n", quote(strconv.Itoa(enc.SizeInBits)))
	case DiscreteLookupLength:
		writeDiscreteLengths(buf, enc.DiscreteLengths, enc.DefaultLength)
	}
	buf.WriteString("        </StringDataEncoding>\n")
}

func charSetName(cs CharSet) string {
	switch cs {
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	default:
		return "UTF-8"
	}
}

func writeBinaryEncoding(buf *bytes.Buffer, enc BinaryEncoding) {
	buf.WriteString("        <BinaryDataEncoding>\n          <SizeInBits>\n")
	switch enc.Length {
	case FixedBinaryLength:
		fmt.Fprintf(buf, "            <FixedValue>%d</FixedValue>\n", enc.SizeInBits)
	case DynamicBinaryLength:
		fmt.Fprintf(buf, "            <DynamicValue><ParameterInstanceRef parameterRef=%s/></DynamicValue>\n", quote(enc.LengthParamName))
	case DiscreteLookupBinaryLength:
		writeDiscreteLengths(buf, enc.DiscreteLengths, enc.DefaultLength)
	}
	buf.WriteString("          </SizeInBits>\n        </BinaryDataEncoding>\n")
}

func writeDiscreteLengths(buf *bytes.Buffer, cases []DiscreteLengthCase, defaultLength int) {
	fmt.Fprintf(buf, "          <DiscreteLookupList defaultSizeInBits=%s>\n", quote(strconv.Itoa(defaultLength)))
	for _, c := range cases {
		fmt.Fprintf(buf, "            <DiscreteLookup sizeInBits=%s>\n", quote(strconv.Itoa(c.LengthBits)))
		writeMatchCriterion(buf, c.Criterion, 14)
		buf.WriteString("            </DiscreteLookup>\n")
	}
	buf.WriteString("          </DiscreteLookupList>\n")
}

func writeCalibrators(buf *bytes.Buffer, def Calibrator, ctx []ContextCalibrator) {
	if def != nil {
		buf.WriteString("        <DefaultCalibrator>\n")
		writeCalibrator(buf, def, 10)
		buf.WriteString("        </DefaultCalibrator>\n")
	}
	if len(ctx) == 0 {
		return
	}
	buf.WriteString("        <ContextCalibratorList>\n")
	for _, cc := range ctx {
		buf.WriteString("          <ContextCalibrator>\n")
		writeMatchCriterion(buf, cc.Criterion, 12)
		buf.WriteString("            <Calibrator>\n")
		writeCalibrator(buf, cc.Calibrator, 14)
		buf.WriteString("            </Calibrator>\n")
		buf.WriteString("          </ContextCalibrator>\n")
	}
	buf.WriteString("        </ContextCalibratorList>\n")
}

func writeCalibrator(buf *bytes.Buffer, c Calibrator, indent int) {
	pad := spaces(indent)
	switch v := c.(type) {
	case *PolynomialCalibrator:
		fmt.Fprintf(buf, "%s<PolynomialCalibrator>\n", pad)
		for i, coeff := range v.Coefficients {
			fmt.Fprintf(buf, "%s  <Term exponent=%s coefficient=%s/>\n", pad, quote(strconv.Itoa(i)), quote(strconv.FormatFloat(coeff, 'g', -1, 64)))
		}
		fmt.Fprintf(buf, "%s</PolynomialCalibrator>\n", pad)
	case *SplineCalibrator:
		fmt.Fprintf(buf, "%s<SplineCalibrator order=%s extrapolate=%s>\n", pad, quote(splineOrderName(v.Order)), quote(extrapolateName(v.Extrapolate)))
		for _, p := range v.Points {
			fmt.Fprintf(buf, "%s  <SplinePoint raw=%s calibrated=%s/>\n", pad, quote(strconv.FormatFloat(p.Raw, 'g', -1, 64)), quote(strconv.FormatFloat(p.Calibrated, 'g', -1, 64)))
		}
		fmt.Fprintf(buf, "%s</SplineCalibrator>\n", pad)
	case *DiscreteLookupCalibrator:
		fmt.Fprintf(buf, "%s<DiscreteLookupCalibrator>\n", pad)
		for _, cs := range v.Cases {
			fmt.Fprintf(buf, "%s  <DiscreteLookup calibrated=%s>\n", pad, quote(strconv.FormatFloat(cs.Calibrated, 'g', -1, 64)))
			writeMatchCriterion(buf, cs.Criterion, indent+4)
			fmt.Fprintf(buf, "%s  </DiscreteLookup>\n", pad)
		}
		fmt.Fprintf(buf, "%s</DiscreteLookupCalibrator>\n", pad)
	case *EnumeratedLookupCalibrator:
		fmt.Fprintf(buf, "%s<EnumeratedLookupCalibrator>\n", pad)
		for _, e := range v.Enumeration {
			fmt.Fprintf(buf, "%s  <Enumeration value=%s label=%s/>\n", pad, quote(strconv.FormatInt(e.Raw, 10)), quote(e.Label))
		}
		fmt.Fprintf(buf, "%s</EnumeratedLookupCalibrator>\n", pad)
	}
}

func splineOrderName(o SplineOrder) string {
	if o == LinearInterpolation {
		return "one"
	}
	return "zero"
}

func extrapolateName(e ExtrapolationMode) string {
	switch e {
	case ExtrapolateClamp:
		return "clamp"
	case ExtrapolateError:
		return "error"
	default:
		return "linear"
	}
}

func writeMatchCriterion(buf *bytes.Buffer, m MatchCriterion, indent int) {
	pad := spaces(indent)
	switch v := m.(type) {
	case *Comparison:
		fmt.Fprintf(buf, "%s<Comparison parameterRef=%s comparisonOperator=%s value=%s useCalibratedValue=%s/>\n",
			pad, quote(v.ParameterName), quote(compareOpSymbol(v.Operator)), quote(v.Value.String()), quote(strconv.FormatBool(v.UseCalibrated)))
	case *ComparisonList:
		fmt.Fprintf(buf, "%s<ComparisonList>\n", pad)
		for _, c := range v.Comparisons {
			writeMatchCriterion(buf, c, indent+2)
		}
		fmt.Fprintf(buf, "%s</ComparisonList>\n", pad)
	case *BooleanExpression:
		elem := "ANDedConditions"
		if v.Op == BoolOr {
			elem = "ORedConditions"
		}
		fmt.Fprintf(buf, "%s<%s>\n", pad, elem)
		for _, op := range v.Operands {
			writeMatchCriterion(buf, op, indent+2)
		}
		fmt.Fprintf(buf, "%s</%s>\n", pad, elem)
	}
}

func compareOpSymbol(op CompareOp) string {
	switch op {
	case OpNotEqual:
		return "!="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	default:
		return "=="
	}
}

func writeSequenceContainer(buf *bytes.Buffer, c *SequenceContainer) {
	fmt.Fprintf(buf, "      <SequenceContainer name=%s", quote(c.Name))
	if c.Abstract {
		buf.WriteString(` abstract="true"`)
	}
	if c.ShortDescription != "" {
		fmt.Fprintf(buf, " shortDescription=%s", quote(c.ShortDescription))
	}
	buf.WriteString(">\n")
	if len(c.Entries) > 0 {
		buf.WriteString("        <EntryList>\n")
		for _, e := range c.Entries {
			switch v := e.(type) {
			case ParameterEntry:
				fmt.Fprintf(buf, "          <ParameterRefEntry parameterRef=%s/>\n", quote(v.ParameterName))
			case ContainerEntry:
				fmt.Fprintf(buf, "          <ContainerRefEntry containerRef=%s/>\n", quote(v.ContainerName))
			}
		}
		buf.WriteString("        </EntryList>\n")
	}
	if c.BaseContainer != "" {
		fmt.Fprintf(buf, "        <BaseContainer containerRef=%s>\n", quote(c.BaseContainer))
		if c.RestrictionCriteria != nil {
			buf.WriteString("          <RestrictionCriteria>\n")
			writeMatchCriterion(buf, c.RestrictionCriteria, 12)
			buf.WriteString("          </RestrictionCriteria>\n")
		}
		buf.WriteString("        </BaseContainer>\n")
	}
	buf.WriteString("      </SequenceContainer>\n")
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
