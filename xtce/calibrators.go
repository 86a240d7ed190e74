package xtce

import "fmt"

// Calibrator is the closed set of ways a raw value can be converted to an
// engineering (derived) value.
type Calibrator interface {
	calibrator()
	Calibrate(raw Value) (Value, error)
}

// PolynomialCalibrator evaluates y = sum(Coefficients[i] * x^i).
type PolynomialCalibrator struct {
	Coefficients []float64
}

func (*PolynomialCalibrator) calibrator() {}

// Calibrate implements Calibrator.
func (c *PolynomialCalibrator) Calibrate(raw Value) (Value, error) {
	x, err := raw.Float64()
	if err != nil {
		return Value{}, err
	}
	var y, pow float64 = 0, 1
	for _, coeff := range c.Coefficients {
		y += coeff * pow
		pow *= x
	}
	return FloatValue(y), nil
}

// SplinePoint is one knot of a spline calibration curve.
type SplinePoint struct {
	Raw        float64
	Calibrated float64
}

// SplineOrder selects the interpolation used between adjacent points.
type SplineOrder int

const (
	// ZeroOrderHold holds the calibrated value of the nearest knot at or
	// below the query point.
	ZeroOrderHold SplineOrder = iota
	// LinearInterpolation interpolates linearly between the two
	// surrounding knots.
	LinearInterpolation
)

// ExtrapolationMode selects behavior for raw values outside the spline's
// knot range.
type ExtrapolationMode int

const (
	// ExtrapolateLinear extends the line formed by the two nearest knots.
	ExtrapolateLinear ExtrapolationMode = iota
	// ExtrapolateClamp returns the calibrated value of the nearest knot.
	ExtrapolateClamp
	// ExtrapolateError fails the calibration.
	ExtrapolateError
)

// SplineCalibrator interpolates between Points, sorted ascending by Raw.
// Ties in Raw resolve to the point with the highest index sharing that raw
// value (the last one declared), matching the reference implementation's
// "first index whose raw exceeds the query, minus one" search.
type SplineCalibrator struct {
	Points      []SplinePoint
	Order       SplineOrder
	Extrapolate ExtrapolationMode
}

func (*SplineCalibrator) calibrator() {}

// Calibrate implements Calibrator.
func (c *SplineCalibrator) Calibrate(raw Value) (Value, error) {
	x, err := raw.Float64()
	if err != nil {
		return Value{}, err
	}
	pts := c.Points
	if len(pts) == 0 {
		return Value{}, fmt.Errorf("xtce: spline calibrator has no points")
	}
	if x < pts[0].Raw {
		return c.extrapolate(x, 0, 1)
	}
	if x > pts[len(pts)-1].Raw {
		return c.extrapolate(x, len(pts)-2, len(pts)-1)
	}
	// first index whose raw strictly exceeds x
	firstGreater := len(pts)
	for i, p := range pts {
		if p.Raw > x {
			firstGreater = i
			break
		}
	}
	lo := firstGreater - 1
	if lo < 0 {
		lo = 0
	}
	if lo >= len(pts)-1 {
		return FloatValue(pts[len(pts)-1].Calibrated), nil
	}
	if pts[lo].Raw == x {
		return FloatValue(pts[lo].Calibrated), nil
	}
	return FloatValue(c.interp(pts[lo], pts[lo+1], x)), nil
}

func (c *SplineCalibrator) extrapolate(x float64, lo, hi int) (Value, error) {
	pts := c.Points
	switch c.Extrapolate {
	case ExtrapolateClamp:
		if x < pts[0].Raw {
			return FloatValue(pts[0].Calibrated), nil
		}
		return FloatValue(pts[len(pts)-1].Calibrated), nil
	case ExtrapolateError:
		return Value{}, fmt.Errorf("xtce: raw value %g outside spline domain [%g,%g]", x, pts[0].Raw, pts[len(pts)-1].Raw)
	default: // ExtrapolateLinear
		return FloatValue(c.interp(pts[lo], pts[hi], x)), nil
	}
}

func (c *SplineCalibrator) interp(a, b SplinePoint, x float64) float64 {
	if c.Order == ZeroOrderHold {
		return a.Calibrated
	}
	if b.Raw == a.Raw {
		return a.Calibrated
	}
	frac := (x - a.Raw) / (b.Raw - a.Raw)
	return a.Calibrated + frac*(b.Calibrated-a.Calibrated)
}

// DiscreteCase is one criteria/value pair in a discrete lookup.
type DiscreteCase struct {
	Criterion  MatchCriterion
	Calibrated float64
}

// DiscreteLookupCalibrator evaluates Cases in order and returns the first
// whose criterion matches the in-progress record.
type DiscreteLookupCalibrator struct {
	Cases []DiscreteCase
}

func (*DiscreteLookupCalibrator) calibrator() {}

// Calibrate implements Calibrator; raw is unused directly (the match
// criteria reference already-decoded parameters by name), but is accepted
// to satisfy the Calibrator interface. Evaluation happens in
// CalibrateWithContext, which the decoder calls for this variant.
func (c *DiscreteLookupCalibrator) Calibrate(raw Value) (Value, error) {
	return Value{}, fmt.Errorf("xtce: discrete lookup calibrator requires evaluation context")
}

// CalibrateWithContext evaluates Cases against lookup, first match wins.
func (c *DiscreteLookupCalibrator) CalibrateWithContext(lookup ValueLookup) (Value, error) {
	for _, cs := range c.Cases {
		ok, err := cs.Criterion.Evaluate(lookup)
		if err != nil {
			return Value{}, err
		}
		if ok {
			return FloatValue(cs.Calibrated), nil
		}
	}
	return Value{}, fmt.Errorf("xtce: no discrete lookup case matched")
}

// EnumeratedLookupCalibrator maps a raw integer to a label, mirroring
// EnumeratedParameterType's enumeration list but usable anywhere a
// Calibrator is accepted (e.g. as a context calibrator override).
type EnumeratedLookupCalibrator struct {
	Enumeration []EnumValue
}

func (*EnumeratedLookupCalibrator) calibrator() {}

// Calibrate implements Calibrator.
func (c *EnumeratedLookupCalibrator) Calibrate(raw Value) (Value, error) {
	i, err := raw.Float64()
	if err != nil {
		return Value{}, err
	}
	r := int64(i)
	for _, e := range c.Enumeration {
		if e.Raw == r {
			return StringValue(e.Label), nil
		}
	}
	return Value{}, fmt.Errorf("xtce: %w: raw value %d", ErrUnknownEnumValue, r)
}

// ContextCalibrator gates a Calibrator override behind a MatchCriterion,
// evaluated against already-decoded parameters in declaration order;
// first match wins, falling back to the parameter type's default
// calibrator when none match.
type ContextCalibrator struct {
	Criterion  MatchCriterion
	Calibrator Calibrator
}

// ErrUnknownEnumValue is a warning-level condition: a raw value has no
// enumeration entry.
var ErrUnknownEnumValue = fmt.Errorf("xtce: unknown enumeration value")
