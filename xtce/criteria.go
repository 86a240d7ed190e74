package xtce

import "fmt"

// ValueLookup is implemented by whatever is accumulating a packet's decoded
// parameters (decode.Record), so match-criteria evaluation in this package
// never needs to import the decode package.
type ValueLookup interface {
	// Lookup returns the raw and, if calibrated, derived value most
	// recently decoded for name, and whether it has been decoded at all.
	Lookup(name string) (raw, derived Value, ok bool)
}

// CompareOp is the closed set of comparison operators a Comparison can use.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
)

// MatchCriterion is the closed set of ways a restriction or calibration
// context can be gated on already-decoded parameter values.
type MatchCriterion interface {
	matchCriterion()
	// Evaluate reports whether the criterion holds against lookup.
	Evaluate(lookup ValueLookup) (bool, error)
}

// Comparison tests a single named parameter's value against a constant.
type Comparison struct {
	ParameterName string
	Operator      CompareOp
	Value         Value
	UseCalibrated bool
}

func (*Comparison) matchCriterion() {}

// Evaluate implements MatchCriterion.
func (c *Comparison) Evaluate(lookup ValueLookup) (bool, error) {
	raw, derived, ok := lookup.Lookup(c.ParameterName)
	if !ok {
		return false, fmt.Errorf("xtce: comparison references %q, not yet decoded", c.ParameterName)
	}
	actual := raw
	if c.UseCalibrated {
		actual = derived
	}
	cmp, err := actual.Compare(c.Value)
	if err != nil {
		if c.Operator == OpEqual {
			return actual.Equal(c.Value), nil
		}
		if c.Operator == OpNotEqual {
			return !actual.Equal(c.Value), nil
		}
		return false, err
	}
	switch c.Operator {
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	case OpLessThan:
		return cmp < 0, nil
	case OpLessThanOrEqual:
		return cmp <= 0, nil
	case OpGreaterThan:
		return cmp > 0, nil
	case OpGreaterThanOrEqual:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("xtce: unknown comparison operator %d", c.Operator)
	}
}

// ComparisonList is an implicit AND of its Comparisons.
type ComparisonList struct {
	Comparisons []*Comparison
}

func (*ComparisonList) matchCriterion() {}

// Evaluate implements MatchCriterion.
func (c *ComparisonList) Evaluate(lookup ValueLookup) (bool, error) {
	for _, cmp := range c.Comparisons {
		ok, err := cmp.Evaluate(lookup)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// BoolOp names whether a BooleanExpression's Operands combine with AND or
// OR semantics.
type BoolOp int

const (
	BoolAnd BoolOp = iota
	BoolOr
)

// BooleanExpression is a nested AND/OR tree of MatchCriterion operands,
// letting a restriction criterion express arbitrary boolean combinations
// of comparisons and sub-expressions.
type BooleanExpression struct {
	Op       BoolOp
	Operands []MatchCriterion
}

func (*BooleanExpression) matchCriterion() {}

// Evaluate implements MatchCriterion.
func (b *BooleanExpression) Evaluate(lookup ValueLookup) (bool, error) {
	if len(b.Operands) == 0 {
		return true, nil
	}
	switch b.Op {
	case BoolAnd:
		for _, op := range b.Operands {
			ok, err := op.Evaluate(lookup)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case BoolOr:
		for _, op := range b.Operands {
			ok, err := op.Evaluate(lookup)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("xtce: unknown boolean operator %d", b.Op)
	}
}
