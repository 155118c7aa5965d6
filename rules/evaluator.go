package rules

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Evaluator decides whether a condition holds for a Dataset.
// DependsOn lists the DataPoints whose changes can alter the result; it is
// fixed at construction. Evaluating never clears staleness.
type Evaluator interface {
	Evaluate(ds *Dataset) (bool, error)
	DependsOn() []string
}

// EvaluatorFunc adapts a function with declared dependencies to Evaluator.
type EvaluatorFunc struct {
	Deps []string
	Fn   func(ds *Dataset) (bool, error)
}

func (f EvaluatorFunc) Evaluate(ds *Dataset) (bool, error) { return f.Fn(ds) }
func (f EvaluatorFunc) DependsOn() []string                { return f.Deps }

// StringComparison compares a string DataPoint with a fixed target.
type StringComparison struct {
	DataPoint string
	Target    string
	negate    bool
	deps      []string
}

// StringEquality holds when the DataPoint equals target.
func StringEquality(name, target string, extraDeps ...string) *StringComparison {
	return &StringComparison{
		DataPoint: name,
		Target:    target,
		deps:      append([]string{name}, extraDeps...),
	}
}

// StringInequality holds when the DataPoint does not start with target.
// Only the first len(target) characters are compared, so "HEDGE:123" is
// not unequal to "HEDGE". A shorter value is compared whole.
func StringInequality(name, target string, extraDeps ...string) *StringComparison {
	c := StringEquality(name, target, extraDeps...)
	c.negate = true
	return c
}

func (c *StringComparison) Evaluate(ds *Dataset) (bool, error) {
	dp, err := ds.DataPoint(c.DataPoint)
	if err != nil {
		return false, err
	}
	v, err := dp.StringValue()
	if err != nil {
		return false, err
	}

	if !c.negate {
		return v == c.Target, nil
	}
	if len(v) > len(c.Target) {
		v = v[:len(c.Target)]
	}
	return v != c.Target, nil
}

func (c *StringComparison) DependsOn() []string { return c.deps }

func (c *StringComparison) String() string {
	if c.negate {
		return fmt.Sprintf("%s !^= %q", c.DataPoint, c.Target)
	}
	return fmt.Sprintf("%s == %q", c.DataPoint, c.Target)
}

// ThresholdEvaluator holds when amount < fraction × reference.
type ThresholdEvaluator struct {
	Amount    string
	Fraction  string
	Reference string
}

func Threshold(amount, fraction, reference string) *ThresholdEvaluator {
	return &ThresholdEvaluator{Amount: amount, Fraction: fraction, Reference: reference}
}

// OrderAmountThreshold compares OrderAmount against TriggerThreshold × AvgVolume20D.
func OrderAmountThreshold() *ThresholdEvaluator {
	return Threshold("OrderAmount", "TriggerThreshold", "AvgVolume20D")
}

func (t *ThresholdEvaluator) Evaluate(ds *Dataset) (bool, error) {
	var vals [3]decimal.Decimal
	for i, name := range []string{t.Amount, t.Fraction, t.Reference} {
		dp, err := ds.DataPoint(name)
		if err != nil {
			return false, err
		}
		if vals[i], err = dp.DecimalValue(); err != nil {
			return false, err
		}
	}
	return vals[0].LessThan(vals[1].Mul(vals[2])), nil
}

func (t *ThresholdEvaluator) DependsOn() []string {
	return []string{t.Amount, t.Fraction, t.Reference}
}
