package rules

import (
	"errors"
	"fmt"
)

var (
	ErrDataPointNotFound  = errors.New("datapoint not found")
	ErrDuplicateDataPoint = errors.New("datapoint already exists")
	ErrNotNumeric         = errors.New("value is not numeric")
	ErrUnsupportedValue   = errors.New("unsupported value type")
	ErrNotWritable        = errors.New("datapoint is not writable")
	ErrReentrantExecution = errors.New("ruleset already executing on dataset")
	ErrRuleSetNotFound    = errors.New("ruleset not found")
	ErrDuplicateRuleSet   = errors.New("ruleset already exists")
	ErrDatasetNotFound    = errors.New("dataset not found")
	ErrDuplicateDataset   = errors.New("dataset already exists")
	ErrEngineStopped      = errors.New("rule engine stopped")
)

// EvaluationError reports a condition or action that failed during a
// RuleSet pass. The pass is aborted when one is returned.
type EvaluationError struct {
	Dataset   string
	RuleSet   string
	Rule      string
	Condition string // empty when an action failed
	Action    string // empty when a condition failed
	Err       error
}

func (e *EvaluationError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("dataset %s: ruleset %s: rule %s: action %s: %v", e.Dataset, e.RuleSet, e.Rule, e.Action, e.Err)
	}
	return fmt.Sprintf("dataset %s: ruleset %s: rule %s: condition %s: %v", e.Dataset, e.RuleSet, e.Rule, e.Condition, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
