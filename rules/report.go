package rules

import "time"

// ActionOutcome is the result of one Action invoked by a firing Rule.
type ActionOutcome struct {
	Action string `json:"action"`
	ActionResult
}

// RuleResult describes one evaluated Rule.
type RuleResult struct {
	Rule    string          `json:"rule"`
	Fired   bool            `json:"fired"`
	Stopped string          `json:"stopped_at,omitempty"` // first condition that did not hold
	Actions []ActionOutcome `json:"actions,omitempty"`
}

// ExecutionReport contains the outcome of one RuleSet pass.
type ExecutionReport struct {
	RuleSet  string        `json:"ruleset"`
	Dataset  string        `json:"dataset"`
	Changed  []string      `json:"changed,omitempty"` // stale DataPoints that selected rules
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Rules    []RuleResult  `json:"rules"`
}

// Fired returns the names of the rules that fired, in order.
func (r *ExecutionReport) Fired() []string {
	var fired []string
	for _, rr := range r.Rules {
		if rr.Fired {
			fired = append(fired, rr.Rule)
		}
	}
	return fired
}

// ConditionResult is one condition's outcome in a dry run.
type ConditionResult struct {
	Condition string   `json:"condition"`
	DependsOn []string `json:"depends_on"`
	Held      bool     `json:"held"`
	Error     string   `json:"error,omitempty"`
}

// RuleExplanation lists every condition of a Rule with its outcome.
type RuleExplanation struct {
	Rule       string            `json:"rule"`
	WouldFire  bool              `json:"would_fire"`
	Conditions []ConditionResult `json:"conditions"`
	Actions    []string          `json:"actions"`
}

// Explanation is the result of RuleSet.Explain.
type Explanation struct {
	RuleSet string            `json:"ruleset"`
	Dataset string            `json:"dataset"`
	Rules   []RuleExplanation `json:"rules"`
}
