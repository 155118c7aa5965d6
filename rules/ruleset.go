package rules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RuleSet is an ordered list of Rules evaluated together against a Dataset.
type RuleSet struct {
	name string

	mu    sync.RWMutex
	rules []*Rule
	index map[string][]int // datapoint -> positions of rules depending on it
}

func NewRuleSet(name string) *RuleSet {
	return &RuleSet{name: name, index: make(map[string][]int)}
}

func (rs *RuleSet) Name() string { return rs.name }

// AddRule appends r and indexes its dependencies. Rules are evaluated in
// the order they were added.
func (rs *RuleSet) AddRule(r *Rule) *RuleSet {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	pos := len(rs.rules)
	rs.rules = append(rs.rules, r)
	for _, dep := range r.DependsOn() {
		rs.index[dep] = append(rs.index[dep], pos)
	}
	return rs
}

func (rs *RuleSet) Rules() []*Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return append([]*Rule(nil), rs.rules...)
}

// Execute evaluates every rule in order. Conditions short-circuit; a rule
// whose conditions all hold runs its actions before the next rule is
// considered.
func (rs *RuleSet) Execute(ctx context.Context, ds *Dataset) (*ExecutionReport, error) {
	return rs.run(ctx, ds, rs.Rules(), nil)
}

// ExecuteChanged evaluates only the rules with a condition depending on a
// stale DataPoint, preserving declared order.
func (rs *RuleSet) ExecuteChanged(ctx context.Context, ds *Dataset) (*ExecutionReport, error) {
	stale := ds.StaleNames()

	rs.mu.RLock()
	selected := make([]bool, len(rs.rules))
	for _, name := range stale {
		for _, pos := range rs.index[name] {
			selected[pos] = true
		}
	}
	var rules []*Rule
	for pos, r := range rs.rules {
		if selected[pos] {
			rules = append(rules, r)
		}
	}
	rs.mu.RUnlock()

	return rs.run(ctx, ds, rules, stale)
}

func (rs *RuleSet) run(ctx context.Context, ds *Dataset, rules []*Rule, changed []string) (*ExecutionReport, error) {
	if !ds.beginExecution() {
		return nil, fmt.Errorf("dataset %s: ruleset %s: %w", ds.Name(), rs.name, ErrReentrantExecution)
	}
	defer ds.endExecution()

	report := &ExecutionReport{
		RuleSet: rs.name,
		Dataset: ds.Name(),
		Changed: changed,
		Started: time.Now(),
		Rules:   make([]RuleResult, 0, len(rules)),
	}
	defer func() { report.Duration = time.Since(report.Started) }()

	for _, r := range rules {
		result := RuleResult{Rule: r.name, Fired: true}

		for _, c := range r.conditions {
			held, err := c.Evaluator.Evaluate(ds)
			if err != nil {
				return report, &EvaluationError{Dataset: ds.Name(), RuleSet: rs.name, Rule: r.name, Condition: c.Name, Err: err}
			}
			if !held {
				result.Fired = false
				result.Stopped = c.Name
				break
			}
		}

		if result.Fired {
			for _, a := range r.actions {
				res, err := a.Executor.Execute(ctx, ds)
				if err != nil {
					return report, &EvaluationError{Dataset: ds.Name(), RuleSet: rs.name, Rule: r.name, Action: a.Name, Err: err}
				}
				result.Actions = append(result.Actions, ActionOutcome{Action: a.Name, ActionResult: res})
			}
		}

		report.Rules = append(report.Rules, result)
	}

	return report, nil
}

// Explain evaluates every condition of every rule without short-circuit
// and without running actions.
func (rs *RuleSet) Explain(ds *Dataset) *Explanation {
	rules := rs.Rules()
	exp := &Explanation{RuleSet: rs.name, Dataset: ds.Name(), Rules: make([]RuleExplanation, 0, len(rules))}

	for _, r := range rules {
		re := RuleExplanation{Rule: r.name, WouldFire: true}
		for _, c := range r.conditions {
			cr := ConditionResult{Condition: c.Name, DependsOn: c.DependsOn()}
			held, err := c.Evaluator.Evaluate(ds)
			if err != nil {
				cr.Error = err.Error()
			}
			cr.Held = held && err == nil
			re.WouldFire = re.WouldFire && cr.Held
			re.Conditions = append(re.Conditions, cr)
		}
		for _, a := range r.actions {
			re.Actions = append(re.Actions, a.Name)
		}
		exp.Rules = append(exp.Rules, re)
	}
	return exp
}
