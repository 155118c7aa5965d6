package rules

import (
	"fmt"
	"sort"
	"sync"
)

// Engine is the registry of RuleSets and live Datasets.
// Safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	rulesets map[string]*RuleSet
	datasets map[string]*Dataset
	stopped  bool
}

func NewEngine() *Engine {
	return &Engine{
		rulesets: make(map[string]*RuleSet),
		datasets: make(map[string]*Dataset),
	}
}

// AddRuleSet registers rs. RuleSet topology is fixed once the engine runs.
func (en *Engine) AddRuleSet(rs *RuleSet) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.stopped {
		return ErrEngineStopped
	}
	if _, exists := en.rulesets[rs.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRuleSet, rs.Name())
	}
	en.rulesets[rs.Name()] = rs
	return nil
}

func (en *Engine) RuleSet(name string) (*RuleSet, error) {
	en.mu.RLock()
	defer en.mu.RUnlock()

	rs, ok := en.rulesets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleSetNotFound, name)
	}
	return rs, nil
}

// RuleSets returns every registered RuleSet sorted by name.
func (en *Engine) RuleSets() []*RuleSet {
	en.mu.RLock()
	sets := make([]*RuleSet, 0, len(en.rulesets))
	for _, rs := range en.rulesets {
		sets = append(sets, rs)
	}
	en.mu.RUnlock()

	sort.Slice(sets, func(i, j int) bool { return sets[i].Name() < sets[j].Name() })
	return sets
}

func (en *Engine) AddDataset(ds *Dataset) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.stopped {
		return ErrEngineStopped
	}
	if _, exists := en.datasets[ds.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDataset, ds.Name())
	}
	en.datasets[ds.Name()] = ds
	return nil
}

func (en *Engine) Dataset(name string) (*Dataset, error) {
	en.mu.RLock()
	defer en.mu.RUnlock()

	ds, ok := en.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return ds, nil
}

// Datasets returns every live Dataset sorted by name.
func (en *Engine) Datasets() []*Dataset {
	en.mu.RLock()
	sets := make([]*Dataset, 0, len(en.datasets))
	for _, ds := range en.datasets {
		sets = append(sets, ds)
	}
	en.mu.RUnlock()

	sort.Slice(sets, func(i, j int) bool { return sets[i].Name() < sets[j].Name() })
	return sets
}

func (en *Engine) RemoveDataset(name string) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	if _, ok := en.datasets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	delete(en.datasets, name)
	return nil
}

// Explain dry-runs the named RuleSet against the named Dataset.
func (en *Engine) Explain(ruleset, dataset string) (*Explanation, error) {
	rs, err := en.RuleSet(ruleset)
	if err != nil {
		return nil, err
	}
	ds, err := en.Dataset(dataset)
	if err != nil {
		return nil, err
	}

	ds.Lock()
	defer ds.Unlock()
	return rs.Explain(ds), nil
}

// Stop rejects further registrations. Stopping twice is a no-op.
func (en *Engine) Stop() {
	en.mu.Lock()
	en.stopped = true
	en.mu.Unlock()
}

func (en *Engine) Stopped() bool {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.stopped
}
