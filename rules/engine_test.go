package rules

import (
	"errors"
	"sync"
	"testing"
)

// TestEngine_RuleSets verifies registration and lookup
func TestEngine_RuleSets(t *testing.T) {
	en := NewEngine()

	if err := en.AddRuleSet(NewRuleSet("RouteRules")); err != nil {
		t.Fatalf("AddRuleSet() failed: %v", err)
	}
	if err := en.AddRuleSet(NewRuleSet("OrderRules")); err != nil {
		t.Fatalf("AddRuleSet() failed: %v", err)
	}
	if err := en.AddRuleSet(NewRuleSet("OrderRules")); !errors.Is(err, ErrDuplicateRuleSet) {
		t.Errorf("Duplicate AddRuleSet() error = %v, want ErrDuplicateRuleSet", err)
	}

	sets := en.RuleSets()
	if len(sets) != 2 || sets[0].Name() != "OrderRules" {
		t.Errorf("RuleSets() not sorted by name: %v", sets)
	}
	if _, err := en.RuleSet("Missing"); !errors.Is(err, ErrRuleSetNotFound) {
		t.Errorf("RuleSet() error = %v, want ErrRuleSetNotFound", err)
	}
}

// TestEngine_Datasets verifies the dataset registry lifecycle
func TestEngine_Datasets(t *testing.T) {
	en := NewEngine()

	if err := en.AddDataset(NewDataset("order 1")); err != nil {
		t.Fatalf("AddDataset() failed: %v", err)
	}
	if err := en.AddDataset(NewDataset("order 1")); !errors.Is(err, ErrDuplicateDataset) {
		t.Errorf("Duplicate AddDataset() error = %v, want ErrDuplicateDataset", err)
	}
	if _, err := en.Dataset("order 1"); err != nil {
		t.Errorf("Dataset() failed: %v", err)
	}
	if err := en.RemoveDataset("order 1"); err != nil {
		t.Errorf("RemoveDataset() failed: %v", err)
	}
	if _, err := en.Dataset("order 1"); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("Dataset() after remove error = %v, want ErrDatasetNotFound", err)
	}
}

// TestEngine_Stop verifies registrations are rejected after stop
func TestEngine_Stop(t *testing.T) {
	en := NewEngine()
	en.Stop()
	en.Stop()

	if !en.Stopped() {
		t.Error("Stopped() should be true")
	}
	if err := en.AddDataset(NewDataset("order 1")); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("AddDataset() error = %v, want ErrEngineStopped", err)
	}
}

// TestEngine_Explain verifies lookups by name and dry run
func TestEngine_Explain(t *testing.T) {
	en := NewEngine()
	rs := NewRuleSet("OrderRules").AddRule(NewRule("R", []*RuleCondition{NewCondition("Yes", always(true))}, nil))
	if err := en.AddRuleSet(rs); err != nil {
		t.Fatal(err)
	}
	if err := en.AddDataset(NewDataset("order 1")); err != nil {
		t.Fatal(err)
	}

	exp, err := en.Explain("OrderRules", "order 1")
	if err != nil {
		t.Fatalf("Explain() failed: %v", err)
	}
	if !exp.Rules[0].WouldFire {
		t.Error("Rule should fire")
	}
	if _, err := en.Explain("OrderRules", "order 2"); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("Explain() error = %v, want ErrDatasetNotFound", err)
	}
}

// TestEngine_ConcurrentAccess verifies concurrent registration and reads
func TestEngine_ConcurrentAccess(t *testing.T) {
	en := NewEngine()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = en.AddDataset(NewDataset(string(rune('a' + i%26))))
		}(i)
		go func() {
			defer wg.Done()
			_ = en.Datasets()
		}()
	}
	wg.Wait()

	if got := len(en.Datasets()); got != 26 {
		t.Errorf("len(Datasets()) = %d, want 26", got)
	}
}
