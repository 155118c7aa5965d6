package rules

// RuleCondition is a named Evaluator within a Rule.
type RuleCondition struct {
	Name      string
	Evaluator Evaluator
}

func NewCondition(name string, ev Evaluator) *RuleCondition {
	return &RuleCondition{Name: name, Evaluator: ev}
}

func (c *RuleCondition) DependsOn() []string {
	return c.Evaluator.DependsOn()
}
