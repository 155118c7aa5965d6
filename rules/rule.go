package rules

// Rule fires its actions, in order, when all of its conditions hold.
type Rule struct {
	name       string
	conditions []*RuleCondition
	actions    []*Action
}

func NewRule(name string, conditions []*RuleCondition, actions []*Action) *Rule {
	return &Rule{
		name:       name,
		conditions: append([]*RuleCondition(nil), conditions...),
		actions:    append([]*Action(nil), actions...),
	}
}

func (r *Rule) Name() string                 { return r.name }
func (r *Rule) Conditions() []*RuleCondition { return r.conditions }
func (r *Rule) Actions() []*Action           { return r.actions }

// DependsOn returns the union of the conditions' dependencies in first-seen order.
func (r *Rule) DependsOn() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, c := range r.conditions {
		for _, d := range c.DependsOn() {
			if !seen[d] {
				seen[d] = true
				deps = append(deps, d)
			}
		}
	}
	return deps
}
