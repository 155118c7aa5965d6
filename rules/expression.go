package rules

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"github.com/liamcoop/hedgerules/schema"
)

// Expression is a CEL predicate over the DataPoints declared in a schema.
type Expression struct {
	source  string
	types   schema.Schema
	program cel.Program
	deps    []string
}

// NewExpression compiles expr against s. Dependencies are the schema
// variables the checked expression references.
func NewExpression(s schema.Schema, expr string) (*Expression, error) {
	env, err := schema.NewEnv(s)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q has type %s, want bool", expr, ast.OutputType())
	}

	// Cost limit stops runaway operator-supplied expressions
	prog, err := env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	seen := make(map[string]bool)
	for _, ref := range ast.NativeRep().ReferenceMap() {
		if _, declared := s[ref.Name]; declared {
			seen[ref.Name] = true
		}
	}
	deps := make([]string, 0, len(seen))
	for name := range seen {
		deps = append(deps, name)
	}
	sort.Strings(deps)

	return &Expression{source: expr, types: s, program: prog, deps: deps}, nil
}

func (e *Expression) DependsOn() []string { return e.deps }
func (e *Expression) String() string      { return e.source }

func (e *Expression) Evaluate(ds *Dataset) (bool, error) {
	vars := make(map[string]any, len(e.deps))
	for _, name := range e.deps {
		dp, err := ds.DataPoint(name)
		if err != nil {
			return false, err
		}

		switch e.types[name] {
		case schema.TypeInt:
			vars[name], err = dp.IntValue()
		case schema.TypeDecimal:
			var d decimal.Decimal
			if d, err = dp.DecimalValue(); err == nil {
				vars[name] = d.InexactFloat64()
			}
		default:
			vars[name], err = dp.StringValue()
		}
		if err != nil {
			return false, err
		}
	}

	out, _, err := e.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	held, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", e.source, out.Value())
	}
	return held, nil
}
