package schema

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
)

// Type is the value type of a DataPoint.
type Type string

const (
	TypeString  Type = "string"
	TypeInt     Type = "int"
	TypeDecimal Type = "decimal"
)

// Schema maps DataPoint names to their value types.
// It describes what an entity's Dataset carries and is the variable
// declaration set for expression conditions.
type Schema map[string]Type

// Names returns the DataPoint names in sorted order
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new schema containing the entries of s and other.
// Entries in other override entries in s.
func (s Schema) Merge(other Schema) Schema {
	out := make(Schema, len(s)+len(other))
	for name, t := range s {
		out[name] = t
	}
	for name, t := range other {
		out[name] = t
	}
	return out
}

// celType maps a DataPoint type to the CEL type used for its variable
func celType(t Type) (*cel.Type, error) {
	switch t {
	case TypeString:
		return cel.StringType, nil
	case TypeInt:
		return cel.IntType, nil
	case TypeDecimal:
		return cel.DoubleType, nil
	default:
		return nil, fmt.Errorf("unsupported datapoint type %q", t)
	}
}

// NewEnv creates a CEL environment declaring one typed variable per DataPoint
func NewEnv(s Schema) (*cel.Env, error) {
	if err := ValidateSchema(s); err != nil {
		return nil, err
	}

	opts := make([]cel.EnvOption, 0, len(s))
	for _, name := range s.Names() {
		t, err := celType(s[name])
		if err != nil {
			return nil, err
		}
		opts = append(opts, cel.Variable(name, t))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return env, nil
}
