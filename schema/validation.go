package schema

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxDataPoints       = 200
	maxIdentifierLength = 100
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSchema checks DataPoint names and types.
// Names must be usable as expression variables.
func ValidateSchema(s Schema) error {
	if len(s) == 0 {
		return fmt.Errorf("schema cannot be empty, must declare at least one datapoint")
	}

	if len(s) > maxDataPoints {
		return fmt.Errorf("schema declares %d datapoints, maximum allowed is %d", len(s), maxDataPoints)
	}

	for _, name := range s.Names() {
		if err := ValidateIdentifier(name); err != nil {
			return fmt.Errorf("invalid datapoint name %q: %w", name, err)
		}

		t := s[name]
		if t == "" {
			return fmt.Errorf("datapoint %q has empty type name", name)
		}
		if strings.TrimSpace(string(t)) != string(t) {
			return fmt.Errorf("datapoint %q has type with leading/trailing whitespace: %q", name, t)
		}
		if !IsValidType(t) {
			return fmt.Errorf("datapoint %q has invalid type %q (must be one of: string, int, decimal)", name, t)
		}
	}

	return nil
}

// ValidateIdentifier validates a DataPoint name.
// It must match ^[a-zA-Z_][a-zA-Z0-9_]*$, be 1-100 characters
// and not be a reserved expression keyword.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// IsValidType reports whether t is a supported DataPoint type.
// Type names are case-sensitive.
func IsValidType(t Type) bool {
	switch t {
	case TypeString, TypeInt, TypeDecimal:
		return true
	default:
		return false
	}
}

var reservedKeywords = map[string]bool{
	"true":      true,
	"false":     true,
	"null":      true,
	"if":        true,
	"else":      true,
	"for":       true,
	"while":     true,
	"break":     true,
	"continue":  true,
	"return":    true,
	"var":       true,
	"let":       true,
	"const":     true,
	"function":  true,
	"in":        true,
	"as":        true,
	"import":    true,
	"package":   true,
	"namespace": true,
	"loop":      true,
	"void":      true,
}

func isReservedKeyword(name string) bool {
	return reservedKeywords[name]
}
