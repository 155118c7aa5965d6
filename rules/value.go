package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AsString returns v as a string. Numeric values are formatted.
func AsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case decimal.Decimal:
		return val.String(), nil
	case nil:
		return "", fmt.Errorf("%w: nil", ErrUnsupportedValue)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// AsDecimal coerces v to a decimal. Strings are parsed after trimming
// whitespace; anything that does not parse is ErrNotNumeric.
func AsDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case int64:
		return decimal.NewFromInt(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, val)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

// AsInt coerces v to an integer. Decimals with a fractional part are
// rejected rather than truncated.
func AsInt(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	}

	d, err := AsDecimal(v)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrNotNumeric, d)
	}
	return d.IntPart(), nil
}
