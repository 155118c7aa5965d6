package rules

import (
	"errors"
	"reflect"
	"testing"
)

func datasetWith(t *testing.T, values map[string]any) *Dataset {
	t.Helper()
	ds := NewDataset("test")
	for name, v := range values {
		if _, err := ds.AddDataPoint(name, NewConstSource(v)); err != nil {
			t.Fatalf("AddDataPoint(%s) failed: %v", name, err)
		}
	}
	return ds
}

// TestStringEquality verifies exact string matching
func TestStringEquality(t *testing.T) {
	ds := datasetWith(t, map[string]any{"OrderStatus": "NEW"})

	held, err := StringEquality("OrderStatus", "NEW").Evaluate(ds)
	if err != nil || !held {
		t.Errorf("Evaluate() = %v, %v; want true", held, err)
	}
	held, err = StringEquality("OrderStatus", "WORKING").Evaluate(ds)
	if err != nil || held {
		t.Errorf("Evaluate() = %v, %v; want false", held, err)
	}
}

// TestStringInequality_PrefixLimited verifies only len(target) characters are compared
func TestStringInequality_PrefixLimited(t *testing.T) {
	testCases := []struct {
		notes string
		want  bool
	}{
		{"HEDGE:123", false},
		{"HEDGE", false},
		{"PLAIN", true},
		{"", true},
		{"HED", true},
		{"hedge:1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.notes, func(t *testing.T) {
			ds := datasetWith(t, map[string]any{"OrderNotes": tc.notes})
			held, err := StringInequality("OrderNotes", "HEDGE").Evaluate(ds)
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if held != tc.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tc.notes, held, tc.want)
			}
		})
	}
}

// TestStringComparison_DependsOn verifies declared dependencies include extras
func TestStringComparison_DependsOn(t *testing.T) {
	got := StringEquality("OrderStatus", "NEW", "OrderAmount").DependsOn()
	if !reflect.DeepEqual(got, []string{"OrderStatus", "OrderAmount"}) {
		t.Errorf("DependsOn() = %v", got)
	}
}

// TestOrderAmountThreshold verifies amount < fraction x reference
func TestOrderAmountThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		amount    any
		threshold any
		avgVolume any
		want      bool
	}{
		{"below", "100", "0.1", "2000", true},
		{"equal", "200", "0.1", "2000", false},
		{"above", "500", "0.1", "2000", false},
		{"int64 amount", int64(199), "0.1", "2000", true},
		{"fractional volume", "1", "0.5", "2.5", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ds := datasetWith(t, map[string]any{
				"OrderAmount":      tc.amount,
				"TriggerThreshold": tc.threshold,
				"AvgVolume20D":     tc.avgVolume,
			})
			held, err := OrderAmountThreshold().Evaluate(ds)
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if held != tc.want {
				t.Errorf("Evaluate() = %v, want %v", held, tc.want)
			}
		})
	}
}

// TestThreshold_NonNumericIsError verifies bad operands are not silently false
func TestThreshold_NonNumericIsError(t *testing.T) {
	ds := datasetWith(t, map[string]any{
		"OrderAmount":      "100",
		"TriggerThreshold": "0.1",
		"AvgVolume20D":     "N.A.",
	})
	_, err := OrderAmountThreshold().Evaluate(ds)
	if !errors.Is(err, ErrNotNumeric) {
		t.Errorf("Evaluate() error = %v, want ErrNotNumeric", err)
	}
}

// TestEvaluator_MissingDataPoint verifies absent operands are an error
func TestEvaluator_MissingDataPoint(t *testing.T) {
	ds := datasetWith(t, map[string]any{"OrderAmount": "100"})

	if _, err := OrderAmountThreshold().Evaluate(ds); !errors.Is(err, ErrDataPointNotFound) {
		t.Errorf("Threshold error = %v, want ErrDataPointNotFound", err)
	}
	if _, err := StringEquality("OrderStatus", "NEW").Evaluate(ds); !errors.Is(err, ErrDataPointNotFound) {
		t.Errorf("StringEquality error = %v, want ErrDataPointNotFound", err)
	}
}

// TestEvaluator_DoesNotClearStale verifies reads leave staleness alone
func TestEvaluator_DoesNotClearStale(t *testing.T) {
	ds := NewDataset("test")
	if _, err := ds.AddDataPoint("OrderStatus", NewFieldSource("EMSX_STATUS", "NEW")); err != nil {
		t.Fatal(err)
	}
	if _, err := StringEquality("OrderStatus", "NEW").Evaluate(ds); err != nil {
		t.Fatal(err)
	}
	if got := ds.StaleNames(); len(got) != 1 {
		t.Errorf("StaleNames() = %v, want [OrderStatus]", got)
	}
}
