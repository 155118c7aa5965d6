package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNew verifies metrics register and count independently per registry
func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Notifications.WithLabelValues("order", "NEW").Inc()
	m.ActionResults.WithLabelValues("SendNewRouteBB", "succeeded").Add(2)
	m.Datasets.Set(3)

	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("order", "NEW")); got != 1 {
		t.Errorf("notifications = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActionResults.WithLabelValues("SendNewRouteBB", "succeeded")); got != 2 {
		t.Errorf("action results = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Datasets); got != 3 {
		t.Errorf("datasets = %v, want 3", got)
	}

	// A second registry gets its own collectors
	other := New(prometheus.NewRegistry())
	if got := testutil.ToFloat64(other.Datasets); got != 0 {
		t.Errorf("fresh datasets gauge = %v, want 0", got)
	}
}

// TestNew_DuplicateRegistration verifies registering twice on one registry panics
func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	New(reg)
}
