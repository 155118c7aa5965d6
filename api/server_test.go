package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liamcoop/hedgerules/journal"
	"github.com/liamcoop/hedgerules/rules"
)

func newTestServer(t *testing.T) (*Server, *rules.Engine, *journal.MemoryStore, *prometheus.Registry) {
	t.Helper()

	engine := rules.NewEngine()
	ds := rules.NewDataset("order 1")
	if _, err := ds.AddDataPoint("OrderStatus", rules.NewFieldSource("EMSX_STATUS", "NEW")); err != nil {
		t.Fatal(err)
	}
	if err := engine.AddDataset(ds); err != nil {
		t.Fatal(err)
	}

	noop := rules.ExecutorFunc(func(context.Context, *rules.Dataset) (rules.ActionResult, error) {
		return rules.Succeeded("ok"), nil
	})
	rs := rules.NewRuleSet("OrderRules").AddRule(rules.NewRule("NewOrder",
		[]*rules.RuleCondition{rules.NewCondition("OrderStatusIsNew", rules.StringEquality("OrderStatus", "NEW"))},
		[]*rules.Action{rules.NewAction("Route", noop)}))
	if err := engine.AddRuleSet(rs); err != nil {
		t.Fatal(err)
	}

	store := journal.NewMemoryStore(0)
	for _, e := range []*journal.Entry{
		{Entity: "order 1", RuleSet: "OrderRules", Rule: "NewOrder", Action: "Route", Status: rules.StatusSucceeded},
		{Entity: "route 1.1", RuleSet: "RouteRules", Rule: "HedgeOnFill", Action: "Hedge", Status: rules.StatusRejected, ErrorCode: 3},
	} {
		if err := store.Record(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}

	reg := prometheus.NewRegistry()
	return NewServer(engine, store, reg), engine, store, reg
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// TestHealth tests the health endpoint before and after the engine stops
func TestHealth(t *testing.T) {
	s, engine, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var health HealthResponse
	decode(t, w, &health)
	if health.Status != "healthy" || health.Datasets != 1 || health.RuleSets != 1 {
		t.Errorf("Health = %+v", health)
	}

	engine.Stop()
	if w := do(t, s, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status after Stop = %d, want 503", w.Code)
	}
}

// TestDatasets tests listing and fetching datasets
func TestDatasets(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/datasets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("List status = %d, want 200", w.Code)
	}
	var list DatasetsListResponse
	decode(t, w, &list)
	if len(list.Datasets) != 1 || list.Datasets[0].Name != "order 1" || list.Datasets[0].DataPoints != 1 {
		t.Errorf("Datasets = %+v", list.Datasets)
	}

	w = do(t, s, http.MethodGet, "/api/v1/datasets/order%201", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Get status = %d, want 200", w.Code)
	}
	var ds DatasetResponse
	decode(t, w, &ds)
	if len(ds.DataPoints) != 1 {
		t.Fatalf("Got %d datapoints, want 1", len(ds.DataPoints))
	}
	if p := ds.DataPoints[0]; p.Name != "OrderStatus" || p.Value != "NEW" || !p.Stale {
		t.Errorf("DataPoint = %+v", p)
	}

	if w := do(t, s, http.MethodGet, "/api/v1/datasets/order%209", ""); w.Code != http.StatusNotFound {
		t.Errorf("Unknown dataset status = %d, want 404", w.Code)
	}
}

// TestRuleSets tests the rule set topology endpoint
func TestRuleSets(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/rulesets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var resp RuleSetsListResponse
	decode(t, w, &resp)

	if len(resp.RuleSets) != 1 || len(resp.RuleSets[0].Rules) != 1 {
		t.Fatalf("RuleSets = %+v", resp.RuleSets)
	}
	rule := resp.RuleSets[0].Rules[0]
	if rule.Name != "NewOrder" || len(rule.Actions) != 1 || rule.Actions[0] != "Route" {
		t.Errorf("Rule = %+v", rule)
	}
	if len(rule.Conditions) != 1 || rule.Conditions[0].Expression != `OrderStatus == "NEW"` {
		t.Errorf("Conditions = %+v", rule.Conditions)
	}
}

// TestExplain tests dry runs and their error responses
func TestExplain(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"would fire", "/api/v1/rulesets/OrderRules/explain", `{"dataset": "order 1"}`, http.StatusOK},
		{"unknown ruleset", "/api/v1/rulesets/Nope/explain", `{"dataset": "order 1"}`, http.StatusNotFound},
		{"unknown dataset", "/api/v1/rulesets/OrderRules/explain", `{"dataset": "order 2"}`, http.StatusNotFound},
		{"missing dataset", "/api/v1/rulesets/OrderRules/explain", `{}`, http.StatusBadRequest},
		{"invalid body", "/api/v1/rulesets/OrderRules/explain", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, store, _ := newTestServer(t)
			w := do(t, s, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var exp rules.Explanation
			decode(t, w, &exp)
			if len(exp.Rules) != 1 || !exp.Rules[0].WouldFire {
				t.Errorf("Explanation = %+v", exp)
			}
			// A dry run must not record executions
			entries, _ := store.List(context.Background(), journal.Filter{})
			if len(entries) != 2 {
				t.Errorf("Journal has %d entries after explain, want 2", len(entries))
			}
		})
	}
}

// TestExecutions tests journal listing with filters
func TestExecutions(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"all", "", http.StatusOK, 2},
		{"by entity", "?entity=route%201.1", http.StatusOK, 1},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"unknown entity", "?entity=order%209", http.StatusOK, 0},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0},
	}

	s, _, _, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/v1/executions"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp ExecutionsListResponse
			decode(t, w, &resp)
			if len(resp.Executions) != tt.wantCount {
				t.Errorf("Got %d executions, want %d", len(resp.Executions), tt.wantCount)
			}
		})
	}
}

// TestMetrics tests that /metrics serves the configured registry
func TestMetrics(t *testing.T) {
	s, _, _, reg := newTestServer(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "hedgebot_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "hedgebot_test_total 1") {
		t.Errorf("Metrics output missing counter:\n%s", w.Body)
	}
}
