package api

import (
	"fmt"
	"time"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/journal"
	"github.com/liamcoop/hedgerules/rules"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Datasets int    `json:"datasets" example:"12"`
	RuleSets int    `json:"rulesets" example:"2"`
}

// DatasetSummary represents a dataset in list responses
type DatasetSummary struct {
	Name       string    `json:"name" example:"route 1.1"`
	CreatedAt  time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	DataPoints int       `json:"datapoints" example:"11"`
	Stale      []string  `json:"stale,omitempty"`
}

// DatasetsListResponse represents the response for listing datasets
type DatasetsListResponse struct {
	Datasets []DatasetSummary `json:"datasets"`
}

// DatasetResponse represents one dataset with its current values
type DatasetResponse struct {
	Name       string             `json:"name" example:"order 1"`
	CreatedAt  time.Time          `json:"created_at" example:"2024-01-15T10:30:00Z"`
	DataPoints []rules.PointState `json:"datapoints"`
}

// ConditionResponse describes one condition of a rule
type ConditionResponse struct {
	Name       string   `json:"name" example:"OrderStatusIsNew"`
	DependsOn  []string `json:"depends_on"`
	Expression string   `json:"expression,omitempty" example:"OrderStatus == \"NEW\""`
}

// RuleResponse describes one rule of a rule set
type RuleResponse struct {
	Name       string              `json:"name" example:"NewOrderUS"`
	DependsOn  []string            `json:"depends_on"`
	Conditions []ConditionResponse `json:"conditions"`
	Actions    []string            `json:"actions"`
}

// RuleSetResponse describes a rule set's topology
type RuleSetResponse struct {
	Name  string         `json:"name" example:"OrderRules"`
	Rules []RuleResponse `json:"rules"`
}

// RuleSetsListResponse represents the response for listing rule sets
type RuleSetsListResponse struct {
	RuleSets []RuleSetResponse `json:"rulesets"`
}

// ExplainRequest represents the request body for a dry run
type ExplainRequest struct {
	Dataset string `json:"dataset" example:"order 1" binding:"required"`
}

// ExecutionsListResponse represents the response for listing journal entries
type ExecutionsListResponse struct {
	Executions []*journal.Entry `json:"executions"`
}

// PaperOrderRequest represents the request body for a paper order
type PaperOrderRequest struct {
	Ticker string `json:"ticker" example:"XYZ US Equity" binding:"required"`
	Side   string `json:"side" example:"BUY" binding:"required"`
	Amount int64  `json:"amount" example:"500" binding:"required"`
	Notes  string `json:"notes,omitempty"`
}

// PaperOrderResponse represents a paper order with its routes
type PaperOrderResponse struct {
	Order  gateway.Entity   `json:"order"`
	Routes []gateway.Entity `json:"routes"`
}

// PaperFillRequest represents the request body for a paper fill
type PaperFillRequest struct {
	Quantity int64 `json:"quantity" example:"50" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"dataset not found"`
	Details string `json:"details,omitempty"`
}

func newRuleSetResponse(rs *rules.RuleSet) RuleSetResponse {
	resp := RuleSetResponse{Name: rs.Name(), Rules: []RuleResponse{}}
	for _, r := range rs.Rules() {
		rr := RuleResponse{Name: r.Name(), DependsOn: r.DependsOn()}
		for _, c := range r.Conditions() {
			cr := ConditionResponse{Name: c.Name, DependsOn: c.DependsOn()}
			if s, ok := c.Evaluator.(fmt.Stringer); ok {
				cr.Expression = s.String()
			}
			rr.Conditions = append(rr.Conditions, cr)
		}
		for _, a := range r.Actions() {
			rr.Actions = append(rr.Actions, a.Name)
		}
		resp.Rules = append(resp.Rules, rr)
	}
	return resp
}
