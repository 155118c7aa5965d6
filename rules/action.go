package rules

import "context"

// Status is the outcome of one Action invocation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// ActionResult reports what an Action did. Submission outcomes are
// reported here; they never abort a RuleSet pass.
type ActionResult struct {
	Status    Status `json:"status"`
	Reference string `json:"reference,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func Succeeded(reference string) ActionResult {
	return ActionResult{Status: StatusSucceeded, Reference: reference}
}

func Rejected(code int, message string) ActionResult {
	return ActionResult{Status: StatusRejected, ErrorCode: code, Message: message}
}

func Failed(message string) ActionResult {
	return ActionResult{Status: StatusFailed, Message: message}
}

// Executor performs an Action against a Dataset. A returned error is an
// evaluation failure (for example a missing DataPoint) and aborts the pass.
type Executor interface {
	Execute(ctx context.Context, ds *Dataset) (ActionResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, ds *Dataset) (ActionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, ds *Dataset) (ActionResult, error) {
	return f(ctx, ds)
}

// Action is a named Executor. Actions hold no per-Dataset state.
type Action struct {
	Name     string
	Executor Executor
}

func NewAction(name string, ex Executor) *Action {
	return &Action{Name: name, Executor: ex}
}
