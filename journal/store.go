// Package journal records the outcome of every action fired by the engine.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/hedgerules/rules"
)

const (
	DefaultLimit = 100
	maxLimit     = 1000
)

// Entry is one recorded action invocation.
type Entry struct {
	ID        string       `json:"id"`
	Time      time.Time    `json:"time"`
	Entity    string       `json:"entity"`
	RuleSet   string       `json:"ruleset"`
	Rule      string       `json:"rule"`
	Action    string       `json:"action"`
	Status    rules.Status `json:"status"`
	Reference string       `json:"reference,omitempty"`
	ErrorCode int          `json:"error_code,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Filter selects entries. An empty Entity matches every entity; a
// non-positive Limit means DefaultLimit.
type Filter struct {
	Entity string
	Limit  int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return min(f.Limit, maxLimit)
}

// Store persists journal entries.
type Store interface {
	// Record appends e, assigning ID and Time when they are unset
	Record(ctx context.Context, e *Entry) error

	// List returns matching entries, newest first
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// Entries flattens the action outcomes of a report.
func Entries(report *rules.ExecutionReport) []*Entry {
	var entries []*Entry
	for _, rr := range report.Rules {
		for _, a := range rr.Actions {
			entries = append(entries, &Entry{
				Entity:    report.Dataset,
				RuleSet:   report.RuleSet,
				Rule:      rr.Rule,
				Action:    a.Action,
				Status:    a.Status,
				Reference: a.Reference,
				ErrorCode: a.ErrorCode,
				Message:   a.Message,
			})
		}
	}
	return entries
}

func stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
}

// MemoryStore keeps the most recent entries in memory.
// Thread-safe with RWMutex
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []*Entry
	capacity int
}

// NewMemoryStore creates a store holding at most capacity entries;
// zero or less means unbounded.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Record(_ context.Context, e *Entry) error {
	stamp(e)
	stored := *e

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, &stored)
	if s.capacity > 0 && len(s.entries) > s.capacity {
		s.entries = append([]*Entry(nil), s.entries[len(s.entries)-s.capacity:]...)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.limit()
	out := make([]*Entry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if f.Entity != "" && e.Entity != f.Entity {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}
