package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Source is the value cell behind a DataPoint.
// Values are string, int64 or decimal.Decimal.
type Source interface {
	Value() any
	Stale() bool
	MarkStale()
	ClearStale()
}

// PreviousValuer is implemented by sources that remember the value they
// held before the last change.
type PreviousValuer interface {
	Previous() (any, bool)
}

// FieldBinder is implemented by sources that mirror a field of an
// external entity. Update reports whether the value changed.
type FieldBinder interface {
	Field() string
	Update(value string) bool
}

// Setter is implemented by sources that actions may write.
type Setter interface {
	Set(value any)
}

// RefLookup resolves a static field of an instrument.
type RefLookup interface {
	Field(ctx context.Context, instrument, field string) (string, error)
}

type staleness struct {
	stale atomic.Bool
}

func (s *staleness) Stale() bool { return s.stale.Load() }
func (s *staleness) MarkStale()  { s.stale.Store(true) }
func (s *staleness) ClearStale() { s.stale.Store(false) }

// ConstSource holds a value fixed at construction. It is never stale.
type ConstSource struct {
	value any
}

func NewConstSource(value any) *ConstSource {
	return &ConstSource{value: value}
}

func (s *ConstSource) Value() any  { return s.value }
func (s *ConstSource) Stale() bool { return false }
func (s *ConstSource) MarkStale()  {}
func (s *ConstSource) ClearStale() {}

// FieldSource mirrors one field of an order or route.
type FieldSource struct {
	staleness
	field string

	mu      sync.RWMutex
	value   string
	prev    string
	hasPrev bool
}

// NewFieldSource creates a source for field holding its current value.
// A new source is stale until the first evaluation pass clears it.
func NewFieldSource(field, initial string) *FieldSource {
	s := &FieldSource{field: field, value: initial}
	s.MarkStale()
	return s
}

func (s *FieldSource) Field() string { return s.field }

func (s *FieldSource) Value() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *FieldSource) Previous() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasPrev {
		return nil, false
	}
	return s.prev, true
}

// Update adopts value. Re-delivering the held value is a no-op: the
// previous slot is kept and staleness is not set.
func (s *FieldSource) Update(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == s.value {
		return false
	}
	s.prev = s.value
	s.hasPrev = true
	s.value = value
	s.MarkStale()
	return true
}

// RefDataSource holds a reference-data field resolved once at construction.
type RefDataSource struct {
	staleness
	instrument string
	field      string
	value      string
}

// NewRefDataSource resolves field for instrument through lookup.
func NewRefDataSource(ctx context.Context, lookup RefLookup, instrument, field string) (*RefDataSource, error) {
	value, err := lookup.Field(ctx, instrument, field)
	if err != nil {
		return nil, fmt.Errorf("resolve %s for %s: %w", field, instrument, err)
	}
	s := &RefDataSource{instrument: instrument, field: field, value: value}
	s.MarkStale()
	return s, nil
}

func (s *RefDataSource) Value() any { return s.value }

func (s *RefDataSource) Instrument() string { return s.instrument }

// MutableSource holds an engine-computed value written by actions.
type MutableSource struct {
	staleness

	mu    sync.RWMutex
	value any
}

func NewMutableSource(initial any) *MutableSource {
	s := &MutableSource{value: initial}
	s.MarkStale()
	return s
}

func (s *MutableSource) Value() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores value and always marks the source stale.
func (s *MutableSource) Set(value any) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
	s.MarkStale()
}

// DataPoint is a named handle on one Source within a Dataset.
type DataPoint struct {
	name   string
	source Source
}

func (dp *DataPoint) Name() string   { return dp.name }
func (dp *DataPoint) Source() Source { return dp.source }
func (dp *DataPoint) Value() any     { return dp.source.Value() }
func (dp *DataPoint) Stale() bool    { return dp.source.Stale() }

// Previous returns the value held before the last change, if the source
// tracks one and a change has happened.
func (dp *DataPoint) Previous() (any, bool) {
	p, ok := dp.source.(PreviousValuer)
	if !ok {
		return nil, false
	}
	return p.Previous()
}

func (dp *DataPoint) StringValue() (string, error) {
	s, err := AsString(dp.source.Value())
	if err != nil {
		return "", fmt.Errorf("datapoint %s: %w", dp.name, err)
	}
	return s, nil
}

func (dp *DataPoint) IntValue() (int64, error) {
	i, err := AsInt(dp.source.Value())
	if err != nil {
		return 0, fmt.Errorf("datapoint %s: %w", dp.name, err)
	}
	return i, nil
}

func (dp *DataPoint) DecimalValue() (decimal.Decimal, error) {
	d, err := AsDecimal(dp.source.Value())
	if err != nil {
		return decimal.Zero, fmt.Errorf("datapoint %s: %w", dp.name, err)
	}
	return d, nil
}

// Set writes value through to a writable source.
func (dp *DataPoint) Set(value any) error {
	w, ok := dp.source.(Setter)
	if !ok {
		return fmt.Errorf("datapoint %s: %w", dp.name, ErrNotWritable)
	}
	w.Set(value)
	return nil
}
