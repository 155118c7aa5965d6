package rules

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Dataset is the named set of DataPoints a RuleSet is evaluated against.
// DataPoints are added once when the Dataset is built and never replaced.
type Dataset struct {
	name    string
	created time.Time

	// mu serializes apply-changes and evaluation for one entity.
	mu sync.Mutex

	pmu    sync.RWMutex
	points map[string]*DataPoint
	order  []string
	fields map[string][]string // bound field -> datapoint names

	executing atomic.Bool
}

func NewDataset(name string) *Dataset {
	return &Dataset{
		name:    name,
		created: time.Now(),
		points:  make(map[string]*DataPoint),
		fields:  make(map[string][]string),
	}
}

func (ds *Dataset) Name() string         { return ds.name }
func (ds *Dataset) CreatedAt() time.Time { return ds.created }

// Lock acquires the per-entity mutex. Callers hold it across applying
// changes and running a RuleSet pass.
func (ds *Dataset) Lock()   { ds.mu.Lock() }
func (ds *Dataset) Unlock() { ds.mu.Unlock() }

// AddDataPoint binds name to source. Names are unique within a Dataset.
func (ds *Dataset) AddDataPoint(name string, source Source) (*DataPoint, error) {
	ds.pmu.Lock()
	defer ds.pmu.Unlock()

	if _, exists := ds.points[name]; exists {
		return nil, fmt.Errorf("dataset %s: %w: %s", ds.name, ErrDuplicateDataPoint, name)
	}

	dp := &DataPoint{name: name, source: source}
	ds.points[name] = dp
	ds.order = append(ds.order, name)
	if fb, ok := source.(FieldBinder); ok {
		ds.fields[fb.Field()] = append(ds.fields[fb.Field()], name)
	}
	return dp, nil
}

// DataPoint returns the named DataPoint or ErrDataPointNotFound.
func (ds *Dataset) DataPoint(name string) (*DataPoint, error) {
	ds.pmu.RLock()
	dp, ok := ds.points[name]
	ds.pmu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("dataset %s: %w: %s", ds.name, ErrDataPointNotFound, name)
	}
	return dp, nil
}

// Names returns DataPoint names in the order they were added.
func (ds *Dataset) Names() []string {
	ds.pmu.RLock()
	defer ds.pmu.RUnlock()

	names := make([]string, len(ds.order))
	copy(names, ds.order)
	return names
}

// StaleNames returns the names of DataPoints whose value changed since
// staleness was last cleared.
func (ds *Dataset) StaleNames() []string {
	ds.pmu.RLock()
	defer ds.pmu.RUnlock()

	var stale []string
	for _, name := range ds.order {
		if ds.points[name].Stale() {
			stale = append(stale, name)
		}
	}
	return stale
}

// ClearStale clears staleness on every DataPoint.
func (ds *Dataset) ClearStale() {
	ds.pmu.RLock()
	defer ds.pmu.RUnlock()

	for _, dp := range ds.points {
		dp.source.ClearStale()
	}
}

// ApplyFieldChange pushes a new field value into every field-backed
// DataPoint bound to field and returns the names that changed.
func (ds *Dataset) ApplyFieldChange(field, value string) []string {
	ds.pmu.RLock()
	defer ds.pmu.RUnlock()

	var changed []string
	for _, name := range ds.fields[field] {
		if ds.points[name].source.(FieldBinder).Update(value) {
			changed = append(changed, name)
		}
	}
	return changed
}

// PointState is a point-in-time view of one DataPoint.
type PointState struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Previous    any    `json:"previous,omitempty"`
	HasPrevious bool   `json:"has_previous"`
	Stale       bool   `json:"stale"`
}

// Snapshot returns the state of every DataPoint in insertion order.
func (ds *Dataset) Snapshot() []PointState {
	ds.pmu.RLock()
	defer ds.pmu.RUnlock()

	states := make([]PointState, 0, len(ds.order))
	for _, name := range ds.order {
		dp := ds.points[name]
		prev, hasPrev := dp.Previous()
		states = append(states, PointState{
			Name:        name,
			Value:       formatValue(dp.Value()),
			Previous:    formatValue(prev),
			HasPrevious: hasPrev,
			Stale:       dp.Stale(),
		})
	}
	return states
}

func formatValue(v any) any {
	if v == nil {
		return nil
	}
	if s, err := AsString(v); err == nil {
		return s
	}
	return v
}

func (ds *Dataset) beginExecution() bool {
	return ds.executing.CompareAndSwap(false, true)
}

func (ds *Dataset) endExecution() {
	ds.executing.Store(false)
}
