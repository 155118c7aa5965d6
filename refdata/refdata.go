// Package refdata resolves static instrument fields such as exchange code
// and average volume.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Reference data fields used by the engine.
const (
	FieldExchange     = "EXCH_CODE"
	FieldAvgVolume20D = "VOLUME_AVG_20D"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrUnknownField      = errors.New("unknown field")
)

// Lookup returns the current value of a named field for an instrument.
type Lookup interface {
	Field(ctx context.Context, instrument, field string) (string, error)
}

// Static serves reference data from memory.
type Static struct {
	mu          sync.RWMutex
	instruments map[string]map[string]string
}

type staticFile struct {
	Instruments map[string]map[string]string `yaml:"instruments"`
}

func NewStatic(instruments map[string]map[string]string) *Static {
	s := &Static{instruments: make(map[string]map[string]string, len(instruments))}
	for name, fields := range instruments {
		s.Set(name, fields)
	}
	return s
}

// LoadStatic reads a YAML file of the form
//
//	instruments:
//	  "XYZ US Equity":
//	    EXCH_CODE: US
//	    VOLUME_AVG_20D: "2000"
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference data: %w", err)
	}
	return ParseStatic(data)
}

func ParseStatic(data []byte) (*Static, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	return NewStatic(f.Instruments), nil
}

// Set replaces the fields of one instrument.
func (s *Static) Set(instrument string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	s.mu.Lock()
	s.instruments[instrument] = copied
	s.mu.Unlock()
}

func (s *Static) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.instruments))
	for name := range s.instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Static) Field(_ context.Context, instrument, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.instruments[instrument]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	v, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", ErrUnknownField, instrument, field)
	}
	return v, nil
}

// File reads reference data from a YAML file on every lookup, so edits
// take effect without a restart. Front it with Cached to bound the reads.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Field(ctx context.Context, instrument, field string) (string, error) {
	s, err := LoadStatic(f.path)
	if err != nil {
		return "", err
	}
	return s.Field(ctx, instrument, field)
}
