// Package session provides the run-scoped state shared between workflow steps.
// Values produced by completed steps (user IDs, tokens, entity references) are
// stored here for later steps to read. A State is created empty at the start
// of a run and discarded when the run ends; nothing persists across runs.
package session

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// Errors returned by the session package.
var (
	// ErrKeyNotSet is returned when a requested key has not been stored.
	ErrKeyNotSet = errors.New("session: key not set")
	// ErrWrongType is returned when a stored value has an unexpected type.
	ErrWrongType = errors.New("session: value has wrong type")
)

// State is a string-keyed bag of values threaded through a single run.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty State.
func New() *State {
	return &State{
		values: make(map[string]any),
	}
}

// Set stores a value under key, replacing any existing value.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get retrieves a value by key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.values[key]
	return val, ok
}

// Has reports whether key has been stored.
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// String retrieves a string value by key.
func (s *State) String(key string) (string, error) {
	val, ok := s.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotSet, key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s holds %T, want string", ErrWrongType, key, val)
	}
	return str, nil
}

// Int retrieves an integer value by key. JSON numbers decoded as float64 are
// accepted when they carry a whole value.
func (s *State) Int(key string) (int64, error) {
	val, ok := s.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKeyNotSet, key)
	}
	switch n := val.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%w: %s holds non-integer number %v", ErrWrongType, key, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s holds %T, want integer", ErrWrongType, key, val)
	}
}

// Keys returns all stored keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored values.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of all stored values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]any, len(s.values))
	maps.Copy(result, s.values)
	return result
}
