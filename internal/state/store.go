package state

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Store holds the current ApplicationState for one hub instance and applies
// merge-updates to it. The value is kept as raw JSON keyed by top-level field
// name: a merge replaces the entire value bound to each key present in the
// patch and never recurses into nested structures, so a patch carrying a
// partial musicGrid wipes the squares it omits. Unknown keys are accepted and
// carried verbatim; the store performs no schema validation.
//
// The hub processes all mutations on a single loop, but Store carries its own
// mutex so mirrors and durable writers can read it from other goroutines.
type Store struct {
	mu     sync.RWMutex
	fields map[string]json.RawMessage
}

// NewStore creates a store seeded with the hard-coded default state.
func NewStore() *Store {
	defaults, err := json.Marshal(DefaultState())
	if err != nil {
		// DefaultState contains only marshalable values.
		panic(fmt.Sprintf("state: marshal default state: %v", err))
	}
	s, err := NewStoreFrom(defaults)
	if err != nil {
		panic(fmt.Sprintf("state: seed default state: %v", err))
	}
	return s
}

// NewStoreFrom creates a store seeded with a previously captured snapshot,
// typically loaded from a durable session record when an instance is
// recreated. The snapshot must be a JSON object.
func NewStoreFrom(snapshot []byte) (*Store, error) {
	fields, err := decodeObject(snapshot)
	if err != nil {
		return nil, fmt.Errorf("seed snapshot: %w", err)
	}
	return &Store{fields: fields}, nil
}

// Snapshot returns the complete current state as a JSON object. Keys are
// emitted in sorted order, so identical states produce identical bytes.
func (s *Store) Snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encode()
}

// Merge applies a partial patch: every top-level key present in the patch
// replaces the current value for that key wholesale; keys absent from the
// patch are left untouched. It returns the complete post-merge state. The
// only rejected input is a patch that is not a JSON object; in that case the
// current state is unchanged.
func (s *Store) Merge(patch []byte) ([]byte, error) {
	incoming, err := decodeObject(patch)
	if err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range incoming {
		s.fields[key] = value
	}
	return s.encode(), nil
}

// encode marshals the current fields. Callers must hold at least a read lock.
func (s *Store) encode() []byte {
	out, err := json.Marshal(s.fields)
	if err != nil {
		// Values are json.RawMessage fragments already validated on entry.
		panic(fmt.Sprintf("state: marshal snapshot: %v", err))
	}
	return out
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	return fields, nil
}
