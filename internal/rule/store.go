package rule

import "sync"

// Store holds at most one rule per field name.
type Store interface {
	Reader
	// Put replaces any existing rule for field.
	Put(field string, r Rule)
	// Delete removes the rule for field and reports whether one existed.
	Delete(field string) bool
	// Fields lists the fields that have rules.
	Fields() []string
}

// MemoryStore is an in-memory Store owned by a single editing session.
type MemoryStore struct {
	mu    sync.RWMutex
	rules Set
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with a copy of initial.
func NewMemoryStore(initial Set) *MemoryStore {
	rules := make(Set, len(initial))
	for k, v := range initial {
		rules[k] = v
	}
	return &MemoryStore{rules: rules}
}

func (m *MemoryStore) Get(field string) (Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[field]
	return r, ok
}

func (m *MemoryStore) Put(field string, r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[field] = r
}

func (m *MemoryStore) Delete(field string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[field]; !ok {
		return false
	}
	delete(m.rules, field)
	return true
}

func (m *MemoryStore) Fields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rules.Fields()
}
