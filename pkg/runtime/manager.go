package runtime

import (
	"sync"

	"github.com/xnlogical/via/pkg/value"
)

// Manager holds the state a host may share across several VM
// instances: the string intern table and the global table, each
// protected by its own lock. There are no package-level singletons;
// every table is reachable only through a Manager.
type Manager struct {
	Interner *value.InternTable

	mu      sync.RWMutex
	globals map[uint32]value.Value
}

// NewManager creates a Manager with empty tables. Independent VMs that
// must not observe each other's globals or interned strings should each
// get their own Manager.
func NewManager() *Manager {
	return &Manager{
		Interner: value.NewInternTable(),
		globals:  make(map[uint32]value.Value),
	}
}

// GetGlobal looks up a global by its 32-bit identifier hash. An
// unbound global yields Nil, not an error.
func (m *Manager) GetGlobal(hash uint32) value.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.globals[hash]
	if !ok {
		return value.Nil()
	}
	return value.Clone(v)
}

// SetGlobal declares a new global. Globals are declare-once:
// re-declaring an already-bound identifier is an error, returned here
// so the caller can raise it through the normal recoverable-error path
// rather than panicking.
func (m *Manager) SetGlobal(hash uint32, v value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.globals[hash]; exists {
		return ErrGlobalRedeclaration
	}
	m.globals[hash] = value.Clone(v)
	return nil
}
