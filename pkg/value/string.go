package value

import "sync"

// StringObj is the heap-allocated, immutable string object referenced
// by Value{kind: KindString}. Content never changes after construction.
type StringObj struct {
	Data string
	Hash uint32
	rc   int32

	table *InternTable // back-reference so release() can evict itself
}

func (s *StringObj) refcount() *int32 { return &s.rc }

func (s *StringObj) release() {
	if s.table != nil {
		s.table.evict(s)
	}
}

func (s *StringObj) Len() int { return len(s.Data) }

// InternTable maps content hashes to canonical string objects.
// Insertion is idempotent: interning two strings of equal content
// returns the same handle. There is no process-wide table; every
// Manager carries its own, so independent VMs never share strings
// unless the host arranges it.
//
// An RWMutex guards the chains so that a table shared across VM
// instances never observes a partially inserted entry.
type InternTable struct {
	mu     sync.RWMutex
	chains map[uint32][]*StringObj
}

func NewInternTable() *InternTable {
	return &InternTable{chains: make(map[uint32][]*StringObj)}
}

// Intern returns the canonical StringObj for s, creating and registering
// one if this is the first time s's content has been seen. The returned
// Value owns one reference; callers that store it must Clone if they need
// an additional owning handle.
func (t *InternTable) Intern(s string) Value {
	h := HashString(s)

	t.mu.RLock()
	for _, cand := range t.chains[h] {
		if cand.Data == s {
			cand.rc++
			t.mu.RUnlock()
			return fromString(cand)
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check under the write lock: another goroutine may have interned
	// the same content between the RUnlock above and here.
	for _, cand := range t.chains[h] {
		if cand.Data == s {
			cand.rc++
			return fromString(cand)
		}
	}

	obj := &StringObj{Data: s, Hash: h, rc: 1, table: t}
	t.chains[h] = append(t.chains[h], obj)
	return fromString(obj)
}

// evict removes a string object from the table once its last reference
// has dropped, before the object's storage is released.
func (t *InternTable) evict(s *StringObj) {
	t.mu.Lock()
	defer t.mu.Unlock()
	chain := t.chains[s.Hash]
	for i, cand := range chain {
		if cand == s {
			t.chains[s.Hash] = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(t.chains[s.Hash]) == 0 {
		delete(t.chains, s.Hash)
	}
}

// Len reports how many distinct strings are currently interned; used by
// tests asserting that intermediate strings are freed.
func (t *InternTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, chain := range t.chains {
		n += len(chain)
	}
	return n
}
