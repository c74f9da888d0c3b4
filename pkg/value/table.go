package value

import "errors"

// ErrFrozenTable is returned by any mutation attempted on a frozen
// table.
var ErrFrozenTable = errors.New("attempt to mutate a frozen table")

type tableEntry struct {
	key Value
	val Value
}

// TableObj is the mutable associative container: an ordered indexed
// part (integer keys 0..n), an unordered part keyed by the 32-bit hash
// of string or integer keys with chaining on collision, an optional
// metatable, and a frozen flag.
type TableObj struct {
	array []Value
	hash  map[uint32][]*tableEntry
	order []*tableEntry // insertion order of the hash part, for iteration/to_string

	Meta   Value
	frozen bool
	rc     int32
}

func NewTable() Value {
	return fromTable(&TableObj{
		hash: make(map[uint32][]*tableEntry),
		Meta: Nil(),
		rc:   1,
	})
}

func (t *TableObj) refcount() *int32 { return &t.rc }

func (t *TableObj) release() {
	for _, v := range t.array {
		Drop(v)
	}
	for _, e := range t.order {
		Drop(e.key)
		Drop(e.val)
	}
	Drop(t.Meta)
}

func (t *TableObj) Frozen() bool { return t.frozen }

// Freeze makes every subsequent mutation fail with ErrFrozenTable.
func (t *TableObj) Freeze() { t.frozen = true }

// Get implements table indexing with no metamethod fallback; callers that
// need __index fallback (GETTABLE) check MetaMethod themselves.
func (t *TableObj) Get(key Value) Value {
	if key.Kind() == KindInt {
		i := key.AsInt()
		if i >= 0 && i < int64(len(t.array)) {
			return Clone(t.array[i])
		}
	}
	h := HashKey(key)
	for _, e := range t.hash[h] {
		if Equals(e.key, key) {
			return Clone(e.val)
		}
	}
	return Nil()
}

// Set implements table assignment. Assigning Nil to an existing key
// removes it, so a subsequent Get yields Nil.
func (t *TableObj) Set(key, val Value) error {
	if t.frozen {
		return ErrFrozenTable
	}

	if key.Kind() == KindInt {
		i := key.AsInt()
		if i >= 0 && i < int64(len(t.array)) {
			Drop(t.array[i])
			t.array[i] = Clone(val)
			return nil
		}
		if i == int64(len(t.array)) && !val.IsNil() {
			t.array = append(t.array, Clone(val))
			return nil
		}
	}

	h := HashKey(key)
	chain := t.hash[h]
	for idx, e := range chain {
		if Equals(e.key, key) {
			if val.IsNil() {
				Drop(e.key)
				Drop(e.val)
				t.hash[h] = append(chain[:idx], chain[idx+1:]...)
				for i, o := range t.order {
					if o == e {
						t.order = append(t.order[:i], t.order[i+1:]...)
						break
					}
				}
				return nil
			}
			old := e.val
			e.val = Clone(val)
			Drop(old)
			return nil
		}
	}

	if val.IsNil() {
		return nil
	}
	entry := &tableEntry{key: Clone(key), val: Clone(val)}
	t.hash[h] = append(chain, entry)
	t.order = append(t.order, entry)
	return nil
}

// Len is the integer length used by LENTABLE absent a __len metamethod:
// the count of the ordered (array) part.
func (t *TableObj) Len() int64 { return int64(len(t.array)) }

// MetaMethod looks up a string-keyed metamethod (e.g. "__add") on this
// table's metatable, if any.
func (t *TableObj) MetaMethod(name string) (Value, bool) {
	if t.Meta.IsNil() {
		return Nil(), false
	}
	meta := t.Meta.AsTable()
	h := HashString(name)
	for _, e := range meta.hash[h] {
		if e.key.Kind() == KindString && e.key.AsString().Data == name {
			return e.val, true
		}
	}
	return Nil(), false
}

// Next supports in-order iteration (NEXTTABLE): given the previous key
// (Nil to start), it returns the next (key, value) pair and true, or
// (Nil, Nil, false) once iteration is exhausted. Array-part entries are
// visited first in index order, then hash-part entries in insertion order.
func (t *TableObj) Next(prev Value) (Value, Value, bool) {
	if prev.IsNil() {
		if len(t.array) > 0 {
			return Int(0), Clone(t.array[0]), true
		}
		if len(t.order) > 0 {
			return Clone(t.order[0].key), Clone(t.order[0].val), true
		}
		return Nil(), Nil(), false
	}

	if prev.Kind() == KindInt {
		i := prev.AsInt()
		if i >= 0 && i+1 < int64(len(t.array)) {
			return Int(i + 1), Clone(t.array[i+1]), true
		}
		if i >= 0 && i+1 == int64(len(t.array)) {
			if len(t.order) > 0 {
				return Clone(t.order[0].key), Clone(t.order[0].val), true
			}
			return Nil(), Nil(), false
		}
	}

	for idx, e := range t.order {
		if Equals(e.key, prev) {
			if idx+1 < len(t.order) {
				return Clone(t.order[idx+1].key), Clone(t.order[idx+1].val), true
			}
			return Nil(), Nil(), false
		}
	}
	return Nil(), Nil(), false
}

// Entries returns every (key, value) pair, used by ToString to render the
// brace-delimited form: array-part entries first in index order, then
// hash-part entries in insertion order. Insertion order across the two
// parts is not kept.
func (t *TableObj) Entries() []struct {
	Key Value
	Val Value
} {
	out := make([]struct {
		Key Value
		Val Value
	}, 0, len(t.array)+len(t.order))
	for i, v := range t.array {
		out = append(out, struct {
			Key Value
			Val Value
		}{Int(int64(i)), v})
	}
	for _, e := range t.order {
		out = append(out, struct {
			Key Value
			Val Value
		}{e.key, e.val})
	}
	return out
}
