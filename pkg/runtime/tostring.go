package runtime

import (
	"strings"

	"github.com/xnlogical/via/pkg/value"
)

// toString implements the string conversion. Tables call a __tostring
// metamethod when present instead of the default brace-delimited
// rendering.
func (s *State) toString(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindNil:
		return s.manager.Interner.Intern("nil"), nil
	case value.KindBool:
		if v.AsBool() {
			return s.manager.Interner.Intern("true"), nil
		}
		return s.manager.Interner.Intern("false"), nil
	case value.KindInt:
		return s.manager.Interner.Intern(itoa(v.AsInt())), nil
	case value.KindFloat:
		return s.manager.Interner.Intern(value.FormatFloat(v.AsFloat())), nil
	case value.KindString:
		return value.Clone(v), nil
	case value.KindTable:
		t := v.AsTable()
		if fn, ok := t.MetaMethod("__tostring"); ok {
			return s.invokeMeta1(fn, v)
		}
		return s.manager.Interner.Intern(tableToString(s, t)), nil
	case value.KindClosure, value.KindForeign:
		return s.manager.Interner.Intern(value.DebugString(v)), nil
	default:
		return s.manager.Interner.Intern("<unknown>"), nil
	}
}

func tableToString(s *State, t *value.TableObj) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range t.Entries() {
		if i > 0 {
			b.WriteString(", ")
		}
		kv, err := s.toString(e.Key)
		if err == nil {
			b.WriteString(kv.AsString().Data)
			value.Drop(kv)
		}
		b.WriteByte('=')
		vv, err := s.toString(e.Val)
		if err == nil {
			b.WriteString(vv.AsString().Data)
			value.Drop(vv)
		}
	}
	b.WriteByte('}')
	return b.String()
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	var buf [20]byte
	pos := len(buf)
	u := uint64(i)
	if neg {
		u = uint64(-i)
	}
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// length implements len(v): strings count bytes, tables use a __len
// metamethod if present, else the ordered-part count; anything else
// yields Nil.
func (s *State) length(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		return value.Int(int64(v.AsString().Len())), nil
	case value.KindTable:
		t := v.AsTable()
		if fn, ok := t.MetaMethod("__len"); ok {
			return s.invokeMeta1(fn, v)
		}
		return value.Int(t.Len()), nil
	default:
		return value.Nil(), nil
	}
}

// typeOf implements TYPEOF: a table's __type string if present, else
// the primitive tag name.
func (s *State) typeOf(v value.Value) value.Value {
	if v.Kind() == value.KindTable {
		if tv, ok := v.AsTable().MetaMethod("__type"); ok && tv.Kind() == value.KindString {
			return value.Clone(tv)
		}
	}
	return s.manager.Interner.Intern(value.TypeName(v))
}

// invokeMeta1 calls a metamethod with a single argument, used by
// to_string's __tostring and len's __len.
func (s *State) invokeMeta1(fn, arg value.Value) (value.Value, error) {
	if err := s.push(value.Clone(arg)); err != nil {
		return value.Value{}, err
	}
	caller := s.frame
	if err := s.call(fn, 1); err != nil {
		return value.Value{}, err
	}
	if fn.Kind() == value.KindClosure {
		if err := s.runUntilReturn(caller); err != nil {
			return value.Value{}, err
		}
	}
	return s.pop()
}
