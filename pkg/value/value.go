// Package value implements the via execution core's tagged value
// representation: the primitive kinds, the heap object handles
// (string, table, closure, foreign) and the reference-counting
// discipline that governs their lifetime.
//
// Heap variants carry an explicit refcount, incremented on Clone and
// decremented on Drop, with the object released at zero. Go's collector
// still reclaims anything truly unreachable; the refcount exists to
// give String/Table/Closure/Foreign handles deterministic lifetimes:
// interned strings are evicted the moment their last handle drops, and
// tests can observe exactly when a closure dies.
package value

import (
	"fmt"
	"math"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindTable
	KindClosure
	KindForeign
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindClosure:
		return "function"
	case KindForeign:
		return "cfunction"
	default:
		return "unknown"
	}
}

// heapObject is satisfied by every reference-counted heap variant.
type heapObject interface {
	refcount() *int32
	release()
}

// Value is the tagged union at the center of the VM. Inline variants
// (Nil, Int, Float, Bool) copy by value; heap variants (String, Table,
// Closure, Foreign) carry an owning handle whose lifetime is governed
// by Clone/Drop.
type Value struct {
	kind Kind
	n    uint64 // bit pattern for Int (as uint64), Float (math.Float64bits) or Bool (0/1)
	obj  heapObject
}

func Nil() Value            { return Value{kind: KindNil} }
func Int(i int64) Value     { return Value{kind: KindInt, n: uint64(i)} }
func Float(f float64) Value { return Value{kind: KindFloat, n: math.Float64bits(f)} }

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool, n: 0}
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) AsInt() int64     { return int64(v.n) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.n) }
func (v Value) AsBool() bool     { return v.n != 0 }

// AsString returns the underlying *StringObj. Panics if v is not a
// string; callers check Kind() first.
func (v Value) AsString() *StringObj   { return v.obj.(*StringObj) }
func (v Value) AsTable() *TableObj     { return v.obj.(*TableObj) }
func (v Value) AsClosure() *ClosureObj { return v.obj.(*ClosureObj) }
func (v Value) AsForeign() *ForeignObj { return v.obj.(*ForeignObj) }

func fromString(s *StringObj) Value   { return Value{kind: KindString, obj: s} }
func fromTable(t *TableObj) Value     { return Value{kind: KindTable, obj: t} }
func fromClosure(c *ClosureObj) Value { return Value{kind: KindClosure, obj: c} }
func fromForeign(f *ForeignObj) Value { return Value{kind: KindForeign, obj: f} }

// Clone produces a logically equal Value. For heap variants it
// increments the refcount and returns a handle to the same object; for
// inline variants it is a plain copy.
func Clone(v Value) Value {
	if v.obj != nil {
		rc := v.obj.refcount()
		*rc++
	}
	return v
}

// Drop decrements the refcount of a heap variant. At zero the object
// (and, recursively, any Values it contains) is released. Inline
// variants are a no-op.
func Drop(v Value) {
	if v.obj == nil {
		return
	}
	rc := v.obj.refcount()
	*rc--
	if *rc <= 0 {
		v.obj.release()
	}
}

// Refcount reports the current reference count of a heap variant, or 0
// for inline variants. It exists for tests and debug tooling asserting
// the lifecycle invariants; nothing in the dispatcher consults it.
func Refcount(v Value) int32 {
	if v.obj == nil {
		return 0
	}
	return *v.obj.refcount()
}

// Truthy returns false for Nil and Bool(false); everything else,
// including 0, "", and an empty table, is truthy.
func Truthy(v Value) bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.n != 0
	default:
		return true
	}
}

// TypeName returns the primitive tag name used by the TYPE opcode.
func TypeName(v Value) string { return v.kind.String() }

// DebugString renders a value for error messages and disassembly; unlike
// ToString it never allocates an interned string or calls a metamethod.
func DebugString(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%v", v.AsBool())
	case KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KindFloat:
		return fmt.Sprintf("%g", v.AsFloat())
	case KindString:
		return v.AsString().Data
	case KindTable:
		return fmt.Sprintf("<table@%p>", v.obj)
	case KindClosure:
		return fmt.Sprintf("<function@%p>", v.obj)
	case KindForeign:
		return fmt.Sprintf("<cfunction@%p>", v.obj)
	default:
		return "<unknown>"
	}
}
