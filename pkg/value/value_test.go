package value

import "testing"

func TestPrimitiveConstructors(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"nil", Nil(), KindNil},
		{"int", Int(42), KindInt},
		{"float", Float(3.5), KindFloat},
		{"bool", Bool(true), KindBool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.v.Kind() != tt.kind {
				t.Fatalf("Kind() = %v, want %v", tt.v.Kind(), tt.kind)
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"nil is falsy", Nil(), false},
		{"false is falsy", Bool(false), false},
		{"true is truthy", Bool(true), true},
		{"zero int is truthy", Int(0), true},
		{"empty string is truthy", NewInternTable().Intern(""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truthy(tt.v); got != tt.want {
				t.Errorf("Truthy(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestEquals(t *testing.T) {
	interner := NewInternTable()
	foo1 := interner.Intern("foo")
	foo2 := interner.Intern("foo")
	bar := interner.Intern("bar")

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int==int", Int(5), Int(5), true},
		{"int!=int", Int(5), Int(6), false},
		{"int==float cross-tag", Int(5), Float(5.0), true},
		{"float!=float", Float(1.5), Float(2.5), false},
		{"string==string interned twice", foo1, foo2, true},
		{"string!=string", foo1, bar, false},
		{"bool==bool", Bool(true), Bool(true), true},
		{"nil==nil", Nil(), Nil(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equals(tt.a, tt.b); got != tt.want {
				t.Errorf("Equals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCloneDropRefcount(t *testing.T) {
	tbl := NewTable()
	clone := Clone(tbl)

	to := tbl.AsTable()
	if *to.refcount() != 2 {
		t.Fatalf("after Clone, refcount = %d, want 2", *to.refcount())
	}

	Drop(clone)
	if *to.refcount() != 1 {
		t.Fatalf("after one Drop, refcount = %d, want 1", *to.refcount())
	}

	Drop(tbl)
}

func TestToNumber(t *testing.T) {
	interner := NewInternTable()
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"decimal int", "42", Int(42)},
		{"negative int", "-7", Int(-7)},
		{"float", "3.5", Float(3.5)},
		{"hex", "0x2A", Int(42)},
		{"binary", "0b101", Int(5)},
		{"garbage", "abc", Nil()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := interner.Intern(tt.in)
			got := ToNumber(v)
			if !Equals(got, tt.want) {
				t.Errorf("ToNumber(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
