package runtime

import (
	"math"

	"github.com/xnlogical/via/pkg/value"
)

// arithOp names the seven binary arithmetic opcodes and their
// K-variants: used to pick a metamethod name and an integer or float
// operation.
type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opPow
	opMod
	opConcat
)

var metaNames = [...]string{"__add", "__sub", "__mul", "__div", "__pow", "__mod", "__concat"}

// arith dispatches a binary arithmetic operation: integer arithmetic
// when both operands are Int, float promotion when either is Float,
// then a left-operand metamethod, then TypeError.
func (s *State) arith(op arithOp, lhs, rhs value.Value) (value.Value, error) {
	if op == opConcat {
		return s.concat(lhs, rhs)
	}

	// POW with a negative integer exponent promotes both operands to
	// float; integer exponentiation is defined only for non-negative
	// exponents.
	if lhs.Kind() == value.KindInt && rhs.Kind() == value.KindInt {
		if op == opPow && rhs.AsInt() < 0 {
			return floatArith(op, float64(lhs.AsInt()), float64(rhs.AsInt()))
		}
		return intArith(op, lhs.AsInt(), rhs.AsInt())
	}

	if isNumeric(lhs) && isNumeric(rhs) {
		return floatArith(op, toFloat(lhs), toFloat(rhs))
	}

	if lhs.Kind() == value.KindTable {
		if fn, ok := lhs.AsTable().MetaMethod(metaNames[op]); ok {
			return s.invokeMeta(fn, lhs, rhs)
		}
	}

	return value.Value{}, typeErrorf("attempt to perform arithmetic on %s and %s",
		value.TypeName(lhs), value.TypeName(rhs))
}

func isNumeric(v value.Value) bool {
	return v.Kind() == value.KindInt || v.Kind() == value.KindFloat
}

func toFloat(v value.Value) float64 {
	if v.Kind() == value.KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func intArith(op arithOp, a, b int64) (value.Value, error) {
	switch op {
	case opAdd:
		return value.Int(a + b), nil
	case opSub:
		return value.Int(a - b), nil
	case opMul:
		return value.Int(a * b), nil
	case opDiv:
		if b == 0 {
			return value.Value{}, typeErrorf("attempt to divide by zero")
		}
		return value.Int(a / b), nil
	case opMod:
		if b == 0 {
			return value.Value{}, typeErrorf("attempt to perform 'n%%0'")
		}
		return value.Int(a % b), nil
	case opPow:
		return value.Int(intPow(a, b)), nil
	default:
		return value.Value{}, typeErrorf("unsupported integer arithmetic op")
	}
}

func intPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for ; exp > 0; exp-- {
		result *= base
	}
	return result
}

func floatArith(op arithOp, a, b float64) (value.Value, error) {
	switch op {
	case opAdd:
		return value.Float(a + b), nil
	case opSub:
		return value.Float(a - b), nil
	case opMul:
		return value.Float(a * b), nil
	case opDiv:
		return value.Float(a / b), nil
	case opMod:
		return value.Float(floatMod(a, b)), nil
	case opPow:
		return value.Float(floatPow(a, b)), nil
	default:
		return value.Value{}, typeErrorf("unsupported float arithmetic op")
	}
}

// floatMod matches truncated-division remainder semantics, consistent
// with intArith's %, computed as a - trunc(a/b)*b rather than with
// math.Mod.
func floatMod(a, b float64) float64 {
	return a - trunc(a/b)*b
}

func trunc(f float64) float64 {
	if f < 0 {
		return -float64(int64(-f))
	}
	return float64(int64(f))
}

func floatPow(base, exp float64) float64 {
	return math.Pow(base, exp)
}

// concat implements CONCAT. Its only defined operand kind is String:
// both operands must already be strings (string conversion is a
// separate, explicit operation), so it skips the int/float dispatch
// ladder and falls straight to the metamethod/TypeError cases.
func (s *State) concat(lhs, rhs value.Value) (value.Value, error) {
	if lhs.Kind() == value.KindString && rhs.Kind() == value.KindString {
		joined := lhs.AsString().Data + rhs.AsString().Data
		return s.manager.Interner.Intern(joined), nil
	}
	if lhs.Kind() == value.KindTable {
		if fn, ok := lhs.AsTable().MetaMethod("__concat"); ok {
			return s.invokeMeta(fn, lhs, rhs)
		}
	}
	return value.Value{}, typeErrorf("attempt to concatenate %s and %s",
		value.TypeName(lhs), value.TypeName(rhs))
}

// invokeMeta calls a metamethod with two arguments: push left, push
// right, invoke, pop the return. It borrows the call protocol rather
// than duplicating it.
func (s *State) invokeMeta(fn, lhs, rhs value.Value) (value.Value, error) {
	if err := s.push(value.Clone(lhs)); err != nil {
		return value.Value{}, err
	}
	if err := s.push(value.Clone(rhs)); err != nil {
		return value.Value{}, err
	}
	caller := s.frame
	if err := s.call(fn, 2); err != nil {
		return value.Value{}, err
	}
	if fn.Kind() == value.KindClosure {
		if err := s.runUntilReturn(caller); err != nil {
			return value.Value{}, err
		}
	}
	return s.pop()
}
