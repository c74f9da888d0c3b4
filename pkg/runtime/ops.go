package runtime

import (
	"github.com/xnlogical/via/pkg/isa"
	"github.com/xnlogical/via/pkg/value"
)

// arithFor/arithForK map an isa.Op to the arithOp enum arith()
// dispatches on: the two-register form reads dst as the left operand
// and overwrites it in place (ADD dst src means dst = dst + src); the K
// form reads the right operand from the constant pool instead of a
// register.
func arithFor(op isa.Op) arithOp {
	switch op {
	case isa.ADD:
		return opAdd
	case isa.SUB:
		return opSub
	case isa.MUL:
		return opMul
	case isa.DIV:
		return opDiv
	case isa.POW:
		return opPow
	case isa.MOD:
		return opMod
	case isa.CONCAT:
		return opConcat
	default:
		panic("runtime: arithFor: not a binary arithmetic opcode")
	}
}

func arithForK(op isa.Op) arithOp {
	switch op {
	case isa.ADDK:
		return opAdd
	case isa.SUBK:
		return opSub
	case isa.MULK:
		return opMul
	case isa.DIVK:
		return opDiv
	case isa.POWK:
		return opPow
	case isa.MODK:
		return opMod
	case isa.CONCATK:
		return opConcat
	default:
		panic("runtime: arithForK: not a binary arithmetic K-opcode")
	}
}

// binArith implements the two-operand (ADD/SUB/.../CONCAT) and K-variant
// forms: dst = dst <op> src, or dst = dst <op> K[idx]. Both read their
// left operand from instr.A and write the result back into instr.A.
func (s *State) binArith(instr isa.Instruction, op arithOp, fromConst bool) error {
	lhs, err := s.getRegister(instr.A)
	if err != nil {
		return err
	}
	var rhs value.Value
	if fromConst {
		rhs, err = s.constant(instr.B)
	} else {
		rhs, err = s.getRegister(instr.B)
	}
	if err != nil {
		return err
	}
	res, err := s.arith(op, lhs, rhs)
	if err != nil {
		return err
	}
	return s.setRegister(instr.A, res)
}

// negate implements NEG: numeric negation, a TypeError for anything
// else. There is no unary metamethod, so tables never negate.
func (s *State) negate(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindInt:
		return value.Int(-v.AsInt()), nil
	case value.KindFloat:
		return value.Float(-v.AsFloat()), nil
	default:
		return value.Value{}, typeErrorf("attempt to perform arithmetic on a %s value", value.TypeName(v))
	}
}

// compare implements the comparison opcode group: EQUAL/NOTEQUAL via
// Equals, the ordering opcodes via lessThan/lessOrEqual. A compiler may
// rewrite a>b into b<a itself; when it emits GREATER directly the
// operands are swapped here, so either way only __lt and __le exist as
// metamethods.
func (s *State) compare(instr isa.Instruction) error {
	lhs, err := s.getRegister(instr.A)
	if err != nil {
		return err
	}

	switch instr.Op {
	case isa.EQUAL, isa.NOTEQUAL:
		rhs, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		eq := value.Equals(lhs, rhs)
		if instr.Op == isa.NOTEQUAL {
			eq = !eq
		}
		return s.setRegister(instr.A, value.Bool(eq))

	case isa.LESS, isa.GREATER, isa.LESSOREQUAL, isa.GREATEROREQUAL:
		rhs, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		// GREATER/GREATEROREQUAL are evaluated as the swapped LESS form,
		// so only __lt/__le are ever consulted.
		var res bool
		switch instr.Op {
		case isa.LESS:
			res, err = s.lessThan(lhs, rhs)
		case isa.GREATER:
			res, err = s.lessThan(rhs, lhs)
		case isa.LESSOREQUAL:
			res, err = s.lessOrEqual(lhs, rhs)
		default:
			res, err = s.lessOrEqual(rhs, lhs)
		}
		if err != nil {
			return err
		}
		return s.setRegister(instr.A, value.Bool(res))

	case isa.LESSK:
		rhs, err := s.constant(instr.B)
		if err != nil {
			return err
		}
		res, err := s.lessThan(lhs, rhs)
		if err != nil {
			return err
		}
		return s.setRegister(instr.A, value.Bool(res))
	}
	return ErrInvalidOpcode
}

func (s *State) lessThan(lhs, rhs value.Value) (bool, error) {
	if isNumeric(lhs) && isNumeric(rhs) {
		return toFloat(lhs) < toFloat(rhs), nil
	}
	if lhs.Kind() == value.KindString && rhs.Kind() == value.KindString {
		return lhs.AsString().Data < rhs.AsString().Data, nil
	}
	if lhs.Kind() == value.KindTable {
		if fn, ok := lhs.AsTable().MetaMethod("__lt"); ok {
			res, err := s.invokeMeta(fn, lhs, rhs)
			if err != nil {
				return false, err
			}
			return value.Truthy(res), nil
		}
	}
	return false, typeErrorf("attempt to compare %s with %s", value.TypeName(lhs), value.TypeName(rhs))
}

func (s *State) lessOrEqual(lhs, rhs value.Value) (bool, error) {
	if isNumeric(lhs) && isNumeric(rhs) {
		return toFloat(lhs) <= toFloat(rhs), nil
	}
	if lhs.Kind() == value.KindString && rhs.Kind() == value.KindString {
		return lhs.AsString().Data <= rhs.AsString().Data, nil
	}
	if lhs.Kind() == value.KindTable {
		if fn, ok := lhs.AsTable().MetaMethod("__le"); ok {
			res, err := s.invokeMeta(fn, lhs, rhs)
			if err != nil {
				return false, err
			}
			return value.Truthy(res), nil
		}
	}
	return false, typeErrorf("attempt to compare %s with %s", value.TypeName(lhs), value.TypeName(rhs))
}

// getTable implements GETTABLE: a plain lookup, falling back to a
// table's __index metamethod (or nested table) when the key is absent.
func (s *State) getTable(tbl, key value.Value) (value.Value, error) {
	if tbl.Kind() != value.KindTable {
		return value.Value{}, typeErrorf("attempt to index a %s value", value.TypeName(tbl))
	}
	t := tbl.AsTable()
	v := t.Get(key)
	if !v.IsNil() {
		return v, nil
	}
	if fn, ok := t.MetaMethod("__index"); ok {
		if fn.Kind() == value.KindTable {
			return s.getTable(fn, key)
		}
		return s.invokeMeta(fn, tbl, key)
	}
	return value.Nil(), nil
}

// setTable implements SETTABLE: assignment, rejecting frozen tables
// and falling back to a __newindex metamethod when present and the key
// is not already a direct member.
func (s *State) setTable(tbl, key, val value.Value) error {
	if tbl.Kind() != value.KindTable {
		return typeErrorf("attempt to index a %s value", value.TypeName(tbl))
	}
	t := tbl.AsTable()
	if t.Frozen() {
		return frozenTableError()
	}
	if t.Get(key).IsNil() {
		if fn, ok := t.MetaMethod("__newindex"); ok {
			if fn.Kind() == value.KindTable {
				return s.setTable(fn, key, val)
			}
			_, err := s.invokeMeta(fn, key, val)
			return err
		}
	}
	if err := t.Set(key, val); err != nil {
		return frozenTableError()
	}
	return nil
}

// indexString implements GETSTRING: index by integer, returning the
// character's byte value as an Int, or Nil out of range.
func (s *State) indexString(str, idx value.Value) (value.Value, error) {
	if str.Kind() != value.KindString {
		return value.Value{}, typeErrorf("attempt to index a %s value", value.TypeName(str))
	}
	if idx.Kind() != value.KindInt {
		return value.Value{}, typeErrorf("string index must be an integer, got %s", value.TypeName(idx))
	}
	data := str.AsString().Data
	i := idx.AsInt()
	if i < 0 || i >= int64(len(data)) {
		return value.Nil(), nil
	}
	return value.Int(int64(data[i])), nil
}
