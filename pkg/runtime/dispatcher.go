package runtime

import (
	"errors"
	"fmt"

	"github.com/xnlogical/via/pkg/isa"
	"github.com/xnlogical/via/pkg/value"
)

// errNonLocalUnwind signals that a nested run loop (runUntilReturn, used
// by metamethod invocation) already repositioned s.frame/s.ip via
// unwindToHandler, but the handler frame it resumed in sits at or above
// the Go call stack's own nested entry point. The Go call chain cannot
// un-call itself, so every intermediate caller (arith, toString, ...)
// simply returns this sentinel upward until Execute's own loop receives
// it and continues from the already-corrected state rather than treating
// it as a fresh unhandled error.
var errNonLocalUnwind = errors.New("runtime: non-local error unwind")

// Execute is the dispatcher's fetch-decode-execute loop. It drives
// State forward from the current ip until HALT/EXIT, an unhandled
// error, or a fatal condition, and returns the resulting process exit
// code.
func (s *State) Execute() int {
	for {
		if s.abort.Load() {
			s.exitCode = 1
			s.halted = true
			return s.exitCode
		}

		err := s.step()
		if err == nil {
			if s.halted {
				return s.exitCode
			}
			continue
		}
		if err == errNonLocalUnwind {
			continue
		}
		if err == ErrAborted {
			s.exitCode = 1
			s.halted = true
			return s.exitCode
		}

		if rerr, ok := err.(*RuntimeError); ok {
			if handled, _ := s.unwindToHandler(rerr); handled {
				continue
			}
			s.err = rerr
			s.printBacktrace(rerr)
			s.exitCode = 1
			s.halted = true
			return s.exitCode
		}

		// Fatal errors bypass propagation and terminate immediately.
		fmt.Fprintf(s.Stderr, "fatal: %s\n", err.Error())
		s.exitCode = 2
		s.halted = true
		return s.exitCode
	}
}

// runUntilReturn drives the dispatcher until control returns to target
// (used by metamethod invocation, which must synchronously run a nested
// via closure to completion from inside a Go-level opcode handler).
func (s *State) runUntilReturn(target *Frame) error {
	for {
		if s.abort.Load() {
			return ErrAborted
		}
		err := s.step()
		if err == nil {
			if s.halted {
				return nil
			}
			if s.frame == target {
				return nil
			}
			continue
		}

		rerr, ok := err.(*RuntimeError)
		if !ok {
			return err // fatal
		}
		handled, _ := s.unwindToHandler(rerr)
		if !handled {
			return rerr
		}
		if s.frameIsNestedUnder(s.frame, target) || s.frame == target {
			if s.frame == target {
				return nil
			}
			continue
		}
		return errNonLocalUnwind
	}
}

// frameIsNestedUnder reports whether f is target itself or a descendant
// of target in the caller chain.
func (s *State) frameIsNestedUnder(f, target *Frame) bool {
	for cur := f; cur != nil; cur = cur.Caller {
		if cur == target {
			return true
		}
	}
	return false
}

// ErrAborted is returned by runUntilReturn when the cooperative abort
// flag is observed mid-metamethod-call.
var ErrAborted = errors.New("runtime: execution aborted")

// unwindToHandler walks the frame chain from the current frame looking
// for the nearest frame marked as an error handler (set by PCALL). If
// found, control resumes in that frame as though it had just returned
// (false, message), mirroring the ordinary return protocol; if not, the
// caller is responsible for the unhandled-error path.
func (s *State) unwindToHandler(rerr *RuntimeError) (handled bool, err error) {
	if len(rerr.Trace) == 0 {
		ip := s.ip
		for f := s.frame; f != nil; f = f.Caller {
			rerr.Trace = append(rerr.Trace, StackFrame{Name: f.Name, IP: ip, IsError: f.IsErrorHandler})
			ip = f.RetAddr - 1
		}
	}

	cur := s.frame
	for cur != nil && !cur.IsErrorHandler {
		cur.closeUpvalues()
		value.Drop(cur.Closure)
		cur = cur.Caller
	}
	if cur == nil {
		return false, rerr
	}

	handler := cur
	handler.closeUpvalues()
	s.frame = handler.Caller
	s.ip = handler.RetAddr
	s.dropStackTo(handler.argBase())
	value.Drop(handler.Closure)

	msg := s.manager.Interner.Intern(rerr.Message)
	if err := s.push(value.Bool(false)); err != nil {
		return false, err
	}
	if err := s.push(msg); err != nil {
		return false, err
	}
	return true, nil
}

func (s *State) printBacktrace(rerr *RuntimeError) {
	fmt.Fprintf(s.Stderr, "unhandled error: %s\n", rerr.Error())
}

// step fetches, decodes and executes exactly one instruction, advancing
// ip (or setting it explicitly for jumps/calls). A nil return with
// s.halted set means HALT/EXIT was reached.
func (s *State) step() error {
	if s.debugger != nil {
		if stop := s.debugger.beforeStep(s); stop {
			s.Abort()
			return nil
		}
	}

	if s.ip < 0 || s.ip >= len(s.program.Instructions) {
		return ErrProgramFinished
	}
	instr := s.program.Instructions[s.ip]
	if !instr.Op.Valid() {
		return ErrInvalidOpcode
	}
	if s.trace != nil {
		fmt.Fprintf(s.trace, "%4d: %-14s a=%d b=%d c=%d\n", s.ip, instr.Op, instr.A, instr.B, instr.C)
	}

	next := s.ip + 1

	switch instr.Op {
	case isa.NOP:
		// no-op

	case isa.MOVE:
		v, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, value.Clone(v)); err != nil {
			return err
		}

	case isa.LOADK:
		v, err := s.constant(instr.B)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, value.Clone(v)); err != nil {
			return err
		}

	case isa.LOADNIL:
		if err := s.setRegister(instr.A, value.Nil()); err != nil {
			return err
		}

	case isa.LOADTABLE:
		if err := s.setRegister(instr.A, value.NewTable()); err != nil {
			return err
		}

	case isa.LOADFUNCTION, isa.NEWCLOSURE:
		cl := value.NewClosure(int(instr.B), int(instr.C), "", nil)
		if err := s.setRegister(instr.A, cl); err != nil {
			return err
		}

	case isa.CAPTURE:
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		if v.Kind() != value.KindClosure {
			return typeErrorf("CAPTURE on a non-closure register")
		}
		cl := v.AsClosure()
		slot := s.slotPointer(instr.B)
		uv := value.OpenUpvalue(slot)
		cl.Upvals = append(cl.Upvals, uv)
		s.frame.addOpenUpvalue(uv)

	case isa.GETUPV:
		uv, err := s.upvalue(instr.B)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, value.Clone(uv.Get())); err != nil {
			return err
		}

	case isa.SETUPV:
		uv, err := s.upvalue(instr.A)
		if err != nil {
			return err
		}
		v, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		uv.Set(value.Clone(v))

	case isa.ADD, isa.SUB, isa.MUL, isa.DIV, isa.POW, isa.MOD, isa.CONCAT:
		if err := s.binArith(instr, arithFor(instr.Op), false); err != nil {
			return err
		}

	case isa.ADDK, isa.SUBK, isa.MULK, isa.DIVK, isa.POWK, isa.MODK, isa.CONCATK:
		if err := s.binArith(instr, arithForK(instr.Op), true); err != nil {
			return err
		}

	case isa.NEG:
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		res, err := s.negate(v)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, res); err != nil {
			return err
		}

	case isa.INCREMENT, isa.DECREMENT:
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		delta := int64(1)
		if instr.Op == isa.DECREMENT {
			delta = -1
		}
		res, err := s.arith(opAdd, v, value.Int(delta))
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, res); err != nil {
			return err
		}

	case isa.EQUAL, isa.NOTEQUAL, isa.LESS, isa.LESSK, isa.GREATER, isa.LESSOREQUAL, isa.GREATEROREQUAL:
		if err := s.compare(instr); err != nil {
			return err
		}

	case isa.PUSH:
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		if err := s.push(value.Clone(v)); err != nil {
			return err
		}

	case isa.PUSHK:
		v, err := s.constant(instr.A)
		if err != nil {
			return err
		}
		if err := s.push(value.Clone(v)); err != nil {
			return err
		}

	case isa.POP:
		v, err := s.pop()
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, v); err != nil {
			return err
		}

	case isa.GETSTACK:
		v, err := s.getStack(instr.B)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, value.Clone(v)); err != nil {
			return err
		}

	case isa.SETSTACK:
		v, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		if err := s.setStack(instr.A, value.Clone(v)); err != nil {
			return err
		}

	case isa.GETARGUMENT:
		if err := s.setRegister(instr.A, s.getArgument(int(instr.B))); err != nil {
			return err
		}

	case isa.GETGLOBAL:
		h := isa.UnpackHash32(instr.B, instr.C)
		if err := s.setRegister(instr.A, s.manager.GetGlobal(h)); err != nil {
			return err
		}

	case isa.SETGLOBAL:
		h := isa.UnpackHash32(instr.B, instr.C)
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		if err := s.manager.SetGlobal(h, v); err != nil {
			return globalRedeclarationError(h)
		}

	case isa.JUMP:
		target := next + int(instr.SignedA())
		if err := s.checkJump(target); err != nil {
			return err
		}
		next = target

	case isa.JUMPIF, isa.JUMPIFNOT:
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		cond := value.Truthy(v)
		if instr.Op == isa.JUMPIFNOT {
			cond = !cond
		}
		if cond {
			target := next + int(instr.SignedB())
			if err := s.checkJump(target); err != nil {
				return err
			}
			next = target
		}

	case isa.JUMPIFEQUAL, isa.JUMPIFLESS:
		lhs, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		rhs, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		var cond bool
		if instr.Op == isa.JUMPIFEQUAL {
			cond = value.Equals(lhs, rhs)
		} else {
			cond, err = s.lessThan(lhs, rhs)
			if err != nil {
				return err
			}
		}
		if cond {
			target := next + int(instr.SignedC())
			if err := s.checkJump(target); err != nil {
				return err
			}
			next = target
		}

	case isa.CALL, isa.NATIVECALL, isa.EXTERNCALL, isa.METHODCALL, isa.PCALL:
		callee, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		argc := int(instr.B)
		switch instr.Op {
		case isa.CALL:
			err = s.call(callee, argc)
		case isa.NATIVECALL:
			err = s.nativeCall(callee, argc)
		case isa.EXTERNCALL:
			err = s.externCall(callee, argc)
		case isa.METHODCALL:
			err = s.methodCall(callee, argc)
		case isa.PCALL:
			err = s.protectedCall(callee, argc)
		}
		if err != nil {
			return err
		}
		// Every call flavor leaves s.ip pointing at the correct next
		// instruction itself (the callee's entry for NATIVECALL/PCALL, or
		// the already-restored return address for EXTERNCALL).
		next = s.ip

	case isa.RETURN:
		if err := s.ret(int(instr.A)); err != nil {
			return err
		}
		next = s.ip

	case isa.GETTABLE:
		tbl, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		key, err := s.getRegister(instr.C)
		if err != nil {
			return err
		}
		res, err := s.getTable(tbl, key)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, res); err != nil {
			return err
		}

	case isa.SETTABLE:
		tbl, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		key, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		val, err := s.getRegister(instr.C)
		if err != nil {
			return err
		}
		if err := s.setTable(tbl, key, val); err != nil {
			return err
		}

	case isa.NEXTTABLE:
		tbl, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		if tbl.Kind() != value.KindTable {
			return typeErrorf("attempt to iterate a %s value", value.TypeName(tbl))
		}
		prev, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		k, v, ok := tbl.AsTable().Next(prev)
		if !ok {
			k, v = value.Nil(), value.Nil()
		}
		if err := s.setRegister(instr.C, k); err != nil {
			return err
		}
		if err := s.setRegister(instr.C+1, v); err != nil {
			return err
		}

	case isa.LENTABLE, isa.LEN:
		v, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		res, err := s.length(v)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, res); err != nil {
			return err
		}

	case isa.GETSTRING:
		str, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		idx, err := s.getRegister(instr.C)
		if err != nil {
			return err
		}
		res, err := s.indexString(str, idx)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, res); err != nil {
			return err
		}

	case isa.LENSTRING:
		v, err := s.getRegister(instr.A)
		if err != nil {
			return err
		}
		if v.Kind() != value.KindString {
			return typeErrorf("attempt to take the length of a %s value", value.TypeName(v))
		}
		if err := s.setRegister(instr.A, value.Int(int64(v.AsString().Len()))); err != nil {
			return err
		}

	case isa.TYPE:
		v, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, s.manager.Interner.Intern(value.TypeName(v))); err != nil {
			return err
		}

	case isa.TYPEOF:
		v, err := s.getRegister(instr.B)
		if err != nil {
			return err
		}
		if err := s.setRegister(instr.A, s.typeOf(v)); err != nil {
			return err
		}

	case isa.HALT, isa.EXIT:
		s.halted = true
		return nil

	default:
		return ErrInvalidOpcode
	}

	s.ip = next
	return nil
}

func (s *State) checkJump(target int) error {
	if target < 0 || target > len(s.program.Instructions) {
		return ErrBadJump
	}
	return nil
}

func (s *State) constant(idx uint16) (value.Value, error) {
	if int(idx) >= len(s.program.Constants) {
		return value.Value{}, fmt.Errorf("constant %d: %w", idx, ErrConstantOOB)
	}
	return s.program.Constants[idx], nil
}

func (s *State) upvalue(idx uint16) (*value.Upvalue, error) {
	cl := s.frame.Closure
	if cl.Kind() != value.KindClosure {
		return nil, typeErrorf("GETUPV/SETUPV outside a closure frame")
	}
	upvals := cl.AsClosure().Upvals
	if int(idx) >= len(upvals) {
		return nil, typeErrorf("upvalue index %d out of range", idx)
	}
	return upvals[idx], nil
}
