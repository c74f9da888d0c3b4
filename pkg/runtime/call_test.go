package runtime

import (
	"io"
	"testing"

	"github.com/xnlogical/via/pkg/isa"
	"github.com/xnlogical/via/pkg/value"
)

func TestCallClosureReturnsValue(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			LOADK r1 7
			PUSH r1
			RETURN 1
		ENDFUNCTION
		CALL r0 0
		HALT
	`)
	top := stackTop(t, s)
	if top.Kind() != value.KindInt || top.AsInt() != 7 {
		t.Errorf("top = %s, want Int(7)", value.DebugString(top))
	}
}

func TestCallPassesArguments(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 2
			GETARGUMENT r1 0
			GETARGUMENT r2 1
			SUB r1 r2
			PUSH r1
			RETURN 1
		ENDFUNCTION
		LOADK r3 10
		PUSH r3
		LOADK r3 4
		PUSH r3
		CALL r0 2
		HALT
	`)
	top := stackTop(t, s)
	if top.AsInt() != 6 {
		t.Errorf("top = %s, want Int(6): argument 0 must be the first pushed", value.DebugString(top))
	}
}

// TestMissingArgumentsReadNil: arity mismatches are lenient, a missing
// argument reads as Nil.
func TestMissingArgumentsReadNil(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 2
			GETARGUMENT r1 5
			PUSH r1
			RETURN 1
		ENDFUNCTION
		LOADK r2 1
		PUSH r2
		CALL r0 1
		HALT
	`)
	if top := stackTop(t, s); !top.IsNil() {
		t.Errorf("missing argument = %s, want nil", value.DebugString(top))
	}
}

// TestExtraArgumentsDiscarded: passing more arguments than the callee
// reads leaves the stack balanced after return.
func TestExtraArgumentsDiscarded(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 1
			RETURN 0
		ENDFUNCTION
		LOADK r1 1
		PUSH r1
		PUSH r1
		PUSH r1
		CALL r0 3
		HALT
	`)
	if s.sp != 0 {
		t.Errorf("sp = %d after return, want 0 (argument window dropped)", s.sp)
	}
}

func TestNestedCalls(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 1
			GETARGUMENT r1 0
			ADDK r1 1
			PUSH r1
			RETURN 1
		ENDFUNCTION
		SETGLOBAL r0 incr
		NEWCLOSURE r0 1
			GETARGUMENT r1 0
			PUSH r1
			GETGLOBAL r2 incr
			CALL r2 1
			POP r1
			PUSH r1
			GETGLOBAL r2 incr
			CALL r2 1
			RETURN 1
		ENDFUNCTION
		LOADK r3 40
		PUSH r3
		CALL r0 1
		HALT
	`)
	top := stackTop(t, s)
	if top.AsInt() != 42 {
		t.Errorf("top = %s, want Int(42)", value.DebugString(top))
	}
}

func TestMultipleReturnValuesKeepOrder(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			LOADK r1 1
			PUSH r1
			LOADK r1 2
			PUSH r1
			RETURN 2
		ENDFUNCTION
		CALL r0 0
		HALT
	`)
	top := stackTop(t, s)
	if top.AsInt() != 2 {
		t.Errorf("top = %s, want Int(2) (caller sees returns in original order)", value.DebugString(top))
	}
	second := s.stack[s.sp-2]
	if second.AsInt() != 1 {
		t.Errorf("second = %s, want Int(1)", value.DebugString(second))
	}
}

// TestClosureUpvalueChain is the (fn() => fn() => 1)()() shape: calling
// the outer closure yields an inner closure; calling that yields 1, and
// the intermediate closure is freed once its last handle drops.
func TestClosureUpvalueChain(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			NEWCLOSURE r1 0
				LOADK r2 1
				PUSH r2
				RETURN 1
			ENDFUNCTION
			PUSH r1
			RETURN 1
		ENDFUNCTION
		CALL r0 0
		POP r3
		CALL r3 0
		HALT
	`)
	top := stackTop(t, s)
	if top.Kind() != value.KindInt || top.AsInt() != 1 {
		t.Errorf("top = %s, want Int(1)", value.DebugString(top))
	}

	inner, err := s.getRegister(3)
	if err != nil {
		t.Fatal(err)
	}
	if got := value.Refcount(inner); got != 2 {
		t.Errorf("inner closure refcount = %d while held by r1 and r3, want 2", got)
	}
	if err := s.setRegister(3, value.Nil()); err != nil {
		t.Fatal(err)
	}
	if err := s.setRegister(1, value.Nil()); err != nil {
		t.Fatal(err)
	}
	// r3 and r1 held the only remaining handles; dropping them must
	// free the closure.
	if got := value.Refcount(inner); got != 0 {
		t.Errorf("inner closure refcount = %d after last drop, want 0", got)
	}
}

// TestUpvalueCapturesLiveSlot: a closure reads the current value of a
// captured stack slot while the owning frame is still live.
func TestUpvalueCapturesLiveSlot(t *testing.T) {
	s := run(t, `
		LOADK r0 10
		PUSH r0
		NEWCLOSURE r1 0
			GETUPV r2 0
			PUSH r2
			RETURN 1
		ENDFUNCTION
		CAPTURE r1 0
		CALL r1 0
		HALT
	`)
	top := stackTop(t, s)
	if top.AsInt() != 10 {
		t.Errorf("top = %s, want Int(10)", value.DebugString(top))
	}
}

// TestUpvalueClosedOnReturn: a closure returned out of its defining
// frame still sees the captured local after that frame's slots are gone.
func TestUpvalueClosedOnReturn(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			LOADK r1 42
			PUSH r1
			NEWCLOSURE r2 0
				GETUPV r3 0
				PUSH r3
				RETURN 1
			ENDFUNCTION
			CAPTURE r2 0
			PUSH r2
			RETURN 1
		ENDFUNCTION
		CALL r0 0
		POP r4
		LOADK r5 0
		PUSH r5
		PUSH r5
		POP r6
		POP r6
		CALL r4 0
		HALT
	`)
	top := stackTop(t, s)
	if top.AsInt() != 42 {
		t.Errorf("top = %s, want Int(42) (upvalue should be closed with the captured value)", value.DebugString(top))
	}
}

func TestSetUpvalueWritesThrough(t *testing.T) {
	s := run(t, `
		LOADK r0 1
		PUSH r0
		NEWCLOSURE r1 0
			LOADK r2 99
			SETUPV 0 r2
			RETURN 0
		ENDFUNCTION
		CAPTURE r1 0
		CALL r1 0
		POP r3
		PUSH r3
		HALT
	`)
	top := stackTop(t, s)
	if top.AsInt() != 99 {
		t.Errorf("top = %s, want Int(99) (SETUPV must write the live slot)", value.DebugString(top))
	}
}

func TestExternCall(t *testing.T) {
	m := NewManager()
	double := value.NewForeign("double", func(h value.Handle) error {
		v := h.Argument(0)
		defer value.Drop(v)
		if v.Kind() != value.KindInt {
			return ArgumentError("argument 0: expected integer")
		}
		return h.Push(value.Int(v.AsInt() * 2))
	})
	if err := m.SetGlobal(value.HashString("double"), double); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}
	value.Drop(double)

	src := `
		GETGLOBAL r0 double
		LOADK r1 21
		PUSH r1
		CALL r0 1
		HALT
	`
	p, err := isa.NewAssembler(m.Interner).Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	s := NewState(p, m)
	s.Stderr = io.Discard
	if code := s.Execute(); code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	top := stackTop(t, s)
	if top.AsInt() != 42 {
		t.Errorf("top = %s, want Int(42)", value.DebugString(top))
	}
	if s.sp != 1 {
		t.Errorf("sp = %d, want 1 (argument window dropped, one result)", s.sp)
	}
}

func TestExternCallErrorPropagates(t *testing.T) {
	m := NewManager()
	boom := value.NewForeign("boom", func(h value.Handle) error {
		return ArgumentError("bad argument")
	})
	if err := m.SetGlobal(value.HashString("boom"), boom); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}
	value.Drop(boom)

	p, err := isa.NewAssembler(m.Interner).Assemble("GETGLOBAL r0 boom\nCALL r0 0\nHALT")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	s := NewState(p, m)
	s.Stderr = io.Discard
	if code := s.Execute(); code == 0 {
		t.Fatal("foreign error did not produce a non-zero exit")
	}
	if s.Err().Kind != "ArgumentError" {
		t.Errorf("error kind = %q, want ArgumentError", s.Err().Kind)
	}
}

// TestMethodCallReceiver: calling a table routes through its __call
// metamethod with the table itself as argument 0.
func TestMethodCallReceiver(t *testing.T) {
	m := NewManager()
	src := `
		GETGLOBAL r0 callable
		LOADK r1 5
		PUSH r1
		METHODCALL r0 1
		HALT
	`
	p, err := isa.NewAssembler(m.Interner).Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	// callable is a table whose metatable's __call is a foreign function
	// returning (type-of-arg0, arg1).
	fn := value.NewForeign("callimpl", func(h value.Handle) error {
		recv := h.Argument(0)
		arg := h.Argument(1)
		defer value.Drop(recv)
		if err := h.Push(h.Intern(value.TypeName(recv))); err != nil {
			return err
		}
		return h.Push(arg)
	})
	meta := value.NewTable()
	callKey := m.Interner.Intern("__call")
	if err := meta.AsTable().Set(callKey, fn); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value.Drop(fn)
	callable := value.NewTable()
	callable.AsTable().Meta = meta
	if err := m.SetGlobal(value.HashString("callable"), callable); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}

	s := NewState(p, m)
	s.Stderr = io.Discard
	if code := s.Execute(); code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	top := stackTop(t, s)
	if top.AsInt() != 5 {
		t.Errorf("top = %s, want Int(5) (the original argument)", value.DebugString(top))
	}
	recvType := s.stack[s.sp-2]
	if recvType.Kind() != value.KindString || recvType.AsString().Data != "table" {
		t.Errorf("receiver type = %s, want String(table)", value.DebugString(recvType))
	}
}

// TestReturnFromRootFrameHalts: RETURN with no caller behaves like
// HALT, leaving the returns on the stack.
func TestReturnFromRootFrameHalts(t *testing.T) {
	s := run(t, `
		LOADK r0 11
		PUSH r0
		RETURN 1
	`)
	if top := stackTop(t, s); top.AsInt() != 11 {
		t.Errorf("top = %s, want Int(11)", value.DebugString(top))
	}
}

func TestCallOnNonCallableErrors(t *testing.T) {
	s := newTestState(t, "LOADK r0 1\nCALL r0 0\nHALT")
	if code := s.Execute(); code == 0 {
		t.Fatal("calling an integer did not error")
	}
	if s.Err().Kind != "TypeError" {
		t.Errorf("error kind = %q, want TypeError", s.Err().Kind)
	}
}

// TestProtectedCallCatchesError: a PCALL frame is an error handler; the
// raised error resumes there as (false, message) on the stack.
func TestProtectedCallCatchesError(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			LOADK r1 5
			SETGLOBAL r1 dup
			SETGLOBAL r1 dup
			RETURN 0
		ENDFUNCTION
		PCALL r0 0
		HALT
	`)
	msg := stackTop(t, s)
	if msg.Kind() != value.KindString {
		t.Fatalf("top = %s, want the error message string", value.DebugString(msg))
	}
	flag := s.stack[s.sp-2]
	if flag.Kind() != value.KindBool || flag.AsBool() {
		t.Errorf("second = %s, want Bool(false)", value.DebugString(flag))
	}
}

// TestProtectedCallSuccessLeavesReturns: when no error is raised, PCALL
// behaves exactly like CALL.
func TestProtectedCallSuccessLeavesReturns(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			LOADK r1 9
			PUSH r1
			RETURN 1
		ENDFUNCTION
		PCALL r0 0
		HALT
	`)
	if top := stackTop(t, s); top.AsInt() != 9 {
		t.Errorf("top = %s, want Int(9)", value.DebugString(top))
	}
}

// TestErrorUnwindsThroughIntermediateFrames: the unwind walks caller
// links past non-handler frames to the nearest PCALL frame.
func TestErrorUnwindsThroughIntermediateFrames(t *testing.T) {
	s := run(t, `
		NEWCLOSURE r0 0
			LOADK r1 5
			SETGLOBAL r1 again
			SETGLOBAL r1 again
			RETURN 0
		ENDFUNCTION
		SETGLOBAL r0 inner
		NEWCLOSURE r0 0
			GETGLOBAL r1 inner
			CALL r1 0
			RETURN 0
		ENDFUNCTION
		PCALL r0 0
		HALT
	`)
	msg := stackTop(t, s)
	if msg.Kind() != value.KindString {
		t.Fatalf("top = %s, want the error message string", value.DebugString(msg))
	}
}

func TestFrozenTableWriteErrors(t *testing.T) {
	s := newTestState(t, `
		GETGLOBAL r0 frozen
		LOADK r1 "k"
		LOADK r2 1
		SETTABLE r0 r1 r2
		HALT
	`)
	tbl := value.NewTable()
	tbl.AsTable().Freeze()
	if err := s.manager.SetGlobal(value.HashString("frozen"), tbl); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}
	value.Drop(tbl)

	if code := s.Execute(); code == 0 {
		t.Fatal("writing a frozen table did not error")
	}
	if s.Err().Kind != "FrozenTable" {
		t.Errorf("error kind = %q, want FrozenTable", s.Err().Kind)
	}
}

// TestArithMetamethod: a table with __add participates in ADD via the
// metamethod, receiving both operands.
func TestArithMetamethod(t *testing.T) {
	m := NewManager()
	src := `
		GETGLOBAL r0 vec
		LOADK r1 2
		ADD r0 r1
		PUSH r0
		HALT
	`
	p, err := isa.NewAssembler(m.Interner).Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	addImpl := value.NewForeign("__add", func(h value.Handle) error {
		rhs := h.Argument(1)
		defer value.Drop(rhs)
		return h.Push(value.Int(100 + rhs.AsInt()))
	})
	meta := value.NewTable()
	addKey := m.Interner.Intern("__add")
	if err := meta.AsTable().Set(addKey, addImpl); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value.Drop(addImpl)
	vec := value.NewTable()
	vec.AsTable().Meta = meta
	if err := m.SetGlobal(value.HashString("vec"), vec); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}

	s := NewState(p, m)
	s.Stderr = io.Discard
	if code := s.Execute(); code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	if top := stackTop(t, s); top.AsInt() != 102 {
		t.Errorf("top = %s, want Int(102)", value.DebugString(top))
	}
}
