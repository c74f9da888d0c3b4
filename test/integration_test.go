// Package test provides end-to-end integration tests for the via
// execution core: assemble → encode → decode → execute, driven only
// through the public package surfaces.
package test

import (
	"bytes"
	"io"
	"testing"

	"github.com/xnlogical/via/pkg/isa"
	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/stdlib"
	"github.com/xnlogical/via/pkg/value"
)

// buildAndRun assembles src, serializes it to the wire format, reloads
// it through the decoder (so every test crosses the serialization
// boundary), and executes it with the full stdlib registered.
func buildAndRun(t *testing.T, src string) (*runtime.State, int) {
	t.Helper()
	m := runtime.NewManager()
	if err := stdlib.RegisterAll(m, stdlib.Options{}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	assembled, err := isa.NewAssembler(m.Interner).Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	assembled.Platform = isa.DefaultPlatform()

	var buf bytes.Buffer
	if err := isa.Encode(&buf, assembled); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	program, err := isa.Decode(&buf, m.Interner)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	s := runtime.NewState(program, m)
	s.Stdout = io.Discard
	s.Stderr = io.Discard
	return s, s.Execute()
}

func topString(t *testing.T, s *runtime.State) string {
	t.Helper()
	v, err := s.Top()
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if v.Kind() != value.KindString {
		t.Fatalf("top = %s, want a string", value.DebugString(v))
	}
	return v.AsString().Data
}

func TestArithmeticThroughWireFormat(t *testing.T) {
	s, code := buildAndRun(t, `
		LOADK r0 2
		LOADK r1 3
		ADD r0 r1
		PUSH r0
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	top, err := s.Top()
	if err != nil {
		t.Fatal(err)
	}
	if top.Kind() != value.KindInt || top.AsInt() != 5 {
		t.Errorf("top = %s, want Int(5)", value.DebugString(top))
	}
}

func TestStdlibCallFromBytecode(t *testing.T) {
	s, code := buildAndRun(t, `
		GETGLOBAL r0 crypto.sha256
		LOADK r1 ""
		PUSH r1
		CALL r0 1
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := topString(t, s); got != want {
		t.Errorf("sha256 from bytecode = %q, want %q", got, want)
	}
}

func TestStdlibChain(t *testing.T) {
	// str.upper(str.trim("  via  ")) == "VIA"
	s, code := buildAndRun(t, `
		GETGLOBAL r0 str.trim
		LOADK r1 "  via  "
		PUSH r1
		CALL r0 1
		POP r2
		PUSH r2
		GETGLOBAL r0 str.upper
		CALL r0 1
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	if got := topString(t, s); got != "VIA" {
		t.Errorf("chained result = %q, want %q", got, "VIA")
	}
}

func TestUserErrorCaughtByProtectedCall(t *testing.T) {
	s, code := buildAndRun(t, `
		NEWCLOSURE r0 0
			GETGLOBAL r1 error
			LOADK r2 "deliberate failure"
			PUSH r2
			CALL r1 1
			RETURN 0
		ENDFUNCTION
		PCALL r0 0
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d: the handler frame should have caught the error", code)
	}
	if got := topString(t, s); got != "deliberate failure" {
		t.Errorf("caught message = %q, want %q", got, "deliberate failure")
	}
}

func TestUncaughtUserErrorHalts(t *testing.T) {
	s, code := buildAndRun(t, `
		GETGLOBAL r0 error
		LOADK r1 "nobody catches this"
		PUSH r1
		CALL r0 1
		HALT
	`)
	if code == 0 {
		t.Fatal("uncaught error() produced exit code 0")
	}
	rerr := s.Err()
	if rerr == nil {
		t.Fatal("no RuntimeError recorded")
	}
	if rerr.Kind != "UserError" {
		t.Errorf("error kind = %q, want UserError", rerr.Kind)
	}
}

func TestFibonacciRecursion(t *testing.T) {
	s, code := buildAndRun(t, `
		NEWCLOSURE r0 1
			GETARGUMENT r1 0
			LOADK r2 2
			LESS r1 r2
			JUMPIFNOT r1 recurse
			GETARGUMENT r1 0
			PUSH r1
			RETURN 1
		recurse:
			GETARGUMENT r1 0
			DECREMENT r1
			PUSH r1
			GETGLOBAL r3 fib
			CALL r3 1
			GETARGUMENT r1 0
			SUBK r1 2
			PUSH r1
			GETGLOBAL r3 fib
			CALL r3 1
			POP r4
			POP r5
			ADD r4 r5
			PUSH r4
			RETURN 1
		ENDFUNCTION
		SETGLOBAL r0 fib
		LOADK r6 10
		PUSH r6
		GETGLOBAL r7 fib
		CALL r7 1
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	top, err := s.Top()
	if err != nil {
		t.Fatal(err)
	}
	if top.Kind() != value.KindInt || top.AsInt() != 55 {
		t.Errorf("fib(10) = %s, want Int(55)", value.DebugString(top))
	}
}

func TestCounterClosure(t *testing.T) {
	// A maker closure captures a local slot; repeated calls to the
	// returned closure increment through the (closed) upvalue.
	s, code := buildAndRun(t, `
		NEWCLOSURE r0 0
			LOADK r1 0
			PUSH r1
			NEWCLOSURE r2 0
				GETUPV r3 0
				INCREMENT r3
				SETUPV 0 r3
				PUSH r3
				RETURN 1
			ENDFUNCTION
			CAPTURE r2 0
			PUSH r2
			RETURN 1
		ENDFUNCTION
		CALL r0 0
		POP r4
		CALL r4 0
		POP r5
		CALL r4 0
		POP r5
		CALL r4 0
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	top, err := s.Top()
	if err != nil {
		t.Fatal(err)
	}
	if top.Kind() != value.KindInt || top.AsInt() != 3 {
		t.Errorf("third counter call = %s, want Int(3)", value.DebugString(top))
	}
}

func TestTableWorkflow(t *testing.T) {
	// Build a record, freeze it through the stdlib builtin, verify the
	// frozen write fails under PCALL and the message reaches the
	// handler.
	s, code := buildAndRun(t, `
		LOADTABLE r0
		LOADK r1 "name"
		LOADK r2 "via"
		SETTABLE r0 r1 r2
		PUSH r0
		GETGLOBAL r3 freeze
		CALL r3 1
		POP r0
		SETGLOBAL r0 config
		NEWCLOSURE r4 0
			GETGLOBAL r5 config
			LOADK r6 "name"
			LOADK r7 "changed"
			SETTABLE r5 r6 r7
			RETURN 0
		ENDFUNCTION
		PCALL r4 0
		HALT
	`)
	if code != 0 {
		t.Fatalf("exit code = %d, err = %v", code, s.Err())
	}
	msg, err := s.Top()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind() != value.KindString {
		t.Fatalf("top = %s, want the FrozenTable message", value.DebugString(msg))
	}

	cfg := s.GetGlobal("config")
	nameKey := s.Intern("name")
	got := cfg.AsTable().Get(nameKey)
	if got.Kind() != value.KindString || got.AsString().Data != "via" {
		t.Errorf("config.name = %s, want the original value", value.DebugString(got))
	}
	value.Drop(got)
	value.Drop(nameKey)
	value.Drop(cfg)
}
