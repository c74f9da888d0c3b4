package isa

import (
	"bytes"
	"testing"

	"github.com/xnlogical/via/pkg/value"
)

// TestEncodeDecodeRoundTrip verifies that serializing a program and
// reloading it yields the same instruction vector and constant pool.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	interner := value.NewInternTable()
	original := &Program{
		Platform: DefaultPlatform(),
		Constants: []value.Value{
			value.Int(42),
			value.Float(3.5),
			interner.Intern("hello"),
			value.Bool(true),
			value.Nil(),
		},
		Instructions: []Instruction{
			{Op: LOADK, A: 0, B: 0},
			{Op: LOADK, A: 1, B: 1},
			{Op: ADD, A: 0, B: 1},
			{Op: PUSH, A: 0},
			{Op: HALT},
		},
		Entry: 0,
	}

	var buf bytes.Buffer
	if err := Encode(&buf, original); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&buf, interner)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded.Instructions) != len(original.Instructions) {
		t.Fatalf("instruction count = %d, want %d", len(decoded.Instructions), len(original.Instructions))
	}
	for i, instr := range decoded.Instructions {
		if instr != original.Instructions[i] {
			t.Errorf("instruction %d = %+v, want %+v", i, instr, original.Instructions[i])
		}
	}

	if len(decoded.Constants) != len(original.Constants) {
		t.Fatalf("constant count = %d, want %d", len(decoded.Constants), len(original.Constants))
	}
	for i, c := range decoded.Constants {
		if c.Kind() != original.Constants[i].Kind() {
			t.Errorf("constant %d kind = %v, want %v", i, c.Kind(), original.Constants[i].Kind())
		}
		if !value.Equals(c, original.Constants[i]) {
			t.Errorf("constant %d not equal after round trip", i)
		}
	}

	if decoded.Entry != original.Entry {
		t.Errorf("entry = %d, want %d", decoded.Entry, original.Entry)
	}
}

// TestRoundTripBitEqual re-encodes a decoded program and compares the
// raw bytes, the stronger bit-equality form of the round-trip property.
func TestRoundTripBitEqual(t *testing.T) {
	interner := value.NewInternTable()
	p := &Program{
		Platform:     DefaultPlatform(),
		Constants:    []value.Value{value.Int(7), interner.Intern("x")},
		Instructions: []Instruction{{Op: LOADK, A: 0, B: 0}, {Op: HALT}},
	}

	var first bytes.Buffer
	if err := Encode(&first, p); err != nil {
		t.Fatalf("first Encode failed: %v", err)
	}
	decoded, err := Decode(bytes.NewReader(first.Bytes()), interner)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var second bytes.Buffer
	if err := Encode(&second, decoded); err != nil {
		t.Fatalf("second Encode failed: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("re-encoded program is not bit-equal to the original encoding")
	}
}

// TestDecodeSharesInternedStrings verifies that two equal string
// constants decode to the same interned object.
func TestDecodeSharesInternedStrings(t *testing.T) {
	interner := value.NewInternTable()
	p := &Program{
		Platform:     DefaultPlatform(),
		Constants:    []value.Value{interner.Intern("dup"), interner.Intern("dup")},
		Instructions: []Instruction{{Op: HALT}},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	fresh := value.NewInternTable()
	decoded, err := Decode(&buf, fresh)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Constants[0].AsString() != decoded.Constants[1].AsString() {
		t.Error("equal string constants decoded to distinct objects")
	}
	if fresh.Len() != 1 {
		t.Errorf("intern table holds %d strings, want 1", fresh.Len())
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := make([]byte, 64)
	copy(data, "NOTVIA00")
	if _, err := Decode(bytes.NewReader(data), value.NewInternTable()); err == nil {
		t.Fatal("Decode accepted a file with a bad magic number")
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	interner := value.NewInternTable()
	p := &Program{Platform: DefaultPlatform(), Instructions: []Instruction{{Op: HALT}}}
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	raw[8] = 0xFF // corrupt the version field
	if _, err := Decode(bytes.NewReader(raw), interner); err == nil {
		t.Fatal("Decode accepted an unsupported version")
	}
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	interner := value.NewInternTable()
	p := &Program{
		Platform:     DefaultPlatform(),
		Constants:    []value.Value{value.Int(1), value.Int(2)},
		Instructions: []Instruction{{Op: LOADK, A: 0, B: 0}, {Op: HALT}},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	if _, err := Decode(bytes.NewReader(raw[:len(raw)-10]), interner); err == nil {
		t.Fatal("Decode accepted a truncated file")
	}
}

func TestDecodeRejectsInvalidOpcode(t *testing.T) {
	interner := value.NewInternTable()
	p := &Program{Platform: DefaultPlatform(), Instructions: []Instruction{{Op: HALT}}}
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	// The instruction vector begins right after header + empty constant
	// pool: 8 (magic) + 4 (version) + 8 (platform) + 16 (flags) + 4
	// (constant count) + 4 (instruction count).
	instrOff := 8 + 4 + 8 + 16 + 4 + 4
	raw[instrOff] = 0xFF
	raw[instrOff+1] = 0xFF
	if _, err := Decode(bytes.NewReader(raw), interner); err == nil {
		t.Fatal("Decode accepted an invalid opcode")
	}
}

func TestDecodeRejectsEntryOutOfRange(t *testing.T) {
	interner := value.NewInternTable()
	p := &Program{Platform: DefaultPlatform(), Instructions: []Instruction{{Op: HALT}}, Entry: 99}
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Decode(&buf, interner); err == nil {
		t.Fatal("Decode accepted an entry point past the instruction vector")
	}
}
