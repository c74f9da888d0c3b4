// Wire format encode/decode for compiled via programs: an 8-byte
// magic/padding field, version tag, platform info, flags vector, a
// typed constant pool, the instruction vector, and the entry point,
// all little-endian.
package isa

import (
	"encoding/binary"
	"fmt"
	"io"
	"runtime"

	"github.com/xnlogical/via/pkg/value"
)

// Magic is the 4-byte file signature (the ASCII ".via"), stored in an
// 8-byte header field padded with zero bytes.
const Magic uint32 = 0x2E766961

// FormatVersion is the current bytecode wire-format version.
const FormatVersion uint32 = 1

const (
	constTagNil    byte = 0x00
	constTagInt    byte = 0x01
	constTagFloat  byte = 0x02
	constTagString byte = 0x03
	constTagBool   byte = 0x04
)

// Program is the bundle the loader produces and the VM reads: header,
// constant pool, instruction vector, and an entry point.
type Program struct {
	Version      uint32
	Platform     [8]byte
	Flags        [16]byte
	Constants    []value.Value
	Instructions []Instruction
	Entry        uint32
}

// DefaultPlatform encodes the current GOARCH/GOOS pair into the 8-byte
// platform info field, truncating or zero-padding to fit.
func DefaultPlatform() [8]byte {
	var p [8]byte
	tag := runtime.GOARCH + "/" + runtime.GOOS
	copy(p[:], tag)
	return p
}

// Encode serializes a Program to the wire format.
func Encode(w io.Writer, p *Program) error {
	if err := writeHeader(w, p); err != nil {
		return fmt.Errorf("isa: write header: %w", err)
	}
	if err := writeConstants(w, p.Constants); err != nil {
		return fmt.Errorf("isa: write constants: %w", err)
	}
	if err := writeInstructions(w, p.Instructions); err != nil {
		return fmt.Errorf("isa: write instructions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, p.Entry); err != nil {
		return fmt.Errorf("isa: write entry point: %w", err)
	}
	return nil
}

func writeHeader(w io.Writer, p *Program) error {
	var magicField [8]byte
	binary.LittleEndian.PutUint32(magicField[:4], Magic)
	if _, err := w.Write(magicField[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	if _, err := w.Write(p.Platform[:]); err != nil {
		return err
	}
	if _, err := w.Write(p.Flags[:]); err != nil {
		return err
	}
	return nil
}

func writeConstants(w io.Writer, consts []value.Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(consts))); err != nil {
		return err
	}
	for _, c := range consts {
		switch c.Kind() {
		case value.KindNil:
			if _, err := w.Write([]byte{constTagNil}); err != nil {
				return err
			}
		case value.KindInt:
			if _, err := w.Write([]byte{constTagInt}); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, c.AsInt()); err != nil {
				return err
			}
		case value.KindFloat:
			if _, err := w.Write([]byte{constTagFloat}); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, c.AsFloat()); err != nil {
				return err
			}
		case value.KindBool:
			b := byte(0)
			if c.AsBool() {
				b = 1
			}
			if _, err := w.Write([]byte{constTagBool, b}); err != nil {
				return err
			}
		case value.KindString:
			if _, err := w.Write([]byte{constTagString}); err != nil {
				return err
			}
			s := c.AsString().Data
			if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
				return err
			}
			if _, err := io.WriteString(w, s); err != nil {
				return err
			}
		default:
			return fmt.Errorf("isa: constant kind %s cannot be serialized", c.Kind())
		}
	}
	return nil
}

func writeInstructions(w io.Writer, instrs []Instruction) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(instrs))); err != nil {
		return err
	}
	for _, instr := range instrs {
		raw := [4]uint16{uint16(instr.Op), instr.A, instr.B, instr.C}
		if err := binary.Write(w, binary.LittleEndian, raw); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a wire-format program. String constants are
// materialized through interner so equal literal strings across a
// program share one interned object.
func Decode(r io.Reader, interner *value.InternTable) (*Program, error) {
	p := &Program{}

	var magicField [8]byte
	if _, err := io.ReadFull(r, magicField[:]); err != nil {
		return nil, fmt.Errorf("isa: read magic: %w", err)
	}
	if binary.LittleEndian.Uint32(magicField[:4]) != Magic {
		return nil, fmt.Errorf("isa: bad magic number 0x%08X", binary.LittleEndian.Uint32(magicField[:4]))
	}

	if err := binary.Read(r, binary.LittleEndian, &p.Version); err != nil {
		return nil, fmt.Errorf("isa: read version: %w", err)
	}
	if p.Version != FormatVersion {
		return nil, fmt.Errorf("isa: unsupported version %d (want %d)", p.Version, FormatVersion)
	}

	if _, err := io.ReadFull(r, p.Platform[:]); err != nil {
		return nil, fmt.Errorf("isa: read platform: %w", err)
	}
	if _, err := io.ReadFull(r, p.Flags[:]); err != nil {
		return nil, fmt.Errorf("isa: read flags: %w", err)
	}

	consts, err := readConstants(r, interner)
	if err != nil {
		return nil, fmt.Errorf("isa: read constants: %w", err)
	}
	p.Constants = consts

	instrs, err := readInstructions(r)
	if err != nil {
		return nil, fmt.Errorf("isa: read instructions: %w", err)
	}
	p.Instructions = instrs

	if err := binary.Read(r, binary.LittleEndian, &p.Entry); err != nil {
		return nil, fmt.Errorf("isa: read entry point: %w", err)
	}
	if int(p.Entry) > len(p.Instructions) {
		return nil, fmt.Errorf("isa: entry point %d exceeds instruction count %d", p.Entry, len(p.Instructions))
	}

	return p, nil
}

func readConstants(r io.Reader, interner *value.InternTable) ([]value.Value, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	// A corrupt count is caught lazily: each entry read fails with
	// io.EOF once the underlying reader is exhausted, so a count that
	// exceeds the file length is rejected without knowing the file
	// length up front.
	out := make([]value.Value, 0, count)
	for i := uint32(0); i < count; i++ {
		var tag [1]byte
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		switch tag[0] {
		case constTagNil:
			out = append(out, value.Nil())
		case constTagInt:
			var n int64
			if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
				return nil, err
			}
			out = append(out, value.Int(n))
		case constTagFloat:
			var f float64
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, err
			}
			out = append(out, value.Float(f))
		case constTagBool:
			var b [1]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return nil, err
			}
			out = append(out, value.Bool(b[0] != 0))
		case constTagString:
			var length uint32
			if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
				return nil, err
			}
			buf := make([]byte, length)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			out = append(out, interner.Intern(string(buf)))
		default:
			return nil, fmt.Errorf("constant %d: unknown tag 0x%02X", i, tag[0])
		}
	}
	return out, nil
}

func readInstructions(r io.Reader) ([]Instruction, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]Instruction, 0, count)
	for i := uint32(0); i < count; i++ {
		var raw [4]uint16
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		op := Op(raw[0])
		if !op.Valid() {
			return nil, fmt.Errorf("instruction %d: invalid opcode %d", i, raw[0])
		}
		out = append(out, Instruction{Op: op, A: raw[1], B: raw[2], C: raw[3]})
	}
	return out, nil
}
