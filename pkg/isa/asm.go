// Minimal textual assembler for hand-authoring via bytecode programs,
// used by tests and the `via asm` CLI subcommand.
//
// This is not the via-lang compiler: there is no lexer, AST, or type
// checker here, and none of via-lang's surface syntax is accepted. One
// mnemonic line maps to one Instruction, and labels are resolved to
// relative jump offsets in a second pass. It exists so the execution
// core can be driven without the full language front end.
package isa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xnlogical/via/pkg/value"
)

// Assembler turns line-oriented mnemonic source into a Program.
type Assembler struct {
	interner *value.InternTable
}

func NewAssembler(interner *value.InternTable) *Assembler {
	return &Assembler{interner: interner}
}

type asmLine struct {
	label string // non-empty if this line is only a label definition
	mnem  string
	args  []string
}

// funcBlock tracks one open LOADFUNCTION/NEWCLOSURE...ENDFUNCTION nest
// while the source is being flattened to a single instruction vector.
// The instruction itself is emitted first (it only constructs the
// closure value), immediately followed by an assembler-inserted JUMP
// that skips the inlined body, so the dispatcher never has to
// special-case skipping over a function body it just loaded.
type funcBlock struct {
	instrIdx  int // index of the LOADFUNCTION/NEWCLOSURE line
	skipIdx   int // index of the assembler-inserted skip JUMP
	bodyStart int // index where the body begins (= skipIdx + 1)
}

// Assemble compiles source into a Program with Entry 0. Labels are
// written as `name:` on their own line; every other non-blank,
// non-comment line is `MNEMONIC arg0 arg1 ...`. `;` and `//` start a
// line comment. `LOADFUNCTION dst arity` / `NEWCLOSURE dst arity` open a
// nested function body, closed by a bare `ENDFUNCTION` line; the
// assembler resolves the entry address and inserts the skip jump.
func (a *Assembler) Assemble(src string) (*Program, error) {
	rawLines := strings.Split(src, "\n")

	var lines []asmLine
	labels := make(map[string]int)
	var blocks []funcBlock

	for lineNo, raw := range rawLines {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			name := strings.TrimSuffix(line, ":")
			if _, exists := labels[name]; exists {
				return nil, fmt.Errorf("asm line %d: label %q redefined", lineNo+1, name)
			}
			labels[name] = len(lines)
			continue
		}

		fields := tokenize(line)
		mnem := strings.ToUpper(fields[0])

		switch mnem {
		case "LOADFUNCTION", "NEWCLOSURE":
			if len(fields) < 3 {
				return nil, fmt.Errorf("asm line %d: %s needs dst and arity operands", lineNo+1, mnem)
			}
			instrIdx := len(lines)
			// args[1] (entry) is a placeholder filled in at ENDFUNCTION.
			lines = append(lines, asmLine{mnem: mnem, args: []string{fields[1], "", fields[2]}})
			skipIdx := len(lines)
			lines = append(lines, asmLine{mnem: "__SKIPJUMP__"})
			blocks = append(blocks, funcBlock{instrIdx: instrIdx, skipIdx: skipIdx, bodyStart: skipIdx + 1})
			continue

		case "ENDFUNCTION":
			if len(blocks) == 0 {
				return nil, fmt.Errorf("asm line %d: ENDFUNCTION with no open function block", lineNo+1)
			}
			b := blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			lines[b.instrIdx].args[1] = strconv.Itoa(b.bodyStart)
			rel := len(lines) - (b.skipIdx + 1)
			lines[b.skipIdx].args = []string{strconv.Itoa(rel)}
			continue
		}

		lines = append(lines, asmLine{mnem: mnem, args: fields[1:]})
	}
	if len(blocks) != 0 {
		return nil, fmt.Errorf("asm: %d unclosed LOADFUNCTION/NEWCLOSURE block(s)", len(blocks))
	}

	p := &Program{Platform: DefaultPlatform()}
	instrs := make([]Instruction, len(lines))

	for idx, ln := range lines {
		instr, err := a.assembleLine(ln, idx, labels, p)
		if err != nil {
			return nil, fmt.Errorf("asm line %d (%s): %w", idx+1, ln.mnem, err)
		}
		instrs[idx] = instr
	}

	p.Instructions = instrs
	return p, nil
}

func stripComment(line string) string {
	if i := strings.Index(line, ";"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return line
}

func tokenize(line string) []string {
	var out []string
	var cur strings.Builder
	inString := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			cur.WriteByte(ch)
			inString = !inString
		case ch == ' ' && !inString:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(ch)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func (a *Assembler) reg(tok string) (uint16, error) {
	if !strings.HasPrefix(tok, "r") {
		return 0, fmt.Errorf("expected register operand, got %q", tok)
	}
	n, err := strconv.ParseUint(tok[1:], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("bad register %q: %w", tok, err)
	}
	return uint16(n), nil
}

func (a *Assembler) imm(tok string) (uint16, error) {
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad immediate %q: %w", tok, err)
	}
	return uint16(n), nil
}

// constIndex interns tok (a number or a quoted string literal) as a
// constant-pool entry and returns its index, deduplicating by value.
func (a *Assembler) constIndex(tok string, p *Program) (uint16, error) {
	var v value.Value
	switch {
	case strings.HasPrefix(tok, "\""):
		if !strings.HasSuffix(tok, "\"") || len(tok) < 2 {
			return 0, fmt.Errorf("unterminated string literal %q", tok)
		}
		v = a.interner.Intern(tok[1 : len(tok)-1])
	case tok == "nil":
		v = value.Nil()
	case tok == "true":
		v = value.Bool(true)
	case tok == "false":
		v = value.Bool(false)
	case strings.ContainsAny(tok, ".eE") && !strings.HasPrefix(tok, "0x"):
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("bad float constant %q: %w", tok, err)
		}
		v = value.Float(f)
	default:
		n, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad constant %q: %w", tok, err)
		}
		v = value.Int(n)
	}

	for i, existing := range p.Constants {
		if sameConstant(existing, v) {
			return uint16(i), nil
		}
	}
	p.Constants = append(p.Constants, v)
	return uint16(len(p.Constants) - 1), nil
}

func sameConstant(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	return value.Equals(a, b)
}

func (a *Assembler) hashIdent(tok string) (hi, lo uint16) {
	name := strings.Trim(tok, "\"")
	return PackHash32(value.HashString(name))
}

func (a *Assembler) label(tok string, here int, labels map[string]int) (uint16, error) {
	target, ok := labels[tok]
	if !ok {
		return 0, fmt.Errorf("undefined label %q", tok)
	}
	return uint16(int16(target - (here + 1))), nil
}

func (a *Assembler) assembleLine(ln asmLine, here int, labels map[string]int, p *Program) (Instruction, error) {
	args := ln.args
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("expected %d operands, got %d", n, len(args))
		}
		return nil
	}

	switch ln.mnem {
	case "NOP", "HALT", "EXIT":
		op := map[string]Op{"NOP": NOP, "HALT": HALT, "EXIT": EXIT}[ln.mnem]
		return Instruction{Op: op}, nil

	case "__SKIPJUMP__":
		rel, err := strconv.ParseInt(args[0], 10, 16)
		if err != nil {
			return Instruction{}, fmt.Errorf("internal: bad skip-jump offset %q: %w", args[0], err)
		}
		return Instruction{Op: JUMP, A: uint16(int16(rel))}, nil

	case "LOADFUNCTION", "NEWCLOSURE":
		dst, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		entry, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return Instruction{}, fmt.Errorf("internal: bad entry address %q: %w", args[1], err)
		}
		arity, err := a.imm(args[2])
		if err != nil {
			return Instruction{}, err
		}
		op := LOADFUNCTION
		if ln.mnem == "NEWCLOSURE" {
			op = NEWCLOSURE
		}
		return Instruction{Op: op, A: dst, B: uint16(entry), C: arity}, nil

	case "CAPTURE":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		dst, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		off, err := a.imm(args[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: CAPTURE, A: dst, B: off}, nil

	case "JUMPIFEQUAL", "JUMPIFLESS":
		if err := need(3); err != nil {
			return Instruction{}, err
		}
		lhs, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		rhs, err := a.reg(args[1])
		if err != nil {
			return Instruction{}, err
		}
		off, err := a.label(args[2], here, labels)
		if err != nil {
			return Instruction{}, err
		}
		op := JUMPIFEQUAL
		if ln.mnem == "JUMPIFLESS" {
			op = JUMPIFLESS
		}
		return Instruction{Op: op, A: lhs, B: rhs, C: off}, nil

	case "MOVE", "ADD", "SUB", "MUL", "DIV", "POW", "MOD", "CONCAT",
		"EQUAL", "NOTEQUAL", "LESS", "GREATER", "LESSOREQUAL", "GREATEROREQUAL",
		"GETTABLE", "NEXTTABLE", "GETSTRING":
		if ln.mnem == "GETTABLE" || ln.mnem == "NEXTTABLE" || ln.mnem == "GETSTRING" {
			if err := need(3); err != nil {
				return Instruction{}, err
			}
			dst, err := a.reg(args[0])
			if err != nil {
				return Instruction{}, err
			}
			tbl, err := a.reg(args[1])
			if err != nil {
				return Instruction{}, err
			}
			key, err := a.reg(args[2])
			if err != nil {
				return Instruction{}, err
			}
			opMap := map[string]Op{"GETTABLE": GETTABLE, "NEXTTABLE": NEXTTABLE, "GETSTRING": GETSTRING}
			return Instruction{Op: opMap[ln.mnem], A: dst, B: tbl, C: key}, nil
		}
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		dst, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		src, err := a.reg(args[1])
		if err != nil {
			return Instruction{}, err
		}
		opMap := map[string]Op{
			"MOVE": MOVE, "ADD": ADD, "SUB": SUB, "MUL": MUL, "DIV": DIV, "POW": POW, "MOD": MOD,
			"CONCAT": CONCAT, "EQUAL": EQUAL, "NOTEQUAL": NOTEQUAL, "LESS": LESS,
			"GREATER": GREATER, "LESSOREQUAL": LESSOREQUAL, "GREATEROREQUAL": GREATEROREQUAL,
		}
		return Instruction{Op: opMap[ln.mnem], A: dst, B: src}, nil

	case "NEG", "INCREMENT", "DECREMENT", "LOADNIL", "LOADTABLE", "LENTABLE", "LENSTRING",
		"LEN", "TYPE", "TYPEOF", "POP":
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		dst, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		opMap := map[string]Op{
			"NEG": NEG, "INCREMENT": INCREMENT, "DECREMENT": DECREMENT, "LOADNIL": LOADNIL,
			"LOADTABLE": LOADTABLE, "LENTABLE": LENTABLE, "LENSTRING": LENSTRING,
			"LEN": LEN, "TYPE": TYPE, "TYPEOF": TYPEOF, "POP": POP,
		}
		if ln.mnem == "LENTABLE" || ln.mnem == "LEN" || ln.mnem == "TYPE" || ln.mnem == "TYPEOF" {
			if err := need(2); err != nil {
				return Instruction{}, err
			}
			src, err := a.reg(args[1])
			if err != nil {
				return Instruction{}, err
			}
			return Instruction{Op: opMap[ln.mnem], A: dst, B: src}, nil
		}
		return Instruction{Op: opMap[ln.mnem], A: dst}, nil

	case "LOADK", "ADDK", "SUBK", "MULK", "DIVK", "POWK", "MODK", "CONCATK", "LESSK", "PUSHK":
		if ln.mnem == "PUSHK" {
			if err := need(1); err != nil {
				return Instruction{}, err
			}
			idx, err := a.constIndex(args[0], p)
			if err != nil {
				return Instruction{}, err
			}
			return Instruction{Op: PUSHK, A: idx}, nil
		}
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		dst, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		idx, err := a.constIndex(args[1], p)
		if err != nil {
			return Instruction{}, err
		}
		opMap := map[string]Op{
			"LOADK": LOADK, "ADDK": ADDK, "SUBK": SUBK, "MULK": MULK, "DIVK": DIVK,
			"POWK": POWK, "MODK": MODK, "CONCATK": CONCATK, "LESSK": LESSK,
		}
		return Instruction{Op: opMap[ln.mnem], A: dst, B: idx}, nil

	case "PUSH":
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		r, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: PUSH, A: r}, nil

	case "GETSTACK", "GETARGUMENT", "GETUPV":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		dst, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		off, err := a.imm(args[1])
		if err != nil {
			return Instruction{}, err
		}
		opMap := map[string]Op{"GETSTACK": GETSTACK, "GETARGUMENT": GETARGUMENT, "GETUPV": GETUPV}
		return Instruction{Op: opMap[ln.mnem], A: dst, B: off}, nil

	case "SETSTACK":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		off, err := a.imm(args[0])
		if err != nil {
			return Instruction{}, err
		}
		src, err := a.reg(args[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: SETSTACK, A: off, B: src}, nil

	case "SETUPV":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		idx, err := a.imm(args[0])
		if err != nil {
			return Instruction{}, err
		}
		src, err := a.reg(args[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: SETUPV, A: idx, B: src}, nil

	case "GETGLOBAL", "SETGLOBAL":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		reg, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		hi, lo := a.hashIdent(args[1])
		op := GETGLOBAL
		if ln.mnem == "SETGLOBAL" {
			op = SETGLOBAL
		}
		return Instruction{Op: op, A: reg, B: hi, C: lo}, nil

	case "JUMP":
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		off, err := a.label(args[0], here, labels)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: JUMP, A: off}, nil

	case "JUMPIF", "JUMPIFNOT":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		reg, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		off, err := a.label(args[1], here, labels)
		if err != nil {
			return Instruction{}, err
		}
		op := JUMPIF
		if ln.mnem == "JUMPIFNOT" {
			op = JUMPIFNOT
		}
		return Instruction{Op: op, A: reg, B: off}, nil

	case "CALL", "NATIVECALL", "EXTERNCALL", "METHODCALL", "PCALL":
		if err := need(2); err != nil {
			return Instruction{}, err
		}
		callee, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		argc, err := a.imm(args[1])
		if err != nil {
			return Instruction{}, err
		}
		opMap := map[string]Op{
			"CALL": CALL, "NATIVECALL": NATIVECALL, "EXTERNCALL": EXTERNCALL,
			"METHODCALL": METHODCALL, "PCALL": PCALL,
		}
		return Instruction{Op: opMap[ln.mnem], A: callee, B: argc}, nil

	case "RETURN":
		if err := need(1); err != nil {
			return Instruction{}, err
		}
		n, err := a.imm(args[0])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: RETURN, A: n}, nil

	case "SETTABLE":
		if err := need(3); err != nil {
			return Instruction{}, err
		}
		tbl, err := a.reg(args[0])
		if err != nil {
			return Instruction{}, err
		}
		key, err := a.reg(args[1])
		if err != nil {
			return Instruction{}, err
		}
		val, err := a.reg(args[2])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: SETTABLE, A: tbl, B: key, C: val}, nil

	default:
		return Instruction{}, fmt.Errorf("unknown mnemonic %q", ln.mnem)
	}
}

// Disassemble renders a program as a listing, one line per instruction
// (index, mnemonic and the raw a/b/c operands), for the CLI's disasm
// subcommand. The listing is not in the source form Assemble accepts.
func Disassemble(p *Program) string {
	var b strings.Builder
	for i, instr := range p.Instructions {
		fmt.Fprintf(&b, "%4d: %-14s a=%d b=%d c=%d\n", i, instr.Op, instr.A, instr.B, instr.C)
	}
	return b.String()
}
