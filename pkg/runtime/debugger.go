package runtime

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xnlogical/via/pkg/value"
)

// Debugger provides interactive debugging support for the dispatcher:
// breakpoints, single-step mode, and a prompt that can inspect the
// register file, frame chain, and evaluation stack.
type Debugger struct {
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool

	in  *bufio.Scanner
	out io.Writer
}

// NewDebugger creates a debugger attached to the given input/output
// streams (stdin/stdout in the CLI, anything else in tests).
func NewDebugger(in io.Reader, out io.Writer) *Debugger {
	return &Debugger{
		breakpoints: make(map[int]bool),
		in:          bufio.NewScanner(in),
		out:         out,
	}
}

func (d *Debugger) Enable()                 { d.enabled = true }
func (d *Debugger) Disable()                { d.enabled = false }
func (d *Debugger) SetStepMode(on bool)     { d.stepMode = on }
func (d *Debugger) AddBreakpoint(ip int)    { d.breakpoints[ip] = true }
func (d *Debugger) RemoveBreakpoint(ip int) { delete(d.breakpoints, ip) }
func (d *Debugger) ClearBreakpoints()       { d.breakpoints = make(map[int]bool) }

// shouldPause: step mode always pauses; otherwise only a matching
// breakpoint does.
func (d *Debugger) shouldPause(ip int) bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	return d.breakpoints[ip]
}

// beforeStep is the dispatcher's per-instruction hook: if the debugger
// should pause here, it runs an interactive prompt and
// reports whether the dispatcher should skip this instruction entirely
// (true only when the user quits, which the caller treats as an abort).
func (d *Debugger) beforeStep(s *State) bool {
	if !d.shouldPause(s.ip) {
		return false
	}
	fmt.Fprintln(d.out, "\n=== paused ===")
	d.showInstruction(s)
	return !d.prompt(s)
}

func (d *Debugger) showInstruction(s *State) {
	if s.ip < 0 || s.ip >= len(s.program.Instructions) {
		fmt.Fprintln(d.out, "(no current instruction)")
		return
	}
	instr := s.program.Instructions[s.ip]
	fmt.Fprintf(d.out, "  %4d: %-14s a=%d b=%d c=%d\n", s.ip, instr.Op, instr.A, instr.B, instr.C)
}

func (d *Debugger) showStack(s *State) {
	fmt.Fprintln(d.out, "stack (top to bottom):")
	if s.sp == 0 {
		fmt.Fprintln(d.out, "  (empty)")
		return
	}
	for i := s.sp - 1; i >= 0; i-- {
		fmt.Fprintf(d.out, "  [%d] %s\n", i, value.DebugString(s.stack[i]))
	}
}

func (d *Debugger) showRegisters(s *State) {
	fmt.Fprintln(d.out, "registers:")
	any := false
	for i, v := range s.registers {
		if !v.IsNil() {
			any = true
			fmt.Fprintf(d.out, "  r%d = %s\n", i, value.DebugString(v))
		}
	}
	if !any {
		fmt.Fprintln(d.out, "  (none set)")
	}
}

func (d *Debugger) showCallStack(s *State) {
	fmt.Fprintln(d.out, "call stack (innermost first):")
	for f := s.frame; f != nil; f = f.Caller {
		fmt.Fprintf(d.out, "  %s [ip=%d argc=%d]\n", f.Name, f.RetAddr, f.ArgC)
	}
}

func (d *Debugger) listInstructions(s *State) {
	fmt.Fprintln(d.out, "instructions:")
	for i, instr := range s.program.Instructions {
		marker := "  "
		if i == s.ip {
			marker = "->"
		} else if d.breakpoints[i] {
			marker = "* "
		}
		fmt.Fprintf(d.out, "%s %4d: %-14s a=%d b=%d c=%d\n", marker, i, instr.Op, instr.A, instr.B, instr.C)
	}
}

// prompt runs the interactive REPL loop, returning whether execution
// should proceed (false means the user quit, which aborts the State).
func (d *Debugger) prompt(s *State) bool {
	for {
		fmt.Fprint(d.out, "debug> ")
		if !d.in.Scan() {
			return false
		}
		line := strings.TrimSpace(d.in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.showStack(s)
		case "registers", "r":
			d.showRegisters(s)
		case "callstack", "cs":
			d.showCallStack(s)
		case "instruction", "i":
			d.showInstruction(s)
		case "list", "ls":
			d.listInstructions(s)
		case "breakpoint", "b":
			if len(fields) < 2 {
				fmt.Fprintln(d.out, "usage: breakpoint <ip>")
				continue
			}
			ip, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid instruction number")
				continue
			}
			d.AddBreakpoint(ip)
			fmt.Fprintf(d.out, "breakpoint added at %d\n", ip)
		case "delete", "d":
			if len(fields) < 2 {
				fmt.Fprintln(d.out, "usage: delete <ip>")
				continue
			}
			ip, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid instruction number")
				continue
			}
			d.RemoveBreakpoint(ip)
			fmt.Fprintf(d.out, "breakpoint removed at %d\n", ip)
		case "quit", "q":
			return false
		default:
			fmt.Fprintf(d.out, "unknown command: %s (try 'help')\n", fields[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.out, "debugger commands:")
	fmt.Fprintln(d.out, "  help, h, ?         show this help")
	fmt.Fprintln(d.out, "  continue, c        continue execution")
	fmt.Fprintln(d.out, "  step, s, next, n   execute one instruction")
	fmt.Fprintln(d.out, "  stack, st          show the evaluation stack")
	fmt.Fprintln(d.out, "  registers, r       show non-nil registers")
	fmt.Fprintln(d.out, "  callstack, cs      show the frame chain")
	fmt.Fprintln(d.out, "  instruction, i     show the current instruction")
	fmt.Fprintln(d.out, "  list, ls           list all instructions")
	fmt.Fprintln(d.out, "  breakpoint <n>, b  add a breakpoint at ip n")
	fmt.Fprintln(d.out, "  delete <n>, d      remove a breakpoint at ip n")
	fmt.Fprintln(d.out, "  quit, q            stop debugging and abort")
}
