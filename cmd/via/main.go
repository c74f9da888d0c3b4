// via is the execution core's command-line front end: it runs and
// disassembles compiled bytecode files, assembles the minimal mnemonic
// text format (pkg/isa.Assembler) into that bytecode, and offers a REPL
// that assembles and runs one block at a time against a persistent
// Manager. The via-lang compiler itself is a separate program; this
// binary only consumes its output format.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xnlogical/via/pkg/isa"
	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/stdlib"
	"github.com/xnlogical/via/pkg/value"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL(nil)
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("via version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL(os.Args[2:])
	case "run":
		runCmd(os.Args[2:])
	case "asm":
		asmCmd(os.Args[2:])
	case "disasm", "disassemble":
		disasmCmd(os.Args[2:])
	default:
		runCmd(os.Args[1:])
	}
}

func printUsage() {
	fmt.Println("via - the via-lang execution core")
	fmt.Println("\nUsage:")
	fmt.Println("  via                        Start interactive REPL")
	fmt.Println("  via [file]                 Run a .via bytecode file")
	fmt.Println("  via run [file]             Run a .via bytecode file")
	fmt.Println("  via asm <in.viasm> [out.via]  Assemble mnemonic text to bytecode")
	fmt.Println("  via disasm <file.via>      Disassemble a bytecode file")
	fmt.Println("  via repl                   Start interactive REPL")
	fmt.Println("  via version                Show version")
	fmt.Println("  via help                   Show this help")
	fmt.Println("\nFlags (run/repl):")
	fmt.Println("  -debug   attach an interactive debugger")
	fmt.Println("  -step    start the debugger in single-step mode")
	fmt.Println("  -trace   print each executed instruction to stderr")
}

// runFlags holds the secondary switches shared by run and repl.
type runFlags struct {
	debug bool
	step  bool
	trace bool
}

func parseRunFlags(args []string) (*runFlags, []string) {
	fs := flag.NewFlagSet("via", flag.ExitOnError)
	rf := &runFlags{}
	fs.BoolVar(&rf.debug, "debug", false, "attach an interactive debugger")
	fs.BoolVar(&rf.step, "step", false, "start the debugger in single-step mode")
	fs.BoolVar(&rf.trace, "trace", false, "trace executed instructions to stderr")
	fs.Parse(args)
	return rf, fs.Args()
}

func runCmd(args []string) {
	rf, rest := parseRunFlags(args)
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no file specified")
		printUsage()
		os.Exit(1)
	}
	os.Exit(runFile(rest[0], rf))
}

func runFile(filename string, rf *runFlags) int {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}
	defer f.Close()

	manager := runtime.NewManager()
	program, err := isa.Decode(f, manager.Interner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		return 1
	}

	if err := stdlib.RegisterAll(manager, stdlib.Options{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering stdlib: %v\n", err)
		return 1
	}

	state := runtime.NewState(program, manager)
	state.Stdout = os.Stdout
	state.Stderr = os.Stderr

	if rf != nil && (rf.debug || rf.step) {
		dbg := runtime.NewDebugger(os.Stdin, os.Stdout)
		dbg.Enable()
		dbg.SetStepMode(rf.step)
		state.AttachDebugger(dbg)
	}
	if rf != nil && rf.trace {
		state.TraceTo(os.Stderr)
	}

	code := state.Execute()
	if rerr := state.Err(); rerr != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %s\n", rerr.Error())
	}
	return code
}

func asmCmd(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no file specified")
		fmt.Fprintln(os.Stderr, "\nUsage: via asm <input.viasm> [output.via]")
		os.Exit(1)
	}
	input := args[0]
	output := ""
	if len(args) >= 2 {
		output = args[1]
	}
	if output == "" {
		if strings.HasSuffix(input, ".viasm") {
			output = input[:len(input)-len(".viasm")] + ".via"
		} else {
			output = input + ".via"
		}
	}

	src, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	interner := newInterner()
	asm := isa.NewAssembler(interner)
	program, err := asm.Assemble(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Assemble error: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := isa.Encode(out, program); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Assembled %s -> %s\n", input, output)
}

func disasmCmd(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no file specified")
		fmt.Fprintln(os.Stderr, "\nUsage: via disasm <file.via>")
		os.Exit(1)
	}
	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	program, err := isa.Decode(f, newInterner())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== Bytecode Disassembly: %s ===\n\n", args[0])
	fmt.Print(isa.Disassemble(program))
}

// runREPL assembles and runs one block of mnemonic source at a time
// against a single persistent Manager, so globals declared in one block
// remain visible to the next.
func runREPL(args []string) {
	rf, _ := parseRunFlags(args)

	fmt.Printf("via REPL v%s\n", version)
	fmt.Println("Type ':help' for help, ':quit' or ':exit' to exit")
	fmt.Println("Enter one or more assembly lines, then a blank line to run them.")
	fmt.Println()

	manager := runtime.NewManager()
	if err := stdlib.RegisterAll(manager, stdlib.Options{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering stdlib: %v\n", err)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	var block strings.Builder

	for {
		if block.Len() == 0 {
			fmt.Print("via> ")
		} else {
			fmt.Print("...> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if block.Len() == 0 {
			switch strings.TrimSpace(line) {
			case ":quit", ":exit":
				fmt.Println("Goodbye!")
				return
			case ":help":
				printREPLHelp()
				continue
			case "":
				continue
			}
		}

		if strings.TrimSpace(line) == "" {
			runBlock(manager, block.String(), rf)
			block.Reset()
			continue
		}
		block.WriteString(line)
		block.WriteByte('\n')
	}
}

func runBlock(manager *runtime.Manager, src string, rf *runFlags) {
	asm := isa.NewAssembler(manager.Interner)
	program, err := asm.Assemble(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Assemble error: %v\n", err)
		return
	}

	state := runtime.NewState(program, manager)
	if rf != nil && (rf.debug || rf.step) {
		dbg := runtime.NewDebugger(os.Stdin, os.Stdout)
		dbg.Enable()
		dbg.SetStepMode(rf.step)
		state.AttachDebugger(dbg)
	}
	if rf != nil && rf.trace {
		state.TraceTo(os.Stderr)
	}
	state.Execute()
	if rerr := state.Err(); rerr != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %s\n", rerr.Error())
	}
}

func printREPLHelp() {
	fmt.Println("Commands:")
	fmt.Println("  :help          show this help")
	fmt.Println("  :quit, :exit   leave the REPL")
	fmt.Println("Anything else is treated as one or more mnemonic assembly")
	fmt.Println("lines (see pkg/isa/asm.go); a blank line runs the block.")
}

func newInterner() *value.InternTable { return value.NewInternTable() }
