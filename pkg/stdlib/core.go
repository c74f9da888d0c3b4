package stdlib

import (
	"fmt"
	"io"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerCore installs the built-ins the VM itself assumes exist
// without naming an opcode for them: error() is the only way program
// code raises a UserError; print/tostring/tonumber expose the value
// conversions; freeze flips a table's frozen flag.
func registerCore(m *runtime.Manager) {
	register(m, "error", builtinError)
	register(m, "print", builtinPrint)
	register(m, "tostring", builtinToString)
	register(m, "tonumber", builtinToNumber)
	register(m, "freeze", builtinFreeze)
}

func builtinError(h value.Handle) error {
	msg, err := argString(h, 0)
	if err != nil {
		return err
	}
	return runtime.UserError(msg)
}

// builtinPrint writes each argument's to_string form to the VM's
// stdout, space-separated, with a trailing newline. to_string (and any
// __tostring metamethod) needs the full State, so the Handle is
// narrowed; with a Handle that is not a *runtime.State the DebugString
// text is written to io.Discard, so nothing is printed.
func builtinPrint(h value.Handle) error {
	s, ok := h.(*runtime.State)
	var out io.Writer = io.Discard
	if ok {
		out = s.Stdout
	}
	for i := 0; i < h.ArgCount(); i++ {
		arg := h.Argument(i)
		var text string
		if ok {
			sv, err := s.ToString(arg)
			if err != nil {
				value.Drop(arg)
				return err
			}
			text = sv.AsString().Data
			value.Drop(sv)
		} else {
			text = value.DebugString(arg)
		}
		value.Drop(arg)
		if i > 0 {
			fmt.Fprint(out, " ")
		}
		fmt.Fprint(out, text)
	}
	fmt.Fprintln(out)
	return nil
}

func builtinToString(h value.Handle) error {
	arg := h.Argument(0)
	defer value.Drop(arg)
	if s, ok := h.(*runtime.State); ok {
		sv, err := s.ToString(arg)
		if err != nil {
			return err
		}
		return h.Push(sv)
	}
	return pushString(h, value.DebugString(arg))
}

func builtinToNumber(h value.Handle) error {
	arg := h.Argument(0)
	defer value.Drop(arg)
	return h.Push(value.Clone(value.ToNumber(arg)))
}

func builtinFreeze(h value.Handle) error {
	arg := h.Argument(0)
	if arg.Kind() != value.KindTable {
		value.Drop(arg)
		return runtime.ArgumentError("argument 0: expected table, got %s", value.TypeName(arg))
	}
	arg.AsTable().Freeze()
	return h.Push(arg)
}
