// Package stdlib registers the foreign functions that back via's
// standard library. Every function follows the same calling
// convention: a value.ForeignFunc reading arguments through a
// value.Handle and pushing its results before returning.
package stdlib

import (
	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// Options configures which standard library groups RegisterAll
// installs. Net is off unless an Allowlist is supplied; outbound HTTP
// is the one primitive that reaches off the host, and the allowlist is
// enforced at the foreign-function boundary, not in the dispatcher.
type Options struct {
	Allowlist []string
}

// RegisterAll installs every stdlib group into m's global table. Each
// function is declared once, via Manager.SetGlobal, exactly as program
// bytecode would declare a global with SETGLOBAL, but issued directly
// from Go at VM construction time.
func RegisterAll(m *runtime.Manager, opts Options) error {
	registerCore(m)
	registerText(m)
	registerCrypto(m)
	registerCompress(m)
	registerEncoding(m)
	registerTime(m)
	if len(opts.Allowlist) > 0 {
		registerNet(m, opts.Allowlist)
	}
	return nil
}

// register declares a single foreign function as a global named by its
// polynomial hash, matching how SETGLOBAL addresses an identifier.
func register(m *runtime.Manager, name string, fn value.ForeignFunc) {
	hash := value.HashString(name)
	fv := value.NewForeign(name, fn)
	_ = m.SetGlobal(hash, fv)
	value.Drop(fv)
}

// argString fetches argument i as a String, raising ArgumentError
// otherwise.
func argString(h value.Handle, i int) (string, error) {
	v := h.Argument(i)
	if v.Kind() != value.KindString {
		return "", runtime.ArgumentError("argument %d: expected string, got %s", i, value.TypeName(v))
	}
	return v.AsString().Data, nil
}

func argInt(h value.Handle, i int) (int64, error) {
	v := h.Argument(i)
	switch v.Kind() {
	case value.KindInt:
		return v.AsInt(), nil
	case value.KindFloat:
		return int64(v.AsFloat()), nil
	default:
		return 0, runtime.ArgumentError("argument %d: expected integer, got %s", i, value.TypeName(v))
	}
}

func pushString(h value.Handle, s string) error {
	return h.Push(h.Intern(s))
}

func pushInt(h value.Handle, i int64) error {
	return h.Push(value.Int(i))
}

func pushFloat(h value.Handle, f float64) error {
	return h.Push(value.Float(f))
}

func pushBool(h value.Handle, b bool) error {
	return h.Push(value.Bool(b))
}

// pushStringArray builds a table with array-part entries
// 0..len(items)-1; via has no separate array value kind, a table with
// only the ordered part plays that role.
func pushStringArray(h value.Handle, items []string) error {
	t := value.NewTable()
	tbl := t.AsTable()
	for i, s := range items {
		sv := h.Intern(s)
		err := tbl.Set(value.Int(int64(i)), sv)
		value.Drop(sv)
		if err != nil {
			return err
		}
	}
	return h.Push(t)
}
