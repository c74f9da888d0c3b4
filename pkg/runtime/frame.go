package runtime

import "github.com/xnlogical/via/pkg/value"

// Frame is one activation record of the call chain. Frames form a
// singly-linked stack owned by the State; there is no separate frame
// array.
type Frame struct {
	Caller         *Frame
	RetAddr        int
	SavedSP        int
	ArgC           int
	IsErrorHandler bool
	Closure        value.Value // Closure or Foreign being executed; Nil for the root frame
	Name           string      // for backtraces

	// openUpvalues lists every upvalue opened against one of this
	// frame's stack slots during its lifetime (via CAPTURE). RETURN
	// walks this list and closes each one before the slots they point
	// into go out of scope.
	openUpvalues []*value.Upvalue
}

// argBase returns the stack index of argument 0. SavedSP is the stack
// pointer immediately after the caller pushed all argc arguments, in
// left-to-right order, so the window is [SavedSP-ArgC, SavedSP).
func (f *Frame) argBase() int { return f.SavedSP - f.ArgC }

// addOpenUpvalue registers an upvalue opened against a slot owned by
// this frame so RETURN can close it before the slot is reused.
func (f *Frame) addOpenUpvalue(uv *value.Upvalue) {
	f.openUpvalues = append(f.openUpvalues, uv)
}

// closeUpvalues closes every upvalue opened during this frame's
// lifetime.
func (f *Frame) closeUpvalues() {
	for _, uv := range f.openUpvalues {
		uv.Close()
	}
	f.openUpvalues = nil
}
