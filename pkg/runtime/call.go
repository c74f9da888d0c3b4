package runtime

import "github.com/xnlogical/via/pkg/value"

// call implements the polymorphic CALL opcode: it inspects the
// callee's tag and routes to the matching flavor. argc arguments
// must already be pushed onto the stack by the caller, in left-to-right
// order, immediately below the current sp.
func (s *State) call(callee value.Value, argc int) error {
	switch callee.Kind() {
	case value.KindClosure:
		return s.nativeCall(callee, argc)
	case value.KindForeign:
		return s.externCall(callee, argc)
	case value.KindTable:
		return s.methodCall(callee, argc)
	default:
		return typeErrorf("attempt to call a %s value", value.TypeName(callee))
	}
}

// protectedCall implements PCALL: identical to the polymorphic CALL,
// except the frame it creates is marked as an error handler, so the
// dispatcher's unwind loop resumes here instead of continuing past it.
func (s *State) protectedCall(callee value.Value, argc int) error {
	s.nextIsHandler = true
	err := s.call(callee, argc)
	s.nextIsHandler = false
	return err
}

// nativeCall implements NATIVECALL: the callee is a closure.
func (s *State) nativeCall(callee value.Value, argc int) error {
	cl := callee.AsClosure()

	frame := &Frame{
		Caller:         s.frame,
		RetAddr:        s.ip + 1,
		SavedSP:        s.sp,
		ArgC:           argc,
		Closure:        value.Clone(callee),
		Name:           cl.Name,
		IsErrorHandler: s.nextIsHandler,
	}
	s.nextIsHandler = false
	s.frame = frame
	s.ip = cl.Entry
	return nil
}

// externCall implements EXTERNCALL: the callee is a foreign function.
// A synthetic frame is pushed so the call shows up in a
// backtrace, the function runs to completion against a Handle into this
// State, and control returns to the caller without the dispatcher ever
// setting ip to a bytecode address.
//
// The foreign function reads arguments via Argument(i) and delivers
// results via Push; this module has the VM itself drop the argument
// window once the call returns, rather than requiring every foreign
// function to pop its own arguments, since the Handle interface
// (pkg/value.Handle) exposes no pop primitive to foreign code.
func (s *State) externCall(callee value.Value, argc int) error {
	fo := callee.AsForeign()

	frame := &Frame{
		Caller:         s.frame,
		RetAddr:        s.ip + 1,
		SavedSP:        s.sp,
		ArgC:           argc,
		Closure:        value.Clone(callee),
		Name:           fo.Name,
		IsErrorHandler: s.nextIsHandler,
	}
	s.nextIsHandler = false
	s.frame = frame

	err := fo.Fn(s)

	s.frame = frame.Caller
	s.ip = frame.RetAddr

	results := make([]value.Value, s.sp-frame.SavedSP)
	copy(results, s.stack[frame.SavedSP:s.sp])
	for i := frame.SavedSP; i < s.sp; i++ {
		s.stack[i] = value.Nil() // moved into results
	}
	s.sp = frame.SavedSP
	s.dropStackTo(frame.argBase())
	for _, v := range results {
		if pushErr := s.push(v); pushErr != nil {
			return pushErr
		}
	}
	value.Drop(frame.Closure)

	if err != nil {
		if re, ok := err.(*RuntimeError); ok {
			return re
		}
		return argumentErrorf("%s", err.Error())
	}
	return nil
}

// methodCall implements METHODCALL: the callee is a table; its __call
// metamethod is looked up and invoked with the table itself prepended
// as the receiver argument.
func (s *State) methodCall(callee value.Value, argc int) error {
	t := callee.AsTable()
	fn, ok := t.MetaMethod("__call")
	if !ok {
		return typeErrorf("attempt to call a table value with no __call metamethod")
	}

	// Shift the already-pushed argc arguments up by one slot and insert
	// the receiver at the base of the window, so arg0 inside the callee
	// is the table itself.
	if err := s.push(value.Nil()); err != nil {
		return err
	}
	base := s.sp - argc - 1
	for i := s.sp - 1; i > base; i-- {
		s.stack[i] = s.stack[i-1]
	}
	s.stack[base] = value.Clone(callee)

	return s.call(fn, argc+1)
}

// ret implements RETURN n. SavedSP is the sp value immediately after
// the caller finished pushing argc arguments, so restoring sp to
// SavedSP-ArgC in one step discards the entire argument/local/temporary
// window.
func (s *State) ret(n int) error {
	returns := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := s.pop()
		if err != nil {
			return err
		}
		returns[i] = v
	}

	frame := s.frame
	frame.closeUpvalues()

	// RETURN from the root frame stops the dispatcher like HALT,
	// leaving the popped returns on the stack for the host.
	if frame.Caller == nil {
		for _, v := range returns {
			if err := s.push(v); err != nil {
				return err
			}
		}
		s.halted = true
		return nil
	}

	s.ip = frame.RetAddr
	s.frame = frame.Caller
	s.dropStackTo(frame.argBase())

	for _, v := range returns {
		if err := s.push(v); err != nil {
			return err
		}
	}
	value.Drop(frame.Closure)
	return nil
}
