package runtime

import "github.com/xnlogical/via/pkg/value"

// Host embedding surface. Everything here is safe to call from Go
// between Execute runs or from inside a foreign function; the
// unexported equivalents these wrap are what the dispatcher itself
// uses.

// Pop removes and returns the top-of-stack value. The caller owns the
// returned value and must Drop it when done.
func (s *State) Pop() (value.Value, error) { return s.pop() }

// Top peeks at the top-of-stack value without consuming it.
func (s *State) Top() (value.Value, error) { return s.top() }

// GetRegister returns a clone of register i's contents; the caller owns
// the clone.
func (s *State) GetRegister(i uint16) (value.Value, error) {
	v, err := s.getRegister(i)
	if err != nil {
		return value.Value{}, err
	}
	return value.Clone(v), nil
}

// SetRegister moves v into register i, dropping the slot's prior
// contents. The State takes ownership of v.
func (s *State) SetRegister(i uint16, v value.Value) error {
	return s.setRegister(i, v)
}

// GetGlobal looks up a global by identifier name, hashing it the same
// way SETGLOBAL/GETGLOBAL operands are produced. Unbound globals yield
// Nil.
func (s *State) GetGlobal(name string) value.Value {
	return s.manager.GetGlobal(value.HashString(name))
}

// SetGlobal declares a global by identifier name. Globals are
// declare-once; redeclaring returns ErrGlobalRedeclaration.
func (s *State) SetGlobal(name string, v value.Value) error {
	return s.manager.SetGlobal(value.HashString(name), v)
}

// Manager returns the shared intern/global tables this State executes
// against, for hosts that want to register foreign functions or share
// tables across VM instances.
func (s *State) Manager() *Manager { return s.manager }

// Call runs callee (closure, foreign function, or table with __call)
// to completion with the argc values the host already pushed. Return
// values are delivered on the stack, exactly as RETURN leaves them for
// a bytecode caller.
func (s *State) Call(callee value.Value, argc int) error {
	caller := s.frame
	s.halted = false // a prior Execute's HALT must not stop this call
	if err := s.call(callee, argc); err != nil {
		return err
	}
	// Foreign functions and __call-metamethod foreigns already ran to
	// completion inside call(); a closure needs the dispatcher driven
	// until control returns to the host's frame.
	if s.frame != caller {
		if err := s.runUntilReturn(caller); err != nil {
			return err
		}
	}
	return nil
}

// ToString applies the string conversion, including any __tostring
// metamethod, and returns an owned string value.
func (s *State) ToString(v value.Value) (value.Value, error) {
	return s.toString(v)
}
