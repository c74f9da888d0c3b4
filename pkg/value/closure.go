package value

// Upvalue is a variable captured from an enclosing scope. It starts
// open, aliasing a live stack slot, and is closed when the frame that
// owns that slot returns, at which point it becomes the sole owner of
// the captured value.
type Upvalue struct {
	closed bool
	slot   *Value // open: points directly at a live stack slot
	value  Value  // closed: owns the value
}

// OpenUpvalue captures a live stack slot by address. The evaluation stack
// backing array is allocated once for the lifetime of a State (see
// pkg/runtime), so a pointer into it remains valid for as long as the
// frame that owns the slot is on the call chain, which is exactly the
// window during which an open upvalue is legal to dereference.
func OpenUpvalue(slot *Value) *Upvalue {
	return &Upvalue{slot: slot}
}

// Close moves the upvalue's current stack value into its own storage
// so the stack slot can be safely overwritten or fall out of scope.
// Ownership of the value transfers to the upvalue; the slot is nilled.
func (u *Upvalue) Close() {
	if u.closed {
		return
	}
	u.value = *u.slot
	*u.slot = Nil()
	u.closed = true
	u.slot = nil
}

// Get reads through the open/closed indirection transparently.
func (u *Upvalue) Get() Value {
	if u.closed {
		return u.value
	}
	return *u.slot
}

// Set writes through the open/closed indirection transparently,
// dropping the previous value.
func (u *Upvalue) Set(v Value) {
	if u.closed {
		Drop(u.value)
		u.value = v
		return
	}
	Drop(*u.slot)
	*u.slot = v
}

// ClosureObj is a bytecode function value: an entry address into the
// owning program's instruction vector, a parameter arity, and a vector
// of captured upvalues.
type ClosureObj struct {
	Entry  int
	Arity  int
	Name   string
	Upvals []*Upvalue
	rc     int32
}

func NewClosure(entry, arity int, name string, upvals []*Upvalue) Value {
	return fromClosure(&ClosureObj{Entry: entry, Arity: arity, Name: name, Upvals: upvals, rc: 1})
}

func (c *ClosureObj) refcount() *int32 { return &c.rc }

func (c *ClosureObj) release() {
	for _, uv := range c.Upvals {
		if uv.closed {
			Drop(uv.value)
		}
	}
}
