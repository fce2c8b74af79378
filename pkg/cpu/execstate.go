package cpu

// ExecutionState is the full static-simulation state on one line: the status
// flags, the tracked A/X/Y/DBR register contents, and the symbolic stack.
// It is a value type; copies are cheap enough to store per line.
type ExecutionState struct {
	A, X, Y, DBR RegisterValue
	FlagState    StatusFlags
	Stack        Stack
}

// NewExecutionState builds the entry state for a subroutine with the given
// flags: registers at their entry values, unknown bits promoted to Original,
// and an empty stack.
func NewExecutionState(flags StatusFlags) ExecutionState {
	flags.SetIncoming()
	return ExecutionState{
		A: OriginalRegister(), X: OriginalRegister(), Y: OriginalRegister(),
		DBR: OriginalRegister(), FlagState: flags,
	}
}

// Flags returns the current status flags.
func (e *ExecutionState) Flags() *StatusFlags { return &e.FlagState }

// Clone returns a copy whose stack does not share storage with the
// original.
func (e *ExecutionState) Clone() ExecutionState {
	clone := *e
	clone.Stack = e.Stack.Clone()
	return clone
}

// PushFlags models PHP against the symbolic stack as well as the flag
// shadow.
func (e *ExecutionState) PushFlags() {
	e.FlagState.PushFlags()
	e.Stack.PushFlags(e.FlagState)
}

// PullFlags models PLP.  If the top of the stack is not a flags snapshot the
// live flags are clobbered to an unknown state, keeping only `e` (which PLP
// cannot change).
func (e *ExecutionState) PullFlags() {
	value := e.Stack.PullByte()
	if value.Kind != StackFlags {
		e.FlagState = NewStatusFlags(e.FlagState.E, Unknown, Unknown, Unknown)
		return
	}
	restored := value.Flags
	e.FlagState = NewStatusFlags(e.FlagState.E, restored.M, restored.X, restored.C)
}

// PushAccumulator models PHA.
func (e *ExecutionState) PushAccumulator() { e.Stack.PushA(e.A, e.FlagState) }

// PushXRegister models PHX.
func (e *ExecutionState) PushXRegister() { e.Stack.PushX(e.X, e.FlagState) }

// PushYRegister models PHY.
func (e *ExecutionState) PushYRegister() { e.Stack.PushY(e.Y, e.FlagState) }

// PushDataBank models PHB.
func (e *ExecutionState) PushDataBank() { e.Stack.PushDBR(e.DBR) }

// PullAccumulator models PLA.
func (e *ExecutionState) PullAccumulator() { e.A = e.Stack.PullA(e.FlagState) }

// PullXRegister models PLX.
func (e *ExecutionState) PullXRegister() { e.X = e.Stack.PullX(e.FlagState) }

// PullYRegister models PLY.
func (e *ExecutionState) PullYRegister() { e.Y = e.Stack.PullY(e.FlagState) }

// PullDataBank models PLB.
func (e *ExecutionState) PullDataBank() {
	b := e.Stack.PullByte()
	switch b.Kind {
	case StackDBR:
		e.DBR = OriginalRegister()
	case StackByte:
		e.DBR = KnownRegister(uint16(b.Value))
	default:
		e.DBR = RegisterValue{}
	}
}

// WipeAccumulator forgets the accumulator's contents.
func (e *ExecutionState) WipeAccumulator() { e.A = RegisterValue{} }

// WipeCarry forgets the carry bit.
func (e *ExecutionState) WipeCarry() { e.FlagState.SetC(Unknown) }

// Merge combines the states of two code paths.
func (e *ExecutionState) Merge(rhs *ExecutionState) {
	e.A.Merge(rhs.A)
	e.X.Merge(rhs.X)
	e.Y.Merge(rhs.Y)
	e.DBR.Merge(rhs.DBR)
	e.FlagState = e.FlagState.Merge(rhs.FlagState)
	e.Stack.Merge(&rhs.Stack)
}

// Equal compares two execution states.
func (e *ExecutionState) Equal(rhs *ExecutionState) bool {
	return e.A == rhs.A && e.X == rhs.X && e.Y == rhs.Y && e.DBR == rhs.DBR &&
		e.FlagState == rhs.FlagState && e.Stack.Equal(&rhs.Stack)
}
