package cpu

import "strings"

// StatusFlags tracks the compile-time-known state of the status bits the
// assembler cares about: `e` (emulation), `m` (accumulator width), `x`
// (index width), and `c` (carry, because XCE moves it into `e`).  It also
// remembers the `m`/`x` snapshot last pushed by PHP.
//
// Flag states convert to and from a small closed set of names ("emu",
// "native", "m8x16", ...) used by directives and error messages.
type StatusFlags struct {
	E, M, X, C       BitState
	PushedM, PushedX BitState
}

// NewStatusFlags builds a flag state from the four live bits, constraining
// `m` and `x` through `e`.  The pushed shadow starts unknown.
func NewStatusFlags(e, m, x, c BitState) StatusFlags {
	return StatusFlags{
		E:       e,
		M:       ConstrainForEBit(m, e),
		X:       ConstrainForEBit(x, e),
		C:       c,
		PushedM: Unknown,
		PushedX: Unknown,
	}
}

// UnknownFlags returns the fully indeterminate state.
func UnknownFlags() StatusFlags {
	return NewStatusFlags(Unknown, Unknown, Unknown, Unknown)
}

// SetM assigns the `m` bit, constrained through `e`.
func (s *StatusFlags) SetM(state BitState) { s.M = ConstrainForEBit(state, s.E) }

// SetX assigns the `x` bit, constrained through `e`.
func (s *StatusFlags) SetX(state BitState) { s.X = ConstrainForEBit(state, s.E) }

// SetC assigns the carry bit.
func (s *StatusFlags) SetC(state BitState) { s.C = state }

// PushFlags records the PHP snapshot of the `m` and `x` bits.
func (s *StatusFlags) PushFlags() {
	s.PushedM = s.M
	s.PushedX = s.X
}

// PullFlags restores `m` and `x` from the pushed snapshot and clears it.
// Both halves restore from the `m` shadow; the `x` shadow is written by
// PushFlags but never read back.  This mirrors the observable behavior of
// the reference analyzer.
func (s *StatusFlags) PullFlags() {
	s.M = ConstrainForEBit(s.PushedM, s.E)
	s.X = ConstrainForEBit(s.PushedM, s.E)
	s.PushedM = Unknown
	s.PushedX = Unknown
}

// ExchangeCE swaps the carry and emulation bits (the XCE instruction), then
// re-constrains `m` and `x` against the new `e`.
func (s *StatusFlags) ExchangeCE() {
	s.C, s.E = s.E, s.C
	s.M = ConstrainForEBit(s.M, s.E)
	s.X = ConstrainForEBit(s.X, s.E)
}

// SetIncoming converts this state into a subroutine-entry state: every bit
// whose value is unknown is promoted to Original.
func (s *StatusFlags) SetIncoming() {
	if s.E == Unknown {
		s.E = Original
	}
	if s.M == Unknown {
		s.M = Original
	}
	if s.X == Unknown {
		s.X = Original
	}
	if s.C == Unknown {
		s.C = Original
	}
}

// Merge returns the superposition of two flag states, bit by bit.
func (s StatusFlags) Merge(rhs StatusFlags) StatusFlags {
	return StatusFlags{
		E:       s.E.Merge(rhs.E),
		M:       s.M.Merge(rhs.M),
		X:       s.X.Merge(rhs.X),
		C:       s.C.Merge(rhs.C),
		PushedM: s.PushedM.Merge(rhs.PushedM),
		PushedX: s.PushedX.Merge(rhs.PushedX),
	}
}

// Name returns the canonical spelling of this flag state: "unk", "emu",
// "native", or the concatenated m8/m16 and x8/x16 halves.
func (s StatusFlags) Name() string {
	if !s.E.Known() {
		return "unk"
	}
	if s.E == On {
		return "emu"
	}
	mStr := ""
	if s.M.Known() {
		if s.M == Off {
			mStr = "m16"
		} else {
			mStr = "m8"
		}
	}
	xStr := ""
	if s.X.Known() {
		if s.X == Off {
			xStr = "x16"
		} else {
			xStr = "x8"
		}
	}
	if mStr == "" && xStr == "" {
		return "native"
	}
	return mStr + xStr
}

// String renders the name plus the carry bit when it is known.
func (s StatusFlags) String() string {
	switch s.C {
	case On:
		return s.Name() + ", c=1"
	case Off:
		return s.Name() + ", c=0"
	default:
		return s.Name()
	}
}

// FromName parses a flag state name.  Accepted spellings are "unk", "emu",
// "native", and "m(8|16)?x(8|16)?" with either half optional; matching is
// case-insensitive and the whole name must be consumed.
func FromName(name string) (StatusFlags, bool) {
	lower := strings.ToLower(name)
	switch lower {
	case "unk":
		return NewStatusFlags(Unknown, Unknown, Unknown, Unknown), true
	case "emu":
		return NewStatusFlags(On, On, On, Unknown), true
	case "native":
		return NewStatusFlags(Off, Unknown, Unknown, Unknown), true
	case "":
		return StatusFlags{}, false
	}

	mBit := Unknown
	xBit := Unknown
	if strings.HasPrefix(lower, "m") {
		lower = lower[1:]
		bit, rest, ok := consumeWidth(lower)
		if !ok {
			return StatusFlags{}, false
		}
		mBit = bit
		lower = rest
	}
	if strings.HasPrefix(lower, "x") {
		lower = lower[1:]
		bit, rest, ok := consumeWidth(lower)
		if !ok {
			return StatusFlags{}, false
		}
		xBit = bit
		lower = rest
	}
	if lower != "" {
		return StatusFlags{}, false
	}
	return NewStatusFlags(Off, mBit, xBit, Unknown), true
}

// consumeWidth reads a leading "8" or "16" off the name.
func consumeWidth(s string) (BitState, string, bool) {
	if strings.HasPrefix(s, "16") {
		return Off, s[2:], true
	}
	if strings.HasPrefix(s, "8") {
		return On, s[1:], true
	}
	return Unknown, s, false
}
