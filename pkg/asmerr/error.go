// Package asmerr carries error values with source locations attached.
//
// Every fallible operation in the assembler returns (*T, error) where the
// error is an *Error.  As an error propagates outward, callers decorate it
// with the nearest location they know about (a file path, a line number, an
// address); inner fields win, so the most precise location survives.
package asmerr

import "fmt"

// OffsetKind says how to interpret a Location's offset value.
type OffsetKind uint8

const (
	NoOffset OffsetKind = iota
	LineNumber
	AtAddress
)

// Location is a position in an input file or in the 65816 address space.
type Location struct {
	Path   string
	Offset int
	Kind   OffsetKind
}

// FromLine returns a line-number location with no path.
func FromLine(line int) Location {
	return Location{Offset: line, Kind: LineNumber}
}

// FromAddress returns an address location with no path.
func FromAddress(address int) Location {
	return Location{Offset: address, Kind: AtAddress}
}

// Update fills in any part of l that rhs knows and l does not.
// Non-empty fields of l are kept.
func (l *Location) Update(rhs Location) {
	if l.Path == "" {
		l.Path = rhs.Path
	}
	if l.Kind == NoOffset {
		l.Offset = rhs.Offset
		l.Kind = rhs.Kind
	}
}

func (l Location) String() string {
	if l.Path == "" && l.Kind == NoOffset {
		return ""
	}
	switch l.Kind {
	case LineNumber:
		return fmt.Sprintf("%s:%d", l.Path, l.Offset)
	case AtAddress:
		return fmt.Sprintf("%s:0x%06x", l.Path, l.Offset)
	default:
		return l.Path
	}
}

// Error is an assembler diagnostic: a message plus an optional location.
type Error struct {
	Msg string
	Loc Location
}

// New creates an Error from a printf-style message.
func New(format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// WithLocation decorates e with loc and returns e.  Fields already set on the
// error's location are preserved, so inner (more precise) locations win over
// outer ones.  A nil receiver stays nil, which lets callers decorate
// unconditionally.
func (e *Error) WithLocation(loc Location) *Error {
	if e == nil {
		return nil
	}
	e.Loc.Update(loc)
	return e
}

func (e *Error) Error() string {
	ls := e.Loc.String()
	if ls == "" {
		return e.Msg
	}
	return ls + ": " + e.Msg
}

// Decorate attaches loc to err if err is an *Error, and passes other error
// values through untouched.
func Decorate(err error, loc Location) error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae.WithLocation(loc)
	}
	return err
}
