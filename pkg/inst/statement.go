package inst

import (
	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/expr"
)

// Statement is one line of a module: either an *Instruction or a
// *Directive.
type Statement interface {
	// SerializedSize is the number of bytes the statement emits.
	SerializedSize() int
	// Assemble emits the statement's bytes to the sink.
	Assemble(address addr.Address, ctx expr.LookupContext, sink OutputSink) error
	// IsExitInstruction reports whether control never continues to the
	// next line.
	IsExitInstruction() bool
	// Loc returns the statement's source location.
	Loc() asmerr.Location
	String() string
}

var (
	_ Statement = (*Instruction)(nil)
	_ Statement = (*Directive)(nil)
)
