package inst

import (
	"strings"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
)

// DirectiveName identifies one assembler directive.
type DirectiveName uint8

const (
	DBegin DirectiveName = iota
	DDb
	DDl
	DDw
	DEnd
	DEntry
	DEqu
	DHalt
	DMode
	DModule
	DOrg
	DRemote

	DirectiveNameCount // sentinel
)

var directiveNames = [DirectiveNameCount]string{
	".BEGIN", ".DB", ".DL", ".DW", ".END", ".ENTRY",
	".EQU", ".HALT", ".MODE", ".MODULE", ".ORG", ".REMOTE",
}

func (d DirectiveName) String() string {
	if d >= DirectiveNameCount {
		return ""
	}
	return directiveNames[d]
}

// ToDirectiveName parses a (case-insensitive) directive spelling.
func ToDirectiveName(s string) (DirectiveName, bool) {
	upper := strings.ToUpper(s)
	for i := DirectiveName(0); i < DirectiveNameCount; i++ {
		if directiveNames[i] == upper {
			return i, true
		}
	}
	return 0, false
}

// DirectiveType says what kind of argument a directive accepts.
type DirectiveType uint8

const (
	DTNoArg DirectiveType = iota
	DTSingleArg
	DTConstantArg
	DTFlagArg
	DTCallingConventionArg
	DTListArg
	DTNameArg
	DTRemoteArg
)

// DirectiveTypeByName returns the argument kind the directive accepts.
func DirectiveTypeByName(d DirectiveName) DirectiveType {
	switch d {
	case DBegin, DEnd, DHalt:
		return DTNoArg
	case DDb, DDl, DDw:
		return DTListArg
	case DEntry:
		return DTCallingConventionArg
	case DEqu:
		return DTSingleArg
	case DOrg:
		return DTConstantArg
	case DMode:
		return DTFlagArg
	case DModule:
		return DTNameArg
	case DRemote:
		return DTRemoteArg
	default:
		return DTSingleArg
	}
}

// Directive is one assembler directive with its parsed arguments.
type Directive struct {
	Name     DirectiveName
	Argument expr.Expression
	FlagArg  cpu.StatusFlags
	Return   cpu.ReturnConvention
	List     []expr.Expression
	Location asmerr.Location
}

func (d *Directive) String() string {
	var sb strings.Builder
	sb.WriteString(d.Name.String())
	switch DirectiveTypeByName(d.Name) {
	case DTSingleArg, DTConstantArg, DTNameArg:
		sb.WriteByte(' ')
		sb.WriteString(d.Argument.String())
	case DTListArg:
		for i, e := range d.List {
			if i > 0 {
				sb.WriteString(", ")
			} else {
				sb.WriteByte(' ')
			}
			sb.WriteString(e.String())
		}
	case DTFlagArg:
		sb.WriteByte(' ')
		sb.WriteString(d.FlagArg.Name())
	case DTCallingConventionArg:
		sb.WriteByte(' ')
		sb.WriteString(d.FlagArg.Name())
		sb.WriteString(d.Return.SuffixString())
	case DTRemoteArg:
		sb.WriteByte(' ')
		sb.WriteString(d.Argument.String())
		sb.WriteByte(' ')
		sb.WriteString(d.FlagArg.Name())
		sb.WriteString(d.Return.SuffixString())
	}
	return sb.String()
}

// Loc returns the directive's source location.
func (d *Directive) Loc() asmerr.Location { return d.Location }

// SerializedSize returns the number of bytes the directive emits: the data
// directives emit their list at 1, 2, or 3 bytes per entry, everything else
// emits nothing.
func (d *Directive) SerializedSize() int {
	switch d.Name {
	case DDb:
		return len(d.List)
	case DDw:
		return 2 * len(d.List)
	case DDl:
		return 3 * len(d.List)
	default:
		return 0
	}
}

// IsExitInstruction reports whether control does not continue past this
// directive (.halt).
func (d *Directive) IsExitInstruction() bool { return d.Name == DHalt }

// Assemble emits the directive's bytes, if it has any, to the sink.
func (d *Directive) Assemble(address addr.Address, ctx expr.LookupContext,
	sink OutputSink) error {
	var width int
	switch d.Name {
	case DDb:
		width = 1
	case DDw:
		width = 2
	case DDl:
		width = 3
	default:
		return nil
	}

	output := make([]uint8, 0, width*len(d.List))
	for _, e := range d.List {
		value, err := e.Evaluate(ctx)
		if err != nil {
			return asmerr.Decorate(err, d.Location)
		}
		output = append(output, uint8(value))
		if width >= 2 {
			output = append(output, uint8(value>>8))
		}
		if width >= 3 {
			output = append(output, uint8(value>>16))
		}
	}
	return sink.Write(address, output)
}
