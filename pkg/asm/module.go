// Package asm drives multi-module assembly: per-module sizing and label
// passes, cross-module .equ resolution in dependency order, and emission
// into an output sink with byte-range ownership tracking.
package asm

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
	"github.com/oisee/asm816/pkg/inst"
	"github.com/oisee/asm816/pkg/syntax"
)

// Line is one statement inside a module, with everything the passes learn
// about it.
type Line struct {
	Statement inst.Statement
	Labels    []string
	Exported  map[string]bool

	// Reached is true when linear control flow arrives at this line.
	Reached bool
	// Incoming is the execution state on entry, valid when Reached.
	Incoming cpu.ExecutionState
	// Address is the line's assigned location, valid when HasAddress.
	Address    addr.Address
	HasAddress bool
	// ActiveScopes is the stack of .begin line indices enclosing this line.
	ActiveScopes []int
	// ScopedLocals maps labels local to this line's scope (set on .begin
	// lines only) to their defining line index.
	ScopedLocals map[string]int
}

// entryPoint is a subroutine entry declared with .entry or .remote.
type entryPoint struct {
	Address    addr.Address
	Convention cpu.CallingConvention
}

// Module is one .asm file: its parsed lines, label scopes, and everything
// the two passes compute.
type Module struct {
	Path string
	Name string

	lines        []Line
	dependencies map[string]bool

	globalToLine map[string]int
	equValues    map[int]int
	ownedBytes   addr.DataRange
	valueToName  map[int]string
	entryPoints  []entryPoint

	// unnamedTargets maps far-branch destinations to the merged flag state
	// observed at the branches.
	unnamedTargets map[int]cpu.StatusFlags
}

// LoadSource parses module source from a reader.  The path is used for the
// module's error locations.
func LoadSource(path string, r io.Reader) (*Module, error) {
	m := &Module{
		Path:           path,
		dependencies:   make(map[string]bool),
		globalToLine:   make(map[string]int),
		equValues:      make(map[int]int),
		valueToName:    make(map[int]string),
		unnamedTargets: make(map[int]cpu.StatusFlags),
	}

	var pendingLabels []string
	pendingExported := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		loc := asmerr.Location{Path: path, Offset: lineNumber, Kind: asmerr.LineNumber}
		tokens, err := syntax.Tokenize(scanner.Text(), loc)
		if err != nil {
			return nil, err
		}
		entities, err := syntax.Parse(tokens)
		if err != nil {
			return nil, err
		}
		for _, entity := range entities {
			if entity.Label != nil {
				pendingLabels = append(pendingLabels, entity.Label.Name)
				if entity.Label.Exported {
					pendingExported[entity.Label.Name] = true
				}
				continue
			}
			line := Line{Statement: entity.Statement, Labels: pendingLabels}
			if len(pendingExported) > 0 {
				line.Exported = pendingExported
				pendingExported = make(map[string]bool)
			}
			pendingLabels = nil
			m.lines = append(m.lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, asmerr.New("error reading %s: %v", path, err)
	}
	return m, nil
}

// LoadAsmFile opens and parses the .asm file at path.
func LoadAsmFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, asmerr.New("Unable to open file %s", path)
	}
	defer f.Close()
	return LoadSource(path, f)
}

// LoadString parses module source held in a string.
func LoadString(path, contents string) (*Module, error) {
	return LoadSource(path, strings.NewReader(contents))
}

// Dependencies returns the names of modules this module's .equ expressions
// reference.  Valid after the first pass.
func (m *Module) Dependencies() map[string]bool { return m.dependencies }

// DefinesGlobal reports whether the module defines the given top-level
// label.  Valid after the first pass.
func (m *Module) DefinesGlobal(name string) bool {
	_, ok := m.globalToLine[name]
	return ok
}

// OwnedBytes returns the address ranges the module emits into.
func (m *Module) OwnedBytes() *addr.DataRange { return &m.ownedBytes }

// RunFirstPass walks the module's lines in order, maintaining the scope
// stack, the emission cursor, and the statically simulated execution state.
// It decides every instruction's size, assigns addresses, and records label
// definitions.  No expressions are evaluated except the .org argument, which
// must be constant, and the .remote address.
func (m *Module) RunFirstPass() error {
	var pc addr.Address
	pcSet := false
	reached := false
	state := cpu.NewExecutionState(cpu.UnknownFlags())
	var activeScopes []int

	for i := range m.lines {
		line := &m.lines[i]
		line.ActiveScopes = append([]int(nil), activeScopes...)
		line.Reached = reached
		if reached {
			line.Incoming = state.Clone()
		}
		loc := line.Statement.Loc()

		// Record this line's labels in the enclosing scope, or at module
		// level.
		for _, label := range line.Labels {
			if err := m.defineLabel(label, i, activeScopes, loc); err != nil {
				return err
			}
		}

		if directive, ok := line.Statement.(*inst.Directive); ok {
			switch directive.Name {
			case inst.DBegin:
				activeScopes = append(activeScopes, i)
				line.ScopedLocals = make(map[string]int)
				continue
			case inst.DEnd:
				if len(activeScopes) == 0 {
					return asmerr.New(".end directive outside of scope").
						WithLocation(loc)
				}
				activeScopes = activeScopes[:len(activeScopes)-1]
				continue
			case inst.DModule:
				name, _ := expr.SimpleIdentifier(directive.Argument)
				if m.Name != "" {
					return asmerr.New("duplicate .module directive").WithLocation(loc)
				}
				m.Name = name
				continue
			case inst.DOrg:
				value, err := directive.Argument.Evaluate(expr.NullLookupContext{})
				if err != nil {
					return asmerr.Decorate(err, loc)
				}
				if value < 0 || value >= addr.SpaceSize {
					return asmerr.New(".org address $%x outside the address space",
						value).WithLocation(loc)
				}
				pc = addr.FromInt(value)
				pcSet = true
				continue
			case inst.DMode:
				state = cpu.NewExecutionState(directive.FlagArg)
				reached = true
				continue
			case inst.DEntry:
				state = cpu.NewExecutionState(directive.FlagArg)
				reached = true
				if pcSet {
					m.entryPoints = append(m.entryPoints, entryPoint{
						Address: pc,
						Convention: cpu.CallingConvention{
							Incoming: directive.FlagArg,
							Return:   directive.Return,
						},
					})
				}
				continue
			case inst.DRemote:
				value, err := directive.Argument.Evaluate(expr.NullLookupContext{})
				if err != nil {
					return asmerr.Decorate(err, loc)
				}
				m.entryPoints = append(m.entryPoints, entryPoint{
					Address: addr.FromInt(value),
					Convention: cpu.CallingConvention{
						Incoming: directive.FlagArg,
						Return:   directive.Return,
					},
				})
				continue
			case inst.DEqu:
				if len(line.Labels) == 0 {
					return asmerr.New(".equ directive requires a label").
						WithLocation(loc)
				}
				for _, ident := range expr.CollectIdentifiers(directive.Argument) {
					if ident.Qualified && ident.Module != "" {
						m.dependencies[ident.Module] = true
					}
				}
				continue
			case inst.DHalt:
				reached = false
				continue
			}
		}

		if instruction, ok := line.Statement.(*inst.Instruction); ok {
			flags := cpu.UnknownFlags()
			if reached {
				flags = state.FlagState
			}
			if err := m.resolveWidth(instruction, flags, loc); err != nil {
				return err
			}
		}

		size := line.Statement.SerializedSize()
		if size > 0 {
			if !pcSet {
				return asmerr.New("No address given for assembly").WithLocation(loc)
			}
			if int(pc.BankAddress())+size > 0x10000 {
				return asmerr.New("assembly would wrap mid-bank at %s", pc).
					WithLocation(loc)
			}
			line.Address = pc
			line.HasAddress = true
			if !m.ownedBytes.ClaimBytes(pc.Int(), size) {
				return asmerr.New("module emits twice into bytes at %s", pc).
					WithLocation(loc)
			}

			if instruction, ok := line.Statement.(*inst.Instruction); ok {
				if target, ok := instruction.FarBranchTarget(pc); ok && reached {
					m.recordJumpTarget(target, state.FlagState)
				}
			}
			pc = pc.AddWrapped(size)
		}

		if instruction, ok := line.Statement.(*inst.Instruction); ok {
			if reached {
				if err := instruction.ExecuteState(&state); err != nil {
					return asmerr.Decorate(err, loc)
				}
			}
			if instruction.IsExitInstruction() {
				reached = false
			}
		}
	}

	if len(activeScopes) > 0 {
		return asmerr.New("unterminated scope (.begin without .end)").
			WithLocation(m.lines[activeScopes[len(activeScopes)-1]].Statement.Loc())
	}

	return nil
}

// resolveWidth settles a flex-immediate addressing mode: an explicit suffix
// forces the width; otherwise the current flag state must decide it.
func (m *Module) resolveWidth(instruction *inst.Instruction,
	flags cpu.StatusFlags, loc asmerr.Location) error {
	if !instruction.Mode.IsFlexImmediate() {
		return nil
	}
	switch instruction.Suffix {
	case inst.SuffixB:
		instruction.Mode = inst.AImmB
		return nil
	case inst.SuffixW:
		instruction.Mode = inst.AImmW
		return nil
	}
	return asmerr.Decorate(instruction.FixAddressingMode(flags), loc)
}

func (m *Module) defineLabel(label string, lineIndex int, activeScopes []int,
	loc asmerr.Location) error {
	if len(activeScopes) > 0 {
		// A label defined inside a scope is local to it.
		scope := m.lines[activeScopes[len(activeScopes)-1]].ScopedLocals
		if _, exists := scope[label]; exists {
			return asmerr.New("Duplicate label definition for '%s'", label).
				WithLocation(loc)
		}
		scope[label] = lineIndex
		return nil
	}
	if _, exists := m.globalToLine[label]; exists {
		return asmerr.New("Duplicate label definition for '%s'", label).
			WithLocation(loc)
	}
	m.globalToLine[label] = lineIndex
	return nil
}

func (m *Module) recordJumpTarget(target addr.Address, flags cpu.StatusFlags) {
	key := target.Int()
	if existing, ok := m.unnamedTargets[key]; ok {
		m.unnamedTargets[key] = existing.Merge(flags)
	} else {
		m.unnamedTargets[key] = flags
	}
}

// unqualifiedEquRefs returns the unqualified identifiers referenced by the
// module's .equ expressions that the module does not define itself.  The
// assembler resolves these to providing modules when ordering evaluation.
func (m *Module) unqualifiedEquRefs() []string {
	var result []string
	for i := range m.lines {
		directive, ok := m.lines[i].Statement.(*inst.Directive)
		if !ok || directive.Name != inst.DEqu {
			continue
		}
		for _, ident := range expr.CollectIdentifiers(directive.Argument) {
			if ident.Qualified && ident.Module != "" {
				continue // a named dependency, recorded in the first pass
			}
			if !m.DefinesGlobal(ident.Name) {
				result = append(result, ident.Name)
			}
		}
	}
	return result
}

// RunSecondPass evaluates the module's .equ expressions, in line order,
// against the given cross-module lookup context.
func (m *Module) RunSecondPass(global GlobalLookup) error {
	for i := range m.lines {
		line := &m.lines[i]
		directive, ok := line.Statement.(*inst.Directive)
		if !ok || directive.Name != inst.DEqu {
			continue
		}
		ctx := &moduleLookupContext{
			module: m,
			scopes: line.ActiveScopes,
			global: global,
		}
		value, err := directive.Argument.Evaluate(ctx)
		if err != nil {
			return asmerr.Decorate(err, directive.Location)
		}
		m.equValues[i] = value
	}

	// With every value known, build the reverse value-to-name map used by
	// post-assembly queries.
	for name, index := range m.globalToLine {
		if value, err := m.valueForLine(index); err == nil {
			m.valueToName[value] = name
		}
	}
	return nil
}

// localIndex resolves a label to its defining line: the active scopes are
// searched innermost first, then the module's globals.
func (m *Module) localIndex(name string, activeScopes []int) (int, bool) {
	for i := len(activeScopes) - 1; i >= 0; i-- {
		scope := m.lines[activeScopes[i]].ScopedLocals
		if index, ok := scope[name]; ok {
			return index, true
		}
	}
	index, ok := m.globalToLine[name]
	return index, ok
}

// valueForLine returns the value a label on the given line stands for: the
// .equ value for constant definitions, the line's address otherwise.
func (m *Module) valueForLine(index int) (int, error) {
	line := &m.lines[index]
	if directive, ok := line.Statement.(*inst.Directive); ok && directive.Name == inst.DEqu {
		value, ok := m.equValues[index]
		if !ok {
			return 0, asmerr.New("constant not yet evaluated").
				WithLocation(directive.Location)
		}
		return value, nil
	}
	if !line.HasAddress {
		return 0, asmerr.New("label has no address").
			WithLocation(line.Statement.Loc())
	}
	return line.Address.Int(), nil
}

// localLookup resolves a label visible from the given scope stack to its
// value.
func (m *Module) localLookup(name string, activeScopes []int) (int, error) {
	index, ok := m.localIndex(name, activeScopes)
	if !ok {
		return 0, asmerr.New("'%s' is not defined here", name)
	}
	return m.valueForLine(index)
}

// ValueForName resolves one of the module's global names, for cross-module
// references.
func (m *Module) ValueForName(name string) (int, error) {
	index, ok := m.globalToLine[name]
	if !ok {
		return 0, asmerr.New("'%s' is not defined in module %s", name, m.Name)
	}
	return m.valueForLine(index)
}

// NameForValue returns the module's global label for a value, if one exists.
func (m *Module) NameForValue(value int) (string, bool) {
	name, ok := m.valueToName[value]
	return name, ok
}

// Assemble emits every sized line to the sink, evaluating argument
// expressions against the module's scopes plus the global context.
func (m *Module) Assemble(sink inst.OutputSink, global GlobalLookup) error {
	for i := range m.lines {
		line := &m.lines[i]
		if !line.HasAddress || line.Statement.SerializedSize() == 0 {
			continue
		}
		ctx := &moduleLookupContext{
			module: m,
			scopes: line.ActiveScopes,
			global: global,
		}
		if err := line.Statement.Assemble(line.Address, ctx, sink); err != nil {
			return asmerr.Decorate(err, line.Statement.Loc())
		}
		glog.V(2).Infof("assembled %s at %s", line.Statement, line.Address)
	}
	return nil
}

// DebugString renders the module's lines with their labels.
func (m *Module) DebugString() string {
	var sb strings.Builder
	for i := range m.lines {
		for _, label := range m.lines[i].Labels {
			sb.WriteString(label)
			sb.WriteString(":\n")
		}
		sb.WriteString("    ")
		sb.WriteString(m.lines[i].Statement.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// GlobalLookup resolves names that aren't found inside the current module.
type GlobalLookup interface {
	// LookupGlobal resolves name in the module registry.  module is the
	// explicit qualifier, or empty with qualified=true for "::name", or
	// empty with qualified=false for an unqualified fallback search.
	LookupGlobal(name, module string, qualified bool) (int, error)
}

// moduleLookupContext resolves identifiers for one line of one module:
// active scopes innermost first, then module globals, then the assembler's
// registry.
type moduleLookupContext struct {
	module *Module
	scopes []int
	global GlobalLookup
}

func (c *moduleLookupContext) Lookup(name, module string, qualified bool) (int, error) {
	if !qualified {
		if value, err := c.module.localLookup(name, c.scopes); err == nil {
			return value, nil
		}
	} else if module == "" || module == c.module.Name {
		// "::name" (or an explicit self-reference) searches this module's
		// globals before the registry.
		if value, err := c.module.ValueForName(name); err == nil {
			return value, nil
		}
	}
	if c.global == nil {
		return 0, asmerr.New("'%s' is not defined", name)
	}
	return c.global.LookupGlobal(name, module, qualified)
}
