package asm

import (
	"fmt"
	"sort"

	"github.com/golang/glog"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/inst"
)

// Assembler gathers modules, orders their .equ evaluation by dependency, and
// emits every module into a single output sink while policing byte
// ownership.
type Assembler struct {
	modules      []*Module
	namedModules map[string]*Module

	// memoryModuleMap records which module owns each emitted byte.
	memoryModuleMap addr.RangeMap[*Module]
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{namedModules: make(map[string]*Module)}
}

// AddModule registers a loaded module.  Named modules must be unique;
// anonymous modules are kept in insertion order.
func (a *Assembler) AddModule(m *Module) error {
	// A .module directive may not have been seen yet; module names settle
	// during the first pass, so defer uniqueness checks for late names to
	// Assemble.
	if m.Name != "" {
		if _, exists := a.namedModules[m.Name]; exists {
			return asmerr.New("Multiple files have the same module name \"%s\"", m.Name)
		}
		a.namedModules[m.Name] = m
	}
	a.modules = append(a.modules, m)
	return nil
}

// AddAsmFile loads and registers the module at path.
func (a *Assembler) AddAsmFile(path string) error {
	m, err := LoadAsmFile(path)
	if err != nil {
		return err
	}
	return a.AddModule(m)
}

// AddSource parses and registers module source held in a string.
func (a *Assembler) AddSource(path, contents string) error {
	m, err := LoadString(path, contents)
	if err != nil {
		return err
	}
	return a.AddModule(m)
}

// Assemble runs the full pipeline: first pass on every module, cross-module
// .equ resolution in dependency order, then emission module by module.
// Overlapping writes from different modules are a fatal error.
func (a *Assembler) Assemble(sink inst.OutputSink) error {
	// First pass: sizing, addresses, labels, dependency collection.
	for _, m := range a.modules {
		if err := m.RunFirstPass(); err != nil {
			return err
		}
		glog.V(1).Infof("first pass done for %q (%d lines)", m.Path, len(m.lines))
	}

	// Names declared by .module directives are only known now.
	for _, m := range a.modules {
		if m.Name == "" {
			continue
		}
		if existing, ok := a.namedModules[m.Name]; ok && existing != m {
			return asmerr.New("Multiple files have the same module name \"%s\"", m.Name)
		}
		a.namedModules[m.Name] = m
	}

	order, err := a.findAssemblyOrder()
	if err != nil {
		return err
	}

	// Second pass: .equ evaluation in dependency order.
	for _, index := range order {
		m := a.modules[index]
		if err := m.RunSecondPass(a); err != nil {
			return err
		}
		glog.V(1).Infof("second pass done for %q", m.Path)
	}

	// Claim every module's ranges before emitting a byte, so overlaps are
	// caught up front.
	for _, m := range a.modules {
		for _, chunk := range m.OwnedBytes().Chunks() {
			if !a.memoryModuleMap.Claim(chunk.First, chunk.Second-chunk.First, m) {
				owner, _ := a.memoryModuleMap.Lookup(chunk.First)
				return asmerr.New(
					"overlapping write: modules %s and %s both assemble bytes at %s",
					moduleDisplayName(owner), moduleDisplayName(m),
					addr.FromInt(chunk.First))
			}
		}
	}

	// Emission.
	for _, m := range a.modules {
		if err := m.Assemble(sink, a); err != nil {
			return err
		}
	}
	return nil
}

func moduleDisplayName(m *Module) string {
	if m == nil {
		return "?"
	}
	if m.Name != "" {
		return m.Name
	}
	return m.Path
}

// findAssemblyOrder topologically sorts the modules so every .equ value is
// evaluated before anything reads it.  A dependency cycle is fatal.
func (a *Assembler) findAssemblyOrder() ([]int, error) {
	count := len(a.modules)
	indexOf := make(map[*Module]int, count)
	for i, m := range a.modules {
		indexOf[m] = i
	}

	// Build the dependency edges: named dependencies from qualified
	// references, plus providers of unqualified .equ references.
	deps := make([][]int, count)
	for i, m := range a.modules {
		seen := make(map[int]bool)
		for name := range m.Dependencies() {
			provider, ok := a.namedModules[name]
			if !ok {
				return nil, asmerr.New("module %s depends on unknown module %s",
					moduleDisplayName(m), name)
			}
			j := indexOf[provider]
			if j != i && !seen[j] {
				seen[j] = true
				deps[i] = append(deps[i], j)
			}
		}
		for _, name := range m.unqualifiedEquRefs() {
			for j, provider := range a.modules {
				if j != i && provider.DefinesGlobal(name) && !seen[j] {
					seen[j] = true
					deps[i] = append(deps[i], j)
				}
			}
		}
		sort.Ints(deps[i])
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make([]int, count)
	order := make([]int, 0, count)

	var visit func(int) error
	visit = func(i int) error {
		switch marks[i] {
		case done:
			return nil
		case visiting:
			return asmerr.New("Cyclic dependency among modules (involving %s)",
				moduleDisplayName(a.modules[i]))
		}
		marks[i] = visiting
		for _, j := range deps[i] {
			if err := visit(j); err != nil {
				return err
			}
		}
		marks[i] = done
		order = append(order, i)
		return nil
	}
	for i := 0; i < count; i++ {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// LookupGlobal implements GlobalLookup over the assembler's module registry.
func (a *Assembler) LookupGlobal(name, module string, qualified bool) (int, error) {
	if qualified && module != "" {
		m, ok := a.namedModules[module]
		if !ok {
			return 0, asmerr.New("no module named '%s'", module)
		}
		return m.ValueForName(name)
	}
	// Unqualified (or "::name"): search every module defining the global,
	// anonymous modules in insertion order.
	for _, m := range a.modules {
		if m.DefinesGlobal(name) {
			return m.ValueForName(name)
		}
	}
	return 0, asmerr.New("'%s' is not defined", name)
}

// Contains reports whether any module assembled data into the address.
func (a *Assembler) Contains(address addr.Address) bool {
	return a.memoryModuleMap.Contains(address.Int())
}

// NameForAddress returns a qualified label for the address, when some
// module defines one.
func (a *Assembler) NameForAddress(address addr.Address) (string, bool) {
	for _, m := range a.modules {
		if name, ok := m.NameForValue(address.Int()); ok {
			if m.Name != "" {
				return fmt.Sprintf("%s::%s", m.Name, name), true
			}
			return name, true
		}
	}
	return "", false
}

// JumpTargets returns every statically known far-branch destination with the
// merged flag state observed at the branches.
func (a *Assembler) JumpTargets() map[int]cpu.StatusFlags {
	result := make(map[int]cpu.StatusFlags)
	for _, m := range a.modules {
		for address, flags := range m.unnamedTargets {
			if existing, ok := result[address]; ok {
				result[address] = existing.Merge(flags)
			} else {
				result[address] = flags
			}
		}
	}
	return result
}

// JumpTargetReturnConventions returns the declared calling convention for
// every entry point.  The same address declared with conflicting conventions
// is an error.
func (a *Assembler) JumpTargetReturnConventions() (map[int]cpu.CallingConvention, error) {
	result := make(map[int]cpu.CallingConvention)
	for _, m := range a.modules {
		for _, entry := range m.entryPoints {
			key := entry.Address.Int()
			existing, ok := result[key]
			if !ok {
				result[key] = entry.Convention
				continue
			}
			if existing.Return != entry.Convention.Return {
				return nil, asmerr.New(
					"conflicting return conventions declared for %s", entry.Address)
			}
			existing.Incoming = existing.Incoming.Merge(entry.Convention.Incoming)
			result[key] = existing
		}
	}
	return result, nil
}

// DebugString renders every module's contents.
func (a *Assembler) DebugString() string {
	result := ""
	for _, m := range a.modules {
		result += fmt.Sprintf("; module %s\n%s", moduleDisplayName(m), m.DebugString())
	}
	return result
}
