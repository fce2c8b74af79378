package dis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
	"github.com/oisee/asm816/pkg/inst"
)

// DisassembledInstruction is one decoded instruction with the labels and
// flag states the walk attached to it.
type DisassembledInstruction struct {
	Label       string
	Instruction *inst.Instruction
	IsEntry     bool
	// CurrentFlags is the merged flag state on entry to this instruction.
	CurrentFlags cpu.StatusFlags
	// NextFlags is the state after executing it (the fallthrough state).
	NextFlags cpu.StatusFlags
}

// Disassembly maps instruction addresses to their decoded form.
type Disassembly struct {
	Instructions map[int]*DisassembledInstruction
}

// SortedAddresses returns the decoded addresses in increasing order.
func (d *Disassembly) SortedAddresses() []int {
	result := make([]int, 0, len(d.Instructions))
	for address := range d.Instructions {
		result = append(result, address)
	}
	sort.Ints(result)
	return result
}

// String renders the disassembly as source text.
func (d *Disassembly) String() string {
	var sb strings.Builder
	for _, address := range d.SortedAddresses() {
		di := d.Instructions[address]
		if di.Label != "" {
			sb.WriteString(di.Label)
			sb.WriteString(":\n")
		}
		fmt.Fprintf(&sb, "    %-24s ; %s  %s\n", di.Instruction.String(),
			addr.FromInt(address), di.CurrentFlags)
	}
	return sb.String()
}

// Seed is one starting point for the walk: an address and the flag state
// execution arrives with.
type Seed struct {
	Address addr.Address
	Flags   cpu.StatusFlags
}

// Disassembler reconstructs instructions and control flow from a byte
// source.  It follows statically evident branch targets only, and honors a
// caller-supplied table of calling conventions for subroutine calls.
type Disassembler struct {
	source inst.InputSource

	// Conventions maps subroutine addresses to their declared calling
	// conventions, used to pick fallthrough states after JSR/JSL.
	Conventions map[int]cpu.CallingConvention

	gensymCount int
	labelNames  map[int]string
}

// NewDisassembler builds a disassembler over the given byte source.
func NewDisassembler(source inst.InputSource) *Disassembler {
	return &Disassembler{
		source:      source,
		Conventions: make(map[int]cpu.CallingConvention),
		labelNames:  make(map[int]string),
	}
}

// gensym allocates a fresh label name.
func (d *Disassembler) gensym() string {
	d.gensymCount++
	return fmt.Sprintf("gensym%d", d.gensymCount)
}

// labelFor returns the label for a branch target, creating one on first
// use.
func (d *Disassembler) labelFor(address int) string {
	if name, ok := d.labelNames[address]; ok {
		return name
	}
	name := d.gensym()
	d.labelNames[address] = name
	return name
}

// Disassemble runs the work-list from the given seeds.
//
// The list is keyed by address and serviced lowest-address-first, which
// keeps the decoded map growing append-only.  Re-reaching a decoded address
// with new flag information merges the states and re-decodes when the merge
// changed anything.
func (d *Disassembler) Disassemble(seeds ...Seed) (*Disassembly, error) {
	result := &Disassembly{Instructions: make(map[int]*DisassembledInstruction)}

	// Pending addresses with the flag state to consider them under.
	workList := make(map[int]cpu.StatusFlags)
	addWork := func(address addr.Address, flags cpu.StatusFlags) {
		key := address.Int()
		if existing, ok := workList[key]; ok {
			workList[key] = existing.Merge(flags)
		} else {
			workList[key] = flags
		}
	}

	entries := make(map[int]bool, len(seeds))
	for _, seed := range seeds {
		addWork(seed.Address, seed.Flags)
		entries[seed.Address.Int()] = true
	}

	for len(workList) > 0 {
		// Service the lowest address not yet considered.
		pc := -1
		for address := range workList {
			if pc < 0 || address < pc {
				pc = address
			}
		}
		flags := workList[pc]
		delete(workList, pc)

		if existing, ok := result.Instructions[pc]; ok {
			// Already decoded: merge the incoming states, and re-decode only
			// if the merge tells us something new.
			merged := existing.CurrentFlags.Merge(flags)
			if merged == existing.CurrentFlags {
				continue
			}
			flags = merged
		}

		address := addr.FromInt(pc)
		data, err := d.source.Read(address, 4)
		if err != nil {
			return nil, asmerr.Decorate(err, address.Location())
		}
		instruction, err := Decode(data, flags)
		if err != nil {
			return nil, asmerr.Decorate(err, address.Location())
		}

		size := instruction.SerializedSize()
		nextPC := address.AddWrapped(size)
		nextFlags, err := instruction.Execute(flags)
		if err != nil {
			return nil, asmerr.Decorate(err, address.Location())
		}

		// A relative branch needs a label, and its target joins the walk
		// with the branch-taken flag state.
		if instruction.Mode == inst.ARel8 || instruction.Mode == inst.ARel16 {
			offset, _ := instruction.Arg1.Evaluate(expr.NullLookupContext{})
			target := nextPC.AddWrapped(offset)
			instruction.Arg1 = expr.ApplyLabel(instruction.Arg1, d.labelFor(target.Int()))
			branchFlags, err := instruction.ExecuteBranch(flags)
			if err != nil {
				return nil, asmerr.Decorate(err, address.Location())
			}
			addWork(target, branchFlags)
		}

		// Far jumps and calls with literal targets also join the walk.
		farTarget, hasFarTarget := instruction.FarBranchTarget(address)
		if hasFarTarget {
			addWork(farTarget, nextFlags)
		}

		// Calls honor the callee's declared convention for the fallthrough.
		enqueueFallthrough := !instruction.IsExitInstruction()
		if hasFarTarget &&
			(instruction.Mnemonic == inst.Mjsr || instruction.Mnemonic == inst.Mjsl) {
			if convention, ok := d.Conventions[farTarget.Int()]; ok {
				if convention.Return.IsExitCall() {
					enqueueFallthrough = false
				} else if yield, ok := convention.Return.YieldState(); ok {
					nextFlags = yield
				}
			}
		}
		if hasFarTarget {
			instruction.Arg1 = expr.ApplyLabel(instruction.Arg1, d.labelFor(farTarget.Int()))
		}

		result.Instructions[pc] = &DisassembledInstruction{
			Instruction:  instruction,
			IsEntry:      entries[pc],
			CurrentFlags: flags,
			NextFlags:    nextFlags,
		}
		glog.V(2).Infof("decoded %s at %s", instruction, address)

		if enqueueFallthrough {
			addWork(nextPC, nextFlags)
		}
	}

	// Attach the generated labels to their instructions.
	for address, name := range d.labelNames {
		if di, ok := result.Instructions[address]; ok {
			di.Label = name
		}
	}
	glog.V(1).Infof("disassembled %d instructions", len(result.Instructions))
	return result, nil
}
