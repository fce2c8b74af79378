package inst

import (
	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
)

// Instruction is one canonical machine instruction: mnemonic, resolved or
// flex addressing mode, argument expressions, and an optional return
// convention for subroutine calls.
type Instruction struct {
	Mnemonic Mnemonic
	Suffix   Suffix
	Mode     AddressingMode
	Arg1     expr.Expression
	Arg2     expr.Expression
	Return   cpu.ReturnConvention
	Location asmerr.Location
}

func (i *Instruction) String() string {
	arg1, arg2 := "", ""
	if i.Arg1 != nil {
		arg1 = i.Arg1.String()
	}
	if i.Arg2 != nil {
		arg2 = i.Arg2.String()
	}
	return i.Mnemonic.String() + i.Suffix.String() +
		ArgsString(i.Mode, arg1, arg2) + i.Return.SuffixString()
}

// Loc returns the instruction's source location.
func (i *Instruction) Loc() asmerr.Location { return i.Location }

// effectiveMnemonic maps the pseudo-mnemonics onto the real instruction they
// wrap for legality checks.
func (i *Instruction) effectiveMnemonic() Mnemonic {
	if i.Mnemonic.IsPseudo() {
		return Madc
	}
	return i.Mnemonic
}

// CheckConsistency verifies that the mnemonic/mode pair is legal and that
// any immediate operand width agrees with the given flag state.
func (i *Instruction) CheckConsistency(flags cpu.StatusFlags) error {
	effective := i.effectiveMnemonic()

	if !IsLegalCombination(effective, i.Mode) {
		return asmerr.New(
			"logic error: instruction %s with addressing mode %s is inconsistent",
			i.Mnemonic, i.Mode)
	}

	switch i.Mode {
	case AImmFM:
		// Only legal when the `m` bit is known.
		if !flags.M.Known() {
			return asmerr.New(
				"instruction %s with immediate argument depends on `m` flag state, "+
					"which is unknown here", i.Mnemonic)
		}
	case AImmFX:
		if !flags.X.Known() {
			return asmerr.New(
				"instruction %s with immediate argument depends on `x` flag state, "+
					"which is unknown here", i.Mnemonic)
		}
	case AImmB, AImmW:
		if i.Suffix != SuffixNone {
			// An explicit width suffix is the programmer's assertion; it is
			// exempt from the flag check.
			return nil
		}
		var actual cpu.BitState
		var targetFlag string
		if ImmediateUsesMBit(i.Mnemonic) {
			targetFlag = "m"
			actual = flags.M
		} else if ImmediateUsesXBit(i.Mnemonic) {
			targetFlag = "x"
			actual = flags.X
		} else {
			// Fixed-width immediate (REP, SEP, PEA, ...): nothing to check.
			return nil
		}
		needed := cpu.Off
		if i.Mode == AImmB {
			needed = cpu.On
		}
		if !actual.Known() {
			return asmerr.New(
				"instruction %s with immediate argument depends on `%s` flag state, "+
					"which is unknown here", i.Mnemonic, targetFlag)
		}
		if actual == cpu.On && needed == cpu.Off {
			return asmerr.New(
				"instruction %s has 16-bit immediate argument, but `%s` status flag "+
					"is on here (so an 8-bit argument is required)",
				i.Mnemonic, targetFlag)
		}
		if actual == cpu.Off && needed == cpu.On {
			return asmerr.New(
				"instruction %s has 8-bit immediate argument, but `%s` status flag "+
					"is off here (so a 16-bit argument is required)",
				i.Mnemonic, targetFlag)
		}
	}
	return nil
}

// FixAddressingMode rewrites a flex-immediate mode to its concrete width
// using the governing flag, which must be known.
func (i *Instruction) FixAddressingMode(flags cpu.StatusFlags) error {
	var bs cpu.BitState
	var targetFlag string
	switch i.Mode {
	case AImmFM:
		targetFlag = "m"
		bs = flags.M
	case AImmFX:
		targetFlag = "x"
		bs = flags.X
	default:
		return nil // nothing to fix
	}

	switch bs {
	case cpu.On:
		i.Mode = AImmB
	case cpu.Off:
		i.Mode = AImmW
	default:
		return asmerr.New(
			"instruction %s with immediate argument depends on `%s` flag state, "+
				"which is unknown here", i.Mnemonic, targetFlag)
	}

	// The resolved width must agree with the argument's declared width and
	// any explicit suffix.
	if i.Mode == AImmB {
		wide := i.Suffix == SuffixW
		if i.Arg1 != nil {
			if w := typeWidthIndex(i.Arg1.Type()); w >= 1 {
				wide = true
			}
		}
		if wide {
			return asmerr.New(
				"instruction %s has 16-bit immediate argument, but `%s` status flag "+
					"is on here (so an 8-bit argument is required)",
				i.Mnemonic, targetFlag)
		}
	} else if i.Suffix == SuffixB {
		return asmerr.New(
			"instruction %s has 8-bit immediate argument, but `%s` status flag "+
				"is off here (so a 16-bit argument is required)",
			i.Mnemonic, targetFlag)
	}
	return nil
}

// Execute computes the flag state after this instruction runs, for the
// fallthrough path.
func (i *Instruction) Execute(flagsIn cpu.StatusFlags) (cpu.StatusFlags, error) {
	if err := i.CheckConsistency(flagsIn); err != nil {
		return cpu.StatusFlags{}, err
	}

	// A call with a `yields` convention returns in the promised state.
	if yield, ok := i.Return.YieldState(); ok {
		return yield, nil
	}

	flags := flagsIn
	m := i.Mnemonic

	switch m {
	case Msec, Mbcc:
		// SEC sets the carry.  Falling through a BCC means the branch was
		// not taken, so the carry must have been set.
		flags.SetC(cpu.On)
		return flags, nil
	case Mclc, Mbcs:
		flags.SetC(cpu.Off)
		return flags, nil
	case Mrep, Msep:
		target := cpu.On
		if m == Mrep {
			target = cpu.Off
		}
		arg, err := i.Arg1.Evaluate(expr.NullLookupContext{})
		if err != nil {
			// The argument isn't a compile-time constant here (a value from
			// another module, say).  Each affected bit either becomes
			// `target` or stays put, so bits already at the target value
			// survive and the rest become unknown.
			if flags.C != target {
				flags.SetC(cpu.Unknown)
			}
			if flags.X != target {
				flags.SetX(cpu.Unknown)
			}
			if flags.M != target {
				flags.SetM(cpu.Unknown)
			}
			return flags, nil
		}
		if arg&0x01 != 0 {
			flags.SetC(target)
		}
		if arg&0x10 != 0 {
			flags.SetX(target)
		}
		if arg&0x20 != 0 {
			flags.SetM(target)
		}
		return flags, nil
	case Mphp:
		flags.PushFlags()
		return flags, nil
	case Mplp:
		flags.PullFlags()
		return flags, nil
	case Mxce:
		flags.ExchangeCE()
		return flags, nil
	case Madc, Msbc, PMadd, PMsub, Mcmp, Mcpx, Mcpy, Masl, Mlsr, Mrol, Mror:
		// Carry-consuming and carry-producing arithmetic: the carry is
		// unknowable afterward.
		flags.SetC(cpu.Unknown)
		return flags, nil
	case Mjmp, Mjsl, Mjsr, Mbrk, Mcop:
		// Subroutine and interrupt calls with no attached convention are
		// assumed to trash the carry.  BRK and COP get the same treatment
		// as JSR.
		flags.SetC(cpu.Unknown)
		return flags, nil
	}

	// Everything else leaves the tracked flags alone.
	return flags, nil
}

// ExecuteBranch computes the flag state on the branch-taken path: the
// complement of Execute's fallthrough reasoning for the carry branches.
func (i *Instruction) ExecuteBranch(flagsIn cpu.StatusFlags) (cpu.StatusFlags, error) {
	flags, err := i.Execute(flagsIn)
	if err != nil {
		return cpu.StatusFlags{}, err
	}
	switch i.Mnemonic {
	case Mbcc:
		flags.SetC(cpu.Off)
	case Mbcs:
		flags.SetC(cpu.On)
	}
	return flags, nil
}

// ExecuteState advances a full execution state through this instruction:
// flag effects plus the symbolic stack and register tracking used for
// calling-convention checks.
func (i *Instruction) ExecuteState(state *cpu.ExecutionState) error {
	switch i.Mnemonic {
	case Mphp:
		state.PushFlags()
		return nil
	case Mplp:
		state.PullFlags()
		return nil
	case Mpha:
		state.PushAccumulator()
	case Mphx:
		state.PushXRegister()
	case Mphy:
		state.PushYRegister()
	case Mphb:
		state.PushDataBank()
	case Mpla:
		state.PullAccumulator()
	case Mplx:
		state.PullXRegister()
	case Mply:
		state.PullYRegister()
	case Mplb:
		state.PullDataBank()
	case Mlda, Mldx, Mldy:
		reg := loadedRegister(i)
		switch i.Mnemonic {
		case Mlda:
			state.A = reg
		case Mldx:
			state.X = reg
		default:
			state.Y = reg
		}
	case Minx:
		state.X.Add(1, indexMask(state.FlagState))
	case Mdex:
		state.X.Add(-1, indexMask(state.FlagState))
	case Miny:
		state.Y.Add(1, indexMask(state.FlagState))
	case Mdey:
		state.Y.Add(-1, indexMask(state.FlagState))
	case Mtax, Mtsx, Mtyx:
		state.X = cpu.RegisterValue{}
	case Mtay, Mtxy:
		state.Y = cpu.RegisterValue{}
	case Mtxa, Mtya, Mtdc, Mtsc, Mxba, Madc, Msbc, PMadd, PMsub,
		Mand, Mora, Meor, Masl, Mlsr, Mrol, Mror, Minc, Mdec:
		state.WipeAccumulator()
	}

	flags, err := i.Execute(state.FlagState)
	if err != nil {
		return err
	}
	state.FlagState = flags
	return nil
}

// loadedRegister returns the register state after an LDA/LDX/LDY: known for
// constant immediates, unknown otherwise.
func loadedRegister(i *Instruction) cpu.RegisterValue {
	if i.Mode == AImmB || i.Mode == AImmW {
		if value, err := i.Arg1.Evaluate(expr.NullLookupContext{}); err == nil {
			return cpu.KnownRegister(uint16(value))
		}
	}
	return cpu.RegisterValue{}
}

func indexMask(flags cpu.StatusFlags) int {
	if flags.X == cpu.On {
		return 0xff
	}
	return 0xffff
}

// SerializedSize returns the encoded instruction size in bytes.  The
// pseudo-mnemonics cost one extra byte for their CLC/SEC prefix.
func (i *Instruction) SerializedSize() int {
	overhead := 0
	if i.Mnemonic.IsPseudo() {
		overhead = 1
	}
	return InstructionLength(i.Mode) + overhead
}

// IsExitInstruction reports whether control never continues to the next
// line: JMP, BRA, returns, STP, and noreturn calls.  BRL is not counted.
func (i *Instruction) IsExitInstruction() bool {
	switch i.Mnemonic {
	case Mjmp, Mrtl, Mrts, Mrti, Mstp, Mbra:
		return true
	}
	return i.Return.IsExitCall()
}

// Assemble encodes this instruction at the given address and hands the bytes
// to the sink.  The addressing mode must already be concrete.
func (i *Instruction) Assemble(address addr.Address, ctx expr.LookupContext,
	sink OutputSink) error {
	var output []uint8

	trueMnemonic := i.Mnemonic
	switch i.Mnemonic {
	case PMadd:
		// CLC before the real ADC.
		output = append(output, 0x18)
		trueMnemonic = Madc
	case PMsub:
		// SEC before the real SBC.
		output = append(output, 0x38)
		trueMnemonic = Msbc
	}

	if i.Mode.IsFlexImmediate() {
		return asmerr.New("logic error: size of immediate argument not known")
	}

	opcode, ok := EncodeOpcode(trueMnemonic, i.Mode)
	if !ok {
		return asmerr.New("logic error: illegal mnemonic / addressing mode pair")
	}
	output = append(output, opcode)

	switch i.Mode {
	case AImp, AAcc:
		// no argument bytes

	case AImmB, ADirB, ADirBX, ADirBY, AIndB, AIndBX, AIndBY, ALngB, ALngBY,
		AStk, AStkY:
		value, err := i.Arg1.Evaluate(ctx)
		if err != nil {
			return err
		}
		output = append(output, uint8(value))

	case AImmW, ADirW, ADirWX, ADirWY, AIndW, AIndWX, ALngW:
		value, err := i.Arg1.Evaluate(ctx)
		if err != nil {
			return err
		}
		output = append(output, uint8(value), uint8(value>>8))

	case ADirL, ADirLX:
		value, err := i.Arg1.Evaluate(ctx)
		if err != nil {
			return err
		}
		output = append(output, uint8(value), uint8(value>>8), uint8(value>>16))

	case AMov:
		src, err := i.Arg1.Evaluate(ctx)
		if err != nil {
			return err
		}
		dst, err := i.Arg2.Evaluate(ctx)
		if err != nil {
			return err
		}
		// MVN/MVP encode destination bank before source bank, the reverse
		// of the source text order.
		output = append(output, uint8(dst), uint8(src))

	case ARel8:
		offset, err := i.relativeOffset(address, ctx)
		if err != nil {
			return err
		}
		if offset > 127 || offset < -128 {
			return asmerr.New("Relative branch too far")
		}
		output = append(output, uint8(offset))

	case ARel16:
		offset, err := i.relativeOffset(address, ctx)
		if err != nil {
			return err
		}
		output = append(output, uint8(offset), uint8(offset>>8))

	default:
		return asmerr.New("logic error: addressing mode %s not handled in Assemble", i.Mode)
	}

	return sink.Write(address, output)
}

// relativeOffset computes the branch displacement from the end of this
// instruction to the target, with same-bank wrapping.
func (i *Instruction) relativeOffset(address addr.Address, ctx expr.LookupContext) (int, error) {
	target, err := i.Arg1.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	branchBase := address.AddWrapped(i.SerializedSize())
	offset, err := addr.FromInt(target).SubtractWrapped(branchBase)
	if err != nil {
		return 0, asmerr.New("Relative branch too far")
	}
	return offset, nil
}

// FarBranchTarget returns the statically known destination of a jump or
// call, when one exists.  Word-mode jumps stay within the source bank.
func (i *Instruction) FarBranchTarget(source addr.Address) (addr.Address, bool) {
	if i.Mode == ADirL && (i.Mnemonic == Mjmp || i.Mnemonic == Mjsl) {
		target, err := i.Arg1.Evaluate(expr.NullLookupContext{})
		if err != nil {
			return addr.Address{}, false
		}
		return addr.FromInt(target), true
	}
	if i.Mode == ADirW && (i.Mnemonic == Mjmp || i.Mnemonic == Mjsr) {
		target, err := i.Arg1.Evaluate(expr.NullLookupContext{})
		if err != nil {
			return addr.Address{}, false
		}
		return addr.FromBank(uint8(source.Bank()), uint16(target)), true
	}
	return addr.Address{}, false
}
