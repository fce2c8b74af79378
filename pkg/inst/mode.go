package inst

// AddressingMode is one of the 25 concrete 65816 addressing modes, or one of
// the two flex-immediate sentinels whose final width follows the `m` or `x`
// status bit.  Sentinels never survive to emission; they must be resolved to
// AImmB or AImmW first.
type AddressingMode uint8

const (
	AImp   AddressingMode = iota //            Implied (0 bytes)
	AAcc                         // A or ''    Accumulator (0 bytes)
	AImmB                        // #$12       Immediate fixed byte (REP/SEP/COP)
	AImmW                        // #$1234     Immediate fixed word (PEA)
	ADirB                        // $12        Direct page (1 byte)
	ADirW                        // $1234      Absolute (2 bytes)
	ADirL                        // $123456    Absolute long (3 bytes)
	ADirBX                       // $12,X      Direct page indexed with X
	ADirBY                       // $12,Y      Direct page indexed with Y
	ADirWX                       // $1234,X    Absolute indexed with X
	ADirWY                       // $1234,Y    Absolute indexed with Y
	ADirLX                       // $123456,X  Absolute long indexed with X
	AIndB                        // ($12)      Direct page indirect
	AIndW                        // ($1234)    Absolute indirect
	AIndBX                       // ($12,X)    Direct page indexed indirect with X
	AIndBY                       // ($12),Y    Direct page indirect indexed with Y
	AIndWX                       // ($1234,X)  Absolute indexed indirect with X
	ALngB                        // [$12]      Direct page indirect long
	ALngW                        // [$1234]    Absolute indirect long
	ALngBY                       // [$12],Y    Direct page indirect long indexed with Y
	AStk                         // $12,S      Stack relative
	AStkY                        // ($12,S),Y  Stack relative indirect indexed with Y
	AMov                         // #$12,#$34  Block move source, destination
	ARel8                        // label      Relative 8 (BEQ etc.)
	ARel16                       // label      Relative 16 (BRL/PER)
	AImmFM                       // #$12..     Flex immediate, width follows `m`
	AImmFX                       // #$12..     Flex immediate, width follows `x`

	AddressingModeCount // sentinel
)

var addressingModeNames = [AddressingModeCount]string{
	"imp", "acc", "imm_b", "imm_w", "dir_b", "dir_w", "dir_l",
	"dir_bx", "dir_by", "dir_wx", "dir_wy", "dir_lx",
	"ind_b", "ind_w", "ind_bx", "ind_by", "ind_wx",
	"lng_b", "lng_w", "lng_by", "stk", "stk_y", "mov",
	"rel8", "rel16", "imm_fm", "imm_fx",
}

func (a AddressingMode) String() string {
	if a >= AddressingModeCount {
		return ""
	}
	return addressingModeNames[a]
}

// IsFlexImmediate reports whether a is one of the unresolved immediate
// sentinels.
func (a AddressingMode) IsFlexImmediate() bool {
	return a == AImmFM || a == AImmFX
}

// AllAddressingModes returns every addressing mode, sentinels included.
func AllAddressingModes() []AddressingMode {
	result := make([]AddressingMode, 0, AddressingModeCount)
	for i := AddressingMode(0); i < AddressingModeCount; i++ {
		result = append(result, i)
	}
	return result
}

// InstructionLength returns the encoded size, opcode byte included, of an
// instruction with the given addressing mode.  Unresolved flex-immediate
// modes have no size yet and report 0.
func InstructionLength(a AddressingMode) int {
	switch a {
	case AImp, AAcc:
		return 1
	case AImmB, ADirB, ADirBX, ADirBY, AIndB, AIndBX, AIndBY,
		ALngB, ALngBY, AStk, AStkY, ARel8:
		return 2
	case AImmW, ADirW, ADirWX, ADirWY, AIndW, AIndWX, ALngW, AMov, ARel16:
		return 3
	case ADirL, ADirLX:
		return 4
	default:
		return 0
	}
}

// ArgumentBytes returns the operand size in bytes for the mode, or 0 for
// modes without a numeric operand.
func ArgumentBytes(a AddressingMode) int {
	length := InstructionLength(a)
	if length == 0 {
		return 0
	}
	return length - 1
}

// ArgsString renders the operand list for an addressing mode using the
// stringized arguments, in the spacing used for disassembly output.
func ArgsString(a AddressingMode, arg1, arg2 string) string {
	switch a {
	case AImp, AAcc:
		return ""
	case AImmB, AImmW, AImmFM, AImmFX:
		return " #" + arg1
	case ADirB, ADirW, ADirL:
		return " " + arg1
	case ADirBX, ADirWX, ADirLX:
		return " " + arg1 + ", X"
	case ADirBY, ADirWY:
		return " " + arg1 + ", Y"
	case AIndB, AIndW:
		return " (" + arg1 + ")"
	case AIndBX, AIndWX:
		return " (" + arg1 + ", X)"
	case AIndBY:
		return " (" + arg1 + "), Y"
	case ALngB, ALngW:
		return " [" + arg1 + "]"
	case ALngBY:
		return " [" + arg1 + "], Y"
	case AStk:
		return " " + arg1 + ", S"
	case AStkY:
		return " (" + arg1 + ", S), Y"
	case AMov:
		return " #" + arg1 + ", #" + arg2
	case ARel8, ARel16:
		return " " + arg1
	default:
		return ""
	}
}

// SyntacticAddressingMode is the coarser addressing shape recovered from
// source syntax, before argument widths and flag state narrow it to a
// concrete mode.
type SyntacticAddressingMode uint8

const (
	SAImp SyntacticAddressingMode = iota
	SAAcc
	SAImm
	SADir
	SADirX
	SADirY
	SAInd
	SAIndX
	SAIndY
	SALng
	SALngY
	SAStk
	SAStkY
	SAMov
)

var syntacticModeNames = []string{
	"imp", "acc", "imm", "dir", "dir_x", "dir_y", "ind", "ind_x", "ind_y",
	"lng", "lng_y", "stk", "stk_y", "mov",
}

func (s SyntacticAddressingMode) String() string {
	if int(s) >= len(syntacticModeNames) {
		return ""
	}
	return syntacticModeNames[s]
}
