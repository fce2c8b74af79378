package inst

import (
	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/expr"
)

// candidate concrete modes per syntactic shape, narrowest first.  A missing
// width is marked with the sentinel below.
const noMode = AddressingModeCount

var deduceCandidates = map[SyntacticAddressingMode][3]AddressingMode{
	SAImm:  {AImmB, AImmW, noMode},
	SADir:  {ADirB, ADirW, ADirL},
	SADirX: {ADirBX, ADirWX, ADirLX},
	SADirY: {ADirBY, ADirWY, noMode},
	SAInd:  {AIndB, AIndW, noMode},
	SAIndX: {AIndBX, AIndWX, noMode},
	SAIndY: {AIndBY, noMode, noMode},
	SALng:  {ALngB, ALngW, noMode},
	SALngY: {ALngBY, noMode, noMode},
	SAStk:  {AStk, noMode, noMode},
	SAStkY: {AStkY, noMode, noMode},
	SAMov:  {AMov, noMode, noMode},
}

// typeWidthIndex maps an argument's numeric type to the narrowest candidate
// column that can hold it: 0 for bytes, 1 for words, 2 for longs.  Unknown
// maps to -1.
func typeWidthIndex(t addr.NumericType) int {
	switch t {
	case addr.Byte, addr.SignedByte:
		return 0
	case addr.Word, addr.SignedWord:
		return 1
	case addr.Long, addr.SignedLong:
		return 2
	default:
		return -1
	}
}

// DeduceMode resolves a parsed instruction's syntactic addressing shape to a
// concrete addressing mode, using the mnemonic's legal combinations, the
// argument's numeric type, and any explicit width suffix.
//
// Immediate arguments on mnemonics whose width follows the `m` or `x` status
// bit deduce to the matching flex sentinel; the sizing pass resolves them
// once the flag state is known.
func DeduceMode(m Mnemonic, s SyntacticAddressingMode, suffix Suffix,
	arg1, arg2 expr.Expression) (AddressingMode, error) {
	effective := m
	if m.IsPseudo() {
		// add and sub follow adc's addressing rules.
		effective = Madc
	}

	// No-argument shapes.  `OPR` deduces to accumulator mode when the
	// mnemonic has one (DEC), and `OPR A` requires it.
	if s == SAImp || s == SAAcc {
		if IsLegalCombination(effective, AAcc) {
			return AAcc, nil
		}
		if s == SAImp && IsLegalCombination(effective, AImp) {
			return AImp, nil
		}
		return 0, asmerr.New("instruction %s requires an argument", m)
	}

	// Branches spell their target as a bare (direct) expression.
	if s == SADir && TakesOffsetArgument(effective) {
		if TakesLongOffsetArgument(effective) {
			return ARel16, nil
		}
		return ARel8, nil
	}

	// Immediate arguments whose width follows a status bit stay flexible
	// until the flag state is known.
	if s == SAImm {
		if ImmediateUsesMBit(effective) {
			return AImmFM, nil
		}
		if ImmediateUsesXBit(effective) {
			return AImmFX, nil
		}
	}

	candidates, ok := deduceCandidates[s]
	if !ok {
		return 0, asmerr.New("can't deduce addressing mode for instruction %s", m)
	}

	first, last := 0, 2
	switch suffix {
	case SuffixB:
		first, last = 0, 0
	case SuffixW:
		first, last = 1, 1
	}

	width := -1
	if arg1 != nil {
		width = typeWidthIndex(arg1.Type())
	}

	if width >= 0 {
		// Typed argument: the narrowest legal candidate that can hold it.
		if width > first {
			first = width
		}
		for i := first; i <= last; i++ {
			if candidates[i] != noMode && IsLegalCombination(effective, candidates[i]) {
				return candidates[i], nil
			}
		}
	} else {
		// Untyped argument: prefer the widest legal candidate consistent
		// with the suffix.
		for i := last; i >= first; i-- {
			if candidates[i] != noMode && IsLegalCombination(effective, candidates[i]) {
				return candidates[i], nil
			}
		}
	}

	return 0, asmerr.New(
		"instruction %s does not support %s addressing with this argument", m, s)
}
