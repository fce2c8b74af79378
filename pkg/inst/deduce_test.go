package inst

import (
	"testing"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/expr"
)

// TestSimpleDeduceMode checks, for every mnemonic and syntactic shape, that
// deduction agrees with table legality: a typed argument deduces exactly the
// addressing mode of its width when legal, and fails when no legal mode can
// hold it.
func TestSimpleDeduceMode(t *testing.T) {
	cases := []struct {
		sam   SyntacticAddressingMode
		modes [3]AddressingMode // byte, word, long; noMode where unsupported
	}{
		{SAImm, [3]AddressingMode{AImmB, AImmW, noMode}},
		{SADir, [3]AddressingMode{ADirB, ADirW, ADirL}},
		{SADirX, [3]AddressingMode{ADirBX, ADirWX, ADirLX}},
		{SADirY, [3]AddressingMode{ADirBY, ADirWY, noMode}},
		{SAInd, [3]AddressingMode{AIndB, AIndW, noMode}},
		{SAIndX, [3]AddressingMode{AIndBX, AIndWX, noMode}},
		{SAIndY, [3]AddressingMode{AIndBY, noMode, noMode}},
		{SALng, [3]AddressingMode{ALngB, ALngW, noMode}},
		{SALngY, [3]AddressingMode{ALngBY, noMode, noMode}},
		{SAStk, [3]AddressingMode{AStk, noMode, noMode}},
		{SAStkY, [3]AddressingMode{AStkY, noMode, noMode}},
	}
	numericTypes := [3]addr.NumericType{addr.Byte, addr.Word, addr.Long}

	for _, m := range AllMnemonics() {
		if m.IsPseudo() {
			continue
		}
		for _, tc := range cases {
			if tc.sam == SAImm && FlagControllingInstructionSize(m) != NotVariable {
				// Flex-immediate deduction is covered separately below.
				continue
			}
			if tc.sam == SADir && TakesOffsetArgument(m) {
				// Relative-argument deduction is covered separately below.
				continue
			}
			for i := 0; i < 3; i++ {
				arg := expr.NewLiteral(0, numericTypes[i])
				want := tc.modes[i]
				deduced, err := DeduceMode(m, tc.sam, SuffixNone, arg, nil)
				if err == nil {
					// The deduced mode can be wider than the argument when
					// the exact width isn't legal for this mnemonic.
					if !IsLegalCombination(m, deduced) {
						t.Errorf("%s %s %v: deduced illegal mode %s",
							m, tc.sam, numericTypes[i], deduced)
					}
					if want != noMode && IsLegalCombination(m, want) && deduced != want {
						t.Errorf("%s %s %v: deduced %s, want %s",
							m, tc.sam, numericTypes[i], deduced, want)
					}
				} else if want != noMode && IsLegalCombination(m, want) {
					t.Errorf("%s %s %v: deduction failed but %s is legal",
						m, tc.sam, numericTypes[i], want)
				}
			}
		}
	}
}

// TestDeduceNoArgMode verifies the implied / accumulator special case: `DEC`
// upgrades to accumulator mode, `RTS A` is rejected.
func TestDeduceNoArgMode(t *testing.T) {
	for _, m := range AllMnemonics() {
		if m.IsPseudo() {
			continue
		}
		deducedAcc, errAcc := DeduceMode(m, SAAcc, SuffixNone, nil, nil)
		deducedImp, errImp := DeduceMode(m, SAImp, SuffixNone, nil, nil)
		switch {
		case IsLegalCombination(m, AAcc):
			// `DEC A` and bare `DEC` both mean accumulator mode.
			if errAcc != nil || deducedAcc != AAcc {
				t.Errorf("%s A: got %s, %v", m, deducedAcc, errAcc)
			}
			if errImp != nil || deducedImp != AAcc {
				t.Errorf("bare %s: got %s, %v", m, deducedImp, errImp)
			}
		case IsLegalCombination(m, AImp):
			// `RTS` parses, `RTS A` does not.
			if errAcc == nil {
				t.Errorf("%s A should fail", m)
			}
			if errImp != nil || deducedImp != AImp {
				t.Errorf("bare %s: got %s, %v", m, deducedImp, errImp)
			}
		default:
			if errAcc == nil || errImp == nil {
				t.Errorf("%s should reject both bare and A forms", m)
			}
		}
	}
}

// TestDeduceImmediateMode verifies that flag-dependent immediates deduce to
// the flex sentinels, whatever the argument width says.
func TestDeduceImmediateMode(t *testing.T) {
	arg := expr.NewLiteral(0, addr.Word)
	for _, m := range AllMnemonics() {
		if ImmediateUsesMBit(m) {
			deduced, err := DeduceMode(m, SAImm, SuffixNone, arg, nil)
			if err != nil || deduced != AImmFM {
				t.Errorf("%s #: got %s, %v, want imm_fm", m, deduced, err)
			}
		}
		if ImmediateUsesXBit(m) {
			deduced, err := DeduceMode(m, SAImm, SuffixNone, arg, nil)
			if err != nil || deduced != AImmFX {
				t.Errorf("%s #: got %s, %v, want imm_fx", m, deduced, err)
			}
		}
	}
}

// TestDeduceRelative verifies that branch targets spelled as bare
// expressions become relative modes.
func TestDeduceRelative(t *testing.T) {
	arg := expr.NewLiteral(0x8000, addr.Word)
	if deduced, err := DeduceMode(Mbra, SADir, SuffixNone, arg, nil); err != nil || deduced != ARel8 {
		t.Errorf("bra: got %v, %v", deduced, err)
	}
	if deduced, err := DeduceMode(Mbrl, SADir, SuffixNone, arg, nil); err != nil || deduced != ARel16 {
		t.Errorf("brl: got %v, %v", deduced, err)
	}
	if deduced, err := DeduceMode(Mper, SADir, SuffixNone, arg, nil); err != nil || deduced != ARel16 {
		t.Errorf("per: got %v, %v", deduced, err)
	}
	// JMP has real direct modes, not relative ones.
	if deduced, err := DeduceMode(Mjmp, SADir, SuffixNone, arg, nil); err != nil || deduced != ADirW {
		t.Errorf("jmp: got %v, %v", deduced, err)
	}
}

// TestDeduceSuffix verifies the width-forcing suffixes.
func TestDeduceSuffix(t *testing.T) {
	untyped := expr.NewIdentifier(expr.FullIdentifier{Name: "target"}, addr.Unknown)

	// An untyped argument prefers the widest legal mode.
	if deduced, err := DeduceMode(Mlda, SADir, SuffixNone, untyped, nil); err != nil || deduced != ADirL {
		t.Errorf("untyped lda: got %v, %v, want dir_l", deduced, err)
	}
	// .b and .w narrow the choice.
	if deduced, err := DeduceMode(Mlda, SADir, SuffixB, untyped, nil); err != nil || deduced != ADirB {
		t.Errorf("lda.b: got %v, %v", deduced, err)
	}
	if deduced, err := DeduceMode(Mlda, SADir, SuffixW, untyped, nil); err != nil || deduced != ADirW {
		t.Errorf("lda.w: got %v, %v", deduced, err)
	}
	// An oversized argument under a narrowing suffix fails.
	wordArg := expr.NewLiteral(0x1234, addr.Word)
	if _, err := DeduceMode(Mlda, SADir, SuffixB, wordArg, nil); err == nil {
		t.Error("lda.b with a word argument should fail")
	}
}

// TestDeducePseudoMnemonics verifies add/sub follow adc's rules.
func TestDeducePseudoMnemonics(t *testing.T) {
	arg := expr.NewLiteral(0x12, addr.Byte)
	deduced, err := DeduceMode(PMadd, SAImm, SuffixNone, arg, nil)
	if err != nil || deduced != AImmFM {
		t.Errorf("add #: got %v, %v, want imm_fm", deduced, err)
	}
	deduced, err = DeduceMode(PMsub, SADir, SuffixNone, arg, nil)
	if err != nil || deduced != ADirB {
		t.Errorf("sub dir: got %v, %v, want dir_b", deduced, err)
	}
}
