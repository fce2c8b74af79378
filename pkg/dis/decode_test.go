package dis

import (
	"testing"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
	"github.com/oisee/asm816/pkg/inst"
)

// sinkFunc adapts a closure into an output sink.
type sinkFunc func([]uint8)

func (f sinkFunc) Write(address addr.Address, data []uint8) error {
	f(append([]uint8(nil), data...))
	return nil
}

func mustFlags(t *testing.T, name string) cpu.StatusFlags {
	t.Helper()
	flags, ok := cpu.FromName(name)
	if !ok {
		t.Fatalf("bad flag name %q", name)
	}
	return flags
}

func evalArg(t *testing.T, e expr.Expression) int {
	t.Helper()
	value, err := e.Evaluate(expr.NullLookupContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return value
}

// TestDecodeModeDependent verifies flex-immediate opcodes under known and
// unknown flag states.
func TestDecodeModeDependent(t *testing.T) {
	unknown := cpu.UnknownFlags()
	for i := 0; i < 256; i++ {
		opcode := uint8(i)
		mnemonic, mode := inst.DecodeOpcode(opcode)
		if !mode.IsFlexImmediate() {
			continue
		}

		eightBit := mustFlags(t, "m8x8")
		sixteenBit := mustFlags(t, "m16x16")

		// Not enough bytes.
		if _, err := Decode([]uint8{opcode}, eightBit); err == nil {
			t.Errorf("0x%02x: 1-byte decode should fail", opcode)
		}

		data := []uint8{opcode, 0x21, 0x43, 0x65}
		if _, err := Decode(data, unknown); err == nil {
			t.Errorf("0x%02x: decode under unknown flags should fail", opcode)
		}

		byteIns, err := Decode(data, eightBit)
		if err != nil {
			t.Errorf("0x%02x narrow: %v", opcode, err)
			continue
		}
		if byteIns.Mnemonic != mnemonic || byteIns.Mode != inst.AImmB {
			t.Errorf("0x%02x narrow: got %s %s", opcode, byteIns.Mnemonic, byteIns.Mode)
		}
		if byteIns.SerializedSize() != 2 || evalArg(t, byteIns.Arg1) != 0x21 {
			t.Errorf("0x%02x narrow: size %d arg %x",
				opcode, byteIns.SerializedSize(), evalArg(t, byteIns.Arg1))
		}

		wordIns, err := Decode(data, sixteenBit)
		if err != nil {
			t.Errorf("0x%02x wide: %v", opcode, err)
			continue
		}
		if wordIns.Mode != inst.AImmW || wordIns.SerializedSize() != 3 ||
			evalArg(t, wordIns.Arg1) != 0x4321 {
			t.Errorf("0x%02x wide: mode %s size %d", opcode, wordIns.Mode,
				wordIns.SerializedSize())
		}
	}
}

// TestDecodeModeIndependent verifies argument extraction for every
// fixed-size opcode.
func TestDecodeModeIndependent(t *testing.T) {
	flags := cpu.UnknownFlags()
	for i := 0; i < 256; i++ {
		opcode := uint8(i)
		mnemonic, mode := inst.DecodeOpcode(opcode)
		if mode.IsFlexImmediate() {
			continue
		}
		data := []uint8{opcode, 0x21, 0x43, 0x65, 0x87}
		length := inst.InstructionLength(mode)

		// Too few bytes fails; the exact size succeeds.
		if _, err := Decode(data[:length-1], flags); err == nil && length > 1 {
			t.Errorf("0x%02x: %d-byte decode should fail", opcode, length-1)
		}
		decoded, err := Decode(data[:length], flags)
		if err != nil {
			t.Errorf("0x%02x: %v", opcode, err)
			continue
		}
		if decoded.Mnemonic != mnemonic || decoded.Mode != mode {
			t.Errorf("0x%02x: got %s %s, want %s %s",
				opcode, decoded.Mnemonic, decoded.Mode, mnemonic, mode)
		}
		if decoded.SerializedSize() != length {
			t.Errorf("0x%02x: size %d, want %d", opcode, decoded.SerializedSize(), length)
		}

		switch mode {
		case inst.AImp, inst.AAcc:
			if decoded.Arg1 != nil {
				t.Errorf("0x%02x: unexpected argument", opcode)
			}
		case inst.ADirL, inst.ADirLX:
			if evalArg(t, decoded.Arg1) != 0x654321 {
				t.Errorf("0x%02x: long arg %x", opcode, evalArg(t, decoded.Arg1))
			}
		case inst.AMov:
			// Destination is encoded first; source order is restored.
			if evalArg(t, decoded.Arg1) != 0x43 || evalArg(t, decoded.Arg2) != 0x21 {
				t.Errorf("0x%02x: mov args %x, %x", opcode,
					evalArg(t, decoded.Arg1), evalArg(t, decoded.Arg2))
			}
		case inst.ARel8:
			if evalArg(t, decoded.Arg1) != 0x21 {
				t.Errorf("0x%02x: rel8 arg %x", opcode, evalArg(t, decoded.Arg1))
			}
		case inst.ARel16:
			if evalArg(t, decoded.Arg1) != 0x4321 {
				t.Errorf("0x%02x: rel16 arg %x", opcode, evalArg(t, decoded.Arg1))
			}
		default:
			want := 0x21
			if inst.ArgumentBytes(mode) == 2 {
				want = 0x4321
			}
			if evalArg(t, decoded.Arg1) != want {
				t.Errorf("0x%02x: arg %x, want %x", opcode, evalArg(t, decoded.Arg1), want)
			}
		}
	}
}

// TestDecodeNegativeOffsets verifies sign extension of relative arguments.
func TestDecodeNegativeOffsets(t *testing.T) {
	flags := mustFlags(t, "m8x8")
	decoded, err := Decode([]uint8{0x80, 0xfe}, flags) // BRA -2
	if err != nil {
		t.Fatal(err)
	}
	if got := evalArg(t, decoded.Arg1); got != -2 {
		t.Errorf("bra offset: got %d, want -2", got)
	}
	decoded, err = Decode([]uint8{0x82, 0x00, 0x80}, flags) // BRL -32768
	if err != nil {
		t.Fatal(err)
	}
	if got := evalArg(t, decoded.Arg1); got != -32768 {
		t.Errorf("brl offset: got %d, want -32768", got)
	}
}

// TestAssembleDecodeRoundTrip verifies that every in-range branch offset
// survives an assemble/decode cycle.
func TestAssembleDecodeRoundTrip(t *testing.T) {
	for offset := -128; offset <= 127; offset++ {
		// sink captures the encoded instruction.
		var captured []uint8
		sink := sinkFunc(func(data []uint8) { captured = data })

		origin := 0x008000
		target := origin + 2 + offset
		bra := &inst.Instruction{
			Mnemonic: inst.Mbra,
			Mode:     inst.ARel8,
			Arg1:     expr.NewLiteral(target, addr.Word),
		}
		if err := bra.Assemble(addr.FromInt(origin), expr.NullLookupContext{}, sink); err != nil {
			t.Fatalf("offset %+d: %v", offset, err)
		}
		decoded, err := Decode(captured, mustFlags(t, "m8x8"))
		if err != nil {
			t.Fatalf("offset %+d: decode: %v", offset, err)
		}
		if got := evalArg(t, decoded.Arg1); got != offset {
			t.Errorf("offset %+d: decoded %+d", offset, got)
		}
	}
}
