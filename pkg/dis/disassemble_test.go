package dis

import (
	"strings"
	"testing"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/inst"
)

// flatSource serves a byte slice as a bank-0 program image starting at a
// base address.
type flatSource struct {
	base int
	data []uint8
}

func (s *flatSource) Path() string { return "test.sfc" }

func (s *flatSource) Read(address addr.Address, length int) ([]uint8, error) {
	offset := address.Int() - s.base
	if offset < 0 || offset >= len(s.data) {
		return nil, asmerr.New("read outside the test image at %s", address)
	}
	end := offset + length
	if end > len(s.data) {
		end = len(s.data)
	}
	return s.data[offset:end], nil
}

func disassembleBytes(t *testing.T, base int, data []uint8, mode string) *Disassembly {
	t.Helper()
	d := NewDisassembler(&flatSource{base: base, data: data})
	result, err := d.Disassemble(Seed{Address: addr.FromInt(base), Flags: mustFlags(t, mode)})
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	return result
}

// TestStraightLine verifies decoding a simple run ending in RTS.
func TestStraightLine(t *testing.T) {
	// LDA #$01 / STA $10 / RTS
	result := disassembleBytes(t, 0x8000, []uint8{0xa9, 0x01, 0x85, 0x10, 0x60}, "m8x8")
	addresses := result.SortedAddresses()
	want := []int{0x8000, 0x8002, 0x8004}
	if len(addresses) != len(want) {
		t.Fatalf("addresses: got %v, want %v", addresses, want)
	}
	for i := range want {
		if addresses[i] != want[i] {
			t.Fatalf("addresses: got %v, want %v", addresses, want)
		}
	}
	if result.Instructions[0x8004].Instruction.Mnemonic != inst.Mrts {
		t.Error("last instruction should be rts")
	}
	// Nothing is decoded past the RTS.
	if _, ok := result.Instructions[0x8005]; ok {
		t.Error("decoding should stop at rts")
	}
}

// TestLabelGeneration verifies branch targets get labels and the branch
// argument renders as the label.
func TestLabelGeneration(t *testing.T) {
	// LDA #$01 / BCC -4 (back to the LDA) / RTS
	result := disassembleBytes(t, 0x8000, []uint8{0xa9, 0x01, 0x90, 0xfc, 0x60}, "m8x8")
	if len(result.Instructions) != 3 {
		t.Fatalf("instruction count: got %d, want 3", len(result.Instructions))
	}
	lda := result.Instructions[0x8000]
	if lda.Label == "" {
		t.Fatal("branch target should carry a label")
	}
	if !strings.HasPrefix(lda.Label, "gensym") {
		t.Errorf("label: got %q, want a gensym name", lda.Label)
	}
	branch := result.Instructions[0x8002]
	if got := branch.Instruction.Arg1.String(); got != lda.Label {
		t.Errorf("branch argument: got %q, want %q", got, lda.Label)
	}
	// The fallthrough RTS is also decoded.
	if _, ok := result.Instructions[0x8004]; !ok {
		t.Error("fallthrough rts missing")
	}
}

// TestBranchNotFollowedPastExit verifies BRA terminates the fallthrough
// path.
func TestBranchNotFollowedPastExit(t *testing.T) {
	// spin: BRA spin / RTS (unreachable)
	result := disassembleBytes(t, 0x8000, []uint8{0x80, 0xfe, 0x60}, "m8x8")
	if len(result.Instructions) != 1 {
		t.Fatalf("instruction count: got %d, want 1", len(result.Instructions))
	}
	spin := result.Instructions[0x8000]
	if spin.Label == "" {
		t.Error("self-branch should label its own instruction")
	}
}

// TestCarryBranchStates verifies the BCC/BCS complement propagation: the
// taken path knows the carry, and XCE uses it.
func TestCarryBranchStates(t *testing.T) {
	// $8000: BCC +1   -> taken path to $8003 with c=0
	// $8002: RTS      (fallthrough, c=1)
	// $8003: XCE      (c known clear: drops to native mode)
	// $8004: RTS
	result := disassembleBytes(t, 0x8000, []uint8{0x90, 0x01, 0x60, 0xfb, 0x60}, "emu")
	xce := result.Instructions[0x8003]
	if xce == nil {
		t.Fatal("branch target not decoded")
	}
	if xce.CurrentFlags.C != cpu.Off {
		t.Errorf("carry on taken path: got %v, want off", xce.CurrentFlags.C)
	}
	if xce.NextFlags.E != cpu.Off {
		t.Errorf("e after xce: got %v, want off (native)", xce.NextFlags.E)
	}
	fallthroughRts := result.Instructions[0x8002]
	if fallthroughRts.CurrentFlags.C != cpu.On {
		t.Errorf("carry on fallthrough: got %v, want on", fallthroughRts.CurrentFlags.C)
	}
}

// TestFlagMergeRedecode verifies that reaching an instruction twice with
// different flag states merges them.
func TestFlagMergeRedecode(t *testing.T) {
	// Two seeds converge on the RTS at $8001 with different carry states.
	source := &flatSource{base: 0x8000, data: []uint8{0x38, 0x60, 0x60}}
	d := NewDisassembler(source)
	m8x8 := cpu.NewStatusFlags(cpu.Off, cpu.On, cpu.On, cpu.Off)
	result, err := d.Disassemble(
		Seed{Address: addr.FromInt(0x8000), Flags: m8x8}, // SEC path: c=1 at $8001
		Seed{Address: addr.FromInt(0x8001), Flags: m8x8}, // direct: c=0
	)
	if err != nil {
		t.Fatal(err)
	}
	rts := result.Instructions[0x8001]
	if rts == nil {
		t.Fatal("rts not decoded")
	}
	if rts.CurrentFlags.C != cpu.Unknown {
		t.Errorf("merged carry: got %v, want unknown", rts.CurrentFlags.C)
	}
}

// TestJslConvention verifies the calling-convention table's effect on the
// fallthrough.
func TestJslConvention(t *testing.T) {
	// JSL $019000 then LDA — the callee's declared convention decides the
	// flag state of the fallthrough.  The callee is a single RTL.
	t.Run("yields", func(t *testing.T) {
		source := &multiSource{segments: map[int][]uint8{
			0x008000: {0x22, 0x00, 0x90, 0x01, 0xa9, 0x34, 0x12, 0x60},
			0x019000: {0x6b},
		}}
		d := NewDisassembler(source)
		d.Conventions[0x019000] = cpu.CallingConvention{
			Incoming: mustFlags(t, "m8x8"),
			Return:   cpu.YieldsConvention(mustFlags(t, "m16x16")),
		}
		result, err := d.Disassemble(Seed{Address: addr.FromInt(0x8000),
			Flags: mustFlags(t, "m8x8")})
		if err != nil {
			t.Fatal(err)
		}
		lda := result.Instructions[0x8004]
		if lda == nil {
			t.Fatal("fallthrough lda not decoded")
		}
		if lda.Instruction.Mode != inst.AImmW {
			t.Errorf("lda mode: got %s, want imm_w (yielded m16)", lda.Instruction.Mode)
		}
		// The callee was walked too, and is marked as a jump target label.
		if _, ok := result.Instructions[0x019000]; !ok {
			t.Error("callee entry not decoded")
		}
	})

	t.Run("noreturn", func(t *testing.T) {
		source := &multiSource{segments: map[int][]uint8{
			0x008000: {0x22, 0x00, 0x90, 0x01, 0xff, 0xff, 0xff, 0xff},
			0x019000: {0x6b},
		}}
		d := NewDisassembler(source)
		d.Conventions[0x019000] = cpu.CallingConvention{
			Incoming: mustFlags(t, "m8x8"),
			Return:   cpu.NoReturnConvention(),
		}
		result, err := d.Disassemble(Seed{Address: addr.FromInt(0x8000),
			Flags: mustFlags(t, "m8x8")})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := result.Instructions[0x8004]; ok {
			t.Error("noreturn call should not decode its fallthrough")
		}
	})
}

// multiSource serves disjoint segments of the address space.
type multiSource struct {
	segments map[int][]uint8
}

func (s *multiSource) Path() string { return "test.sfc" }

func (s *multiSource) Read(address addr.Address, length int) ([]uint8, error) {
	for base, data := range s.segments {
		offset := address.Int() - base
		if offset >= 0 && offset < len(data) {
			end := offset + length
			if end > len(data) {
				end = len(data)
			}
			return data[offset:end], nil
		}
	}
	return nil, asmerr.New("read outside the test image at %s", address)
}

// TestDecodeFailureOnUnknownWidth verifies the halt-on-undecidable-width
// rule.
func TestDecodeFailureOnUnknownWidth(t *testing.T) {
	source := &flatSource{base: 0x8000, data: []uint8{0xa9, 0x12, 0x60}}
	d := NewDisassembler(source)
	_, err := d.Disassemble(Seed{Address: addr.FromInt(0x8000),
		Flags: mustFlags(t, "native")})
	if err == nil {
		t.Fatal("lda immediate under unknown m should fail to decode")
	}
	if !strings.Contains(err.Error(), "`m` flag") {
		t.Errorf("error should name the m flag: %v", err)
	}
}

// TestDisassemblyRendering verifies the text output shape.
func TestDisassemblyRendering(t *testing.T) {
	result := disassembleBytes(t, 0x8000, []uint8{0xa9, 0x01, 0x90, 0xfc, 0x60}, "m8x8")
	text := result.String()
	if !strings.Contains(text, "gensym1:") {
		t.Errorf("rendering should include the label:\n%s", text)
	}
	if !strings.Contains(text, "lda #$01") {
		t.Errorf("rendering should include the lda:\n%s", text)
	}
	if !strings.Contains(text, "bcc gensym1") {
		t.Errorf("rendering should include the labeled branch:\n%s", text)
	}
}
