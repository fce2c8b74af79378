// Package dis decodes 65816 byte streams back into instructions, and
// reconstructs control flow with a flag-propagating work-list.
package dis

import (
	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
	"github.com/oisee/asm816/pkg/inst"
)

// Decode reads one instruction from the front of bytes.
//
// The flag state decides the width of flex-immediate operands; decoding
// fails if the governing bit is unknown, or if too few bytes remain.
func Decode(bytes []uint8, flags cpu.StatusFlags) (*inst.Instruction, error) {
	if len(bytes) == 0 {
		return nil, asmerr.New("no bytes to decode")
	}
	opcode := bytes[0]
	bytes = bytes[1:]

	mnemonic, mode := inst.DecodeOpcode(opcode)
	decoded := &inst.Instruction{Mnemonic: mnemonic, Mode: mode}

	// Settle the sentinel addressing modes.
	if mode.IsFlexImmediate() {
		narrow := flags.M
		flagName := "m"
		if mode == inst.AImmFX {
			narrow = flags.X
			flagName = "x"
		}
		switch narrow {
		case cpu.On:
			decoded.Mode = inst.AImmB
		case cpu.Off:
			decoded.Mode = inst.AImmW
		default:
			return nil, asmerr.New(
				"can't decode %s: immediate width depends on `%s` flag state, "+
					"which is unknown here", mnemonic, flagName)
		}
	}

	argBytes := inst.ArgumentBytes(decoded.Mode)
	if len(bytes) < argBytes {
		return nil, asmerr.New("not enough bytes to decode %s", mnemonic)
	}

	switch decoded.Mode {
	case inst.AImp, inst.AAcc:
		// no argument

	case inst.AImmB, inst.ADirB, inst.ADirBX, inst.ADirBY, inst.AIndB,
		inst.AIndBX, inst.AIndBY, inst.ALngB, inst.ALngBY, inst.AStk,
		inst.AStkY:
		decoded.Arg1 = expr.NewLiteral(int(bytes[0]), addr.Byte)

	case inst.AImmW, inst.ADirW, inst.ADirWX, inst.ADirWY, inst.AIndW,
		inst.AIndWX, inst.ALngW:
		decoded.Arg1 = expr.NewLiteral(int(bytes[0])|int(bytes[1])<<8, addr.Word)

	case inst.ADirL, inst.ADirLX:
		decoded.Arg1 = expr.NewLiteral(
			int(bytes[0])|int(bytes[1])<<8|int(bytes[2])<<16, addr.Long)

	case inst.AMov:
		// The destination bank is encoded first; source order is restored
		// here.
		decoded.Arg1 = expr.NewLiteral(int(bytes[1]), addr.Byte)
		decoded.Arg2 = expr.NewLiteral(int(bytes[0]), addr.Byte)

	case inst.ARel8:
		value := int(bytes[0])
		if value >= 0x80 {
			value -= 0x100
		}
		decoded.Arg1 = expr.NewLiteral(value, addr.SignedByte)

	case inst.ARel16:
		value := int(bytes[0]) | int(bytes[1])<<8
		if value >= 0x8000 {
			value -= 0x10000
		}
		decoded.Arg1 = expr.NewLiteral(value, addr.SignedWord)
	}

	return decoded, nil
}
