// Package addr holds the basic value types of the 65816 address space:
// 24-bit addresses with bank-wrapped arithmetic, width-tagged numeric types,
// and ownership structures for claimed byte ranges.
package addr

import (
	"fmt"

	"github.com/oisee/asm816/pkg/asmerr"
)

// SpaceSize is one past the last valid 65816 address.  Address values up to
// and including SpaceSize are representable so ranges can use it as a
// half-open upper bound.
const SpaceSize = 0x1000000

// Address is an absolute address in the 65816 address space.
type Address struct {
	value uint32
}

// FromInt builds an Address from a raw 24-bit value (or the one-past-the-end
// sentinel).  The value is masked to its low 25 bits.
func FromInt(value int) Address {
	return Address{value: uint32(value) & 0x1ffffff}
}

// FromBank builds an Address from a bank byte and an offset within the bank.
func FromBank(bank uint8, bankAddress uint16) Address {
	return Address{value: uint32(bank)<<16 | uint32(bankAddress)}
}

// Bank returns the high 8 bits of the address.
func (a Address) Bank() int { return int(a.value >> 16) }

// BankAddress returns the low 16 bits of the address.
func (a Address) BankAddress() uint16 { return uint16(a.value) }

// Int returns the raw 24-bit value.
func (a Address) Int() int { return int(a.value) }

func (a Address) String() string { return fmt.Sprintf("$%06x", a.value) }

// AddWrapped returns the address advanced by offset, wrapping within the
// current bank.  The bank byte never changes; this matches how the program
// counter advances.
func (a Address) AddWrapped(offset int) Address {
	high := a.value & 0xff0000
	low := uint32(int(a.value)+offset) & 0xffff
	return Address{value: high | low}
}

// AddUnwrapped returns the address advanced by offset with no bank wrapping.
func (a Address) AddUnwrapped(offset int) Address {
	return FromInt(int(a.value) + offset)
}

// SubtractWrapped returns the distance from rhs to a as a signed offset in
// [-32768, 32767].  The two addresses must share a bank; the subtraction
// wraps, so $050000 - $05ffff is 1, not -65535.
func (a Address) SubtractWrapped(rhs Address) (int, error) {
	if a.Bank() != rhs.Bank() {
		return 0, asmerr.New("can't subtract addresses in different banks (%s - %s)",
			a, rhs)
	}
	offset := (int(a.BankAddress()) - int(rhs.BankAddress())) & 0xffff
	if offset > 0x7fff {
		offset -= 0x10000
	}
	return offset, nil
}

// Less orders addresses by raw value.
func (a Address) Less(rhs Address) bool { return a.value < rhs.value }

// Location converts the address into an error location.
func (a Address) Location() asmerr.Location {
	return asmerr.FromAddress(int(a.value))
}
