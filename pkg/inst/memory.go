package inst

import "github.com/oisee/asm816/pkg/addr"

// OutputSink receives assembled bytes.  Implementations map the 65816
// address to their own backing store (a ROM overlay, a test buffer) and may
// reject invalid writes.
type OutputSink interface {
	Write(address addr.Address, data []uint8) error
}

// InputSource supplies program bytes during disassembly.  Reads advance the
// way the program counter does, wrapping within a bank.
type InputSource interface {
	// Path names the data source for error messages.
	Path() string
	// Read returns length bytes starting at address.
	Read(address addr.Address, length int) ([]uint8, error)
}
