package rom

import (
	"os"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
)

// IdentitySink is an output sink that requires every write to match the
// bytes already present in a ROM.  Assembling a disassembly back through an
// IdentitySink proves the round trip is exact.
type IdentitySink struct {
	rom *Rom
}

// NewIdentitySink wraps a ROM for write validation.
func NewIdentitySink(r *Rom) *IdentitySink {
	return &IdentitySink{rom: r}
}

// Write implements inst.OutputSink.
func (s *IdentitySink) Write(address addr.Address, data []uint8) error {
	existing, err := s.rom.Read(address, len(data))
	if err != nil {
		return err
	}
	for i := range data {
		if existing[i] != data[i] {
			return asmerr.New(
				"write of 0x%02x at %s does not match existing ROM byte 0x%02x",
				data[i], address.AddWrapped(i), existing[i])
		}
	}
	return nil
}

// Overwriter is an output sink that patches a copy of a ROM image, for
// writing modified ROMs back to disk.
type Overwriter struct {
	rom  *Rom
	data []uint8
}

// NewOverwriter copies the ROM's data for patching.
func NewOverwriter(r *Rom) *Overwriter {
	data := make([]uint8, len(r.data))
	copy(data, r.data)
	return &Overwriter{rom: r, data: data}
}

// Write implements inst.OutputSink.
func (o *Overwriter) Write(address addr.Address, data []uint8) error {
	for i := range data {
		offset, err := SnesToROMAddress(address.AddWrapped(i), o.rom.mapping)
		if err != nil {
			return err
		}
		if offset >= len(o.data) {
			return asmerr.New("write past end of ROM at %s", address.AddWrapped(i))
		}
		o.data[offset] = data[i]
	}
	return nil
}

// CreateFile writes the patched image to path.
func (o *Overwriter) CreateFile(path string) error {
	if err := os.WriteFile(path, o.data, 0644); err != nil {
		return asmerr.New("Unable to write file %s: %v", path, err)
	}
	return nil
}
