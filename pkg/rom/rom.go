// Package rom reads SNES ROM images and maps the 65816 address space onto
// ROM file offsets for the three common cartridge layouts.  It also provides
// the ROM-backed output sinks used to validate and patch images.
package rom

import (
	"os"

	"github.com/golang/glog"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
)

// Mapping is the cartridge's address-space layout.
type Mapping uint8

const (
	LoRom   Mapping = iota // modes $20 and $30
	HiRom                  // modes $21 and $31
	ExHiRom                // modes $25 and $35
)

func (m Mapping) String() string {
	switch m {
	case LoRom:
		return "LoROM"
	case HiRom:
		return "HiROM"
	default:
		return "ExHiROM"
	}
}

// SnesToROMAddress converts a 65816 address to an offset into cartridge
// ROM, or fails if the address is intercepted by the console (work RAM,
// memory-mapped registers) or out of range for the mapping.
func SnesToROMAddress(snesAddress addr.Address, mapping Mapping) (int, error) {
	bankAddress := int(snesAddress.BankAddress())
	bank := snesAddress.Bank()
	if bank == 0x7e || bank == 0x7f {
		return 0, asmerr.New("%s is a WRAM address", snesAddress)
	}
	if bankAddress < 0x8000 &&
		((bank >= 0x00 && bank < 0x40) || (bank >= 0x80 && bank < 0xc0)) {
		return 0, asmerr.New("%s is not a cartridge address", snesAddress)
	}
	switch mapping {
	case LoRom:
		if bankAddress < 0x8000 {
			return 0, asmerr.New("%s is not a LoROM cartridge address", snesAddress)
		}
		return (bankAddress & 0x7fff) | (bank << 15), nil
	case HiRom:
		return snesAddress.Int() & 0x3fffff, nil
	default: // ExHiRom
		result := snesAddress.Int() & 0x3fffff
		// Address bit 23 is inverted and used as bit 22 of the CART address.
		if snesAddress.Int()&0x800000 == 0 {
			result |= 0x400000
		}
		return result, nil
	}
}

// Rom is a fully materialized SNES ROM image.
type Rom struct {
	mapping Mapping
	path    string
	data    []uint8
}

// New builds a Rom from raw (header-stripped) image data.
func New(mapping Mapping, path string, data []uint8) *Rom {
	return &Rom{mapping: mapping, path: path, data: data}
}

// Mapping returns the cartridge layout the image was detected as.
func (r *Rom) Mapping() Mapping { return r.mapping }

// Path implements inst.InputSource.
func (r *Rom) Path() string { return r.path }

// Size returns the image size in bytes.
func (r *Rom) Size() int { return len(r.data) }

// Read returns length program bytes starting at address, advancing the way
// the program counter does (wrapping within the bank).
func (r *Rom) Read(address addr.Address, length int) ([]uint8, error) {
	if length < 0 {
		return nil, asmerr.New("negative read length")
	}
	if length == 0 {
		return nil, nil
	}
	first, err := SnesToROMAddress(address, r.mapping)
	if err != nil {
		return nil, err
	}
	last, err := SnesToROMAddress(address.AddWrapped(length-1), r.mapping)
	if err != nil {
		return nil, err
	}
	if last > first {
		// The read does not wrap a bank; by far the common case.
		if last >= len(r.data) {
			return nil, asmerr.New("read past end of ROM at %s", address)
		}
		return r.data[first : last+1], nil
	}
	// The read wraps around a bank; assemble it byte by byte.
	result := make([]uint8, 0, length)
	for i := 0; i < length; i++ {
		offset, err := SnesToROMAddress(address.AddWrapped(i), r.mapping)
		if err != nil {
			return nil, err
		}
		if offset >= len(r.data) {
			return nil, asmerr.New("read past end of ROM at %s", address.AddWrapped(i))
		}
		result = append(result, r.data[offset])
	}
	return result, nil
}

// ReadByte reads a 1-byte little-endian value.
func (r *Rom) ReadByte(address addr.Address) (int, error) {
	data, err := r.Read(address, 1)
	if err != nil {
		return 0, err
	}
	return int(data[0]), nil
}

// ReadWord reads a 2-byte little-endian value.
func (r *Rom) ReadWord(address addr.Address) (int, error) {
	data, err := r.Read(address, 2)
	if err != nil {
		return 0, err
	}
	return int(data[0]) | int(data[1])<<8, nil
}

// ReadLong reads a 3-byte little-endian value.
func (r *Rom) ReadLong(address addr.Address) (int, error) {
	data, err := r.Read(address, 3)
	if err != nil {
		return 0, err
	}
	return int(data[0]) | int(data[1])<<8 | int(data[2])<<16, nil
}

// checkSnesHeader reports whether, heuristically, the 0x30 bytes at an
// internal header location look like a SNES header: the checksum and its
// complement must agree.
func checkSnesHeader(header []uint8) bool {
	return header[0x2c]^header[0x2e] == 0xff && header[0x2d]^header[0x2f] == 0xff
}

// LoadRomFile loads a ROM image from disk, skipping any SMC copier header
// and detecting the mapping from the internal header checksums.
func LoadRomFile(path string) (*Rom, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, asmerr.New("Unable to open file %s", path)
	}
	// A SNES ROM comes in 0x1000-byte pages, with an optional 0x200-byte
	// copier header in front.
	excess := len(raw) % 0x1000
	if excess != 0 && excess != 0x200 {
		return nil, asmerr.New("%s is not a SNES ROM (odd file size)", path)
	}
	data := raw[excess:]
	if len(data) < 0x10000 {
		return nil, asmerr.New("%s is too small to be a SNES ROM", path)
	}

	maybeLoRom := checkSnesHeader(data[0x7fb0:0x7fe0])
	maybeHiRom := checkSnesHeader(data[0xffb0:0xffe0])
	if maybeLoRom == maybeHiRom {
		return nil, asmerr.New("can't detect the memory mapping of %s", path)
	}
	mapping := LoRom
	if maybeHiRom {
		mapping = HiRom
		if len(data) >= 0x400000 {
			mapping = ExHiRom
		}
	}
	glog.V(1).Infof("loaded %s: %d bytes, %s", path, len(data), mapping)
	return New(mapping, path, data), nil
}
