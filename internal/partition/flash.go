package partition

import "errors"

// FlashResult is the status record a flash operation returns (spec §4.3
// erase: "the returned status record is copied through"). Code carries
// the platform-specific error code verbatim; it is opaque to this
// package and is only meaningful to the surface controller that
// receives it in a protocol-error payload (spec §7).
type FlashResult struct {
	OK   bool
	Code uint16
}

// FlashDevice is the external collaborator this package drives: the
// synchronous flash erase/program primitives spec.md explicitly puts
// out of scope (§1) and spec §9 says to re-express as a testable
// interface rather than volatile hardware pointers ("Function-pointer
// hot-patching for test"). Production code backs this with the real
// flash controller; tests back it with an in-memory model.
type FlashDevice interface {
	// ReadWords reads len(dst) words starting at the word address addr.
	ReadWords(addr uint32, dst []uint16) error
	// WriteWords programs words at the word address addr. Programming
	// outside a previously erased region is undefined, matching real
	// NOR flash.
	WriteWords(addr uint32, words []uint16) error
	// IsBlank reports whether every word in [addr, addr+n) already
	// reads as the erased value (0xFFFF), used by Erase's blank-check
	// (spec §4.3: "a blank sector is not re-erased").
	IsBlank(addr uint32, n uint32) bool
	// EraseSectorMask erases exactly the sectors named by mask and
	// blocks until the platform primitive completes or fails.
	EraseSectorMask(mask uint32) FlashResult
}

var ErrNotBlank = errors.New("partition: sector not blank after erase")

// SectorWords describes where each sector-mask bit lives in word-address
// space, needed to blank-check a sector before deciding whether it must
// be erased. A concrete tool build supplies this from its own sector
// table (the equivalent of tool_specific_hardware's sector layout).
type SectorWords struct {
	Bit         uint32 // which mask bit this sector occupies
	Start       uint32 // first word address of the sector
	LengthWords uint32
}

// Erase scans every sector named in mask; any sector that already reads
// entirely 0xFFFF is dropped from the effective mask before the
// platform erase primitive is invoked (spec §4.3 erase: "any sector
// already fully 0xFFFF is removed from the effective mask"). sectors
// describes the full sector table so the blank-check knows each
// candidate sector's address range.
func Erase(dev FlashDevice, mask uint32, sectors []SectorWords) FlashResult {
	effective := mask
	for _, s := range sectors {
		if mask&(1<<s.Bit) == 0 {
			continue
		}
		if dev.IsBlank(s.Start, s.LengthWords) {
			effective &^= 1 << s.Bit
		}
	}
	if effective == 0 {
		return FlashResult{OK: true}
	}
	return dev.EraseSectorMask(effective)
}
