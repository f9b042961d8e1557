// Package partition implements the static partition map and the flash
// abstraction it is read and written through (spec §4.3, component
// C3): the four fixed flash regions (boot, application, parameter,
// config), their validity under build policy, and word-addressed
// read/write/erase primitives layered over an external FlashDevice
// collaborator.
//
// Flash on this family of DSP is natively word-addressed (16-bit
// words), which is why every address in this package — and every
// address spec.md §6 quotes — is a word address, not a byte offset;
// program_memory_write's "length_bytes / 2" check is exactly the
// byte-payload-to-word-count conversion this package performs.
package partition

import "errors"

// ID identifies one of the four fixed partitions (spec §3).
type ID int

const (
	Boot ID = iota
	Application
	Parameter
	Config
)

func (id ID) String() string {
	switch id {
	case Boot:
		return "boot"
	case Application:
		return "application"
	case Parameter:
		return "parameter"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Record is the fixed, static description of one partition (spec §3
// "Partition"): its word-address range (inclusive), the word address
// of its CRC slot (always the region's final word), and the sector
// bitmask the erase primitive operates on.
type Record struct {
	ID         ID
	Start      uint32 // first word address, inclusive
	End        uint32 // last word address, inclusive (the CRC slot)
	SectorMask uint32
}

// LengthWords returns the number of 16-bit words in the region,
// including the CRC slot.
func (r Record) LengthWords() uint32 {
	return r.End - r.Start + 1
}

// Contains reports whether the word range [addr, addr+words) lies
// entirely within the region.
func (r Record) Contains(addr uint32, words uint32) bool {
	if words == 0 {
		return addr >= r.Start && addr <= r.End+1
	}
	end := addr + words - 1
	return addr >= r.Start && end <= r.End && end >= addr
}

// BuildPolicy is the build-time configuration that gates which
// partitions are writable (spec §3 "Partition", §4.4 "The bootloader
// partition never commits unless the explicit permission flag is
// set").
type BuildPolicy struct {
	// AllowBootWrite must be true, in addition to targeting partition
	// Boot, for any write or commit against the boot partition to be
	// accepted (spec §3 invariants).
	AllowBootWrite bool
	// ParameterLengthWords and ConfigLengthWords of 0 mark those
	// partitions as not present in this build (spec §3: "valid iff
	// their length is non-zero").
	ParameterLengthWords uint32
	ConfigLengthWords    uint32
}

// Map is the read-only, build-time-fixed description of the four
// partitions plus the policy gating their validity.
type Map struct {
	records [4]Record
	policy  BuildPolicy
}

// NewMap validates and returns a Map. records must be indexed by ID
// (records[Boot], records[Application], ...).
func NewMap(records [4]Record, policy BuildPolicy) (*Map, error) {
	for i, want := range []ID{Boot, Application, Parameter, Config} {
		if records[i].ID != want {
			return nil, errors.New("partition: records out of order")
		}
	}
	return &Map{records: records, policy: policy}, nil
}

// IsValid reports whether id is usable in this build (spec §4.3
// is_valid): application is always valid; parameter/config are valid
// iff their configured length is non-zero; boot is valid iff the
// build-time permission flag is set.
func (m *Map) IsValid(id ID) bool {
	switch id {
	case Boot:
		return m.policy.AllowBootWrite
	case Application:
		return true
	case Parameter:
		return m.policy.ParameterLengthWords != 0
	case Config:
		return m.policy.ConfigLengthWords != 0
	default:
		return false
	}
}

// Describe returns the static record for id (spec §4.3 describe). ok
// is false for an out-of-range id.
func (m *Map) Describe(id ID) (Record, bool) {
	if id < Boot || id > Config {
		return Record{}, false
	}
	return m.records[id], true
}

// Policy returns the build policy the Map was constructed with.
func (m *Map) Policy() BuildPolicy {
	return m.policy
}

// DefaultRecords is the default build's partition layout (spec §6):
// boot 0x338000..0x33FF7F (sector A), application 0x300000..0x32FFFF
// (sectors C–H), parameter 0x330000..0x337FFF (sector B), config
// disabled. Sector masks are bit positions in an implementation-defined
// sector-bitmask space; the values below are placeholders a concrete
// tool build overrides via tool_specific_config-equivalent constants.
func DefaultRecords() [4]Record {
	return [4]Record{
		{ID: Boot, Start: 0x338000, End: 0x33FF7F, SectorMask: 0x01},
		{ID: Application, Start: 0x300000, End: 0x32FFFF, SectorMask: 0xFC},
		{ID: Parameter, Start: 0x330000, End: 0x337FFF, SectorMask: 0x02},
		{ID: Config, Start: 0, End: 0, SectorMask: 0},
	}
}
