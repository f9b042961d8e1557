// Package buildconfig carries this firmware build's fixed policy the
// way the teacher's config package carries its runtime network
// settings: small embedded text assets, trimmed and parsed with a
// safe fallback (config.WakeInterval's pattern), except these values
// are baked in at firmware-build time rather than read at runtime.
package buildconfig

import (
	_ "embed"
	"strconv"
	"strings"

	"downholeloader/internal/buffer"
	"downholeloader/internal/partition"
)

// Defaults used whenever the corresponding override file is empty or
// fails to parse.
const (
	DefaultPrimaryAddress       = 0x8C
	DefaultAllowBootWrite       = false
	DefaultJumpToAppWithBadCRC  = false
	DefaultStagingPolicy        = buffer.DoubleBuffered
	DefaultParameterLengthWords = 256
	DefaultConfigLengthWords    = 0 // absent unless overridden
)

var (
	//go:embed primary_address.text
	primaryAddressRaw string

	//go:embed alternate_address.text
	alternateAddressRaw string

	//go:embed broadcast_address.text
	broadcastAddressRaw string

	//go:embed allow_boot_write.text
	allowBootWriteRaw string

	//go:embed jump_with_bad_crc.text
	jumpWithBadCRCRaw string

	//go:embed staging_policy.text
	stagingPolicyRaw string

	//go:embed parameter_length_words.text
	parameterLengthWordsRaw string

	//go:embed config_length_words.text
	configLengthWordsRaw string
)

// PrimaryAddress is the slave address this device answers to on every
// bound transport (spec §4.2, §6).
func PrimaryAddress() byte {
	if b, ok := parseByte(primaryAddressRaw); ok {
		return b
	}
	return DefaultPrimaryAddress
}

// AlternateAddress returns the secondary slave address, if this build
// configures one.
func AlternateAddress() (addr byte, ok bool) {
	return parseByte(alternateAddressRaw)
}

// BroadcastAddress returns the broadcast address, if this build
// compiles in support for it (spec §9 open question (c): "compiled
// out by default but preserved").
func BroadcastAddress() (addr byte, ok bool) {
	return parseByte(broadcastAddressRaw)
}

// AllowBootPartitionWrite reports whether this build permits the
// bootloader partition to ever be unprotected, downloaded to, or
// committed (spec §4.4: "never commits unless the explicit permission
// flag is set").
func AllowBootPartitionWrite() bool {
	if v, ok := parseBool(allowBootWriteRaw); ok {
		return v
	}
	return DefaultAllowBootWrite
}

// JumpToAppWithBadCRC reports whether a Waiting-state timeout jumps to
// an application whose CRC failed self-test rather than resetting
// (spec §9 open question (b): "a build-time flag, not hardcoded").
func JumpToAppWithBadCRC() bool {
	if v, ok := parseBool(jumpWithBadCRCRaw); ok {
		return v
	}
	return DefaultJumpToAppWithBadCRC
}

// StagingPolicy selects the double-buffer engine's commit strategy for
// this build (spec §4.4).
func StagingPolicy() buffer.Policy {
	switch strings.ToLower(strings.TrimSpace(stagingPolicyRaw)) {
	case "incremental":
		return buffer.Incremental
	case "double-buffered", "doublebuffered":
		return buffer.DoubleBuffered
	default:
		return DefaultStagingPolicy
	}
}

// BuildPolicy assembles the partition package's BuildPolicy from this
// build's overrides.
func BuildPolicy() partition.BuildPolicy {
	return partition.BuildPolicy{
		AllowBootWrite:       AllowBootPartitionWrite(),
		ParameterLengthWords: parseWordsOr(parameterLengthWordsRaw, DefaultParameterLengthWords),
		ConfigLengthWords:    parseWordsOr(configLengthWordsRaw, DefaultConfigLengthWords),
	}
}

func parseByte(raw string) (byte, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, false
	}
	return byte(n), true
}

func parseBool(raw string) (bool, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}

func parseWordsOr(raw string, fallback uint32) uint32 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fallback
	}
	return uint32(n)
}
