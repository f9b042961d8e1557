// Package crc16 implements the CRC-16/XMODEM primitive the loader core
// treats as an external collaborator (spec §1, §4.3, §4.7): a running
// accumulator that can be fed bytes or 16-bit words incrementally and
// finalized into the 16-bit value stored in a partition's CRC slot.
//
// No example in the reference pack imports a CRC-16 library (the
// teacher authenticates OTA images with sha256 instead), so this is a
// from-scratch implementation grounded on the two-phase running/finalize
// contract spec.md §4.3 describes for the original dsp_crc.h
// collaborator.
package crc16

const poly = 0x1021

// State is a running CRC-16/XMODEM accumulator. The zero value is the
// correct initial state.
type State uint16

// Update feeds bytes into the accumulator and returns the new state.
func (s State) Update(data []byte) State {
	crc := uint16(s)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return State(crc)
}

// UpdateWord feeds one 16-bit flash word, high byte first, matching the
// big-endian-on-the-wire convention used for download/upload payloads
// (spec §4.1, §6).
func (s State) UpdateWord(w uint16) State {
	return s.Update([]byte{byte(w >> 8), byte(w)})
}

// Finalize returns the CRC-16 value for everything fed so far. The
// accumulator does not need a distinct finalization step (XMODEM has no
// final XOR/reflection), but the method exists so callers can treat
// "still running" and "final value" as distinct steps per spec.md §4.3.
func (s State) Finalize() uint16 {
	return uint16(s)
}

// Bytes computes the CRC-16 of a byte slice in one call.
func Bytes(data []byte) uint16 {
	return State(0).Update(data).Finalize()
}

// Words computes the CRC-16 over a slice of 16-bit words, each
// contributing high-byte-first, matching how partitions are checksummed
// a word at a time (spec §4.3 calculate_crc).
func Words(words []uint16) uint16 {
	s := State(0)
	for _, w := range words {
		s = s.UpdateWord(w)
	}
	return s.Finalize()
}
