package partition

import "downholeloader/internal/crc16"

// ExpectedCRC reads the last word of the region — the CRC slot — from
// flash (spec §4.3 expected_crc). It never reads from scratch; the
// redirect-to-scratch behavior only applies to calculate_crc, which
// needs awareness of an in-progress update and lives in package buffer.
func ExpectedCRC(dev FlashDevice, rec Record) (uint16, error) {
	var word [1]uint16
	if err := dev.ReadWords(rec.End, word[:]); err != nil {
		return 0, err
	}
	return word[0], nil
}

// CalculateCRCFlash computes the CRC-16 over every word of rec up to
// but excluding the CRC slot itself, reading straight from flash. This
// is the incremental-policy and already-committed-double-buffered path;
// package buffer additionally knows how to redirect this read to
// scratch while a double-buffered update is in flight.
func CalculateCRCFlash(dev FlashDevice, rec Record) (uint16, error) {
	const chunkWords = 256
	buf := make([]uint16, chunkWords)
	state := crc16.State(0)
	addr := rec.Start
	remaining := rec.LengthWords() - 1 // exclude CRC slot
	for remaining > 0 {
		n := remaining
		if n > chunkWords {
			n = chunkWords
		}
		if err := dev.ReadWords(addr, buf[:n]); err != nil {
			return 0, err
		}
		for _, w := range buf[:n] {
			state = state.UpdateWord(w)
		}
		addr += n
		remaining -= n
	}
	return state.Finalize(), nil
}
