package buffer

import (
	"testing"

	"downholeloader/internal/crc16"
	"downholeloader/internal/frame"
	"downholeloader/internal/partition"
)

// smallMap builds a partition map with a tiny parameter partition (4
// words including its CRC slot) so scratch-based tests stay small.
func smallMap(t *testing.T, policy partition.BuildPolicy) *partition.Map {
	t.Helper()
	records := [4]partition.Record{
		{ID: partition.Boot, Start: 0x338000, End: 0x338003, SectorMask: 0x01},
		{ID: partition.Application, Start: 0x300000, End: 0x300003, SectorMask: 0x04},
		{ID: partition.Parameter, Start: 0x330000, End: 0x330003, SectorMask: 0x02},
		{ID: partition.Config, Start: 0, End: 0, SectorMask: 0},
	}
	m, err := partition.NewMap(records, policy)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

var testSectors = []partition.SectorWords{
	{Bit: 0, Start: 0x338000, LengthWords: 4},
	{Bit: 1, Start: 0x330000, LengthWords: 4},
	{Bit: 2, Start: 0x300000, LengthWords: 4},
}

func TestPrepareRejectsInvalidPartition(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	code := e.Prepare(partition.Boot) // AllowBootWrite not set
	if code != ErrCodeInvalidPartition {
		t.Fatalf("Prepare(Boot) = %#x, want ErrCodeInvalidPartition", code)
	}
	if e.Prepared() {
		t.Fatal("Prepared() should be false after a rejected prepare")
	}
}

func TestPrepareDoubleBufferedBlanksScratch(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	if code := e.Prepare(partition.Parameter); code != 0 {
		t.Fatalf("Prepare = %#x, want 0", code)
	}
	if !e.Prepared() {
		t.Fatal("expected Prepared() true")
	}
	if len(dev.erased) != 0 {
		t.Fatal("double-buffered prepare must not touch flash")
	}
}

func TestPrepareIncrementalErasesFlash(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	dev.WriteWords(0x330000, []uint16{0xAAAA}) // make sector non-blank
	e := NewEngine(Incremental, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	if code := e.Prepare(partition.Parameter); code != 0 {
		t.Fatalf("Prepare = %#x, want 0", code)
	}
	if len(dev.erased) != 1 {
		t.Fatalf("expected one erase call, got %d", len(dev.erased))
	}
}

func TestPrepareRejectsOversizedDoubleBufferedTarget(t *testing.T) {
	records := [4]partition.Record{
		{ID: partition.Boot, Start: 0x338000, End: 0x338003, SectorMask: 0x01},
		{ID: partition.Application, Start: 0x300000, End: 0x300003, SectorMask: 0x04},
		{ID: partition.Parameter, Start: 0x330000, End: 0x330003, SectorMask: 0x02},
		{ID: partition.Config, Start: 0, End: 0, SectorMask: 0},
	}
	pmap, err := partition.NewMap(records, partition.BuildPolicy{ParameterLengthWords: 4})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, 2) // scratch smaller than partition

	code := e.Prepare(partition.Parameter)
	if code != ErrCodeScratchTooSmall {
		t.Fatalf("Prepare = %#x, want ErrCodeScratchTooSmall", code)
	}
}

func TestWriteChunkRejectsWithoutActiveContext(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	err := e.WriteChunk(0x330000, []byte{0, 1})
	if err != ErrNoActiveContext {
		t.Fatalf("WriteChunk = %v, want ErrNoActiveContext", err)
	}
}

func TestWriteChunkRejectsOutOfRange(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)
	e.Prepare(partition.Parameter)

	err := e.WriteChunk(0x340000, []byte{0, 1})
	if err != ErrOutOfRange {
		t.Fatalf("WriteChunk = %v, want ErrOutOfRange", err)
	}
}

// TestDoubleBufferedFullCycle exercises the end-to-end prepare, write,
// validate, commit sequence spec §8 describes for the happy path.
func TestDoubleBufferedFullCycle(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	if code := e.Prepare(partition.Parameter); code != 0 {
		t.Fatalf("Prepare = %#x", code)
	}

	payload := frame.PackWordsBE([]uint16{0x1111, 0x2222, 0x3333})
	if err := e.WriteChunk(0x330000, payload); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	got, err := e.CalculateCRC()
	if err != nil {
		t.Fatalf("CalculateCRC: %v", err)
	}
	want := crc16.Words([]uint16{0x1111, 0x2222, 0x3333})
	if got != want {
		t.Fatalf("CalculateCRC = %#x, want %#x", got, want)
	}

	if !e.ValidateCRC(want) {
		t.Fatal("ValidateCRC should accept the matching CRC")
	}

	e.BeginCommit(want)
	if e.VerifyFailed() {
		t.Fatal("VerifyFailed should be false after a matching commit")
	}
	if !e.Programmed() {
		t.Fatal("expected Programmed() true after commit")
	}

	var readBack [3]uint16
	if err := dev.ReadWords(0x330000, readBack[:]); err != nil {
		t.Fatalf("ReadWords: %v", err)
	}
	if readBack != [3]uint16{0x1111, 0x2222, 0x3333} {
		t.Fatalf("flash contents = %v, want committed scratch data", readBack)
	}

	var crcSlot [1]uint16
	dev.ReadWords(0x330003, crcSlot[:])
	if crcSlot[0] != want {
		t.Fatalf("CRC slot = %#x, want %#x", crcSlot[0], want)
	}
}

func TestBeginCommitRejectsMismatchedCRC(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)
	e.Prepare(partition.Parameter)
	e.WriteChunk(0x330000, frame.PackWordsBE([]uint16{0x1111, 0x2222, 0x3333}))

	e.BeginCommit(0xDEAD)
	if !e.VerifyFailed() {
		t.Fatal("expected VerifyFailed() true for a mismatched CRC")
	}
	if e.Programmed() {
		t.Fatal("must not be Programmed() after a failed verify")
	}
}

func TestIncrementalCommitOnlyWritesCRCSlot(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	dev.WriteWords(0x330000, []uint16{0xAAAA}) // make sector non-blank so Prepare erases it
	e := NewEngine(Incremental, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)
	e.Prepare(partition.Parameter)
	e.WriteChunk(0x330000, frame.PackWordsBE([]uint16{0x1111, 0x2222, 0x3333}))

	want := crc16.Words([]uint16{0x1111, 0x2222, 0x3333})
	e.BeginCommit(want)
	if !e.Programmed() {
		t.Fatal("expected Programmed() true")
	}
	// data was already in flash from WriteChunk; commit touches only the
	// CRC slot, so the erase count stays at the one from Prepare.
	if len(dev.erased) != 1 {
		t.Fatalf("expected exactly one erase call (from prepare), got %d", len(dev.erased))
	}
}

func TestReadChunkRedirectsToScratchWhilePreparedUnprogrammed(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	dev.WriteWords(0x330000, []uint16{0x9999}) // stale flash contents
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)
	e.Prepare(partition.Parameter)
	e.WriteChunk(0x330000, frame.PackWordsBE([]uint16{0x1111}))

	got, err := e.ReadChunk(0x330000, 1)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if got[0] != 0x1111 {
		t.Fatalf("ReadChunk = %#x, want scratch contents 0x1111", got[0])
	}
}

func TestReadChunkFallsBackToFlashWithNoActiveContext(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	dev.WriteWords(0x330000, []uint16{0x4242})
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	got, err := e.ReadChunk(0x330000, 1)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if got[0] != 0x4242 {
		t.Fatalf("ReadChunk = %#x, want flash contents 0x4242", got[0])
	}
}

func TestWriteChunkRejectsAfterProgrammed(t *testing.T) {
	pmap := smallMap(t, partition.BuildPolicy{ParameterLengthWords: 4})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)
	e.Prepare(partition.Parameter)
	e.WriteChunk(0x330000, frame.PackWordsBE([]uint16{0x1111, 0x2222, 0x3333}))
	crc := crc16.Words([]uint16{0x1111, 0x2222, 0x3333})
	e.BeginCommit(crc)

	if err := e.WriteChunk(0x330000, []byte{0, 1}); err != ErrAlreadyProgrammed {
		t.Fatalf("WriteChunk after commit = %v, want ErrAlreadyProgrammed", err)
	}
}

func TestCommitAllowedForBootWithPermission(t *testing.T) {
	// Boot is invalid (and so unpreparable) without AllowBootWrite, which
	// TestPrepareRejectsInvalidPartition covers. A Map's policy cannot be
	// changed after construction, so the denial check inside commit() is
	// not reached from here; this test covers the allowed path: a build
	// with the flag set prepares and commits the boot partition.
	pmap := smallMap(t, partition.BuildPolicy{AllowBootWrite: true})
	dev := newFakeFlash()
	e := NewEngine(DoubleBuffered, pmap, dev, testSectors, DefaultScratchBase, DefaultScratchSizeWords)

	if code := e.Prepare(partition.Boot); code != 0 {
		t.Fatalf("Prepare(Boot) = %#x, want 0 with AllowBootWrite set", code)
	}
	e.WriteChunk(0x338000, frame.PackWordsBE([]uint16{0x1111, 0x2222, 0x3333}))
	crc := crc16.Words([]uint16{0x1111, 0x2222, 0x3333})
	e.BeginCommit(crc)
	if !e.Programmed() {
		t.Fatal("expected boot partition to commit when AllowBootWrite is set")
	}
}
