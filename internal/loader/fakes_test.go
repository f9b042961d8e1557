package loader

import (
	"errors"

	"downholeloader/internal/buffer"
	"downholeloader/internal/crc16"
	"downholeloader/internal/partition"
)

// seedValidRegion writes words starting at rec.Start and a matching CRC
// into rec's CRC slot, so a self-test run against dev reports this
// region valid.
func seedValidRegion(dev *fakeFlash, rec partition.Record, words []uint16) {
	dev.WriteWords(rec.Start, words)
	dev.WriteWords(rec.End, []uint16{crc16.Words(words)})
}

type fakeClock struct{ ms uint32 }

func (c *fakeClock) Millis() uint32   { return c.ms }
func (c *fakeClock) advance(n uint32) { c.ms += n }

type fakeFlash struct {
	words  map[uint32]uint16
	erased []uint32
}

func newFakeFlash() *fakeFlash {
	return &fakeFlash{words: make(map[uint32]uint16)}
}

func (f *fakeFlash) ReadWords(addr uint32, dst []uint16) error {
	for i := range dst {
		w, ok := f.words[addr+uint32(i)]
		if !ok {
			w = 0xFFFF
		}
		dst[i] = w
	}
	return nil
}

func (f *fakeFlash) WriteWords(addr uint32, words []uint16) error {
	for i, w := range words {
		f.words[addr+uint32(i)] = w
	}
	return nil
}

func (f *fakeFlash) IsBlank(addr uint32, n uint32) bool {
	for i := uint32(0); i < n; i++ {
		if w, ok := f.words[addr+i]; ok && w != 0xFFFF {
			return false
		}
	}
	return true
}

func (f *fakeFlash) EraseSectorMask(mask uint32) partition.FlashResult {
	f.erased = append(f.erased, mask)
	for addr := range f.words {
		delete(f.words, addr)
	}
	return partition.FlashResult{OK: true}
}

type fakePlatform struct {
	jumped   bool
	jumpAddr uint32
	resetCPU bool
}

func (p *fakePlatform) JumpToApplication(addr uint32) { p.jumped = true; p.jumpAddr = addr }
func (p *fakePlatform) ResetCPU()                     { p.resetCPU = true }

type fakeRecFlash struct {
	busy      bool
	formatErr error
	formatted int
}

func (r *fakeRecFlash) Busy() bool { return r.busy }
func (r *fakeRecFlash) Format() error {
	if r.formatErr != nil {
		return r.formatErr
	}
	r.formatted++
	return nil
}

var errFormatFailed = errors.New("format failed")

// testRecords lays out small, test-friendly partitions: boot and
// application do not overlap, each with a short CRC-protected region.
func testRecords() [4]partition.Record {
	return [4]partition.Record{
		{ID: partition.Boot, Start: 0x338000, End: 0x338003, SectorMask: 0x01},
		{ID: partition.Application, Start: 0x300000, End: 0x300007, SectorMask: 0x04},
		{ID: partition.Parameter, Start: 0x330000, End: 0x330003, SectorMask: 0x02},
		{ID: partition.Config, Start: 0, End: 0, SectorMask: 0},
	}
}

var testSectors = []partition.SectorWords{
	{Bit: 0, Start: 0x338000, LengthWords: 4},
	{Bit: 1, Start: 0x330000, LengthWords: 4},
	{Bit: 2, Start: 0x300000, LengthWords: 8},
}

type testHarness struct {
	ctx      *Context
	dev      *fakeFlash
	pmap     *partition.Map
	engine   *buffer.Engine
	clk      *fakeClock
	platform *fakePlatform
	recFlash *fakeRecFlash
}

func newHarness(buildPolicy partition.BuildPolicy, stagingPolicy buffer.Policy, seed func(dev *fakeFlash, pmap *partition.Map)) *testHarness {
	dev := newFakeFlash()
	pmap, err := partition.NewMap(testRecords(), buildPolicy)
	if err != nil {
		panic(err)
	}
	if seed != nil {
		seed(dev, pmap)
	}
	engine := buffer.NewEngine(stagingPolicy, pmap, dev, testSectors, buffer.DefaultScratchBase, buffer.DefaultScratchSizeWords)
	clk := &fakeClock{}
	platform := &fakePlatform{}
	recFlash := &fakeRecFlash{}

	ctx := NewContext(dev, pmap, engine, clk, platform, recFlash, BuildInfo{
		VariantTag:   "XPB",
		MajorVersion: 1,
		MinorVersion: 2,
		Baseline:     'C',
		BuildNumber:  7,
	}, Policy{})
	ctx.Sleep = func(uint32) {} // avoid spinning the post-reset drain in tests

	return &testHarness{ctx: ctx, dev: dev, pmap: pmap, engine: engine, clk: clk, platform: platform, recFlash: recFlash}
}
