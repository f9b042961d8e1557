// Package buffer implements the double-buffer / commit engine (spec
// §4.4, component C4): the partition-update lifecycle of prepare, chunk
// writes, CRC validation, and commit, under either the double-buffered
// (RAM scratch) or incremental (direct flash) staging policy described
// in spec §3.
package buffer

import (
	"errors"

	"downholeloader/internal/crc16"
	"downholeloader/internal/frame"
	"downholeloader/internal/partition"
)

// Policy selects how a partition update is staged (spec §3
// "StagingPolicy").
type Policy int

const (
	// DoubleBuffered stages chunks in a RAM scratch region; commit
	// erases the partition then copies scratch to flash in one step,
	// with the validated CRC in the partition's CRC slot.
	DoubleBuffered Policy = iota
	// Incremental erases the partition up front and programs each
	// chunk directly at its target address; commit only writes the
	// CRC slot.
	Incremental
)

// Error codes returned from Prepare/commit that are internal to this
// package, distinct from the wire StatusCode space the dispatcher maps
// them to at the protocol boundary (spec §9: "Separate internal error
// enums from wire status codes").
const (
	ErrCodeInvalidPartition uint16 = 0xFFFF
	ErrCodeScratchTooSmall  uint16 = 0xFFFE
	ErrCodeBootWriteDenied  uint16 = 0xFFFD
)

var (
	ErrNoActiveContext   = errors.New("buffer: no active partition context")
	ErrAlreadyProgrammed = errors.New("buffer: partition already programmed")
	ErrOutOfRange        = errors.New("buffer: address out of range for active partition")
)

// Context is the mutable state of a partition currently being updated
// (spec §3 "PartitionContext"). At most one is active at a time.
type Context struct {
	ID          partition.ID
	Prepared    bool
	Programmed  bool
	LengthWords uint32
	Start       uint32
	End         uint32 // CRC slot address
	SectorMask  uint32
	LastStatus  partition.FlashResult
}

// Engine drives the four update operations (prepare, write chunk,
// validate+commit) plus the two status queries spec §4.4 names, holding
// at most one active Context.
type Engine struct {
	policy       Policy
	pmap         *partition.Map
	dev          partition.FlashDevice
	sectors      []partition.SectorWords
	scratchBase  uint32
	scratch      []uint16
	ctx          *Context
	verifyFailed bool
	programming  bool
}

// DefaultScratchBase and DefaultScratchSizeWords are the spec's literal
// default double-buffer scratch constants (spec §4.4: "RAM scratch
// region (of fixed size 0x1000 words starting at 0xF000)"). A build
// that double-buffers a partition larger than this must configure a
// bigger scratch via NewEngine's scratchSizeWords argument — Prepare
// rejects an update that would not fit, rather than silently
// overrunning the RAM scratch.
const (
	DefaultScratchBase      = 0xF000
	DefaultScratchSizeWords = 0x1000
)

// NewEngine constructs an Engine. scratchSizeWords must be at least as
// large as the biggest partition this build double-buffers.
func NewEngine(policy Policy, pmap *partition.Map, dev partition.FlashDevice, sectors []partition.SectorWords, scratchBase uint32, scratchSizeWords uint32) *Engine {
	return &Engine{
		policy:      policy,
		pmap:        pmap,
		dev:         dev,
		sectors:     sectors,
		scratchBase: scratchBase,
		scratch:     make([]uint16, scratchSizeWords),
	}
}

// Policy reports the staging policy this engine was built with.
func (e *Engine) Policy() Policy { return e.policy }

// Active returns the current partition context, if any.
func (e *Engine) Active() (*Context, bool) {
	if e.ctx == nil {
		return nil, false
	}
	return e.ctx, true
}

// Prepare begins an update of id (spec §4.4 prepare). It rejects an
// invalid partition without touching any state. On success it erases
// (incremental policy) or blanks scratch (double-buffered policy)
// synchronously — spec §4.4 notes this may block for seconds and that
// the caller must already have sent its response frame before calling
// Prepare, because this call does not return until the work is done.
// The return value is an internal error code; 0 means success.
func (e *Engine) Prepare(id partition.ID) uint16 {
	rec, ok := e.pmap.Describe(id)
	if !ok || !e.pmap.IsValid(id) {
		return ErrCodeInvalidPartition
	}

	ctx := &Context{
		ID:          id,
		LengthWords: rec.LengthWords(),
		Start:       rec.Start,
		End:         rec.End,
		SectorMask:  rec.SectorMask,
	}

	switch e.policy {
	case DoubleBuffered:
		if ctx.LengthWords > uint32(len(e.scratch)) {
			ctx.LastStatus = partition.FlashResult{OK: false, Code: ErrCodeScratchTooSmall}
			e.ctx = ctx
			return ErrCodeScratchTooSmall
		}
		for i := uint32(0); i < ctx.LengthWords; i++ {
			e.scratch[i] = 0xFFFF
		}
		ctx.Prepared = true
		ctx.LastStatus = partition.FlashResult{OK: true}

	case Incremental:
		result := partition.Erase(e.dev, rec.SectorMask, e.sectors)
		ctx.LastStatus = result
		ctx.Prepared = result.OK
		if !result.OK {
			e.ctx = ctx
			return result.Code
		}
	}

	e.ctx = ctx
	e.verifyFailed = false
	e.programming = false
	return 0
}

// Prepared reports whether the active context finished preparation
// successfully (spec §4.4 is_prepared / was_prepared_successfully — in
// this synchronous engine preparation always completes within Prepare,
// so the two spec queries collapse to one flag).
func (e *Engine) Prepared() bool {
	return e.ctx != nil && e.ctx.Prepared
}

// PrepareError returns the internal error code from the last failed
// Prepare, or 0 if the active context prepared successfully.
func (e *Engine) PrepareError() uint16 {
	if e.ctx == nil || e.ctx.Prepared {
		return 0
	}
	return e.ctx.LastStatus.Code
}

// WriteChunk writes a big-endian-packed payload of firmware data at a
// word address within the active partition (spec §4.3
// program_memory_write, §4.4 item 3). data's length must be even; it is
// unpacked into 16-bit words before being staged.
func (e *Engine) WriteChunk(addr uint32, data []byte) error {
	if e.ctx == nil {
		return ErrNoActiveContext
	}
	if e.ctx.Programmed {
		return ErrAlreadyProgrammed
	}
	words := frame.UnpackWordsBE(data)
	rec := partition.Record{Start: e.ctx.Start, End: e.ctx.End}
	if !rec.Contains(addr, uint32(len(words))) {
		return ErrOutOfRange
	}

	switch e.policy {
	case DoubleBuffered:
		offset := addr - e.ctx.Start
		copy(e.scratch[offset:offset+uint32(len(words))], words)
	case Incremental:
		if err := e.dev.WriteWords(addr, words); err != nil {
			return err
		}
	}
	return nil
}

// ReadChunk reads wordCount words starting at addr (spec §4.3
// program_memory_read). While the active context is prepared but not
// yet programmed under the double-buffered policy, reads are
// redirected to scratch; otherwise — including when no context is
// active, the "upload anywhere" debug path — reads come straight from
// flash.
func (e *Engine) ReadChunk(addr uint32, wordCount uint32) ([]uint16, error) {
	if e.ctx != nil && e.policy == DoubleBuffered && e.ctx.Prepared && !e.ctx.Programmed {
		offset := addr - e.ctx.Start
		if offset+wordCount > uint32(len(e.scratch)) || addr < e.ctx.Start {
			return nil, ErrOutOfRange
		}
		out := make([]uint16, wordCount)
		copy(out, e.scratch[offset:offset+wordCount])
		return out, nil
	}
	out := make([]uint16, wordCount)
	if err := e.dev.ReadWords(addr, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CalculateCRC computes the CRC-16 over the active partition's data,
// excluding its CRC slot (spec §4.3 calculate_crc). It reads from
// scratch while prepared-but-not-programmed under the double-buffered
// policy, and from flash otherwise.
func (e *Engine) CalculateCRC() (uint16, error) {
	if e.ctx == nil {
		return 0, ErrNoActiveContext
	}
	if e.policy == DoubleBuffered && e.ctx.Prepared && !e.ctx.Programmed {
		return crc16.Words(e.scratch[:e.ctx.LengthWords-1]), nil
	}
	rec := partition.Record{Start: e.ctx.Start, End: e.ctx.End}
	return partition.CalculateCRCFlash(e.dev, rec)
}

// ValidateCRC reports whether expected matches the active partition's
// currently computed CRC (spec §4.4 item 4, "validate_crc").
func (e *Engine) ValidateCRC(expected uint16) bool {
	got, err := e.CalculateCRC()
	return err == nil && got == expected
}

// BeginCommit validates expected against the active partition's
// computed CRC and, only if it matches, performs the commit (spec §4.4
// item 4: "Commit (only entered if validate returned true)"). Like
// Prepare, this call may block for the duration of a flash erase+program
// and is expected to run after the caller has already queued its "OK"
// response frame.
func (e *Engine) BeginCommit(expected uint16) {
	if e.ctx == nil {
		return
	}
	if !e.ValidateCRC(expected) {
		e.verifyFailed = true
		return
	}
	e.verifyFailed = false
	e.programming = true
	code := e.commit(expected)
	e.ctx.LastStatus = partition.FlashResult{OK: code == 0, Code: code}
	e.ctx.Programmed = code == 0
	e.programming = false
}

func (e *Engine) commit(expected uint16) uint16 {
	if e.ctx.ID == partition.Boot && !e.pmap.Policy().AllowBootWrite {
		return ErrCodeBootWriteDenied
	}
	switch e.policy {
	case DoubleBuffered:
		result := partition.Erase(e.dev, e.ctx.SectorMask, e.sectors)
		if !result.OK {
			return result.Code
		}
		e.scratch[e.ctx.LengthWords-1] = expected
		if err := e.dev.WriteWords(e.ctx.Start, e.scratch[:e.ctx.LengthWords]); err != nil {
			return ErrCodeScratchTooSmall // generic flash failure, no platform code available
		}
		return 0
	case Incremental:
		if err := e.dev.WriteWords(e.ctx.End, []uint16{expected}); err != nil {
			return ErrCodeScratchTooSmall
		}
		return 0
	default:
		return ErrCodeInvalidPartition
	}
}

// Programmed reports whether the active context has committed
// successfully.
func (e *Engine) Programmed() bool {
	return e.ctx != nil && e.ctx.Programmed
}

// ProgrammingInProgress reports whether a commit is currently running.
// Always false in this single-threaded, synchronous engine by the time
// any caller can observe it — retained because the opcode-39 poll
// handler (spec §4.6) must distinguish this from VerifyFailed and from
// a hard commit failure.
func (e *Engine) ProgrammingInProgress() bool {
	return e.programming
}

// VerifyFailed reports whether the last checksum-and-commit request's
// CRC did not match.
func (e *Engine) VerifyFailed() bool {
	return e.verifyFailed
}

// CommitError returns the internal error code from the last failed
// commit, or 0 if the active context committed successfully or never
// attempted to commit.
func (e *Engine) CommitError() uint16 {
	if e.ctx == nil || e.ctx.Programmed {
		return 0
	}
	return e.ctx.LastStatus.Code
}
