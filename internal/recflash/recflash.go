// Package recflash models the acquisition-data flash device that
// opcodes 13 (format memory) and 221 (erase status) target — a device
// distinct from the four update partitions package partition
// describes, and never read by the loader core itself (spec.md §4.8;
// this core neither acquires nor logs data, it only formats and
// reports on the device that does).
package recflash

import (
	"errors"

	"downholeloader/internal/clock"
	"downholeloader/internal/partition"
)

// ErrFormatInProgress is returned by Format when a previous erase has
// not yet completed.
var ErrFormatInProgress = errors.New("recflash: format already in progress")

// ErrFormatFailed wraps a failed erase reported by the underlying
// device.
var ErrFormatFailed = errors.New("recflash: erase failed")

// Device is the recording-flash facade opcodes 13/221 operate
// against through loader.RecordingFlash. It layers asynchronous-erase
// bookkeeping over a raw partition.FlashDevice — the same word-
// addressed primitive C3 uses, reused here only for its shape, not for
// any coupling to the four-partition map.
type Device struct {
	raw                  partition.FlashDevice
	sectorMask           uint32
	clk                  clock.Source
	formatTimer          *clock.Timer
	formatDurationMillis uint32
	formatting           bool
}

// NewDevice returns a Device erasing sectorMask on Format, taking
// formatDurationMillis to complete (spec.md §4.8: format memory is
// started, then polled to completion via opcode 221 rather than
// blocking the protocol engine).
func NewDevice(raw partition.FlashDevice, sectorMask uint32, clk clock.Source, formatDurationMillis uint32) *Device {
	return &Device{
		raw:                  raw,
		sectorMask:           sectorMask,
		clk:                  clk,
		formatTimer:          clock.New(clk),
		formatDurationMillis: formatDurationMillis,
	}
}

// Busy reports whether an erase started by Format has not yet run its
// course.
func (d *Device) Busy() bool {
	if !d.formatting {
		return false
	}
	if d.formatTimer.Expired() {
		d.formatting = false
		return false
	}
	return true
}

// Format starts erasing the recording-flash device. It returns
// ErrFormatInProgress if an erase is already underway, or
// ErrFormatFailed if the underlying device rejects the erase outright.
func (d *Device) Format() error {
	if d.Busy() {
		return ErrFormatInProgress
	}
	result := d.raw.EraseSectorMask(d.sectorMask)
	if !result.OK {
		return ErrFormatFailed
	}
	d.formatting = true
	d.formatTimer.Arm(d.formatDurationMillis)
	return nil
}
