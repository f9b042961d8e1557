// Package firmware is the production assembly point: it wires the
// ambient and domain stack this repo carries (build-time policy,
// partition map, double-buffer engine, recording flash, structured
// logging) into a single loader.Context plus its companion Arbiter and
// Dispatcher, the way a concrete board-support package would at
// startup. It takes only the genuinely hardware-specific pieces as
// parameters — bus transports, the two flash devices, the jump/reset
// platform, and the clock source — and leaves which exact DSP those
// come from entirely up to the caller.
package firmware

import (
	"io"
	"log/slog"

	"downholeloader/internal/buffer"
	"downholeloader/internal/buildconfig"
	"downholeloader/internal/bus"
	"downholeloader/internal/clock"
	"downholeloader/internal/frame"
	"downholeloader/internal/loader"
	"downholeloader/internal/loaderlog"
	"downholeloader/internal/partition"
	"downholeloader/internal/recflash"
	"downholeloader/version"
)

// Hardware is the set of board-specific collaborators Build needs.
// Everything else (addresses, staging policy, partition lengths,
// logging) comes from buildconfig and version.
type Hardware struct {
	Transports []bus.Transport
	// AppFlash is the flash device behind the four update partitions.
	AppFlash partition.FlashDevice
	// AppSectors describes AppFlash's erase granularity for the
	// partitions buffer.Engine may need to erase under the incremental
	// policy.
	AppSectors []partition.SectorWords
	// ScratchBase and ScratchWords locate the RAM (or otherwise
	// separately-addressed) staging buffer the double-buffered policy
	// stages an image into before committing it.
	ScratchBase  uint32
	ScratchWords uint32

	// RecFlash is the acquisition-data flash device behind opcodes
	// 13/221. Nil disables those opcodes' underlying device (the
	// handlers already treat a nil RecordingFlash as "not present").
	RecFlash             partition.FlashDevice
	RecFlashSectorMask   uint32
	RecFlashFormatMillis uint32

	Platform loader.Platform
	Clock    clock.Source

	// Log receives structured loader events; nil falls back to a
	// loaderlog.Handler over Console.
	Log     *slog.Logger
	Console io.Writer
}

// Build assembles the loader's Context, Arbiter, and Dispatcher from
// hw and the build-time configuration in internal/buildconfig.
func Build(hw Hardware) (*loader.Context, *bus.Arbiter, *loader.Dispatcher, error) {
	records := partition.DefaultRecords()
	pmap, err := partition.NewMap(records, buildconfig.BuildPolicy())
	if err != nil {
		return nil, nil, nil, err
	}

	engine := buffer.NewEngine(buildconfig.StagingPolicy(), pmap, hw.AppFlash, hw.AppSectors, hw.ScratchBase, hw.ScratchWords)

	var recFlash loader.RecordingFlash
	if hw.RecFlash != nil {
		recFlash = recflash.NewDevice(hw.RecFlash, hw.RecFlashSectorMask, hw.Clock, hw.RecFlashFormatMillis)
	}

	logger := hw.Log
	if logger == nil {
		console := hw.Console
		if console == nil {
			console = io.Discard
		}
		logger = slog.New(loaderlog.NewHandler(console, loaderlog.NewRing(256), &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	policy := loader.Policy{JumpToAppWithBadCRC: buildconfig.JumpToAppWithBadCRC()}
	ctx := loader.NewContext(hw.AppFlash, pmap, engine, hw.Clock, hw.Platform, recFlash, version.Info(), policy)
	ctx.Log = logger

	addrs := addressSet()
	arbiter := bus.NewArbiter(hw.Transports, addrs, hw.Clock)

	dispatcher := loader.NewDispatcher()

	return ctx, arbiter, dispatcher, nil
}

func addressSet() frame.AddressSet {
	set := frame.AddressSet{Primary: buildconfig.PrimaryAddress()}
	if alt, ok := buildconfig.AlternateAddress(); ok {
		set.Alternate = alt
		set.AlternateValid = true
	}
	if bcast, ok := buildconfig.BroadcastAddress(); ok {
		set.BroadcastOption = bcast
		set.BroadcastValid = true
	}
	return set
}
