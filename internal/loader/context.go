package loader

import (
	"log/slog"

	"downholeloader/internal/buffer"
	"downholeloader/internal/clock"
	"downholeloader/internal/partition"
)

// Platform is the two irreversible hardware actions the loader
// triggers: jumping to the resident application and forcing a CPU
// reset (spec §4.6, §4.8 opcodes 1 and 70/211). Neither is expected to
// return control to the caller on real hardware; a test Platform
// records the call instead so the surrounding Run loop can be observed
// to stop.
type Platform interface {
	JumpToApplication(addr uint32)
	ResetCPU()
}

// RecordingFlash is the narrower flash abstraction behind opcodes 13
// (format memory) and 221 (erase status) — a device distinct from the
// four update partitions (see SPEC_FULL's supplemented recording-flash
// partition). Opcode 16 (recording status) does not use it.
type RecordingFlash interface {
	Busy() bool
	Format() error
}

// Policy is the build-time configuration the boot decision
// (ShouldJumpOnBoot, used by Run) needs beyond what
// partition.BuildPolicy already governs.
type Policy struct {
	// JumpToAppWithBadCRC resolves spec §9 open question (b): whether a
	// Waiting-state timeout jumps to the application even when its CRC
	// is bad. Configurable per build, defaulting to false.
	JumpToAppWithBadCRC bool
}

// Context is the single mutable value the dispatcher and every handler
// operate on by reference (spec §9: "Re-architect as a single
// LoaderContext value passed by mutable reference").
type Context struct {
	State State
	Timer *clock.Timer
	Clk   clock.Source

	Engine *buffer.Engine
	PMap   *partition.Map

	BootTest     SelfTestResult
	AppTest      SelfTestResult
	SerialStatus SerialStatus

	Identity BuildInfo
	Policy   Policy
	Platform Platform
	RecFlash RecordingFlash

	// Sleep blocks for millis milliseconds; nil defaults to a busy spin
	// against Clk. Tests substitute a no-op or a clock-advancing hook to
	// avoid literally spinning for the 500ms post-reset drain.
	Sleep func(millis uint32)

	// Log receives structured Debug/Info events for state transitions,
	// dispatched opcodes, and dropped frames. Nil falls back to
	// slog.Default() so a Context built without one still logs rather
	// than panicking.
	Log *slog.Logger
}

// logger returns ctx.Log, or slog.Default() if none was set.
func (ctx *Context) logger() *slog.Logger {
	if ctx.Log != nil {
		return ctx.Log
	}
	return slog.Default()
}

// NewContext builds a Context, running the self-test and arming the
// initial Waiting timeout (spec §4.7).
func NewContext(dev partition.FlashDevice, pmap *partition.Map, engine *buffer.Engine, clk clock.Source, platform Platform, recFlash RecordingFlash, info BuildInfo, policy Policy) *Context {
	boot, app := RunSelfTest(dev, pmap)
	timer := clock.New(clk)
	timer.Arm(InitialTimeout(app.Valid))
	return &Context{
		State:        Waiting,
		Timer:        timer,
		Clk:          clk,
		Engine:       engine,
		PMap:         pmap,
		BootTest:     boot,
		AppTest:      app,
		SerialStatus: SerialUntested,
		Identity:     info,
		Policy:       policy,
		Platform:     platform,
		RecFlash:     recFlash,
	}
}

// sleep honors ctx.Sleep if set, otherwise busy-waits against Clk.
func (ctx *Context) sleep(millis uint32) {
	if ctx.Sleep != nil {
		ctx.Sleep(millis)
		return
	}
	t := clock.New(ctx.Clk)
	t.Arm(millis)
	for !t.Expired() {
	}
}

// ShouldJumpOnBoot reports whether a Waiting-state timer expiry should
// jump to the application rather than reset (spec §4.6 table, §9 open
// question (b)).
func (ctx *Context) ShouldJumpOnBoot() bool {
	return ctx.AppTest.Valid || ctx.Policy.JumpToAppWithBadCRC
}
