package loader

import "log/slog"

// Reply is what a handler produces: the bytes to send back, and
// optionally work that must run only after those bytes are queued
// (spec §4.4, §4.6: prepare/commit/jump/reset all document sending the
// response before the irreversible or slow part happens).
type Reply struct {
	OpcodeOrStatus byte
	Payload        []byte
	// NoResponse suppresses sending any reply at all (opcode 255).
	NoResponse bool
	// Terminal means the Run loop must stop after this reply — the
	// handler is about to jump to the application or reset the CPU.
	Terminal bool
	// After, if non-nil, runs synchronously once the reply has been
	// sent.
	After func()
}

func invalidOpcode() Reply { return Reply{OpcodeOrStatus: StatusInvalidOpcode} }

// handlerFunc is the internal per-opcode handler signature. ctx is
// mutated by reference; payload is the request's payload bytes.
type handlerFunc func(ctx *Context, payload []byte) Reply

// Dispatcher maps a received opcode byte to its handler (spec §4.5,
// component C5).
type Dispatcher struct {
	handlers map[byte]handlerFunc
}

// NewDispatcher builds the dense opcode table, including the documented
// aliases (2/201 identify, 70/211 reset) and the reserved no-op (255).
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[byte]handlerFunc)}

	d.handlers[0] = handleActivate
	d.handlers[1] = handleJump
	d.handlers[2] = handleIdentify
	d.handlers[201] = handleIdentify
	d.handlers[8] = handleStopAcquisition
	d.handlers[13] = handleFormatMemory
	d.handlers[16] = handleRecordingStatus
	d.handlers[21] = handleSelfTestStatus
	d.handlers[37] = handleDownload
	d.handlers[38] = handleUpload
	d.handlers[39] = handleUnprotectProtectChecksum
	d.handlers[70] = handleReset
	d.handlers[211] = handleReset
	d.handlers[191] = handleComputeProgramCRC
	d.handlers[221] = handleEraseStatus
	d.handlers[255] = handleDebugNoOp

	return d
}

// Dispatch resets the overall loader timer (spec §4.5: "Every handler
// resets the overall loader timer on entry"; spec §7: a protocol error
// also resets it) for every opcode except the documented exceptions
// below, then routes to the opcode's handler, or replies InvalidOpcode
// for an opcode with no handler.
func (d *Dispatcher) Dispatch(ctx *Context, opcode byte, payload []byte) Reply {
	h, ok := d.handlers[opcode]
	if !ok {
		ctx.Timer.Reset()
		ctx.logger().Info("loader: rejected unknown opcode", slog.Int("opcode", int(opcode)))
		return invalidOpcode()
	}
	resetTimer(ctx, opcode)
	ctx.logger().Debug("loader: dispatching opcode", slog.Int("opcode", int(opcode)), slog.String("state", ctx.State.String()))
	return h(ctx, payload)
}

// resetTimer applies spec §4.8's per-opcode exceptions to the default
// "every handler resets the timer" rule: identify (2/201) and
// self-test status (21) only reset it once the loader has left
// Waiting (spec §4.8: "Resets the timer if already in loader mode"),
// since both are passive queries a surface may poll indefinitely while
// still deciding whether to activate — resetting unconditionally would
// let that polling postpone the Waiting-state boot decision forever.
// Stop-acquisition (8) and recording-status (16) never touch the
// timer at all.
func resetTimer(ctx *Context, opcode byte) {
	switch opcode {
	case 8, 16:
		return
	case 2, 201, 21:
		if ctx.State != Waiting {
			ctx.Timer.Reset()
		}
	default:
		ctx.Timer.Reset()
	}
}
