package loader

import (
	"log/slog"

	"downholeloader/internal/bus"
	"downholeloader/internal/frame"
)

// Run is the main loop spec §5 describes: wait for a frame, dispatch
// it, send the reply, loop. It returns only when a handler's reply is
// Terminal (jump or reset) or an overall timeout has been resolved by a
// jump or reset; any other decode error is dropped and the loop goes on.
//
// A framing error (spec §7 kind 1) draws no reply; the loop simply
// waits for the next frame. An overall timeout resolves via the boot
// decision table (spec §4.6): reset unconditionally once the loader has
// left Waiting, or jump-vs-reset per ShouldJumpOnBoot while still
// Waiting.
func Run(ctx *Context, arbiter *bus.Arbiter, dispatcher *Dispatcher, appJumpAddr uint32) {
	for {
		f, err := arbiter.WaitForMessage(ctx.Timer)
		if err != nil {
			if err == frame.ErrOverallTimeout {
				if ctx.State == Waiting && ctx.ShouldJumpOnBoot() {
					ctx.logger().Info("loader: timeout, jumping to application", slog.Uint64("addr", uint64(appJumpAddr)))
					ctx.Platform.JumpToApplication(appJumpAddr)
				} else {
					ctx.logger().Info("loader: timeout, resetting", slog.String("state", ctx.State.String()))
					ctx.Platform.ResetCPU()
				}
				return
			}
			// Any other decode error is a framing error: no reply, keep
			// listening for the next SOF.
			ctx.logger().Debug("loader: dropped frame", slog.String("err", err.Error()))
			continue
		}

		reply := dispatcher.Dispatch(ctx, f.OpcodeOrStatus, f.Payload)
		if !reply.NoResponse {
			arbiter.SendFrame(f.Address, reply.OpcodeOrStatus, reply.Payload)
		}
		if reply.After != nil {
			reply.After()
		}
		if reply.Terminal {
			ctx.logger().Info("loader: terminal reply, stopping run loop", slog.Int("opcode", int(f.OpcodeOrStatus)))
			return
		}
	}
}
