package loader

import (
	"downholeloader/internal/buffer"
	"downholeloader/internal/frame"
	"downholeloader/internal/partition"
)

func handleActivate(ctx *Context, payload []byte) Reply {
	if ctx.State != Waiting && ctx.State != Activated {
		return invalidOpcode()
	}
	ctx.State = Activated
	ctx.Timer.Arm(LoaderModeTimeoutMillis)
	return Reply{OpcodeOrStatus: StatusOK}
}

func handleJump(ctx *Context, payload []byte) Reply {
	if len(payload) != 4 {
		return Reply{OpcodeOrStatus: StatusParameterOutOfRange}
	}
	addr := frame.LE32(payload)
	return Reply{
		OpcodeOrStatus: StatusOK,
		Terminal:       true,
		After:          func() { ctx.Platform.JumpToApplication(addr) },
	}
}

func handleIdentify(ctx *Context, payload []byte) Reply {
	s := IdentityString(ctx.BootTest.Valid, ctx.AppTest.Valid, ctx.Identity)
	return Reply{OpcodeOrStatus: StatusOK, Payload: []byte(s)}
}

func handleStopAcquisition(ctx *Context, payload []byte) Reply {
	return Reply{OpcodeOrStatus: StatusOK, Payload: []byte{0, 0, 0, 0}}
}

func handleFormatMemory(ctx *Context, payload []byte) Reply {
	if ctx.State == Waiting {
		return invalidOpcode()
	}
	if ctx.RecFlash == nil || ctx.RecFlash.Busy() {
		return Reply{OpcodeOrStatus: StatusCannotFormat}
	}
	if err := ctx.RecFlash.Format(); err != nil {
		return Reply{OpcodeOrStatus: StatusCannotFormat}
	}
	return Reply{OpcodeOrStatus: StatusOK}
}

func handleRecordingStatus(ctx *Context, payload []byte) Reply {
	return Reply{OpcodeOrStatus: StatusOK, Payload: []byte{0}}
}

func handleSelfTestStatus(ctx *Context, payload []byte) Reply {
	out := make([]byte, 7)
	out[0] = boolByte(ctx.BootTest.Valid)
	out[1] = byte(ctx.BootTest.CRC)
	out[2] = byte(ctx.BootTest.CRC >> 8)
	out[3] = boolByte(ctx.AppTest.Valid)
	out[4] = byte(ctx.AppTest.CRC)
	out[5] = byte(ctx.AppTest.CRC >> 8)
	out[6] = byte(ctx.SerialStatus)
	return Reply{OpcodeOrStatus: StatusOK, Payload: out}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func handleDownload(ctx *Context, payload []byte) Reply {
	if ctx.State != ScratchPrepared && ctx.State != Downloading {
		return invalidOpcode()
	}
	if len(payload) < 5 {
		return Reply{OpcodeOrStatus: StatusWrongParameterCount}
	}
	addr := frame.LE32(payload[0:4])
	length := int(payload[4])
	data := payload[5:]
	if len(data) != length {
		return Reply{OpcodeOrStatus: StatusWrongParameterCount}
	}

	err := ctx.Engine.WriteChunk(addr, data)
	switch err {
	case nil:
		ctx.State = Downloading
		return Reply{OpcodeOrStatus: StatusOK}
	case buffer.ErrOutOfRange:
		return Reply{OpcodeOrStatus: StatusParameterOutOfRange}
	case buffer.ErrNoActiveContext, buffer.ErrAlreadyProgrammed:
		return Reply{OpcodeOrStatus: StatusInvalidMessage}
	default:
		return Reply{OpcodeOrStatus: StatusCannotFormat}
	}
}

func handleUpload(ctx *Context, payload []byte) Reply {
	if ctx.State != Activated && ctx.State != Uploading {
		return invalidOpcode()
	}
	if len(payload) != 5 {
		return Reply{OpcodeOrStatus: StatusWrongParameterCount}
	}
	addr := frame.LE32(payload[0:4])
	length := int(payload[4])
	if length%2 != 0 {
		return Reply{OpcodeOrStatus: StatusWrongParameterCount}
	}

	words, err := ctx.Engine.ReadChunk(addr, uint32(length/2))
	switch err {
	case nil:
		ctx.State = Uploading
		addrBE := make([]byte, 4)
		frame.PutBE32(addrBE, addr)
		reply := append(addrBE, frame.PackWordsBE(words)...)
		return Reply{OpcodeOrStatus: StatusOK, Payload: reply}
	case buffer.ErrOutOfRange:
		return Reply{OpcodeOrStatus: StatusParameterOutOfRange}
	default:
		return Reply{OpcodeOrStatus: StatusInvalidMessage}
	}
}

// handleUnprotectProtectChecksum is opcode 39's wire entry point; spec
// §9 asks that it dispatch internally to three named handlers rather
// than switching on the subfield inline.
func handleUnprotectProtectChecksum(ctx *Context, payload []byte) Reply {
	if len(payload) != 3 {
		return Reply{OpcodeOrStatus: StatusWrongParameterCount}
	}
	subfield, b1, b2 := payload[0], payload[1], payload[2]
	switch subfield {
	case 0:
		return opcode39Unprotect(ctx, b1)
	case 1:
		return opcode39Poll(ctx)
	case 2:
		return opcode39Commit(ctx, b1, b2)
	default:
		return Reply{OpcodeOrStatus: StatusParameterOutOfRange}
	}
}

func opcode39Unprotect(ctx *Context, idByte byte) Reply {
	if ctx.State != Activated {
		return invalidOpcode()
	}
	id := partition.ID(idByte)
	if !ctx.PMap.IsValid(id) {
		return Reply{OpcodeOrStatus: StatusParameterOutOfRange}
	}
	ctx.State = Preparing
	return Reply{
		OpcodeOrStatus: StatusOK,
		After:          func() { ctx.Engine.Prepare(id) },
	}
}

func opcode39Poll(ctx *Context) Reply {
	switch ctx.State {
	case Preparing:
		if ctx.Engine.Prepared() {
			ctx.State = ScratchPrepared
			return Reply{OpcodeOrStatus: StatusOK}
		}
		return Reply{OpcodeOrStatus: StatusCannotFormat, Payload: []byte{byte(ctx.Engine.PrepareError())}}

	case Programming:
		if ctx.Engine.Programmed() {
			ctx.State = DoneProgramming
			return Reply{OpcodeOrStatus: StatusOK}
		}
		if ctx.Engine.ProgrammingInProgress() {
			return Reply{OpcodeOrStatus: StatusFormatInProgress}
		}
		if ctx.Engine.VerifyFailed() {
			return Reply{OpcodeOrStatus: StatusVerifyFailed}
		}
		return Reply{OpcodeOrStatus: StatusCannotFormat, Payload: []byte{byte(ctx.Engine.CommitError())}}

	default:
		return invalidOpcode()
	}
}

func opcode39Commit(ctx *Context, crcLo, crcHi byte) Reply {
	if ctx.State != Downloading && ctx.State != Uploading {
		return invalidOpcode()
	}
	expected := uint16(crcLo) | uint16(crcHi)<<8
	ctx.State = Programming
	return Reply{
		OpcodeOrStatus: StatusOK,
		After:          func() { ctx.Engine.BeginCommit(expected) },
	}
}

func handleReset(ctx *Context, payload []byte) Reply {
	return Reply{
		OpcodeOrStatus: StatusOK,
		Terminal:       true,
		After: func() {
			ctx.sleep(PostResetDrainMillis)
			ctx.Platform.ResetCPU()
		},
	}
}

func handleComputeProgramCRC(ctx *Context, payload []byte) Reply {
	return invalidOpcode()
}

func handleEraseStatus(ctx *Context, payload []byte) Reply {
	if ctx.State == Waiting {
		return invalidOpcode()
	}
	if ctx.RecFlash != nil && ctx.RecFlash.Busy() {
		return Reply{OpcodeOrStatus: StatusFormatInProgress}
	}
	return Reply{OpcodeOrStatus: StatusOK}
}

func handleDebugNoOp(ctx *Context, payload []byte) Reply {
	return Reply{NoResponse: true}
}
