package frame

import "downholeloader/internal/clock"

// ByteSource is a non-blocking byte source backed by an ISR-fed receive
// ring buffer (spec §5: "ISRs never call into the protocol engine; they
// only push one received byte into a per-bus ring buffer"). TryReadByte
// must return immediately; all waiting happens in Read below, by
// spinning and re-checking timers, matching the cooperative,
// non-yielding suspension points described in spec §5.
type ByteSource interface {
	TryReadByte() (b byte, ok bool)
}

// Read drives dec against src until a complete frame is decoded or a
// timeout/framing error occurs. overall is the per-message timeout
// (spec §4.1: "The overall (per-message) timeout is passed in and is
// separate from the inter-character timeout"); it is the caller's
// Timer, already armed with the current loader-mode timeout, and is
// not reset by Read — only Reset by the dispatcher once a full frame
// has been handled (spec §4.5).
func Read(src ByteSource, dec *Decoder, clk clock.Source, overall *clock.Timer) (Frame, error) {
	interChar := clock.New(clk)
	if dec.InFrame() {
		// Entered mid-frame (the arbiter has already fed the SOF).
		interChar.Arm(InterCharacterTimeoutMillis)
	}
	for {
		if overall.Expired() {
			return Frame{}, ErrOverallTimeout
		}
		b, ok := src.TryReadByte()
		if !ok {
			if dec.InFrame() && interChar.Expired() {
				dec.Reset()
				return Frame{}, ErrInterCharTimeout
			}
			continue
		}
		wasInFrame := dec.InFrame()
		f, err := dec.Feed(b)
		if err != nil {
			return Frame{}, err
		}
		if f != nil {
			return *f, nil
		}
		if !wasInFrame {
			// Just consumed SOF; start the inter-character clock.
			interChar.Arm(InterCharacterTimeoutMillis)
		} else {
			interChar.Reset()
		}
	}
}
