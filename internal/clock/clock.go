// Package clock provides the millisecond timer abstraction the loader
// core waits against (spec §3 "Timer", §5 "Suspension points"). The
// core never reads a hardware tick register directly — it is handed a
// Source, an external collaborator ordinarily driven by a PWM/timer ISR
// (spec §1 non-goals list clock/PLL bring-up as out of scope) and, in
// tests, by a fake that advances on command.
package clock

// Source is a free-running millisecond counter. Implementations must be
// safe to read from the main loop while being written from an ISR; the
// real implementation behind this interface lives in the hardware
// abstraction layer, never in this package.
type Source interface {
	Millis() uint32
}

// Timer is an armable, single-shot expiry check against a Source. The
// zero value is not armed; call Arm to give it a timeout.
//
// Expiry uses unsigned wraparound arithmetic (spec §3: "expired iff
// now − start ≥ timeout in unsigned arithmetic"), so a Timer remains
// correct across a Source wrapping past its maximum value, which per
// spec §5 cannot happen within one boot session but costs nothing to
// get right anyway.
type Timer struct {
	src     Source
	start   uint32
	timeout uint32
	armed   bool
}

// New returns a Timer reading from src. It is not armed.
func New(src Source) *Timer {
	return &Timer{src: src}
}

// Arm (re)starts the timer against the current time with the given
// timeout in milliseconds.
func (t *Timer) Arm(timeoutMillis uint32) {
	t.start = t.src.Millis()
	t.timeout = timeoutMillis
	t.armed = true
}

// Reset restarts the timer with its existing timeout. Accepted opcodes
// reset the loader timer this way, apart from the per-opcode exceptions
// in the loader's resetTimer (spec §3 invariants, §4.5).
func (t *Timer) Reset() {
	t.start = t.src.Millis()
	t.armed = true
}

// Disarm stops the timer; Expired reports false until Arm is called again.
func (t *Timer) Disarm() {
	t.armed = false
}

// Expired reports whether the timeout has elapsed.
func (t *Timer) Expired() bool {
	if !t.armed {
		return false
	}
	return t.src.Millis()-t.start >= t.timeout
}

// Timeout returns the currently armed timeout in milliseconds.
func (t *Timer) Timeout() uint32 {
	return t.timeout
}
