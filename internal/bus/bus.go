// Package bus implements the bus arbiter (spec §4.2, component C2): the
// first-message-wins selection between candidate transports, and the
// half-duplex turnaround delay observed before a response is sent.
package bus

import (
	"errors"

	"downholeloader/internal/clock"
	"downholeloader/internal/frame"
)

// TurnaroundDelayMillis is the RS-485 direction-change delay observed
// before transmitting a response (spec §4.2, §6).
const TurnaroundDelayMillis = 8

// ErrNotBound is returned by SendFrame before any transport has won
// arbitration.
var ErrNotBound = errors.New("bus: no transport bound")

// Transport is one candidate physical link the arbiter chooses between
// (RS-485, CAN, a debug side-channel — spec §4.2, §6). TryReadByte must
// be non-blocking, matching frame.ByteSource; Send queues a fully
// encoded frame for transmission and may block only for as long as the
// underlying driver's FIFO takes to accept it, with WaitTransmitDone
// separately blocking until the bytes have actually left the wire
// (spec §5: bus turnaround requires both a direction-change delay and
// waiting for transmission to finish before the receiver can re-enable).
type Transport interface {
	TryReadByte() (b byte, ok bool)
	Send(data []byte) error
	WaitTransmitDone()
	// Enable and Disable gate whether this transport's receive ISR is
	// allowed to push bytes into its ring. The arbiter disables every
	// losing transport as a side effect of binding (spec §4.2: "Other
	// transports' receivers are disabled as a side effect").
	Enable()
	Disable()
	Name() string
}

// Arbiter is the bus arbiter: it binds exactly one Transport for the
// remainder of the boot session and never re-binds (spec §4.2).
type Arbiter struct {
	transports []Transport
	dec        *frame.Decoder
	clk        clock.Source
	bound      int // index into transports, or -1 while unbound
	idle       func()
}

// SetIdleHook installs f to be called on every iteration of the
// turnaround busy-wait in SendFrame, letting the caller service a
// watchdog or other cooperative duties while waiting out the 8ms
// direction-change delay. Nil (the default) means no idle work.
func (a *Arbiter) SetIdleHook(f func()) { a.idle = f }

// NewArbiter returns an Arbiter polling transports for the first
// candidate SOF byte, decoding frames addressed to addrs once bound.
func NewArbiter(transports []Transport, addrs frame.AddressSet, clk clock.Source) *Arbiter {
	return &Arbiter{
		transports: transports,
		dec:        frame.NewDecoder(addrs),
		clk:        clk,
		bound:      -1,
	}
}

// IsBound reports whether a transport has won arbitration.
func (a *Arbiter) IsBound() bool { return a.bound >= 0 }

// Bound returns the transport the arbiter has bound to, if any.
func (a *Arbiter) Bound() (Transport, bool) {
	if a.bound < 0 {
		return nil, false
	}
	return a.transports[a.bound], true
}

// WaitForMessage returns the next complete, addressed frame, or a
// decode/timeout error (spec §4.2 wait_for_message). While unbound it
// polls every transport for the first byte that could start a frame;
// once bound it only ever reads from the winning transport.
func (a *Arbiter) WaitForMessage(overall *clock.Timer) (frame.Frame, error) {
	if a.bound >= 0 {
		return frame.Read(a.transports[a.bound], a.dec, a.clk, overall)
	}
	return a.waitForBinding(overall)
}

func (a *Arbiter) waitForBinding(overall *clock.Timer) (frame.Frame, error) {
	for {
		if overall.Expired() {
			return frame.Frame{}, frame.ErrOverallTimeout
		}
		for i, t := range a.transports {
			b, ok := t.TryReadByte()
			if !ok {
				continue
			}
			if b != frame.StartByte {
				// Noise on an unbound transport; it hasn't won
				// arbitration, keep polling every candidate.
				continue
			}
			a.bind(i)
			f, err := a.dec.Feed(b)
			if err != nil {
				return frame.Frame{}, err
			}
			if f != nil {
				return *f, nil
			}
			return frame.Read(a.transports[a.bound], a.dec, a.clk, overall)
		}
	}
}

func (a *Arbiter) bind(i int) {
	a.bound = i
	for j, t := range a.transports {
		if j != i {
			t.Disable()
		}
	}
}

// SendFrame encodes and transmits a response on the bound transport,
// observing the bus turnaround delay beforehand and waiting for
// transmission to complete afterward (spec §4.2, §5).
func (a *Arbiter) SendFrame(address, opcodeOrStatus byte, payload []byte) error {
	if a.bound < 0 {
		return ErrNotBound
	}
	data, err := frame.Encode(address, opcodeOrStatus, payload)
	if err != nil {
		return err
	}
	t := a.transports[a.bound]

	turnaround := clock.New(a.clk)
	turnaround.Arm(TurnaroundDelayMillis)
	for !turnaround.Expired() {
		if a.idle != nil {
			a.idle()
		}
	}

	if err := t.Send(data); err != nil {
		return err
	}
	t.WaitTransmitDone()
	return nil
}
