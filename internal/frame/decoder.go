package frame

// AddressSet is the pair of slave addresses this device answers to
// (spec §4.1, §6: primary and alternate). A zero-value AlternateValid
// means no alternate address is configured.
type AddressSet struct {
	Primary         byte
	Alternate       byte
	AlternateValid  bool
	BroadcastValid  bool // compile-time feature, off by default (spec §9 open question (c))
	BroadcastOption byte
}

// Accepts reports whether addr matches this device.
func (a AddressSet) Accepts(addr byte) bool {
	if addr == a.Primary {
		return true
	}
	if a.AlternateValid && addr == a.Alternate {
		return true
	}
	if a.BroadcastValid && addr == a.BroadcastOption {
		return true
	}
	return false
}

type state int

const (
	stAwaitSOF state = iota
	stAddress
	stLenLo
	stLenHi
	stOpcode
	stPayload
	stChecksumLo
	stChecksumHi
	stEnd
)

// Decoder is the resumable, one-byte-at-a-time decode state machine
// described in spec §4.1. It holds no reference to any transport or
// timer; callers drive it with Feed and are responsible for enforcing
// the inter-character and overall timeouts (see Read, in this package,
// for the production driving loop).
type Decoder struct {
	addrs AddressSet

	state    state
	address  byte
	lenLo    byte
	length   uint16
	opcode   byte
	payload  []byte
	wantMore int
	ckLo     byte

	pendingChecksum uint16
}

// NewDecoder returns a Decoder that accepts frames addressed to any
// address in addrs.
func NewDecoder(addrs AddressSet) *Decoder {
	return &Decoder{addrs: addrs}
}

// Reset returns the decoder to its initial await-SOF state, discarding
// any partially received frame. Called automatically after any decode
// error and after the inter-character timer expires.
func (d *Decoder) Reset() {
	d.state = stAwaitSOF
	d.payload = nil
}

// Feed advances the state machine by one byte. It returns a non-nil
// Frame when a complete, valid frame has been decoded; a non-nil error
// on any of the failure modes in spec §4.1 (after which the decoder has
// already reset itself to await-SOF); or both nil to indicate more
// bytes are needed.
func (d *Decoder) Feed(b byte) (*Frame, error) {
	switch d.state {
	case stAwaitSOF:
		if b != StartByte {
			return nil, ErrBadStart
		}
		d.state = stAddress
		return nil, nil

	case stAddress:
		d.address = b
		d.state = stLenLo
		return nil, nil

	case stLenLo:
		d.lenLo = b
		d.state = stLenHi
		return nil, nil

	case stLenHi:
		d.length = uint16(d.lenLo) | uint16(b)<<8
		if d.length < MinLength || d.length > MaxLength {
			d.Reset()
			return nil, ErrLengthOutOfRange
		}
		d.state = stOpcode
		return nil, nil

	case stOpcode:
		d.opcode = b
		d.wantMore = int(d.length) - MinLength
		if d.wantMore == 0 {
			d.state = stChecksumLo
		} else {
			d.payload = make([]byte, 0, d.wantMore)
			d.state = stPayload
		}
		return nil, nil

	case stPayload:
		d.payload = append(d.payload, b)
		if len(d.payload) == d.wantMore {
			d.state = stChecksumLo
		}
		return nil, nil

	case stChecksumLo:
		d.ckLo = b
		d.state = stChecksumHi
		return nil, nil

	case stChecksumHi:
		checksum := uint16(d.ckLo) | uint16(b)<<8
		d.state = stEnd
		d.pendingChecksum = checksum
		return nil, nil

	case stEnd:
		payload := d.payload
		d.Reset()
		if b != EndByte {
			return nil, ErrBadEnd
		}
		want := Checksum(d.address, d.length, d.opcode, payload)
		if want != d.pendingChecksum {
			return nil, ErrBadChecksum
		}
		if !d.addrs.Accepts(d.address) {
			return nil, ErrBadAddress
		}
		return &Frame{Address: d.address, OpcodeOrStatus: d.opcode, Payload: payload}, nil
	}

	// Unreachable for a well-formed state machine.
	d.Reset()
	return nil, ErrBadStart
}

// InFrame reports whether a frame is currently mid-flight, i.e. whether
// the inter-character timeout applies. While awaiting SOF, only the
// overall timeout governs (spec §4.1).
func (d *Decoder) InFrame() bool {
	return d.state != stAwaitSOF
}
