// Package client is the surface side of the wire protocol: it encodes
// requests, sends them over a single bound bus.Transport, and decodes
// the reply, the mirror image of what internal/bus and internal/frame
// do on the loader side. Unlike the loader's arbiter, a surface tool
// always talks to exactly one transport it already knows the address
// of, so there is no arbitration to perform here.
package client

import (
	"time"

	"downholeloader/internal/bus"
	"downholeloader/internal/clock"
	"downholeloader/internal/frame"
)

// wallClock backs clock.Source with the host's real time, the surface
// tool's analogue of the loader's free-running millisecond counter.
type wallClock struct{}

func (wallClock) Millis() uint32 { return uint32(time.Now().UnixMilli()) }

// Client drives one request/reply exchange at a time against a bound
// transport and address.
type Client struct {
	t    bus.Transport
	dec  *frame.Decoder
	clk  clock.Source
	addr byte
}

// New returns a Client addressing the device at addr over t.
func New(t bus.Transport, addr byte) *Client {
	return &Client{
		t:    t,
		dec:  frame.NewDecoder(frame.AddressSet{Primary: addr}),
		clk:  wallClock{},
		addr: addr,
	}
}

// Call sends one request frame and waits up to timeout for the reply.
func (c *Client) Call(opcodeOrStatus byte, payload []byte, timeout time.Duration) (frame.Frame, error) {
	data, err := frame.Encode(c.addr, opcodeOrStatus, payload)
	if err != nil {
		return frame.Frame{}, err
	}
	if err := c.t.Send(data); err != nil {
		return frame.Frame{}, err
	}
	c.t.WaitTransmitDone()

	timer := clock.New(c.clk)
	timer.Arm(uint32(timeout / time.Millisecond))
	return frame.Read(c.t, c.dec, c.clk, timer)
}

const defaultTimeout = 5 * time.Second

// Identify sends opcode 2.
func (c *Client) Identify() (frame.Frame, error) { return c.Call(2, nil, defaultTimeout) }

// SelfTestStatus sends opcode 21.
func (c *Client) SelfTestStatus() (frame.Frame, error) { return c.Call(21, nil, defaultTimeout) }

// Activate sends opcode 0.
func (c *Client) Activate() (frame.Frame, error) { return c.Call(0, nil, defaultTimeout) }

// Unprotect sends opcode 39's unprotect subfield (0) for partition id.
func (c *Client) Unprotect(id byte) (frame.Frame, error) {
	return c.Call(39, []byte{0, id, 0}, defaultTimeout)
}

// Poll sends opcode 39's poll subfield (1).
func (c *Client) Poll() (frame.Frame, error) {
	return c.Call(39, []byte{1, 0, 0}, defaultTimeout)
}

// Commit sends opcode 39's commit subfield (2) with the expected
// little-endian CRC-16.
func (c *Client) Commit(expectedCRC uint16) (frame.Frame, error) {
	return c.Call(39, []byte{2, byte(expectedCRC), byte(expectedCRC >> 8)}, defaultTimeout)
}

// Download sends opcode 37: a word-address, a byte length, and up to
// 255 bytes (the length field is one byte) of big-endian-packed word
// data.
func (c *Client) Download(addr uint32, data []byte) (frame.Frame, error) {
	payload := make([]byte, 0, 5+len(data))
	addrBytes := make([]byte, 4)
	frame.PutLE32(addrBytes, addr)
	payload = append(payload, addrBytes...)
	payload = append(payload, byte(len(data)))
	payload = append(payload, data...)
	return c.Call(37, payload, defaultTimeout)
}

// Upload sends opcode 38, requesting lengthBytes (must be even) of
// word data starting at addr.
func (c *Client) Upload(addr uint32, lengthBytes byte) (frame.Frame, error) {
	addrBytes := make([]byte, 4)
	frame.PutLE32(addrBytes, addr)
	payload := append(addrBytes, lengthBytes)
	return c.Call(38, payload, defaultTimeout)
}

// Jump sends opcode 1 with a little-endian 32-bit address.
func (c *Client) Jump(addr uint32) (frame.Frame, error) {
	payload := make([]byte, 4)
	frame.PutLE32(payload, addr)
	return c.Call(1, payload, defaultTimeout)
}

// Reset sends opcode 70.
func (c *Client) Reset() (frame.Frame, error) { return c.Call(70, nil, defaultTimeout) }
