//go:build linux

// Package serialport implements bus.Transport over a real Linux
// serial device, for bench and integration use against the firmware
// core. It configures the line the same way any raw terminal session
// does (8N1, no flow control, no line discipline), using
// golang.org/x/sys/unix's termios ioctls rather than hand-rolling the
// syscall numbers.
package serialport

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Port is a single opened, raw-mode serial device.
type Port struct {
	file    *os.File
	fd      int
	name    string
	enabled bool
}

// baudRates maps the handful of rates this tool actually uses to their
// termios B-constants.
var baudRates = map[uint32]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

var ErrUnsupportedBaud = errors.New("serialport: unsupported baud rate")

// Open opens path (e.g. "/dev/ttyUSB0") and configures it for raw,
// 8N1, no-flow-control operation at the given baud.
func Open(path string, baud uint32) (*Port, error) {
	rate, ok := baudRates[baud]
	if !ok {
		return nil, ErrUnsupportedBaud
	}

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	t.Ispeed = rate
	t.Ospeed = rate

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, err
	}

	return &Port{file: f, fd: fd, name: path, enabled: true}, nil
}

// Close releases the underlying file descriptor.
func (p *Port) Close() error { return p.file.Close() }

// TryReadByte implements bus.Transport: a single non-blocking read,
// since the port was opened O_NONBLOCK.
func (p *Port) TryReadByte() (byte, bool) {
	if !p.enabled {
		return 0, false
	}
	var b [1]byte
	n, err := unix.Read(p.fd, b[:])
	if n != 1 || err != nil {
		return 0, false
	}
	return b[0], true
}

// Send writes data in full, looping over partial writes.
func (p *Port) Send(data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(p.fd, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// WaitTransmitDone blocks until the kernel's output queue has drained
// onto the wire.
func (p *Port) WaitTransmitDone() {
	unix.IoctlTcdrain(p.fd)
}

func (p *Port) Enable()      { p.enabled = true }
func (p *Port) Disable()     { p.enabled = false }
func (p *Port) Name() string { return p.name }
