// Command surface is the bench tool a bring-up engineer drives the
// loader's wire protocol through: an interactive REPL over a real
// serial link, built the way cmd/cli's console shell is (raw-mode
// terminal, one command per line), tailored to unprotect/download/
// commit/identify/reset instead of the console's telnet shell.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"downholeloader/internal/buildconfig"
	"downholeloader/internal/frame"
	"downholeloader/internal/loaderlog"
	"downholeloader/surface/client"
	"downholeloader/transport/serialport"
)

func main() {
	devicePath := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Uint("baud", 115200, "Baud rate")
	addrFlag := flag.String("addr", fmt.Sprintf("%#x", buildconfig.PrimaryAddress()), "Loader bus address")
	flag.Parse()

	addr, err := parseByteFlag(*addrFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -addr: %v\n", err)
		os.Exit(1)
	}

	ring := loaderlog.NewRing(256)
	logger := slog.New(loaderlog.NewHandler(os.Stderr, ring, &slog.HandlerOptions{Level: slog.LevelInfo}))

	port, err := serialport.Open(*devicePath, uint32(*baud))
	if err != nil {
		logger.Error("open serial device", slog.String("path", *devicePath), slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer port.Close()
	logger.Info("serial device opened", slog.String("path", *devicePath), slog.Uint64("baud", uint64(*baud)))

	c := client.New(port, addr)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "surface requires an interactive terminal")
		os.Exit(1)
	}
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	t := term.NewTerminal(readWriter{os.Stdin, os.Stdout}, fmt.Sprintf("surface[%#x]> ", addr))

	fmt.Fprintf(t, "connected to %s at %d baud, device address %#x\r\n", *devicePath, *baud, addr)
	fmt.Fprintln(t, "commands: identify, selftest, activate, unprotect <id>, poll, commit <crc-hex>, download <addr-hex> <data-hex>, upload <addr-hex> <len>, jump <addr-hex>, reset, quit")

	for {
		line, err := t.ReadLine()
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		runCommand(t, c, line)
	}
}

// readWriter adapts two separate files into the single io.ReadWriter
// term.NewTerminal requires.
type readWriter struct {
	r *os.File
	w *os.File
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

func runCommand(t *term.Terminal, c *client.Client, line string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "identify":
		reply, err := c.Identify()
		printReply(t, "identify", reply, err)
	case "selftest":
		reply, err := c.SelfTestStatus()
		printReply(t, "selftest", reply, err)
	case "activate":
		reply, err := c.Activate()
		printReply(t, "activate", reply, err)
	case "unprotect":
		if len(args) != 1 {
			fmt.Fprintln(t, "usage: unprotect <partition-id>")
			return
		}
		if !confirmDestructive(t, args[0]) {
			fmt.Fprintln(t, "aborted")
			return
		}
		id, err := parseByteFlag(args[0])
		if err != nil {
			fmt.Fprintf(t, "bad partition id: %v\r\n", err)
			return
		}
		reply, err := c.Unprotect(id)
		printReply(t, "unprotect", reply, err)
	case "poll":
		reply, err := c.Poll()
		printReply(t, "poll", reply, err)
	case "commit":
		if len(args) != 1 {
			fmt.Fprintln(t, "usage: commit <expected-crc-hex>")
			return
		}
		crc, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 16)
		if err != nil {
			fmt.Fprintf(t, "bad crc: %v\r\n", err)
			return
		}
		reply, err := c.Commit(uint16(crc))
		printReply(t, "commit", reply, err)
	case "download":
		if len(args) != 2 {
			fmt.Fprintln(t, "usage: download <addr-hex> <data-hex>")
			return
		}
		addr, err := parseAddrFlag(args[0])
		if err != nil {
			fmt.Fprintf(t, "bad address: %v\r\n", err)
			return
		}
		data, err := hex.DecodeString(args[1])
		if err != nil {
			fmt.Fprintf(t, "bad data: %v\r\n", err)
			return
		}
		reply, err := c.Download(addr, data)
		printReply(t, "download", reply, err)
	case "upload":
		if len(args) != 2 {
			fmt.Fprintln(t, "usage: upload <addr-hex> <length-bytes>")
			return
		}
		addr, err := parseAddrFlag(args[0])
		if err != nil {
			fmt.Fprintf(t, "bad address: %v\r\n", err)
			return
		}
		length, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			fmt.Fprintf(t, "bad length: %v\r\n", err)
			return
		}
		reply, err := c.Upload(addr, byte(length))
		printReply(t, "upload", reply, err)
	case "jump":
		if len(args) != 1 {
			fmt.Fprintln(t, "usage: jump <addr-hex>")
			return
		}
		addr, err := parseAddrFlag(args[0])
		if err != nil {
			fmt.Fprintf(t, "bad address: %v\r\n", err)
			return
		}
		reply, err := c.Jump(addr)
		printReply(t, "jump", reply, err)
	case "reset":
		reply, err := c.Reset()
		printReply(t, "reset", reply, err)
	default:
		fmt.Fprintf(t, "unknown command %q\r\n", cmd)
	}
}

// confirmDestructive asks the operator to retype the target before an
// unprotect, the same deliberate-friction term.ReadPassword gives a
// console login (cmd/cli's authenticate prompt).
func confirmDestructive(t *term.Terminal, target string) bool {
	fmt.Fprintf(t, "type %q to confirm unprotecting partition %s: ", target, target)
	line, err := t.ReadLine()
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == target
}

func printReply(t *term.Terminal, label string, fr frame.Frame, err error) {
	if err != nil {
		fmt.Fprintf(t, "%s: error: %v\r\n", label, err)
		return
	}
	fmt.Fprintf(t, "%s: status/opcode=%d payload=% x\r\n", label, fr.OpcodeOrStatus, fr.Payload)
}

func parseByteFlag(s string) (byte, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(n), nil
}

func parseAddrFlag(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
