// Package serial opens a point-to-point serial link in raw mode, with DTR
// asserted, the way the upstream firmware expects: DTR rising is its cue to
// reset and begin transmitting.
package serial

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// bauds maps the recognized decimal baud rates (§6) to their termios speed
// constant. 460800 and 921600 are listed unconditionally: this package
// builds only on Linux (see termios_linux.go), where x/sys/unix defines both.
var bauds = map[uint64]uint32{
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// ParseBaud resolves a decimal baud rate string to its termios speed
// constant, per the table in §6. An unrecognized rate is a fatal
// configuration error.
func ParseBaud(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("serial: invalid baud rate %q: %w", s, err)
	}
	speed, ok := bauds[n]
	if !ok {
		return 0, fmt.Errorf("serial: baud rate %d not supported", n)
	}
	return speed, nil
}

// ParsePathSpec splits a "<path>[,<baud>]" CLI argument into its serial
// device path and, if present, its requested baud rate's termios speed
// constant.
func ParsePathSpec(spec string) (path string, speed uint32, hasSpeed bool, err error) {
	path, baudStr, found := strings.Cut(spec, ",")
	if !found {
		return path, 0, false, nil
	}
	speed, err = ParseBaud(baudStr)
	if err != nil {
		return "", 0, false, err
	}
	return path, speed, true, nil
}

// Port is an open serial device, configured raw, with DTR asserted.
type Port struct {
	*os.File
}

// Open opens path in raw mode, optionally setting its speed, and asserts
// DTR (by enabling HUPCL|CLOCAL and leaving the line raised; the OS lowers
// DTR automatically once the fd is closed, mirroring the original's
// comment on this exact behavior).
//
// hasSpeed/speed come from ParsePathSpec; when hasSpeed is false the
// device's current speed is left untouched.
func Open(path string, speed uint32, hasSpeed bool) (*Port, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}

	ts, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcgetattr %s: %w", path, err)
	}

	makeRaw(ts)
	ts.Cflag |= unix.HUPCL | unix.CLOCAL

	if hasSpeed {
		setSpeed(ts, speed)
	}

	// Return once at least one byte is available, waiting up to 100ms for
	// more; see the original's comment on USB read boundaries.
	ts.Cc[unix.VMIN] = 1
	ts.Cc[unix.VTIME] = 1

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, ts); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcsetattr %s: %w", path, err)
	}

	if err := unix.IoctlTcflush(fd, unix.TCIOFLUSH); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: tcflush %s: %w", path, err)
	}

	return &Port{File: os.NewFile(uintptr(fd), path)}, nil
}
