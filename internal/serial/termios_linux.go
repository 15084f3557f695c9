package serial

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

// makeRaw reproduces glibc's cfmakeraw: disable all input/output
// processing, line editing and line discipline hooks, and signal
// generation, leaving a pure byte pipe.
func makeRaw(ts *unix.Termios) {
	ts.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	ts.Oflag &^= unix.OPOST
	ts.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	ts.Cflag &^= unix.CSIZE | unix.PARENB
	ts.Cflag |= unix.CS8
}

// setSpeed sets both the input and output speed to baud, a termios speed
// constant (e.g. unix.B115200), mirroring cfsetspeed.
func setSpeed(ts *unix.Termios, baud uint32) {
	ts.Cflag = (ts.Cflag &^ unix.CBAUD) | baud
	ts.Ispeed = baud
	ts.Ospeed = baud
}
