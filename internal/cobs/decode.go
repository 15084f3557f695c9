package cobs

import "io"

// maxBlockCount is the largest value a block's count byte may hold; a block
// of exactly this size is a "maximal run" and carries no implied zero.
const maxBlockCount = 0xFF

// Warnf is an optional diagnostic sink. It is called with a printf-style
// format and args whenever ReadFrame resynchronizes after an over-long
// frame; it is never called for any other reason. A nil Warnf is silently
// ignored.
type Warnf func(format string, args ...any)

// ReadFrame reads one byte-stuffed frame from src and writes its decoded
// payload into dst, returning the number of payload bytes written.
//
// dst must be large enough to hold the largest payload this stream will
// ever carry; ReadFrame never grows or reallocates it. If decoding a frame
// would overflow dst, ReadFrame discards the remainder of that frame (up to
// and including its terminating zero byte) and transparently starts
// decoding the next one, logging through warn if it is non-nil.
//
// It returns 0, nil for an empty frame (two consecutive zero bytes on the
// wire). Any read error from src, including io.EOF, is returned as-is.
func ReadFrame(dst []byte, src io.Reader, warn Warnf) (int, error) {
	capacity := len(dst)
	write := 0
	pending := false // an implied zero is owed before the next block, unless that "next block" turns out to be the terminator

	var code [1]byte
	for {
		if _, err := io.ReadFull(src, code[:]); err != nil {
			return 0, err
		}
		k := int(code[0])

		if k == 0 {
			// The frame terminator. Any pending implied zero was only
			// ever a placeholder for "there is more frame to come" and
			// is not itself a payload byte.
			return write, nil
		}

		need := k - 1
		if pending {
			need++
		}
		if write+need > capacity {
			if warn != nil {
				warn("cobs: frame exceeds %d-byte capacity, resynchronizing", capacity)
			}
			if err := discardUntilZero(src); err != nil {
				return 0, err
			}
			write = 0
			pending = false
			continue
		}

		if pending {
			dst[write] = 0
			write++
			pending = false
		}

		if k > 1 {
			if _, err := io.ReadFull(src, dst[write:write+k-1]); err != nil {
				return 0, err
			}
			write += k - 1
		}

		if k != maxBlockCount {
			pending = true
		}
	}
}

// discardUntilZero consumes and drops bytes up to and including the next
// zero byte, resynchronizing the stream to a frame boundary.
func discardUntilZero(src io.Reader) error {
	var b [1]byte
	for {
		if _, err := io.ReadFull(src, b[:]); err != nil {
			return err
		}
		if b[0] == 0 {
			return nil
		}
	}
}
