package pipeline

import (
	"fmt"
	"io"

	"github.com/oceanacoustics/cobsfan/internal/cobs"
)

// Source produces successive frame payloads for the pipeline to commit.
// Next must write into dst and return the number of payload bytes
// written.
//
// The returned timestampMicros lets a replay source forward a frame's
// original arrival time instead of the live clock; zero means "no
// preserved timestamp, stamp with the live clock now", which is always the
// case for a live serial source and never the case for a genuine replay
// frame (real captures never have a zero Unix-microsecond timestamp).
type Source interface {
	Next(dst []byte) (n int, timestampMicros int64, err error)
}

// cobsSource decodes byte-stuffed frames from a live serial stream. This is
// the production source for cmd/cobs-to-shm.
type cobsSource struct {
	r    io.Reader
	warn cobs.Warnf
}

// NewCOBSSource returns a Source that decodes byte-stuffed frames read from
// r, reporting resynchronization warnings through warn (which may be nil).
func NewCOBSSource(r io.Reader, warn cobs.Warnf) Source {
	return &cobsSource{r: r, warn: warn}
}

func (s *cobsSource) Next(dst []byte) (int, int64, error) {
	n, err := cobs.ReadFrame(dst, s.r, s.warn)
	if err != nil {
		return 0, 0, err
	}
	return n, 0, nil
}

// replaySource reads pre-decoded frames in the on-disk format documented in
// §6: an 8-byte header followed by size bytes of payload and
// (-size) mod 8 bytes of padding. This is the production source for
// cmd/bin-to-shm, used to replay a previously captured log.
//
// Unlike the original C bin_to_shm, which never copies the frame it just
// read back into the outgoing slot's header, replaySource forwards the
// frame's original timestamp so that replayed output carries the same
// header a live capture would have recorded, rather than whatever the
// live clock reads at replay time.
type replaySource struct {
	r      io.Reader
	header [HeaderSize]byte
}

// NewReplaySource returns a Source that reads frames in the on-disk format
// from r.
func NewReplaySource(r io.Reader) Source {
	return &replaySource{r: r}
}

func (s *replaySource) Next(dst []byte) (int, int64, error) {
	if _, err := io.ReadFull(s.r, s.header[:]); err != nil {
		return 0, 0, err
	}
	size, timestampMicros := DecodeHeader(s.header[:])
	if size > len(dst) {
		return 0, 0, fmt.Errorf("pipeline: replay frame of %d bytes exceeds destination capacity %d", size, len(dst))
	}
	if _, err := io.ReadFull(s.r, dst[:size]); err != nil {
		return 0, 0, err
	}
	padding := roundUp8(size) - size
	if padding > 0 {
		var pad [8]byte
		if _, err := io.ReadFull(s.r, pad[:padding]); err != nil {
			return 0, 0, err
		}
	}
	if timestampMicros == 0 {
		// A genuine capture never stamps exactly the Unix epoch; treat
		// this as "no preserved timestamp" and let the caller stamp
		// with the live clock instead of replaying a meaningless one.
		return size, 0, nil
	}
	return size, timestampMicros, nil
}
