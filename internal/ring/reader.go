// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reader is one subscriber's private view onto a ring segment. Readers
// never mutate the segment and are never visible to the writer or to each
// other; a Reader must not be shared between goroutines, but any number of
// independent Readers (in this or other processes) may Attach at once.
type Reader struct {
	base []byte
	hdr  *segmentHeader
	data []byte

	cursorWrap  uint64
	maxSlotSize uint64

	readerCursor uint64
	// lastSlotSpan is the padded span of the most recently Recv'd slot;
	// readerCursor - lastSlotSpan is the cursor value at the start of
	// that slot, which is what KeptUp checks against.
	lastSlotSpan uint64
}

// Attach opens the named segment read-only and positions the reader at the
// writer's current tail; backlog written before Attach is never replayed.
//
// It returns ErrNotAvailable if the segment does not exist, or exists but
// has no live writer currently attached (writer_pid is zero, or names a
// pid that is no longer alive). Any other failure is a genuine error.
func Attach(name string) (*Reader, error) {
	f, err := shmOpenReadOnly(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotAvailable
		}
		return nil, fmt.Errorf("ring: attach %s: %w", name, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ring: stat %s: %w", name, err)
	}

	base, err := mmapShared(f, int(stat.Size()), unix.PROT_READ)
	if err != nil {
		return nil, fmt.Errorf("ring: mmap %s: %w", name, err)
	}

	hdr := (*segmentHeader)(unsafe.Pointer(&base[0]))

	// Acquire load: must be the first field we read, and nothing else in
	// the segment is meaningful until this is observed nonzero.
	pid := atomic.LoadInt64(&hdr.writerPID)
	if pid == 0 {
		unix.Munmap(base)
		return nil, ErrNotAvailable
	}

	alive, err := processAlive(pid)
	if err != nil {
		unix.Munmap(base)
		return nil, fmt.Errorf("ring: attach %s: %w", name, err)
	}
	if !alive {
		unix.Munmap(base)
		return nil, ErrNotAvailable
	}

	r := &Reader{
		base:        base,
		hdr:         hdr,
		data:        base[headerSize:],
		cursorWrap:  hdr.cursorWrap,
		maxSlotSize: hdr.maxSlotSize,
	}
	r.readerCursor = atomic.LoadUint64(&hdr.writerCursor)
	return r, nil
}

// Recv returns the next committed slot's payload, or ErrEmpty if the
// reader has caught up to the writer, or ErrOverrun if the writer may have
// lapped the slot while it was being read. It never blocks.
//
// The returned slice aliases the mapped segment and is only valid until the
// next call to Recv or KeptUp on this Reader.
func (r *Reader) Recv() ([]byte, error) {
	writerCursor := atomic.LoadUint64(&r.hdr.writerCursor)
	if writerCursor == r.readerCursor {
		return nil, ErrEmpty
	}

	pos := r.readerCursor % r.cursorWrap
	size := binary.LittleEndian.Uint64(r.data[pos : pos+8])

	// A corrupted read of the size prefix (possible only in the overrun
	// race) could otherwise claim a size large enough to slice out of
	// bounds. Treat that as an overrun rather than trusting it.
	if size > r.maxSlotSize-slotPrefixSize {
		return nil, ErrOverrun
	}

	// Re-load and check the safety window before trusting the size we
	// just read, or touching any payload byte.
	writerCursorAfter := atomic.LoadUint64(&r.hdr.writerCursor)
	if writerCursorAfter+r.maxSlotSize-r.readerCursor-slotPrefixSize > r.cursorWrap {
		return nil, ErrOverrun
	}

	sizePadded := roundUp16(slotPrefixSize + size)
	payload := r.data[pos+slotPrefixSize : pos+slotPrefixSize+size]

	r.lastSlotSpan = sizePadded
	r.readerCursor += sizePadded
	return payload, nil
}

// KeptUp reports whether the slot most recently returned by Recv could not
// have been overwritten by the writer while it was being read. Callers must
// invoke this after they are done reading the payload Recv returned and
// before publishing any result derived from it; if it returns false, the
// caller must discard any such result.
func (r *Reader) KeptUp() bool {
	writerCursor := atomic.LoadUint64(&r.hdr.writerCursor)
	slotStart := r.readerCursor - r.lastSlotSpan
	lag := writerCursor - slotStart
	return lag+r.maxSlotSize <= r.cursorWrap
}

// EOF reports whether the writer is gone: either it has cleared writer_pid
// on a clean shutdown, or the pid it last published is no longer alive.
func (r *Reader) EOF() (bool, error) {
	pid := atomic.LoadInt64(&r.hdr.writerPID)
	if pid == 0 {
		return true, nil
	}
	alive, err := processAlive(pid)
	if err != nil {
		// Per the external interface, an error probing liveness may be
		// treated by the caller as EOF; we still surface it so callers
		// that care about the distinction can.
		return true, err
	}
	return !alive, nil
}

// Detach unmaps the segment and releases the reader's private state. The
// Reader must not be used afterward.
func (r *Reader) Detach() error {
	return unix.Munmap(r.base)
}

// vim: foldmethod=marker
