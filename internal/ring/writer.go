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
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Writer is the single-writer side of a ring segment. A Writer must never
// be shared between goroutines: Acquire/Send is a strict two-step protocol
// with no internal locking, matching the single-threaded writer loop this
// package is designed for.
type Writer struct {
	file *os.File
	base []byte
	hdr  *segmentHeader
	data []byte

	cursorWrap  uint64
	maxSlotSize uint64

	// cursor mirrors hdr.writerCursor. Only the writer ever stores to
	// hdr.writerCursor, so we keep a private, non-atomic copy and
	// only perform the atomically-ordered store that readers observe.
	cursor uint64

	acquired bool
}

// InitWriter creates (or re-creates) the named shared-memory segment and
// returns a Writer bound to it. Any preexisting segment of the same name is
// unlinked first, per the documented lifecycle: a subsequent writer start
// unlinks and recreates rather than attempting recovery.
//
// capacity is the logical size in bytes of the ring's data region, the
// cursor_wrap of §3; it must be nonzero and a power of two. maxPayload is
// the largest payload size any single Send will publish, and must be a
// multiple of 16.
func InitWriter(name string, capacity uint64, maxPayload uint64) (*Writer, error) {
	if !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("ring: capacity must be a nonzero power of two, got %d", capacity)
	}
	if maxPayload%alignment != 0 {
		return nil, fmt.Errorf("ring: max payload size must be a multiple of %d, got %d", alignment, maxPayload)
	}

	maxSlotSize := maxPayload + slotPrefixSize
	totalSize := int64(headerSize) + int64(capacity) + int64(maxSlotSize)

	f, err := shmCreate(name, totalSize)
	if err != nil {
		return nil, fmt.Errorf("ring: create %s: %w", name, err)
	}

	base, err := mmapShared(f, int(totalSize), unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mmap %s: %w", name, err)
	}

	hdr := (*segmentHeader)(unsafe.Pointer(&base[0]))
	hdr.cursorWrap = capacity
	hdr.maxSlotSize = maxSlotSize
	atomic.StoreUint64(&hdr.writerCursor, 0)

	w := &Writer{
		file:        f,
		base:        base,
		hdr:         hdr,
		data:        base[headerSize:],
		cursorWrap:  capacity,
		maxSlotSize: maxSlotSize,
	}

	// Publish last, with release ordering: until this store is visible,
	// no other field of the segment is meaningful to readers.
	atomic.StoreInt64(&hdr.writerPID, int64(unix.Getpid()))

	return w, nil
}

// Acquire returns a view into the payload region of the next slot, sized to
// the writer's configured maximum payload. The writer may write any number
// of bytes up to that length before calling Send; writing beyond it
// corrupts the following slot and is a programming error.
//
// Acquire performs no atomic operation and does not block. Calling it again
// before a matching Send simply returns the same slot.
func (w *Writer) Acquire() []byte {
	w.acquired = true
	pos := w.cursor % w.cursorWrap
	start := pos + slotPrefixSize
	return w.data[start : start+w.maxSlotSize-slotPrefixSize]
}

// Send publishes the first n bytes of the most recently Acquired slot. It
// writes the slot's size prefix and then atomically advances the
// publicly-visible writer cursor with release ordering, which is the only
// externally observable effect of a call to Send.
func (w *Writer) Send(n int) error {
	if !w.acquired {
		return fmt.Errorf("ring: Send called without a matching Acquire")
	}
	w.acquired = false

	size := uint64(n)
	sizePadded := roundUp16(slotPrefixSize + size)
	if sizePadded > w.maxSlotSize {
		return fmt.Errorf("ring: slot of %d bytes exceeds max slot size %d", n, w.maxSlotSize-slotPrefixSize)
	}

	pos := w.cursor % w.cursorWrap
	binary.LittleEndian.PutUint64(w.data[pos:pos+8], size)

	w.cursor += sizePadded
	atomic.StoreUint64(&w.hdr.writerCursor, w.cursor)
	return nil
}

// Close indicates to readers that the writer is going away by atomically
// clearing writer_pid, then unmaps the segment. The segment name itself is
// left in the OS namespace; the next writer to Init this name unlinks it.
func (w *Writer) Close() error {
	atomic.StoreInt64(&w.hdr.writerPID, 0)
	if err := unix.Munmap(w.base); err != nil {
		return fmt.Errorf("ring: munmap: %w", err)
	}
	return w.file.Close()
}

// vim: foldmethod=marker
