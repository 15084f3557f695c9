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

import "errors"

// segmentHeader is overlaid directly on the first bytes of the mapped
// segment via unsafe.Pointer. Every field is a plain 8-byte word so that the
// struct's own size is 32 bytes, keeping the data region 16-byte aligned
// with no explicit padding fields required.
//
// cursorWrap and maxSlotSize are constants after Init; writerCursor and
// writerPID are the only fields ever mutated after Init, and only by the
// writer, using atomic stores with release semantics.
type segmentHeader struct {
	cursorWrap   uint64
	maxSlotSize  uint64
	writerCursor uint64
	writerPID    int64
}

const (
	// headerSize is sizeof(segmentHeader); the data region starts here.
	headerSize = 32

	// slotPrefixSize is the 16-byte-aligned prefix at the start of every
	// slot. Only the first 8 bytes are used, to hold the slot's unpadded
	// payload size; the remaining 8 bytes are unused padding that keeps
	// the payload itself 16-byte aligned.
	slotPrefixSize = 16

	// alignment is the byte alignment required of cursor_wrap,
	// max_slot_size and every slot span.
	alignment = 16
)

// DefaultSegmentName is the fixed shared-memory segment name used by the
// ingest pipeline and its subscribers.
const DefaultSegmentName = "/cobs_to_shm"

var (
	// ErrNotAvailable is returned by Attach when the named segment does
	// not exist, or exists but has no live writer attached to it. Callers
	// should treat this the same as EOF.
	ErrNotAvailable = errors.New("ring: segment not available")

	// ErrEmpty is returned by Recv when the reader has caught up to the
	// writer; there is no new slot to consume.
	ErrEmpty = errors.New("ring: no new slot")

	// ErrOverrun is returned by Recv when the writer may have lapped the
	// slot the reader just started reading. The reader must discard
	// whatever it read.
	ErrOverrun = errors.New("ring: reader overrun")
)

func roundUp16(n uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
