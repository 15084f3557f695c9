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

// Package ring implements a fixed-capacity, single-writer/N-reader circular
// byte region backed by a named POSIX shared-memory segment.
//
// One process holds the Writer and publishes length-prefixed slots by
// Acquire-ing a pointer into the next slot, filling it in place, and
// Send-ing the number of bytes written. Zero or more other processes Attach
// as Readers and Recv slots in commit order. The writer never blocks on,
// waits for, or otherwise observes any reader: a reader that falls behind
// detects its own overrun on its next Recv or via KeptUp, and is
// responsible for discarding whatever it read.
//
// There is no locking anywhere in this package. The single atomic
// writer_cursor field is the only synchronization between the writer and
// its readers; everything else in the segment is either a constant fixed at
// Init time or is owned exclusively by the writer.
package ring

// vim: foldmethod=marker
