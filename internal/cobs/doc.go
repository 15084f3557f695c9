// Package cobs decodes the byte-stuffed frames carried on the serial link:
// a sequence of length-prefixed blocks of non-zero bytes, with an implied
// zero byte between consecutive blocks except after a maximal (255-byte)
// block, terminated by a literal zero byte on the wire.
//
// Decoding writes the payload directly into a caller-supplied destination,
// typically a view into a ring slot, so that the only copy in the whole
// ingest pipeline is from the kernel's read buffer into that destination.
package cobs
