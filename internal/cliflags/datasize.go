// Package cliflags adapts human-sized byte quantities to pflag, so that CLI
// flags like --ring-capacity can be given as "4MiB" instead of a raw byte
// count.
package cliflags

import "github.com/c2h5oh/datasize"

// ByteSize is a pflag.Value wrapping datasize.ByteSize.
type ByteSize struct {
	Value datasize.ByteSize
}

// NewByteSize returns a ByteSize flag defaulting to def.
func NewByteSize(def datasize.ByteSize) *ByteSize {
	return &ByteSize{Value: def}
}

func (b *ByteSize) String() string {
	return b.Value.String()
}

func (b *ByteSize) Set(s string) error {
	return b.Value.UnmarshalText([]byte(s))
}

func (b *ByteSize) Type() string {
	return "size"
}

// Bytes returns the flag's value as a plain byte count.
func (b *ByteSize) Bytes() uint64 {
	return b.Value.Bytes()
}
