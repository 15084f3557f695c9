package cliflags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteSizeSetParsesHumanSizes(t *testing.T) {
	b := NewByteSize(0)
	require.NoError(t, b.Set("4MiB"))
	require.Equal(t, uint64(4*1024*1024), b.Bytes())
}

func TestByteSizeDefault(t *testing.T) {
	b := NewByteSize(65536)
	require.Equal(t, uint64(65536), b.Bytes())
}

func TestByteSizeRejectsGarbage(t *testing.T) {
	b := NewByteSize(0)
	require.Error(t, b.Set("not-a-size"))
}
