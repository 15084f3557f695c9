package pipeline

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCOBSSourceDecodesFramesWithZeroTimestamp(t *testing.T) {
	wire := []byte{0x03, 'A', 'B', 0x00}
	src := NewCOBSSource(bytes.NewReader(wire), nil)

	dst := make([]byte, 64)
	n, ts, err := src.Next(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), dst[:n])
	require.Zero(t, ts)
}

func TestCOBSSourcePropagatesEOF(t *testing.T) {
	src := NewCOBSSource(bytes.NewReader(nil), nil)
	_, _, err := src.Next(make([]byte, 16))
	require.ErrorIs(t, err, io.EOF)
}

func TestReplaySourceReadsOnDiskFormatAndPreservesTimestamp(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	EncodeHeader(header, 3, 1_700_000_000_000_000)
	buf.Write(header)
	buf.WriteString("abc")
	buf.Write(make([]byte, roundUp8(3)-3)) // padding

	src := NewReplaySource(&buf)
	dst := make([]byte, 64)
	n, ts, err := src.Next(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), dst[:n])
	require.Equal(t, int64(1_700_000_000_000_000), ts)
}

func TestReplaySourceTreatsZeroTimestampAsUnpreserved(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	EncodeHeader(header, 1, 0)
	buf.Write(header)
	buf.WriteString("x")
	buf.Write(make([]byte, roundUp8(1)-1))

	src := NewReplaySource(&buf)
	_, ts, err := src.Next(make([]byte, 16))
	require.NoError(t, err)
	require.Zero(t, ts, "a zero-valued header timestamp must not be replayed as a real one")
}

func TestReplaySourcePropagatesEOFBetweenFrames(t *testing.T) {
	src := NewReplaySource(bytes.NewReader(nil))
	_, _, err := src.Next(make([]byte, 16))
	require.ErrorIs(t, err, io.EOF)
}

func TestReplaySourceRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	EncodeHeader(header, 100, 1)
	buf.Write(header)
	buf.Write(make([]byte, 100))

	src := NewReplaySource(&buf)
	_, _, err := src.Next(make([]byte, 16))
	require.Error(t, err)
}
