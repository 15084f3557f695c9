package cobs

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// encode is the reference encoder for the wire format documented in
// decode.go: it is not used by the pipeline (only the decoder runs in
// production, fed by real hardware), but it lets tests assert that decode
// is a right inverse of the documented encoding.
func encode(payload []byte) []byte {
	var out bytes.Buffer
	block := make([]byte, 0, maxBlockCount-1)
	flush := func() {
		out.WriteByte(byte(len(block) + 1))
		out.Write(block)
		block = block[:0]
	}
	for _, b := range payload {
		if b == 0 {
			flush()
			continue
		}
		block = append(block, b)
		if len(block) == maxBlockCount-1 {
			flush()
		}
	}
	flush()
	out.WriteByte(0)
	return out.Bytes()
}

func decodeAll(t *testing.T, wire []byte, capacity int) []byte {
	t.Helper()
	dst := make([]byte, capacity)
	n, err := ReadFrame(dst, bytes.NewReader(wire), nil)
	require.NoError(t, err)
	return dst[:n]
}

func TestReadFrameScenario1(t *testing.T) {
	got := decodeAll(t, []byte{0x03, 'A', 'B', 0x00}, 64)
	require.Equal(t, []byte("AB"), got)
}

func TestReadFrameScenario2SingleZeroPayload(t *testing.T) {
	got := decodeAll(t, []byte{0x01, 0x01, 0x00}, 64)
	require.Equal(t, []byte{0x00}, got)
}

func TestReadFrameScenario3MaximalRunNoTrailingZero(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 254)
	wire := append([]byte{0xFF}, data...)
	wire = append(wire, 0x00)

	got := decodeAll(t, wire, 512)
	require.Equal(t, data, got)
}

func TestReadFrameEmptyFrame(t *testing.T) {
	dst := make([]byte, 16)
	n, err := ReadFrame(dst, bytes.NewReader([]byte{0x00}), nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReadFrameIsRightInverseOfEncode(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("AB"),
		{0x00},
		{0x00, 0x00, 0x00},
		bytes.Repeat([]byte{'x'}, 254),
		bytes.Repeat([]byte{'x'}, 255),
		bytes.Repeat([]byte{'x'}, 600),
		append(bytes.Repeat([]byte{'y'}, 254), 0x00, 'z'),
		bytes.Repeat([]byte{0x00, 'a'}, 100),
	}
	for _, payload := range cases {
		wire := encode(payload)
		got := decodeAll(t, wire, 2048)
		if len(payload) == 0 {
			require.Empty(t, got)
			continue
		}
		require.Equal(t, payload, got)
	}
}

func TestReadFrameResynchronizesAfterOverlongFrame(t *testing.T) {
	// First frame is too long for a 4-byte destination; the decoder must
	// discard it up to its terminator and decode the next frame cleanly.
	wire := append([]byte{0x06, '1', '2', '3', '4', '5'}, 0x00)
	wire = append(wire, 0x03, 'h', 'i', 0x00)

	dst := make([]byte, 4)
	var warnings int
	n, err := ReadFrame(dst, bytes.NewReader(wire), func(string, ...any) { warnings++ })
	require.NoError(t, err)
	require.Equal(t, 1, warnings)
	require.Equal(t, []byte("hi"), dst[:n])
}

func TestReadFramePropagatesReadErrors(t *testing.T) {
	dst := make([]byte, 16)
	_, err := ReadFrame(dst, errReader{}, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("boom")
}

func TestReadFramePropagatesEOF(t *testing.T) {
	dst := make([]byte, 16)
	_, err := ReadFrame(dst, bytes.NewReader(nil), nil)
	require.ErrorIs(t, err, io.EOF)
}
