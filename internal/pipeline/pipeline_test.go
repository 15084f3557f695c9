package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oceanacoustics/cobsfan/internal/clock"
	"github.com/oceanacoustics/cobsfan/internal/ring"
)

// fakeSource replays a fixed sequence of payloads (each paired with an
// optional preserved timestamp), then returns io.EOF. A zero-length
// payload entry models an empty frame.
type fakeSource struct {
	frames []fakeFrame
	i      int
}

type fakeFrame struct {
	payload   []byte
	timestamp int64
}

func (s *fakeSource) Next(dst []byte) (int, int64, error) {
	if s.i >= len(s.frames) {
		return 0, 0, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	n := copy(dst, f.payload)
	return n, f.timestamp, nil
}

func testRingName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("/cobsfan-pipeline-test-%d", time.Now().UnixNano())
}

func TestPipelineCommitsFramesAndClosesRingOnEOF(t *testing.T) {
	name := testRingName(t)
	w, err := ring.InitWriter(name, 65536, 4096)
	require.NoError(t, err)

	r, err := ring.Attach(name)
	require.NoError(t, err)
	defer r.Detach()

	src := &fakeSource{frames: []fakeFrame{
		{payload: []byte("hi")},
		{payload: []byte("world")},
	}}

	p := New(Config{
		Ring:   w,
		Source: src,
		Clock:  clock.NewManual(1_700_000_000_000_000),
		Logger: zap.NewNop().Sugar(),
	})

	require.NoError(t, p.Run(context.Background()))

	for _, want := range []string{"hi", "world"} {
		got, err := r.Recv()
		require.NoError(t, err)
		size, _ := DecodeHeader(got[:HeaderSize])
		require.Equal(t, len(want), size)
		require.Equal(t, []byte(want), got[HeaderSize:HeaderSize+size])
	}

	eof, err := r.EOF()
	require.NoError(t, err)
	require.True(t, eof, "the ring must be closed once the source reaches EOF")
}

func TestPipelineClockRegressionWarnsButContinues(t *testing.T) {
	w, err := ring.InitWriter(testRingName(t), 65536, 4096)
	require.NoError(t, err)

	src := &fakeSource{frames: []fakeFrame{
		{payload: []byte("first"), timestamp: 2_000_000},
		{payload: []byte("second"), timestamp: 1_000_000}, // regresses
	}}

	core, logs := observer.New(zap.WarnLevel)
	p := New(Config{
		Ring:   w,
		Source: src,
		Clock:  clock.NewManual(0),
		Logger: zap.New(core).Sugar(),
	})

	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, 1, logs.FilterMessage("pipeline: clock regression").Len())
	require.Equal(t, 2, src.i, "both frames must be consumed despite the regression")
}

func TestPipelineLogsFramesToRotatingFile(t *testing.T) {
	w, err := ring.InitWriter(testRingName(t), 65536, 4096)
	require.NoError(t, err)

	dir := t.TempDir()
	var closedPaths []string

	src := &fakeSource{frames: []fakeFrame{
		{payload: []byte("abc"), timestamp: 1_700_000_000_000_000},
		{payload: []byte("de"), timestamp: 1_700_000_001_000_000},
	}}

	p := New(Config{
		Ring:        w,
		Source:      src,
		Clock:       clock.NewManual(0),
		Logger:      zap.NewNop().Sugar(),
		LogDir:      dir,
		OnFileClose: func(path string) { closedPaths = append(closedPaths, path) },
	})

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, closedPaths, 1, "shutdown must close the still-open log file")

	data, err := os.ReadFile(closedPaths[0])
	require.NoError(t, err)

	size1, ts1 := DecodeHeader(data[0:8])
	require.Equal(t, 3, size1)
	require.Equal(t, []byte("abc"), data[8:11])
	require.Equal(t, int64(1_700_000_000_000_000), ts1)

	// payload "abc" (3 bytes) pads to 8, so the next header starts at 16.
	size2, _ := DecodeHeader(data[16:24])
	require.Equal(t, 2, size2)
	require.Equal(t, []byte("de"), data[24:26])
}

func TestPipelineEmptyFrameDoesNotCommit(t *testing.T) {
	name := testRingName(t)
	w, err := ring.InitWriter(name, 65536, 4096)
	require.NoError(t, err)

	r, err := ring.Attach(name)
	require.NoError(t, err)
	defer r.Detach()

	src := &fakeSource{frames: []fakeFrame{
		{payload: nil},         // empty frame: must not commit
		{payload: []byte("x")}, // the next real frame must still land
	}}

	p := New(Config{
		Ring:   w,
		Source: src,
		Clock:  clock.NewManual(0),
		Logger: zap.NewNop().Sugar(),
	})

	require.NoError(t, p.Run(context.Background()))

	got, err := r.Recv()
	require.NoError(t, err)
	size, _ := DecodeHeader(got[:HeaderSize])
	require.Equal(t, 1, size)
	require.Equal(t, []byte("x"), got[HeaderSize:HeaderSize+1])

	_, err = r.Recv()
	require.ErrorIs(t, err, ring.ErrEmpty, "the empty frame must not have produced a slot")
}

func TestPipelineCommitsAreObservableByReader(t *testing.T) {
	name := testRingName(t)
	w, err := ring.InitWriter(name, 65536, 4096)
	require.NoError(t, err)

	r, err := ring.Attach(name)
	require.NoError(t, err)
	defer r.Detach()

	src := &fakeSource{frames: []fakeFrame{
		{payload: []byte("hi"), timestamp: 1_700_000_000_000_016},
	}}

	p := New(Config{
		Ring:   w,
		Source: src,
		Clock:  clock.NewManual(0),
		Logger: zap.NewNop().Sugar(),
	})
	require.NoError(t, p.Run(context.Background()))

	got, err := r.Recv()
	require.NoError(t, err)
	require.True(t, r.KeptUp())

	size, ts := DecodeHeader(got[:8])
	require.Equal(t, 2, size)
	require.Equal(t, []byte("hi"), got[8:10])
	require.Equal(t, int64(1_700_000_000_000_016), ts)
}

func TestPipelineStopsOnContextCancellation(t *testing.T) {
	w, err := ring.InitWriter(testRingName(t), 65536, 4096)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{
		Ring:   w,
		Source: &fakeSource{},
		Clock:  clock.NewManual(0),
		Logger: zap.NewNop().Sugar(),
	})

	require.NoError(t, p.Run(ctx))
}
