// Command shm-tail is the reference ring subscriber documented in §6: it
// attaches by name, calls Recv in a loop, and after each non-empty return
// confirms KeptUp before acting on the payload.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/oceanacoustics/cobsfan/internal/pipeline"
	"github.com/oceanacoustics/cobsfan/internal/ring"
)

var flags struct {
	ringName string
}

var rootCmd = &cobra.Command{
	Use:   "shm-tail",
	Short: "Attach to the COBS ingest ring and print a line per frame received",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.ringName, "ring-name", ring.DefaultSegmentName, "shared-memory segment name")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// idlePolicy governs how long shm-tail sleeps after an empty Recv before
// retrying, per §6's "recommended idle policy: sleep ~1ms on empty".
func idlePolicy() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         50 * time.Millisecond,
	}
	b.Reset()
	return b
}

func run(ctx context.Context) error {
	r, err := attachWithRetry(ctx, flags.ringName)
	if err != nil {
		return err
	}
	defer r.Detach()

	backoffState := idlePolicy()
	var frames, overruns, discarded uint64

	for {
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "shm-tail: %d frames, %d overruns, %d discarded\n", frames, overruns, discarded)
			return nil
		}

		payload, err := r.Recv()
		switch {
		case errors.Is(err, ring.ErrEmpty):
			eof, eofErr := r.EOF()
			if eofErr != nil || eof {
				fmt.Fprintln(os.Stderr, "shm-tail: writer gone, exiting")
				return nil
			}
			time.Sleep(backoffState.NextBackOff())
			continue
		case errors.Is(err, ring.ErrOverrun):
			overruns++
			backoffState.Reset()
			continue
		case err != nil:
			return fmt.Errorf("shm-tail: recv: %w", err)
		}

		backoffState.Reset()
		frames++

		size, timestampMicros := pipeline.DecodeHeader(payload[:pipeline.HeaderSize])
		kept := r.KeptUp()
		if !kept {
			discarded++
			continue
		}

		fmt.Printf("%s size=%d\n", time.UnixMicro(timestampMicros).UTC().Format(time.RFC3339Nano), size)
	}
}

// attachWithRetry retries Attach while the writer has not started yet,
// matching the subscriber's expectation that the writer's 200ms startup
// delay gives it time to connect.
func attachWithRetry(ctx context.Context, name string) (*ring.Reader, error) {
	for {
		r, err := ring.Attach(name)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ring.ErrNotAvailable) {
			return nil, fmt.Errorf("shm-tail: attach: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
