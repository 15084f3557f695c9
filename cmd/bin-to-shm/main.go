package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oceanacoustics/cobsfan/internal/clock"
	"github.com/oceanacoustics/cobsfan/internal/cliflags"
	"github.com/oceanacoustics/cobsfan/internal/pipeline"
	"github.com/oceanacoustics/cobsfan/internal/ring"
)

var flags struct {
	ringName     string
	ringCapacity *cliflags.ByteSize
	maxPayload   *cliflags.ByteSize
}

func init() {
	flags.ringCapacity = cliflags.NewByteSize(4 * 1024 * 1024)
	flags.maxPayload = cliflags.NewByteSize(pipeline.MaxPayloadSize + pipeline.HeaderSize)
}

var rootCmd = &cobra.Command{
	Use:   "bin-to-shm [<staging-dir>]",
	Short: "Replay a previously captured on-disk frame log from standard input into a shared-memory ring",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stagingDir := ""
		if len(args) == 1 {
			stagingDir = args[0]
		}
		return run(stagingDir)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.ringName, "ring-name", ring.DefaultSegmentName, "shared-memory segment name")
	rootCmd.Flags().Var(flags.ringCapacity, "ring-capacity", "ring data-region capacity, a power of two (e.g. 4MiB)")
	rootCmd.Flags().Var(flags.maxPayload, "max-payload", "largest payload size the ring will ever publish, a multiple of 16")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(stagingDir string) error {
	config := zap.NewProductionConfig()
	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("bin-to-shm: init logging: %w", err)
	}
	log := logger.Sugar()
	defer log.Sync()

	w, err := ring.InitWriter(flags.ringName, flags.ringCapacity.Bytes(), flags.maxPayload.Bytes())
	if err != nil {
		return fmt.Errorf("bin-to-shm: ring init: %w", err)
	}

	stdout := bufio.NewWriter(os.Stdout)
	onFileClose := func(path string) {
		fmt.Fprintln(stdout, path)
		stdout.Flush()
	}

	p := pipeline.New(pipeline.Config{
		Ring:        w,
		Source:      pipeline.NewReplaySource(bufio.NewReader(os.Stdin)),
		Clock:       clock.Real{},
		Logger:      log,
		LogDir:      stagingDir,
		OnFileClose: onFileClose,
	})

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return p.Run(ctx)
	})
	wg.Go(func() error {
		return waitInterrupted(ctx)
	})

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		var interrupted errInterrupted
		if errors.As(err, &interrupted) {
			return nil
		}
		return err
	}
	return nil
}

type errInterrupted struct {
	os.Signal
}

func (e errInterrupted) Error() string {
	if e.Signal == nil {
		return "interrupted"
	}
	return e.Signal.String()
}

func waitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		return errInterrupted{Signal: sig}
	case <-ctx.Done():
		return ctx.Err()
	}
}
