package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/oceanacoustics/cobsfan/internal/clock"
	"github.com/oceanacoustics/cobsfan/internal/cliflags"
	"github.com/oceanacoustics/cobsfan/internal/pipeline"
	"github.com/oceanacoustics/cobsfan/internal/ring"
	"github.com/oceanacoustics/cobsfan/internal/serial"
)

// version is overridden at build time via -ldflags -X, mirroring the
// original's GIT_VERSION banner.
var version = "dev"

var flags struct {
	ringName       string
	ringCapacity   *cliflags.ByteSize
	maxPayload     *cliflags.ByteSize
	startupDelay   time.Duration
	disableLogging bool
}

func init() {
	flags.ringCapacity = cliflags.NewByteSize(4 * 1024 * 1024) // 4MiB, matching the original's fixed 4194304
	flags.maxPayload = cliflags.NewByteSize(pipeline.MaxPayloadSize + pipeline.HeaderSize)
}

var rootCmd = &cobra.Command{
	Use:   "cobs-to-shm <serial-path>[,<baud>] [<staging-dir>]",
	Short: "Decode a COBS-framed serial stream into a shared-memory ring, with optional rolling-file logging",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serialSpec := args[0]
		stagingDir := ""
		if len(args) == 2 {
			stagingDir = args[1]
		}
		return run(serialSpec, stagingDir)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.ringName, "ring-name", ring.DefaultSegmentName, "shared-memory segment name")
	rootCmd.Flags().Var(flags.ringCapacity, "ring-capacity", "ring data-region capacity, a power of two (e.g. 4MiB)")
	rootCmd.Flags().Var(flags.maxPayload, "max-payload", "largest payload size the ring will ever publish, a multiple of 16")
	rootCmd.Flags().DurationVar(&flags.startupDelay, "startup-delay", 200*time.Millisecond, "delay before reading from the serial port, to let subscribers attach deterministically")
	rootCmd.Flags().BoolVar(&flags.disableLogging, "no-log", false, "disable rolling-file logging even if a staging directory is given")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(serialSpec, stagingDir string) error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("cobs-to-shm: init logging: %w", err)
	}
	defer log.Sync()

	log.Infow("cobs-to-shm starting", "version", version)

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		log.Warnw("failed to raise scheduling priority, adjust RLIMIT_NICE", "error", err)
	}
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.Warnw("failed to lock memory", "error", err)
	}

	path, speed, hasSpeed, err := serial.ParsePathSpec(serialSpec)
	if err != nil {
		return fmt.Errorf("cobs-to-shm: %w", err)
	}

	w, err := ring.InitWriter(flags.ringName, flags.ringCapacity.Bytes(), flags.maxPayload.Bytes())
	if err != nil {
		return fmt.Errorf("cobs-to-shm: ring init: %w", err)
	}

	time.Sleep(flags.startupDelay)

	port, err := serial.Open(path, speed, hasSpeed)
	if err != nil {
		w.Close()
		return fmt.Errorf("cobs-to-shm: %w", err)
	}

	stdout := bufio.NewWriter(os.Stdout)
	onFileClose := func(closedPath string) {
		fmt.Fprintln(stdout, closedPath)
		stdout.Flush()
	}

	logDir := ""
	if !flags.disableLogging && stagingDir != "" {
		logDir = stagingDir
	}

	p := pipeline.New(pipeline.Config{
		Ring:        w,
		Source:      pipeline.NewCOBSSource(port, log.Warnf),
		Clock:       clock.Real{},
		Logger:      log,
		LogDir:      logDir,
		OnFileClose: onFileClose,
	})

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return p.Run(ctx)
	})
	wg.Go(func() error {
		err := waitInterrupted(ctx)
		log.Infow("caught signal, shutting down", "signal", err)
		port.Close()
		return err
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

func newLogger() (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
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

// waitInterrupted blocks until SIGINT or SIGTERM is received or ctx is
// canceled.
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
