// Package pipeline drives the ingest loop documented in §4.3: acquire a
// ring slot, decode one frame directly into it, stamp a header, commit,
// optionally append to a rotating log file, and report rotation and
// slow-write diagnostics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/oceanacoustics/cobsfan/internal/clock"
	"github.com/oceanacoustics/cobsfan/internal/ring"
)

// slowWriteThreshold is the §4.3 step 11 bound on steps 5-10; exceeding it
// produces a warning, never a failure.
const slowWriteThreshold = 100 * time.Millisecond

// Config bundles everything a Pipeline needs. LogDir, if empty, disables
// file logging entirely: the pipeline still commits to the ring but never
// opens a file.
type Config struct {
	Ring   *ring.Writer
	Source Source
	Clock  clock.Clock
	Logger *zap.SugaredLogger

	LogDir string
	// OnFileClose is invoked with the absolute path of every closed log
	// file, once per close; the caller is expected to write it as a
	// line to its control output (§4.3, §6).
	OnFileClose func(path string)
}

// Pipeline is the single-threaded ingest loop. It is not safe for
// concurrent use.
type Pipeline struct {
	ring   *ring.Writer
	source Source
	clock  clock.Clock
	log    *zap.SugaredLogger

	file *rotatingFile

	lastTimestamp int64
	haveLast      bool
}

// New constructs a Pipeline from cfg. cfg.Logger must not be nil.
func New(cfg Config) *Pipeline {
	var rf *rotatingFile
	if cfg.LogDir != "" {
		rf = newRotatingFile(cfg.LogDir, cfg.OnFileClose)
	}
	return &Pipeline{
		ring:   cfg.Ring,
		source: cfg.Source,
		clock:  cfg.Clock,
		log:    cfg.Logger,
		file:   rf,
	}
}

// Run drives the ingest loop until ctx is canceled, the source reaches EOF,
// or an unrecoverable error occurs. It always attempts to close the ring
// and any open log file before returning, regardless of how it exits.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.shutdown()

	for {
		if err := ctx.Err(); err != nil {
			p.log.Infow("pipeline: shutdown requested")
			return nil
		}

		slot := p.ring.Acquire()
		dst := slot[HeaderSize:]
		if len(dst) > MaxPayloadSize {
			dst = dst[:MaxPayloadSize]
		}

		n, preservedTimestamp, err := p.source.Next(dst)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Infow("pipeline: shutdown requested, dropping partial frame")
				return nil
			}
			if errors.Is(err, io.EOF) {
				p.log.Infow("pipeline: source reached EOF")
				return nil
			}
			p.log.Errorw("pipeline: source read error", "error", err)
			return fmt.Errorf("pipeline: source read: %w", err)
		}
		if n == 0 {
			// Empty frame: loop without committing (§4.3 step 3).
			continue
		}

		start := time.Now()

		timestamp := preservedTimestamp
		if timestamp == 0 {
			timestamp = p.clock.NowMicros()
		}
		if p.haveLast && timestamp < p.lastTimestamp {
			p.log.Warnw("pipeline: clock regression", "previous", p.lastTimestamp, "current", timestamp)
		}
		p.lastTimestamp = timestamp
		p.haveLast = true

		header := slot[:HeaderSize]
		EncodeHeader(header, n, timestamp)

		padded := roundUp8(n)
		if padded > n {
			pad := slot[HeaderSize+n : HeaderSize+padded]
			for i := range pad {
				pad[i] = 0
			}
		}

		if err := p.ring.Send(HeaderSize + n); err != nil {
			return fmt.Errorf("pipeline: ring send: %w", err)
		}

		if p.file != nil {
			frame := slot[:HeaderSize+padded]
			if err := p.file.Write(timestamp, frame); err != nil {
				p.log.Errorw("pipeline: log write failed", "error", err)
				return err
			}
		}

		if elapsed := time.Since(start); elapsed > slowWriteThreshold {
			p.log.Warnw("pipeline: slow commit", "elapsed", elapsed)
		}
	}
}

func (p *Pipeline) shutdown() {
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			p.log.Errorw("pipeline: closing log file on shutdown", "error", err)
		}
	}
	if err := p.ring.Close(); err != nil {
		p.log.Errorw("pipeline: closing ring on shutdown", "error", err)
	}
}
