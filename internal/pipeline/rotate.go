package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// bucketSeconds is the rotation interval: a new file is opened for every
// 10-second wall-clock bucket a frame's timestamp falls into.
const bucketSeconds = 10

// bucketOf returns the 10-second bucket index a microsecond timestamp
// falls into, per §4.3 step 5's floor(T / 10_000_000).
func bucketOf(timestampMicros int64) int64 {
	return timestampMicros / (bucketSeconds * 1_000_000)
}

// rotatingFile is the pipeline's append-only log sink. It is not
// safe for concurrent use; the pipeline's single writer loop is its only
// caller.
type rotatingFile struct {
	dir     string
	file    *os.File
	path    string
	bucket  int64
	onClose func(path string)
}

// newRotatingFile returns a rotatingFile that will lazily open files under
// dir, invoking onClose with the absolute path of each file as it closes
// it (the control-output line of §4.3/§6).
func newRotatingFile(dir string, onClose func(path string)) *rotatingFile {
	return &rotatingFile{dir: dir, onClose: onClose}
}

// Write appends a frame's already-assembled bytes (header + payload +
// padding) to the file for timestampMicros's bucket, rotating first if an
// open file belongs to a different bucket.
func (rf *rotatingFile) Write(timestampMicros int64, frame []byte) error {
	bucket := bucketOf(timestampMicros)
	if rf.file != nil && bucket != rf.bucket {
		if err := rf.Close(); err != nil {
			return err
		}
	}
	if rf.file == nil {
		if err := rf.open(bucket); err != nil {
			return err
		}
	}
	if _, err := rf.file.Write(frame); err != nil {
		return fmt.Errorf("pipeline: log write: %w", err)
	}
	return nil
}

func (rf *rotatingFile) open(bucket int64) error {
	name := bucketStartTime(bucket).Format("20060102T150405Z") + ".bin"
	path, err := filepath.Abs(filepath.Join(rf.dir, name))
	if err != nil {
		return fmt.Errorf("pipeline: resolve log file path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("pipeline: open log file %s: %w", path, err)
	}
	rf.file = f
	rf.path = path
	rf.bucket = bucket
	return nil
}

// bucketStartTime returns the UTC wall-clock instant at which the given
// bucket begins.
func bucketStartTime(bucket int64) time.Time {
	return time.Unix(bucket*bucketSeconds, 0).UTC()
}

// Close closes the currently open file, if any, and reports its path via
// onClose. It is idempotent.
func (rf *rotatingFile) Close() error {
	if rf.file == nil {
		return nil
	}
	path := rf.path
	err := rf.file.Close()
	rf.file = nil
	rf.path = ""
	if err != nil {
		return fmt.Errorf("pipeline: close log file %s: %w", path, err)
	}
	if rf.onClose != nil {
		rf.onClose(path)
	}
	return nil
}
