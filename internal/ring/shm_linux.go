// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package ring

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// shmDir is where POSIX shm_open(3) segments actually live on Linux; glibc's
// shm_open is implemented as an open(2) of a file under here, so we do the
// same thing directly rather than depending on cgo to reach the libc
// wrapper.
const shmDir = "/dev/shm"

// shmPath maps a POSIX shared-memory name (conventionally leading with a
// slash, e.g. "/cobs_to_shm") onto the backing tmpfs path.
func shmPath(name string) string {
	return filepath.Join(shmDir, strings.TrimPrefix(name, "/"))
}

// shmUnlink removes a previously created segment, if any. A missing segment
// is not an error: the writer unlinks unconditionally on every Init so that
// a stale segment from a prior crashed writer never lingers.
func shmUnlink(name string) error {
	err := unix.Unlink(shmPath(name))
	if err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

// shmCreate unlinks any existing segment of the given name, then creates
// and sizes a fresh one. Permissions are owner read+write, group and others
// read-only, matching the fixed segment contract in the external interface.
func shmCreate(name string, size int64) (*os.File, error) {
	if err := shmUnlink(name); err != nil {
		return nil, fmt.Errorf("unlink stale segment: %w", err)
	}

	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open(%s): %w", path, err)
	}
	f := os.NewFile(uintptr(fd), path)

	if err := unix.Ftruncate(fd, size); err != nil {
		f.Close()
		return nil, fmt.Errorf("ftruncate(%s, %d): %w", path, size, err)
	}

	return f, nil
}

// shmOpenReadOnly opens an existing segment for reading. It distinguishes
// "does not exist" from other open failures by returning os.ErrNotExist.
func shmOpenReadOnly(name string) (*os.File, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("open(%s): %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// mmapShared maps the entire file, sized to n bytes, shared between every
// mapper of the same underlying segment.
func mmapShared(f *os.File, n int, prot int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, n, prot, unix.MAP_SHARED)
}

// processAlive probes whether pid names a live process, using the
// conventional kill(pid, 0) trick: no signal is actually delivered. EPERM
// (process exists but we lack permission to signal it) counts as alive.
func processAlive(pid int64) (bool, error) {
	err := unix.Kill(int(pid), 0)
	if err == nil || err == unix.EPERM {
		return true, nil
	}
	if err == unix.ESRCH {
		return false, nil
	}
	return false, fmt.Errorf("kill(%d, 0): %w", pid, err)
}
