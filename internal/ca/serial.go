package ca

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrBusy is returned when the signing lock is already held. Callers are
// expected to tell the client to retry rather than queue behind it.
var ErrBusy = errors.New("signing lock is held")

// serialLog maintains the monotonic serial counter in a plain text file.
// The file is shared with any other signer on the machine, so it must
// only be touched while the advisory lock is held.
type serialLog struct {
	path string
}

// Next reads the counter, increments it and writes it back.
func (s *serialLog) Next() (int64, error) {
	serial := int64(0)

	data, err := os.ReadFile(s.path)
	if err == nil {
		serial, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt serial file %s: %w", s.path, err)
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read serial file: %w", err)
	}

	serial++

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create serial dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(strconv.FormatInt(serial, 10)+"\n"), 0644); err != nil {
		return 0, fmt.Errorf("failed to write serial file: %w", err)
	}

	return serial, nil
}

// fileLock is an advisory flock on a token file, so that separately
// started processes sharing the serial log cooperate.
type fileLock struct {
	path string
	f    *os.File
}

// TryAcquire attempts to take the lock without blocking.
// Returns ErrBusy if another holder has it.
func (l *fileLock) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return ErrBusy
		}
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	l.f = f
	return nil
}

// Release drops the lock.
func (l *fileLock) Release() {
	if l.f == nil {
		return
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
	l.f = nil
}
