// Copyright (c) 2023 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package bootrecord

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/canonical/bootctl/internals/logger"
)

var (
	// ErrShortIO is returned when the device transfers fewer bytes than a
	// whole record. Block devices never split such a small transfer, so
	// this means the device or offset is wrong.
	ErrShortIO = errors.New("short transfer")

	// ErrInvalidHandle is returned by Store when given a handle that is nil,
	// already released, or was opened read-only.
	ErrInvalidHandle = errors.New("invalid record handle")
)

// IOError records a failed operation on the misc device.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Errno returns the underlying system error number, or 0 if the failure
// did not come from a system call.
func (e *IOError) Errno() unix.Errno {
	var errno unix.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

type device interface {
	io.ReadWriteSeeker
	Fd() uintptr
	Sync() error
	Close() error
}

var openDevice = func(path string, flag int) (device, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

var flockDevice = func(d device, how int) error {
	return retryTransient(func() error {
		return unix.Flock(int(d.Fd()), how)
	})
}

// Options configures a Store.
type Options struct {
	// Path is the misc partition device node (or an image file).
	Path string
	// Offset is the byte offset of the record inside Path.
	Offset int64
	// Checksum enables CRC verification on load and CRC update on store.
	Checksum bool
}

// Store loads and stores the boot control record at a fixed offset of the
// misc device.
type Store struct {
	path     string
	offset   int64
	checksum bool
}

// New returns a Store for the given options.
func New(opts Options) *Store {
	return &Store{
		path:     opts.Path,
		offset:   opts.Offset,
		checksum: opts.Checksum,
	}
}

// Path returns the device path the store operates on.
func (s *Store) Path() string {
	return s.path
}

// Handle is an open and locked descriptor on the misc device, returned by
// Load and consumed by Store.
type Handle struct {
	dev      device
	readOnly bool
}

// Close releases the descriptor and its lock. It is safe to call more
// than once.
func (h *Handle) Close() error {
	if h == nil || h.dev == nil {
		return nil
	}
	err := h.dev.Close()
	h.dev = nil
	return err
}

// Load opens the device, locks it (shared when readOnly, exclusive
// otherwise), and reads and validates the record. On success the returned
// handle stays open so the record can be written back through it; on
// failure nothing is left open.
func (s *Store) Load(readOnly bool) (*Record, *Handle, error) {
	flag, how := os.O_RDWR, unix.LOCK_EX
	if readOnly {
		flag, how = os.O_RDONLY, unix.LOCK_SH
	}

	logger.Debugf("Loading boot control record from %s at offset 0x%x.", s.path, s.offset)
	dev, err := openDevice(s.path, flag)
	if err != nil {
		return nil, nil, &IOError{Op: "open", Path: s.path, Err: err}
	}
	h := &Handle{dev: dev, readOnly: readOnly}
	if err := flockDevice(dev, how); err != nil {
		h.Close()
		return nil, nil, &IOError{Op: "lock", Path: s.path, Err: err}
	}

	r, err := s.read(dev)
	if err != nil {
		h.Close()
		return nil, nil, err
	}
	return r, h, nil
}

// Read loads the record read-only and releases the device immediately.
func (s *Store) Read() (*Record, error) {
	r, h, err := s.Load(true)
	if err != nil {
		return nil, err
	}
	if err := h.Close(); err != nil {
		return nil, &IOError{Op: "close", Path: s.path, Err: err}
	}
	return r, nil
}

func (s *Store) read(dev device) (*Record, error) {
	if _, err := dev.Seek(s.offset, io.SeekStart); err != nil {
		return nil, &IOError{Op: "seek", Path: s.path, Err: err}
	}
	buf := make([]byte, RecordSize)
	var n int
	err := retryTransient(func() error {
		var err error
		n, err = dev.Read(buf)
		return err
	})
	if err != nil && err != io.EOF {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	if n != RecordSize {
		return nil, &IOError{Op: "read", Path: s.path, Err: fmt.Errorf("%w: %d of %d bytes", ErrShortIO, n, RecordSize)}
	}

	r, err := Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("cannot load record from %s: %w", s.path, err)
	}
	if s.checksum {
		if err := r.VerifyChecksum(); err != nil {
			return nil, fmt.Errorf("cannot load record from %s: %w", s.path, err)
		}
	}
	return r, nil
}

// Store writes r back through h at the record offset and flushes it to
// stable storage. The handle is always released, whether or not the
// write succeeds.
func (s *Store) Store(h *Handle, r *Record) (err error) {
	if h == nil || h.dev == nil {
		return ErrInvalidHandle
	}
	defer func() {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Path: s.path, Err: cerr}
		}
	}()
	if h.readOnly {
		return ErrInvalidHandle
	}

	out := *r
	if s.checksum {
		out.UpdateChecksum()
	}
	buf := out.Encode()

	if _, err := h.dev.Seek(s.offset, io.SeekStart); err != nil {
		return &IOError{Op: "seek", Path: s.path, Err: err}
	}
	var n int
	err = retryTransient(func() error {
		var err error
		n, err = h.dev.Write(buf)
		return err
	})
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if n != RecordSize {
		return &IOError{Op: "write", Path: s.path, Err: fmt.Errorf("%w: %d of %d bytes", ErrShortIO, n, RecordSize)}
	}
	if err := h.dev.Sync(); err != nil {
		return &IOError{Op: "sync", Path: s.path, Err: err}
	}
	logger.Debugf("Stored boot control record to %s.", s.path)
	return nil
}

// retryTransient calls f until it returns something other than EAGAIN or
// EINTR. There is no bound on the number of attempts.
func retryTransient(f func() error) error {
	for {
		err := f()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}
