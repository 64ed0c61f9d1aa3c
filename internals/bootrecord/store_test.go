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

package bootrecord_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	. "gopkg.in/check.v1"

	"github.com/canonical/bootctl/internals/bootrecord"
)

const testOffset = 2048

type storeSuite struct {
	path     string
	store    *bootrecord.Store
	restores []func()
}

var _ = Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *C) {
	s.path = filepath.Join(c.MkDir(), "misc.img")
	s.store = bootrecord.New(bootrecord.Options{Path: s.path, Offset: testOffset})
	s.restores = nil
}

func (s *storeSuite) TearDownTest(c *C) {
	for i := len(s.restores) - 1; i >= 0; i-- {
		s.restores[i]()
	}
}

// writeImage creates a misc image holding rec at testOffset, surrounded by
// non-zero filler so that stray writes are noticed.
func writeImage(c *C, path string, rec []byte) []byte {
	img := bytes.Repeat([]byte{0x5A}, 4096)
	copy(img[testOffset:], rec)
	err := os.WriteFile(path, img, 0644)
	c.Assert(err, IsNil)
	return img
}

func readImage(c *C, path string) []byte {
	img, err := os.ReadFile(path)
	c.Assert(err, IsNil)
	return img
}

func (s *storeSuite) TestLoadAndStore(c *C) {
	writeImage(c, s.path, bootrecord.NewRecord(2).Encode())

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	c.Assert(h, NotNil)
	r.Slots[1].SuccessfulBoot = true
	err = s.store.Store(h, r)
	c.Assert(err, IsNil)

	stored, err := s.store.Read()
	c.Assert(err, IsNil)
	c.Check(stored.Slots[1].SuccessfulBoot, Equals, true)
	c.Check(stored.Slots[0], DeepEquals, r.Slots[0])
}

func (s *storeSuite) TestStoreWithoutChangesIsByteIdentical(c *C) {
	img := writeImage(c, s.path, sampleRecord)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	err = s.store.Store(h, r)
	c.Assert(err, IsNil)

	c.Check(readImage(c, s.path), DeepEquals, img)
}

func (s *storeSuite) TestStoreOnlyTouchesRecord(c *C) {
	img := writeImage(c, s.path, sampleRecord)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	r.Slots[1].Priority = 15
	err = s.store.Store(h, r)
	c.Assert(err, IsNil)

	after := readImage(c, s.path)
	c.Check(after[:testOffset], DeepEquals, img[:testOffset])
	c.Check(after[testOffset+bootrecord.RecordSize:], DeepEquals, img[testOffset+bootrecord.RecordSize:])
	c.Check(after[testOffset+0x0E], Equals, byte(0x0F))
}

func (s *storeSuite) TestLoadMissingDevice(c *C) {
	r, h, err := s.store.Load(true)
	c.Check(r, IsNil)
	c.Check(h, IsNil)

	var ioErr *bootrecord.IOError
	c.Assert(errors.As(err, &ioErr), Equals, true)
	c.Check(ioErr.Op, Equals, "open")
	c.Check(ioErr.Errno(), Equals, unix.ENOENT)
	c.Check(err, ErrorMatches, `cannot open .*/misc.img: .*no such file or directory`)
}

func (s *storeSuite) TestLoadPermissionDenied(c *C) {
	if os.Geteuid() == 0 {
		c.Skip("root ignores file permissions")
	}
	writeImage(c, s.path, sampleRecord)
	err := os.Chmod(s.path, 0444)
	c.Assert(err, IsNil)

	_, _, err = s.store.Load(false)
	var ioErr *bootrecord.IOError
	c.Assert(errors.As(err, &ioErr), Equals, true)
	c.Check(ioErr.Errno(), Equals, unix.EACCES)
}

func (s *storeSuite) TestLoadBadMagic(c *C) {
	writeImage(c, s.path, make([]byte, bootrecord.RecordSize))

	r, h, err := s.store.Load(false)
	c.Check(r, IsNil)
	c.Check(h, IsNil)
	c.Check(errors.Is(err, bootrecord.ErrInvalidFormat), Equals, true)
	c.Check(err, ErrorMatches, `cannot load record from .*: invalid boot control record: bad magic 0x00000000 .*`)
}

func (s *storeSuite) TestLoadFailureReleasesLock(c *C) {
	writeImage(c, s.path, make([]byte, bootrecord.RecordSize))
	_, _, err := s.store.Load(false)
	c.Assert(err, NotNil)

	// If the failed load kept the exclusive lock this would block forever.
	f, err := os.Open(s.path)
	c.Assert(err, IsNil)
	defer f.Close()
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	c.Check(err, IsNil)
}

func (s *storeSuite) TestLoadShortRead(c *C) {
	err := os.WriteFile(s.path, make([]byte, testOffset+10), 0644)
	c.Assert(err, IsNil)

	_, _, err = s.store.Load(true)
	c.Check(errors.Is(err, bootrecord.ErrShortIO), Equals, true)
	c.Check(err, ErrorMatches, `cannot read .*: short transfer: 10 of 32 bytes`)
}

func (s *storeSuite) TestLoadPastEnd(c *C) {
	err := os.WriteFile(s.path, nil, 0644)
	c.Assert(err, IsNil)

	_, _, err = s.store.Load(true)
	c.Check(errors.Is(err, bootrecord.ErrShortIO), Equals, true)
}

func (s *storeSuite) TestReadReleasesHandle(c *C) {
	writeImage(c, s.path, sampleRecord)

	r, err := s.store.Read()
	c.Assert(err, IsNil)
	c.Check(r.Slots[0].SuccessfulBoot, Equals, true)

	f, err := os.Open(s.path)
	c.Assert(err, IsNil)
	defer f.Close()
	c.Check(unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB), IsNil)
}

func (s *storeSuite) TestStoreReleasesLock(c *C) {
	writeImage(c, s.path, sampleRecord)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)

	f, err := os.Open(s.path)
	c.Assert(err, IsNil)
	defer f.Close()
	c.Check(unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB), Equals, unix.EWOULDBLOCK)

	err = s.store.Store(h, r)
	c.Assert(err, IsNil)
	c.Check(unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB), IsNil)
}

func (s *storeSuite) TestStoreInvalidHandle(c *C) {
	r := bootrecord.NewRecord(2)
	c.Check(s.store.Store(nil, r), Equals, bootrecord.ErrInvalidHandle)

	writeImage(c, s.path, sampleRecord)
	_, h, err := s.store.Load(true)
	c.Assert(err, IsNil)
	c.Check(s.store.Store(h, r), Equals, bootrecord.ErrInvalidHandle)
	// The handle was released anyway, so it cannot be reused.
	c.Check(s.store.Store(h, r), Equals, bootrecord.ErrInvalidHandle)
	c.Check(h.Close(), IsNil)
}

func (s *storeSuite) TestChecksumEnabled(c *C) {
	store := bootrecord.New(bootrecord.Options{Path: s.path, Offset: testOffset, Checksum: true})
	writeImage(c, s.path, bootrecord.NewRecord(2).Encode())

	r, h, err := store.Load(false)
	c.Assert(err, IsNil)
	r.Slots[0].SuccessfulBoot = true
	err = store.Store(h, r)
	c.Assert(err, IsNil)

	stored, err := store.Read()
	c.Assert(err, IsNil)
	c.Check(stored.VerifyChecksum(), IsNil)
	// The caller's record is left alone.
	c.Check(r.VerifyChecksum(), NotNil)
}

func (s *storeSuite) TestChecksumMismatch(c *C) {
	store := bootrecord.New(bootrecord.Options{Path: s.path, Offset: testOffset, Checksum: true})
	writeImage(c, s.path, sampleRecord)

	_, _, err := store.Load(true)
	c.Check(errors.Is(err, bootrecord.ErrChecksum), Equals, true)

	// Without checksums the same record loads fine.
	_, err = s.store.Read()
	c.Check(err, IsNil)
}

// fakeDevice is an in-memory misc image that can inject failures.
type fakeDevice struct {
	data []byte
	pos  int64

	readErrs   []error
	writeErrs  []error
	shortWrite bool
	syncErr    error

	synced bool
	closed bool
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if len(d.readErrs) > 0 {
		err := d.readErrs[0]
		d.readErrs = d.readErrs[1:]
		return 0, err
	}
	if d.pos >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[d.pos:])
	d.pos += int64(n)
	return n, nil
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	if len(d.writeErrs) > 0 {
		err := d.writeErrs[0]
		d.writeErrs = d.writeErrs[1:]
		return 0, err
	}
	if d.shortWrite {
		p = p[:len(p)/2]
	}
	n := copy(d.data[d.pos:], p)
	d.pos += int64(n)
	return n, nil
}

func (d *fakeDevice) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return 0, errors.New("unsupported whence")
	}
	d.pos = offset
	return offset, nil
}

func (d *fakeDevice) Fd() uintptr { return 0 }

func (d *fakeDevice) Sync() error {
	if d.syncErr != nil {
		return d.syncErr
	}
	d.synced = true
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (s *storeSuite) useFakeDevice(c *C, dev *fakeDevice) {
	dev.data = make([]byte, 4096)
	copy(dev.data[testOffset:], sampleRecord)
	s.restores = append(s.restores, bootrecord.FakeOpenDevice(func(path string, flag int) (bootrecord.Device, error) {
		c.Check(path, Equals, s.path)
		return dev, nil
	}))
	s.restores = append(s.restores, bootrecord.FakeFlockDevice(func(bootrecord.Device, int) error {
		return nil
	}))
}

func eagain(op string) error {
	return &os.PathError{Op: op, Path: "misc", Err: unix.EAGAIN}
}

func (s *storeSuite) TestLoadRetriesTransientReads(c *C) {
	dev := &fakeDevice{readErrs: []error{eagain("read"), unix.EINTR, eagain("read")}}
	s.useFakeDevice(c, dev)

	r, h, err := s.store.Load(true)
	c.Assert(err, IsNil)
	c.Check(dev.readErrs, HasLen, 0)
	c.Check(r.Slots[0].SuccessfulBoot, Equals, true)
	c.Check(h.Close(), IsNil)
	c.Check(dev.closed, Equals, true)
}

func (s *storeSuite) TestLoadFatalReadError(c *C) {
	dev := &fakeDevice{readErrs: []error{&os.PathError{Op: "read", Path: "misc", Err: unix.EIO}}}
	s.useFakeDevice(c, dev)

	_, h, err := s.store.Load(true)
	c.Check(h, IsNil)
	var ioErr *bootrecord.IOError
	c.Assert(errors.As(err, &ioErr), Equals, true)
	c.Check(ioErr.Op, Equals, "read")
	c.Check(ioErr.Errno(), Equals, unix.EIO)
	c.Check(dev.closed, Equals, true)
}

func (s *storeSuite) TestStoreRetriesTransientWrites(c *C) {
	dev := &fakeDevice{writeErrs: []error{eagain("write"), eagain("write")}}
	s.useFakeDevice(c, dev)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	r.Slots[1].TriesRemaining = 3
	err = s.store.Store(h, r)
	c.Assert(err, IsNil)
	c.Check(dev.writeErrs, HasLen, 0)
	c.Check(dev.synced, Equals, true)
	c.Check(dev.closed, Equals, true)
	c.Check(dev.data[testOffset+0x0E], Equals, byte(0x30))
}

func (s *storeSuite) TestStoreFatalWriteError(c *C) {
	dev := &fakeDevice{writeErrs: []error{&os.PathError{Op: "write", Path: "misc", Err: unix.ENOSPC}}}
	s.useFakeDevice(c, dev)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	err = s.store.Store(h, r)
	c.Check(err, ErrorMatches, `cannot write .*: write misc: no space left on device`)
	c.Check(dev.synced, Equals, false)
	c.Check(dev.closed, Equals, true)
}

func (s *storeSuite) TestStoreShortWrite(c *C) {
	dev := &fakeDevice{shortWrite: true}
	s.useFakeDevice(c, dev)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	err = s.store.Store(h, r)
	c.Check(errors.Is(err, bootrecord.ErrShortIO), Equals, true)
	c.Check(dev.synced, Equals, false)
	c.Check(dev.closed, Equals, true)
}

func (s *storeSuite) TestStoreSyncFailure(c *C) {
	dev := &fakeDevice{syncErr: unix.EIO}
	s.useFakeDevice(c, dev)

	r, h, err := s.store.Load(false)
	c.Assert(err, IsNil)
	err = s.store.Store(h, r)
	var ioErr *bootrecord.IOError
	c.Assert(errors.As(err, &ioErr), Equals, true)
	c.Check(ioErr.Op, Equals, "sync")
	c.Check(ioErr.Errno(), Equals, unix.EIO)
	c.Check(dev.closed, Equals, true)
}

func (s *storeSuite) TestLockFailure(c *C) {
	dev := &fakeDevice{}
	s.useFakeDevice(c, dev)
	restore := bootrecord.FakeFlockDevice(func(bootrecord.Device, int) error { return unix.ENOLCK })
	defer restore()

	_, h, err := s.store.Load(false)
	c.Check(h, IsNil)
	c.Check(err, ErrorMatches, `cannot lock .*: no locks available`)
	c.Check(dev.closed, Equals, true)
}

func (s *storeSuite) TestRetryTransient(c *C) {
	calls := 0
	err := bootrecord.RetryTransient(func() error {
		calls++
		if calls < 5 {
			return unix.EAGAIN
		}
		return io.ErrUnexpectedEOF
	})
	c.Check(err, Equals, io.ErrUnexpectedEOF)
	c.Check(calls, Equals, 5)
}
