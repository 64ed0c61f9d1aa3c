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

// Package bootrecord reads and writes the A/B boot control record kept in
// the misc partition.
//
// The record is 32 bytes, little-endian, and shared with the bootloader,
// so its layout is fixed:
//
//	[0x00:0x04] slot suffix written by the bootloader
//	[0x04:0x08] magic (0x42414342)
//	[0x08]      layout version
//	[0x09]      bits 0-2 slot count, bits 3-5 recovery tries remaining
//	[0x0A:0x0C] reserved
//	[0x0C:0x14] four 2-byte slot entries:
//	            byte 0 bits 0-3 priority, bits 4-6 tries remaining,
//	            bit 7 successful boot; byte 1 bit 0 verity corrupted
//	[0x14:0x1C] reserved
//	[0x1C:0x20] CRC-32 (IEEE) of bytes 0x00-0x1B
//
// Reserved bytes and bits are carried through a decode/encode round trip
// unchanged.
package bootrecord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// Magic identifies a valid boot control record.
	Magic uint32 = 0x42414342

	// LayoutVersion is the record layout version written by NewRecord.
	LayoutVersion = 1

	// RecordSize is the on-media size of the record in bytes.
	RecordSize = 32

	// MaxSlots is the number of slot entries the record has room for.
	MaxSlots = 4

	// MaxPriority is the highest (most preferred) slot priority.
	MaxPriority = 15

	// MaxTriesRemaining is the full retry budget of a freshly activated slot.
	MaxTriesRemaining = 7

	// DefaultOffset is the offset of the record inside the misc partition,
	// right after the 2KiB bootloader message.
	DefaultOffset = 2048
)

const (
	slotInfoOffset = 0x0C
	slotInfoSize   = 2
	reserved1Start = 0x14
	crcOffset      = 0x1C
)

// ErrInvalidFormat is returned when the bytes read from the device are not
// a boot control record.
var ErrInvalidFormat = errors.New("invalid boot control record")

// ErrChecksum is returned when checksums are verified and the stored CRC
// does not match the record contents.
var ErrChecksum = fmt.Errorf("%w: checksum mismatch", ErrInvalidFormat)

// SlotMetadata holds the per-slot boot state.
type SlotMetadata struct {
	// Priority orders slots for the next boot; higher is preferred.
	Priority uint8
	// TriesRemaining is decremented by the bootloader on every attempt.
	TriesRemaining uint8
	// SuccessfulBoot marks the slot as proven good.
	SuccessfulBoot bool
	// VerityCorrupted is set by the bootloader and never touched here.
	VerityCorrupted bool

	reserved uint8
}

// Bootable reports whether the bootloader may still pick the slot.
func (m SlotMetadata) Bootable() bool {
	return m.SuccessfulBoot || m.TriesRemaining > 0
}

// Record is the decoded boot control record.
type Record struct {
	SlotSuffix             [4]byte
	Magic                  uint32
	Version                uint8
	SlotCount              uint8
	RecoveryTriesRemaining uint8
	Slots                  [MaxSlots]SlotMetadata
	CRC32                  uint32

	spare     uint8
	reserved0 [2]byte
	reserved1 [8]byte
}

// NewRecord returns a freshly formatted record for the given number of
// slots, with the first slot preferred.
func NewRecord(slotCount int) *Record {
	if slotCount < 1 || slotCount > MaxSlots {
		panic(fmt.Sprintf("invalid slot count %d", slotCount))
	}
	r := &Record{
		Magic:     Magic,
		Version:   LayoutVersion,
		SlotCount: uint8(slotCount),
	}
	for i := 0; i < slotCount; i++ {
		r.Slots[i] = SlotMetadata{Priority: 7, TriesRemaining: MaxTriesRemaining}
	}
	r.Slots[0].Priority = MaxPriority
	r.UpdateChecksum()
	return r
}

// Decode parses a record, validating its size and magic. No record is
// returned on error.
func Decode(b []byte) (*Record, error) {
	if len(b) != RecordSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidFormat, RecordSize, len(b))
	}
	magic := binary.LittleEndian.Uint32(b[4:8])
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x (expected 0x%08x)", ErrInvalidFormat, magic, Magic)
	}

	r := &Record{
		Magic:                  magic,
		Version:                b[8],
		SlotCount:              b[9] & 0x07,
		RecoveryTriesRemaining: (b[9] >> 3) & 0x07,
		CRC32:                  binary.LittleEndian.Uint32(b[crcOffset:]),
		spare:                  b[9] >> 6,
	}
	copy(r.SlotSuffix[:], b[0:4])
	copy(r.reserved0[:], b[10:12])
	for i := range r.Slots {
		e := b[slotInfoOffset+i*slotInfoSize:]
		r.Slots[i] = SlotMetadata{
			Priority:        e[0] & 0x0F,
			TriesRemaining:  (e[0] >> 4) & 0x07,
			SuccessfulBoot:  e[0]&0x80 != 0,
			VerityCorrupted: e[1]&0x01 != 0,
			reserved:        e[1] >> 1,
		}
	}
	copy(r.reserved1[:], b[reserved1Start:crcOffset])
	return r, nil
}

// Encode returns the on-media representation of the record. Field values
// are masked to their bit widths.
func (r *Record) Encode() []byte {
	b := make([]byte, RecordSize)
	copy(b[0:4], r.SlotSuffix[:])
	binary.LittleEndian.PutUint32(b[4:8], r.Magic)
	b[8] = r.Version
	b[9] = r.SlotCount&0x07 | (r.RecoveryTriesRemaining&0x07)<<3 | r.spare<<6
	copy(b[10:12], r.reserved0[:])
	for i, m := range r.Slots {
		e := b[slotInfoOffset+i*slotInfoSize:]
		e[0] = m.Priority&0x0F | (m.TriesRemaining&0x07)<<4
		if m.SuccessfulBoot {
			e[0] |= 0x80
		}
		e[1] = m.reserved << 1
		if m.VerityCorrupted {
			e[1] |= 0x01
		}
	}
	copy(b[reserved1Start:crcOffset], r.reserved1[:])
	binary.LittleEndian.PutUint32(b[crcOffset:], r.CRC32)
	return b
}

// Checksum computes the CRC-32 of the record contents preceding the
// stored checksum.
func (r *Record) Checksum() uint32 {
	return crc32.ChecksumIEEE(r.Encode()[:crcOffset])
}

// UpdateChecksum stores the result of Checksum in the record.
func (r *Record) UpdateChecksum() {
	r.CRC32 = r.Checksum()
}

// VerifyChecksum returns ErrChecksum if the stored CRC is stale.
func (r *Record) VerifyChecksum() error {
	if sum := r.Checksum(); sum != r.CRC32 {
		return fmt.Errorf("%w (stored 0x%08x, computed 0x%08x)", ErrChecksum, r.CRC32, sum)
	}
	return nil
}
