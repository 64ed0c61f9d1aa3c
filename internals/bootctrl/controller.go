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

// Package bootctrl implements the A/B slot state machine on top of the boot
// control record.
//
// Every command is a full load, mutate and store cycle against the misc
// device. Nothing is cached between calls, so the record on media is always
// the source of truth.
package bootctrl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/canonical/bootctl/internals/bootrecord"
	"github.com/canonical/bootctl/internals/logger"
)

var (
	// ErrNotInitialized is returned by operations that need the current
	// slot before Init succeeded.
	ErrNotInitialized = errors.New("boot control not initialized")

	// ErrInvalidSlot is returned for slot indexes outside the configured
	// slot table.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrConfiguration is returned by Init when the current slot cannot be
	// determined from the suffix hint.
	ErrConfiguration = errors.New("invalid boot control configuration")
)

// RecordStore is the persistence used by a Controller. It is implemented by
// *bootrecord.Store.
type RecordStore interface {
	Load(readOnly bool) (*bootrecord.Record, *bootrecord.Handle, error)
	Store(h *bootrecord.Handle, r *bootrecord.Record) error
	Read() (*bootrecord.Record, error)
}

// SlotInfo is a snapshot of one slot.
type SlotInfo struct {
	Slot           int    `json:"slot"`
	Suffix         string `json:"suffix"`
	Priority       int    `json:"priority"`
	TriesRemaining int    `json:"tries-remaining"`
	SuccessfulBoot bool   `json:"successful-boot"`
	Bootable       bool   `json:"bootable"`
	Current        bool   `json:"current"`
}

// Controller applies slot transitions to the boot control record.
type Controller struct {
	store    RecordStore
	suffixes []string

	// mu serializes load/store cycles and guards the fields below.
	mu          sync.Mutex
	initDone    bool
	initialized bool
	currentSlot int
}

// New returns a Controller over store for the given slot suffixes, in slot
// order. The Controller must be initialized with Init before the current
// slot is known. It panics if there are no suffixes or more than the record
// has room for.
func New(store RecordStore, suffixes []string) *Controller {
	if len(suffixes) == 0 || len(suffixes) > bootrecord.MaxSlots {
		panic(fmt.Sprintf("cannot use %d slot suffixes: must be between 1 and %d", len(suffixes), bootrecord.MaxSlots))
	}
	return &Controller{
		store:    store,
		suffixes: append([]string(nil), suffixes...),
	}
}

// Init determines the current slot from the suffix the system booted with.
// Only the first call has any effect: if it fails the Controller stays
// uninitialized, and later calls return nil without trying again.
func (c *Controller) Init(hint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initDone {
		logger.Debugf("Boot control already initialized.")
		return nil
	}
	c.initDone = true

	if hint == "" {
		logger.Noticef("Cannot initialize boot control: no slot suffix provided.")
		return fmt.Errorf("%w: no slot suffix provided", ErrConfiguration)
	}
	for i, suffix := range c.suffixes {
		if suffix == hint {
			c.currentSlot = i
			c.initialized = true
			logger.Debugf("Current slot is %d (suffix %q).", i, hint)
			return nil
		}
	}
	logger.Noticef("Cannot initialize boot control: slot suffix %q is not one of %q.", hint, c.suffixes)
	return fmt.Errorf("%w: unknown slot suffix %q", ErrConfiguration, hint)
}

// NumberOfSlots returns the number of configured slots.
func (c *Controller) NumberOfSlots() int {
	return len(c.suffixes)
}

// CurrentSlot returns the slot the system booted from.
func (c *Controller) CurrentSlot() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return 0, ErrNotInitialized
	}
	return c.currentSlot, nil
}

// Suffix returns the suffix of slot. It does not need Init.
func (c *Controller) Suffix(slot int) (string, error) {
	if err := c.checkSlot(slot); err != nil {
		return "", err
	}
	return c.suffixes[slot], nil
}

// MarkBootSuccessful marks the current slot as having booted successfully.
func (c *Controller) MarkBootSuccessful() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}

	slot := c.currentSlot
	logger.Debugf("Marking slot %d as successfully booted.", slot)
	return c.update("mark boot successful", func(r *bootrecord.Record) {
		r.Slots[slot].SuccessfulBoot = true
	})
}

// SetActiveBootSlot makes slot the preferred slot for the next boot, with
// a full retry budget. Any other slot at top priority is demoted below it.
func (c *Controller) SetActiveBootSlot(slot int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	if err := c.checkSlot(slot); err != nil {
		return err
	}

	if slot == c.currentSlot {
		logger.Noticef("Warning: activating slot %d which is the current slot.", slot)
	}
	return c.update("set active boot slot", func(r *bootrecord.Record) {
		r.Slots[slot].Priority = bootrecord.MaxPriority
		r.Slots[slot].TriesRemaining = bootrecord.MaxTriesRemaining
		r.Slots[slot].SuccessfulBoot = false
		for i := range c.suffixes {
			if i != slot && r.Slots[i].Priority >= bootrecord.MaxPriority {
				r.Slots[i].Priority = bootrecord.MaxPriority - 1
			}
		}
	})
}

// SetSlotAsUnbootable retires slot so the bootloader will not pick it.
func (c *Controller) SetSlotAsUnbootable(slot int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	if err := c.checkSlot(slot); err != nil {
		return err
	}

	if slot == c.currentSlot {
		logger.Noticef("Warning: marking slot %d unbootable while it is the current slot.", slot)
	}
	return c.update("set slot as unbootable", func(r *bootrecord.Record) {
		r.Slots[slot].Priority = 0
		r.Slots[slot].TriesRemaining = 0
		r.Slots[slot].SuccessfulBoot = false
	})
}

// IsSlotBootable reports whether slot has booted successfully or still has
// tries left. The record is only read.
func (c *Controller) IsSlotBootable(slot int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return false, ErrNotInitialized
	}
	if err := c.checkSlot(slot); err != nil {
		return false, err
	}

	r, err := c.store.Read()
	if err != nil {
		logger.Noticef("Cannot check whether slot %d is bootable: %v", slot, err)
		return false, fmt.Errorf("cannot check whether slot %d is bootable: %w", slot, err)
	}
	return r.Slots[slot].Bootable(), nil
}

// Slots returns a snapshot of every configured slot. It does not need
// Init; when uninitialized no slot is reported as current.
func (c *Controller) Slots() ([]SlotInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.store.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read slots: %w", err)
	}
	infos := make([]SlotInfo, len(c.suffixes))
	for i, suffix := range c.suffixes {
		m := r.Slots[i]
		infos[i] = SlotInfo{
			Slot:           i,
			Suffix:         suffix,
			Priority:       int(m.Priority),
			TriesRemaining: int(m.TriesRemaining),
			SuccessfulBoot: m.SuccessfulBoot,
			Bootable:       m.Bootable(),
			Current:        c.initialized && i == c.currentSlot,
		}
	}
	return infos, nil
}

// LookupSlot resolves a slot given by index ("1") or by suffix, with or
// without its leading underscore ("_b" or "b").
func (c *Controller) LookupSlot(name string) (int, error) {
	if slot, err := strconv.Atoi(name); err == nil {
		if err := c.checkSlot(slot); err != nil {
			return 0, err
		}
		return slot, nil
	}
	for i, suffix := range c.suffixes {
		if name == suffix || "_"+name == suffix {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w %q: must be an index or one of %s", ErrInvalidSlot, name, strings.Join(c.suffixes, ", "))
}

func (c *Controller) checkSlot(slot int) error {
	if slot < 0 || slot >= len(c.suffixes) {
		return fmt.Errorf("%w %d: have %d slots", ErrInvalidSlot, slot, len(c.suffixes))
	}
	return nil
}

// update runs one load, mutate and store cycle. Nothing is written if the
// load fails. Must be called with c.mu held.
func (c *Controller) update(what string, mutate func(r *bootrecord.Record)) error {
	r, h, err := c.store.Load(false)
	if err != nil {
		logger.Noticef("Cannot %s: %v", what, err)
		return fmt.Errorf("cannot %s: %w", what, err)
	}
	mutate(r)
	if err := c.store.Store(h, r); err != nil {
		logger.Noticef("Cannot %s: %v", what, err)
		return fmt.Errorf("cannot %s: %w", what, err)
	}
	return nil
}
