// Copyright (c) 2014-2020 Canonical Ltd
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

package cli

import (
	"github.com/canonical/bootctl/internals/bootctrl"
	"github.com/canonical/bootctl/internals/bootrecord"
	"github.com/canonical/bootctl/internals/config"
	"github.com/canonical/bootctl/internals/logger"
)

// controllerMixin is embedded by every command that works on the slot
// record.
type controllerMixin struct {
	Config     string `long:"config"`
	SlotSuffix string `long:"slot-suffix"`
}

var controllerOptionsHelp = map[string]string{
	"config":      "Path to the configuration file",
	"slot-suffix": "Suffix of the slot the system booted from",
}

// setup loads the configuration and builds a controller for it. The
// controller is initialized when a slot suffix is known, from
// --slot-suffix or $BOOTCTL_SLOT_SUFFIX in that order. An unknown suffix
// leaves it uninitialized: operations that need the current slot then fail
// with bootctrl.ErrNotInitialized, while the others keep working.
func (m *controllerMixin) setup() (*config.Config, *bootrecord.Store, *bootctrl.Controller, error) {
	cfg, err := config.Load(m.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	store := bootrecord.New(cfg.StoreOptions())
	ctrl := bootctrl.New(store, cfg.SlotSuffixes)

	suffix := m.SlotSuffix
	if suffix == "" {
		suffix = cfg.SlotSuffix
	}
	if suffix != "" {
		if err := ctrl.Init(suffix); err != nil {
			logger.Noticef("Continuing without a current slot: %v", err)
		}
	}
	return cfg, store, ctrl, nil
}

func (m *controllerMixin) controller() (*bootctrl.Controller, error) {
	_, _, ctrl, err := m.setup()
	return ctrl, err
}

var slotArgumentsHelp = map[string]ArgumentHelp{
	"<slot>": {
		Placeholder: "<slot>",
		Help:        "Slot index or suffix (for example 1, _b or b)",
	},
}
