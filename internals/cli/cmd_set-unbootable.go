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
	"fmt"

	"github.com/canonical/go-flags"
)

var shortSetUnbootableHelp = "Stop a slot from being booted"
var longSetUnbootableHelp = `
The set-unbootable command clears the slot's priority, boot tries and
successful boot flag, so the bootloader never picks it.
`

type cmdSetUnbootable struct {
	controllerMixin
	Positional struct {
		Slot string `positional-arg-name:"<slot>"`
	} `positional-args:"yes" required:"yes"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:          "set-unbootable",
		Summary:       shortSetUnbootableHelp,
		Description:   longSetUnbootableHelp,
		Builder:       func() flags.Commander { return &cmdSetUnbootable{} },
		OptionsHelp:   controllerOptionsHelp,
		ArgumentsHelp: slotArgumentsHelp,
	})
}

func (cmd *cmdSetUnbootable) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	ctrl, err := cmd.controller()
	if err != nil {
		return err
	}
	slot, err := ctrl.LookupSlot(cmd.Positional.Slot)
	if err != nil {
		return err
	}
	if err := ctrl.SetSlotAsUnbootable(slot); err != nil {
		return err
	}
	suffix, _ := ctrl.Suffix(slot)
	fmt.Fprintf(Stdout, "Slot %d (%s) is now unbootable.\n", slot, suffix)
	return nil
}
