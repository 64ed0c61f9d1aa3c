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

var shortIsBootableHelp = "Check whether a slot can boot"
var longIsBootableHelp = `
The is-bootable command reports whether the slot has booted successfully or
still has boot tries left. It exits with status 1 when the slot is not
bootable.
`

type cmdIsBootable struct {
	controllerMixin
	Positional struct {
		Slot string `positional-arg-name:"<slot>"`
	} `positional-args:"yes" required:"yes"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:          "is-bootable",
		Summary:       shortIsBootableHelp,
		Description:   longIsBootableHelp,
		Builder:       func() flags.Commander { return &cmdIsBootable{} },
		OptionsHelp:   controllerOptionsHelp,
		ArgumentsHelp: slotArgumentsHelp,
	})
}

func (cmd *cmdIsBootable) Execute(args []string) error {
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
	bootable, err := ctrl.IsSlotBootable(slot)
	if err != nil {
		return err
	}
	if !bootable {
		fmt.Fprintf(Stdout, "Slot %d is not bootable.\n", slot)
		panic(&exitStatus{1})
	}
	fmt.Fprintf(Stdout, "Slot %d is bootable.\n", slot)
	return nil
}
