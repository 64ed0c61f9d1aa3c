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

var shortSetActiveHelp = "Make a slot boot next"
var longSetActiveHelp = `
The set-active command gives the slot the highest priority and a full set
of boot tries, so the bootloader picks it on the next boot. Other slots
keep their state but drop below it.
`

type cmdSetActive struct {
	controllerMixin
	Positional struct {
		Slot string `positional-arg-name:"<slot>"`
	} `positional-args:"yes" required:"yes"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:          "set-active",
		Summary:       shortSetActiveHelp,
		Description:   longSetActiveHelp,
		Builder:       func() flags.Commander { return &cmdSetActive{} },
		OptionsHelp:   controllerOptionsHelp,
		ArgumentsHelp: slotArgumentsHelp,
	})
}

func (cmd *cmdSetActive) Execute(args []string) error {
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
	if err := ctrl.SetActiveBootSlot(slot); err != nil {
		return err
	}
	suffix, _ := ctrl.Suffix(slot)
	fmt.Fprintf(Stdout, "Slot %d (%s) will boot next.\n", slot, suffix)
	return nil
}
