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

var shortCurrentHelp = "Show the slot the system booted from"
var longCurrentHelp = `
The current command prints the index of the slot the system booted from.
The slot suffix must be given with --slot-suffix or $BOOTCTL_SLOT_SUFFIX.
`

type cmdCurrent struct {
	controllerMixin
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "current",
		Summary:     shortCurrentHelp,
		Description: longCurrentHelp,
		Builder:     func() flags.Commander { return &cmdCurrent{} },
		OptionsHelp: controllerOptionsHelp,
	})
}

func (cmd *cmdCurrent) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	ctrl, err := cmd.controller()
	if err != nil {
		return err
	}
	slot, err := ctrl.CurrentSlot()
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, slot)
	return nil
}
