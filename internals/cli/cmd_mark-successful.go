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
	"github.com/canonical/go-flags"
)

var shortMarkSuccessfulHelp = "Mark the current slot as successfully booted"
var longMarkSuccessfulHelp = `
The mark-successful command records that the slot the system booted from
has booted successfully, so the bootloader stops counting down its tries.
`

type cmdMarkSuccessful struct {
	controllerMixin
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "mark-successful",
		Summary:     shortMarkSuccessfulHelp,
		Description: longMarkSuccessfulHelp,
		Builder:     func() flags.Commander { return &cmdMarkSuccessful{} },
		OptionsHelp: controllerOptionsHelp,
	})
}

func (cmd *cmdMarkSuccessful) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	ctrl, err := cmd.controller()
	if err != nil {
		return err
	}
	return ctrl.MarkBootSuccessful()
}
