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

var shortSuffixHelp = "Show the suffix of a slot"
var longSuffixHelp = `
The suffix command prints the suffix of the given slot, as appended to the
names of the partitions that belong to it.
`

type cmdSuffix struct {
	controllerMixin
	Positional struct {
		Slot string `positional-arg-name:"<slot>"`
	} `positional-args:"yes" required:"yes"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:          "suffix",
		Summary:       shortSuffixHelp,
		Description:   longSuffixHelp,
		Builder:       func() flags.Commander { return &cmdSuffix{} },
		OptionsHelp:   controllerOptionsHelp,
		ArgumentsHelp: slotArgumentsHelp,
	})
}

func (cmd *cmdSuffix) Execute(args []string) error {
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
	suffix, err := ctrl.Suffix(slot)
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, suffix)
	return nil
}
