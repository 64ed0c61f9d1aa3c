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

var shortCountHelp = "Show the number of boot slots"
var longCountHelp = `
The count command prints the number of configured boot slots.
`

type cmdCount struct {
	controllerMixin
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "count",
		Summary:     shortCountHelp,
		Description: longCountHelp,
		Builder:     func() flags.Commander { return &cmdCount{} },
		OptionsHelp: controllerOptionsHelp,
	})
}

func (cmd *cmdCount) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	ctrl, err := cmd.controller()
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, ctrl.NumberOfSlots())
	return nil
}
