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

var shortSlotsHelp = "List boot slots"
var longSlotsHelp = `
The slots command lists every boot slot with its priority, the boot
attempts it has left, and whether it has booted successfully. The slot the
system booted from is marked as current when its suffix is known.
`

type cmdSlots struct {
	controllerMixin
	unicodeMixin
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "slots",
		Summary:     shortSlotsHelp,
		Description: longSlotsHelp,
		Builder:     func() flags.Commander { return &cmdSlots{} },
		OptionsHelp: merge(controllerOptionsHelp, unicodeOptionsHelp),
	})
}

func (cmd *cmdSlots) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	ctrl, err := cmd.controller()
	if err != nil {
		return err
	}
	slots, err := ctrl.Slots()
	if err != nil {
		return err
	}

	esc := cmd.getEscapes()
	w := tabWriter()
	defer w.Flush()

	fmt.Fprintln(w, "Slot\tSuffix\tPriority\tTries\tSuccessful\tBootable\tCurrent")
	for _, slot := range slots {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			slot.Slot, slot.Suffix, slot.Priority, slot.TriesRemaining,
			esc.flag(slot.SuccessfulBoot), esc.flag(slot.Bootable), esc.flag(slot.Current))
	}
	return nil
}
