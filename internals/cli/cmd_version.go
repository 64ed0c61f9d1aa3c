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

	version "github.com/canonical/bootctl/cmd"
)

var shortVersionHelp = "Show version details"
var longVersionHelp = `
The version command displays the version of bootctl.
`

type cmdVersion struct{}

func init() {
	AddCommand(&CmdInfo{
		Name:        "version",
		Summary:     shortVersionHelp,
		Description: longVersionHelp,
		Builder:     func() flags.Commander { return &cmdVersion{} },
	})
}

func (cmd cmdVersion) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	printVersion()
	return nil
}

func printVersion() {
	fmt.Fprintln(Stdout, version.Version)
}
