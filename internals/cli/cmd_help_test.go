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

package cli_test

import (
	"strings"

	"github.com/canonical/go-flags"
	. "gopkg.in/check.v1"

	"github.com/canonical/bootctl/internals/cli"
)

func (s *BootctlSuite) TestHelpPrintsHelp(c *C) {
	for _, args := range [][]string{
		{"bootctl"},
		{"bootctl", "help"},
		{"bootctl", "--help"},
		{"bootctl", "-h"},
	} {
		s.ResetStdStreams()
		restore := fakeArgs(args...)

		c.Check(cli.BootctlMain(), Equals, 0, Commentf("%q", args))
		c.Check(s.Stdout(), Matches, `(?s)bootctl inspects and switches .*Usage: bootctl <command> .*Commands can be classified as follows:.*Slots: slots, count, current, suffix, is-bootable.*`)
		c.Check(s.Stdout(), Matches, `(?s).*For a short summary of all commands, run 'bootctl help --all'.\n`)
		c.Check(s.Stderr(), Equals, "")
		restore()
	}
}

func (s *BootctlSuite) TestHelpAllPrintsLongHelp(c *C) {
	defer fakeArgs("bootctl", "help", "--all")()

	c.Check(cli.BootctlMain(), Equals, 0)
	out := s.Stdout()
	c.Check(out, Matches, `(?sm).*^  Boot \(change which slot boots next\):$.*`)
	c.Check(out, Matches, `(?sm).*^    set-active\s+Make a slot boot next$.*`)
	c.Check(out, Matches, `(?s).*For more information about a command, run 'bootctl help <command>'.\n`)
	c.Check(strings.Contains(out, "For a short summary"), Equals, false)
	c.Check(s.Stderr(), Equals, "")
}

func (s *BootctlSuite) TestHelpCategories(c *C) {
	// Every command appears in exactly one category.
	seen := map[string]bool{}
	for _, cmd := range cli.Parser().Commands() {
		seen[cmd.Name] = false
	}
	for _, categ := range cli.HelpCategories() {
		for _, name := range categ {
			done, ok := seen[name]
			c.Check(ok, Equals, true, Commentf("unknown command %q", name))
			c.Check(done, Equals, false, Commentf("command %q listed twice", name))
			seen[name] = true
		}
	}
	for name, done := range seen {
		c.Check(done, Equals, true, Commentf("command %q not in any category", name))
	}
}

func (s *BootctlSuite) TestSubcommandHelp(c *C) {
	for _, args := range [][]string{
		{"bootctl", "help", "set-active"},
		{"bootctl", "set-active", "--help"},
	} {
		s.ResetStdStreams()
		restore := fakeArgs(args...)

		c.Check(cli.BootctlMain(), Equals, 0, Commentf("%q", args))
		out := s.Stdout()
		c.Check(out, Matches, `(?s)Usage:\n  bootctl set-active .*<slot>\n.*`)
		c.Check(out, Matches, `(?s).*--slot-suffix=\s+Suffix of the slot the system booted from.*`)
		c.Check(out, Matches, `(?s).*<slot>:\s+Slot index or suffix.*`)
		restore()
	}
}

func (s *BootctlSuite) TestHelpUnknownCommand(c *C) {
	_, err := cli.Parser().ParseArgs([]string{"help", "frobnicate"})
	c.Check(err, ErrorMatches, `unknown command "frobnicate", see 'bootctl help'.`)
}

func (s *BootctlSuite) TestHelpAllWithCommand(c *C) {
	_, err := cli.Parser().ParseArgs([]string{"help", "--all", "slots"})
	c.Check(err, ErrorMatches, `help accepts a command, or '--all', but not both.`)
}

func (s *BootctlSuite) TestHelpCommandRequestsHelp(c *C) {
	_, err := cli.Parser().ParseArgs([]string{"help", "count"})
	e, ok := err.(*flags.Error)
	c.Assert(ok, Equals, true)
	c.Check(e.Type, Equals, flags.ErrHelp)
}
