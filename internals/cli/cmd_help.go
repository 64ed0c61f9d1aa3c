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
	"strings"
	"unicode/utf8"

	"github.com/canonical/go-flags"

	"github.com/canonical/bootctl/cmd"
)

var shortHelpHelp = "Show help about a command"
var longHelpHelp = `
The help command displays information about commands.
`

var longBootctlDescription = strings.TrimSpace(`
bootctl inspects and switches the A/B boot slots recorded in the misc
partition, and can serve the same operations over a unix socket.
`)

type cmdHelp struct {
	All        bool `long:"all"`
	Positional struct {
		Subs []string `positional-arg-name:"<command>"`
	} `positional-args:"yes"`
	parser *flags.Parser
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "help",
		Summary:     shortHelpHelp,
		Description: longHelpHelp,
		Builder:     func() flags.Commander { return &cmdHelp{} },
		OptionsHelp: map[string]string{
			"all": "Show a short summary of all commands",
		},
		ArgumentsHelp: map[string]ArgumentHelp{
			"<command>": {Placeholder: "<command>", Help: "The command to show help for"},
		},
	})
}

// addHelp adds --help like what go-flags would do for us, but hidden
func addHelp(parser *flags.Parser) error {
	var help struct {
		ShowHelp func() error `short:"h" long:"help"`
	}
	help.ShowHelp = func() error {
		// this function is called via --help (or -h). In that
		// case, parser.Command.Active should be the command
		// on which help is being requested (like "bootctl foo
		// --help", active is foo), or nil in the toplevel.
		if parser.Command.Active == nil {
			// toplevel --help gets handled via ErrCommandRequired
			return &flags.Error{Type: flags.ErrCommandRequired}
		}
		// not toplevel, so ask for regular help
		return &flags.Error{Type: flags.ErrHelp}
	}
	hlpgrp, err := parser.AddGroup("Help Options", "", &help)
	if err != nil {
		return err
	}
	hlpgrp.Hidden = true
	hlp := parser.FindOptionByLongName("help")
	hlp.Description = "Show this help message"
	hlp.Hidden = true

	return nil
}

func (cmd *cmdHelp) setParser(parser *flags.Parser) {
	cmd.parser = parser
}

func (cmd cmdHelp) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	if cmd.All {
		if len(cmd.Positional.Subs) > 0 {
			return fmt.Errorf("help accepts a command, or '--all', but not both.")
		}
		printLongHelp(cmd.parser)
		return nil
	}

	var subcmd = cmd.parser.Command
	for _, subname := range cmd.Positional.Subs {
		subcmd = subcmd.Find(subname)
		if subcmd == nil {
			return fmt.Errorf("unknown command %q, see '%s help'.", subname, programName())
		}
		// this makes "bootctl help foo" work the same as "bootctl foo --help"
		cmd.parser.Command.Active = subcmd
	}
	if subcmd != cmd.parser.Command {
		return &flags.Error{Type: flags.ErrHelp}
	}
	return &flags.Error{Type: flags.ErrCommandRequired}
}

type helpCategory struct {
	Label       string
	Description string
	Commands    []string
}

// helpCategories helps us by grouping commands
var helpCategories = []helpCategory{{
	Label:       "Run",
	Description: "serve the slot API",
	Commands:    []string{"run"},
}, {
	Label:       "Info",
	Description: "help and version information",
	Commands:    []string{"help", "version"},
}, {
	Label:       "Slots",
	Description: "inspect boot slots",
	Commands:    []string{"slots", "count", "current", "suffix", "is-bootable"},
}, {
	Label:       "Boot",
	Description: "change which slot boots next",
	Commands:    []string{"mark-successful", "set-active", "set-unbootable"},
}}

var (
	bootctlUsage               = "Usage: %s <command> [<options>...]"
	bootctlHelpCategoriesIntro = "Commands can be classified as follows:"

	bootctlHelpEnv = strings.TrimSpace(`
Set BOOTCTL_CONFIG to override the configuration file (which defaults to
/etc/bootctl.yaml). Set BOOTCTL_SLOT_SUFFIX to the suffix of the slot the
system booted from.
`)

	bootctlHelpAllFooter = "For more information about a command, run '%s help <command>'."
	bootctlHelpFooter    = "For a short summary of all commands, run '%s help --all'."
)

func programName() string {
	return cmd.ProgramName
}

func printHelpHeader() {
	fmt.Fprintln(Stdout, longBootctlDescription)
	fmt.Fprintln(Stdout)
	fmt.Fprintf(Stdout, bootctlUsage+"\n", programName())
	fmt.Fprintln(Stdout)
	fmt.Fprintln(Stdout, bootctlHelpCategoriesIntro)
}

func printHelpAllFooter() {
	fmt.Fprintln(Stdout)
	fmt.Fprintln(Stdout, bootctlHelpEnv)
	fmt.Fprintln(Stdout)
	fmt.Fprintf(Stdout, bootctlHelpAllFooter+"\n", programName())
}

func printHelpFooter() {
	printHelpAllFooter()
	fmt.Fprintf(Stdout, bootctlHelpFooter+"\n", programName())
}

// this is called when the Execute returns a flags.Error with ErrCommandRequired
func printShortHelp() {
	printHelpHeader()
	fmt.Fprintln(Stdout)
	maxLen := 0
	for _, categ := range helpCategories {
		if l := utf8.RuneCountInString(categ.Label); l > maxLen {
			maxLen = l
		}
	}
	for _, categ := range helpCategories {
		fmt.Fprintf(Stdout, "%*s: %s\n", maxLen+2, categ.Label, strings.Join(categ.Commands, ", "))
	}
	printHelpFooter()
}

// this is "bootctl help --all"
func printLongHelp(parser *flags.Parser) {
	printHelpHeader()
	maxLen := 0
	for _, categ := range helpCategories {
		for _, command := range categ.Commands {
			if l := len(command); l > maxLen {
				maxLen = l
			}
		}
	}

	// flags doesn't have a LookupCommand?
	commands := parser.Commands()
	cmdLookup := make(map[string]*flags.Command, len(commands))
	for _, cmd := range commands {
		cmdLookup[cmd.Name] = cmd
	}

	for _, categ := range helpCategories {
		fmt.Fprintln(Stdout)
		fmt.Fprintf(Stdout, "  %s (%s):\n", categ.Label, categ.Description)
		for _, name := range categ.Commands {
			cmd := cmdLookup[name]
			if cmd == nil {
				fmt.Fprintf(Stderr, "??? Cannot find command %q mentioned in help categories, please report!\n", name)
			} else {
				fmt.Fprintf(Stdout, "    %*s  %s\n", -maxLen, name, cmd.ShortDescription)
			}
		}
	}
	printHelpAllFooter()
}
