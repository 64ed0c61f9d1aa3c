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
	"os"
	"strings"
	"text/tabwriter"
)

type unicodeMixin struct {
	//lint:ignore SA5008 "choice" tag is intentionally duplicated
	Unicode string `long:"unicode" default:"auto" choice:"auto" choice:"never" choice:"always"`
}

func (ux unicodeMixin) getEscapes() *escapes {
	esc := &escapes{}
	if canUnicode(ux.Unicode) {
		esc.dash = "–" // that's an en dash
		esc.tick = "✓"
	} else {
		esc.dash = "--"
		esc.tick = "*"
	}
	return esc
}

func canUnicode(mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if !isStdoutTTY {
		return false
	}
	var lang string
	for _, k := range []string{"LC_MESSAGES", "LC_ALL", "LANG"} {
		lang = os.Getenv(k)
		if lang != "" {
			break
		}
	}
	if lang == "" {
		return false
	}
	lang = strings.ToUpper(lang)
	return strings.Contains(lang, "UTF-8") || strings.Contains(lang, "UTF8")
}

var unicodeOptionsHelp = map[string]string{
	"unicode": "Use a little bit of Unicode to improve legibility.",
}

func merge(srcs ...map[string]string) map[string]string {
	count := 0
	for _, m := range srcs {
		count += len(m)
	}
	merged := make(map[string]string, count)
	for _, m := range srcs {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

type escapes struct {
	tick, dash string
}

// flag renders a boolean table cell.
func (esc *escapes) flag(b bool) string {
	if b {
		return esc.tick
	}
	return esc.dash
}

func tabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(Stdout, 5, 3, 2, ' ', 0)
}
