// Package cli holds flag plumbing shared by the shotwatch commands.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

// AddHelpVersionFlags registers -h/--help and -v/--version on fs.
func AddHelpVersionFlags(fs *flag.FlagSet) *HelpVersionFlags {
	flags := &HelpVersionFlags{}
	if fs == nil {
		return flags
	}
	fs.BoolVar(&flags.Help, "help", false, "Show this help message")
	fs.BoolVar(&flags.Help, "h", false, "Show this help message")
	fs.BoolVar(&flags.Version, "version", false, "Print version and exit")
	fs.BoolVar(&flags.Version, "v", false, "Print version and exit")
	return flags
}

// Option is one row of a help listing.
type Option struct {
	Name        string
	Description string
}

// PrintOptions writes a titled, aligned two-column listing.
func PrintOptions(out io.Writer, title string, options []Option) {
	if len(options) == 0 {
		return
	}
	width := 0
	for _, option := range options {
		if len(option.Name) > width {
			width = len(option.Name)
		}
	}
	fmt.Fprintf(out, "%s:\n", title)
	for _, option := range options {
		padding := strings.Repeat(" ", width-len(option.Name))
		fmt.Fprintf(out, "  %s%s  %s\n", option.Name, padding, option.Description)
	}
}
