package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/comparethewait/ctw/internal/ui"
)

// minFlagColumn keeps flag descriptions of short flag sets aligned with
// those of the scrape command
const minFlagColumn = 24

// writeHelp renders the help page of cmd. The usage variant shown after a
// bad invocation leaves out the descriptions, examples and global flags.
func writeHelp(w io.Writer, cmd *cobra.Command, full bool) {
	if full {
		fmt.Fprintf(w, "\n%s  %s\n", ui.Title(cmd.CommandPath()), cmd.Short)
		if long := strings.TrimSpace(cmd.Long); long != "" && long != cmd.Short {
			fmt.Fprintf(w, "\n%s\n", long)
		}
	}

	section(w, "Usage")
	if cmd.Runnable() {
		fmt.Fprintf(w, "  %s\n", ui.Accent(cmd.UseLine()))
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "  %s %s %s\n", ui.Accent(cmd.CommandPath()), ui.Warn("<command>"), ui.Dim("[flags]"))
	}

	if full && cmd.HasExample() {
		section(w, "Examples")
		writeExamples(w, cmd.Example)
	}

	if cmd.HasAvailableSubCommands() {
		section(w, "Commands")
		var rows [][2]string
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() && c.Name() != "help" {
				rows = append(rows, [2]string{c.Name(), c.Short})
			}
		}
		writeColumns(w, rows, 0, ui.Accent)
	}

	if cmd.HasAvailableLocalFlags() {
		section(w, "Flags")
		writeColumns(w, flagRows(cmd.LocalFlags()), minFlagColumn, ui.Success)
	}
	if full && cmd.HasAvailableInheritedFlags() {
		section(w, "Global Flags")
		writeColumns(w, flagRows(cmd.InheritedFlags()), minFlagColumn, ui.Success)
	}

	more := cmd.CommandPath() + " --help"
	if cmd.HasAvailableSubCommands() {
		more = cmd.CommandPath() + " <command> --help"
	}
	fmt.Fprintf(w, "\n%s\n\n", ui.Dim(fmt.Sprintf("Run %q for more information.", more)))
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", ui.Heading(title))
}

// writeExamples prints comment lines dimmed and command lines highlighted,
// keeping the blank lines that separate examples
func writeExamples(w io.Writer, example string) {
	for _, line := range strings.Split(strings.Trim(example, "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			fmt.Fprintln(w)
		case strings.HasPrefix(line, "#"):
			fmt.Fprintf(w, "  %s\n", ui.Dim(line))
		default:
			fmt.Fprintf(w, "  %s\n", ui.Success(line))
		}
	}
}

// flagRows lists the visible flags of fs as name and description columns
func flagRows(fs *pflag.FlagSet) [][2]string {
	var rows [][2]string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "    --" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", --" + f.Name
		}
		varname, usage := pflag.UnquoteUsage(f)
		if varname != "" {
			name += " " + varname
		}
		switch {
		case !hasDefault(f):
		case f.Value.Type() == "string":
			usage += fmt.Sprintf(" (default %q)", f.DefValue)
		default:
			usage += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		if f.Deprecated != "" {
			usage += " (deprecated: " + f.Deprecated + ")"
		}
		rows = append(rows, [2]string{name, usage})
	})
	return rows
}

func hasDefault(f *pflag.Flag) bool {
	switch f.DefValue {
	case "", "false", "0", "0s", "[]":
		return false
	}
	return true
}

// writeColumns prints rows as two aligned columns. The first column is at
// least minWidth wide.
func writeColumns(w io.Writer, rows [][2]string, minWidth int, style func(string) string) {
	width := minWidth
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		pad := strings.Repeat(" ", width-len(r[0])+2)
		fmt.Fprintf(w, "  %s%s%s\n", style(r[0]), pad, ui.Dim(r[1]))
	}
}
