package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"latte/internal/builtins"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "List runtime builtins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		llvm, err := cmd.Flags().GetBool("llvm")
		if err != nil {
			return fmt.Errorf("failed to get llvm flag: %w", err)
		}
		out := cmd.OutOrStdout()
		if llvm {
			for _, decl := range builtins.Declarations() {
				fmt.Fprintln(out, decl)
			}
			return nil
		}
		renderBuiltins(out, builtins.All())
		return nil
	},
}

func init() {
	builtinsCmd.Flags().Bool("llvm", false, "print LLVM declarations instead of a table")
}

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func renderBuiltins(out io.Writer, list []*builtins.Builtin) {
	header := []string{"NAME", "SYMBOL", "SIGNATURE", "DESCRIPTION"}
	rows := make([][]string, 0, len(list))
	for _, b := range list {
		name := b.Name
		if b.Internal {
			name += "*"
		}
		rows = append(rows, []string{name, b.Symbol, b.Signature(), b.Doc})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	cells := make([]string, len(header))
	for i, h := range header {
		// pad before styling so escape codes do not count towards width
		cells[i] = headerStyle.Render(h) + strings.Repeat(" ", widths[i]-runewidth.StringWidth(h))
	}
	fmt.Fprintln(out, strings.TrimRight(strings.Join(cells, "  "), " "))
	for _, row := range rows {
		for i, cell := range row {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	fmt.Fprintln(out, "\n* emitted by the compiler, not callable from Latte source")
}
