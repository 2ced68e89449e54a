// Package clifmt renders plain-text tables for CLI output.
package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const defaultTableWidth = 120

type TableOptions struct {
	Title     string
	Headers   []string
	Rows      [][]string
	EmptyText string
	// Width overrides terminal detection; the last column is truncated to fit.
	Width int
}

func PrintTable(out io.Writer, opts TableOptions) {
	if out == nil {
		out = os.Stdout
	}
	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintf(out, "%s (%d)\n", title, len(opts.Rows))
	}
	if len(opts.Rows) == 0 {
		empty := strings.TrimSpace(opts.EmptyText)
		if empty == "" {
			empty = "No entries."
		}
		fmt.Fprintln(out, empty)
		return
	}

	cols := len(opts.Headers)
	widths := make([]int, cols)
	for i, h := range opts.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range opts.Rows {
		for i := 0; i < cols && i < len(row); i++ {
			if w := utf8.RuneCountInString(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := tableWidth(out, opts.Width)
	used := 0
	for i := 0; i < cols-1; i++ {
		used += widths[i] + 2
	}
	if last := total - used; cols > 0 && last > 0 && widths[cols-1] > last {
		widths[cols-1] = last
	}

	writeRow(out, opts.Headers, widths)
	dashes := make([]string, cols)
	for i, w := range widths {
		dashes[i] = strings.Repeat("-", w)
	}
	writeRow(out, dashes, widths)
	for _, row := range opts.Rows {
		writeRow(out, row, widths)
	}
}

func writeRow(out io.Writer, cells []string, widths []int) {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = truncateRunes(cells[i], w)
		}
		if i < len(widths)-1 {
			cell = padRightRunes(cell, w)
		}
		parts[i] = cell
	}
	fmt.Fprintln(out, strings.TrimRight(strings.Join(parts, "  "), " "))
}

func tableWidth(out io.Writer, override int) int {
	if override > 0 {
		return override
	}
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultTableWidth
}

func padRightRunes(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

func truncateRunes(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 3 {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-3]) + "..."
}
