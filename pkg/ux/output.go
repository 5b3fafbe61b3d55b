// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the reduce CLI.
//
// Output adapts to where it goes: rich lipgloss styling on a terminal,
// plain text when piped, and tab-separated machine output on request.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Palette - deep ocean teals
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Header    lipgloss.Style
	Cell      lipgloss.Style
	Border    lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Header:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright).Padding(0, 1),
	Cell:      lipgloss.NewStyle().Padding(0, 1),
	Border:    lipgloss.NewStyle().Foreground(ColorTealDeep),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
}

// =============================================================================
// Output Level
// =============================================================================

// Level controls how rich the output is.
type Level string

const (
	// LevelRich uses colors, icons and bordered tables.
	LevelRich Level = "rich"

	// LevelPlain uses icons and aligned text without color.
	LevelPlain Level = "plain"

	// LevelMachine prints tab-separated values for scripts.
	LevelMachine Level = "machine"
)

// ParseLevel converts a string to a Level. Unknown strings give LevelPlain.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full":
		return LevelRich
	case "machine", "quiet", "q":
		return LevelMachine
	default:
		return LevelPlain
	}
}

// DetectLevel picks the level for f: REDUCE_OUTPUT when set, rich for a
// terminal, and plain otherwise.
func DetectLevel(f *os.File) Level {
	if env := os.Getenv("REDUCE_OUTPUT"); env != "" {
		return ParseLevel(env)
	}
	if f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return LevelRich
	}
	return LevelPlain
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled output to a writer.
//
// Thread Safety: not safe for concurrent use.
type Printer struct {
	w     io.Writer
	level Level
}

// NewPrinter creates a Printer. A nil writer uses os.Stdout.
func NewPrinter(w io.Writer, level Level) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, level: level}
}

// Stdout returns a Printer for os.Stdout at its detected level.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, DetectLevel(os.Stdout))
}

// Level returns the printer's level.
func (p *Printer) Level() Level {
	return p.level
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if p.level != LevelRich {
		return text
	}
	return style.Render(text)
}

// Title prints a title. Machine output omits it.
func (p *Printer) Title(text string) {
	if p.level == LevelMachine {
		return
	}
	fmt.Fprintln(p.w, p.render(Styles.Title, text))
}

// Success prints a success message with a checkmark.
func (p *Printer) Success(text string) {
	if p.level == LevelMachine {
		fmt.Fprintf(p.w, "OK\t%s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Success, "✓"), p.render(Styles.Success, text))
}

// Warning prints a warning message.
func (p *Printer) Warning(text string) {
	if p.level == LevelMachine {
		fmt.Fprintf(p.w, "WARN\t%s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Warning, "!"), p.render(Styles.Warning, text))
}

// Error prints an error message.
func (p *Printer) Error(text string) {
	if p.level == LevelMachine {
		fmt.Fprintf(p.w, "ERROR\t%s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Error, "✗"), p.render(Styles.Error, text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.level == LevelMachine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(Styles.Muted, "│"), text)
}

// KeyValues prints aligned key: value lines.
func (p *Printer) KeyValues(pairs [][2]string) {
	width := 0
	for _, kv := range pairs {
		width = max(width, len(kv[0]))
	}
	for _, kv := range pairs {
		if p.level == LevelMachine {
			fmt.Fprintf(p.w, "%s\t%s\n", kv[0], kv[1])
			continue
		}
		key := fmt.Sprintf("%-*s", width, kv[0])
		fmt.Fprintf(p.w, "  %s  %s\n", p.render(Styles.Muted, key), kv[1])
	}
}

// Table prints rows under headers: a bordered lipgloss table when rich, a
// bordered table without color when plain, and tab-separated lines for
// machines.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.level == LevelMachine {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().
		Headers(headers...).
		Rows(rows...)
	if p.level == LevelRich {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(Styles.Border).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.Header
				}
				return Styles.Cell
			})
	} else {
		plain := lipgloss.NewStyle().Padding(0, 1)
		t = t.Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return plain })
	}
	fmt.Fprintln(p.w, t.String())
}
