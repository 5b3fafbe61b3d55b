// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"rich":    LevelRich,
		"FULL":    LevelRich,
		"machine": LevelMachine,
		"q":       LevelMachine,
		"plain":   LevelPlain,
		"":        LevelPlain,
		"fancy":   LevelPlain,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestDetectLevel(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	t.Setenv("REDUCE_OUTPUT", "")
	assert.Equal(t, LevelPlain, DetectLevel(f), "regular files are not terminals")
	assert.Equal(t, LevelPlain, DetectLevel(nil))

	t.Setenv("REDUCE_OUTPUT", "machine")
	assert.Equal(t, LevelMachine, DetectLevel(f))
}

func TestPrinter_Messages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, LevelPlain)
	assert.Equal(t, LevelPlain, p.Level())

	p.Title("Reduction")
	p.Success("done")
	p.Warning("stride below 2")
	p.Error("pass aborted")
	p.Info("pass 3")

	out := buf.String()
	assert.Contains(t, out, "Reduction\n")
	assert.Contains(t, out, "✓ done")
	assert.Contains(t, out, "! stride below 2")
	assert.Contains(t, out, "✗ pass aborted")
	assert.Contains(t, out, "│ pass 3")
	assert.NotContains(t, out, "\x1b[", "plain output has no escape codes")
}

func TestPrinter_MachineMessages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, LevelMachine)

	p.Title("hidden")
	p.Success("done")
	p.Warning("careful")
	p.Error("bad")
	p.Info("info")

	assert.Equal(t, "OK\tdone\nWARN\tcareful\nERROR\tbad\ninfo\n", buf.String())
}

func TestPrinter_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, LevelPlain).KeyValues([][2]string{{"task", "3"}, {"gradient", "0.5"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  task      3", lines[0])
	assert.Equal(t, "  gradient  0.5", lines[1])

	buf.Reset()
	NewPrinter(&buf, LevelMachine).KeyValues([][2]string{{"task", "3"}})
	assert.Equal(t, "task\t3\n", buf.String())
}

func TestPrinter_Table(t *testing.T) {
	headers := []string{"label", "value"}
	rows := [][]string{{"lessthan", "4.2"}, {"min", "0.31"}}

	var buf bytes.Buffer
	NewPrinter(&buf, LevelMachine).Table(headers, rows)
	assert.Equal(t, "label\tvalue\nlessthan\t4.2\nmin\t0.31\n", buf.String())

	for _, level := range []Level{LevelPlain, LevelRich} {
		buf.Reset()
		NewPrinter(&buf, level).Table(headers, rows)
		out := buf.String()
		assert.Contains(t, out, "label", "level %s", level)
		assert.Contains(t, out, "lessthan", "level %s", level)
		assert.Contains(t, out, "0.31", "level %s", level)
	}
}
