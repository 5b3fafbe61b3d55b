// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multicolvar/services/reduce/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reduce.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestVesselsCmd(t *testing.T) {
	out, err := execute(t, "vessels", "-o", "machine")
	require.NoError(t, err)
	assert.Contains(t, out, "LESS_THAN\tRATIONAL R_0=0.5 NN=6 MM=12")
	assert.Contains(t, out, "BETWEEN\t")
	assert.Contains(t, out, "lessthan\tLESS_THAN\t")
	assert.Contains(t, out, "min\tMIN\tBETA=5\n")
}

func TestRunCmd_PrintsOutputs(t *testing.T) {
	out, err := execute(t, "run", "--passes", "3", "--ranks", "2", "-o", "machine")
	require.NoError(t, err)
	assert.Contains(t, out, "passes\t3\n")
	assert.Contains(t, out, "ranks\t2\n")
	assert.Contains(t, out, "vessel\tvalue\tgradient norm\n")
	assert.Contains(t, out, "\nlessthan\t")
	assert.Contains(t, out, "\nmin\t")
}

func TestRunCmd_PlainOutput(t *testing.T) {
	out, err := execute(t, "run", "-n", "1", "-o", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Run ")
	assert.Contains(t, out, "lessthan")
}

func TestRunCmd_RejectsZeroPasses(t *testing.T) {
	_, err := execute(t, "run", "--passes", "0")
	assert.Error(t, err)
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "system:\n  atoms: 1\n")
	_, err := execute(t, "run", "--config", path)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunCmd_LogLevelOverride(t *testing.T) {
	_, err := execute(t, "run", "-n", "1", "--log-level", "verbose")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunThenHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "records")
	path := writeConfig(t, "storage:\n  badger_dir: "+dir+"\n")

	_, err := execute(t, "run", "--config", path, "--passes", "3")
	require.NoError(t, err)

	out, err := execute(t, "history", "--config", path, "-o", "machine")
	require.NoError(t, err)
	runs := lines(out)
	require.Len(t, runs, 2)
	assert.Equal(t, "run", runs[0])
	runID := runs[1]

	out, err = execute(t, "history", "--config", path, "-o", "machine", "--run", runID)
	require.NoError(t, err)
	rows := lines(out)
	require.Len(t, rows, 4)
	assert.Equal(t, "pass\ttasks\tevaluated\trebuilt\tlessthan\tmin", rows[0])
	for i, row := range rows[1:] {
		assert.True(t, strings.HasPrefix(row, []string{"0\t", "1\t", "2\t"}[i]), row)
	}

	out, err = execute(t, "history", "--config", path, "-o", "machine", "--run", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "WARN\tno records for run missing")
}

func TestHistoryCmd_NeedsStore(t *testing.T) {
	_, err := execute(t, "history")
	assert.ErrorIs(t, err, errNoStore)
}

func TestInspectCmd(t *testing.T) {
	out, err := execute(t, "inspect", "--task", "2", "-o", "machine")
	require.NoError(t, err)
	assert.Contains(t, out, "tasks\t")
	assert.Contains(t, out, "distance\t")
	assert.Contains(t, out, "skipped\tfalse")

	_, err = execute(t, "inspect", "--task", "100000")
	assert.Error(t, err)
}
