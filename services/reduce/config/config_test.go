// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multicolvar/pkg/logging"
	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, engine.Epsilon, cfg.Engine.Tolerance)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, cfg.Distances.GroupA)
	assert.Len(t, cfg.Distances.GroupB, 59)
	assert.Len(t, cfg.Vessels, 2)
	assert.Equal(t, time.Second, cfg.Serve.Interval)
	assert.False(t, cfg.StorageEnabled())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.System.Atoms)
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "reduce.yaml", `
engine:
  tolerance: 0.001
  workers: 3
system:
  atoms: 20
  box: 5
  seed: 9
distances:
  group_a: [0, 1]
  group_b: [2, 3, 4]
  nl_cutoff: 2
  nl_stride: 4
vessels:
  - name: SUM
  - name: LESS_THAN
    input: "RATIONAL R_0=1"
    number: 2
serve:
  interval: 250ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.001, cfg.Engine.Tolerance)
	assert.Equal(t, 3, cfg.Engine.Workers)
	assert.Equal(t, uint64(9), cfg.System.Seed)
	assert.Equal(t, []int{0, 1}, cfg.Distances.GroupA)
	assert.Equal(t, 4, cfg.Distances.Stride)
	require.Len(t, cfg.Vessels, 2)
	assert.Equal(t, 2, cfg.Vessels[1].Number)
	assert.Equal(t, 250*time.Millisecond, cfg.Serve.Interval)
	assert.Equal(t, "info", cfg.Logging.Level, "unset fields keep defaults")

	ec := cfg.ToEngineConfig()
	assert.Equal(t, engine.Config{Tolerance: 0.001, Workers: 3}, ec)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "reduce.json", `{"engine": {"serial": true}, "logging": {"level": "debug", "json": true}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Engine.Serial)

	lc := cfg.LoggerConfig("reduce")
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.JSON)
	assert.Equal(t, "reduce", lc.Service)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "bad.yaml", "engine: [1, 2\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "reduce.yaml", "engine:\n  workers: 2\n")
	t.Setenv("REDUCE_WORKERS", "6")
	t.Setenv("REDUCE_TOLERANCE", "0.5")
	t.Setenv("REDUCE_SERIAL", "true")
	t.Setenv("REDUCE_NL_STRIDE", "7")
	t.Setenv("REDUCE_NL_CUTOFF", "1.5")
	t.Setenv("REDUCE_SEED", "42")
	t.Setenv("REDUCE_LOG_LEVEL", "warn")
	t.Setenv("REDUCE_INFLUX_URL", "http://localhost:8086")
	t.Setenv("REDUCE_INFLUX_ORG", "lab")
	t.Setenv("REDUCE_INFLUX_BUCKET", "colvar")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Engine.Workers)
	assert.Equal(t, 0.5, cfg.Engine.Tolerance)
	assert.True(t, cfg.Engine.Serial)
	assert.Equal(t, 7, cfg.Distances.Stride)
	assert.Equal(t, 1.5, cfg.Distances.Cutoff)
	assert.Equal(t, uint64(42), cfg.System.Seed)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.StorageEnabled())
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("REDUCE_WORKERS", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "REDUCE_WORKERS")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.applyGroupDefaults()
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative tolerance", func(c *Config) { c.Engine.Tolerance = -1 }},
		{"too many workers", func(c *Config) { c.Engine.Workers = 65 }},
		{"tiny system", func(c *Config) { c.System.Atoms = 1 }},
		{"no box", func(c *Config) { c.System.Box = 0 }},
		{"no vessels", func(c *Config) { c.Vessels = nil }},
		{"unnamed vessel", func(c *Config) { c.Vessels[0].Name = "" }},
		{"negative group index", func(c *Config) { c.Distances.GroupA = []int{-1} }},
		{"group index outside system", func(c *Config) { c.Distances.GroupB = []int{64} }},
		{"empty group", func(c *Config) { c.Distances.GroupB = nil }},
		{"cutoff beyond half box", func(c *Config) { c.Distances.Cutoff = 2 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.TraceExporter = "otlp" }},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 2 }},
		{"influx without bucket", func(c *Config) {
			c.Storage.Influx.URL = "http://localhost:8086"
			c.Storage.Influx.Org = "lab"
		}},
		{"influx bad url", func(c *Config) {
			c.Storage.Influx = InfluxConfig{URL: "not a url", Org: "o", Bucket: "b"}
		}},
		{"zero serve interval", func(c *Config) { c.Serve.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
