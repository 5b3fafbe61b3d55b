// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the settings of the reduce command and service.
//
// Values are resolved with priority env > file > defaults. Files may be YAML
// or JSON. Environment overrides use the REDUCE_ prefix.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/multicolvar/pkg/logging"
	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var configValidate = validator.New()

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the full configuration of a reduce run.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after Load.
type Config struct {
	// Engine controls pass execution.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// System describes the synthetic particle configuration.
	System SystemConfig `json:"system" yaml:"system"`

	// Distances configures the pair distance source.
	Distances DistancesConfig `json:"distances" yaml:"distances"`

	// Vessels lists the reductions to attach, in layout order.
	Vessels []VesselConfig `json:"vessels" yaml:"vessels" validate:"min=1,dive"`

	// Logging configures pkg/logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry configures trace and metric exporters.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Storage configures where pass records go.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Serve configures the HTTP service.
	Serve ServeConfig `json:"serve" yaml:"serve"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	Tolerance     float64 `json:"tolerance" yaml:"tolerance" validate:"gte=0"`
	Serial        bool    `json:"serial" yaml:"serial"`
	Workers       int     `json:"workers" yaml:"workers" validate:"gte=0,lte=64"`
	RebuildStride int     `json:"rebuild_stride" yaml:"rebuild_stride" validate:"gte=0"`
}

// SystemConfig describes the random-walk particle system.
type SystemConfig struct {
	Atoms int     `json:"atoms" yaml:"atoms" validate:"gte=2"`
	Box   float64 `json:"box" yaml:"box" validate:"gt=0"`
	Seed  uint64  `json:"seed" yaml:"seed"`
	Step  float64 `json:"step" yaml:"step" validate:"gte=0"`
}

// DistancesConfig configures colvar.Distances. Empty groups default to the
// first five atoms against the rest.
type DistancesConfig struct {
	GroupA     []int   `json:"group_a" yaml:"group_a" validate:"dive,gte=0"`
	GroupB     []int   `json:"group_b" yaml:"group_b" validate:"dive,gte=0"`
	Cutoff     float64 `json:"nl_cutoff" yaml:"nl_cutoff" validate:"gt=0"`
	Stride     int     `json:"nl_stride" yaml:"nl_stride" validate:"gte=0"`
	SkipBeyond float64 `json:"skip_beyond" yaml:"skip_beyond" validate:"gte=0"`
}

// VesselConfig names one vessel to attach.
type VesselConfig struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Input  string `json:"input" yaml:"input"`
	Number int    `json:"number" yaml:"number" validate:"gte=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	Dir   string `json:"dir" yaml:"dir"`
	JSON  bool   `json:"json" yaml:"json"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	ServiceName    string  `json:"service_name" yaml:"service_name" validate:"required"`
	TraceExporter  string  `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string  `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// StorageConfig configures the record sinks. An empty BadgerDir with
// InMemory false disables the badger store; an empty Influx URL disables
// the InfluxDB sink.
type StorageConfig struct {
	BadgerDir string       `json:"badger_dir" yaml:"badger_dir"`
	InMemory  bool         `json:"in_memory" yaml:"in_memory"`
	Influx    InfluxConfig `json:"influx" yaml:"influx"`
}

// InfluxConfig configures the InfluxDB v2 sink.
type InfluxConfig struct {
	URL    string `json:"url" yaml:"url" validate:"omitempty,url"`
	Token  string `json:"token" yaml:"token"`
	Org    string `json:"org" yaml:"org" validate:"required_with=URL"`
	Bucket string `json:"bucket" yaml:"bucket" validate:"required_with=URL"`
}

// ServeConfig configures the HTTP service.
type ServeConfig struct {
	Addr     string        `json:"addr" yaml:"addr" validate:"required"`
	Interval time.Duration `json:"interval" yaml:"interval" validate:"gt=0"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Tolerance: engine.Epsilon,
		},
		System: SystemConfig{
			Atoms: 64,
			Box:   4.0,
			Seed:  1,
			Step:  0.02,
		},
		Distances: DistancesConfig{
			Cutoff: 1.2,
			Stride: 10,
		},
		Vessels: []VesselConfig{
			{Name: "LESS_THAN", Input: "RATIONAL R_0=0.5 NN=6 MM=12"},
			{Name: "MIN", Input: "BETA=5"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "multicolvar-reduce",
			TraceExporter:  "none",
			MetricExporter: "none",
			SampleRate:     1.0,
		},
		Serve: ServeConfig{
			Addr:     ":8085",
			Interval: time.Second,
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration with priority env > file > defaults.
//
// Inputs:
//
//	path - YAML or JSON file. Empty uses the defaults. A named file must
//	  exist.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file is unreadable or invalid, or the merged
//	  configuration fails Validate.
func Load(path string) (Config, error) {
	config := Default()
	if path != "" {
		if err := loadFile(path, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&config); err != nil {
		return config, err
	}
	config.applyGroupDefaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(config *Config) error {
	var errs []error
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setFloat("REDUCE_TOLERANCE", &config.Engine.Tolerance)
	setBool("REDUCE_SERIAL", &config.Engine.Serial)
	setInt("REDUCE_WORKERS", &config.Engine.Workers)
	setInt("REDUCE_REBUILD_STRIDE", &config.Engine.RebuildStride)
	setInt("REDUCE_ATOMS", &config.System.Atoms)
	setFloat("REDUCE_BOX", &config.System.Box)
	if v := os.Getenv("REDUCE_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("REDUCE_SEED: %w", err))
		} else {
			config.System.Seed = seed
		}
	}
	setFloat("REDUCE_NL_CUTOFF", &config.Distances.Cutoff)
	setInt("REDUCE_NL_STRIDE", &config.Distances.Stride)
	setString("REDUCE_LOG_LEVEL", &config.Logging.Level)
	setString("REDUCE_LOG_DIR", &config.Logging.Dir)
	setString("REDUCE_TRACE_EXPORTER", &config.Telemetry.TraceExporter)
	setString("REDUCE_METRIC_EXPORTER", &config.Telemetry.MetricExporter)
	setString("REDUCE_OTLP_ENDPOINT", &config.Telemetry.OTLPEndpoint)
	setString("REDUCE_BADGER_DIR", &config.Storage.BadgerDir)
	setString("REDUCE_INFLUX_URL", &config.Storage.Influx.URL)
	setString("REDUCE_INFLUX_TOKEN", &config.Storage.Influx.Token)
	setString("REDUCE_INFLUX_ORG", &config.Storage.Influx.Org)
	setString("REDUCE_INFLUX_BUCKET", &config.Storage.Influx.Bucket)
	setString("REDUCE_SERVE_ADDR", &config.Serve.Addr)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %w", errors.Join(errs...))
	}
	return nil
}

// applyGroupDefaults fills empty distance groups: the first five atoms
// (or half the system, if smaller) against the rest.
func (c *Config) applyGroupDefaults() {
	if len(c.Distances.GroupA) > 0 || len(c.Distances.GroupB) > 0 {
		return
	}
	split := min(5, c.System.Atoms/2)
	for i := 0; i < c.System.Atoms; i++ {
		if i < split {
			c.Distances.GroupA = append(c.Distances.GroupA, i)
		} else {
			c.Distances.GroupB = append(c.Distances.GroupB, i)
		}
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks struct tags and cross-field constraints.
//
// Outputs:
//
//	error - Wraps ErrInvalidConfig, naming the offending field.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.ToEngineConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalidConfig, err)
	}
	if len(c.Distances.GroupA) == 0 || len(c.Distances.GroupB) == 0 {
		return fmt.Errorf("%w: distances groups must both be non-empty", ErrInvalidConfig)
	}
	for _, group := range [][]int{c.Distances.GroupA, c.Distances.GroupB} {
		for _, a := range group {
			if a >= c.System.Atoms {
				return fmt.Errorf("%w: atom %d outside system of %d", ErrInvalidConfig, a, c.System.Atoms)
			}
		}
	}
	if c.Distances.Cutoff >= c.System.Box/2 {
		return fmt.Errorf("%w: nl_cutoff %v must be below half the box edge %v", ErrInvalidConfig, c.Distances.Cutoff, c.System.Box)
	}
	if c.Telemetry.TraceExporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("%w: otlp trace exporter requires otlp_endpoint", ErrInvalidConfig)
	}
	return nil
}

// ToEngineConfig converts the engine section to engine.Config.
func (c Config) ToEngineConfig() engine.Config {
	return engine.Config{
		Tolerance:     c.Engine.Tolerance,
		Serial:        c.Engine.Serial,
		Workers:       c.Engine.Workers,
		RebuildStride: c.Engine.RebuildStride,
	}
}

// LoggerConfig converts the logging section to logging.Config. The level
// must already have passed Validate.
func (c Config) LoggerConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}

// StorageEnabled reports whether any record sink is configured.
func (c Config) StorageEnabled() bool {
	return c.Storage.InMemory || c.Storage.BadgerDir != "" || strings.TrimSpace(c.Storage.Influx.URL) != ""
}
