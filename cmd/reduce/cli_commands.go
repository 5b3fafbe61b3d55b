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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/multicolvar/pkg/logging"
	"github.com/AleutianAI/multicolvar/pkg/ux"
	"github.com/AleutianAI/multicolvar/services/reduce/config"
	"github.com/AleutianAI/multicolvar/services/reduce/storage"
	"github.com/AleutianAI/multicolvar/services/reduce/telemetry"
)

const (
	serviceName = "reduce"

	// shutdownTimeout bounds telemetry flushes and HTTP shutdown.
	shutdownTimeout = 5 * time.Second
)

// cliState is shared by every subcommand. PersistentPreRunE fills it in
// before any RunE executes.
type cliState struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string
	outputMode string

	cfg       config.Config
	logger    *logging.Logger
	printer   *ux.Printer
	telemetry func(context.Context) error
}

// newRootCmd builds the command tree.
//
// Inputs:
//
//	out - Destination for command output.
//	errOut - Destination for console logs.
//
// Outputs:
//
//	*cobra.Command - The "reduce" root command.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	st := &cliState{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:   "reduce",
		Short: "Reduce pair distance collective variables over a particle system",
		Long: `reduce evaluates a set of pair distances every pass, folds them into
vessels (sums, averages, switching-function counts, soft extrema) and
records the outputs with their derivatives.`,
		SilenceUsage:       true,
		PersistentPreRunE:  st.setup,
		PersistentPostRunE: st.teardown,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&st.configPath, "config", "c", "", "path to a YAML or JSON config file")
	flags.StringVar(&st.logLevel, "log-level", "", "override the configured log level")
	flags.StringVarP(&st.outputMode, "output", "o", "", "output style: rich, plain or machine")

	rootCmd.AddCommand(
		newRunCmd(st),
		newVesselsCmd(st),
		newInspectCmd(st),
		newHistoryCmd(st),
		newServeCmd(st),
	)
	return rootCmd
}

// setup loads configuration and starts logging and telemetry.
func (st *cliState) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return err
	}
	if st.logLevel != "" {
		cfg.Logging.Level = st.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	st.cfg = cfg

	logCfg := cfg.LoggerConfig(serviceName)
	logCfg.Output = st.errOut
	st.logger = logging.New(logCfg)

	st.printer = ux.NewPrinter(st.out, st.outputLevel())

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
		SampleRate:     cfg.Telemetry.SampleRate,
		Writer:         st.errOut,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	st.telemetry = shutdown
	return nil
}

// teardown flushes telemetry and closes the log file.
func (st *cliState) teardown(_ *cobra.Command, _ []string) error {
	var errs []error
	if st.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.telemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		st.telemetry = nil
	}
	if st.logger != nil {
		if err := st.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (st *cliState) outputLevel() ux.Level {
	if st.outputMode != "" {
		return ux.ParseLevel(st.outputMode)
	}
	if f, ok := st.out.(*os.File); ok {
		return ux.DetectLevel(f)
	}
	return ux.LevelPlain
}

func (st *cliState) slog() *slog.Logger {
	return st.logger.Slog()
}

// openSinks opens every configured record sink.
//
// Outputs:
//
//	storage.MultiSink - All sinks, possibly empty. Close it when done.
//	*storage.BadgerStore - The badger store when configured, else nil.
//	error - Non-nil if the badger store cannot be opened.
func (st *cliState) openSinks() (storage.MultiSink, *storage.BadgerStore, error) {
	var sinks storage.MultiSink
	var store *storage.BadgerStore

	sc := st.cfg.Storage
	if sc.InMemory || sc.BadgerDir != "" {
		s, err := st.openStore()
		if err != nil {
			return nil, nil, err
		}
		store = s
		sinks = append(sinks, s)
	}
	if sc.Influx.URL != "" {
		sinks = append(sinks, storage.NewInfluxSink(storage.InfluxConfig{
			URL:    sc.Influx.URL,
			Token:  sc.Influx.Token,
			Org:    sc.Influx.Org,
			Bucket: sc.Influx.Bucket,
		}, st.slog()))
	}
	return sinks, store, nil
}

// openStore opens the configured badger record store.
func (st *cliState) openStore() (*storage.BadgerStore, error) {
	sc := st.cfg.Storage
	bc := storage.DefaultBadgerConfig(sc.BadgerDir)
	if sc.InMemory {
		bc = storage.InMemoryConfig()
	}
	bc.Logger = st.slog()
	store, err := storage.OpenBadgerStore(bc)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return store, nil
}
