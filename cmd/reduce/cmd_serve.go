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
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(st *cliState) *cobra.Command {
	var (
		addr  string
		ranks int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run passes continuously and serve the outputs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = st.cfg.Serve.Addr
			}
			return serve(cmd.Context(), st, addr, ranks)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides serve.addr")
	cmd.Flags().IntVar(&ranks, "ranks", 1, "number of simulated ranks")
	return cmd
}

func serve(parent context.Context, st *cliState, addr string, ranks int) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := st.slog()

	p, err := newPipeline(st.cfg, ranks, logger)
	if err != nil {
		return err
	}
	sinks, store, err := st.openSinks()
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("close sinks", slog.String("error", err.Error()))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := newServer(p, sinks, store, logger)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.routes(st.cfg.Telemetry.ServiceName),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.loop(ctx, st.cfg.Serve.Interval)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", slog.String("addr", addr), slog.String("run_id", p.RunID()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			serveErr = fmt.Errorf("listen %s: %w", addr, err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	wg.Wait()
	logger.Info("stopped", slog.String("run_id", p.RunID()))
	return serveErr
}
