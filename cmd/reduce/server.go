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
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/multicolvar/services/reduce/storage"
	"github.com/AleutianAI/multicolvar/services/reduce/telemetry"
)

// server runs passes on a ticker and serves the latest outputs.
//
// Thread Safety: All methods are safe for concurrent use.
type server struct {
	pipe   *pipeline
	sinks  storage.MultiSink
	store  *storage.BadgerStore
	logger *slog.Logger

	mu       sync.RWMutex
	latest   *storage.Record
	lastErr  error
	failures int
}

func newServer(pipe *pipeline, sinks storage.MultiSink, store *storage.BadgerStore, logger *slog.Logger) *server {
	return &server{pipe: pipe, sinks: sinks, store: store, logger: logger}
}

// =============================================================================
// Pass Loop
// =============================================================================

// stepOnce runs one pass, writes the record to every sink and publishes it.
func (s *server) stepOnce(ctx context.Context) error {
	res, rec, err := s.pipe.step(ctx, false)
	if err == nil && len(s.sinks) > 0 {
		err = s.sinks.Write(ctx, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		s.failures++
		return err
	}
	s.latest = &rec
	s.lastErr = nil
	s.logger.Debug("pass published",
		slog.Int("pass", res.Pass),
		slog.Int("evaluated", res.Evaluated),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

// loop steps every interval until ctx is done. Failed passes are logged
// and the loop continues.
func (s *server) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.stepOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			telemetry.LoggerWithTrace(ctx, s.logger).Error("pass failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Routes
// =============================================================================

// routes builds the gin engine.
//
// Description:
//
//	GET /v1/reduce/health    liveness with the failure count
//	GET /v1/reduce/outputs   the latest record, 404 before the first pass
//	GET /v1/reduce/vessels   labels of the attached vessels
//	GET /v1/reduce/history   stored records of this run, 503 without a store
//	GET /metrics             Prometheus exposition when enabled
func (s *server) routes(service string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(service))

	v1 := router.Group("/v1")
	{
		reduce := v1.Group("/reduce")
		reduce.GET("/health", s.handleHealth)
		reduce.GET("/outputs", s.handleOutputs)
		reduce.GET("/vessels", s.handleVessels)
		reduce.GET("/history", s.handleHistory)
	}
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}
	return router
}

func (s *server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body := gin.H{
		"status":   "ok",
		"run_id":   s.pipe.RunID(),
		"failures": s.failures,
	}
	if s.lastErr != nil {
		body["status"] = "degraded"
		body["last_error"] = s.lastErr.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) handleOutputs(c *gin.Context) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pass has completed"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *server) handleVessels(c *gin.Context) {
	vessels := s.pipe.Vessels()
	out := make([]gin.H, 0, len(vessels))
	for _, v := range vessels {
		out = append(out, gin.H{"name": v.Name(), "label": v.Label()})
	}
	c.JSON(http.StatusOK, gin.H{"vessels": out})
}

func (s *server) handleHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no record store configured"})
		return
	}
	runID := c.DefaultQuery("run", s.pipe.RunID())
	if runID == "" || strings.Contains(runID, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	records, err := s.store.List(c.Request.Context(), runID)
	if err != nil {
		s.logger.Error("history lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "records": records})
}
