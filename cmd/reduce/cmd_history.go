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
	"errors"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
)

// errNoStore is returned by history when no persistent record store is
// configured.
var errNoStore = errors.New("history needs storage.badger_dir")

func newHistoryCmd(st *cliState) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs, or the records of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if st.cfg.Storage.BadgerDir == "" || st.cfg.Storage.InMemory {
				return errNoStore
			}
			store, err := st.openStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					st.slog().Error("close record store", slog.String("error", err.Error()))
				}
			}()
			ctx := cmd.Context()

			if runID == "" {
				runs, err := store.Runs(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, id := range runs {
					rows = append(rows, []string{id})
				}
				st.printer.Table([]string{"run"}, rows)
				return nil
			}

			records, err := store.List(ctx, runID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				st.printer.Warning("no records for run " + runID)
				return nil
			}
			headers := []string{"pass", "tasks", "evaluated", "rebuilt"}
			for _, o := range records[0].Outputs {
				headers = append(headers, o.Label)
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				row := []string{
					strconv.Itoa(rec.Pass),
					strconv.Itoa(rec.Tasks),
					strconv.Itoa(rec.Evaluated),
					strconv.FormatBool(rec.Rebuilt),
				}
				for _, o := range rec.Outputs {
					row = append(row, formatFloat(o.Value))
				}
				rows = append(rows, row)
			}
			st.printer.Table(headers, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id to show")
	return cmd
}
