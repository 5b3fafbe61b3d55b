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
	"strconv"

	"github.com/spf13/cobra"
)

func newInspectCmd(st *cliState) *cobra.Command {
	var task int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Evaluate one pair distance task of the initial configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := newPipeline(st.cfg, 1, st.slog())
			if err != nil {
				return err
			}
			rep, err := p.inspect(cmd.Context(), task)
			if err != nil {
				return err
			}
			st.printer.Title("Task " + strconv.Itoa(rep.Task))
			st.printer.KeyValues([][2]string{
				{"tasks", strconv.Itoa(rep.Tasks)},
				{"atoms", strconv.Itoa(rep.Owner) + " " + strconv.Itoa(rep.Neighbor)},
				{"distance", formatFloat(rep.Value)},
				{"gradient norm", formatFloat(rep.GradientNorm)},
				{"skipped", strconv.FormatBool(rep.Skipped)},
			})
			return nil
		},
	}
	cmd.Flags().IntVarP(&task, "task", "t", 0, "task index")
	return cmd
}
