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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
	"github.com/AleutianAI/multicolvar/services/reduce/vessel"
)

// vesselInputs gives an example input string for each built-in vessel.
var vesselInputs = map[string]string{
	"SUM":       "",
	"AVERAGE":   "",
	"LESS_THAN": "RATIONAL R_0=0.5 NN=6 MM=12",
	"MORE_THAN": "RATIONAL R_0=0.5",
	"BETWEEN":   "LOWER=0.2 UPPER=0.6 SMEAR=0.5",
	"MIN":       "BETA=50",
	"MAX":       "BETA=50",
}

func newVesselsCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "vessels",
		Short: "List the available vessels and the configured ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := vessel.NewRegistry()
			rows := make([][]string, 0, len(registry.Names()))
			for _, name := range registry.Names() {
				rows = append(rows, []string{name, vesselInputs[name]})
			}
			st.printer.Title("Available vessels")
			st.printer.Table([]string{"name", "example input"}, rows)

			configured := make([][]string, 0, len(st.cfg.Vessels))
			for _, v := range st.cfg.Vessels {
				configured = append(configured, []string{engine.Label(v.Name, v.Number), v.Name, v.Input})
			}
			st.printer.Title("Configured vessels")
			st.printer.Table([]string{"label", "name", "input"}, configured)
			return nil
		},
	}
}
