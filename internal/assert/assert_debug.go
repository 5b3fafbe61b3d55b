// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build debug

// Package assert provides contract checks that are compiled in only for
// builds tagged "debug". In default builds every check is a no-op.
package assert

import "fmt"

// Enabled reports whether contract checks are active in this build.
const Enabled = true

// That panics with a formatted message when condition is false.
func That(condition bool, msg string, args ...any) {
	if condition {
		return
	}
	panic(fmt.Errorf("contract violation: %s", fmt.Sprintf(msg, args...)))
}
