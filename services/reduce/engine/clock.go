// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

// RebuildClock decides on which passes a rebuild is due.
//
// A stride of 0 (or less) makes every pass a rebuild. A stride of s makes
// passes 0, s, 2s, ... rebuilds. The zero value rebuilds every pass.
type RebuildClock struct {
	Stride int
}

// Due reports whether pass is a rebuild pass.
func (c RebuildClock) Due(pass int) bool {
	if c.Stride <= 0 {
		return true
	}
	return pass%c.Stride == 0
}

// Next returns the first rebuild pass strictly after pass.
func (c RebuildClock) Next(pass int) int {
	if c.Stride <= 0 {
		return pass + 1
	}
	return (pass/c.Stride + 1) * c.Stride
}
