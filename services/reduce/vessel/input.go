// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vessel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

// params holds a parsed vessel input string.
//
// An input is a whitespace separated list of KEY=VALUE tokens plus at most
// one bare word naming a kind, e.g. "RATIONAL R_0=0.5 NN=8". Surrounding
// braces are stripped. Keys are case-insensitive.
type params struct {
	kind   string
	values map[string]string
	used   map[string]bool
}

func parseParams(input string) (*params, error) {
	p := &params{values: make(map[string]string), used: make(map[string]bool)}
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimPrefix(trimmed, "{")
	trimmed = strings.TrimSuffix(trimmed, "}")

	for _, tok := range strings.Fields(trimmed) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			if p.kind != "" {
				return nil, fmt.Errorf("%w: unexpected word %q after %q", engine.ErrInvalidVesselInput, tok, p.kind)
			}
			p.kind = strings.ToUpper(tok)
			continue
		}
		key = strings.ToUpper(key)
		if key == "" || value == "" {
			return nil, fmt.Errorf("%w: malformed token %q", engine.ErrInvalidVesselInput, tok)
		}
		if _, dup := p.values[key]; dup {
			return nil, fmt.Errorf("%w: %s given twice", engine.ErrInvalidVesselInput, key)
		}
		p.values[key] = value
	}
	return p, nil
}

func (p *params) has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *params) float(key string, def float64) (float64, error) {
	raw, ok := p.values[key]
	if !ok {
		return def, nil
	}
	p.used[key] = true
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", engine.ErrInvalidVesselInput, key, raw)
	}
	return v, nil
}

func (p *params) requireFloat(key string) (float64, error) {
	if !p.has(key) {
		return 0, fmt.Errorf("%w: %s is required", engine.ErrInvalidVesselInput, key)
	}
	return p.float(key, 0)
}

func (p *params) int(key string, def int) (int, error) {
	raw, ok := p.values[key]
	if !ok {
		return def, nil
	}
	p.used[key] = true
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", engine.ErrInvalidVesselInput, key, raw)
	}
	return v, nil
}

// finish reports keys nobody consumed.
func (p *params) finish() error {
	var unused []string
	for key := range p.values {
		if !p.used[key] {
			unused = append(unused, key)
		}
	}
	if len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return fmt.Errorf("%w: unknown keywords %s", engine.ErrInvalidVesselInput, strings.Join(unused, ", "))
}
