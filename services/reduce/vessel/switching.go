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
	"math"
	"strings"

	"github.com/AleutianAI/multicolvar/services/reduce/engine"
)

// SwitchingKind selects the switching function form.
type SwitchingKind string

const (
	// Rational is s(r) = (1 - r^n) / (1 - r^m).
	Rational SwitchingKind = "RATIONAL"

	// Exponential is s(r) = exp(-r).
	Exponential SwitchingKind = "EXP"

	// Gaussian is s(r) = exp(-r^2 / 2).
	Gaussian SwitchingKind = "GAUSSIAN"
)

// rationalLimitWindow is how close r must be to 1 before the rational form
// is replaced by its limit n/m.
const rationalLimitWindow = 1e-10

// SwitchingFunction maps a distance-like value onto [0, 1], equal to 1
// below D0 and decaying with scale R0. Values beyond DMax are exactly 0.
//
// The reduced variable is r = (x - D0) / R0.
type SwitchingFunction struct {
	Kind SwitchingKind
	R0   float64
	D0   float64
	DMax float64
	NN   int
	MM   int
}

// NewRational returns a rational switching function with the conventional
// default MM = 2*NN when mm is 0.
func NewRational(r0 float64, nn, mm int) (SwitchingFunction, error) {
	if mm == 0 {
		mm = 2 * nn
	}
	sf := SwitchingFunction{Kind: Rational, R0: r0, NN: nn, MM: mm, DMax: math.Inf(1)}
	return sf, sf.validate()
}

// ParseSwitchingFunction builds a switching function from an input such as
// "RATIONAL R_0=0.5 D_0=0.1 NN=6 MM=12 D_MAX=2.0".
//
// Outputs:
//
//	SwitchingFunction - Parsed function. Kind defaults to RATIONAL.
//	error - Wraps engine.ErrInvalidVesselInput.
func ParseSwitchingFunction(input string) (SwitchingFunction, error) {
	p, err := parseParams(input)
	if err != nil {
		return SwitchingFunction{}, err
	}
	sf, err := switchingFromParams(p)
	if err != nil {
		return sf, err
	}
	return sf, p.finish()
}

func switchingFromParams(p *params) (SwitchingFunction, error) {
	kind := SwitchingKind(strings.ToUpper(p.kind))
	if kind == "" {
		kind = Rational
	}
	sf := SwitchingFunction{Kind: kind}

	var err error
	if sf.R0, err = p.requireFloat("R_0"); err != nil {
		return sf, err
	}
	if sf.D0, err = p.float("D_0", 0); err != nil {
		return sf, err
	}
	if sf.DMax, err = p.float("D_MAX", math.Inf(1)); err != nil {
		return sf, err
	}
	if kind == Rational {
		if sf.NN, err = p.int("NN", 6); err != nil {
			return sf, err
		}
		if sf.MM, err = p.int("MM", 0); err != nil {
			return sf, err
		}
		if sf.MM == 0 {
			sf.MM = 2 * sf.NN
		}
	}
	return sf, sf.validate()
}

func (sf SwitchingFunction) validate() error {
	switch sf.Kind {
	case Rational:
		if sf.NN <= 0 || sf.MM <= 0 || sf.NN == sf.MM {
			return fmt.Errorf("%w: rational switching needs 0 < NN != MM, got NN=%d MM=%d",
				engine.ErrInvalidVesselInput, sf.NN, sf.MM)
		}
	case Exponential, Gaussian:
	default:
		return fmt.Errorf("%w: unknown switching function %q", engine.ErrInvalidVesselInput, sf.Kind)
	}
	if !(sf.R0 > 0) {
		return fmt.Errorf("%w: R_0 must be positive, got %v", engine.ErrInvalidVesselInput, sf.R0)
	}
	if sf.DMax <= sf.D0 {
		return fmt.Errorf("%w: D_MAX %v must exceed D_0 %v", engine.ErrInvalidVesselInput, sf.DMax, sf.D0)
	}
	return nil
}

// Calculate returns s(x) and ds/dx.
func (sf SwitchingFunction) Calculate(x float64) (s, ds float64) {
	if x > sf.DMax {
		return 0, 0
	}
	r := (x - sf.D0) / sf.R0
	if r <= 0 {
		return 1, 0
	}

	var dsdr float64
	switch sf.Kind {
	case Exponential:
		s = math.Exp(-r)
		dsdr = -s
	case Gaussian:
		s = math.Exp(-0.5 * r * r)
		dsdr = -r * s
	default:
		n, m := float64(sf.NN), float64(sf.MM)
		if math.Abs(r-1) < rationalLimitWindow {
			s = n / m
			dsdr = 0.5 * n * (n - m) / m
			break
		}
		rn1 := math.Pow(r, n-1)
		rm1 := math.Pow(r, m-1)
		num := 1 - rn1*r
		den := 1 - rm1*r
		s = num / den
		dsdr = (-n*rn1*den + m*rm1*num) / (den * den)
	}
	return s, dsdr / sf.R0
}

// String renders the function in input form.
func (sf SwitchingFunction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s R_0=%g", sf.Kind, sf.R0)
	if sf.D0 != 0 {
		fmt.Fprintf(&b, " D_0=%g", sf.D0)
	}
	if sf.Kind == Rational {
		fmt.Fprintf(&b, " NN=%d MM=%d", sf.NN, sf.MM)
	}
	if !math.IsInf(sf.DMax, 1) {
		fmt.Fprintf(&b, " D_MAX=%g", sf.DMax)
	}
	return b.String()
}
