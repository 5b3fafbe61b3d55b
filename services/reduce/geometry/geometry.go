// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geometry provides the vector type and distance metrics used by
// neighbor lists and task sources.
//
// A Metric turns two positions into a separation vector. Plain returns the
// raw difference; Box applies the orthorhombic minimum-image convention so
// that separations across a periodic boundary are measured the short way.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBox is returned when a periodic box edge is not a positive
// finite length.
var ErrInvalidBox = errors.New("invalid periodic box")

// Vector is a position or displacement in three dimensions.
type Vector [3]float64

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns s * v.
func (v Vector) Scale(s float64) Vector {
	return Vector{s * v[0], s * v[1], s * v[2]}
}

// Dot returns the scalar product of v and o.
func (v Vector) Dot(o Vector) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Modulo2 returns the squared Euclidean length of v.
func (v Vector) Modulo2() float64 {
	return v.Dot(v)
}

// Modulo returns the Euclidean length of v.
func (v Vector) Modulo() float64 {
	return math.Sqrt(v.Modulo2())
}

// Delta returns the displacement b - a.
func Delta(a, b Vector) Vector {
	return b.Sub(a)
}

// Metric computes the separation vector pointing from a to b.
//
// Implementations must be safe for concurrent use; task sources call
// Separation from every engine worker.
type Metric interface {
	Separation(a, b Vector) Vector
}

// Distance returns the length of the separation between a and b under m.
// A nil metric measures the plain Euclidean distance.
func Distance(m Metric, a, b Vector) float64 {
	if m == nil {
		return Delta(a, b).Modulo()
	}
	return m.Separation(a, b).Modulo()
}

// Plain is the non-periodic metric.
type Plain struct{}

// Separation returns b - a.
func (Plain) Separation(a, b Vector) Vector {
	return Delta(a, b)
}

// Box is an orthorhombic periodic cell.
//
// Thread Safety: immutable after NewBox, safe for concurrent use.
type Box struct {
	edges   Vector
	inverse Vector
}

// NewBox creates a periodic cell with the given edge lengths.
//
// Outputs:
//
//	*Box - The cell.
//	error - ErrInvalidBox if any edge is not positive and finite.
func NewBox(lx, ly, lz float64) (*Box, error) {
	edges := Vector{lx, ly, lz}
	var inverse Vector
	for k, l := range edges {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("%w: edge %d is %v", ErrInvalidBox, k, l)
		}
		inverse[k] = 1 / l
	}
	return &Box{edges: edges, inverse: inverse}, nil
}

// Edges returns the cell edge lengths.
func (b *Box) Edges() Vector {
	return b.edges
}

// Separation returns the minimum-image displacement from a to c.
func (b *Box) Separation(a, c Vector) Vector {
	d := Delta(a, c)
	for k := range d {
		d[k] -= b.edges[k] * math.Round(d[k]*b.inverse[k])
	}
	return d
}

// Wrap maps a position back into [0, L) along every axis.
func (b *Box) Wrap(v Vector) Vector {
	for k := range v {
		v[k] -= b.edges[k] * math.Floor(v[k]*b.inverse[k])
	}
	return v
}
