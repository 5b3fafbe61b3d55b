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

import "fmt"

// Region is the span of the reduction buffer owned by one vessel.
type Region struct {
	Start int
	Size  int
}

// End returns the first index past the region.
func (r Region) End() int {
	return r.Start + r.Size
}

// Layout assigns consecutive, non-overlapping regions for the given sizes
// in order and returns them with the total length.
func Layout(sizes []int) ([]Region, int) {
	regions := make([]Region, len(sizes))
	start := 0
	for i, size := range sizes {
		if size < 0 {
			size = 0
		}
		regions[i] = Region{Start: start, Size: size}
		start += size
	}
	return regions, start
}

// Buffer is the flat reduction buffer shared by every vessel on an engine.
//
// Thread Safety: not safe for concurrent use. Each engine worker
// accumulates into a private Buffer.
type Buffer struct {
	data []float64
}

// NewBuffer allocates a zeroed buffer of the given length.
func NewBuffer(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]float64, size)}
}

// Len returns the buffer length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Clear zeroes every element.
func (b *Buffer) Clear() {
	clear(b.data)
}

// Data exposes the underlying storage for the collective sum.
func (b *Buffer) Data() []float64 {
	return b.data
}

// Slice returns the view of region r. The view cannot reach outside r.
func (b *Buffer) Slice(r Region) Slice {
	end := r.End()
	return Slice{data: b.data[r.Start:end:end]}
}

// Accumulate adds o into b element-wise.
func (b *Buffer) Accumulate(o *Buffer) error {
	if len(o.data) != len(b.data) {
		return fmt.Errorf("%w: accumulate %d into %d", ErrCollectiveShape, len(o.data), len(b.data))
	}
	for i, v := range o.data {
		b.data[i] += v
	}
	return nil
}

// Slice is a vessel's window onto the reduction buffer.
type Slice struct {
	data []float64
}

// Len returns the slice length.
func (s Slice) Len() int {
	return len(s.data)
}

// Get returns element i.
func (s Slice) Get(i int) float64 {
	if i < 0 || i >= len(s.data) {
		panic(fmt.Errorf("%w: read %d of %d", ErrBufferIndexOutOfRange, i, len(s.data)))
	}
	return s.data[i]
}

// AddToBufferElement accumulates amount into element i. An index outside
// the slice panics with ErrBufferIndexOutOfRange.
func (s Slice) AddToBufferElement(i int, amount float64) {
	if i < 0 || i >= len(s.data) {
		panic(fmt.Errorf("%w: write %d of %d", ErrBufferIndexOutOfRange, i, len(s.data)))
	}
	s.data[i] += amount
}
