// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package histogram

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// Strategy selects how particles are accumulated into slice counters.
type Strategy int

const (
	// Auto picks Shared or Hybrid with Select.
	Auto Strategy = iota
	// Naive increments the output counters atomically, one per particle.
	Naive
	// Shared counts into a private copy of every counter per work group and
	// merges the copies at the end.
	Shared
	// Hybrid splits the bin range into chunks whose counters fit the fast
	// memory budget and runs one shared pass per chunk.
	Hybrid
)

func (s Strategy) String() string {
	switch s {
	case Auto:
		return "auto"
	case Naive:
		return "naive"
	case Shared:
		return "shared"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy tag from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return Auto, nil
	case "naive":
		return Naive, nil
	case "shared":
		return Shared, nil
	case "hybrid":
		return Hybrid, nil
	}
	return Auto, beam.ConfigErrorf("histogram.ParseStrategy", "unknown strategy %q", s)
}

// counterBytes is the footprint of one slice counter.
const counterBytes = 4

// Select returns Shared when nSlices counters fit in sharedBytes of fast
// memory, Hybrid otherwise.
func Select(nSlices, sharedBytes int) Strategy {
	if counterBytes*nSlices < sharedBytes {
		return Shared
	}
	return Hybrid
}

// binner maps an arrival time to its slice. Every strategy uses the same
// instance so counts agree exactly.
type binner struct {
	left, right float64
	inv         float64
	n           int
}

func newBinner(n int, cutLeft, cutRight float64) binner {
	return binner{left: cutLeft, right: cutRight, inv: float64(n) / (cutRight - cutLeft), n: n}
}

// bin returns the slice index of a, or -1 when a is outside [left, right).
// The index is computed arithmetically, not by searching the profile's
// edge array, so a time that lies exactly on an interior edge may round
// into the slice below it.
func (b binner) bin(a float64) int {
	if !(a >= b.left && a < b.right) {
		return -1
	}
	i := int((a - b.left) * b.inv)
	if i >= b.n {
		i = b.n - 1
	}
	return i
}

var counterPool sync.Pool

func getCounters(n int) *[]int32 {
	if p, ok := counterPool.Get().(*[]int32); ok && cap(*p) >= n {
		*p = (*p)[:n]
		clear(*p)
		return p
	}
	s := make([]int32, n)
	return &s
}

// Slice counts dt into out, which must hold one counter per slice. out is
// overwritten. Particles outside [cutLeft, cutRight) are not counted.
// sharedBytes is the per-work-group fast memory budget used by Auto and
// Hybrid.
func Slice[T beam.Floats](pool workerpool.Executor, strategy Strategy, dt []T, out []int32,
	cutLeft, cutRight float64, sharedBytes int) error {
	const op = "histogram.Slice"
	n := len(out)
	if n == 0 {
		return beam.ConfigErrorf(op, "no slices")
	}
	if !(cutRight > cutLeft) {
		return beam.ConfigErrorf(op, "cut range [%g, %g) is empty", cutLeft, cutRight)
	}
	if strategy == Auto {
		strategy = Select(n, sharedBytes)
	}
	b := newBinner(n, cutLeft, cutRight)
	clear(out)

	switch strategy {
	case Naive:
		sliceNaive(pool, b, dt, out)
	case Shared:
		sliceChunk(pool, b, dt, out, 0, n)
	case Hybrid:
		width := sharedBytes / counterBytes
		if width < 1 {
			return beam.ConfigErrorf(op, "shared memory budget of %d bytes holds no counters", sharedBytes)
		}
		for lo := 0; lo < n; lo += width {
			sliceChunk(pool, b, dt, out, lo, min(lo+width, n))
		}
	default:
		return beam.ConfigErrorf(op, "unknown strategy %d", int(strategy))
	}
	return nil
}

func sliceNaive[T beam.Floats](pool workerpool.Executor, b binner, dt []T, out []int32) {
	pool.ParallelFor(len(dt), func(start, end int) {
		for _, a := range dt[start:end] {
			if i := b.bin(float64(a)); i >= 0 {
				atomic.AddInt32(&out[i], 1)
			}
		}
	})
}

// sliceChunk counts the particles whose slice falls in [lo, hi) into
// private counters per work group, then merges them into out.
func sliceChunk[T beam.Floats](pool workerpool.Executor, b binner, dt []T, out []int32, lo, hi int) {
	pool.ParallelFor(len(dt), func(start, end int) {
		p := getCounters(hi - lo)
		local := *p
		for _, a := range dt[start:end] {
			if i := b.bin(float64(a)); i >= lo && i < hi {
				local[i-lo]++
			}
		}
		for j, c := range local {
			if c != 0 {
				atomic.AddInt32(&out[lo+j], c)
			}
		}
		counterPool.Put(p)
	})
}

// Count returns the number of elements of dt in [cutLeft, cutRight).
func Count[T beam.Floats](dt []T, cutLeft, cutRight float64) int {
	n := 0
	for _, a := range dt {
		if x := float64(a); x >= cutLeft && x < cutRight {
			n++
		}
	}
	return n
}
