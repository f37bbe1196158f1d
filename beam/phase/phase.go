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

// Package phase reduces the profile to the beam phase seen by an RF system,
// the error signal of a phase loop.
//
// Each bin contributes w_i = exp(alpha·t_i)·λ_i weighted by the sine and
// the cosine of the RF phase at its center. Both sums use the trapezoid rule
// and the result is their ratio. Partial sums are taken over fixed blocks of
// bins and combined in block order, so the result does not depend on the
// number of workers.
package phase

import (
	"errors"
	"math"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// ErrZeroNormalization is returned when the cosine sum vanishes, for
// instance for an empty profile.
var ErrZeroNormalization = errors.New("phase: cosine sum is zero")

// blockSize is the number of bins per partial sum.
const blockSize = 256

// Input is the profile and RF state of one reduction.
type Input[T beam.Floats] struct {
	BinCenters []T
	Population []int32
	BinSize    float64
	// Alpha weights bins by exp(Alpha·t); zero gives a flat weight.
	Alpha float64
	Omega float64
	Phi   float64
}

// BeamPhase returns
//
//	∫ w(t) sin(ωt+φ) dt / ∫ w(t) cos(ωt+φ) dt
//
// evaluated with the trapezoid rule on the bin centers. The per-block
// partial sums live in arena buffers of the given owner.
func BeamPhase[T beam.Floats](pool workerpool.Executor, a *arena.Arena, owner arena.Owner, in Input[T]) (float64, error) {
	const op = "phase.BeamPhase"
	n := len(in.BinCenters)
	if err := beam.CheckLengths(op, n, len(in.Population)); err != nil {
		return 0, err
	}
	if n < 2 {
		return 0, beam.ConfigErrorf(op, "need at least two bins, got %d", n)
	}

	blocks := (n + blockSize - 1) / blockSize
	sinBuf, err := arena.Get[T](a, owner, "phase.sin", blocks)
	if err != nil {
		return 0, err
	}
	defer sinBuf.Release()
	cosBuf, err := arena.Get[T](a, owner, "phase.cos", blocks)
	if err != nil {
		return 0, err
	}
	defer cosBuf.Release()

	ps, pc := sinBuf.Data, cosBuf.Data
	pool.ParallelForAtomic(blocks, func(b int) {
		start := b * blockSize
		end := min(start+blockSize, n)
		var s, c T
		for i := start; i < end; i++ {
			t := float64(in.BinCenters[i])
			w := math.Exp(in.Alpha*t) * float64(in.Population[i])
			if i == 0 || i == n-1 {
				w /= 2
			}
			arg := in.Omega*t + in.Phi
			s += T(w * math.Sin(arg))
			c += T(w * math.Cos(arg))
		}
		ps[b], pc[b] = s, c
	})

	var s, c T
	for b := range blocks {
		s += ps[b]
		c += pc[b]
	}
	s *= T(in.BinSize)
	c *= T(in.BinSize)
	if c == 0 {
		return 0, ErrZeroNormalization
	}
	return float64(s / c), nil
}
