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

package kinetics

import (
	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// Interp describes a voltage sampled at bin centers. Particles with
// EdgeLeft <= dt < EdgeRight are kicked by the linear interpolant of Voltage;
// the others are left alone.
type Interp[T beam.Floats] struct {
	Voltage    []T
	BinCenters []T
	EdgeLeft   float64
	EdgeRight  float64
	Charge     float64
	AccelKick  float64
}

// Scratch identifies the arena slots used for the per-segment factors.
type Scratch struct {
	Arena *arena.Arena
	Owner arena.Owner
}

// segments holds slope and intercept per interval between bin centers.
type segments[T beam.Floats] struct {
	slope, intercept *arena.Buffer[T]
	c0               float64
	invWidth         float64
	last             int
}

func (s *segments[T]) release() {
	s.slope.Release()
	s.intercept.Release()
}

// index returns the segment holding a, clamped to the valid range.
func (s *segments[T]) index(a float64) int {
	i := int((a - s.c0) * s.invWidth)
	return max(0, min(i, s.last))
}

func prepare[T beam.Floats](pool workerpool.Executor, sc Scratch, in Interp[T], op string) (*segments[T], error) {
	n := len(in.BinCenters)
	if err := beam.CheckLengths(op, n, len(in.Voltage)); err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, beam.ConfigErrorf(op, "need at least two bins, got %d", n)
	}
	c0, cn := float64(in.BinCenters[0]), float64(in.BinCenters[n-1])
	if !(cn > c0) {
		return nil, beam.ConfigErrorf(op, "bin centers are not increasing")
	}
	slope, err := arena.Get[T](sc.Arena, sc.Owner, "lik.slope", n-1)
	if err != nil {
		return nil, err
	}
	intercept, err := arena.Get[T](sc.Arena, sc.Owner, "lik.intercept", n-1)
	if err != nil {
		slope.Release()
		return nil, err
	}

	s := &segments[T]{
		slope:     slope,
		intercept: intercept,
		c0:        c0,
		invWidth:  float64(n-1) / (cn - c0),
		last:      n - 2,
	}
	q := T(in.Charge)
	inv := T(s.invWidth)
	acc := T(in.AccelKick)
	v, c := in.Voltage, in.BinCenters
	pool.ParallelFor(n-1, func(start, end int) {
		for i := start; i < end; i++ {
			k := q * (v[i+1] - v[i]) * inv
			slope.Data[i] = k
			intercept.Data[i] = q*v[i] - c[i]*k + acc
		}
	})
	return s, nil
}

// LinearInterpKick kicks dE by the voltage interpolated at each particle's
// arrival time.
func LinearInterpKick[T beam.Floats](pool workerpool.Executor, sc Scratch, dt, dE []T, in Interp[T]) error {
	const op = "kinetics.LinearInterpKick"
	if err := beam.CheckLengths(op, len(dt), len(dE)); err != nil {
		return err
	}
	s, err := prepare(pool, sc, in, op)
	if err != nil {
		return err
	}
	defer s.release()

	lo, hi := in.EdgeLeft, in.EdgeRight
	slope, intercept := s.slope.Data, s.intercept.Data
	pool.ParallelFor(len(dt), func(start, end int) {
		for i := start; i < end; i++ {
			a := float64(dt[i])
			if a < lo || a >= hi {
				continue
			}
			j := s.index(a)
			dE[i] += dt[i]*slope[j] + intercept[j]
		}
	})
	return nil
}

// LinearInterpKickDrift is LinearInterpKick followed by a Simple drift in the
// same pass over the population. Every particle drifts; only those inside the
// edges are kicked.
func LinearInterpKickDrift[T beam.Floats](pool workerpool.Executor, sc Scratch, dt, dE []T, in Interp[T], p DriftParams) error {
	const op = "kinetics.LinearInterpKickDrift"
	if err := beam.CheckLengths(op, len(dt), len(dE)); err != nil {
		return err
	}
	if p.Beta == 0 || p.Energy == 0 {
		return beam.ConfigErrorf(op, "beta and energy must be non-zero")
	}
	s, err := prepare(pool, sc, in, op)
	if err != nil {
		return err
	}
	defer s.release()

	lo, hi := in.EdgeLeft, in.EdgeRight
	slope, intercept := s.slope.Data, s.intercept.Data
	coeff := T(p.simpleCoefficient())
	pool.ParallelFor(len(dt), func(start, end int) {
		for i := start; i < end; i++ {
			x := dt[i]
			if a := float64(x); a >= lo && a < hi {
				j := s.index(a)
				dE[i] += x*slope[j] + intercept[j]
			}
			dt[i] = x + coeff*dE[i]
		}
	})
	return nil
}
