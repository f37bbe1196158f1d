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
	"math"
	"strings"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// Solver selects the slip model of Drift.
type Solver int

const (
	// Simple applies the linear slip factor only.
	Simple Solver = iota
	// Legacy expands the slip factor in powers of the relative energy
	// deviation up to AlphaOrder.
	Legacy
	// Exact evaluates the path length with the energy-dependent relative
	// momentum deviation.
	Exact
)

func (s Solver) String() string {
	switch s {
	case Simple:
		return "simple"
	case Legacy:
		return "legacy"
	case Exact:
		return "exact"
	default:
		return "unknown"
	}
}

// ParseSolver parses a solver tag. "full" is accepted for Exact.
func ParseSolver(s string) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return Simple, nil
	case "legacy":
		return Legacy, nil
	case "exact", "full":
		return Exact, nil
	}
	return Simple, beam.ConfigErrorf("kinetics.ParseSolver", "unknown drift solver %q", s)
}

// DriftParams are the ring quantities of one drift.
type DriftParams struct {
	TRev        float64
	LengthRatio float64
	AlphaOrder  int
	Eta0        float64
	Eta1        float64
	Eta2        float64
	Alpha0      float64
	Alpha1      float64
	Alpha2      float64
	Beta        float64
	Energy      float64
}

// period returns the drift time T = tRev * lengthRatio.
func (p DriftParams) period() float64 { return p.TRev * p.LengthRatio }

// simpleCoefficient returns T * eta0 / (beta^2 E), the dt change per unit dE.
func (p DriftParams) simpleCoefficient() float64 {
	return p.period() * p.Eta0 / (p.Beta * p.Beta * p.Energy)
}

// Drift advances dt by the phase slip accumulated over one drift.
func Drift[T beam.Floats](pool workerpool.Executor, dt, dE []T, solver Solver, p DriftParams) error {
	const op = "kinetics.Drift"
	if err := beam.CheckLengths(op, len(dt), len(dE)); err != nil {
		return err
	}
	if p.Beta == 0 || p.Energy == 0 {
		return beam.ConfigErrorf(op, "beta and energy must be non-zero")
	}
	period := p.period()

	switch solver {
	case Simple:
		c := T(p.simpleCoefficient())
		pool.ParallelFor(len(dt), func(start, end int) {
			for i := start; i < end; i++ {
				dt[i] += c * dE[i]
			}
		})

	case Legacy:
		coeff := 1 / (p.Beta * p.Beta * p.Energy)
		eta0, eta1, eta2 := p.Eta0, 0.0, 0.0
		if p.AlphaOrder >= 1 {
			eta1 = p.Eta1
		}
		if p.AlphaOrder >= 2 {
			eta2 = p.Eta2
		}
		pool.ParallelFor(len(dt), func(start, end int) {
			for i := start; i < end; i++ {
				d := coeff * float64(dE[i])
				dt[i] += T(period * (1/(1-d*(eta0+d*(eta1+d*eta2))) - 1))
			}
		})

	case Exact:
		invBetaSq := 1 / (p.Beta * p.Beta)
		invE := 1 / p.Energy
		a0, a1, a2 := p.Alpha0, 0.0, 0.0
		if p.AlphaOrder >= 1 {
			a1 = p.Alpha1
		}
		if p.AlphaOrder >= 2 {
			a2 = p.Alpha2
		}
		pool.ParallelFor(len(dt), func(start, end int) {
			for i := start; i < end; i++ {
				e := float64(dE[i]) * invE
				delta := math.Sqrt(1+invBetaSq*(e*e+2*e)) - 1
				path := 1 + delta*(a0+delta*(a1+delta*a2))
				dt[i] += T(period * (path*(1+e)/(1+delta) - 1))
			}
		})

	default:
		return beam.ConfigErrorf(op, "unknown drift solver %d", int(solver))
	}
	return nil
}
