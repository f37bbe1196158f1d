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
	"math/rand/v2"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// Radiation describes synchrotron radiation over one turn, applied in
// NKicks equal steps.
type Radiation struct {
	// U0 is the energy lost per turn by the synchronous particle [eV].
	U0 float64
	// TauZ is the longitudinal damping time in turns.
	TauZ   float64
	NKicks int

	// Quantum excitation, used by SynchrotronRadiationFull only.
	SigmaDE float64 // equilibrium relative energy spread
	Energy  float64 // synchronous energy [eV]
	Seed    uint64
}

func (r Radiation) validate(op string) error {
	if r.NKicks < 1 {
		return beam.ConfigErrorf(op, "need at least one kick, got %d", r.NKicks)
	}
	if r.TauZ <= 0 {
		return beam.ConfigErrorf(op, "damping time must be positive, got %g", r.TauZ)
	}
	return nil
}

// SynchrotronRadiation applies damping and the mean energy loss:
//
//	dE += -(2/τz/nKicks)·dE - U0/nKicks, nKicks times.
func SynchrotronRadiation[T beam.Floats](pool workerpool.Executor, dE []T, r Radiation) error {
	if err := r.validate("kinetics.SynchrotronRadiation"); err != nil {
		return err
	}
	damp := T(2 / r.TauZ / float64(r.NKicks))
	loss := T(r.U0 / float64(r.NKicks))
	pool.ParallelFor(len(dE), func(start, end int) {
		for i := start; i < end; i++ {
			e := dE[i]
			for range r.NKicks {
				e += -damp*e - loss
			}
			dE[i] = e
		}
	})
	return nil
}

// noiseBlock is the number of particles sharing one random stream. Fixed so
// the noise does not depend on the worker count.
const noiseBlock = 4096

// SynchrotronRadiationFull adds quantum excitation to SynchrotronRadiation:
// every step also adds 2·σdE·E/sqrt(τz·nKicks) times a standard normal draw.
// Streams are seeded from Seed and the block index, so a run is
// reproducible for any pool size.
func SynchrotronRadiationFull[T beam.Floats](pool workerpool.Executor, dE []T, r Radiation) error {
	if err := r.validate("kinetics.SynchrotronRadiationFull"); err != nil {
		return err
	}
	damp := 2 / r.TauZ / float64(r.NKicks)
	loss := r.U0 / float64(r.NKicks)
	excite := 2 * r.SigmaDE / math.Sqrt(r.TauZ*float64(r.NKicks)) * r.Energy

	blocks := (len(dE) + noiseBlock - 1) / noiseBlock
	pool.ParallelForAtomic(blocks, func(b int) {
		rng := rand.New(rand.NewPCG(r.Seed, uint64(b)))
		start := b * noiseBlock
		for i := start; i < min(start+noiseBlock, len(dE)); i++ {
			e := float64(dE[i])
			for range r.NKicks {
				e += -damp*e - loss + excite*rng.NormFloat64()
			}
			dE[i] = T(e)
		}
	})
	return nil
}
