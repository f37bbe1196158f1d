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

package beam

import (
	"math"
	"math/rand/v2"
)

// Physical constants (CODATA 2018 exact or recommended values).
const (
	ElementaryCharge = 1.602176634e-19 // C
	SpeedOfLight     = 299792458.0     // m/s
	ProtonMassEV     = 938.27208816e6  // eV/c^2
	ElectronMassEV   = 0.51099895000e6 // eV/c^2
)

// Bunch is the macroparticle population: arrival time and energy deviation
// per particle, index aligned.
type Bunch[T Floats] struct {
	DT *Array[T]
	DE *Array[T]

	// Charge is the particle charge in units of e.
	Charge float64
	// Intensity is the number of real particles represented.
	Intensity float64
}

// NewBunch wraps dt and dE. Both must have the same non-zero length.
func NewBunch[T Floats](dt, dE []T, charge, intensity float64) (*Bunch[T], error) {
	if len(dt) == 0 {
		return nil, configErrorf("NewBunch", "empty population")
	}
	if err := CheckLengths("NewBunch", len(dt), len(dE)); err != nil {
		return nil, err
	}
	if intensity <= 0 {
		return nil, configErrorf("NewBunch", "intensity must be positive, got %g", intensity)
	}
	return &Bunch[T]{
		DT:        NewArray(dt),
		DE:        NewArray(dE),
		Charge:    charge,
		Intensity: intensity,
	}, nil
}

// NMacro returns the number of macroparticles.
func (b *Bunch[T]) NMacro() int { return b.DT.Len() }

// Ratio returns the number of real particles per macroparticle.
func (b *Bunch[T]) Ratio() float64 { return b.Intensity / float64(b.NMacro()) }

// CoordinatesChanged marks both host copies stale after a kernel pass.
func (b *Bunch[T]) CoordinatesChanged() {
	b.DT.InvalidateHostCopy()
	b.DE.InvalidateHostCopy()
}

// BigaussianParams describes a synthetic bunch: Gaussian in dt and dE with
// the given centers and RMS widths, truncated at Cut standard deviations.
type BigaussianParams struct {
	N        int
	CenterDT float64
	SigmaDT  float64
	CenterDE float64
	SigmaDE  float64
	Cut      float64
	Seed     uint64
}

// Bigaussian draws a reproducible synthetic population. The same Seed always
// yields the same coordinates.
func Bigaussian[T Floats](p BigaussianParams) (dt, dE []T) {
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	cut := p.Cut
	if cut <= 0 {
		cut = math.Inf(1)
	}
	dt = make([]T, p.N)
	dE = make([]T, p.N)
	for i := range p.N {
		x, y := rng.NormFloat64(), rng.NormFloat64()
		for math.Abs(x) > cut || math.Abs(y) > cut {
			x, y = rng.NormFloat64(), rng.NormFloat64()
		}
		dt[i] = T(p.CenterDT + p.SigmaDT*x)
		dE[i] = T(p.CenterDE + p.SigmaDE*y)
	}
	return dt, dE
}
