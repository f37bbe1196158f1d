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

package phase

import (
	"errors"
	"math"
	"testing"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/profile"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

func trackedProfile(t *testing.T, nSlices int) *profile.Profile[float64] {
	t.Helper()
	p, err := profile.New[float64](nSlices, 0, 10e-9)
	if err != nil {
		t.Fatal(err)
	}
	dt, _ := beam.Bigaussian[float64](beam.BigaussianParams{
		N: 50000, CenterDT: 5e-9, SigmaDT: 1e-9, SigmaDE: 1, Cut: 4, Seed: 5,
	})
	if err := p.Track(workerpool.Inline{}, dt); err != nil {
		t.Fatal(err)
	}
	return p
}

func input(p *profile.Profile[float64], phi float64) Input[float64] {
	return Input[float64]{
		BinCenters: p.BinCenters,
		Population: p.Population,
		BinSize:    p.BinSize,
		Omega:      2 * math.Pi * 40e6,
		Phi:        phi,
	}
}

func TestBeamPhaseMatchesReference(t *testing.T) {
	p := trackedProfile(t, 1000)
	in := input(p, 0.2)
	in.Alpha = 1e6

	got, err := BeamPhase(workerpool.Inline{}, arena.New(0), arena.NewOwner(), in)
	if err != nil {
		t.Fatal(err)
	}

	var s, c float64
	n := len(in.BinCenters)
	for i := range n {
		tc := in.BinCenters[i]
		w := math.Exp(in.Alpha*tc) * float64(in.Population[i])
		if i == 0 || i == n-1 {
			w /= 2
		}
		s += w * math.Sin(in.Omega*tc+in.Phi)
		c += w * math.Cos(in.Omega*tc+in.Phi)
	}
	want := s / c
	if math.Abs(got-want) > 1e-10*math.Abs(want) {
		t.Errorf("BeamPhase = %.17g, want %.17g", got, want)
	}
}

func TestBeamPhaseSymmetricBunch(t *testing.T) {
	// A bunch centered on the zero crossing of the sine has no phase error.
	p, _ := profile.New[float64](100, -1, 1)
	for i := range p.Population {
		x := float64(p.BinCenters[i])
		p.Population[i] = int32(1000 * math.Exp(-x*x*8))
	}
	got, err := BeamPhase(workerpool.Inline{}, arena.New(0), arena.NewOwner(), Input[float64]{
		BinCenters: p.BinCenters, Population: p.Population, BinSize: p.BinSize, Omega: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got) > 1e-12 {
		t.Errorf("BeamPhase = %g, want 0", got)
	}
}

func TestBeamPhaseWorkerInvariant(t *testing.T) {
	p := trackedProfile(t, 5000)
	in := input(p, -0.4)
	ref, err := BeamPhase(workerpool.Inline{}, arena.New(0), arena.NewOwner(), in)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{2, 5, 16} {
		pool := workerpool.New(workers)
		got, err := BeamPhase(pool, arena.New(0), arena.NewOwner(), in)
		pool.Close()
		if err != nil {
			t.Fatal(err)
		}
		if got != ref {
			t.Errorf("%d workers: %.17g, inline %.17g", workers, got, ref)
		}
	}
}

func TestBeamPhaseErrors(t *testing.T) {
	a := arena.New(0)
	owner := arena.NewOwner()
	empty := Input[float64]{BinCenters: []float64{0, 1}, Population: []int32{0, 0}, BinSize: 1}
	if _, err := BeamPhase(workerpool.Inline{}, a, owner, empty); !errors.Is(err, ErrZeroNormalization) {
		t.Errorf("empty profile: %v", err)
	}
	ragged := Input[float64]{BinCenters: []float64{0, 1}, Population: []int32{1}, BinSize: 1}
	if _, err := BeamPhase(workerpool.Inline{}, a, owner, ragged); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("ragged input: %v", err)
	}
}
