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

package profile

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/histogram"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

func TestLayout(t *testing.T) {
	p, err := New[float64](4, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.BinSize != 0.5 {
		t.Errorf("BinSize = %g", p.BinSize)
	}
	wantEdges := []float64{0, 0.5, 1, 1.5, 2}
	for i, e := range wantEdges {
		if p.BinEdges[i] != e {
			t.Errorf("edge %d = %g, want %g", i, p.BinEdges[i], e)
		}
	}
	if p.BinCenters[0] != 0.25 || p.BinCenters[3] != 1.75 {
		t.Errorf("centers = %v", p.BinCenters)
	}

	if _, err := New[float64](0, 0, 1); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("zero slices: %v", err)
	}
	if _, err := New[float64](10, 1, 0); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("reversed cuts: %v", err)
	}
}

func TestTrack(t *testing.T) {
	p, err := New[float32](4, 0, 1, WithStrategy(histogram.Naive))
	if err != nil {
		t.Fatal(err)
	}
	dt := []float32{0.1, 0.2, 0.3, 0.6, 1.0, -0.5}
	if err := p.Track(workerpool.Inline{}, dt); err != nil {
		t.Fatal(err)
	}
	want := []int32{2, 1, 1, 0}
	for i := range want {
		if p.Population[i] != want[i] {
			t.Errorf("population = %v, want %v", p.Population, want)
			break
		}
	}
	if p.Total() != 4 {
		t.Errorf("Total = %d", p.Total())
	}
}

func TestStrategyFromBudget(t *testing.T) {
	p, _ := New[float64](100, 0, 1, WithSharedMemory(1024))
	if p.Strategy() != histogram.Shared {
		t.Errorf("100 slices in 1KiB: %s", p.Strategy())
	}
	p, _ = New[float64](1000, 0, 1, WithSharedMemory(1024))
	if p.Strategy() != histogram.Hybrid {
		t.Errorf("1000 slices in 1KiB: %s", p.Strategy())
	}
}

func TestBeamSpectrumDC(t *testing.T) {
	p, _ := New[float64](8, 0, 8)
	copy(p.Population, []int32{1, 2, 3, 4, 0, 0, 0, 0})
	spec := p.BeamSpectrum(16)
	if len(spec) != 9 {
		t.Fatalf("len = %d", len(spec))
	}
	if cmplx.Abs(spec[0]-10) > 1e-12 {
		t.Errorf("DC = %v, want 10", spec[0])
	}
}

func TestDerivativeLinear(t *testing.T) {
	p, _ := New[float64](20, 0, 2)
	for i := range p.Population {
		p.Population[i] = int32(3 * i)
	}
	slope := 3 / p.BinSize

	for _, mode := range []DerivMode{Gradient, Diff} {
		d, err := p.Derivative(mode)
		if err != nil {
			t.Fatal(err)
		}
		for i := range d {
			if math.Abs(d[i]-slope) > 1e-9 {
				t.Errorf("%s: d[%d] = %g, want %g", mode, i, d[i], slope)
			}
		}
	}

	// Away from the wrap seam the Gaussian derivative of a ramp is the ramp
	// slope up to the truncation of the kernel.
	d, err := p.Derivative(Filter1D)
	if err != nil {
		t.Fatal(err)
	}
	for i := 5; i < 15; i++ {
		if math.Abs(d[i]-slope)/slope > 1e-3 {
			t.Errorf("filter1d: d[%d] = %g, want ~%g", i, d[i], slope)
		}
	}
}

func TestDerivativeDiffOnCenters(t *testing.T) {
	p, _ := New[float64](4, 0, 4)
	copy(p.Population, []int32{0, 1, 4, 9})
	d, err := p.Derivative(Diff)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 2, 4, 5}
	for i := range want {
		if d[i] != want[i] {
			t.Errorf("d[%d] = %g, want %g", i, d[i], want[i])
		}
	}

	p, _ = New[float64](4, 0, 2)
	copy(p.Population, []int32{0, 1, 4, 9})
	d, _ = p.Derivative(Diff)
	for i := range want {
		if d[i] != want[i]/p.BinSize {
			t.Errorf("h=%g: d[%d] = %g, want %g", p.BinSize, i, d[i], want[i]/p.BinSize)
		}
	}
}

func TestParseDerivMode(t *testing.T) {
	for _, m := range []DerivMode{Gradient, Diff, Filter1D} {
		got, err := ParseDerivMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseDerivMode(%q) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseDerivMode("spline"); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("unknown mode: %v", err)
	}
}
