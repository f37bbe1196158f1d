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

// Package profile is the binned longitudinal line density of the bunch:
// the bin layout, the slice population, its spectrum and its derivative.
package profile

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/fft"
	"github.com/ajroetker/go-beamdyn/beam/histogram"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// Profile holds a uniform bin layout over [CutLeft, CutRight) and the
// slice population filled by Track.
type Profile[T beam.Floats] struct {
	NSlices    int
	CutLeft    float64
	CutRight   float64
	BinSize    float64
	BinEdges   []T
	BinCenters []T
	Population []int32

	strategy    histogram.Strategy
	sharedBytes int
}

// Option configures a Profile.
type Option func(*options)

type options struct {
	strategy    histogram.Strategy
	sharedBytes int
}

// WithStrategy forces a histogram strategy. The default is histogram.Auto.
func WithStrategy(s histogram.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithSharedMemory sets the per-work-group fast memory budget used to pick
// and size the histogram strategy.
func WithSharedMemory(bytes int) Option {
	return func(o *options) { o.sharedBytes = bytes }
}

// New builds a profile with nSlices bins of equal width between cutLeft
// and cutRight.
func New[T beam.Floats](nSlices int, cutLeft, cutRight float64, opts ...Option) (*Profile[T], error) {
	if nSlices < 1 {
		return nil, beam.ConfigErrorf("profile.New", "need at least one slice, got %d", nSlices)
	}
	if !(cutRight > cutLeft) || math.IsInf(cutRight-cutLeft, 0) {
		return nil, beam.ConfigErrorf("profile.New", "invalid cut range [%g, %g)", cutLeft, cutRight)
	}
	o := options{strategy: histogram.Auto, sharedBytes: beam.DetectDevice().SharedMemoryPerGroup}
	for _, opt := range opts {
		opt(&o)
	}

	edges := make([]float64, nSlices+1)
	floats.Span(edges, cutLeft, cutRight)
	edges[0], edges[nSlices] = cutLeft, cutRight
	p := &Profile[T]{
		NSlices:     nSlices,
		CutLeft:     cutLeft,
		CutRight:    cutRight,
		BinSize:     (cutRight - cutLeft) / float64(nSlices),
		BinEdges:    make([]T, nSlices+1),
		BinCenters:  make([]T, nSlices),
		Population:  make([]int32, nSlices),
		strategy:    o.strategy,
		sharedBytes: o.sharedBytes,
	}
	for i, e := range edges {
		p.BinEdges[i] = T(e)
	}
	for i := range p.BinCenters {
		p.BinCenters[i] = T((edges[i] + edges[i+1]) / 2)
	}
	return p, nil
}

// Strategy returns the histogram strategy Track will run.
func (p *Profile[T]) Strategy() histogram.Strategy {
	if p.strategy == histogram.Auto {
		return histogram.Select(p.NSlices, p.sharedBytes)
	}
	return p.strategy
}

// Track refills Population from the arrival times dt.
func (p *Profile[T]) Track(pool workerpool.Executor, dt []T) error {
	return histogram.Slice(pool, p.Strategy(), dt, p.Population, p.CutLeft, p.CutRight, p.sharedBytes)
}

// Total returns the number of particles counted by the last Track.
func (p *Profile[T]) Total() int64 {
	var n int64
	for _, c := range p.Population {
		n += int64(c)
	}
	return n
}

// BeamSpectrum returns the n/2+1 bin real transform of the population
// zero-padded to n samples.
func (p *Profile[T]) BeamSpectrum(n int) []complex128 {
	pop := make([]T, len(p.Population))
	for i, c := range p.Population {
		pop[i] = T(c)
	}
	spec := fft.RFFT(pop, n)
	for k := range spec {
		spec[k] = beam.RoundComplex[T](spec[k])
	}
	return spec
}

// DerivMode selects the finite-difference scheme of Derivative.
type DerivMode int

const (
	// Gradient uses central differences inside and one-sided differences at
	// both ends.
	Gradient DerivMode = iota
	// Diff interpolates forward differences onto the bin centers.
	Diff
	// Filter1D convolves with the derivative of a unit-width Gaussian with
	// periodic boundaries.
	Filter1D
)

func (m DerivMode) String() string {
	switch m {
	case Gradient:
		return "gradient"
	case Diff:
		return "diff"
	case Filter1D:
		return "filter1d"
	default:
		return "unknown"
	}
}

// ParseDerivMode parses a derivative mode tag.
func ParseDerivMode(s string) (DerivMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gradient", "":
		return Gradient, nil
	case "diff":
		return Diff, nil
	case "filter1d":
		return Filter1D, nil
	}
	return Gradient, beam.ConfigErrorf("profile.ParseDerivMode", "unknown derivative mode %q", s)
}

// Derivative returns d(Population)/dt in particles per second, one sample
// per bin.
func (p *Profile[T]) Derivative(mode DerivMode) ([]float64, error) {
	n := p.NSlices
	h := p.BinSize
	pop := make([]float64, n)
	for i, c := range p.Population {
		pop[i] = float64(c)
	}
	d := make([]float64, n)
	if n == 1 {
		return d, nil
	}

	switch mode {
	case Gradient:
		d[0] = (pop[1] - pop[0]) / h
		d[n-1] = (pop[n-1] - pop[n-2]) / h
		for i := 1; i < n-1; i++ {
			d[i] = (pop[i+1] - pop[i-1]) / (2 * h)
		}
	case Diff:
		// Forward differences sit on the half-bin points; interpolate them
		// back onto the centers, holding the end values.
		f := make([]float64, n-1)
		for i := range f {
			f[i] = (pop[i+1] - pop[i]) / h
		}
		d[0], d[n-1] = f[0], f[n-2]
		for i := 1; i < n-1; i++ {
			d[i] = f[i-1] + (f[i]-f[i-1])/2
		}
	case Filter1D:
		w := gaussianDerivativeKernel(1)
		r := len(w) / 2
		for i := range n {
			var s float64
			for j, wj := range w {
				k := ((i+j-r)%n + n) % n
				s += wj * pop[k]
			}
			d[i] = s / h
		}
	default:
		return nil, beam.ConfigErrorf("profile.Derivative", "unknown derivative mode %d", int(mode))
	}
	return d, nil
}

// gaussianDerivativeKernel returns the correlation weights of a first-order
// Gaussian derivative filter truncated at four standard deviations.
func gaussianDerivativeKernel(sigma float64) []float64 {
	r := int(4*sigma + 0.5)
	phi := make([]float64, 2*r+1)
	for i := range phi {
		x := float64(i - r)
		phi[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(phi), phi)
	w := make([]float64, len(phi))
	for i := range phi {
		x := float64(i - r)
		w[i] = x / (sigma * sigma) * phi[i]
	}
	return w
}
