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

package impedance

import (
	"math"
	"sort"

	"github.com/ajroetker/go-beamdyn/beam"
)

// Impedance is a frequency-domain model. Impedance returns Z(f) in ohms for
// each frequency in hertz.
type Impedance interface {
	Impedance(freq []float64) []complex128
}

// Wake is a time-domain model. Wake returns W(t) in volts per coulomb for
// each lag in seconds.
type Wake interface {
	Wake(t []float64) []float64
}

// Resonators is a sum of broad- or narrow-band resonators, one entry per
// resonator in each slice.
type Resonators struct {
	ShuntImpedance []float64 // R [Ω]
	Frequency      []float64 // f_r [Hz]
	Q              []float64
}

// NewResonators checks that the three parameter lists line up.
func NewResonators(r, fr, q []float64) (*Resonators, error) {
	if err := beam.CheckLengths("impedance.NewResonators", len(r), len(fr), len(q)); err != nil {
		return nil, err
	}
	for i := range r {
		if fr[i] <= 0 || q[i] <= 0 {
			return nil, beam.ConfigErrorf("impedance.NewResonators", "resonator %d needs positive frequency and Q", i)
		}
	}
	return &Resonators{ShuntImpedance: r, Frequency: fr, Q: q}, nil
}

// Impedance implements Impedance:
//
//	Z(f) = Σ R / (1 + jQ(f/f_r - f_r/f)), Z(0) = 0.
func (r *Resonators) Impedance(freq []float64) []complex128 {
	z := make([]complex128, len(freq))
	for k, f := range freq {
		if f == 0 {
			continue
		}
		for i, rs := range r.ShuntImpedance {
			fr, q := r.Frequency[i], r.Q[i]
			z[k] += complex(rs, 0) / complex(1, q*(f/fr-fr/f))
		}
	}
	return z
}

// Wake implements Wake. For t > 0
//
//	W(t) = 2αR e^{-αt} (cos ω̄t - α/ω̄ sin ω̄t), α = ω_r/2Q, ω̄ = sqrt(ω_r² - α²)
//
// with W(0) = αR and W(t < 0) = 0.
func (r *Resonators) Wake(t []float64) []float64 {
	w := make([]float64, len(t))
	for i, rs := range r.ShuntImpedance {
		omegaR := 2 * math.Pi * r.Frequency[i]
		alpha := omegaR / (2 * r.Q[i])
		omegaBar := math.Sqrt(omegaR*omegaR - alpha*alpha)
		for k, tk := range t {
			switch {
			case tk < 0:
			case tk == 0:
				w[k] += alpha * rs
			default:
				w[k] += 2 * alpha * rs * math.Exp(-alpha*tk) *
					(math.Cos(omegaBar*tk) - alpha/omegaBar*math.Sin(omegaBar*tk))
			}
		}
	}
	return w
}

// InputTable is a tabulated impedance, linearly interpolated and zero
// outside the table.
type InputTable struct {
	Freq []float64
	Re   []float64
	Im   []float64
}

// NewInputTable checks lengths and ordering.
func NewInputTable(freq, re, im []float64) (*InputTable, error) {
	const op = "impedance.NewInputTable"
	if err := beam.CheckLengths(op, len(freq), len(re), len(im)); err != nil {
		return nil, err
	}
	if !sort.Float64sAreSorted(freq) {
		return nil, beam.ConfigErrorf(op, "frequencies must be ascending")
	}
	return &InputTable{Freq: freq, Re: re, Im: im}, nil
}

// Impedance implements Impedance.
func (t *InputTable) Impedance(freq []float64) []complex128 {
	z := make([]complex128, len(freq))
	for k, f := range freq {
		z[k] = complex(interp(f, t.Freq, t.Re), interp(f, t.Freq, t.Im))
	}
	return z
}

// WakeTable is a tabulated wake, linearly interpolated and zero outside the
// table.
type WakeTable struct {
	Time []float64
	W    []float64
}

// NewWakeTable checks lengths and ordering.
func NewWakeTable(time, wake []float64) (*WakeTable, error) {
	const op = "impedance.NewWakeTable"
	if err := beam.CheckLengths(op, len(time), len(wake)); err != nil {
		return nil, err
	}
	if !sort.Float64sAreSorted(time) {
		return nil, beam.ConfigErrorf(op, "times must be ascending")
	}
	return &WakeTable{Time: time, W: wake}, nil
}

// Wake implements Wake.
func (t *WakeTable) Wake(lags []float64) []float64 {
	w := make([]float64, len(lags))
	for k, x := range lags {
		w[k] = interp(x, t.Time, t.W)
	}
	return w
}

// interp evaluates the piecewise-linear function through (xs, ys) at x, zero
// outside [xs[0], xs[n-1]].
func interp(x float64, xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || x < xs[0] || x > xs[n-1] {
		return 0
	}
	i := sort.SearchFloat64s(xs, x)
	if i < n && xs[i] == x {
		return ys[i]
	}
	x0, x1 := xs[i-1], xs[i]
	return ys[i-1] + (ys[i]-ys[i-1])*(x-x0)/(x1-x0)
}
