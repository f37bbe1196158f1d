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

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// KickParams are the RF systems of one kick. Voltage, Omega and Phi hold one
// entry per harmonic.
type KickParams struct {
	Charge    float64
	Voltage   []float64
	Omega     []float64
	Phi       []float64
	AccelKick float64
}

func (p KickParams) validate(op string) error {
	return beam.CheckLengths(op, len(p.Voltage), len(p.Omega), len(p.Phi))
}

// Kick adds the RF energy kick to dE:
//
//	dE += Σ_h charge·V_h·sin(ω_h·dt + φ_h) + AccelKick
func Kick[T beam.Floats](pool workerpool.Executor, dt, dE []T, p KickParams) error {
	const op = "kinetics.Kick"
	if err := beam.CheckLengths(op, len(dt), len(dE)); err != nil {
		return err
	}
	if err := p.validate(op); err != nil {
		return err
	}
	n := len(p.Voltage)
	v := make([]T, n)
	w := make([]T, n)
	phi := make([]T, n)
	for h := range n {
		v[h] = T(p.Charge * p.Voltage[h])
		w[h] = T(p.Omega[h])
		phi[h] = T(p.Phi[h])
	}
	acc := T(p.AccelKick)

	pool.ParallelFor(len(dt), func(start, end int) {
		for i := start; i < end; i++ {
			x := dt[i]
			var k T
			for h := range n {
				k += v[h] * T(math.Sin(float64(w[h]*x+phi[h])))
			}
			dE[i] += k + acc
		}
	})
	return nil
}

// RFVoltageComp writes the total RF voltage at each bin center into dst:
//
//	dst[i] = Σ_h V_h·sin(ω_h·centers[i] + φ_h)
func RFVoltageComp[T beam.Floats](pool workerpool.Executor, dst, centers []T, voltage, omega, phi []float64) error {
	const op = "kinetics.RFVoltageComp"
	if err := beam.CheckLengths(op, len(centers), len(dst)); err != nil {
		return err
	}
	if err := beam.CheckLengths(op, len(voltage), len(omega), len(phi)); err != nil {
		return err
	}
	pool.ParallelFor(len(centers), func(start, end int) {
		for i := start; i < end; i++ {
			c := float64(centers[i])
			var s float64
			for h := range voltage {
				s += voltage[h] * math.Sin(omega[h]*c+phi[h])
			}
			dst[i] = T(s)
		}
	})
	return nil
}
