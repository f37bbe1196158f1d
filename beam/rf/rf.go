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

// Package rf holds the per-turn RF and ring parameters read by the kernels.
//
// Every per-turn table has NTurns+1 entries: index 0 is the state before the
// first turn. The turn counter is advanced by the tracker once per turn;
// accessors read the entry at the current turn.
package rf

import (
	"errors"
	"math"

	"github.com/ajroetker/go-beamdyn/beam"
)

// ErrLastTurn is returned by Advance once the final turn has been reached.
var ErrLastTurn = errors.New("rf: no turns left")

// Params is the read-only RF program of a run plus its turn counter.
type Params struct {
	NTurns int

	// Per-turn ring quantities.
	TRev   []float64 // revolution period [s]
	Beta   []float64
	Energy []float64 // total energy [eV]
	Eta0   []float64
	Eta1   []float64
	Eta2   []float64

	// Momentum compaction factors and the slip-factor order used by drift.
	Alpha0, Alpha1, Alpha2 float64
	AlphaOrder             int

	// Per-harmonic, per-turn RF programs: Voltage[h][turn] in volts,
	// Omega[h][turn] in rad/s, Phi[h][turn] in rad.
	Voltage [][]float64
	Omega   [][]float64
	Phi     [][]float64

	// AccelKick[turn] is the energy kick that keeps dE relative to the
	// synchronous particle, -ΔE of the synchronous energy [eV]. NTurns entries.
	AccelKick []float64

	// LengthRatio is the fraction of the ring covered by one drift.
	LengthRatio float64

	turn int
}

// Turn returns the current turn index.
func (p *Params) Turn() int { return p.turn }

// Advance moves the counter to the next turn.
func (p *Params) Advance() error {
	if p.turn >= p.NTurns {
		return ErrLastTurn
	}
	p.turn++
	return nil
}

// SetTurn positions the counter, as when resuming from a snapshot.
func (p *Params) SetTurn(turn int) error {
	if turn < 0 || turn > p.NTurns {
		return beam.ConfigErrorf("rf.SetTurn", "turn %d outside [0, %d]", turn, p.NTurns)
	}
	p.turn = turn
	return nil
}

// NHarmonics returns the number of RF systems.
func (p *Params) NHarmonics() int { return len(p.Voltage) }

// MaxTRev returns the longest revolution period of the program.
func (p *Params) MaxTRev() float64 {
	m := 0.0
	for _, t := range p.TRev {
		m = max(m, t)
	}
	return m
}

// Now returns the per-harmonic voltage, angular frequency and phase at the
// current turn.
func (p *Params) Now() (voltage, omega, phi []float64) {
	n := p.NHarmonics()
	voltage, omega, phi = make([]float64, n), make([]float64, n), make([]float64, n)
	for h := range n {
		voltage[h] = p.Voltage[h][p.turn]
		omega[h] = p.Omega[h][p.turn]
		phi[h] = p.Phi[h][p.turn]
	}
	return voltage, omega, phi
}

// AccelerationKick returns the energy kick of the current turn, zero past
// the end of the program.
func (p *Params) AccelerationKick() float64 {
	if p.turn < len(p.AccelKick) {
		return p.AccelKick[p.turn]
	}
	return 0
}

// Validate checks the table shapes.
func (p *Params) Validate() error {
	const op = "rf.Params"
	if p.NTurns < 1 {
		return beam.ConfigErrorf(op, "need at least one turn")
	}
	n := p.NTurns + 1
	if err := beam.CheckLengths(op, n, len(p.TRev), len(p.Beta), len(p.Energy),
		len(p.Eta0), len(p.Eta1), len(p.Eta2)); err != nil {
		return err
	}
	if len(p.Omega) != p.NHarmonics() || len(p.Phi) != p.NHarmonics() {
		return beam.ConfigErrorf(op, "voltage, omega and phi list %d, %d and %d harmonics",
			len(p.Voltage), len(p.Omega), len(p.Phi))
	}
	for h := range p.NHarmonics() {
		if err := beam.CheckLengths(op, n, len(p.Voltage[h]), len(p.Omega[h]), len(p.Phi[h])); err != nil {
			return err
		}
	}
	if p.AlphaOrder < 0 || p.AlphaOrder > 2 {
		return beam.ConfigErrorf(op, "alpha order %d outside [0, 2]", p.AlphaOrder)
	}
	return nil
}

// Ring describes a synchrotron and a constant-parameter RF system.
type Ring struct {
	Circumference float64 // [m]
	// Momentum is the synchronous momentum program [eV/c]: one value for a
	// flat program or NTurns+1 values.
	Momentum        []float64
	Mass            float64 // [eV/c^2]
	GammaTransition float64
	Alpha1, Alpha2  float64
	AlphaOrder      int
	NTurns          int

	Harmonic []float64
	Voltage  []float64 // [V]
	Phi      []float64 // [rad]
}

// NewRing derives the per-turn program of r.
func NewRing(r Ring) (*Params, error) {
	const op = "rf.NewRing"
	switch {
	case r.NTurns < 1:
		return nil, beam.ConfigErrorf(op, "need at least one turn")
	case r.Circumference <= 0 || r.Mass <= 0 || r.GammaTransition <= 0:
		return nil, beam.ConfigErrorf(op, "circumference, mass and transition gamma must be positive")
	case len(r.Momentum) != 1 && len(r.Momentum) != r.NTurns+1:
		return nil, beam.ConfigErrorf(op, "momentum program has %d entries, want 1 or %d", len(r.Momentum), r.NTurns+1)
	}
	if err := beam.CheckLengths(op, len(r.Harmonic), len(r.Voltage), len(r.Phi)); err != nil {
		return nil, err
	}

	n := r.NTurns + 1
	alpha0 := 1 / (r.GammaTransition * r.GammaTransition)
	p := &Params{
		NTurns:      r.NTurns,
		TRev:        make([]float64, n),
		Beta:        make([]float64, n),
		Energy:      make([]float64, n),
		Eta0:        make([]float64, n),
		Eta1:        make([]float64, n),
		Eta2:        make([]float64, n),
		Alpha0:      alpha0,
		Alpha1:      r.Alpha1,
		Alpha2:      r.Alpha2,
		AlphaOrder:  r.AlphaOrder,
		AccelKick:   make([]float64, r.NTurns),
		LengthRatio: 1,
	}
	for i := range n {
		mom := r.Momentum[min(i, len(r.Momentum)-1)]
		if mom <= 0 {
			return nil, beam.ConfigErrorf(op, "momentum must be positive at turn %d", i)
		}
		energy := math.Hypot(mom, r.Mass)
		beta := mom / energy
		gamma := energy / r.Mass
		ig2 := 1 / (gamma * gamma)
		b2 := beta * beta

		eta0 := alpha0 - ig2
		p.Energy[i] = energy
		p.Beta[i] = beta
		p.TRev[i] = r.Circumference / (beta * beam.SpeedOfLight)
		p.Eta0[i] = eta0
		p.Eta1[i] = 3*b2*ig2/2 + r.Alpha1 - alpha0*eta0
		p.Eta2[i] = -b2*(5*b2-1)*ig2/2 + r.Alpha2 - 2*alpha0*r.Alpha1 + r.Alpha1*ig2 +
			alpha0*alpha0*eta0 - 3*b2*alpha0*ig2/2
	}
	for i := range r.NTurns {
		p.AccelKick[i] = -(p.Energy[i+1] - p.Energy[i])
	}

	p.Voltage = make([][]float64, len(r.Harmonic))
	p.Omega = make([][]float64, len(r.Harmonic))
	p.Phi = make([][]float64, len(r.Harmonic))
	for h, harmonic := range r.Harmonic {
		p.Voltage[h] = make([]float64, n)
		p.Omega[h] = make([]float64, n)
		p.Phi[h] = make([]float64, n)
		for i := range n {
			p.Voltage[h][i] = r.Voltage[h]
			p.Omega[h][i] = 2 * math.Pi * harmonic / p.TRev[i]
			p.Phi[h][i] = r.Phi[h]
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
