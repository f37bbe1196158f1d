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

package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/impedance"
	"github.com/ajroetker/go-beamdyn/beam/kinetics"
	"github.com/ajroetker/go-beamdyn/beam/phase"
	"github.com/ajroetker/go-beamdyn/beam/profile"
	"github.com/ajroetker/go-beamdyn/beam/rf"
)

// Config selects the optional stages of a turn.
type Config struct {
	Solver kinetics.Solver

	// Interpolation kicks with the RF and induced voltages interpolated on
	// the bin centers and drifts in the same particle pass.
	Interpolation bool

	// BeamPhase computes the beam phase against the first RF harmonic after
	// every turn, weighting bins by exp(PhaseAlpha·t).
	BeamPhase  bool
	PhaseAlpha float64

	// Radiation, when set, applies synchrotron radiation after the drift.
	Radiation         *kinetics.Radiation
	QuantumExcitation bool
}

// Tracker advances one bunch through the turns of an RF program.
type Tracker[T beam.Floats] struct {
	engine  *Engine
	bunch   *beam.Bunch[T]
	profile *profile.Profile[T]
	rf      *rf.Params
	total   *impedance.TotalInducedVoltage[T]
	cfg     Config
	owner   arena.Owner
	log     logrus.FieldLogger

	phase float64
}

// New builds a tracker. total may be nil for a run without collective
// effects.
func New[T beam.Floats](e *Engine, b *beam.Bunch[T], p *profile.Profile[T], params *rf.Params,
	total *impedance.TotalInducedVoltage[T], cfg Config) (*Tracker[T], error) {
	const op = "tracker.New"
	if err := e.check(); err != nil {
		return nil, err
	}
	if err := beam.CheckPrecision[T](op); err != nil {
		return nil, err
	}
	if b == nil || p == nil || params == nil {
		return nil, beam.ConfigErrorf(op, "bunch, profile and rf parameters are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg.BeamPhase && params.NHarmonics() == 0 {
		return nil, beam.ConfigErrorf(op, "beam phase needs at least one RF harmonic")
	}
	if cfg.Solver < kinetics.Simple || cfg.Solver > kinetics.Exact {
		return nil, beam.ConfigErrorf(op, "unknown drift solver %d", int(cfg.Solver))
	}

	t := &Tracker[T]{
		engine:  e,
		bunch:   b,
		profile: p,
		rf:      params,
		total:   total,
		cfg:     cfg,
		owner:   arena.NewOwner(),
		log:     e.log.WithField("component", "tracker"),
		phase:   math.NaN(),
	}
	fields := logrus.Fields{
		"particles":     b.NMacro(),
		"slices":        p.NSlices,
		"strategy":      p.Strategy(),
		"solver":        cfg.Solver,
		"interpolation": cfg.Interpolation,
	}
	if total != nil {
		fields["sources"] = len(total.Sources())
	}
	t.log.WithFields(fields).Info("tracker ready")
	return t, nil
}

// Turn returns the current turn of the RF program.
func (t *Tracker[T]) Turn() int { return t.rf.Turn() }

// Phase returns the beam phase of the last turn, NaN when it was not
// computed.
func (t *Tracker[T]) Phase() float64 { return t.phase }

// Profile returns the profile filled by the last turn.
func (t *Tracker[T]) Profile() *profile.Profile[T] { return t.profile }

// Run tracks up to turns turns and stops early, without error, at the end of
// the RF program. It returns the number of turns tracked.
func (t *Tracker[T]) Run(ctx context.Context, turns int) (int, error) {
	for n := range turns {
		if err := t.Track(ctx); err != nil {
			if errors.Is(err, rf.ErrLastTurn) {
				return n, nil
			}
			return n, err
		}
	}
	return turns, nil
}

// Track runs one turn: slicing, induced voltage, RF kick and drift, the
// optional beam phase, then advances the turn counter and resets the
// arena. A panicking kernel aborts the turn with a beam.KernelError.
func (t *Tracker[T]) Track(ctx context.Context) (err error) {
	if err := t.engine.check(); err != nil {
		return err
	}
	turn := t.rf.Turn()
	if turn >= t.rf.NTurns {
		return rf.ErrLastTurn
	}

	stage := "profile"
	defer func() {
		if r := recover(); r != nil {
			err = &beam.KernelError{Stage: stage, Value: r}
		}
		if err != nil {
			t.log.WithFields(logrus.Fields{"turn": turn, "stage": stage}).WithError(err).Error("turn failed")
		}
	}()

	pool := t.engine.pool
	dt := t.bunch.DT.SyncToDevice()
	dE := t.bunch.DE.SyncToDevice()

	if err := t.profile.Track(pool, dt); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	voltage, omega, phi := t.rf.Now()
	drift := t.driftParams(turn + 1)

	if t.cfg.Interpolation {
		stage = "interpolated kick"
		if err := t.interpolatedKickDrift(ctx, dt, dE, voltage, omega, phi, drift); err != nil {
			return err
		}
	} else {
		if t.total != nil {
			stage = "induced voltage"
			if err := t.total.Track(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stage = "kick"
		if err := kinetics.Kick(pool, dt, dE, kinetics.KickParams{
			Charge:    t.bunch.Charge,
			Voltage:   voltage,
			Omega:     omega,
			Phi:       phi,
			AccelKick: t.rf.AccelerationKick(),
		}); err != nil {
			return err
		}
		stage = "drift"
		if err := kinetics.Drift(pool, dt, dE, t.cfg.Solver, drift); err != nil {
			return err
		}
	}

	if r := t.cfg.Radiation; r != nil {
		stage = "radiation"
		if t.cfg.QuantumExcitation {
			q := *r
			q.Seed = r.Seed + uint64(turn)
			err = kinetics.SynchrotronRadiationFull(pool, dE, q)
		} else {
			err = kinetics.SynchrotronRadiation(pool, dE, *r)
		}
		if err != nil {
			return err
		}
	}
	t.bunch.CoordinatesChanged()

	t.phase = math.NaN()
	if t.cfg.BeamPhase {
		stage = "beam phase"
		p := t.profile
		ph, err := phase.BeamPhase(pool, t.engine.arena, t.owner, phase.Input[T]{
			BinCenters: p.BinCenters,
			Population: p.Population,
			BinSize:    p.BinSize,
			Alpha:      t.cfg.PhaseAlpha,
			Omega:      omega[0],
			Phi:        phi[0],
		})
		switch {
		case errors.Is(err, phase.ErrZeroNormalization):
			t.log.WithField("turn", turn).Warn("beam phase undefined")
		case err != nil:
			return err
		default:
			t.phase = ph
		}
	}

	t.log.WithFields(logrus.Fields{
		"turn":      turn,
		"particles": t.profile.Total(),
		"phase":     t.phase,
	}).Debug("turn tracked")

	stage = "advance"
	if err := t.rf.Advance(); err != nil {
		return fmt.Errorf("turn %d: %w", turn, err)
	}
	t.engine.arena.Reset()
	return nil
}

// interpolatedKickDrift sums the induced voltage, adds the RF voltage at the
// bin centers and applies kick and simple drift in one pass. Source state is
// committed once the particles have been pushed.
func (t *Tracker[T]) interpolatedKickDrift(ctx context.Context, dt, dE []T, voltage, omega, phi []float64, drift kinetics.DriftParams) error {
	if t.total == nil {
		return t.kickDrift(ctx, dt, dE, nil, voltage, omega, phi, drift)
	}
	if err := t.total.Stage(ctx); err != nil {
		return err
	}
	if err := t.kickDrift(ctx, dt, dE, t.total.Voltage(), voltage, omega, phi, drift); err != nil {
		t.total.Discard()
		return err
	}
	t.total.Commit()
	return nil
}

func (t *Tracker[T]) kickDrift(ctx context.Context, dt, dE, induced []T, voltage, omega, phi []float64, drift kinetics.DriftParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pool := t.engine.pool
	p := t.profile

	buf, err := arena.Get[T](t.engine.arena, t.owner, "rf_voltage", p.NSlices)
	if err != nil {
		return err
	}
	defer buf.Release()
	if err := kinetics.RFVoltageComp(pool, buf.Data, p.BinCenters, voltage, omega, phi); err != nil {
		return err
	}
	for i := range min(len(induced), len(buf.Data)) {
		buf.Data[i] += induced[i]
	}

	return kinetics.LinearInterpKickDrift(pool,
		kinetics.Scratch{Arena: t.engine.arena, Owner: t.owner},
		dt, dE,
		kinetics.Interp[T]{
			Voltage:    buf.Data,
			BinCenters: p.BinCenters,
			EdgeLeft:   float64(p.BinEdges[0]),
			EdgeRight:  float64(p.BinEdges[p.NSlices]),
			Charge:     t.bunch.Charge,
			AccelKick:  t.rf.AccelerationKick(),
		}, drift)
}

func (t *Tracker[T]) driftParams(turn int) kinetics.DriftParams {
	r := t.rf
	return kinetics.DriftParams{
		TRev:        r.TRev[turn],
		LengthRatio: r.LengthRatio,
		AlphaOrder:  r.AlphaOrder,
		Eta0:        r.Eta0[turn],
		Eta1:        r.Eta1[turn],
		Eta2:        r.Eta2[turn],
		Alpha0:      r.Alpha0,
		Alpha1:      r.Alpha1,
		Alpha2:      r.Alpha2,
		Beta:        r.Beta[turn],
		Energy:      r.Energy[turn],
	}
}

// Close releases the tracker's scratch memory and that of its sources. The
// engine stays open.
func (t *Tracker[T]) Close() {
	if t.total != nil {
		t.total.Close()
	}
	t.engine.arena.Drop(t.owner)
}
