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
	"bytes"
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/impedance"
	"github.com/ajroetker/go-beamdyn/beam/kinetics"
	"github.com/ajroetker/go-beamdyn/beam/profile"
	"github.com/ajroetker/go-beamdyn/beam/rf"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// A small proton ring: tRev ≈ 137 ns, RF at harmonic 4.
func testRing(t *testing.T, turns int) *rf.Params {
	t.Helper()
	p, err := rf.NewRing(rf.Ring{
		Circumference:   30,
		Momentum:        []float64{1e9},
		Mass:            beam.ProtonMassEV,
		GammaTransition: 4.5,
		NTurns:          turns,
		Harmonic:        []float64{4},
		Voltage:         []float64{20e3},
		Phi:             []float64{0},
	})
	require.NoError(t, err)
	return p
}

type setup struct {
	engine  *Engine
	bunch   *beam.Bunch[float64]
	profile *profile.Profile[float64]
	rf      *rf.Params
	total   *impedance.TotalInducedVoltage[float64]
	tracker *Tracker[float64]
}

type setupOptions struct {
	workers   int
	turns     int
	sources   bool
	withMTW   bool
	cfg       Config
	extraDT   []float64
	extraSrcs func(impedance.Env[float64]) []impedance.Source[float64]
}

func newSetup(t *testing.T, o setupOptions) *setup {
	t.Helper()
	if o.turns == 0 {
		o.turns = 10
	}
	e := NewEngine(WithDevice(beam.DetectDevice().WithWorkers(o.workers)))
	t.Cleanup(func() { _ = e.Close() })

	dt, dE := beam.Bigaussian[float64](beam.BigaussianParams{
		N: 4000, CenterDT: 17e-9, SigmaDT: 3e-9, SigmaDE: 2e5, Cut: 3, Seed: 11,
	})
	for _, x := range o.extraDT {
		dt = append(dt, x)
		dE = append(dE, 0)
	}
	b, err := beam.NewBunch(dt, dE, 1, 1e11)
	require.NoError(t, err)
	prof, err := NewProfile[float64](e, 64, 0, 34e-9)
	require.NoError(t, err)
	params := testRing(t, o.turns)

	s := &setup{engine: e, bunch: b, profile: prof, rf: params}
	env := Env(e, b, prof, params)
	var sources []impedance.Source[float64]
	if o.sources {
		ind, err := impedance.NewInductiveSource(env, impedance.InductiveConfig{
			Name: "inductive", ZOverN: []float64{50}, Mode: profile.Gradient,
		})
		require.NoError(t, err)
		sources = append(sources, ind)

		res, err := impedance.NewResonators([]float64{2e5}, []float64{300e6}, []float64{20})
		require.NoError(t, err)
		cfg := impedance.FreqConfig{Name: "cavity", Models: []impedance.Impedance{res}}
		if o.withMTW {
			cfg.MTW = &impedance.MTWConfig{Mode: impedance.MTWFreq, TurnsMemory: 2}
		}
		freq, err := impedance.NewFreqSource(env, cfg)
		require.NoError(t, err)
		sources = append(sources, freq)
	}
	if o.extraSrcs != nil {
		sources = append(sources, o.extraSrcs(env)...)
	}
	if len(sources) > 0 {
		s.total, err = impedance.NewTotalInducedVoltage(env, sources...)
		require.NoError(t, err)
	}
	s.tracker, err = New(e, b, prof, params, s.total, o.cfg)
	require.NoError(t, err)
	t.Cleanup(s.tracker.Close)
	return s
}

func TestTrackMatchesKernels(t *testing.T) {
	s := newSetup(t, setupOptions{workers: 4})
	dt := slices.Clone(s.bunch.DT.Host())
	dE := slices.Clone(s.bunch.DE.Host())

	require.NoError(t, s.tracker.Track(context.Background()))

	v, w, phi := []float64{s.rf.Voltage[0][0]}, []float64{s.rf.Omega[0][0]}, []float64{s.rf.Phi[0][0]}
	require.NoError(t, kinetics.Kick(workerpool.Inline{}, dt, dE, kinetics.KickParams{
		Charge: 1, Voltage: v, Omega: w, Phi: phi, AccelKick: s.rf.AccelKick[0],
	}))
	require.NoError(t, kinetics.Drift(workerpool.Inline{}, dt, dE, kinetics.Simple, s.tracker.driftParams(1)))

	require.Equal(t, dt, s.bunch.DT.Host())
	require.Equal(t, dE, s.bunch.DE.Host())
	require.Equal(t, 1, s.tracker.Turn())
	require.True(t, math.IsNaN(s.tracker.Phase()))
}

func TestRunStopsAtLastTurn(t *testing.T) {
	s := newSetup(t, setupOptions{workers: 2, turns: 3, sources: true})
	n, err := s.tracker.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 3, s.tracker.Turn())
	require.ErrorIs(t, s.tracker.Track(context.Background()), rf.ErrLastTurn)
}

func TestTrackDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int, interpolation bool) ([]float64, []float64) {
		s := newSetup(t, setupOptions{
			workers: workers, sources: true, withMTW: true,
			cfg: Config{Interpolation: interpolation},
		})
		_, err := s.tracker.Run(context.Background(), 4)
		require.NoError(t, err)
		return slices.Clone(s.bunch.DT.Host()), slices.Clone(s.bunch.DE.Host())
	}
	for _, interpolation := range []bool{false, true} {
		dt1, dE1 := run(1, interpolation)
		dt8, dE8 := run(8, interpolation)
		require.Equal(t, dt1, dt8, "interpolation=%v", interpolation)
		require.Equal(t, dE1, dE8, "interpolation=%v", interpolation)
	}
}

func TestInterpolationLeavesOutsideParticlesUnkicked(t *testing.T) {
	outside := []float64{-5e-9, 34e-9, 40e-9}
	s := newSetup(t, setupOptions{
		workers: 3, sources: true, extraDT: outside,
		cfg: Config{Interpolation: true},
	})
	require.NoError(t, s.tracker.Track(context.Background()))

	dE := s.bunch.DE.Host()
	n := len(dE)
	for i := range outside {
		require.Zero(t, dE[n-len(outside)+i], "particle at %g", outside[i])
	}
	require.EqualValues(t, n-len(outside), s.profile.Total())
}

func TestBeamPhaseComputed(t *testing.T) {
	s := newSetup(t, setupOptions{workers: 2, cfg: Config{BeamPhase: true}})
	require.NoError(t, s.tracker.Track(context.Background()))
	require.False(t, math.IsNaN(s.tracker.Phase()))
}

func TestRadiationDamps(t *testing.T) {
	r := &kinetics.Radiation{U0: 1e3, TauZ: 50, NKicks: 1}
	with := newSetup(t, setupOptions{workers: 2, cfg: Config{Radiation: r}})
	without := newSetup(t, setupOptions{workers: 2})
	require.NoError(t, with.tracker.Track(context.Background()))
	require.NoError(t, without.tracker.Track(context.Background()))
	require.NotEqual(t, without.bunch.DE.Host(), with.bunch.DE.Host())
}

type panickingSource struct{}

func (panickingSource) Name() string           { return "broken" }
func (panickingSource) ElementKind() beam.Kind { return beam.KindFloat64 }
func (panickingSource) NFFT() int              { return 0 }
func (panickingSource) Voltage() []float64     { return nil }
func (panickingSource) Generate(context.Context, *impedance.SpectrumCache[float64]) error {
	panic("index out of range")
}

func TestKernelPanicBecomesKernelError(t *testing.T) {
	s := newSetup(t, setupOptions{
		workers: 2,
		extraSrcs: func(impedance.Env[float64]) []impedance.Source[float64] {
			return []impedance.Source[float64]{panickingSource{}}
		},
	})
	err := s.tracker.Track(context.Background())
	require.ErrorIs(t, err, beam.ErrKernel)
	var ke *beam.KernelError
	require.True(t, errors.As(err, &ke))
	require.Equal(t, "source broken", ke.Stage)
	require.Equal(t, 0, s.tracker.Turn())
}

func TestCanceledContext(t *testing.T) {
	s := newSetup(t, setupOptions{workers: 2, sources: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.tracker.Track(ctx), context.Canceled)
	require.Equal(t, 0, s.tracker.Turn())
}

func TestEngineClose(t *testing.T) {
	s := newSetup(t, setupOptions{workers: 2})
	require.NoError(t, s.engine.Close())
	require.NoError(t, s.engine.Close())
	require.True(t, s.engine.Closed())

	require.ErrorIs(t, s.tracker.Track(context.Background()), ErrEngineClosed)
	require.ErrorIs(t, s.tracker.SaveSnapshot(&bytes.Buffer{}), ErrEngineClosed)
	_, err := NewProfile[float64](s.engine, 8, 0, 1)
	require.ErrorIs(t, err, ErrEngineClosed)
	_, err = New(s.engine, s.bunch, s.profile, s.rf, nil, Config{})
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestNewRejectsBadConfig(t *testing.T) {
	s := newSetup(t, setupOptions{workers: 1})
	_, err := New(s.engine, s.bunch, s.profile, s.rf, nil, Config{Solver: kinetics.Solver(9)})
	require.ErrorIs(t, err, beam.ErrConfiguration)
	_, err = New[float64](s.engine, nil, s.profile, s.rf, nil, Config{})
	require.ErrorIs(t, err, beam.ErrConfiguration)

	b32, err := beam.NewBunch([]float32{0}, []float32{0}, 1, 1)
	require.NoError(t, err)
	p32, err := profile.New[float32](8, 0, 1)
	require.NoError(t, err)
	_, err = New(s.engine, b32, p32, s.rf, nil, Config{})
	require.ErrorIs(t, err, beam.ErrConfiguration)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newSetup(t, setupOptions{workers: 2, sources: true, withMTW: true})
	_, err := a.tracker.Run(ctx, 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.tracker.SaveSnapshot(&buf))
	data := buf.Bytes()

	b := newSetup(t, setupOptions{workers: 5, sources: true, withMTW: true})
	require.NoError(t, b.tracker.RestoreSnapshot(bytes.NewReader(data)))
	require.Equal(t, 3, b.tracker.Turn())

	memA := a.tracker.memories()
	memB := b.tracker.memories()
	require.Len(t, memB, 1)
	for i := range memA {
		require.Equal(t, memA[i].MTW().Memory(), memB[i].MTW().Memory())
	}

	// Both trackers continue from the same memory and turn.
	copy(b.bunch.DT.Host(), a.bunch.DT.Host())
	copy(b.bunch.DE.Host(), a.bunch.DE.Host())
	require.NoError(t, a.tracker.Track(ctx))
	require.NoError(t, b.tracker.Track(ctx))
	require.Equal(t, a.bunch.DE.Host(), b.bunch.DE.Host())
}

func TestSnapshotRejectsMismatch(t *testing.T) {
	a := newSetup(t, setupOptions{workers: 2, sources: true, withMTW: true})
	require.NoError(t, a.tracker.Track(context.Background()))
	var buf bytes.Buffer
	require.NoError(t, a.tracker.SaveSnapshot(&buf))
	data := buf.Bytes()

	plain := newSetup(t, setupOptions{workers: 2, sources: true})
	require.ErrorIs(t, plain.tracker.RestoreSnapshot(bytes.NewReader(data)), beam.ErrConfiguration)
	require.Equal(t, 0, plain.tracker.Turn())

	bad := slices.Clone(data)
	bad[0] = 'X'
	require.ErrorIs(t, a.tracker.RestoreSnapshot(bytes.NewReader(bad)), beam.ErrConfiguration)

	require.Error(t, a.tracker.RestoreSnapshot(bytes.NewReader(data[:len(data)-3])))
	require.Equal(t, 1, a.tracker.Turn())
}
