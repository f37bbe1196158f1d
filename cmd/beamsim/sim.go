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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/histogram"
	"github.com/ajroetker/go-beamdyn/beam/impedance"
	"github.com/ajroetker/go-beamdyn/beam/kinetics"
	"github.com/ajroetker/go-beamdyn/beam/profile"
	"github.com/ajroetker/go-beamdyn/beam/rf"
	"github.com/ajroetker/go-beamdyn/beam/tracker"
	"github.com/ajroetker/go-beamdyn/internal/config"
	"github.com/ajroetker/go-beamdyn/internal/logging"
)

// Summary is the outcome of a run.
type Summary struct {
	Precision beam.Kind
	Turns     int
	FinalTurn int
	Particles int
	InProfile int64
	MeanDT    float64
	SigmaDE   float64
	Phase     float64
	Launches  int64
	Arena     arena.Stats
	Elapsed   time.Duration
}

// Write prints s with grouped digits.
func (s Summary) Write(w io.Writer) error {
	p := message.NewPrinter(language.English)
	_, err := p.Fprintf(w,
		"precision:        %s\n"+
			"turns tracked:    %d (now at turn %d)\n"+
			"particles:        %d (%d in profile)\n"+
			"mean dt:          %.6g s\n"+
			"sigma dE:         %.6g eV\n"+
			"beam phase:       %.6g rad\n"+
			"kernel launches:  %d\n"+
			"arena:            %d hits, %d misses, %d steals, %d bytes live\n"+
			"elapsed:          %s\n",
		s.Precision, s.Turns, s.FinalTurn, s.Particles, s.InProfile, s.MeanDT, s.SigmaDE, s.Phase,
		s.Launches, s.Arena.Hits, s.Arena.Misses, s.Arena.Steals, s.Arena.LiveBytes, s.Elapsed.Round(time.Millisecond))
	return err
}

// simulate sets the precision policy and runs cfg in that precision. Logs go
// to logOut.
func simulate(ctx context.Context, cfg *config.Config, logOut io.Writer) (Summary, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return Summary{}, err
	}
	kind, err := beam.ParsePrecision(cfg.Precision)
	if err != nil {
		return Summary{}, err
	}
	if err := beam.SetPrecision(kind); err != nil {
		return Summary{}, err
	}
	if kind == beam.KindFloat32 {
		return run[float32](ctx, cfg, log)
	}
	return run[float64](ctx, cfg, log)
}

func run[T beam.Floats](ctx context.Context, cfg *config.Config, log *logrus.Logger) (Summary, error) {
	start := time.Now()
	device := beam.DetectDevice().
		WithWorkers(cfg.Device.Workers).
		WithSharedMemory(cfg.Device.SharedMemory)
	engine := tracker.NewEngine(
		tracker.WithDevice(device),
		tracker.WithArenaLimit(cfg.Device.ArenaLimit),
		tracker.WithLogger(log),
	)
	defer engine.Close()

	r := cfg.Ring
	params, err := rf.NewRing(rf.Ring{
		Circumference:   r.Circumference,
		Momentum:        []float64{r.Momentum},
		Mass:            r.Mass,
		GammaTransition: r.GammaTransition,
		AlphaOrder:      r.AlphaOrder,
		NTurns:          r.Turns,
		Harmonic:        r.Harmonic,
		Voltage:         r.Voltage,
		Phi:             r.Phi,
	})
	if err != nil {
		return Summary{}, err
	}

	b := cfg.Beam
	dt, dE := beam.Bigaussian[T](beam.BigaussianParams{
		N:        b.Particles,
		CenterDT: b.CenterDT,
		SigmaDT:  b.SigmaDT,
		SigmaDE:  b.SigmaDE,
		Cut:      b.Cut,
		Seed:     b.Seed,
	})
	bunch, err := beam.NewBunch(dt, dE, b.Charge, b.Intensity)
	if err != nil {
		return Summary{}, err
	}

	strategy, err := histogram.ParseStrategy(cfg.Profile.Strategy)
	if err != nil {
		return Summary{}, err
	}
	prof, err := tracker.NewProfile[T](engine, cfg.Profile.Slices, cfg.Profile.CutLeft, cfg.Profile.CutRight,
		profile.WithStrategy(strategy))
	if err != nil {
		return Summary{}, err
	}

	env := tracker.Env(engine, bunch, prof, params)
	sources, err := buildSources(env, cfg.Impedance)
	if err != nil {
		return Summary{}, err
	}
	var total *impedance.TotalInducedVoltage[T]
	if len(sources) > 0 {
		if total, err = impedance.NewTotalInducedVoltage(env, sources...); err != nil {
			return Summary{}, err
		}
	}

	solver, err := kinetics.ParseSolver(cfg.Tracker.Solver)
	if err != nil {
		return Summary{}, err
	}
	trCfg := tracker.Config{
		Solver:        solver,
		Interpolation: cfg.Tracker.Interpolation,
		BeamPhase:     cfg.Tracker.BeamPhase,
		PhaseAlpha:    cfg.Tracker.PhaseAlpha,
	}
	if rc := cfg.Tracker.Radiation; rc != nil {
		trCfg.Radiation = &kinetics.Radiation{
			U0:      rc.U0,
			TauZ:    rc.TauZ,
			NKicks:  rc.NKicks,
			SigmaDE: rc.SigmaDE,
			Energy:  params.Energy[0],
			Seed:    rc.Seed,
		}
		trCfg.QuantumExcitation = rc.QuantumExcitation
	}
	tr, err := tracker.New(engine, bunch, prof, params, total, trCfg)
	if err != nil {
		return Summary{}, err
	}
	defer tr.Close()

	snap := cfg.Snapshot
	if snap.Resume {
		if err := restore(tr, snap.Path); err != nil {
			return Summary{}, err
		}
	}

	turns, err := tr.Run(ctx, r.Turns)
	if err != nil {
		return Summary{}, fmt.Errorf("after %d turns: %w", turns, err)
	}

	if snap.Path != "" {
		if err := save(tr, snap.Path); err != nil {
			return Summary{}, err
		}
	}

	s := Summary{
		Precision: beam.KindOf[T](),
		Turns:     turns,
		FinalTurn: tr.Turn(),
		Particles: bunch.NMacro(),
		InProfile: prof.Total(),
		Phase:     tr.Phase(),
		Launches:  engine.Launches(),
		Arena:     engine.Arena().Stats(),
		Elapsed:   time.Since(start),
	}
	s.MeanDT, s.SigmaDE = moments(bunch.DT.Host(), bunch.DE.Host())
	log.WithFields(logrus.Fields{"turns": turns, "elapsed": s.Elapsed}).Info("run finished")
	return s, nil
}

// buildSources turns the configured source list into impedance sources in
// the same order.
func buildSources[T beam.Floats](env impedance.Env[T], cfgs []config.SourceConfig) ([]impedance.Source[T], error) {
	sources := make([]impedance.Source[T], 0, len(cfgs))
	for _, c := range cfgs {
		mtw, err := mtwConfig(c.MTW)
		if err != nil {
			return nil, err
		}
		var src *impedance.InducedVoltage[T]
		switch c.Kind {
		case config.KindFreq:
			models, err := c.ImpedanceModels()
			if err != nil {
				return nil, err
			}
			src, err = impedance.NewFreqSource(env, impedance.FreqConfig{
				Name:                c.Name,
				Models:              models,
				FrequencyResolution: c.FrequencyResolution,
				MTW:                 mtw,
			})
			if err != nil {
				return nil, err
			}
		case config.KindTime:
			models, err := c.WakeModels()
			if err != nil {
				return nil, err
			}
			src, err = impedance.NewTimeSource(env, impedance.TimeConfig{
				Name:       c.Name,
				Models:     models,
				WakeLength: c.WakeLength,
				MTW:        mtw,
			})
			if err != nil {
				return nil, err
			}
		case config.KindInductive:
			mode, err := profile.ParseDerivMode(c.Derivative)
			if err != nil {
				return nil, err
			}
			src, err = impedance.NewInductiveSource(env, impedance.InductiveConfig{
				Name:   c.Name,
				ZOverN: []float64{c.ZOverN},
				Mode:   mode,
			})
			if err != nil {
				return nil, err
			}
		default:
			return nil, beam.ConfigErrorf("beamsim", "source %q has unknown kind %q", c.Name, c.Kind)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func mtwConfig(c *config.MTWConfig) (*impedance.MTWConfig, error) {
	if c == nil {
		return nil, nil
	}
	mode, err := impedance.ParseMTWMode(c.Mode)
	if err != nil {
		return nil, err
	}
	return &impedance.MTWConfig{Mode: mode, TurnsMemory: c.TurnsMemory, FrontWakeBuffer: c.FrontWakeBuffer}, nil
}

func restore[T beam.Floats](tr *tracker.Tracker[T], path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	defer f.Close()
	return tr.RestoreSnapshot(f)
}

func save[T beam.Floats](tr *tracker.Tracker[T], path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return tr.SaveSnapshot(f)
}

// moments returns the mean arrival time and the energy spread.
func moments[T beam.Floats](dt, dE []T) (meanDT, sigmaDE float64) {
	toFloat := func(x T, _ int) float64 { return float64(x) }
	meanDT = stat.Mean(lo.Map(dt, toFloat), nil)
	_, sigmaDE = stat.MeanStdDev(lo.Map(dE, toFloat), nil)
	return meanDT, sigmaDE
}
