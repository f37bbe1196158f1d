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

// Package config loads simulation settings from YAML files, environment
// variables prefixed with BEAMDYN_ and command-line flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/histogram"
	"github.com/ajroetker/go-beamdyn/beam/impedance"
	"github.com/ajroetker/go-beamdyn/beam/kinetics"
	"github.com/ajroetker/go-beamdyn/beam/profile"
)

// EnvPrefix prefixes every environment override, e.g. BEAMDYN_RING_TURNS.
const EnvPrefix = "BEAMDYN"

// Config is the full run description.
type Config struct {
	Precision string         `mapstructure:"precision" yaml:"precision"`
	Device    DeviceConfig   `mapstructure:"device" yaml:"device"`
	Beam      BeamConfig     `mapstructure:"beam" yaml:"beam"`
	Ring      RingConfig     `mapstructure:"ring" yaml:"ring"`
	Profile   ProfileConfig  `mapstructure:"profile" yaml:"profile"`
	Tracker   TrackerConfig  `mapstructure:"tracker" yaml:"tracker"`
	Impedance []SourceConfig `mapstructure:"impedance" yaml:"impedance"`
	Log       LogConfig      `mapstructure:"log" yaml:"log"`
	Snapshot  SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
}

// DeviceConfig sizes the execution resources. Zero values mean detect.
type DeviceConfig struct {
	Workers      int   `mapstructure:"workers" yaml:"workers"`
	SharedMemory int   `mapstructure:"shared_memory" yaml:"shared_memory"`
	ArenaLimit   int64 `mapstructure:"arena_limit" yaml:"arena_limit"`
}

// BeamConfig describes a bi-Gaussian bunch.
type BeamConfig struct {
	Particles int     `mapstructure:"particles" yaml:"particles"`
	Intensity float64 `mapstructure:"intensity" yaml:"intensity"`
	Charge    float64 `mapstructure:"charge" yaml:"charge"`
	CenterDT  float64 `mapstructure:"center_dt" yaml:"center_dt"`
	SigmaDT   float64 `mapstructure:"sigma_dt" yaml:"sigma_dt"`
	SigmaDE   float64 `mapstructure:"sigma_de" yaml:"sigma_de"`
	Cut       float64 `mapstructure:"cut" yaml:"cut"`
	Seed      uint64  `mapstructure:"seed" yaml:"seed"`
}

// RingConfig describes the machine and a single-harmonic or multi-harmonic
// RF program constant over the run.
type RingConfig struct {
	Circumference   float64   `mapstructure:"circumference" yaml:"circumference"`
	Momentum        float64   `mapstructure:"momentum" yaml:"momentum"`
	Mass            float64   `mapstructure:"mass" yaml:"mass"`
	GammaTransition float64   `mapstructure:"gamma_transition" yaml:"gamma_transition"`
	AlphaOrder      int       `mapstructure:"alpha_order" yaml:"alpha_order"`
	Turns           int       `mapstructure:"turns" yaml:"turns"`
	Harmonic        []float64 `mapstructure:"harmonic" yaml:"harmonic"`
	Voltage         []float64 `mapstructure:"voltage" yaml:"voltage"`
	Phi             []float64 `mapstructure:"phi" yaml:"phi"`
}

// ProfileConfig describes the slicing.
type ProfileConfig struct {
	Slices   int     `mapstructure:"slices" yaml:"slices"`
	CutLeft  float64 `mapstructure:"cut_left" yaml:"cut_left"`
	CutRight float64 `mapstructure:"cut_right" yaml:"cut_right"`
	Strategy string  `mapstructure:"strategy" yaml:"strategy"`
}

// TrackerConfig selects the optional stages of a turn.
type TrackerConfig struct {
	Solver        string  `mapstructure:"solver" yaml:"solver"`
	Interpolation bool    `mapstructure:"interpolation" yaml:"interpolation"`
	BeamPhase     bool    `mapstructure:"beam_phase" yaml:"beam_phase"`
	PhaseAlpha    float64 `mapstructure:"phase_alpha" yaml:"phase_alpha"`

	// Radiation, when set, applies synchrotron radiation after the drift.
	Radiation *RadiationConfig `mapstructure:"radiation" yaml:"radiation,omitempty"`
}

// RadiationConfig describes synchrotron radiation per turn. The synchronous
// energy comes from the ring.
type RadiationConfig struct {
	U0                float64 `mapstructure:"u0" yaml:"u0"`
	TauZ              float64 `mapstructure:"tau_z" yaml:"tau_z"`
	NKicks            int     `mapstructure:"n_kicks" yaml:"n_kicks"`
	QuantumExcitation bool    `mapstructure:"quantum_excitation" yaml:"quantum_excitation"`
	SigmaDE           float64 `mapstructure:"sigma_de" yaml:"sigma_de"`
	Seed              uint64  `mapstructure:"seed" yaml:"seed"`
}

// Source kinds accepted in SourceConfig.Kind.
const (
	KindFreq      = "freq"
	KindTime      = "time"
	KindInductive = "inductive"
)

// SourceConfig describes one impedance source.
type SourceConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Resonators and Table feed freq and time sources. Either or both may
	// be given; their models are summed.
	Resonators ResonatorConfig `mapstructure:"resonators" yaml:"resonators,omitempty"`
	Table      *TableConfig    `mapstructure:"table" yaml:"table,omitempty"`

	FrequencyResolution float64 `mapstructure:"frequency_resolution" yaml:"frequency_resolution,omitempty"`
	WakeLength          float64 `mapstructure:"wake_length" yaml:"wake_length,omitempty"`

	// ZOverN and Derivative feed inductive sources.
	ZOverN     float64 `mapstructure:"z_over_n" yaml:"z_over_n,omitempty"`
	Derivative string  `mapstructure:"derivative" yaml:"derivative,omitempty"`

	MTW *MTWConfig `mapstructure:"mtw" yaml:"mtw,omitempty"`
}

// ResonatorConfig lists resonator parameters, one entry per resonator.
type ResonatorConfig struct {
	ShuntImpedance []float64 `mapstructure:"shunt_impedance" yaml:"shunt_impedance,omitempty"`
	Frequency      []float64 `mapstructure:"frequency" yaml:"frequency,omitempty"`
	Q              []float64 `mapstructure:"q" yaml:"q,omitempty"`
}

// TableConfig is a tabulated model, linearly interpolated and zero outside.
// Freq sources read Frequency, Re and Im; time sources read Time and Wake.
type TableConfig struct {
	Frequency []float64 `mapstructure:"frequency" yaml:"frequency,omitempty"`
	Re        []float64 `mapstructure:"re" yaml:"re,omitempty"`
	Im        []float64 `mapstructure:"im" yaml:"im,omitempty"`
	Time      []float64 `mapstructure:"time" yaml:"time,omitempty"`
	Wake      []float64 `mapstructure:"wake" yaml:"wake,omitempty"`
}

// MTWConfig enables multi-turn wake memory on a source.
type MTWConfig struct {
	Mode            string `mapstructure:"mode" yaml:"mode"`
	TurnsMemory     int    `mapstructure:"turns_memory" yaml:"turns_memory"`
	FrontWakeBuffer int    `mapstructure:"front_wake_buffer" yaml:"front_wake_buffer"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SnapshotConfig controls wake-memory persistence.
type SnapshotConfig struct {
	// Path is written at the end of a run and read at start when Resume is
	// set. Empty disables snapshots.
	Path   string `mapstructure:"path" yaml:"path"`
	Resume bool   `mapstructure:"resume" yaml:"resume"`
}

// Default returns an SPS-like proton run above transition with an inductive
// and a broadband resonator source.
func Default() *Config {
	return &Config{
		Precision: "double",
		Beam: BeamConfig{
			Particles: 100_000,
			Intensity: 1e11,
			Charge:    1,
			CenterDT:  2.5e-9,
			SigmaDT:   0.4e-9,
			SigmaDE:   20e6,
			Cut:       3,
			Seed:      1,
		},
		Ring: RingConfig{
			Circumference:   6911.56,
			Momentum:        25.92e9,
			Mass:            beam.ProtonMassEV,
			GammaTransition: 22.83,
			Turns:           100,
			Harmonic:        []float64{4620},
			Voltage:         []float64{0.9e6},
			Phi:             []float64{math.Pi},
		},
		Profile: ProfileConfig{
			Slices:   100,
			CutLeft:  0,
			CutRight: 5e-9,
			Strategy: histogram.Auto.String(),
		},
		Tracker: TrackerConfig{
			Solver: kinetics.Simple.String(),
		},
		Impedance: []SourceConfig{
			{Name: "space_charge", Kind: KindInductive, ZOverN: -1, Derivative: profile.Gradient.String()},
			{Name: "broadband", Kind: KindFreq, Resonators: ResonatorConfig{
				ShuntImpedance: []float64{1e6}, Frequency: []float64{1.5e9}, Q: []float64{1},
			}},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers the Default values on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("precision", d.Precision)

	v.SetDefault("device.workers", d.Device.Workers)
	v.SetDefault("device.shared_memory", d.Device.SharedMemory)
	v.SetDefault("device.arena_limit", d.Device.ArenaLimit)

	v.SetDefault("beam.particles", d.Beam.Particles)
	v.SetDefault("beam.intensity", d.Beam.Intensity)
	v.SetDefault("beam.charge", d.Beam.Charge)
	v.SetDefault("beam.center_dt", d.Beam.CenterDT)
	v.SetDefault("beam.sigma_dt", d.Beam.SigmaDT)
	v.SetDefault("beam.sigma_de", d.Beam.SigmaDE)
	v.SetDefault("beam.cut", d.Beam.Cut)
	v.SetDefault("beam.seed", d.Beam.Seed)

	v.SetDefault("ring.circumference", d.Ring.Circumference)
	v.SetDefault("ring.momentum", d.Ring.Momentum)
	v.SetDefault("ring.mass", d.Ring.Mass)
	v.SetDefault("ring.gamma_transition", d.Ring.GammaTransition)
	v.SetDefault("ring.alpha_order", d.Ring.AlphaOrder)
	v.SetDefault("ring.turns", d.Ring.Turns)
	v.SetDefault("ring.harmonic", d.Ring.Harmonic)
	v.SetDefault("ring.voltage", d.Ring.Voltage)
	v.SetDefault("ring.phi", d.Ring.Phi)

	v.SetDefault("profile.slices", d.Profile.Slices)
	v.SetDefault("profile.cut_left", d.Profile.CutLeft)
	v.SetDefault("profile.cut_right", d.Profile.CutRight)
	v.SetDefault("profile.strategy", d.Profile.Strategy)

	v.SetDefault("tracker.solver", d.Tracker.Solver)
	v.SetDefault("tracker.interpolation", d.Tracker.Interpolation)
	v.SetDefault("tracker.beam_phase", d.Tracker.BeamPhase)
	v.SetDefault("tracker.phase_alpha", d.Tracker.PhaseAlpha)

	v.SetDefault("impedance", d.Impedance)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("snapshot.path", d.Snapshot.Path)
	v.SetDefault("snapshot.resume", d.Snapshot.Resume)
}

// Load reads path (when not empty) on top of the defaults and environment
// overrides, then validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// YAML renders c as a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every tag and size. The errors match beam.ErrConfiguration.
func (c *Config) Validate() error {
	const op = "config"
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	fail := func(format string, args ...any) {
		errs = append(errs, beam.ConfigErrorf(op, format, args...))
	}

	_, err := beam.ParsePrecision(c.Precision)
	check(err)
	_, err = histogram.ParseStrategy(c.Profile.Strategy)
	check(err)
	_, err = kinetics.ParseSolver(c.Tracker.Solver)
	check(err)

	if c.Device.Workers < 0 || c.Device.SharedMemory < 0 || c.Device.ArenaLimit < 0 {
		fail("device sizes must not be negative")
	}
	if c.Beam.Particles < 1 {
		fail("beam.particles must be positive, got %d", c.Beam.Particles)
	}
	if c.Beam.Intensity <= 0 {
		fail("beam.intensity must be positive, got %g", c.Beam.Intensity)
	}
	if c.Ring.Turns < 1 {
		fail("ring.turns must be positive, got %d", c.Ring.Turns)
	}
	if c.Ring.AlphaOrder < 0 || c.Ring.AlphaOrder > 2 {
		fail("ring.alpha_order %d outside [0, 2]", c.Ring.AlphaOrder)
	}
	if len(c.Ring.Harmonic) != len(c.Ring.Voltage) || len(c.Ring.Harmonic) != len(c.Ring.Phi) {
		fail("ring.harmonic, ring.voltage and ring.phi have %d, %d and %d entries",
			len(c.Ring.Harmonic), len(c.Ring.Voltage), len(c.Ring.Phi))
	}
	if c.Tracker.BeamPhase && len(c.Ring.Harmonic) == 0 {
		fail("tracker.beam_phase needs an RF harmonic")
	}
	if c.Profile.Slices < 2 {
		fail("profile.slices must be at least 2, got %d", c.Profile.Slices)
	}
	if !(c.Profile.CutRight > c.Profile.CutLeft) {
		fail("profile cut range [%g, %g) is empty", c.Profile.CutLeft, c.Profile.CutRight)
	}

	names := lo.Map(c.Impedance, func(s SourceConfig, _ int) string { return s.Name })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		fail("duplicate impedance source names %v", dup)
	}
	for i, s := range c.Impedance {
		check(s.validate(fmt.Sprintf("impedance[%d]", i)))
	}
	if r := c.Tracker.Radiation; r != nil {
		if r.NKicks < 1 || r.TauZ <= 0 || r.SigmaDE < 0 {
			fail("tracker.radiation needs n_kicks >= 1, tau_z > 0 and sigma_de >= 0")
		}
	}
	if c.Snapshot.Resume && c.Snapshot.Path == "" {
		fail("snapshot.resume needs snapshot.path")
	}
	return errors.Join(errs...)
}

func (s SourceConfig) validate(op string) error {
	if s.Name == "" {
		return beam.ConfigErrorf(op, "source needs a name")
	}
	switch s.Kind {
	case KindFreq:
		if _, err := s.ImpedanceModels(); err != nil {
			return err
		}
	case KindTime:
		if _, err := s.WakeModels(); err != nil {
			return err
		}
		if s.WakeLength < 0 {
			return beam.ConfigErrorf(op, "source %q: negative wake length", s.Name)
		}
	case KindInductive:
		if _, err := profile.ParseDerivMode(s.Derivative); err != nil {
			return err
		}
		if s.MTW != nil {
			return beam.ConfigErrorf(op, "inductive source %q cannot keep a multi-turn memory", s.Name)
		}
	default:
		return beam.ConfigErrorf(op, "source %q has unknown kind %q", s.Name, s.Kind)
	}
	if s.MTW != nil {
		if _, err := impedance.ParseMTWMode(s.MTW.Mode); err != nil {
			return err
		}
		if s.MTW.TurnsMemory < 0 || s.MTW.FrontWakeBuffer < 0 {
			return beam.ConfigErrorf(op, "source %q: negative memory sizes", s.Name)
		}
	}
	return nil
}

// ImpedanceModels builds the models of a freq source.
func (s SourceConfig) ImpedanceModels() ([]impedance.Impedance, error) {
	res, err := s.resonators()
	if err != nil {
		return nil, err
	}
	var models []impedance.Impedance
	if res != nil {
		models = append(models, res)
	}
	if tb := s.Table; tb != nil {
		if len(tb.Frequency) == 0 {
			return nil, beam.ConfigErrorf("config", "source %q: impedance table needs frequencies", s.Name)
		}
		t, err := impedance.NewInputTable(tb.Frequency, tb.Re, tb.Im)
		if err != nil {
			return nil, err
		}
		models = append(models, t)
	}
	return models, nil
}

// WakeModels builds the models of a time source.
func (s SourceConfig) WakeModels() ([]impedance.Wake, error) {
	res, err := s.resonators()
	if err != nil {
		return nil, err
	}
	var models []impedance.Wake
	if res != nil {
		models = append(models, res)
	}
	if tb := s.Table; tb != nil {
		if len(tb.Time) == 0 {
			return nil, beam.ConfigErrorf("config", "source %q: wake table needs times", s.Name)
		}
		t, err := impedance.NewWakeTable(tb.Time, tb.Wake)
		if err != nil {
			return nil, err
		}
		models = append(models, t)
	}
	return models, nil
}

// resonators returns nil when the source lists none, and fails when it
// lists neither resonators nor a table.
func (s SourceConfig) resonators() (*impedance.Resonators, error) {
	r := s.Resonators
	if len(r.ShuntImpedance) == 0 && len(r.Frequency) == 0 && len(r.Q) == 0 {
		if s.Table == nil {
			return nil, beam.ConfigErrorf("config", "source %q has neither resonators nor a table", s.Name)
		}
		return nil, nil
	}
	return impedance.NewResonators(r.ShuntImpedance, r.Frequency, r.Q)
}
