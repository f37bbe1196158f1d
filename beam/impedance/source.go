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
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/fft"
	"github.com/ajroetker/go-beamdyn/beam/profile"
	"github.com/ajroetker/go-beamdyn/beam/rf"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// Env is what a source reads while generating: the profile, the bunch, the
// RF program, scratch memory and the executor.
type Env[T beam.Floats] struct {
	Profile *profile.Profile[T]
	Bunch   *beam.Bunch[T]
	RF      *rf.Params
	Arena   *arena.Arena
	Pool    workerpool.Executor
}

func (e Env[T]) validate(op string) error {
	if e.Profile == nil || e.Bunch == nil || e.RF == nil || e.Arena == nil || e.Pool == nil {
		return beam.ConfigErrorf(op, "profile, bunch, rf, arena and pool are all required")
	}
	return nil
}

// Source is one contribution to the total induced voltage.
type Source[T beam.Floats] interface {
	Name() string
	// ElementKind is the numeric kind the source computes in.
	ElementKind() beam.Kind
	// NFFT is the beam-spectrum length the source reads, 0 if none.
	NFFT() int
	// Generate recomputes the voltage of the current turn.
	Generate(ctx context.Context, cache *SpectrumCache[T]) error
	// Voltage returns the last generated voltage, nil once the turn's
	// scratch memory has been reset.
	Voltage() []T
}

// Stager is implemented by sources that carry state from turn to turn.
// Generate only stages the next state; Commit makes it current and Discard
// drops it.
type Stager interface {
	Commit()
	Discard()
}

// SourceKind tells how a source turns the profile into a voltage.
type SourceKind int

const (
	// FrequencyDomain multiplies the beam spectrum by an impedance.
	FrequencyDomain SourceKind = iota
	// TimeDomain convolves the profile with a sampled wake through the
	// same spectral path.
	TimeDomain
	// Inductive scales the derivative of the profile.
	Inductive
)

func (k SourceKind) String() string {
	switch k {
	case FrequencyDomain:
		return "frequency"
	case TimeDomain:
		return "time"
	case Inductive:
		return "inductive"
	default:
		return "unknown"
	}
}

// InducedVoltage is a source of one of the three kinds, optionally with a
// multi-turn memory.
type InducedVoltage[T beam.Floats] struct {
	name  string
	kind  SourceKind
	env   Env[T]
	owner arena.Owner

	nIV  int
	nFFT int

	// impedance is the discrete transfer function on the rfft grid of
	// nFFT: Z/binSize for frequency sources, rfft(wake) for time sources.
	impedance []complex128

	zOverN []float64
	deriv  profile.DerivMode

	mtw     *MTWMemory[T]
	voltage *arena.Buffer[T]
}

// FreqConfig describes a frequency-domain source.
type FreqConfig struct {
	Name   string
	Models []Impedance
	// FrequencyResolution, when positive, extends the voltage window so the
	// transform resolves this frequency step [Hz].
	FrequencyResolution float64
	MTW                 *MTWConfig
}

// NewFreqSource samples the summed impedance of cfg.Models on the transform
// grid.
func NewFreqSource[T beam.Floats](env Env[T], cfg FreqConfig) (*InducedVoltage[T], error) {
	const op = "impedance.NewFreqSource"
	if err := env.validate(op); err != nil {
		return nil, err
	}
	if err := beam.CheckPrecision[T](op); err != nil {
		return nil, err
	}
	if len(cfg.Models) == 0 {
		return nil, beam.ConfigErrorf(op, "source %q has no impedance model", cfg.Name)
	}
	if cfg.FrequencyResolution < 0 {
		return nil, beam.ConfigErrorf(op, "negative frequency resolution")
	}

	p := env.Profile
	nIV := p.NSlices
	if cfg.FrequencyResolution > 0 {
		nIV = max(nIV, int(math.Ceil(1/(p.BinSize*cfg.FrequencyResolution))))
	}
	s := &InducedVoltage[T]{
		name:  cfg.Name,
		kind:  FrequencyDomain,
		env:   env,
		owner: arena.NewOwner(),
		nIV:   nIV,
		nFFT:  fft.NextPow2(nIV),
	}

	freq := fft.RFFTFreq(s.nFFT, p.BinSize)
	s.impedance = make([]complex128, len(freq))
	for _, m := range cfg.Models {
		z := m.Impedance(freq)
		for k := range s.impedance {
			s.impedance[k] += z[k]
		}
	}
	scale := complex(1/p.BinSize, 0)
	for k := range s.impedance {
		s.impedance[k] = beam.RoundComplex[T](s.impedance[k] * scale)
	}
	if err := s.attachMTW(cfg.MTW); err != nil {
		return nil, err
	}
	return s, nil
}

// TimeConfig describes a time-domain source.
type TimeConfig struct {
	Name   string
	Models []Wake
	// WakeLength, when positive, extends the voltage window to cover this
	// many seconds of wake.
	WakeLength float64
	MTW        *MTWConfig
}

// NewTimeSource samples the summed wake of cfg.Models at multiples of the
// bin size and transforms it once.
//
// The transform length is nextPow2(NSlices + NInducedVoltage - 1), long
// enough for the linear convolution of the profile with the sampled wake to
// be free of wraparound.
func NewTimeSource[T beam.Floats](env Env[T], cfg TimeConfig) (*InducedVoltage[T], error) {
	const op = "impedance.NewTimeSource"
	if err := env.validate(op); err != nil {
		return nil, err
	}
	if err := beam.CheckPrecision[T](op); err != nil {
		return nil, err
	}
	if len(cfg.Models) == 0 {
		return nil, beam.ConfigErrorf(op, "source %q has no wake model", cfg.Name)
	}
	if cfg.WakeLength < 0 {
		return nil, beam.ConfigErrorf(op, "negative wake length")
	}

	p := env.Profile
	nIV := max(p.NSlices, int(math.Ceil(cfg.WakeLength/p.BinSize)))
	s := &InducedVoltage[T]{
		name:  cfg.Name,
		kind:  TimeDomain,
		env:   env,
		owner: arena.NewOwner(),
		nIV:   nIV,
		nFFT:  fft.NextPow2(p.NSlices + nIV - 1),
	}

	lags := make([]float64, nIV)
	for k := range lags {
		lags[k] = float64(k) * p.BinSize
	}
	total := make([]float64, nIV)
	for _, m := range cfg.Models {
		floats.Add(total, m.Wake(lags))
	}
	wake := make([]T, nIV)
	for k, w := range total {
		wake[k] = T(w)
	}
	s.impedance = fft.RFFT(wake, s.nFFT)
	for k := range s.impedance {
		s.impedance[k] = beam.RoundComplex[T](s.impedance[k])
	}
	if err := s.attachMTW(cfg.MTW); err != nil {
		return nil, err
	}
	return s, nil
}

// InductiveConfig describes an inductive source.
type InductiveConfig struct {
	Name string
	// ZOverN is the normalized inductive impedance [Ω]: one value, or one
	// per turn of the RF program.
	ZOverN []float64
	Mode   profile.DerivMode
}

// NewInductiveSource builds a source whose voltage is proportional to the
// derivative of the line density.
func NewInductiveSource[T beam.Floats](env Env[T], cfg InductiveConfig) (*InducedVoltage[T], error) {
	const op = "impedance.NewInductiveSource"
	if err := env.validate(op); err != nil {
		return nil, err
	}
	if err := beam.CheckPrecision[T](op); err != nil {
		return nil, err
	}
	if len(cfg.ZOverN) != 1 && len(cfg.ZOverN) != env.RF.NTurns+1 {
		return nil, beam.ConfigErrorf(op, "Z/n has %d entries, want 1 or %d", len(cfg.ZOverN), env.RF.NTurns+1)
	}
	return &InducedVoltage[T]{
		name:   cfg.Name,
		kind:   Inductive,
		env:    env,
		owner:  arena.NewOwner(),
		nIV:    env.Profile.NSlices,
		zOverN: cfg.ZOverN,
		deriv:  cfg.Mode,
	}, nil
}

func (s *InducedVoltage[T]) attachMTW(cfg *MTWConfig) error {
	if cfg == nil {
		return nil
	}
	m, err := NewMTWMemory[T](*cfg, s.nIV, s.env.Profile.BinSize, s.env.RF.MaxTRev())
	if err != nil {
		return err
	}
	s.mtw = m
	return nil
}

// Name implements Source.
func (s *InducedVoltage[T]) Name() string { return s.name }

// Kind returns how the source computes its voltage.
func (s *InducedVoltage[T]) Kind() SourceKind { return s.kind }

// ElementKind implements Source.
func (s *InducedVoltage[T]) ElementKind() beam.Kind { return beam.KindOf[T]() }

// NFFT implements Source.
func (s *InducedVoltage[T]) NFFT() int { return s.nFFT }

// NInducedVoltage returns the length of the generated voltage.
func (s *InducedVoltage[T]) NInducedVoltage() int { return s.nIV }

// MTW returns the multi-turn memory, nil when disabled.
func (s *InducedVoltage[T]) MTW() *MTWMemory[T] { return s.mtw }

// TotalImpedance returns the discrete transfer function on the transform
// grid; nil for inductive sources.
func (s *InducedVoltage[T]) TotalImpedance() []complex128 { return s.impedance }

// Voltage implements Source.
func (s *InducedVoltage[T]) Voltage() []T {
	if !s.voltage.Valid() {
		return nil
	}
	return s.voltage.Data
}

// Close returns the source's idle scratch memory to the arena.
func (s *InducedVoltage[T]) Close() {
	s.voltage.Release()
	s.env.Arena.Drop(s.owner)
}

// Generate implements Source. The shifted and accumulated multi-turn
// memory stays staged until Commit; on error it is discarded.
func (s *InducedVoltage[T]) Generate(ctx context.Context, cache *SpectrumCache[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.voltage.Release()
	buf, err := arena.Get[T](s.env.Arena, s.owner, "induced_voltage", s.nIV)
	if err != nil {
		return err
	}
	s.voltage = buf

	turn := s.env.RF.Turn()
	if s.mtw != nil {
		s.mtw.Stage(s.env.Pool, s.env.RF.TRev[turn])
	}

	switch s.kind {
	case FrequencyDomain, TimeDomain:
		err = s.convolve(cache, buf.Data)
	case Inductive:
		err = s.inductive(turn, buf.Data)
	}
	if err == nil && s.mtw != nil {
		err = s.mtw.Accumulate(s.env.Pool, buf.Data)
	}
	if err != nil {
		s.Discard()
	}
	return err
}

// Commit implements Stager: the multi-turn memory staged by the last
// Generate becomes current.
func (s *InducedVoltage[T]) Commit() {
	if s.mtw != nil {
		s.mtw.Commit()
	}
}

// Discard implements Stager.
func (s *InducedVoltage[T]) Discard() {
	if s.mtw != nil {
		s.mtw.Discard()
	}
}

// factor is -charge·e·ratio, the conversion from particle counts to
// voltage shared by the spectral paths.
func (s *InducedVoltage[T]) factor() float64 {
	b := s.env.Bunch
	return -b.Charge * beam.ElementaryCharge * b.Ratio()
}

func (s *InducedVoltage[T]) convolve(cache *SpectrumCache[T], dst []T) error {
	spectrum := cache.Get(s.nFFT)
	prod, err := arena.Get[complex128](s.env.Arena, s.owner, "spectrum_product", len(s.impedance))
	if err != nil {
		return err
	}
	defer prod.Release()

	z := s.impedance
	s.env.Pool.ParallelFor(len(z), func(start, end int) {
		for k := start; k < end; k++ {
			prod.Data[k] = beam.RoundComplex[T](z[k] * spectrum[k])
		}
	})
	fft.IRFFT(dst, prod.Data, s.nFFT)

	f := T(s.factor())
	s.env.Pool.ParallelFor(len(dst), func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] *= f
		}
	})
	return nil
}

func (s *InducedVoltage[T]) inductive(turn int, dst []T) error {
	d, err := s.env.Profile.Derivative(s.deriv)
	if err != nil {
		return err
	}
	zn := s.zOverN[min(turn, len(s.zOverN)-1)]
	sv := s.factor() / (2 * math.Pi) * zn * s.env.RF.TRev[turn] / s.env.Profile.BinSize
	s.env.Pool.ParallelFor(len(dst), func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = T(sv * d[i])
		}
	})
	return nil
}
