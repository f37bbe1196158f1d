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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/fft"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// MTWMode selects how the multi-turn memory is moved forward by one
// revolution.
type MTWMode int

const (
	// MTWFreq rotates the phase of the memory's spectrum.
	MTWFreq MTWMode = iota
	// MTWTime reinterpolates the memory on a time axis shifted by tRev.
	MTWTime
)

func (m MTWMode) String() string {
	switch m {
	case MTWFreq:
		return "freq"
	case MTWTime:
		return "time"
	default:
		return "unknown"
	}
}

// ParseMTWMode parses a multi-turn shift mode tag.
func ParseMTWMode(s string) (MTWMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freq", "":
		return MTWFreq, nil
	case "time":
		return MTWTime, nil
	}
	return MTWFreq, beam.ConfigErrorf("impedance.ParseMTWMode", "unknown multi-turn wake mode %q", s)
}

// MTWConfig enables the multi-turn memory of a source.
type MTWConfig struct {
	Mode MTWMode
	// TurnsMemory is the number of revolutions of wake kept beyond the
	// single-turn window. Zero means one.
	TurnsMemory int
	// FrontWakeBuffer is the number of trailing single-turn samples dropped
	// before accumulation.
	FrontWakeBuffer int
}

// MTWMemory is the induced voltage accumulated over past turns, sampled on
// the profile bin grid starting at the first bin.
//
// The memory is double buffered. Stage and Accumulate write the next turn's
// memory into the idle buffer; Commit makes it current and Discard drops it,
// so a turn that fails part way leaves the memory as it was.
type MTWMemory[T beam.Floats] struct {
	mode       MTWMode
	binSize    float64
	nIV        int
	bufferSize int
	frontWake  int
	nFFT       int
	freq       []float64

	front, back []T
	staged      bool
}

// NewMTWMemory sizes a memory for single-turn voltages of nIV samples and
// revolution periods up to maxTRev.
//
//	BufferSize = ceil(maxTRev/binSize)
//	Len        = nIV + TurnsMemory*BufferSize
//	NFFT       = nextPow2(Len + BufferSize)
func NewMTWMemory[T beam.Floats](cfg MTWConfig, nIV int, binSize, maxTRev float64) (*MTWMemory[T], error) {
	const op = "impedance.NewMTWMemory"
	switch {
	case nIV < 1:
		return nil, beam.ConfigErrorf(op, "single-turn length must be positive, got %d", nIV)
	case !(binSize > 0) || !(maxTRev > 0):
		return nil, beam.ConfigErrorf(op, "bin size and revolution period must be positive")
	case cfg.FrontWakeBuffer < 0 || cfg.FrontWakeBuffer > nIV:
		return nil, beam.ConfigErrorf(op, "front wake buffer %d outside [0, %d]", cfg.FrontWakeBuffer, nIV)
	case cfg.Mode != MTWFreq && cfg.Mode != MTWTime:
		return nil, beam.ConfigErrorf(op, "unknown mode %d", int(cfg.Mode))
	}
	turns := max(cfg.TurnsMemory, 1)
	bufferSize := int(math.Ceil(maxTRev / binSize))
	n := nIV + turns*bufferSize
	m := &MTWMemory[T]{
		mode:       cfg.Mode,
		binSize:    binSize,
		nIV:        nIV,
		bufferSize: bufferSize,
		frontWake:  cfg.FrontWakeBuffer,
		nFFT:       fft.NextPow2(n + bufferSize),
		front:      make([]T, n),
		back:       make([]T, n),
	}
	if m.mode == MTWFreq {
		m.freq = fft.RFFTFreq(m.nFFT, binSize)
	}
	return m, nil
}

// Len returns the number of samples in the memory.
func (m *MTWMemory[T]) Len() int { return len(m.front) }

// BufferSize returns the number of samples one revolution covers.
func (m *MTWMemory[T]) BufferSize() int { return m.bufferSize }

// NFFT returns the transform length used by a frequency-mode shift.
func (m *MTWMemory[T]) NFFT() int { return m.nFFT }

// Mode returns the shift mode.
func (m *MTWMemory[T]) Mode() MTWMode { return m.mode }

// Memory returns the committed memory. It is replaced, not modified, by the
// next Commit.
func (m *MTWMemory[T]) Memory() []T { return m.front }

// Staged reports whether a next-turn memory is waiting for Commit.
func (m *MTWMemory[T]) Staged() bool { return m.staged }

// Stage writes the memory moved forward by one revolution of period tRev
// into the idle buffer: the sample at t becomes the old sample at t+tRev.
// A previously staged memory is replaced.
func (m *MTWMemory[T]) Stage(pool workerpool.Executor, tRev float64) {
	if m.mode == MTWFreq {
		m.shiftFreq(pool, tRev)
	} else {
		m.shiftTime(pool, tRev)
	}
	m.staged = true
}

// Commit makes the staged memory current. It does nothing when nothing is
// staged.
func (m *MTWMemory[T]) Commit() {
	if !m.staged {
		return
	}
	m.front, m.back = m.back, m.front
	m.staged = false
}

// Discard drops the staged memory.
func (m *MTWMemory[T]) Discard() { m.staged = false }

// Shift stages and commits a one-revolution shift.
func (m *MTWMemory[T]) Shift(pool workerpool.Executor, tRev float64) {
	m.Stage(pool, tRev)
	m.Commit()
}

func (m *MTWMemory[T]) shiftFreq(pool workerpool.Executor, tRev float64) {
	spec := fft.RFFT(m.front, m.nFFT)
	pool.ParallelFor(len(spec), func(start, end int) {
		for k := start; k < end; k++ {
			rot := cmplx.Exp(complex(0, 2*math.Pi*m.freq[k]*tRev))
			spec[k] = beam.RoundComplex[T](spec[k] * rot)
		}
	})
	fft.IRFFT(m.back, spec, m.nFFT)
	clear(m.back[len(m.back)-m.bufferSize:])
}

func (m *MTWMemory[T]) shiftTime(pool workerpool.Executor, tRev float64) {
	n := len(m.front)
	src, dst := m.front, m.back
	last := float64(n-1) * m.binSize
	pool.ParallelFor(n, func(start, end int) {
		for k := start; k < end; k++ {
			x := float64(k)*m.binSize + tRev
			switch {
			case x < 0 || x > last:
				dst[k] = 0
			case x == last:
				dst[k] = src[n-1]
			default:
				p := x / m.binSize
				j := int(p)
				if j >= n-1 {
					j = n - 2
				}
				f := T(p - float64(j))
				dst[k] = src[j] + (src[j+1]-src[j])*f
			}
		}
	})
}

// Accumulate adds a single-turn voltage to the leading window of the
// staged memory and replaces voltage with that window. The trailing
// FrontWakeBuffer samples of voltage are discarded first. Without a staged
// memory the committed one is staged unshifted.
func (m *MTWMemory[T]) Accumulate(pool workerpool.Executor, voltage []T) error {
	if err := beam.CheckLengths("impedance.MTWMemory.Accumulate", m.nIV, len(voltage)); err != nil {
		return err
	}
	if !m.staged {
		copy(m.back, m.front)
		m.staged = true
	}
	clear(voltage[m.nIV-m.frontWake:])
	mem := m.back
	pool.ParallelFor(m.nIV, func(start, end int) {
		for i := start; i < end; i++ {
			mem[i] += voltage[i]
			voltage[i] = mem[i]
		}
	})
	return nil
}

var mtwMagic = [4]byte{'M', 'T', 'W', '1'}

// MarshalBinary encodes the memory as
//
//	magic "MTW1" | kind (1) | mode (1) | len uint32 | bufferSize uint32 | samples
//
// with little-endian IEEE 754 samples of the memory's precision, so a
// restore reproduces it bit for bit.
func (m *MTWMemory[T]) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(mtwMagic[:])
	buf.WriteByte(byte(beam.KindOf[T]()))
	buf.WriteByte(byte(m.mode))
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(m.front))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(m.bufferSize)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, m.front); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a memory written by MarshalBinary into m. The
// layout (precision, mode and sizes) must match m. A staged memory is
// dropped. On error m is unchanged.
func (m *MTWMemory[T]) UnmarshalBinary(data []byte) error {
	samples, err := m.decode(data)
	if err != nil {
		return err
	}
	copy(m.front, samples)
	m.staged = false
	return nil
}

// CheckSnapshot reports whether UnmarshalBinary would accept data, without
// modifying m.
func (m *MTWMemory[T]) CheckSnapshot(data []byte) error {
	_, err := m.decode(data)
	return err
}

func (m *MTWMemory[T]) decode(data []byte) ([]T, error) {
	const op = "impedance.MTWMemory.UnmarshalBinary"
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != mtwMagic {
		return nil, beam.ConfigErrorf(op, "not a multi-turn wake snapshot")
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if beam.Kind(kind) != beam.KindOf[T]() {
		return nil, beam.ConfigErrorf(op, "snapshot holds %s, memory is %s", beam.Kind(kind), beam.KindOf[T]())
	}
	mode, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if MTWMode(mode) != m.mode {
		return nil, beam.ConfigErrorf(op, "snapshot mode %s, memory mode %s", MTWMode(mode), m.mode)
	}
	var n, bufferSize uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &bufferSize); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if int(n) != len(m.front) || int(bufferSize) != m.bufferSize {
		return nil, beam.ConfigErrorf(op, "snapshot sized %d/%d, memory sized %d/%d", n, bufferSize, len(m.front), m.bufferSize)
	}
	samples := make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if r.Len() != 0 {
		return nil, beam.ConfigErrorf(op, "%d trailing bytes", r.Len())
	}
	return samples, nil
}
