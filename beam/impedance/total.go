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
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/kinetics"
)

// TotalInducedVoltage sums an ordered list of sources into one voltage per
// profile slice and kicks the bunch with it.
type TotalInducedVoltage[T beam.Floats] struct {
	env     Env[T]
	sources []Source[T]
	cache   *SpectrumCache[T]
	owner   arena.Owner
	total   *arena.Buffer[T]
}

// NewTotalInducedVoltage keeps sources in the given order; the order fixes
// the floating-point summation order.
func NewTotalInducedVoltage[T beam.Floats](env Env[T], sources ...Source[T]) (*TotalInducedVoltage[T], error) {
	const op = "impedance.NewTotalInducedVoltage"
	if err := env.validate(op); err != nil {
		return nil, err
	}
	names := lo.Map(sources, func(s Source[T], _ int) string { return s.Name() })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return nil, beam.ConfigErrorf(op, "duplicate source names %v", dup)
	}
	return &TotalInducedVoltage[T]{
		env:     env,
		sources: sources,
		cache:   NewSpectrumCache(env.Profile),
		owner:   arena.NewOwner(),
	}, nil
}

// Sources returns the configured sources in summation order.
func (t *TotalInducedVoltage[T]) Sources() []Source[T] { return t.sources }

// Cache returns the beam-spectrum cache shared by the sources.
func (t *TotalInducedVoltage[T]) Cache() *SpectrumCache[T] { return t.cache }

// TransformLengths returns the distinct beam-spectrum lengths the sources
// read, in source order.
func (t *TotalInducedVoltage[T]) TransformLengths() []int {
	lengths := lo.FilterMap(t.sources, func(s Source[T], _ int) (int, bool) {
		return s.NFFT(), s.NFFT() > 0
	})
	return lo.Uniq(lengths)
}

// Voltage returns the summed voltage of the current turn, NSlices long, or
// nil before the first Sum of the turn.
func (t *TotalInducedVoltage[T]) Voltage() []T {
	if !t.total.Valid() {
		return nil
	}
	return t.total.Data
}

// Sum regenerates every source for the current profile and adds their
// voltages, each into the leading min(len, NSlices) samples of the total.
// Source state carried between turns is committed only when every source
// succeeded; on error no source has moved forward.
func (t *TotalInducedVoltage[T]) Sum(ctx context.Context) error {
	if err := t.Stage(ctx); err != nil {
		return err
	}
	t.Commit()
	return nil
}

// Stage is Sum without the commit. The caller finishes the turn with
// Commit, or with Discard when a later stage fails.
//
// The spectrum cache is cleared first and filled once per distinct
// transform length. Sources generate concurrently; each writes only its own
// buffers. A source whose numeric kind differs from the precision policy
// fails the call before any source runs. A panicking source fails it with a
// beam.KernelError.
func (t *TotalInducedVoltage[T]) Stage(ctx context.Context) error {
	const op = "impedance.Sum"
	for _, s := range t.sources {
		if k := s.ElementKind(); k != beam.Precision() {
			return beam.ConfigErrorf(op, "source %q computes in %s, precision policy is %s", s.Name(), k, beam.Precision())
		}
	}

	t.total.Release()
	n := t.env.Profile.NSlices
	buf, err := arena.Get[T](t.env.Arena, t.owner, "total_induced_voltage", n)
	if err != nil {
		return err
	}
	t.total = buf

	t.cache.Clear()
	for _, n := range t.TransformLengths() {
		t.cache.Get(n)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range t.sources {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &beam.KernelError{Stage: "source " + s.Name(), Value: r}
				}
			}()
			if err := s.Generate(gctx, t.cache); err != nil {
				return fmt.Errorf("source %q: %w", s.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Discard()
		return err
	}

	clear(buf.Data)
	for _, s := range t.sources {
		v := s.Voltage()
		m := min(len(v), n)
		t.env.Pool.ParallelFor(m, func(start, end int) {
			for i := start; i < end; i++ {
				buf.Data[i] += v[i]
			}
		})
	}
	return nil
}

// Commit makes the state staged by every source current.
func (t *TotalInducedVoltage[T]) Commit() {
	for _, s := range t.sources {
		if st, ok := s.(Stager); ok {
			st.Commit()
		}
	}
}

// Discard drops the state staged by every source.
func (t *TotalInducedVoltage[T]) Discard() {
	for _, s := range t.sources {
		if st, ok := s.(Stager); ok {
			st.Discard()
		}
	}
}

// Track sums the sources and kicks the bunch with the interpolated total,
// then marks the host energy copy stale. Source state is committed after
// the kick.
func (t *TotalInducedVoltage[T]) Track(ctx context.Context) error {
	if err := t.Stage(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		t.Discard()
		return err
	}
	p, b := t.env.Profile, t.env.Bunch
	err := kinetics.LinearInterpKick(t.env.Pool,
		kinetics.Scratch{Arena: t.env.Arena, Owner: t.owner},
		b.DT.SyncToDevice(), b.DE.SyncToDevice(),
		kinetics.Interp[T]{
			Voltage:    t.total.Data,
			BinCenters: p.BinCenters,
			EdgeLeft:   float64(p.BinEdges[0]),
			EdgeRight:  float64(p.BinEdges[p.NSlices]),
			Charge:     b.Charge,
		})
	if err != nil {
		t.Discard()
		return err
	}
	t.Commit()
	b.DE.InvalidateHostCopy()
	return nil
}

// Close releases the scratch memory of the summation and of every source
// that holds some.
func (t *TotalInducedVoltage[T]) Close() {
	t.total.Release()
	t.env.Arena.Drop(t.owner)
	for _, s := range t.sources {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
