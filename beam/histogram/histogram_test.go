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

package histogram

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

func synthetic(n int) []float64 {
	dt, _ := beam.Bigaussian[float64](beam.BigaussianParams{
		N: n, CenterDT: 2.5e-9, SigmaDT: 1.2e-9, SigmaDE: 1, Cut: 4, Seed: 7,
	})
	return dt
}

func TestStrategiesAgree(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	dt := synthetic(20000)
	cutLeft, cutRight := -1e-9, 6e-9
	// Particles exactly on both cuts.
	dt = append(dt, cutLeft, cutRight, cutRight, cutLeft)

	for _, nSlices := range []int{1, 7, 100, 1000, 5000} {
		t.Run(fmt.Sprint(nSlices), func(t *testing.T) {
			ref := make([]int32, nSlices)
			if err := Slice(workerpool.Inline{}, Naive, dt, ref, cutLeft, cutRight, 0); err != nil {
				t.Fatal(err)
			}
			var total int32
			for _, c := range ref {
				total += c
			}
			if want := Count(dt, cutLeft, cutRight); int(total) != want {
				t.Fatalf("total = %d, want %d", total, want)
			}

			for _, tc := range []struct {
				strategy    Strategy
				sharedBytes int
			}{
				{Naive, 0},
				{Shared, 32 << 10},
				{Hybrid, 64},
				{Hybrid, 4 * 33},
				{Auto, 1 << 10},
			} {
				got := make([]int32, nSlices)
				for i := range got {
					got[i] = -5 // must be overwritten
				}
				if err := Slice(pool, tc.strategy, dt, got, cutLeft, cutRight, tc.sharedBytes); err != nil {
					t.Fatalf("%s: %v", tc.strategy, err)
				}
				if diff := cmp.Diff(ref, got); diff != "" {
					t.Errorf("%s/%d differs from naive (-want +got):\n%s", tc.strategy, tc.sharedBytes, diff)
				}
			}
		})
	}
}

func TestBinOnEdges(t *testing.T) {
	const n = 100
	left, right := -1e-9, 6e-9
	b := newBinner(n, left, right)
	if got := b.bin(left); got != 0 {
		t.Errorf("bin(cutLeft) = %d, want 0", got)
	}
	if got := b.bin(right); got != -1 {
		t.Errorf("bin(cutRight) = %d, want -1", got)
	}
	h := (right - left) / n
	for k := 1; k < n; k++ {
		e := left + float64(k)*h
		if got := b.bin(e); got != k && got != k-1 {
			t.Errorf("bin(edge %d) = %d, want %d or %d", k, got, k, k-1)
		}
		mid := left + (float64(k)+0.5)*h
		if got := b.bin(mid); got != k {
			t.Errorf("bin(center %d) = %d", k, got)
		}
	}

	// An edge particle lands in the same slice under every strategy.
	dt := make([]float64, n+1)
	for k := range dt {
		dt[k] = left + float64(k)*h
	}
	pool := workerpool.New(4)
	defer pool.Close()
	var want []int32
	for _, s := range []Strategy{Naive, Shared, Hybrid} {
		out := make([]int32, n)
		if err := Slice(pool, s, dt, out, left, right, 64); err != nil {
			t.Fatal(err)
		}
		if want == nil {
			want = out
			continue
		}
		if diff := cmp.Diff(want, out); diff != "" {
			t.Errorf("%s (-naive +got):\n%s", s, diff)
		}
	}
}

func TestFloat32Population(t *testing.T) {
	dt := []float32{0, 0.1, 0.5, 0.99, 1, 1.5, -0.1}
	out := make([]int32, 4)
	if err := Slice(workerpool.Inline{}, Shared, dt, out, 0, 1, 1024); err != nil {
		t.Fatal(err)
	}
	want := []int32{2, 0, 1, 1}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSelect(t *testing.T) {
	testCases := []struct {
		nSlices, shared int
		want            Strategy
	}{
		{100, 32 << 10, Shared},
		{8191, 32 << 10, Shared},
		{8192, 32 << 10, Hybrid},
		{100000, 48 << 10, Hybrid},
	}
	for _, tc := range testCases {
		if got := Select(tc.nSlices, tc.shared); got != tc.want {
			t.Errorf("Select(%d, %d) = %s, want %s", tc.nSlices, tc.shared, got, tc.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{Auto, Naive, Shared, Hybrid} {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseStrategy("radix"); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("unknown tag: got %v", err)
	}
}

func TestSliceErrors(t *testing.T) {
	dt := []float64{1}
	if err := Slice(workerpool.Inline{}, Naive, dt, nil, 0, 1, 0); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("no slices: %v", err)
	}
	if err := Slice(workerpool.Inline{}, Naive, dt, make([]int32, 2), 1, 1, 0); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("empty range: %v", err)
	}
	if err := Slice(workerpool.Inline{}, Hybrid, dt, make([]int32, 2), 0, 1, 3); !errors.Is(err, beam.ErrConfiguration) {
		t.Errorf("tiny budget: %v", err)
	}
}

func BenchmarkSlice(b *testing.B) {
	pool := workerpool.New(0)
	defer pool.Close()
	dt := synthetic(1 << 20)

	for _, nSlices := range []int{256, 65536} {
		for _, s := range []Strategy{Naive, Shared, Hybrid} {
			b.Run(fmt.Sprintf("%s/%d", s, nSlices), func(b *testing.B) {
				out := make([]int32, nSlices)
				for i := 0; i < b.N; i++ {
					_ = Slice(pool, s, dt, out, -1e-9, 6e-9, 32<<10)
				}
			})
		}
	}
}
