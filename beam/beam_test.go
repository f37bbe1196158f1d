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

package beam

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf[float32](); got != KindFloat32 {
		t.Errorf("KindOf[float32] = %s", got)
	}
	if got := KindOf[float64](); got != KindFloat64 {
		t.Errorf("KindOf[float64] = %s", got)
	}
	if KindFloat32.Complex() != KindComplex64 || KindFloat64.Complex() != KindComplex128 {
		t.Error("complex pairing is wrong")
	}
	if KindComplex128.Size() != 16 || KindInt32.Size() != 4 {
		t.Error("element sizes are wrong")
	}
}

func TestParsePrecision(t *testing.T) {
	testCases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"single", KindFloat32, true},
		{"float32", KindFloat32, true},
		{"Double", KindFloat64, true},
		{"", KindFloat64, true},
		{"half", KindInvalid, false},
	}
	for _, tc := range testCases {
		got, err := ParsePrecision(tc.in)
		if tc.ok != (err == nil) {
			t.Errorf("ParsePrecision(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.ok && !errors.Is(err, ErrConfiguration) {
			t.Errorf("ParsePrecision(%q) error does not match ErrConfiguration", tc.in)
		}
		if got != tc.want {
			t.Errorf("ParsePrecision(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCheckPrecision(t *testing.T) {
	prev := Precision()
	t.Cleanup(func() { _ = SetPrecision(prev) })

	if err := SetPrecision(KindFloat64); err != nil {
		t.Fatal(err)
	}
	if err := CheckPrecision[float64]("test"); err != nil {
		t.Errorf("float64 under double policy: %v", err)
	}
	err := CheckPrecision[float32]("test")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("float32 under double policy: got %v, want ConfigurationError", err)
	}
	if cfgErr.Op != "test" {
		t.Errorf("Op = %q", cfgErr.Op)
	}
	if err := SetPrecision(KindComplex64); err == nil {
		t.Error("SetPrecision accepted a complex kind")
	}
}

func TestRoundComplex(t *testing.T) {
	c := complex(1.0/3.0, -2.0/3.0)
	r := RoundComplex[float32](c)
	if real(r) != float64(float32(1.0/3.0)) || imag(r) != float64(float32(-2.0/3.0)) {
		t.Errorf("RoundComplex[float32] = %v", r)
	}
	if RoundComplex[float64](c) != c {
		t.Error("RoundComplex[float64] changed the value")
	}
}

func TestArrayStaleness(t *testing.T) {
	a := NewArray([]float64{1, 2, 3})
	if !a.HostFresh() || a.DeviceFresh() {
		t.Fatal("new array should be host-fresh only")
	}

	dev := a.SyncToDevice()
	if !a.DeviceFresh() {
		t.Fatal("device should be fresh after sync")
	}
	dev[1] = 20
	if a.Host()[1] != 2 {
		t.Fatal("host must not see device writes before invalidation")
	}

	a.InvalidateHostCopy()
	if a.HostFresh() {
		t.Fatal("host should be stale after InvalidateHostCopy")
	}
	if got := a.Host()[1]; got != 20 {
		t.Errorf("Host()[1] = %v, want 20", got)
	}
	if !a.HostFresh() {
		t.Error("Host should refresh the host copy")
	}

	a.Host()[0] = 10
	a.InvalidateDeviceCopy()
	if got := a.SyncToDevice()[0]; got != 10 {
		t.Errorf("device[0] = %v, want 10", got)
	}
	if a.Len() != 3 {
		t.Errorf("Len = %d", a.Len())
	}
}

func TestNewBunch(t *testing.T) {
	b, err := NewBunch([]float64{1, 2}, []float64{0, 0}, 1, 1e10)
	if err != nil {
		t.Fatal(err)
	}
	if b.NMacro() != 2 || b.Ratio() != 5e9 {
		t.Errorf("NMacro=%d Ratio=%g", b.NMacro(), b.Ratio())
	}
	if _, err := NewBunch([]float64{1, 2}, []float64{0}, 1, 1e10); !errors.Is(err, ErrConfiguration) {
		t.Errorf("length mismatch: got %v", err)
	}
	if _, err := NewBunch[float64](nil, nil, 1, 1e10); err == nil {
		t.Error("empty population accepted")
	}
}

func TestBigaussianDeterministic(t *testing.T) {
	p := BigaussianParams{N: 1000, CenterDT: 2.5e-9, SigmaDT: 0.5e-9, SigmaDE: 1e6, Cut: 3, Seed: 42}
	dt1, de1 := Bigaussian[float64](p)
	dt2, de2 := Bigaussian[float64](p)
	for i := range dt1 {
		if dt1[i] != dt2[i] || de1[i] != de2[i] {
			t.Fatalf("particle %d differs between identical seeds", i)
		}
		if dt1[i] < 1e-9 || dt1[i] > 4e-9 {
			t.Fatalf("particle %d outside the 3-sigma cut: %g", i, dt1[i])
		}
	}
}

func TestDetectDevice(t *testing.T) {
	d := DetectDevice()
	if d.Workers < 1 {
		t.Errorf("Workers = %d", d.Workers)
	}
	if d.SharedMemoryPerGroup < 4<<10 {
		t.Errorf("SharedMemoryPerGroup = %d", d.SharedMemoryPerGroup)
	}
	if d.CacheLine <= 0 {
		t.Errorf("CacheLine = %d", d.CacheLine)
	}
	if got := d.WithWorkers(3).Workers; got != 3 {
		t.Errorf("WithWorkers(3) = %d", got)
	}
	if got := d.WithSharedMemory(0).SharedMemoryPerGroup; got != d.SharedMemoryPerGroup {
		t.Errorf("WithSharedMemory(0) changed budget to %d", got)
	}
}
