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

// Package beam holds the shared vocabulary of the longitudinal beam-dynamics
// core: the precision policy, numeric kinds, the error taxonomy, host/device
// arrays, the macroparticle bunch, and the device description kernels are
// dispatched onto.
//
// # Precision
//
// Every kernel is generic over [Floats]. The process-wide policy set with
// [SetPrecision] decides which instantiation is legal; sources and engines
// call [CheckPrecision] and fail fast on a mismatch instead of converting.
//
// # Device
//
// The device is the host CPU seen through a worker pool. [DetectDevice]
// reports the instruction tier (via golang.org/x/sys/cpu), the worker count
// and the per-work-group fast memory budget used by the histogram.
//
// # Sub-packages
//
//   - workerpool: persistent goroutines executing data-parallel kernels
//   - arena: reusable scratch buffers keyed by owner, tag, size and kind
//   - fft: real transforms on top of github.com/mjibson/go-dsp/fft
//   - histogram: naive, shared-accumulator and hybrid slicing
//   - profile: bin layout, slice population, beam spectrum, derivatives
//   - kinetics: drift, kick, interpolated kick, synchrotron radiation
//   - rf: per-turn RF parameters
//   - impedance: impedance/wake models, induced voltage, multi-turn wake
//   - phase: beam-phase reduction
//   - tracker: engine lifecycle and the per-turn pipeline
package beam
