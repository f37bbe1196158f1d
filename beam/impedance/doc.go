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

// Package impedance computes the voltage a bunch induces on itself.
//
// # Sources
//
// An [InducedVoltage] is built from impedance models ([NewFreqSource]), wake
// models ([NewTimeSource]) or a normalized inductive impedance
// ([NewInductiveSource]). The two spectral kinds share one path:
//
//	V = -charge·e·ratio · irfft(Z · S, nFFT)[:NInducedVoltage]
//
// where S is the beam spectrum from the per-turn [SpectrumCache] and Z is
// the source's transfer function on the rfft grid: the impedance divided by
// the bin size, or the transform of the sampled wake. The inductive kind
// scales the derivative of the line density:
//
//	V = -(charge·e/2π)·ratio·(Z/n)·tRev/binSize · dλ/dt
//
// # Multi-turn wake
//
// A source configured with an [MTWConfig] keeps an [MTWMemory]. Each turn
// the memory is shifted by one revolution, in frequency (phase rotation of
// its spectrum, then the trailing BufferSize samples are zeroed) or in time
// (linear reinterpolation, zero outside the grid), and the new single-turn
// voltage is added to its leading window.
//
// # Summation
//
// [TotalInducedVoltage] clears the spectrum cache, fills it once per
// distinct transform length, generates all sources concurrently with
// errgroup and adds them in configuration order.
package impedance
