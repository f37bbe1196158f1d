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

// Package fft provides the real-input transforms used by the induced-voltage
// engine, built on github.com/mjibson/go-dsp/fft.
//
// Conventions follow the usual half-spectrum layout: a length-n real signal
// has n/2+1 non-redundant bins, RFFTFreq gives their frequencies, and IRFFT
// treats the imaginary parts of the DC and (even n) Nyquist bins as zero.
// Spectra are complex128 regardless of the signal precision; callers
// working in float32 round products with beam.RoundComplex.
package fft

import (
	"math/bits"

	dspfft "github.com/mjibson/go-dsp/fft"

	"github.com/ajroetker/go-beamdyn/beam"
)

// NextPow2 returns the smallest power of two >= n. NextPow2(0) is 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// SetWorkers bounds the goroutines the transform library uses for large
// transforms. 0 means GOMAXPROCS.
func SetWorkers(n int) {
	dspfft.SetWorkerPoolSize(n)
}

// RFFTFreq returns the n/2+1 sample frequencies of a length-n real transform
// with sample spacing d.
func RFFTFreq(n int, d float64) []float64 {
	freq := make([]float64, n/2+1)
	scale := 1 / (float64(n) * d)
	for k := range freq {
		freq[k] = float64(k) * scale
	}
	return freq
}

// RFFT transforms src, zero-padded or truncated to n samples, and returns
// the n/2+1 non-redundant bins.
func RFFT[T beam.Floats](src []T, n int) []complex128 {
	in := make([]float64, n)
	for i := range min(n, len(src)) {
		in[i] = float64(src[i])
	}
	full := dspfft.FFTReal(in)
	return full[:n/2+1]
}

// IRFFT inverts a half spectrum to a length-n real signal and writes the
// first min(len(dst), n) samples into dst. Missing bins are treated as zero
// and extra bins are ignored.
func IRFFT[T beam.Floats](dst []T, spec []complex128, n int) {
	half := n/2 + 1
	full := make([]complex128, n)
	for k := range min(half, len(spec)) {
		full[k] = spec[k]
	}
	full[0] = complex(real(full[0]), 0)
	if n%2 == 0 && half-1 < len(spec) {
		full[half-1] = complex(real(full[half-1]), 0)
	}
	for k := 1; k < half; k++ {
		if n-k != k {
			full[n-k] = complex(real(full[k]), -imag(full[k]))
		}
	}
	out := dspfft.IFFT(full)
	for i := range min(len(dst), n) {
		dst[i] = T(real(out[i]))
	}
}
