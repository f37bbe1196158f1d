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
	"sync"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/profile"
)

// SpectrumCache holds the beam spectrum of the current turn per transform
// length. Entries are valid for one turn only; Clear must run before the
// profile changes.
type SpectrumCache[T beam.Floats] struct {
	prof *profile.Profile[T]

	mu        sync.Mutex
	spectra   map[int][]complex128
	generated int
}

// NewSpectrumCache returns an empty cache over prof.
func NewSpectrumCache[T beam.Floats](prof *profile.Profile[T]) *SpectrumCache[T] {
	return &SpectrumCache[T]{prof: prof, spectra: make(map[int][]complex128)}
}

// Get returns the spectrum for nFFT, generating it on first use. Callers
// must not modify the result.
func (c *SpectrumCache[T]) Get(nFFT int) []complex128 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.spectra[nFFT]; ok {
		return s
	}
	s := c.prof.BeamSpectrum(nFFT)
	c.spectra[nFFT] = s
	c.generated++
	return s
}

// Clear drops every entry.
func (c *SpectrumCache[T]) Clear() {
	c.mu.Lock()
	clear(c.spectra)
	c.mu.Unlock()
}

// Len returns the number of cached lengths.
func (c *SpectrumCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spectra)
}

// Generated returns how many spectra have been computed since creation.
func (c *SpectrumCache[T]) Generated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generated
}
