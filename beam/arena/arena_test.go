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

package arena

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-beamdyn/beam"
)

func TestReuseSameKey(t *testing.T) {
	a := New(0)
	owner := NewOwner()

	b1, err := Get[float64](a, owner, "slope", 16)
	require.NoError(t, err)
	require.Len(t, b1.Data, 16)
	b1.Data[3] = 7
	b1.Release()

	b2, err := Get[float64](a, owner, "slope", 16)
	require.NoError(t, err)
	require.Equal(t, 7.0, b2.Data[3], "same slot should come back")

	st := a.Stats()
	require.Equal(t, int64(1), st.Hits)
	require.Equal(t, int64(1), st.Misses)
	require.Equal(t, int64(16*8), st.LiveBytes)
}

func TestHeldKeyFails(t *testing.T) {
	a := New(0)
	owner := NewOwner()

	_, err := Get[float32](a, owner, "voltage", 8)
	require.NoError(t, err)
	_, err = Get[float32](a, owner, "voltage", 8)
	require.ErrorIs(t, err, beam.ErrConfiguration)

	// Same tag, different owner or kind, is a distinct buffer.
	_, err = Get[float32](a, NewOwner(), "voltage", 8)
	require.NoError(t, err)
	_, err = Get[float64](a, owner, "voltage", 8)
	require.NoError(t, err)
}

func TestStealFreeSlot(t *testing.T) {
	a := New(0)
	owner := NewOwner()

	big, err := Get[complex128](a, owner, "spectrum", 64)
	require.NoError(t, err)
	big.Release()

	small, err := Get[complex128](a, owner, "product", 33)
	require.NoError(t, err)
	require.Len(t, small.Data, 33)

	st := a.Stats()
	require.Equal(t, int64(1), st.Steals)
	require.Equal(t, 1, st.Slots)
	require.Equal(t, int64(64*16), st.LiveBytes)

	// A different kind never steals.
	_, err = Get[float64](a, owner, "other", 4)
	require.NoError(t, err)
	require.Equal(t, 2, a.Stats().Slots)
}

func TestResourceExhaustion(t *testing.T) {
	a := New(1024)
	owner := NewOwner()

	_, err := Get[float64](a, owner, "a", 100)
	require.NoError(t, err)
	_, err = Get[float64](a, owner, "b", 100)
	require.ErrorIs(t, err, beam.ErrResourceExhausted)

	var re *beam.ResourceExhaustion
	require.True(t, errors.As(err, &re))
	require.Equal(t, int64(800), re.Requested)
	require.Equal(t, int64(800), re.InUse)
	require.Equal(t, int64(1024), re.Limit)
}

func TestResetInvalidatesHandles(t *testing.T) {
	a := New(0)
	owner := NewOwner()

	b, err := Get[int32](a, owner, "hist", 10)
	require.NoError(t, err)
	require.True(t, b.Valid())

	a.Reset()
	require.False(t, b.Valid())

	b2, err := Get[int32](a, owner, "hist", 10)
	require.NoError(t, err, "reset must free the slot")
	require.True(t, b2.Valid())

	// Releasing the stale handle must not free the new holder's slot.
	b.Release()
	require.True(t, b2.Valid())
	_, err = Get[int32](a, owner, "hist", 10)
	require.ErrorIs(t, err, beam.ErrConfiguration)
}

func TestDrop(t *testing.T) {
	a := New(0)
	o1, o2 := NewOwner(), NewOwner()

	b, _ := Get[float64](a, o1, "x", 10)
	b.Release()
	_, _ = Get[float64](a, o2, "y", 10)

	a.Drop(o1)
	a.Drop(o2) // held, kept
	st := a.Stats()
	require.Equal(t, 1, st.Slots)
	require.Equal(t, int64(80), st.LiveBytes)
	require.Equal(t, o2, a.Keys()[0].Owner)
}

func TestConcurrentGet(t *testing.T) {
	a := New(0)
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			owner := NewOwner()
			for range 100 {
				b, err := Get[float64](a, owner, "scratch", 32)
				if err != nil {
					t.Error(err)
					return
				}
				b.Data[0] = 1
				b.Release()
			}
		})
	}
	wg.Wait()
	require.LessOrEqual(t, a.Stats().Slots, 16)
}
