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

// Package arena hands out reusable scratch buffers for kernels.
//
// A buffer is identified by the component that owns it, a purpose tag, an
// element count and an element kind. Asking twice for the same key while the
// first handle is still held is an aliasing bug and fails. Released or reset
// slots are reused for the same key, or stolen by another key of the same
// kind when their capacity suffices. New memory is charged against a byte
// limit.
//
// Contents are garbage on acquisition; callers overwrite before reading.
//
// Usage:
//
//	a := arena.New(256 << 20)
//	owner := arena.NewOwner()
//	buf, err := arena.Get[float64](a, owner, "slope", n-1)
//	if err != nil {
//	    return err
//	}
//	defer buf.Release()
package arena

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ajroetker/go-beamdyn/beam"
)

// Element is any type a kernel buffer may hold.
type Element interface {
	float32 | float64 | complex64 | complex128 | int32
}

// Owner identifies the component a buffer belongs to.
type Owner uint64

var nextOwner atomic.Uint64

// NewOwner returns a process-unique owner token.
func NewOwner() Owner { return Owner(nextOwner.Add(1)) }

// Key identifies a buffer request.
type Key struct {
	Owner Owner
	Tag   string
	Size  int
	Kind  beam.Kind
}

func (k Key) String() string {
	return fmt.Sprintf("owner=%d tag=%s size=%d kind=%s", k.Owner, k.Tag, k.Size, k.Kind)
}

// Stats counts arena activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Steals    int64
	Resets    int64
	Slots     int
	LiveBytes int64
}

type slot struct {
	key   Key
	data  any // []E with len >= key.Size
	cap   int
	bytes int64
	busy  bool
}

// Arena is safe for concurrent use.
type Arena struct {
	mu         sync.Mutex
	limit      int64
	live       int64
	generation uint64
	slots      map[Key]*slot
	stats      Stats
}

// New returns an arena that refuses to allocate beyond limitBytes.
// limitBytes <= 0 means unlimited.
func New(limitBytes int64) *Arena {
	return &Arena{
		limit: limitBytes,
		slots: make(map[Key]*slot),
	}
}

// Buffer is a handle on an arena slot. It is valid until Release or the next
// Reset of its arena.
type Buffer[E Element] struct {
	Data []E

	arena      *Arena
	slot       *slot
	generation uint64
}

// Valid reports whether the handle still owns its slot.
func (b *Buffer[E]) Valid() bool {
	if b == nil || b.arena == nil {
		return false
	}
	b.arena.mu.Lock()
	defer b.arena.mu.Unlock()
	return b.slot.busy && b.generation == b.arena.generation
}

// Release returns the slot to the arena. Releasing a stale handle is a no-op.
func (b *Buffer[E]) Release() {
	if b == nil || b.arena == nil {
		return
	}
	a := b.arena
	a.mu.Lock()
	if b.generation == a.generation {
		b.slot.busy = false
	}
	a.mu.Unlock()
	b.arena = nil
	b.Data = nil
}

func kindOf[E Element]() beam.Kind {
	var zero E
	switch any(zero).(type) {
	case float32:
		return beam.KindFloat32
	case float64:
		return beam.KindFloat64
	case complex64:
		return beam.KindComplex64
	case complex128:
		return beam.KindComplex128
	default:
		return beam.KindInt32
	}
}

// Get acquires the buffer for (owner, tag, size, kind of E).
func Get[E Element](a *Arena, owner Owner, tag string, size int) (*Buffer[E], error) {
	if size < 0 {
		return nil, beam.ConfigErrorf("arena.Get", "negative size %d for %s", size, tag)
	}
	key := Key{Owner: owner, Tag: tag, Size: size, Kind: kindOf[E]()}

	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.slots[key]; ok {
		if s.busy {
			return nil, beam.ConfigErrorf("arena.Get", "buffer %s is already held", key)
		}
		s.busy = true
		a.stats.Hits++
		return handle[E](a, s, size), nil
	}

	a.stats.Misses++
	if s := a.steal(key); s != nil {
		a.stats.Steals++
		return handle[E](a, s, size), nil
	}

	bytes := int64(size) * int64(key.Kind.Size())
	if a.limit > 0 && a.live+bytes > a.limit {
		return nil, &beam.ResourceExhaustion{
			Key:       key.String(),
			Requested: bytes,
			InUse:     a.live,
			Limit:     a.limit,
		}
	}
	s := &slot{key: key, data: make([]E, size), cap: size, bytes: bytes, busy: true}
	a.slots[key] = s
	a.live += bytes
	return handle[E](a, s, size), nil
}

func handle[E Element](a *Arena, s *slot, size int) *Buffer[E] {
	return &Buffer[E]{
		Data:       s.data.([]E)[:size],
		arena:      a,
		slot:       s,
		generation: a.generation,
	}
}

// steal rekeys the smallest free slot of the same kind that can hold key.
// Must be called with a.mu held.
func (a *Arena) steal(key Key) *slot {
	var best *slot
	for _, s := range a.slots {
		if s.busy || s.key.Kind != key.Kind || s.cap < key.Size {
			continue
		}
		if best == nil || s.cap < best.cap {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	delete(a.slots, best.key)
	best.key = key
	best.busy = true
	a.slots[key] = best
	return best
}

// Reset ends the current turn: every outstanding handle becomes invalid and
// every slot is free for reuse.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	a.stats.Resets++
	for _, s := range a.slots {
		s.busy = false
	}
}

// Drop frees the memory of every idle slot belonging to owner. Held slots
// are left alone.
func (a *Arena) Drop(owner Owner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, s := range a.slots {
		if k.Owner == owner && !s.busy {
			delete(a.slots, k)
			a.live -= s.bytes
		}
	}
}

// Keys returns the keys of all slots, held or idle, sorted by owner then tag.
func (a *Arena) Keys() []Key {
	a.mu.Lock()
	keys := make([]Key, 0, len(a.slots))
	for k := range a.slots {
		keys = append(keys, k)
	}
	a.mu.Unlock()
	slices.SortFunc(keys, func(x, y Key) int {
		if x.Owner != y.Owner {
			if x.Owner < y.Owner {
				return -1
			}
			return 1
		}
		if x.Tag != y.Tag {
			if x.Tag < y.Tag {
				return -1
			}
			return 1
		}
		return x.Size - y.Size
	})
	return keys
}

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stats
	st.Slots = len(a.slots)
	st.LiveBytes = a.live
	return st
}

// Limit returns the byte limit, 0 when unlimited.
func (a *Arena) Limit() int64 { return max(a.limit, 0) }
