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

package tracker

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/impedance"
)

// Snapshot layout, little endian:
//
//	magic   [4]byte "BDSN"
//	version uint32
//	turn    uint32
//	count   uint32
//	count × { nameLen uint32, name, blobLen uint32, blob }
//
// Each blob is the MarshalBinary form of one multi-turn wake memory, in
// source order. Sources without a memory are skipped.
var snapshotMagic = [4]byte{'B', 'D', 'S', 'N'}

const snapshotVersion = 1

// maxSnapshotBlob bounds a single length field read from a snapshot.
const maxSnapshotBlob = 1 << 31

type memorySource[T beam.Floats] interface {
	Name() string
	MTW() *impedance.MTWMemory[T]
}

func (t *Tracker[T]) memories() []memorySource[T] {
	if t.total == nil {
		return nil
	}
	var out []memorySource[T]
	for _, s := range t.total.Sources() {
		if m, ok := s.(memorySource[T]); ok && m.MTW() != nil {
			out = append(out, m)
		}
	}
	return out
}

// SaveSnapshot writes the turn counter and every multi-turn wake memory.
func (t *Tracker[T]) SaveSnapshot(w io.Writer) error {
	if err := t.engine.check(); err != nil {
		return err
	}
	mems := t.memories()
	header := []any{snapshotMagic, uint32(snapshotVersion), uint32(t.rf.Turn()), uint32(len(mems))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("snapshot header: %w", err)
		}
	}
	for _, m := range mems {
		blob, err := m.MTW().MarshalBinary()
		if err != nil {
			return fmt.Errorf("snapshot %q: %w", m.Name(), err)
		}
		if err := writeChunk(w, []byte(m.Name())); err != nil {
			return fmt.Errorf("snapshot %q: %w", m.Name(), err)
		}
		if err := writeChunk(w, blob); err != nil {
			return fmt.Errorf("snapshot %q: %w", m.Name(), err)
		}
	}
	t.log.WithField("memories", len(mems)).Info("snapshot saved")
	return nil
}

// RestoreSnapshot reads a snapshot written by SaveSnapshot for the same
// source list and restores the turn counter and the memories.
func (t *Tracker[T]) RestoreSnapshot(r io.Reader) error {
	const op = "tracker.RestoreSnapshot"
	if err := t.engine.check(); err != nil {
		return err
	}
	var (
		magic   [4]byte
		version uint32
		turn    uint32
		count   uint32
	)
	for _, v := range []any{&magic, &version, &turn, &count} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("snapshot header: %w", err)
		}
	}
	if magic != snapshotMagic {
		return beam.ConfigErrorf(op, "not a snapshot (magic %q)", magic[:])
	}
	if version != snapshotVersion {
		return beam.ConfigErrorf(op, "unsupported snapshot version %d", version)
	}
	mems := t.memories()
	if int(count) != len(mems) {
		return beam.ConfigErrorf(op, "snapshot holds %d memories, tracker has %d", count, len(mems))
	}

	// A bad snapshot leaves the tracker untouched.
	blobs := make([][]byte, len(mems))
	for i, m := range mems {
		name, err := readChunk(r)
		if err != nil {
			return fmt.Errorf("snapshot memory %d: %w", i, err)
		}
		if string(name) != m.Name() {
			return beam.ConfigErrorf(op, "memory %d is %q, tracker has %q", i, name, m.Name())
		}
		if blobs[i], err = readChunk(r); err != nil {
			return fmt.Errorf("snapshot %q: %w", m.Name(), err)
		}
		if err := m.MTW().CheckSnapshot(blobs[i]); err != nil {
			return fmt.Errorf("snapshot %q: %w", m.Name(), err)
		}
	}

	if err := t.rf.SetTurn(int(turn)); err != nil {
		return err
	}
	for i, m := range mems {
		if err := m.MTW().UnmarshalBinary(blobs[i]); err != nil {
			return fmt.Errorf("snapshot %q: %w", m.Name(), err)
		}
	}
	t.log.WithFields(logrus.Fields{"turn": turn, "memories": len(mems)}).Info("snapshot restored")
	return nil
}

func writeChunk(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readChunk(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n >= maxSnapshotBlob {
		return nil, fmt.Errorf("chunk of %d bytes", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
