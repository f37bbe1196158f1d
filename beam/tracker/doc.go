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

// Package tracker runs turns.
//
// An [Engine] owns the worker pool, the scratch arena and the logger shared
// by everything in a run. A [Tracker] advances one bunch:
//
//	profile.Track
//	induced voltage (sum of sources, interpolated kick)
//	RF kick, drift          or  fused interpolated kick and drift
//	radiation (optional)
//	beam phase (optional)
//	rf.Advance, arena.Reset
//
// Kernel panics surface as beam.KernelError and abort the turn before the
// counter advances. After [Engine.Close] every operation fails with
// [ErrEngineClosed].
//
// # Snapshots
//
// [Tracker.SaveSnapshot] writes the turn counter and the multi-turn wake
// memory of every source that has one, in source order.
// [Tracker.RestoreSnapshot] validates the whole snapshot before touching the
// tracker.
package tracker
