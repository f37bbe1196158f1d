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

// Package histogram bins macroparticle arrival times into profile slices.
//
// Three strategies give identical counts and differ only in speed:
//
//   - Naive: one atomic add per particle into the output.
//   - Shared: each work group counts into private counters for every slice,
//     then merges them with one atomic add per non-empty slice.
//   - Hybrid: the Shared pass repeated over chunks of the slice range sized
//     to the fast memory budget.
//
// # Selection
//
// [Select] follows the size-threshold pattern of the dispatch layer: when
// 4 bytes times the slice count fits the per-group fast memory reported by
// beam.DetectDevice, Shared runs; beyond that, Hybrid. Naive is only used
// when requested explicitly and is the correctness baseline in tests.
//
// Binning is half open: a particle on cutRight is excluded, and a slice
// index that rounds up to n is clamped into the last slice.
package histogram
