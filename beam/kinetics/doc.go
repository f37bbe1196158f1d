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

// Package kinetics contains the per-particle kernels of a turn.
//
// All kernels mutate their slices in place on the pool and return once every
// chunk is done. They operate on the device side of a bunch; the caller
// invalidates the host copies afterwards (see beam.Bunch.CoordinatesChanged).
//
// # Drift
//
// [Drift] advances arrival times with one of three [Solver] models. Simple is
// linear in dE, Legacy expands the slip factor, Exact uses the relative
// momentum deviation derived from beta and the total energy.
//
// # Kicks
//
// [Kick] applies the RF systems. [LinearInterpKick] applies a voltage
// tabulated at bin centers through per-segment slope and intercept factors
// held in arena buffers; [LinearInterpKickDrift] fuses it with the Simple
// drift. Particles outside [EdgeLeft, EdgeRight) are not kicked.
//
// # Radiation
//
// [SynchrotronRadiation] and [SynchrotronRadiationFull] model damping, mean
// energy loss and, for the latter, quantum excitation.
package kinetics
