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

package beam

// Array is a logical array with a host copy and a device mirror.
//
// Staleness is explicit state: whoever mutates one side must invalidate the
// other. Kernels read and write the slice returned by SyncToDevice; the
// caller then calls InvalidateHostCopy so the next Host call copies back.
//
//	dt := bunch.DT.SyncToDevice()
//	kinetics.Drift(pool, dt, de, solver, params)
//	bunch.DT.InvalidateHostCopy()
type Array[T any] struct {
	host   []T
	device []T

	hostFresh   bool
	deviceFresh bool
}

// NewArray wraps host without copying. The device mirror is allocated on the
// first SyncToDevice.
func NewArray[T any](host []T) *Array[T] {
	return &Array[T]{host: host, hostFresh: true}
}

// Len returns the number of elements.
func (a *Array[T]) Len() int {
	if a.hostFresh || a.device == nil {
		return len(a.host)
	}
	return len(a.device)
}

// HostFresh reports whether the host copy reflects the latest writes.
func (a *Array[T]) HostFresh() bool { return a.hostFresh }

// DeviceFresh reports whether the device mirror reflects the latest writes.
func (a *Array[T]) DeviceFresh() bool { return a.deviceFresh }

// SyncToDevice copies the host data to the device mirror when the mirror is
// stale and returns the mirror.
func (a *Array[T]) SyncToDevice() []T {
	if a.deviceFresh {
		return a.device
	}
	if cap(a.device) < len(a.host) {
		a.device = make([]T, len(a.host))
	}
	a.device = a.device[:len(a.host)]
	copy(a.device, a.host)
	a.deviceFresh = true
	return a.device
}

// Host copies the device mirror back when the host copy is stale and returns
// the host slice.
func (a *Array[T]) Host() []T {
	if !a.hostFresh {
		copy(a.host, a.device)
		a.hostFresh = true
	}
	return a.host
}

// InvalidateHostCopy records that the device mirror was written.
func (a *Array[T]) InvalidateHostCopy() {
	a.deviceFresh = true
	a.hostFresh = false
}

// InvalidateDeviceCopy records that the host slice was written.
func (a *Array[T]) InvalidateDeviceCopy() {
	a.hostFresh = true
	a.deviceFresh = false
}
