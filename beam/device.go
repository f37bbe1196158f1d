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

import (
	"os"
	"runtime"
	"strconv"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// DispatchLevel is the instruction-set tier detected for the host.
type DispatchLevel int

const (
	DispatchScalar DispatchLevel = iota
	DispatchSSE2
	DispatchAVX2
	DispatchAVX512
	DispatchNEON
	DispatchSVE
)

func (l DispatchLevel) String() string {
	switch l {
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	case DispatchNEON:
		return "neon"
	case DispatchSVE:
		return "sve"
	default:
		return "scalar"
	}
}

// Device describes the execution resources kernels are dispatched onto.
//
// SharedMemoryPerGroup is the fast-memory budget of one work group, i.e. the
// private accumulator space a worker can use without spilling out of its L1
// data cache. The histogram strategy selection compares 4*nSlices against it.
type Device struct {
	Name                 string
	Level                DispatchLevel
	Workers              int
	SharedMemoryPerGroup int
	CacheLine            int
}

var (
	currentLevel        DispatchLevel
	currentName         string
	currentSharedMemory int
)

// Environment overrides read once at startup.
const (
	envNoSimd       = "BEAMDYN_NO_SIMD"
	envSharedMemory = "BEAMDYN_SHARED_MEMORY"
)

// NoSimdEnv reports whether BEAMDYN_NO_SIMD forces the scalar tier.
func NoSimdEnv() bool {
	v := os.Getenv(envNoSimd)
	return v == "1" || v == "true"
}

func setScalarMode() {
	currentLevel = DispatchScalar
	currentName = "scalar"
	currentSharedMemory = 32 << 10
}

// DetectDevice returns the host device with one worker per GOMAXPROCS slot.
func DetectDevice() Device {
	shared := currentSharedMemory
	if v, err := strconv.Atoi(os.Getenv(envSharedMemory)); err == nil && v > 0 {
		shared = v
	}
	return Device{
		Name:                 currentName,
		Level:                currentLevel,
		Workers:              runtime.GOMAXPROCS(0),
		SharedMemoryPerGroup: shared,
		CacheLine:            int(unsafe.Sizeof(cpu.CacheLinePad{})),
	}
}

// WithWorkers returns a copy of d using n workers; n <= 0 keeps the default.
func (d Device) WithWorkers(n int) Device {
	if n > 0 {
		d.Workers = n
	}
	return d
}

// WithSharedMemory returns a copy of d with a different fast-memory budget;
// bytes <= 0 keeps the detected value.
func (d Device) WithSharedMemory(bytes int) Device {
	if bytes > 0 {
		d.SharedMemoryPerGroup = bytes
	}
	return d
}
