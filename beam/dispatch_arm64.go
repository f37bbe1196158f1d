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

//go:build arm64

package beam

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

func init() {
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	detectCPUFeatures()
}

func detectCPUFeatures() {
	switch {
	case cpu.ARM64.HasSVE:
		currentLevel = DispatchSVE
		currentName = "sve"
		currentSharedMemory = 64 << 10
	default:
		// ASIMD is mandatory on arm64.
		currentLevel = DispatchNEON
		currentName = "neon"
		currentSharedMemory = 32 << 10
	}
	// Apple performance cores carry a 128KB L1d.
	if runtime.GOOS == "darwin" {
		currentSharedMemory = 128 << 10
	}
}
