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

// Package cpuinfo reports the CPU features detected by Go and the device
// description the kernels run with.
package cpuinfo

import (
	"io"
	"runtime"

	"golang.org/x/sys/cpu"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ajroetker/go-beamdyn/beam"
)

// Feature is one CPU capability flag.
type Feature struct {
	Name    string
	Present bool
	Note    string
}

// Features lists the flags relevant to the kernels on this architecture.
func Features() []Feature {
	switch runtime.GOARCH {
	case "arm64":
		return []Feature{
			{"ASIMD", cpu.ARM64.HasASIMD, "NEON baseline"},
			{"FP", cpu.ARM64.HasFP, "floating point"},
			{"FPHP", cpu.ARM64.HasFPHP, "FP16 scalar, ARMv8.2-A"},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP, "FP16 NEON, ARMv8.2-A"},
			{"SVE", cpu.ARM64.HasSVE, "Scalable Vector Extension"},
			{"SVE2", cpu.ARM64.HasSVE2, ""},
			{"ATOMICS", cpu.ARM64.HasATOMICS, "Large System Extensions"},
		}
	case "amd64":
		return []Feature{
			{"SSE2", cpu.X86.HasSSE2, ""},
			{"SSE41", cpu.X86.HasSSE41, ""},
			{"SSE42", cpu.X86.HasSSE42, ""},
			{"AVX", cpu.X86.HasAVX, ""},
			{"AVX2", cpu.X86.HasAVX2, ""},
			{"FMA", cpu.X86.HasFMA, ""},
			{"AVX512F", cpu.X86.HasAVX512F, ""},
			{"AVX512BW", cpu.X86.HasAVX512BW, ""},
			{"AVX512VL", cpu.X86.HasAVX512VL, ""},
		}
	}
	return nil
}

// Write prints the runtime, the device description and the feature flags.
func Write(w io.Writer, d beam.Device) error {
	p := message.NewPrinter(language.English)
	lines := []struct {
		format string
		args   []any
	}{
		{"GOOS: %s\n", []any{runtime.GOOS}},
		{"GOARCH: %s\n", []any{runtime.GOARCH}},
		{"NumCPU: %d\n", []any{runtime.NumCPU()}},
		{"\n", nil},
		{"Dispatch level: %s\n", []any{d.Level}},
		{"Dispatch name: %s\n", []any{d.Name}},
		{"Workers: %d\n", []any{d.Workers}},
		{"Fast memory per work group: %d bytes\n", []any{d.SharedMemoryPerGroup}},
		{"Cache line: %d bytes\n", []any{d.CacheLine}},
		{"Precision: %s\n", []any{beam.Precision()}},
	}
	for _, l := range lines {
		if _, err := p.Fprintf(w, l.format, l.args...); err != nil {
			return err
		}
	}

	features := Features()
	if len(features) == 0 {
		return nil
	}
	if _, err := p.Fprintf(w, "\n=== golang.org/x/sys/cpu (%s) ===\n", runtime.GOARCH); err != nil {
		return err
	}
	for _, f := range features {
		var err error
		if f.Note != "" {
			_, err = p.Fprintf(w, "  Has%-10s %v (%s)\n", f.Name+":", f.Present, f.Note)
		} else {
			_, err = p.Fprintf(w, "  Has%-10s %v\n", f.Name+":", f.Present)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
