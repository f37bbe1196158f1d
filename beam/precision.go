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
	"strings"
	"sync/atomic"
)

// Floats is the constraint satisfied by every real element type a kernel
// may be instantiated with.
type Floats interface {
	float32 | float64
}

// Kind identifies the numeric element type of a buffer.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFloat32
	KindFloat64
	KindComplex64
	KindComplex128
	KindInt32
)

// String returns the short name used in logs and configuration files.
func (k Kind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindComplex64:
		return "complex64"
	case KindComplex128:
		return "complex128"
	case KindInt32:
		return "int32"
	default:
		return "invalid"
	}
}

// Size returns the width of one element in bytes.
func (k Kind) Size() int {
	switch k {
	case KindFloat32, KindInt32:
		return 4
	case KindFloat64, KindComplex64:
		return 8
	case KindComplex128:
		return 16
	default:
		return 0
	}
}

// Complex returns the complex kind paired with a real kind.
func (k Kind) Complex() Kind {
	switch k {
	case KindFloat32:
		return KindComplex64
	case KindFloat64:
		return KindComplex128
	default:
		return KindInvalid
	}
}

// KindOf returns the Kind of T.
func KindOf[T Floats]() Kind {
	var zero T
	switch any(zero).(type) {
	case float32:
		return KindFloat32
	default:
		return KindFloat64
	}
}

// ParsePrecision maps a configuration value to a real Kind.
// Accepted values are "single"/"float32" and "double"/"float64".
func ParsePrecision(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "float32", "f32":
		return KindFloat32, nil
	case "double", "float64", "f64", "":
		return KindFloat64, nil
	}
	return KindInvalid, configErrorf("ParsePrecision", "unknown precision %q", s)
}

var currentPrecision atomic.Uint32

func init() {
	currentPrecision.Store(uint32(KindFloat64))
}

// Precision returns the process-wide real element kind. Every source and
// kernel instantiation is checked against it.
func Precision() Kind {
	return Kind(currentPrecision.Load())
}

// SetPrecision changes the process-wide precision policy. It must be called
// before any engine or source is constructed.
func SetPrecision(k Kind) error {
	if k != KindFloat32 && k != KindFloat64 {
		return configErrorf("SetPrecision", "precision must be float32 or float64, got %s", k)
	}
	currentPrecision.Store(uint32(k))
	return nil
}

// CheckPrecision fails with a ConfigurationError when T disagrees with the
// active precision policy.
func CheckPrecision[T Floats](op string) error {
	if k := KindOf[T](); k != Precision() {
		return configErrorf(op, "element kind %s does not match precision policy %s", k, Precision())
	}
	return nil
}

// RoundComplex rounds both components of c to the precision of T. Spectra
// are carried as complex128 and narrowed at every transform boundary so a
// single-precision run never sees double-precision intermediates.
func RoundComplex[T Floats](c complex128) complex128 {
	return complex(float64(T(real(c))), float64(T(imag(c))))
}
