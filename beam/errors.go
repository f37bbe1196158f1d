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
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceExhausted is matched by every ResourceExhaustion.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrKernel is matched by every KernelError.
	ErrKernel = errors.New("kernel failure")
)

// ConfigurationError reports an invalid tag, a precision mismatch or
// inconsistent array lengths. It is always fatal to the current turn.
type ConfigurationError struct {
	Op     string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrConfiguration, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configErrorf(op, format string, args ...any) error {
	return &ConfigurationError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds a ConfigurationError for op.
func ConfigErrorf(op, format string, args ...any) error {
	return configErrorf(op, format, args...)
}

// CheckLengths fails when any slice length differs from want.
func CheckLengths(op string, want int, lengths ...int) error {
	for i, n := range lengths {
		if n != want {
			return configErrorf(op, "array %d has length %d, want %d", i, n, want)
		}
	}
	return nil
}

// ResourceExhaustion reports a buffer request the arena could not satisfy.
// Retrying without releasing buffers cannot succeed.
type ResourceExhaustion struct {
	Key       string
	Requested int64
	InUse     int64
	Limit     int64
}

func (e *ResourceExhaustion) Error() string {
	return fmt.Sprintf("%s: %d bytes requested for %s with %d of %d bytes in use",
		ErrResourceExhausted, e.Requested, e.Key, e.InUse, e.Limit)
}

func (e *ResourceExhaustion) Unwrap() error { return ErrResourceExhausted }

// KernelError wraps a panic raised while a kernel was executing.
type KernelError struct {
	Stage string
	Value any
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("%s in %s: %v", ErrKernel, e.Stage, e.Value)
}

func (e *KernelError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return errors.Join(ErrKernel, err)
	}
	return ErrKernel
}
