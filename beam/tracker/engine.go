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
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/beam/arena"
	"github.com/ajroetker/go-beamdyn/beam/fft"
	"github.com/ajroetker/go-beamdyn/beam/impedance"
	"github.com/ajroetker/go-beamdyn/beam/profile"
	"github.com/ajroetker/go-beamdyn/beam/rf"
	"github.com/ajroetker/go-beamdyn/beam/workerpool"
)

// ErrEngineClosed is returned by every engine or tracker operation after
// Close.
var ErrEngineClosed = errors.New("tracker: engine closed")

// Engine owns the execution resources of a run: the device description, the
// worker pool, the scratch arena and the logger. All trackers and sources of
// a run share one engine.
type Engine struct {
	mu     sync.RWMutex
	closed bool

	device beam.Device
	pool   *workerpool.Pool
	arena  *arena.Arena
	log    logrus.FieldLogger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	device     beam.Device
	arenaLimit int64
	log        logrus.FieldLogger
}

// WithDevice overrides the detected device description.
func WithDevice(d beam.Device) EngineOption {
	return func(o *engineOptions) { o.device = d }
}

// WithArenaLimit caps the scratch arena in bytes. Zero means unlimited.
func WithArenaLimit(bytes int64) EngineOption {
	return func(o *engineOptions) { o.arenaLimit = bytes }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) EngineOption {
	return func(o *engineOptions) { o.log = l }
}

// NewEngine starts the worker pool described by the device.
func NewEngine(opts ...EngineOption) *Engine {
	o := engineOptions{device: beam.DetectDevice()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}

	pool := workerpool.New(o.device.Workers)
	o.device.Workers = pool.NumWorkers()
	fft.SetWorkers(pool.NumWorkers())

	e := &Engine{
		device: o.device,
		pool:   pool,
		arena:  arena.New(o.arenaLimit),
		log:    o.log,
	}
	e.log.WithFields(logrus.Fields{
		"device":    e.device.Name,
		"level":     e.device.Level,
		"workers":   e.device.Workers,
		"shared":    e.device.SharedMemoryPerGroup,
		"precision": beam.Precision(),
	}).Info("engine started")
	return e
}

// Device returns the device description the engine runs with.
func (e *Engine) Device() beam.Device { return e.device }

// Pool returns the kernel executor.
func (e *Engine) Pool() *workerpool.Pool { return e.pool }

// Arena returns the scratch arena.
func (e *Engine) Arena() *arena.Arena { return e.arena }

// Logger returns the engine logger.
func (e *Engine) Logger() logrus.FieldLogger { return e.log }

// Launches returns the number of kernel launches so far.
func (e *Engine) Launches() int64 { return e.pool.Launches() }

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) check() error {
	if e.Closed() {
		return ErrEngineClosed
	}
	return nil
}

// Close stops the worker pool and drops the arena contents. It is safe to
// call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.pool.Close()
	e.arena.Reset()
	e.log.WithField("launches", e.pool.Launches()).Info("engine closed")
	return nil
}

// NewProfile builds a profile whose histogram strategy follows the engine's
// fast-memory budget.
func NewProfile[T beam.Floats](e *Engine, nSlices int, cutLeft, cutRight float64, opts ...profile.Option) (*profile.Profile[T], error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	opts = append([]profile.Option{profile.WithSharedMemory(e.device.SharedMemoryPerGroup)}, opts...)
	return profile.New[T](nSlices, cutLeft, cutRight, opts...)
}

// Env returns the environment impedance sources of this engine read from.
func Env[T beam.Floats](e *Engine, b *beam.Bunch[T], p *profile.Profile[T], params *rf.Params) impedance.Env[T] {
	return impedance.Env[T]{
		Profile: p,
		Bunch:   b,
		RF:      params,
		Arena:   e.arena,
		Pool:    e.pool,
	}
}
