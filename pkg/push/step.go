// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package push

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/NVIDIA/cloud-native-stack/pkg/errors"
)

// Step is a deferred, single-assignment value: its body runs exactly once,
// and every caller of Join observes the same (value, error) pair once it has
// run. It is the unit of scheduling for the push DAG (spec.md §4.1).
type Step[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewStep returns a Step with no body attached; callers normally obtain one
// from Start or Map rather than constructing it directly.
func NewStep[T any]() *Step[T] {
	return &Step[T]{done: make(chan struct{})}
}

// Join blocks until the step's value is available, or until ctx is done,
// whichever comes first. Once resolved, Join is safe to call from any number
// of goroutines and always returns the same result.
func (s *Step[T]) Join(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.value, s.err
	case <-ctx.Done():
		var zero T
		return zero, Cancelled(ctx.Err())
	}
}

// Peek returns the step's value without blocking. ok is false if the step has
// not yet resolved.
func (s *Step[T]) Peek() (value T, err error, ok bool) {
	select {
	case <-s.done:
		return s.value, s.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Wait joins the step discarding its value, satisfying Joiner so
// heterogeneous steps can be combined by AllOf.
func (s *Step[T]) Wait(ctx context.Context) error {
	_, err := s.Join(ctx)
	return err
}

// Joiner is any in-flight step reduced to its completion signal, independent
// of its value type. AllOf composes over Joiners.
type Joiner interface {
	Wait(ctx context.Context) error
}

// Runtime is the bounded worker pool shared by every step body in one push
// invocation (spec.md §4.1, §5). It is not a thread-per-step model: only the
// body closures passed to Start/Map hold a pool slot, never the bookkeeping
// goroutine that awaits a step's predecessors.
type Runtime struct {
	sem *semaphore.Weighted
}

// NewRuntime creates a Runtime with the given number of worker slots. A
// non-positive value defaults to runtime.NumCPU().
func NewRuntime(workers int) *Runtime {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runtime{sem: semaphore.NewWeighted(int64(workers))}
}

// run acquires a pool slot, invokes fn, and releases the slot. It returns a
// Cancelled error if ctx is done before a slot frees up.
func (r *Runtime) run(ctx context.Context, fn func(context.Context) error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Cancelled(err)
	}
	defer r.sem.Release(1)
	if ctx.Err() != nil {
		return Cancelled(ctx.Err())
	}
	return fn(ctx)
}

// Start launches body as a new Step once every predecessor named by wait has
// completed successfully (wait may be nil for steps with no predecessors,
// such as AuthenticatePush). body runs on the Runtime's worker pool; waiting
// for predecessors never consumes a pool slot.
func Start[T any](ctx context.Context, rt *Runtime, wait func(context.Context) error, body func(context.Context) (T, error)) *Step[T] {
	s := NewStep[T]()
	go func() {
		defer close(s.done)
		if wait != nil {
			if err := wait(ctx); err != nil {
				s.err = err
				return
			}
		}
		s.err = rt.run(ctx, func(ctx context.Context) error {
			v, err := body(ctx)
			s.value = v
			return err
		})
	}()
	return s
}

// Map runs fn on the worker pool once in is ready, producing a new Step of a
// possibly different type. It is the push.map(step, fn) combinator from
// spec.md §4.1.
func Map[A, B any](ctx context.Context, rt *Runtime, in *Step[A], fn func(context.Context, A) (B, error)) *Step[B] {
	s := NewStep[B]()
	go func() {
		defer close(s.done)
		a, err := in.Join(ctx)
		if err != nil {
			s.err = err
			return
		}
		s.err = rt.run(ctx, func(ctx context.Context) error {
			v, err := fn(ctx, a)
			s.value = v
			return err
		})
	}()
	return s
}

// AllOf returns a wait function that is ready only when every given step has
// completed, failing fast with the first error observed (spec.md §4.1's
// all_of combinator). It is the canonical `wait` argument to Start.
func AllOf(steps ...Joiner) func(context.Context) error {
	return func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, st := range steps {
			st := st
			g.Go(func() error { return st.Wait(gctx) })
		}
		return g.Wait()
	}
}

// Cancelled wraps err (typically a context error) as the structured
// ErrCodeCancelled kind from spec.md §7, so it is distinguishable from other
// failures by callers using errors.As.
func Cancelled(err error) *apperrors.StructuredError {
	return apperrors.Wrap(apperrors.ErrCodeCancelled, "push was cancelled", err)
}
