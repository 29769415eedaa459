// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app composes the runtimes that make up a capsule process.
//
// A [Builder] constructs a [Runtime] lazily so configuration is only read
// once the process starts. Builders are chained with [Bind], run side by
// side with [Group] and given post-run cleanup with [WithHooks].
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"github.com/z5labs/sdk-go/try"
)

// Builder is a generic interface for building application components.
type Builder[T any] interface {
	Build(context.Context) (T, error)
}

// BuilderFunc is a function type that implements the Builder interface.
type BuilderFunc[T any] func(context.Context) (T, error)

// Build implements the [Builder] interface for BuilderFunc.
func (f BuilderFunc[T]) Build(ctx context.Context) (t T, err error) {
	// config.Must panics on missing values, surface those as build errors.
	defer try.Recover(&err)

	return f(ctx)
}

// Build creates a Builder from a function.
func Build[T any](f func(context.Context) (T, error)) Builder[T] {
	return BuilderFunc[T](f)
}

// Bind chains two Builders together, where the output of the first is used to create the second.
func Bind[A, B any](builder Builder[A], binder func(A) Builder[B]) Builder[B] {
	return BuilderFunc[B](func(ctx context.Context) (B, error) {
		a, err := builder.Build(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return binder(a).Build(ctx)
	})
}

// Runtime is an interface representing a runnable application component.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeFunc is a function type that implements the Runtime interface.
type RuntimeFunc func(context.Context) error

// Run implements the [Runtime] interface for RuntimeFunc.
func (f RuntimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Group builds every given builder and runs the resulting runtimes
// concurrently. The first runtime to fail cancels the others; the group
// returns once all of them have returned.
func Group(builders ...Builder[Runtime]) Builder[Runtime] {
	return BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		rts := make([]Runtime, 0, len(builders))
		for _, b := range builders {
			rt, err := b.Build(ctx)
			if err != nil {
				return nil, err
			}
			rts = append(rts, rt)
		}

		return RuntimeFunc(func(ctx context.Context) error {
			p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
			for _, rt := range rts {
				p.Go(rt.Run)
			}

			err := p.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}), nil
	})
}

// Runtimes adapts a builder of a concrete runtime type to a Builder[Runtime]
// so it can be passed to [Group].
func Runtimes[T Runtime](b Builder[T]) Builder[Runtime] {
	return BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		rt, err := b.Build(ctx)
		if err != nil {
			return nil, err
		}
		return rt, nil
	})
}

// Run builds and runs the application using the provided Builder.
// The context is cancelled on SIGINT or SIGTERM.
func Run[T Runtime](ctx context.Context, builder Builder[T]) error {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := builder.Build(sigCtx)
	if err != nil {
		return err
	}

	return rt.Run(sigCtx)
}

// LogError logs an error using the provided slog.Handler.
func LogError(handler slog.Handler, err error) {
	if err == nil {
		return
	}

	log := slog.New(handler)
	log.Error("capsule failed", slog.Any("error", err))
}
