// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"errors"
)

// HookFunc is run after the inner runtime returns.
type HookFunc func(context.Context) error

// HookRegistry collects post-run hooks while a runtime is being built.
type HookRegistry struct {
	hooks []HookFunc
}

// OnPostRun registers a hook. Hooks run in registration order and every
// hook runs even if the runtime or an earlier hook failed.
func (r *HookRegistry) OnPostRun(hook HookFunc) {
	r.hooks = append(r.hooks, hook)
}

type hookRuntime struct {
	inner Runtime
	hooks []HookFunc
}

// Run runs the inner runtime, then every hook, and joins all errors.
//
// Hooks receive a context which is never cancelled by the runtime's
// shutdown, so cleanup is not cut short by the signal that ended the run.
func (rt hookRuntime) Run(ctx context.Context) error {
	runtimeErr := rt.inner.Run(ctx)

	hookCtx := context.WithoutCancel(ctx)

	var hookErrs error
	for _, hook := range rt.hooks {
		err := hook(hookCtx)
		if err != nil {
			hookErrs = errors.Join(hookErrs, err)
		}
	}

	return errors.Join(runtimeErr, hookErrs)
}

// WithHooks wraps a builder function with post-run hook support.
//
// Register cleanup right next to the resource it releases:
//
//	builder := app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
//	    w, err := reload.Watch(ctx, path, reload.CommentCapacity(store))
//	    if err != nil {
//	        return nil, err
//	    }
//	    h.OnPostRun(func(ctx context.Context) error {
//	        return w.Close()
//	    })
//	    return buildRuntime(ctx)
//	})
//
// If f fails, the hooks it already registered are run before the error is
// returned so partially built resources are still released.
func WithHooks[T Runtime](f func(context.Context, *HookRegistry) (T, error)) Builder[Runtime] {
	return BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		registry := &HookRegistry{}

		inner, err := f(ctx, registry)
		if err != nil {
			hookCtx := context.WithoutCancel(ctx)
			for _, hook := range registry.hooks {
				err = errors.Join(err, hook(hookCtx))
			}
			return nil, err
		}

		return hookRuntime{
			inner: inner,
			hooks: registry.hooks,
		}, nil
	})
}
