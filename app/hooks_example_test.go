// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app_test

import (
	"context"
	"fmt"

	"github.com/z5labs/capsule/app"
)

type watcher struct{}

func (watcher) Close() error {
	fmt.Println("Closing config watcher")
	return nil
}

func Example_withHooks() {
	builder := app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
		w := watcher{}

		h.OnPostRun(func(ctx context.Context) error {
			return w.Close()
		})

		return app.RuntimeFunc(func(ctx context.Context) error {
			fmt.Println("Serving capsule")
			return nil
		}), nil
	})

	_ = app.Run(context.Background(), builder)

	// Output:
	// Serving capsule
	// Closing config watcher
}
