// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command capsule serves a Gemini capsule with a comment section.
package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	cmd := newRootCommand()

	// cobra reports flag errors itself and gemini.Run logs the rest.
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}
