// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"

	"github.com/z5labs/capsule/gemini"
)

// pages mounts the demo documents. Both show the comment footer.
var pages = gemini.ModuleFunc(func(r *gemini.Router) {
	r.Mount("/", page("# WINDMARK COMMENTS\nHello, World!\n=> /other To another route!"))
	r.Mount("/other", page("# OTHER\nComments also show up on this route!\n=> / Back to the main route!"))
})

func page(body string) gemini.Handler {
	return gemini.HandlerFunc(func(ctx context.Context, req *gemini.Request) gemini.Response {
		return gemini.Success(body)
	})
}
