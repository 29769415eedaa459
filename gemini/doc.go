// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gemini implements a Gemini protocol server and router.
//
// A request is a single CRLF terminated absolute URL sent over TLS. A
// response is a status line, "<status> <meta>\r\n", followed by a body for
// 2x statuses only. Handlers are mounted on a [Router] by path, modules
// bundle handlers and footers, and footers are appended to every
// text/gemini document the router serves.
//
//	r := gemini.NewRouter()
//	r.Mount("/", gemini.HandlerFunc(func(ctx context.Context, req *gemini.Request) gemini.Response {
//	    return gemini.Success("# Hello, World!")
//	}))
//	r.Attach(comments.NewModule(store))
//
//	listener := gemini.TLSListener(gemini.NewTCPListener(), gemini.NewTLSConfig())
//	builder := gemini.Build(gemini.NewServer(listener), app.Build(func(ctx context.Context) (*gemini.Router, error) {
//	    return r, nil
//	}))
//	gemini.Run(context.Background(), builder)
package gemini
