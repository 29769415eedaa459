// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gemini

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/z5labs/capsule"

	"github.com/go-chi/chi/v5"
	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Handler responds to a Gemini request.
type Handler interface {
	ServeGemini(context.Context, *Request) Response
}

// HandlerFunc is a func type of the [Handler] interface.
type HandlerFunc func(context.Context, *Request) Response

// ServeGemini implements the [Handler] interface.
func (f HandlerFunc) ServeGemini(ctx context.Context, req *Request) Response {
	return f(ctx, req)
}

// Footer renders a block of gemtext appended to every successful
// text/gemini response, regardless of which route produced it.
type Footer interface {
	RenderFooter(context.Context, *Request) string
}

// FooterFunc is a func type of the [Footer] interface.
type FooterFunc func(context.Context, *Request) string

// RenderFooter implements the [Footer] interface.
func (f FooterFunc) RenderFooter(ctx context.Context, req *Request) string {
	return f(ctx, req)
}

// Module bundles routes and footers which are registered together.
type Module interface {
	Attach(*Router)
}

// ModuleFunc is a func type of the [Module] interface.
type ModuleFunc func(*Router)

// Attach implements the [Module] interface.
func (f ModuleFunc) Attach(r *Router) {
	f(r)
}

// RouterOptions represents configurable values for a [Router].
type RouterOptions struct {
	errHandler Handler
}

// RouterOption sets values on [RouterOptions].
type RouterOption interface {
	ApplyRouterOption(*RouterOptions)
}

type routerOptionFunc func(*RouterOptions)

func (f routerOptionFunc) ApplyRouterOption(ro *RouterOptions) {
	f(ro)
}

// ErrorHandler configures the [Handler] used for requests which match no route.
func ErrorHandler(h Handler) RouterOption {
	return routerOptionFunc(func(ro *RouterOptions) {
		ro.errHandler = h
	})
}

// Router dispatches Gemini requests to handlers by URL path and appends
// the registered footers to every text/gemini document.
//
// Routes use chi patterns, e.g. "/posts/{id}". Routes and footers must be
// registered before the router starts serving.
type Router struct {
	mux        *chi.Mux
	routes     map[string]Handler
	footers    []Footer
	errHandler Handler

	log      *slog.Logger
	tracer   trace.Tracer
	requests metric.Int64Counter
}

// NewRouter initializes a [Router].
func NewRouter(opts ...RouterOption) *Router {
	ro := &RouterOptions{
		errHandler: HandlerFunc(func(ctx context.Context, req *Request) Response {
			return NotFound("This route does not exist!")
		}),
	}
	for _, opt := range opts {
		opt.ApplyRouterOption(ro)
	}

	requests, err := otel.Meter("gemini").Int64Counter(
		"gemini.server.requests",
		metric.WithDescription("Number of Gemini requests served, by response status."),
	)
	if err != nil {
		otel.Handle(err)
	}

	return &Router{
		mux:        chi.NewMux(),
		routes:     make(map[string]Handler),
		errHandler: ro.errHandler,
		log:        capsule.Logger("gemini"),
		tracer:     otel.Tracer("gemini"),
		requests:   requests,
	}
}

// Mount registers h for requests whose path matches pattern.
func (r *Router) Mount(pattern string, h Handler) {
	r.routes[pattern] = h

	// chi is only used for its route tree, the handler it holds is never invoked.
	r.mux.Method(http.MethodGet, pattern, http.NotFoundHandler())
}

// AddFooter registers f. Footers are rendered in registration order.
func (r *Router) AddFooter(f Footer) {
	r.footers = append(r.footers, f)
}

// SetErrorHandler replaces the [Handler] used for unmatched requests.
func (r *Router) SetErrorHandler(h Handler) {
	r.errHandler = h
}

// Attach registers every given [Module] with r.
func (r *Router) Attach(ms ...Module) {
	for _, m := range ms {
		m.Attach(r)
	}
}

// ServeGemini implements the [Handler] interface.
func (r *Router) ServeGemini(ctx context.Context, req *Request) (resp Response) {
	spanCtx, span := r.tracer.Start(ctx, "Router.ServeGemini", trace.WithAttributes(
		attribute.String("gemini.request.id", req.ID.String()),
		attribute.String("url.path", req.Path()),
	))
	defer span.End()

	defer func() {
		span.SetAttributes(attribute.Int("gemini.status", int(resp.Status)))
		if r.requests != nil {
			r.requests.Add(spanCtx, 1, metric.WithAttributes(attribute.Int("gemini.status", int(resp.Status))))
		}
	}()

	h := r.match(req)

	resp, err := r.serve(spanCtx, h, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.ErrorContext(
			spanCtx,
			"recovered from handler panic",
			slog.String("request_id", req.ID.String()),
			slog.String("path", req.Path()),
			slog.Any("error", err),
		)
		return TemporaryFailure("The server encountered an unexpected error.")
	}
	if !resp.IsGemtext() || len(r.footers) == 0 {
		return resp
	}

	footers := make([]string, 0, len(r.footers))
	for _, f := range r.footers {
		footer, err := r.renderFooter(spanCtx, f, req)
		if err != nil {
			r.log.ErrorContext(
				spanCtx,
				"recovered from footer panic",
				slog.String("request_id", req.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		footers = append(footers, footer)
	}

	resp.Body = resp.Body + "\n" + strings.Join(footers, "\n")
	return resp
}

func (r *Router) match(req *Request) Handler {
	rctx := chi.NewRouteContext()
	pattern := r.mux.Find(rctx, http.MethodGet, req.Path())

	h, ok := r.routes[pattern]
	if !ok {
		return r.errHandler
	}

	if req.Params == nil {
		req.Params = make(map[string]string, len(rctx.URLParams.Keys))
	}
	for i, key := range rctx.URLParams.Keys {
		req.Params[key] = rctx.URLParams.Values[i]
	}
	return h
}

func (r *Router) serve(ctx context.Context, h Handler, req *Request) (resp Response, err error) {
	defer try.Recover(&err)

	return h.ServeGemini(ctx, req), nil
}

func (r *Router) renderFooter(ctx context.Context, f Footer, req *Request) (s string, err error) {
	defer try.Recover(&err)

	return f.RenderFooter(ctx, req), nil
}
