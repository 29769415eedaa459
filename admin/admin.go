// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package admin serves a small HTTP API next to the Gemini capsule for
// operators: health probes, the current comment list and the comment
// capacity, which can be changed at runtime.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/z5labs/capsule"
	"github.com/z5labs/capsule/comments"
	"github.com/z5labs/capsule/health"

	"github.com/go-chi/chi/v5"
	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodySize bounds request bodies, which only ever carry a capacity.
const maxBodySize = 1 << 10

// Options represents configurable values for [NewHandler].
type Options struct {
	readiness health.Monitor
	liveness  health.Monitor
}

// Option sets values on [Options].
type Option interface {
	ApplyAdminOption(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) ApplyAdminOption(o *Options) {
	f(o)
}

// Readiness adds m to the monitors checked by GET /health/readiness.
// The comment store is always checked.
func Readiness(m health.Monitor) Option {
	return optionFunc(func(o *Options) {
		o.readiness = m
	})
}

// Liveness sets the monitor checked by GET /health/liveness.
// By default the process is always reported live.
func Liveness(m health.Monitor) Option {
	return optionFunc(func(o *Options) {
		o.liveness = m
	})
}

// CommentList is the body of GET /comments.
type CommentList struct {
	Capacity int                `json:"capacity"`
	Comments []comments.Comment `json:"comments"`
}

// Capacity is the body of GET and PUT /comments/capacity.
type Capacity struct {
	Capacity *int `json:"capacity"`
}

// Error is the body of every non 2xx response.
type Error struct {
	Message string `json:"message"`
}

func alwaysHealthy(ctx context.Context) (bool, error) {
	return true, nil
}

type api struct {
	store *comments.Store
	log   *slog.Logger
}

// NewHandler returns the admin API for store, instrumented with otelhttp.
func NewHandler(store *comments.Store, opts ...Option) http.Handler {
	o := &Options{
		liveness: health.MonitorFunc(alwaysHealthy),
	}
	for _, opt := range opts {
		opt.ApplyAdminOption(o)
	}

	readiness := health.And(store)
	if o.readiness != nil {
		readiness = health.And(o.readiness, store)
	}

	a := &api{
		store: store,
		log:   capsule.Logger("github.com/z5labs/capsule/admin"),
	}

	mux := chi.NewMux()
	route := func(method, pattern string, h http.Handler) {
		mux.Method(method, pattern, otelhttp.WithRouteTag(pattern, h))
	}
	route(http.MethodGet, "/health/readiness", health.Handler(readiness))
	route(http.MethodGet, "/health/liveness", health.Handler(o.liveness))
	route(http.MethodGet, "/comments", http.HandlerFunc(a.listComments))
	route(http.MethodGet, "/comments/capacity", http.HandlerFunc(a.getCapacity))
	route(http.MethodPut, "/comments/capacity", http.HandlerFunc(a.putCapacity))

	return otelhttp.NewHandler(
		mux,
		"admin",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)
}

func (a *api) listComments(w http.ResponseWriter, r *http.Request) {
	cs, err := a.store.Snapshot()
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to snapshot comments", slog.Any("error", err))
		a.writeJSON(w, r, http.StatusServiceUnavailable, Error{Message: "comments could not be loaded"})
		return
	}

	a.writeJSON(w, r, http.StatusOK, CommentList{
		Capacity: a.store.Capacity(),
		Comments: cs,
	})
}

func (a *api) getCapacity(w http.ResponseWriter, r *http.Request) {
	n := a.store.Capacity()
	a.writeJSON(w, r, http.StatusOK, Capacity{Capacity: &n})
}

func (a *api) putCapacity(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCapacity(r)
	if err != nil {
		a.log.WarnContext(r.Context(), "rejected capacity update", slog.Any("error", err))
		a.writeJSON(w, r, http.StatusBadRequest, Error{Message: err.Error()})
		return
	}

	prev := a.store.Capacity()
	a.store.SetCapacity(*c.Capacity)
	a.log.InfoContext(
		r.Context(),
		"updated comment capacity",
		slog.Int("previous", prev),
		slog.Int("capacity", *c.Capacity),
	)

	a.writeJSON(w, r, http.StatusOK, c)
}

var errMissingCapacity = errors.New("capacity is required")

func decodeCapacity(r *http.Request) (c Capacity, err error) {
	defer try.Close(&err, r.Body)

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	err = dec.Decode(&c)
	if err != nil {
		return c, fmt.Errorf("invalid request body: %w", err)
	}
	if c.Capacity == nil {
		return c, errMissingCapacity
	}
	if *c.Capacity < 0 {
		return c, fmt.Errorf("capacity must not be negative: %d", *c.Capacity)
	}
	return c, nil
}

func (a *api) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to write response", slog.Any("error", err))
	}
}
