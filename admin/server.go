// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/capsule/app"
	"github.com/z5labs/capsule/config"

	"github.com/sourcegraph/conc/pool"
)

// DefaultAddr is the address the admin API binds to when none is configured.
const DefaultAddr = ":8080"

// AddrFromEnv reads the listen address from CAPSULE_ADMIN_ADDR.
func AddrFromEnv() config.Reader[string] {
	return config.Env("CAPSULE_ADMIN_ADDR")
}

// Listener returns a [config.Reader] for a TCP listener bound to addr,
// or [DefaultAddr] when addr produces no value.
func Listener(addr config.Reader[string]) config.Reader[net.Listener] {
	return config.ReaderFunc[net.Listener](func(ctx context.Context) (config.Value[net.Listener], error) {
		ln, err := net.Listen("tcp", config.MustOr(ctx, DefaultAddr, addr))
		if err != nil {
			return config.Value[net.Listener]{}, err
		}
		return config.ValueOf(ln), nil
	})
}

// Server holds the configuration for the admin HTTP server.
type Server struct {
	Listener          config.Reader[net.Listener]
	ReadHeaderTimeout config.Reader[time.Duration]
	ReadTimeout       config.Reader[time.Duration]
	WriteTimeout      config.Reader[time.Duration]
	IdleTimeout       config.Reader[time.Duration]
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// ReadHeaderTimeout sets the maximum duration for reading request headers.
// The default is 2 seconds.
func ReadHeaderTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.ReadHeaderTimeout = d
	}
}

// ReadTimeout sets the maximum duration for reading an entire request.
// The default is 5 seconds.
func ReadTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.ReadTimeout = d
	}
}

// WriteTimeout sets the maximum duration for writing a response.
// The default is 10 seconds.
func WriteTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.WriteTimeout = d
	}
}

// IdleTimeout sets how long keep-alive connections may sit idle.
// The default is 2 minutes.
func IdleTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.IdleTimeout = d
	}
}

// NewServer creates a new Server with the given listener and options.
func NewServer(listener config.Reader[net.Listener], opts ...ServerOption) Server {
	srv := Server{
		Listener:          listener,
		ReadHeaderTimeout: config.EmptyReader[time.Duration](),
		ReadTimeout:       config.EmptyReader[time.Duration](),
		WriteTimeout:      config.EmptyReader[time.Duration](),
		IdleTimeout:       config.EmptyReader[time.Duration](),
	}
	for _, opt := range opts {
		opt(&srv)
	}
	return srv
}

// Runtime serves the admin API until its context is cancelled.
type Runtime struct {
	ls  net.Listener
	srv *http.Server
}

// Build creates an [app.Builder] for the admin HTTP server which serves
// the [http.Handler] produced by b.
func Build(srv Server, b app.Builder[http.Handler]) app.Builder[Runtime] {
	return app.Bind(b, func(h http.Handler) app.Builder[Runtime] {
		return app.BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
			ln := config.Must(ctx, srv.Listener)

			return Runtime{
				ls: ln,
				srv: &http.Server{
					Handler:           h,
					ReadHeaderTimeout: config.MustOr(ctx, 2*time.Second, srv.ReadHeaderTimeout),
					ReadTimeout:       config.MustOr(ctx, 5*time.Second, srv.ReadTimeout),
					WriteTimeout:      config.MustOr(ctx, 10*time.Second, srv.WriteTimeout),
					IdleTimeout:       config.MustOr(ctx, 2*time.Minute, srv.IdleTimeout),
				},
			}, nil
		})
	})
}

// Addr returns the address the runtime is listening on.
func (rt Runtime) Addr() net.Addr {
	return rt.ls.Addr()
}

// Run serves HTTP requests until ctx is cancelled, then shuts down gracefully.
func (rt Runtime) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		err := rt.srv.Serve(rt.ls)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return rt.srv.Shutdown(context.Background())
	})

	err := p.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
