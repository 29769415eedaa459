// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gemini

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/z5labs/capsule"
	"github.com/z5labs/capsule/app"
	"github.com/z5labs/capsule/config"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"
)

// Server holds the configuration for a Gemini server.
type Server struct {
	Listener       config.Reader[net.Listener]
	ReadTimeout    config.Reader[time.Duration]
	WriteTimeout   config.Reader[time.Duration]
	MaxConnections config.Reader[int]
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// ReadTimeout bounds the TLS handshake and reading the request line.
// The default is 5 seconds.
func ReadTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.ReadTimeout = d
	}
}

// ReadTimeoutFromEnv reads CAPSULE_GEMINI_READ_TIMEOUT as a [time.Duration].
func ReadTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("CAPSULE_GEMINI_READ_TIMEOUT"))
}

// WriteTimeout bounds writing the response. The default is 10 seconds.
func WriteTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.WriteTimeout = d
	}
}

// WriteTimeoutFromEnv reads CAPSULE_GEMINI_WRITE_TIMEOUT as a [time.Duration].
func WriteTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("CAPSULE_GEMINI_WRITE_TIMEOUT"))
}

// MaxConnections bounds the number of connections served at once.
// Further connections wait in the listen backlog. The default is 256.
func MaxConnections(n config.Reader[int]) ServerOption {
	return func(srv *Server) {
		srv.MaxConnections = n
	}
}

// MaxConnectionsFromEnv reads CAPSULE_GEMINI_MAX_CONNECTIONS as an int.
func MaxConnectionsFromEnv() config.Reader[int] {
	return config.IntFromString(config.Env("CAPSULE_GEMINI_MAX_CONNECTIONS"))
}

// NewServer creates a new Server with the given listener and options.
func NewServer(listener config.Reader[net.Listener], opts ...ServerOption) Server {
	srv := Server{
		Listener:       listener,
		ReadTimeout:    config.EmptyReader[time.Duration](),
		WriteTimeout:   config.EmptyReader[time.Duration](),
		MaxConnections: config.EmptyReader[int](),
	}
	for _, opt := range opts {
		opt(&srv)
	}
	return srv
}

// Runtime serves Gemini requests from a listener until its context is cancelled.
type Runtime struct {
	ls           net.Listener
	h            Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
	sem          *semaphore.Weighted
	log          *slog.Logger
}

// Build creates an [app.Builder] for a Gemini server which dispatches every
// request to the [Handler], typically a [*Router], produced by b.
func Build[H Handler](srv Server, b app.Builder[H]) app.Builder[Runtime] {
	return app.Bind(b, func(h H) app.Builder[Runtime] {
		return app.BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
			ln := config.Must(ctx, srv.Listener)
			maxConns := config.MustOr(ctx, 256, srv.MaxConnections)
			if maxConns < 1 {
				maxConns = 1
			}

			return Runtime{
				ls:           ln,
				h:            h,
				readTimeout:  config.MustOr(ctx, 5*time.Second, srv.ReadTimeout),
				writeTimeout: config.MustOr(ctx, 10*time.Second, srv.WriteTimeout),
				sem:          semaphore.NewWeighted(int64(maxConns)),
				log:          capsule.Logger("gemini"),
			}, nil
		})
	})
}

// Addr returns the address the runtime is listening on.
func (rt Runtime) Addr() net.Addr {
	return rt.ls.Addr()
}

// Run accepts connections until ctx is cancelled, then closes the listener
// and waits for in-flight requests to finish.
func (rt Runtime) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(rt.serve)

	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		err := rt.ls.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})

	err := p.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (rt Runtime) serve(ctx context.Context) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		err := rt.sem.Acquire(ctx, 1)
		if err != nil {
			return nil
		}

		conn, err := rt.ls.Accept()
		if err != nil {
			rt.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Go(func() {
			defer rt.sem.Release(1)
			rt.handle(ctx, conn)
		})
	}
}

func (rt Runtime) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(rt.readTimeout))

	var cert *x509.Certificate
	if tc, ok := conn.(*tls.Conn); ok {
		err := tc.HandshakeContext(ctx)
		if err != nil {
			rt.log.DebugContext(ctx, "tls handshake failed", slog.Any("error", err))
			return
		}
		if certs := tc.ConnectionState().PeerCertificates; len(certs) > 0 {
			cert = certs[0]
		}
	}

	br := bufio.NewReaderSize(conn, MaxRequestLength+2)
	req, err := ReadRequest(br)

	var resp Response
	switch {
	case errors.Is(err, ErrRequestTooLong):
		resp = BadRequest("Request exceeds 1024 bytes.")
	case errors.Is(err, ErrMalformedRequest):
		resp = BadRequest("Malformed request.")
	case err != nil:
		rt.log.DebugContext(ctx, "failed to read request", slog.Any("error", err))
		return
	case req.URL.Scheme != "gemini":
		resp = ProxyRequestRefused("This server only serves gemini:// URLs.")
	default:
		req.Peer = conn.RemoteAddr()
		req.Certificate = cert
		resp = rt.h.ServeGemini(ctx, req)
	}

	conn.SetWriteDeadline(time.Now().Add(rt.writeTimeout))
	_, err = resp.WriteTo(conn)
	if err != nil {
		rt.log.WarnContext(ctx, "failed to write response", slog.Any("error", err))
	}
}

// RunOptions holds configuration for [Run].
type RunOptions struct {
	logger *slog.Logger
}

// RunOption configures [Run] behavior.
type RunOption interface {
	ApplyRunOption(*RunOptions)
}

type runOptionFunc func(*RunOptions)

func (f runOptionFunc) ApplyRunOption(ro *RunOptions) {
	f(ro)
}

// LogHandler configures the handler used to log errors from building or
// running the server. By default errors are logged as JSON to stdout.
func LogHandler(h slog.Handler) RunOption {
	return runOptionFunc(func(ro *RunOptions) {
		ro.logger = slog.New(h)
	})
}

// Run builds and runs a Gemini server, logging any error that stops it.
// The server shuts down on SIGINT or SIGTERM.
func Run[T app.Runtime](ctx context.Context, builder app.Builder[T], opts ...RunOption) error {
	ro := &RunOptions{
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	for _, opt := range opts {
		opt.ApplyRunOption(ro)
	}

	err := app.Run(ctx, builder)
	if err != nil {
		app.LogError(ro.logger.Handler(), err)
	}
	return err
}
