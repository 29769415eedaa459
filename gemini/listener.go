// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gemini

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/z5labs/capsule/config"
)

// DefaultAddr is the well known Gemini port.
const DefaultAddr = ":1965"

// TCPListener is a [config.Reader] for a TCP listener.
type TCPListener struct {
	Addr config.Reader[string]
}

// TCPListenerOption is a functional option for configuring a TCPListener.
type TCPListenerOption func(*TCPListener)

// Addr sets the "host:port" the listener binds to.
func Addr(addr config.Reader[string]) TCPListenerOption {
	return func(tcpLn *TCPListener) {
		tcpLn.Addr = addr
	}
}

// AddrFromEnv reads the listen address from CAPSULE_GEMINI_ADDR.
func AddrFromEnv() config.Reader[string] {
	return config.Env("CAPSULE_GEMINI_ADDR")
}

// NewTCPListener creates a new TCPListener. The address defaults to [DefaultAddr].
func NewTCPListener(opts ...TCPListenerOption) TCPListener {
	tcpLn := TCPListener{
		Addr: config.EmptyReader[string](),
	}
	for _, opt := range opts {
		opt(&tcpLn)
	}
	return tcpLn
}

// Read implements the [config.Reader] interface.
func (tcpLn TCPListener) Read(ctx context.Context) (config.Value[net.Listener], error) {
	addr := config.MustOr(ctx, DefaultAddr, tcpLn.Addr)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return config.Value[net.Listener]{}, err
	}
	return config.ValueOf(ln), nil
}

// TLSListener wraps the listener produced by ln with TLS.
func TLSListener(ln config.Reader[net.Listener], tlsConfig config.Reader[*tls.Config]) config.Reader[net.Listener] {
	return config.ReaderFunc[net.Listener](func(ctx context.Context) (config.Value[net.Listener], error) {
		baseLn := config.Must(ctx, ln)
		cfg := config.Must(ctx, tlsConfig)

		return config.ValueOf(tls.NewListener(baseLn, cfg)), nil
	})
}

// TLSConfig is a [config.Reader] for the server side TLS configuration.
//
// When both CertFile and KeyFile are set the key pair is loaded from disk,
// otherwise a self-signed certificate is generated for Hostname. Either way
// clients are asked for, but not required to present, a certificate.
type TLSConfig struct {
	CertFile config.Reader[string]
	KeyFile  config.Reader[string]
	Hostname config.Reader[string]
}

// TLSConfigOption is a functional option for configuring a TLSConfig.
type TLSConfigOption func(*TLSConfig)

// CertFile sets the path of the PEM encoded certificate.
func CertFile(name config.Reader[string]) TLSConfigOption {
	return func(tc *TLSConfig) {
		tc.CertFile = name
	}
}

// KeyFile sets the path of the PEM encoded private key.
func KeyFile(name config.Reader[string]) TLSConfigOption {
	return func(tc *TLSConfig) {
		tc.KeyFile = name
	}
}

// Hostname sets the name used for generated certificates.
func Hostname(name config.Reader[string]) TLSConfigOption {
	return func(tc *TLSConfig) {
		tc.Hostname = name
	}
}

// NewTLSConfig creates a new TLSConfig.
func NewTLSConfig(opts ...TLSConfigOption) TLSConfig {
	tc := TLSConfig{
		CertFile: config.EmptyReader[string](),
		KeyFile:  config.EmptyReader[string](),
		Hostname: config.EmptyReader[string](),
	}
	for _, opt := range opts {
		opt(&tc)
	}
	return tc
}

// Read implements the [config.Reader] interface.
func (tc TLSConfig) Read(ctx context.Context) (config.Value[*tls.Config], error) {
	certFile := config.MustOr(ctx, "", tc.CertFile)
	keyFile := config.MustOr(ctx, "", tc.KeyFile)

	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case certFile != "" && keyFile != "":
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("gemini: failed to load key pair: %w", err)
		}
	case certFile != "" || keyFile != "":
		return config.Value[*tls.Config]{}, fmt.Errorf("gemini: cert file and key file must be set together")
	default:
		hostname := config.MustOr(ctx, "localhost", tc.Hostname)
		cert, err = SelfSignedCertificate(hostname, 0)
		if err != nil {
			return config.Value[*tls.Config]{}, err
		}
	}

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequestClientCert,
	}
	return config.ValueOf(cfg), nil
}
