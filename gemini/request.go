// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gemini

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/google/uuid"
)

// MaxRequestLength is the maximum length, in bytes, of a request URL.
const MaxRequestLength = 1024

var (
	// ErrRequestTooLong is returned when the request URL exceeds [MaxRequestLength].
	ErrRequestTooLong = errors.New("gemini: request exceeds 1024 bytes")

	// ErrMalformedRequest is returned when the request line is not a CRLF
	// terminated absolute URL.
	ErrMalformedRequest = errors.New("gemini: malformed request")
)

// Request is the per request context handed to handlers and footers.
type Request struct {
	// ID uniquely identifies the request in logs and traces.
	ID uuid.UUID

	URL *url.URL

	// Params holds path parameters matched by the route pattern.
	Params map[string]string

	// Peer is the remote address, nil when the request was not read from a connection.
	Peer net.Addr

	// Certificate is the client certificate, if one was presented.
	Certificate *x509.Certificate
}

// NewRequest initializes a [Request] for u.
func NewRequest(u *url.URL) *Request {
	return &Request{
		ID:     uuid.New(),
		URL:    u,
		Params: map[string]string{},
	}
}

// Query returns the raw, still percent-encoded, query and whether the URL
// carried a query component at all. A bare trailing "?" counts as present.
func (r *Request) Query() (string, bool) {
	if r.URL == nil {
		return "", false
	}
	return r.URL.RawQuery, r.URL.RawQuery != "" || r.URL.ForceQuery
}

// Param returns the value of the named path parameter.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Path returns the URL path, defaulting to "/".
func (r *Request) Path() string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// ReadRequest reads a single request line from br.
//
// br should have been created with a buffer of at least MaxRequestLength+2
// bytes so overlong requests are detected without reading past them.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, ErrRequestTooLong
	}
	if err != nil {
		return nil, err
	}
	return ParseRequest(line)
}

// ParseRequest parses a raw request line including its trailing CRLF.
func ParseRequest(line []byte) (*Request, error) {
	raw, ok := bytes.CutSuffix(line, []byte("\r\n"))
	if !ok {
		return nil, fmt.Errorf("%w: missing CRLF", ErrMalformedRequest)
	}
	if len(raw) > MaxRequestLength {
		return nil, ErrRequestTooLong
	}

	u, err := url.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute", ErrMalformedRequest)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: url must not contain userinfo", ErrMalformedRequest)
	}
	return NewRequest(u), nil
}
