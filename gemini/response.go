// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gemini

import (
	"bufio"
	"io"
	"strings"
)

// GemtextMIME is the default meta value for successful responses.
const GemtextMIME = "text/gemini; charset=utf-8"

// Response is a complete Gemini response: a status line followed, for
// successful responses only, by a body.
type Response struct {
	Status Status
	Meta   string
	Body   string
}

// Input asks the client to resubmit the request with prompt answered in the query.
func Input(prompt string) Response {
	return Response{Status: StatusInput, Meta: prompt}
}

// SensitiveInput is like [Input] but asks clients not to echo what is typed.
func SensitiveInput(prompt string) Response {
	return Response{Status: StatusSensitiveInput, Meta: prompt}
}

// Success returns a text/gemini document.
func Success(body string) Response {
	return SuccessWithMIME(GemtextMIME, body)
}

// SuccessWithMIME returns a document of the given media type.
func SuccessWithMIME(mime, body string) Response {
	return Response{Status: StatusSuccess, Meta: mime, Body: body}
}

// Redirect temporarily redirects the client to url.
func Redirect(url string) Response {
	return Response{Status: StatusTemporaryRedirect, Meta: url}
}

// TemporaryFailure reports a failure the client may retry.
func TemporaryFailure(msg string) Response {
	return Response{Status: StatusTemporaryFailure, Meta: msg}
}

// PermanentFailure reports a failure the client should not retry.
func PermanentFailure(msg string) Response {
	return Response{Status: StatusPermanentFailure, Meta: msg}
}

// NotFound reports that nothing is served at the requested URL.
func NotFound(msg string) Response {
	return Response{Status: StatusNotFound, Meta: msg}
}

// ProxyRequestRefused reports a request for a scheme or host this server does not serve.
func ProxyRequestRefused(msg string) Response {
	return Response{Status: StatusProxyRequestRefused, Meta: msg}
}

// BadRequest reports a request which could not be parsed.
func BadRequest(msg string) Response {
	return Response{Status: StatusBadRequest, Meta: msg}
}

// IsGemtext reports whether r is a successful text/gemini document and
// therefore eligible for router footers.
func (r Response) IsGemtext() bool {
	return r.Status == StatusSuccess && strings.HasPrefix(r.Meta, "text/gemini")
}

// WriteTo implements the [io.WriterTo] interface.
//
// The meta value has CR and LF stripped so a handler can never split the
// status line. Bodies are only written for successful responses.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	meta := strings.NewReplacer("\r", "", "\n", " ").Replace(r.Meta)

	bw.WriteString(r.Status.String())
	bw.WriteByte(' ')
	bw.WriteString(meta)
	bw.WriteString("\r\n")
	if r.Status.Class() == StatusSuccess {
		bw.WriteString(r.Body)
	}

	err := bw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
