// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/z5labs/capsule"
	"github.com/z5labs/capsule/gemini"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultPath is the route comments are posted to.
const DefaultPath = "/api/post-comment"

// TimestampLayout formats comment timestamps in the footer,
// e.g. "2022. June.  5. 13:04:05".
const TimestampLayout = "2006. January. _2. 15:04:05"

// ErrInvalidEncoding is returned when a submitted comment is not valid
// percent-encoded UTF-8.
var ErrInvalidEncoding = errors.New("comments: invalid percent-encoding")

// ModuleOption configures a [Module].
type ModuleOption func(*Module)

// Path overrides the route comments are posted to.
func Path(path string) ModuleOption {
	return func(m *Module) {
		m.path = path
	}
}

// always ensure [Module] implements the [gemini.Module] interface.
var _ gemini.Module = (*Module)(nil)

// Module attaches a comment section to a [gemini.Router]: a route which
// records comments and a footer which lists them under every document.
type Module struct {
	store  *Store
	path   string
	log    *slog.Logger
	posted metric.Int64Counter
}

// NewModule initializes a [Module] backed by store.
func NewModule(store *Store, opts ...ModuleOption) *Module {
	posted, err := otel.Meter("github.com/z5labs/capsule/comments").Int64Counter(
		"capsule.comments.posted",
		metric.WithDescription("Number of comment submissions, by outcome."),
	)
	if err != nil {
		otel.Handle(err)
	}

	m := &Module{
		store:  store,
		path:   DefaultPath,
		log:    capsule.Logger("github.com/z5labs/capsule/comments"),
		posted: posted,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach implements the [gemini.Module] interface.
func (m *Module) Attach(r *gemini.Router) {
	r.Mount(m.path, &postHandler{
		store:  m.store,
		log:    m.log,
		posted: m.posted,
	})
	r.AddFooter(&footer{
		store: m.store,
		path:  m.path,
	})
}

type postHandler struct {
	store  *Store
	log    *slog.Logger
	posted metric.Int64Counter
}

// ServeGemini implements the [gemini.Handler] interface.
//
// Every outcome other than a missing query is reported with a success
// status; failures are described in the body.
func (h *postHandler) ServeGemini(ctx context.Context, req *gemini.Request) gemini.Response {
	query, ok := req.Query()
	if !ok {
		return gemini.Input("What comment would you like to post?")
	}

	text, err := Decode(query)
	if err != nil {
		h.count(ctx, "invalid")
		h.log.WarnContext(
			ctx,
			"failed to decode comment",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err),
		)
		return gemini.Success("Your comment was unable to be posted...")
	}

	out, err := h.store.Record(text)
	if err != nil {
		h.count(ctx, "failed")
		h.log.ErrorContext(
			ctx,
			"failed to record comment",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err),
		)
		return gemini.Success(fmt.Sprintf("Your comment, \"%s\", could not be posted...", text))
	}

	h.count(ctx, out.Status.String())
	switch out.Status {
	case Rejected:
		h.log.InfoContext(
			ctx,
			"comment limit reached",
			slog.String("request_id", req.ID.String()),
			slog.Int("capacity", out.Capacity),
		)
		return gemini.Success(fmt.Sprintf(
			"Your comment, \"%s\", could not be posted as the instance comment limit (%d) has been met...",
			text,
			out.Capacity,
		))
	default:
		return gemini.Success(fmt.Sprintf("Your comment, \"%s\", has been posted!", text))
	}
}

func (h *postHandler) count(ctx context.Context, outcome string) {
	if h.posted == nil {
		return
	}
	h.posted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

type footer struct {
	store *Store
	path  string
}

// RenderFooter implements the [gemini.Footer] interface.
func (f *footer) RenderFooter(ctx context.Context, req *gemini.Request) string {
	count := "?"
	list := "Comments could not be loaded..."

	cs, err := f.store.Snapshot()
	if err == nil {
		count = strconv.Itoa(len(cs))
		list = Format(cs)
	}

	return fmt.Sprintf(
		"## COMMENTS (%s/%d)\n=> %s Make a comment!\n%s",
		count,
		f.store.Capacity(),
		f.path,
		list,
	)
}

// Format renders comments one per line, oldest first, or a placeholder
// sentence when there are none.
func Format(cs []Comment) string {
	if len(cs) == 0 {
		return "There are currently no comments!"
	}

	lines := make([]string, 0, len(cs))
	for _, c := range cs {
		lines = append(lines, c.At.UTC().Format(TimestampLayout)+": "+c.Text)
	}
	return strings.Join(lines, "\n")
}

// Decode percent-decodes a submitted query. A literal '+' is kept as is.
func Decode(query string) (string, error) {
	text, err := url.PathUnescape(query)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: not valid utf-8", ErrInvalidEncoding)
	}
	return text, nil
}
