// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package comments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/capsule/health"

	"github.com/z5labs/sdk-go/try"
)

// DefaultCapacity is the number of comments a [Store] retains unless configured otherwise.
const DefaultCapacity = 500

var (
	// ErrUnavailable is returned when the store can no longer be read or written.
	ErrUnavailable = errors.New("comments: store unavailable")

	// ErrPoisoned is returned once a panic has interrupted a store operation.
	// It always wraps [ErrUnavailable].
	ErrPoisoned = fmt.Errorf("%w: poisoned by an earlier panic", ErrUnavailable)
)

// Comment is a timestamped text record. Comments are never modified.
type Comment struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Status is the result of an attempt to record a comment.
type Status int

const (
	Accepted Status = iota
	Rejected
)

// String implements the [fmt.Stringer] interface.
func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome describes what [Store.Record] did with a comment.
type Outcome struct {
	Status  Status
	Comment Comment

	// Capacity is the limit the comment was checked against.
	Capacity int
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithCapacity sets the initial capacity.
func WithCapacity(n int) StoreOption {
	return func(s *Store) {
		s.capacity.Store(int64(n))
	}
}

// WithClock sets the source of comment timestamps. It is called while the
// store is locked.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// always ensure [Store] implements the [health.Monitor] interface.
var _ health.Monitor = (*Store)(nil)

// Store is an in-memory, insertion ordered, bounded collection of comments.
// It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	comments []Comment
	poisoned bool

	// capacity is read without mu on render paths which accept a stale value.
	capacity atomic.Int64
	now      func() time.Time
}

// NewStore initializes a [Store] with [DefaultCapacity].
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now: time.Now,
	}
	s.capacity.Store(DefaultCapacity)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends a comment with the current time unless the store is full.
//
// The capacity check and the append happen under one lock, so concurrent
// callers can never push the store past its capacity.
func (s *Store) Record(text string) (Outcome, error) {
	var out Outcome
	err := s.locked(func() {
		out.Capacity = s.Capacity()
		if len(s.comments) >= out.Capacity {
			out.Status = Rejected
			out.Comment = Comment{Text: text}
			return
		}

		c := Comment{At: s.now().UTC(), Text: text}
		s.comments = append(s.comments, c)

		out.Status = Accepted
		out.Comment = c
	})
	return out, err
}

// Snapshot returns a copy of every comment in insertion order.
func (s *Store) Snapshot() ([]Comment, error) {
	var cs []Comment
	err := s.locked(func() {
		cs = make([]Comment, len(s.comments))
		copy(cs, s.comments)
	})
	return cs, err
}

// Len returns the number of stored comments.
func (s *Store) Len() (int, error) {
	var n int
	err := s.locked(func() {
		n = len(s.comments)
	})
	return n, err
}

// SetCapacity replaces the capacity for subsequent [Store.Record] calls.
// Comments already stored beyond the new capacity are kept. Negative values
// behave like 0.
func (s *Store) SetCapacity(n int) {
	s.capacity.Store(int64(n))
}

// Capacity returns the current capacity.
func (s *Store) Capacity() int {
	return int(s.capacity.Load())
}

// Healthy implements the [health.Monitor] interface. A poisoned store is unhealthy.
func (s *Store) Healthy(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.poisoned, nil
}

// locked runs f while holding the store lock. A panic in f poisons the store
// instead of propagating, and every later call reports [ErrPoisoned].
func (s *Store) locked(f func()) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return ErrPoisoned
	}

	defer func() {
		if err == nil {
			return
		}
		s.poisoned = true
		err = fmt.Errorf("%w: %w", ErrPoisoned, err)
	}()
	defer try.Recover(&err)

	f()
	return nil
}
