// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/z5labs/capsule/comments"
	"github.com/z5labs/capsule/health"

	"github.com/stretchr/testify/require"
)

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func poisonedStore(t *testing.T) *comments.Store {
	s := comments.NewStore(comments.WithClock(func() time.Time {
		panic("clock failure")
	}))
	_, err := s.Record("boom")
	require.Error(t, err)
	return s
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("will report ready", func(t *testing.T) {
		t.Run("if the store is healthy", func(t *testing.T) {
			h := NewHandler(comments.NewStore())

			w := do(h, http.MethodGet, "/health/readiness", "")
			require.Equal(t, http.StatusOK, w.Code)
		})
	})

	t.Run("will report not ready", func(t *testing.T) {
		t.Run("if the store is poisoned", func(t *testing.T) {
			h := NewHandler(poisonedStore(t))

			w := do(h, http.MethodGet, "/health/readiness", "")
			require.Equal(t, http.StatusServiceUnavailable, w.Code)
		})

		t.Run("if the additional monitor is unhealthy", func(t *testing.T) {
			var serving health.Binary
			h := NewHandler(comments.NewStore(), Readiness(&serving))

			w := do(h, http.MethodGet, "/health/readiness", "")
			require.Equal(t, http.StatusServiceUnavailable, w.Code)

			serving.MarkHealthy()

			w = do(h, http.MethodGet, "/health/readiness", "")
			require.Equal(t, http.StatusOK, w.Code)
		})
	})

	t.Run("will report live", func(t *testing.T) {
		t.Run("even if the store is poisoned", func(t *testing.T) {
			h := NewHandler(poisonedStore(t))

			w := do(h, http.MethodGet, "/health/liveness", "")
			require.Equal(t, http.StatusOK, w.Code)
		})
	})

	t.Run("will use the configured liveness monitor", func(t *testing.T) {
		var live health.Binary
		h := NewHandler(comments.NewStore(), Liveness(&live))

		w := do(h, http.MethodGet, "/health/liveness", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestListComments(t *testing.T) {
	t.Run("will return every comment in order", func(t *testing.T) {
		at := time.Date(2022, time.June, 5, 13, 4, 5, 0, time.UTC)
		s := comments.NewStore(comments.WithCapacity(3), comments.WithClock(func() time.Time { return at }))
		for _, text := range []string{"a", "b"} {
			_, err := s.Record(text)
			require.NoError(t, err)
		}

		w := do(NewHandler(s), http.MethodGet, "/comments", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var list CommentList
		err := json.Unmarshal(w.Body.Bytes(), &list)
		require.NoError(t, err)

		require.Equal(t, 3, list.Capacity)
		require.Len(t, list.Comments, 2)
		require.Equal(t, "a", list.Comments[0].Text)
		require.Equal(t, "b", list.Comments[1].Text)
		require.True(t, at.Equal(list.Comments[0].At))
	})

	t.Run("will return an empty list", func(t *testing.T) {
		w := do(NewHandler(comments.NewStore()), http.MethodGet, "/comments", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"capacity":500,"comments":[]}`, w.Body.String())
	})

	t.Run("will respond 503", func(t *testing.T) {
		t.Run("if the store is poisoned", func(t *testing.T) {
			w := do(NewHandler(poisonedStore(t)), http.MethodGet, "/comments", "")
			require.Equal(t, http.StatusServiceUnavailable, w.Code)
		})
	})
}

func TestCapacity(t *testing.T) {
	t.Run("will return the current capacity", func(t *testing.T) {
		s := comments.NewStore(comments.WithCapacity(12))

		w := do(NewHandler(s), http.MethodGet, "/comments/capacity", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"capacity":12}`, w.Body.String())
	})

	t.Run("will update the capacity", func(t *testing.T) {
		s := comments.NewStore(comments.WithCapacity(1))
		_, err := s.Record("a")
		require.NoError(t, err)

		w := do(NewHandler(s), http.MethodPut, "/comments/capacity", `{"capacity": 2}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"capacity":2}`, w.Body.String())
		require.Equal(t, 2, s.Capacity())

		out, err := s.Record("b")
		require.NoError(t, err)
		require.Equal(t, comments.Accepted, out.Status)
	})

	t.Run("will accept a capacity of 0", func(t *testing.T) {
		s := comments.NewStore()

		w := do(NewHandler(s), http.MethodPut, "/comments/capacity", `{"capacity": 0}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Zero(t, s.Capacity())
	})

	t.Run("will respond 400", func(t *testing.T) {
		testCases := []struct {
			Name string
			Body string
		}{
			{Name: "if the body is not json", Body: `capacity=2`},
			{Name: "if the capacity is missing", Body: `{}`},
			{Name: "if the capacity is negative", Body: `{"capacity": -1}`},
			{Name: "if the capacity is not a number", Body: `{"capacity": "ten"}`},
			{Name: "if the body has unknown fields", Body: `{"capacity": 1, "limit": 2}`},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				s := comments.NewStore()

				w := do(NewHandler(s), http.MethodPut, "/comments/capacity", testCase.Body)
				require.Equal(t, http.StatusBadRequest, w.Code)
				require.Equal(t, comments.DefaultCapacity, s.Capacity())

				var e Error
				err := json.Unmarshal(w.Body.Bytes(), &e)
				require.NoError(t, err)
				require.NotEmpty(t, e.Message)
			})
		}
	})

	t.Run("will respond 405", func(t *testing.T) {
		t.Run("if the method is not supported", func(t *testing.T) {
			w := do(NewHandler(comments.NewStore()), http.MethodDelete, "/comments/capacity", "")
			require.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	})
}
