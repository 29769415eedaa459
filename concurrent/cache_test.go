// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package concurrent

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOr(t *testing.T) {
	t.Run("will call f once per key", func(t *testing.T) {
		c := NewCache[string, int]()

		var calls atomic.Int64
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				v, err := c.GetOr("key", func() (int, error) {
					calls.Add(1)
					return 7, nil
				})
				assert.NoError(t, err)
				assert.Equal(t, 7, v)
			}()
		}
		wg.Wait()

		require.Equal(t, int64(1), calls.Load())
		require.Equal(t, 1, c.Len())
	})

	t.Run("will not cache a failure", func(t *testing.T) {
		c := NewCache[string, int]()

		failure := errors.New("failed")
		_, err := c.GetOr("key", func() (int, error) {
			return 0, failure
		})
		require.ErrorIs(t, err, failure)

		_, ok := c.Get("key")
		require.False(t, ok)

		v, err := c.GetOr("key", func() (int, error) {
			return 3, nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, v)
	})
}
