// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/capsule/comments"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
}

func TestWatch(t *testing.T) {
	t.Run("will apply the file each time it is written", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "capsule.yaml")
		writeFile(t, path, "comments:\n  capacity: 5\n")

		store := comments.NewStore(comments.WithCapacity(5))

		w, err := Watch(context.Background(), path, CommentCapacity(store))
		require.NoError(t, err)
		defer w.Close()

		writeFile(t, path, "comments:\n  capacity: 7\n")
		require.Eventually(t, func() bool {
			return store.Capacity() == 7
		}, 5*time.Second, 10*time.Millisecond)

		writeFile(t, path, "comments:\n  capacity: 1\n")
		require.Eventually(t, func() bool {
			return store.Capacity() == 1
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("will apply a file replaced by rename", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "capsule.yaml")
		writeFile(t, path, "comments:\n  capacity: 5\n")

		store := comments.NewStore(comments.WithCapacity(5))

		w, err := Watch(context.Background(), path, CommentCapacity(store))
		require.NoError(t, err)
		defer w.Close()

		tmp := filepath.Join(dir, "capsule.yaml.tmp")
		writeFile(t, tmp, "comments:\n  capacity: 9\n")
		require.NoError(t, os.Rename(tmp, path))

		require.Eventually(t, func() bool {
			return store.Capacity() == 9
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("will keep watching", func(t *testing.T) {
		t.Run("if a write could not be applied", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "capsule.yaml")
			writeFile(t, path, "comments:\n  capacity: 5\n")

			store := comments.NewStore(comments.WithCapacity(5))

			w, err := Watch(context.Background(), path, CommentCapacity(store))
			require.NoError(t, err)
			defer w.Close()

			writeFile(t, path, "comments: [")
			writeFile(t, path, "comments:\n  capacity: 3\n")

			require.Eventually(t, func() bool {
				return store.Capacity() == 3
			}, 5*time.Second, 10*time.Millisecond)
		})
	})

	t.Run("will ignore other files in the directory", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "capsule.yaml")
		writeFile(t, path, "")

		calls := make(chan string, 10)
		w, err := Watch(context.Background(), path, func(ctx context.Context, b []byte) error {
			calls <- string(b)
			return nil
		})
		require.NoError(t, err)
		defer w.Close()

		writeFile(t, filepath.Join(dir, "other.yaml"), "ignored")
		writeFile(t, path, "watched")

		// truncating may be observed before the write lands
		timeout := time.After(5 * time.Second)
		for {
			select {
			case got := <-calls:
				require.NotEqual(t, "ignored", got)
				if got == "watched" {
					return
				}
			case <-timeout:
				t.Fatal("file change was not applied")
			}
		}
	})

	t.Run("will stop", func(t *testing.T) {
		t.Run("if closed more than once", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "capsule.yaml")
			writeFile(t, path, "")

			w, err := Watch(context.Background(), path, CommentCapacity(comments.NewStore()))
			require.NoError(t, err)

			require.NoError(t, w.Close())
			require.NoError(t, w.Close())
		})

		t.Run("if the context is cancelled", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "capsule.yaml")
			writeFile(t, path, "")

			ctx, cancel := context.WithCancel(context.Background())
			w, err := Watch(ctx, path, CommentCapacity(comments.NewStore()))
			require.NoError(t, err)

			cancel()
			select {
			case <-w.done:
			case <-time.After(5 * time.Second):
				t.Fatal("watcher did not stop")
			}
			require.NoError(t, w.Close())
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the directory does not exist", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing", "capsule.yaml")

			_, err := Watch(context.Background(), path, CommentCapacity(comments.NewStore()))
			require.Error(t, err)
		})
	})
}

func TestCommentCapacity(t *testing.T) {
	t.Run("will leave the capacity unchanged", func(t *testing.T) {
		t.Run("if the document does not set it", func(t *testing.T) {
			store := comments.NewStore(comments.WithCapacity(4))

			err := CommentCapacity(store)(context.Background(), []byte("gemini:\n  addr: \":1965\"\n"))
			require.NoError(t, err)
			require.Equal(t, 4, store.Capacity())
		})

		t.Run("if the document is empty", func(t *testing.T) {
			store := comments.NewStore(comments.WithCapacity(4))

			err := CommentCapacity(store)(context.Background(), nil)
			require.NoError(t, err)
			require.Equal(t, 4, store.Capacity())
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the capacity is negative", func(t *testing.T) {
			store := comments.NewStore(comments.WithCapacity(4))

			err := CommentCapacity(store)(context.Background(), []byte("comments:\n  capacity: -1\n"))
			require.ErrorIs(t, err, ErrNegativeCapacity)
			require.Equal(t, 4, store.Capacity())
		})

		t.Run("if the document is not valid yaml", func(t *testing.T) {
			store := comments.NewStore(comments.WithCapacity(4))

			err := CommentCapacity(store)(context.Background(), []byte("comments: ["))
			require.Error(t, err)
			require.Equal(t, 4, store.Capacity())
		})
	})
}
