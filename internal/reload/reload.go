// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package reload re-applies a config file whenever it changes on disk.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/z5labs/capsule"
	"github.com/z5labs/capsule/comments"
	"github.com/z5labs/capsule/config"

	"github.com/fsnotify/fsnotify"
)

// Func applies the new contents of a watched file.
type Func func(context.Context, []byte) error

// Watcher calls a [Func] with the contents of a file each time it is written.
type Watcher struct {
	w     *fsnotify.Watcher
	path  string
	apply Func
	log   *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Watch starts watching path. The parent directory is watched rather than
// the file itself so replacing the file, as most editors and config map
// mounts do, is still noticed. Watching stops when ctx is cancelled or
// [Watcher.Close] is called.
func Watch(ctx context.Context, path string, apply Func) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("reload: resolve %q: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: create watcher: %w", err)
	}
	err = fw.Add(filepath.Dir(abs))
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("reload: watch %q: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		w:     fw,
		path:  abs,
		apply: apply,
		log:   capsule.Logger("github.com/z5labs/capsule/internal/reload"),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.run(context.WithoutCancel(ctx), ctx.Done())
	return w, nil
}

// Close stops watching and waits for an in-progress reload to finish.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.w.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run(ctx context.Context, cancelled <-chan struct{}) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case <-cancelled:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.WarnContext(ctx, "config watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	b, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		// replaced by rename, the create event follows
		return
	}
	if err != nil {
		w.log.ErrorContext(ctx, "failed to read config", slog.String("path", w.path), slog.Any("error", err))
		return
	}

	err = w.apply(ctx, b)
	if err != nil {
		w.log.ErrorContext(ctx, "failed to apply config", slog.String("path", w.path), slog.Any("error", err))
		return
	}
	w.log.InfoContext(ctx, "reloaded config", slog.String("path", w.path))
}

// ErrNegativeCapacity is returned when a reloaded config sets a negative capacity.
var ErrNegativeCapacity = errors.New("reload: comments.capacity must not be negative")

type capacityConfig struct {
	Comments struct {
		Capacity *int `yaml:"capacity"`
	} `yaml:"comments"`
}

// CommentCapacity returns a [Func] which applies comments.capacity from a
// YAML document to store. Documents without the key leave it unchanged.
func CommentCapacity(store *comments.Store) Func {
	return func(ctx context.Context, b []byte) error {
		cfg, err := config.Read(ctx, config.UnmarshalYAML[capacityConfig](config.ReaderOf(b)))
		if err != nil {
			return err
		}

		n := cfg.Comments.Capacity
		if n == nil {
			return nil
		}
		if *n < 0 {
			return fmt.Errorf("%w: %d", ErrNegativeCapacity, *n)
		}
		store.SetCapacity(*n)
		return nil
	}
}
