// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/capsule/config"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capsule.yaml")
	err := os.WriteFile(path, []byte(contents), 0o600)
	require.NoError(t, err)
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("will return the zero config", func(t *testing.T) {
		t.Run("if no path is given", func(t *testing.T) {
			cfg, err := loadConfig(context.Background(), "")
			require.NoError(t, err)
			require.Equal(t, Config{}, cfg)
		})
	})

	t.Run("will decode every section", func(t *testing.T) {
		path := writeConfig(t, `
gemini:
  addr: ":1966"
  hostname: capsule.example
  max_connections: 8
  read_timeout: 3s
  write_timeout: 4s
admin:
  addr: ":9090"
comments:
  capacity: 0
  path: /comment
`)

		cfg, err := loadConfig(context.Background(), path)
		require.NoError(t, err)

		require.Equal(t, ":1966", cfg.Gemini.Addr)
		require.Equal(t, "capsule.example", cfg.Gemini.Hostname)
		require.Equal(t, 8, cfg.Gemini.MaxConnections)
		require.Equal(t, 3*time.Second, cfg.Gemini.ReadTimeout)
		require.Equal(t, 4*time.Second, cfg.Gemini.WriteTimeout)
		require.Equal(t, ":9090", cfg.Admin.Addr)
		require.NotNil(t, cfg.Comments.Capacity)
		require.Equal(t, 0, *cfg.Comments.Capacity)
		require.Equal(t, "/comment", cfg.Comments.Path)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			_, err := loadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
			require.Error(t, err)
		})

		t.Run("if the file is not valid yaml", func(t *testing.T) {
			path := writeConfig(t, "gemini: [")

			_, err := loadConfig(context.Background(), path)
			require.Error(t, err)
		})
	})
}

func TestConfig_Readers(t *testing.T) {
	t.Run("will produce no value", func(t *testing.T) {
		t.Run("if neither the file nor the environment set it", func(t *testing.T) {
			var cfg Config

			_, err := config.Read(context.Background(), cfg.geminiAddr())
			require.ErrorIs(t, err, config.ErrValueNotSet)

			_, err = config.Read(context.Background(), cfg.commentCapacity())
			require.ErrorIs(t, err, config.ErrValueNotSet)
		})
	})

	t.Run("will use the file value", func(t *testing.T) {
		t.Run("if the environment does not set it", func(t *testing.T) {
			var cfg Config
			cfg.Admin.Addr = ":9090"
			capacity := 0
			cfg.Comments.Capacity = &capacity

			addr, err := config.Read(context.Background(), cfg.adminAddr())
			require.NoError(t, err)
			require.Equal(t, ":9090", addr)

			n, err := config.Read(context.Background(), cfg.commentCapacity())
			require.NoError(t, err)
			require.Equal(t, 0, n)
		})
	})

	t.Run("will prefer the environment", func(t *testing.T) {
		t.Setenv("CAPSULE_GEMINI_HOSTNAME", "env.example")
		t.Setenv("CAPSULE_COMMENTS_CAPACITY", "12")
		t.Setenv("CAPSULE_GEMINI_READ_TIMEOUT", "1s")

		var cfg Config
		cfg.Gemini.Hostname = "file.example"
		cfg.Gemini.ReadTimeout = time.Minute
		capacity := 3
		cfg.Comments.Capacity = &capacity

		hostname, err := config.Read(context.Background(), cfg.hostname())
		require.NoError(t, err)
		require.Equal(t, "env.example", hostname)

		n, err := config.Read(context.Background(), cfg.commentCapacity())
		require.NoError(t, err)
		require.Equal(t, 12, n)

		d, err := config.Read(context.Background(), cfg.readTimeout())
		require.NoError(t, err)
		require.Equal(t, time.Second, d)
	})
}
