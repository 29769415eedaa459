// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"time"

	"github.com/z5labs/capsule/admin"
	"github.com/z5labs/capsule/config"
	"github.com/z5labs/capsule/gemini"
)

// Config is the shape of the --config file. Every field may be omitted and
// every field can be overridden by its CAPSULE_* environment variable.
type Config struct {
	Gemini struct {
		Addr           string        `yaml:"addr"`
		Hostname       string        `yaml:"hostname"`
		CertFile       string        `yaml:"cert_file"`
		KeyFile        string        `yaml:"key_file"`
		MaxConnections int           `yaml:"max_connections"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
	} `yaml:"gemini"`

	Admin struct {
		Addr string `yaml:"addr"`
	} `yaml:"admin"`

	Comments struct {
		Capacity *int   `yaml:"capacity"`
		Path     string `yaml:"path"`
	} `yaml:"comments"`
}

// loadConfig reads the YAML file at path. An empty path yields the zero Config.
func loadConfig(ctx context.Context, path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	return config.Read(ctx, config.UnmarshalYAML[Config](config.ReadFile(config.ReaderOf(path))))
}

// set produces v unless it is the zero value.
func set[T comparable](v T) config.Reader[T] {
	var zero T
	if v == zero {
		return config.EmptyReader[T]()
	}
	return config.ReaderOf(v)
}

func setPtr[T any](v *T) config.Reader[T] {
	if v == nil {
		return config.EmptyReader[T]()
	}
	return config.ReaderOf(*v)
}

func (c Config) geminiAddr() config.Reader[string] {
	return config.Or(gemini.AddrFromEnv(), set(c.Gemini.Addr))
}

func (c Config) hostname() config.Reader[string] {
	return config.Or(config.Env("CAPSULE_GEMINI_HOSTNAME"), set(c.Gemini.Hostname))
}

func (c Config) certFile() config.Reader[string] {
	return config.Or(config.Env("CAPSULE_GEMINI_CERT_FILE"), set(c.Gemini.CertFile))
}

func (c Config) keyFile() config.Reader[string] {
	return config.Or(config.Env("CAPSULE_GEMINI_KEY_FILE"), set(c.Gemini.KeyFile))
}

func (c Config) maxConnections() config.Reader[int] {
	return config.Or(gemini.MaxConnectionsFromEnv(), set(c.Gemini.MaxConnections))
}

func (c Config) readTimeout() config.Reader[time.Duration] {
	return config.Or(gemini.ReadTimeoutFromEnv(), set(c.Gemini.ReadTimeout))
}

func (c Config) writeTimeout() config.Reader[time.Duration] {
	return config.Or(gemini.WriteTimeoutFromEnv(), set(c.Gemini.WriteTimeout))
}

func (c Config) adminAddr() config.Reader[string] {
	return config.Or(admin.AddrFromEnv(), set(c.Admin.Addr))
}

func (c Config) commentCapacity() config.Reader[int] {
	return config.Or(config.IntFromString(config.Env("CAPSULE_COMMENTS_CAPACITY")), setPtr(c.Comments.Capacity))
}

func (c Config) commentPath() config.Reader[string] {
	return config.Or(config.Env("CAPSULE_COMMENTS_PATH"), set(c.Comments.Path))
}
