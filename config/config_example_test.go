// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func Example() {
	capacity, _ := Read(
		context.Background(),
		Default(500, IntFromString(Env("CAPSULE_EXAMPLE_UNSET_CAPACITY"))),
	)

	fmt.Println(capacity)
	// Output:
	// 500
}

func ExampleOr() {
	timeout := MustOr(
		context.Background(),
		5*time.Second,
		Or(
			DurationFromString(Env("CAPSULE_EXAMPLE_UNSET_TIMEOUT")),
			DurationFromString(ReaderOf("10s")),
		),
	)

	fmt.Println(timeout)
	// Output:
	// 10s
}

func ExampleUnmarshalYAML() {
	type CommentsConfig struct {
		Capacity int    `yaml:"capacity"`
		Path     string `yaml:"path"`
	}

	type AppConfig struct {
		Comments CommentsConfig `yaml:"comments"`
	}

	appCfgReader := UnmarshalYAML[AppConfig](BytesOf(strings.NewReader(`comments:
  capacity: 2
  path: /api/post-comment
`)))

	appCfg, _ := Read(context.Background(), appCfgReader)

	fmt.Println("capacity:", appCfg.Comments.Capacity)
	fmt.Println("path:", appCfg.Comments.Path)
	// Output:
	// capacity: 2
	// path: /api/post-comment
}
