// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

func fromString[T any](r Reader[string], parse func(string) (T, error)) Reader[T] {
	return Map(r, func(ctx context.Context, s string) (T, error) {
		return parse(s)
	})
}

// IntFromString parses the string value of r as a base 10 int.
func IntFromString(r Reader[string]) Reader[int] {
	return fromString(r, strconv.Atoi)
}

// Int64FromString parses the string value of r as a base 10 int64.
func Int64FromString(r Reader[string]) Reader[int64] {
	return fromString(r, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// BoolFromString parses the string value of r with [strconv.ParseBool].
func BoolFromString(r Reader[string]) Reader[bool] {
	return fromString(r, strconv.ParseBool)
}

// Float64FromString parses the string value of r as a float64.
func Float64FromString(r Reader[string]) Reader[float64] {
	return fromString(r, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// DurationFromString parses the string value of r with [time.ParseDuration].
func DurationFromString(r Reader[string]) Reader[time.Duration] {
	return fromString(r, time.ParseDuration)
}

// ReadFile reads the entire contents of the file named by r.
func ReadFile(name Reader[string]) Reader[[]byte] {
	return Map(name, func(ctx context.Context, name string) ([]byte, error) {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read file: %w", err)
		}
		return b, nil
	})
}

// BytesOf returns a [Reader] which consumes r fully when read.
func BytesOf(r io.Reader) Reader[[]byte] {
	return ReaderFunc[[]byte](func(ctx context.Context) (Value[[]byte], error) {
		b, err := io.ReadAll(r)
		if err != nil {
			return Value[[]byte]{}, err
		}
		return ValueOf(b), nil
	})
}

// UnmarshalYAML decodes the bytes produced by r into a T using yaml.v3.
// Empty documents produce the zero T.
func UnmarshalYAML[T any](r Reader[[]byte]) Reader[T] {
	return Map(r, func(ctx context.Context, b []byte) (T, error) {
		var v T
		if len(bytes.TrimSpace(b)) == 0 {
			return v, nil
		}
		err := yaml.Unmarshal(b, &v)
		if err != nil {
			return v, fmt.Errorf("config: failed to unmarshal yaml: %w", err)
		}
		return v, nil
	})
}

// UnmarshalJSON decodes the bytes produced by r into a T.
func UnmarshalJSON[T any](r Reader[[]byte]) Reader[T] {
	return Map(r, func(ctx context.Context, b []byte) (T, error) {
		var v T
		err := json.Unmarshal(b, &v)
		if err != nil {
			return v, fmt.Errorf("config: failed to unmarshal json: %w", err)
		}
		return v, nil
	})
}
