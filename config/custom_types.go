/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes.
// In configuration files it may be written as a plain integer or as a human-readable string ("64KB", "1Mi").
type ByteSize uint64

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText(unquoteJSON(data))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("byte size must be a scalar value, got %s", value.Tag)
	}
	return b.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	num, isInt, err := parseNonNegativeInt(s)
	if err != nil {
		return err
	}
	if isInt {
		*b = ByteSize(num)
		return nil
	}
	bs, err := parseByteSizeFromString(s)
	if err != nil {
		return err
	}
	*b = bs
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

func parseByteSizeFromString(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	// bytefmt units are binary, so "Mi" is the same as "M".
	if n := len(v); n > 2 && v[n-1] == 'i' && strings.IndexByte("KMGTPE", v[n-2]) >= 0 {
		v = v[:n-1]
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return ByteSize(num), nil
}

// TimeDuration is a time.Duration that may be written in configuration files
// either as an integer number of nanoseconds or as a Go duration string ("1h30m").
type TimeDuration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.UnmarshalText(unquoteJSON(data))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("time duration must be a scalar value, got %s", value.Tag)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	num, isInt, err := parseNonNegativeInt(s)
	if err != nil {
		return err
	}
	if isInt {
		*d = TimeDuration(num)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse time duration %q: %w", s, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// parseNonNegativeInt reports whether s is an integer.
// Negative integers are rejected.
func parseNonNegativeInt(s string) (num int64, isInt bool, err error) {
	num, parseErr := strconv.ParseInt(s, 10, 64)
	if parseErr != nil {
		return 0, false, nil
	}
	if num < 0 {
		return 0, true, fmt.Errorf("negative value is not allowed: %d", num)
	}
	return num, true, nil
}

func unquoteJSON(data []byte) []byte {
	if s, err := strconv.Unquote(string(data)); err == nil {
		return []byte(s)
	}
	return data
}
