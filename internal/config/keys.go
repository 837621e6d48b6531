// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned by Set for a key that is not settable.
var ErrUnknownKey = errors.New("unknown config key")

// setter parses value into one field of c.
type setter func(c *Config, value string) error

// keys maps dotted "section.field" names to their setters. The names match
// the TOML layout.
var keys = map[string]setter{
	"backend.url":                  func(c *Config, v string) error { c.Backend.URL = v; return nil },
	"backend.timeout":              durationKey(func(c *Config) *Duration { return &c.Backend.Timeout }),
	"backend.stream_timeout":       durationKey(func(c *Config) *Duration { return &c.Backend.StreamTimeout }),
	"backend.probe_interval":       durationKey(func(c *Config) *Duration { return &c.Backend.ProbeInterval }),
	"backend.probe_timeout":        durationKey(func(c *Config) *Duration { return &c.Backend.ProbeTimeout }),
	"backend.requests_per_second":  floatKey(func(c *Config) *float64 { return &c.Backend.RequestsPerSecond }),
	"backend.sync_fallback":        boolKey(func(c *Config) *bool { return &c.Backend.SyncFallback }),
	"session.default_title":        func(c *Config, v string) error { c.Session.DefaultTitle = v; return nil },
	"session.preview_length":       intKey(func(c *Config) *int { return &c.Session.PreviewLength }),
	"session.pin_stream_to_origin": boolKey(func(c *Config) *bool { return &c.Session.PinStreamToOrigin }),
	"ui.theme":                     func(c *Config, v string) error { c.UI.Theme = strings.ToLower(v); return nil },
	"ui.renderer":                  func(c *Config, v string) error { c.UI.Renderer = strings.ToLower(v); return nil },
	"ui.sidebar_width":             intKey(func(c *Config) *int { return &c.UI.SidebarWidth }),
	"export.output_dir":            func(c *Config, v string) error { c.Export.OutputDir = v; return nil },
	"export.format":                func(c *Config, v string) error { c.Export.Format = strings.ToLower(v); return nil },
	"archive.enabled":              boolKey(func(c *Config) *bool { return &c.Archive.Enabled }),
	"archive.path":                 func(c *Config, v string) error { c.Archive.Path = v; return nil },
	"logging.level":                func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil },
	"logging.file":                 func(c *Config, v string) error { c.Logging.File = v; return nil },
	"logging.development":          boolKey(func(c *Config) *bool { return &c.Logging.Development }),
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Set assigns value to the dotted key. It checks the value's type but not
// its range; call Validate afterwards.
func (c *Config) Set(key, value string) error {
	set, ok := keys[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	if err := set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func durationKey(field func(*Config) *Duration) setter {
	return func(c *Config, v string) error {
		return field(c).UnmarshalText([]byte(v))
	}
}

func boolKey(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*field(c) = b
		return nil
	}
}

func intKey(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = n
		return nil
	}
}

func floatKey(field func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*field(c) = f
		return nil
	}
}
