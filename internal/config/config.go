// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/molihua12345/KubeAgent/internal/util"
)

// EnvPrefix is the prefix for environment overrides (KUBEWIZARD_BACKEND_URL, ...).
const EnvPrefix = "KUBEWIZARD"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete client configuration.
type Config struct {
	Backend BackendConfig `toml:"backend" json:"backend"`
	Session SessionConfig `toml:"session" json:"session"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Export  ExportConfig  `toml:"export" json:"export"`
	Archive ArchiveConfig `toml:"archive" json:"archive"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// BackendConfig describes how to reach the conversational backend.
type BackendConfig struct {
	// URL is the backend base URL, e.g. http://127.0.0.1:5000.
	URL string `toml:"url" json:"url"`

	// Timeout bounds non-streaming requests (health, history, clear, chat).
	Timeout Duration `toml:"timeout" json:"timeout"`

	// StreamTimeout bounds a whole streamed response. Zero means no limit.
	StreamTimeout Duration `toml:"stream_timeout" json:"stream_timeout"`

	// ProbeInterval is the connectivity probe cadence.
	ProbeInterval Duration `toml:"probe_interval" json:"probe_interval"`

	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout Duration `toml:"probe_timeout" json:"probe_timeout"`

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`

	// SyncFallback retries a send on /api/chat when the stream endpoint is missing.
	SyncFallback bool `toml:"sync_fallback" json:"sync_fallback"`
}

// SessionConfig controls local session behavior.
type SessionConfig struct {
	DefaultTitle  string `toml:"default_title" json:"default_title"`
	PreviewLength int    `toml:"preview_length" json:"preview_length"`

	// PinStreamToOrigin commits a streamed reply to the session that was
	// active when the message was sent, instead of the one active when the
	// reply completes.
	PinStreamToOrigin bool `toml:"pin_stream_to_origin" json:"pin_stream_to_origin"`
}

// UIConfig controls presentation.
type UIConfig struct {
	// Theme is "dark" or "light".
	Theme string `toml:"theme" json:"theme"`

	// Renderer is "builtin" or "glamour".
	Renderer string `toml:"renderer" json:"renderer"`

	// SidebarWidth is the session list width in columns. Zero hides it.
	SidebarWidth int `toml:"sidebar_width" json:"sidebar_width"`
}

// ExportConfig controls exported snapshots.
type ExportConfig struct {
	OutputDir string `toml:"output_dir" json:"output_dir"`
	Format    string `toml:"format" json:"format"` // json, md, html
}

// ArchiveConfig controls the local SQLite archive of exports.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level       string `toml:"level" json:"level"`
	File        string `toml:"file" json:"file"`
	Development bool   `toml:"development" json:"development"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as "30s" in TOML, JSON
// and environment variables.
type Duration struct {
	time.Duration
}

// Dur wraps a time.Duration.
func Dur(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".kubewizard"
	}
	return &Config{
		Backend: BackendConfig{
			URL:               "http://127.0.0.1:5000",
			Timeout:           Dur(30 * time.Second),
			StreamTimeout:     Dur(0),
			ProbeInterval:     Dur(30 * time.Second),
			ProbeTimeout:      Dur(5 * time.Second),
			RequestsPerSecond: 5,
			SyncFallback:      true,
		},
		Session: SessionConfig{
			DefaultTitle:  "Current Chat",
			PreviewLength: 30,
		},
		UI: UIConfig{
			Theme:        "dark",
			Renderer:     "builtin",
			SidebarWidth: 28,
		},
		Export: ExportConfig{
			OutputDir: ".",
			Format:    "json",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "archive.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dir, "chat.log"),
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".kubewizard"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default locations.
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg, err := LoadFromPath(tomlPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg, err := LoadFromPath(jsonPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	// Defaults are returned together with any load error for reporting.
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes the file at path over the defaults, without environment
// overrides or validation. It is the starting point for editing a file.
func ReadFile(path string) (*Config, error) {
	cfg := Default()

	if isJSONPath(path) {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	cfg.fillDefaults()
	return cfg, nil
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func (c *Config) finish() error {
	if err := c.ApplyEnvOverrides(); err != nil {
		return err
	}
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fillDefaults replaces zero values that have no meaningful zero.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.Timeout.Duration == 0 {
		c.Backend.Timeout = defaults.Backend.Timeout
	}
	if c.Backend.ProbeInterval.Duration == 0 {
		c.Backend.ProbeInterval = defaults.Backend.ProbeInterval
	}
	if c.Backend.ProbeTimeout.Duration == 0 {
		c.Backend.ProbeTimeout = defaults.Backend.ProbeTimeout
	}
	if c.Session.DefaultTitle == "" {
		c.Session.DefaultTitle = defaults.Session.DefaultTitle
	}
	if c.Session.PreviewLength == 0 {
		c.Session.PreviewLength = defaults.Session.PreviewLength
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.UI.Renderer == "" {
		c.UI.Renderer = defaults.UI.Renderer
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = defaults.Export.OutputDir
	}
	if c.Export.Format == "" {
		c.Export.Format = defaults.Export.Format
	}
	if c.Archive.Path == "" {
		c.Archive.Path = defaults.Archive.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envOverrides lists the variables read by ApplyEnvOverrides. Unset
// variables leave the file value in place.
type envOverrides struct {
	BackendURL    string        `envconfig:"BACKEND_URL"`
	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL"`
	LogLevel      string        `envconfig:"LOG_LEVEL"`
	Theme         string        `envconfig:"THEME"`
	ExportDir     string        `envconfig:"EXPORT_DIR"`
	ArchivePath   string        `envconfig:"ARCHIVE_PATH"`
	PinStreams    string        `envconfig:"PIN_STREAM_TO_ORIGIN"`
}

// ApplyEnvOverrides applies KUBEWIZARD_* environment variables:
//   - KUBEWIZARD_BACKEND_URL: overrides backend.url
//   - KUBEWIZARD_PROBE_INTERVAL: overrides backend.probe_interval ("15s")
//   - KUBEWIZARD_LOG_LEVEL: overrides logging.level
//   - KUBEWIZARD_THEME: overrides ui.theme
//   - KUBEWIZARD_EXPORT_DIR: overrides export.output_dir
//   - KUBEWIZARD_ARCHIVE_PATH: overrides archive.path
//   - KUBEWIZARD_PIN_STREAM_TO_ORIGIN: overrides session.pin_stream_to_origin
func (c *Config) ApplyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	if env.BackendURL != "" {
		c.Backend.URL = env.BackendURL
	}
	if env.ProbeInterval != 0 {
		c.Backend.ProbeInterval = Dur(env.ProbeInterval)
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.Theme != "" {
		c.UI.Theme = env.Theme
	}
	if env.ExportDir != "" {
		c.Export.OutputDir = env.ExportDir
	}
	if env.ArchivePath != "" {
		c.Archive.Path = env.ArchivePath
	}
	if env.PinStreams != "" {
		c.Session.PinStreamToOrigin = env.PinStreams == "1" || strings.EqualFold(env.PinStreams, "true")
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path, as JSON for a .json file and TOML otherwise. An
// empty path means the default TOML file.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := ConfigPathTOML()
		if err != nil {
			return err
		}
		path = p
	}
	if isJSONPath(path) {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// WriteTOML encodes cfg as TOML with a header comment.
func WriteTOML(w io.Writer, cfg *Config) error {
	if _, err := io.WriteString(w, "# kubewizard chat client configuration\n# Generated by kubewizard-chat - edit with care\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	if err := WriteTOML(&b, cfg); err != nil {
		return err
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors if anything
// is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: fmt.Sprintf("invalid URL '%s', must be an http(s) URL with a host", c.Backend.URL),
		})
	}
	if c.Backend.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{Field: "backend.timeout", Message: "must not be negative"})
	}
	if c.Backend.StreamTimeout.Duration < 0 {
		errs = append(errs, ValidationError{Field: "backend.stream_timeout", Message: "must not be negative"})
	}
	if c.Backend.ProbeInterval.Duration < time.Second {
		errs = append(errs, ValidationError{
			Field:   "backend.probe_interval",
			Message: fmt.Sprintf("%s is too short, minimum is 1s", c.Backend.ProbeInterval.Duration),
		})
	}
	if c.Backend.ProbeTimeout.Duration <= 0 || c.Backend.ProbeTimeout.Duration > c.Backend.ProbeInterval.Duration {
		errs = append(errs, ValidationError{
			Field:   "backend.probe_timeout",
			Message: "must be positive and not longer than backend.probe_interval",
		})
	}
	if c.Backend.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "backend.requests_per_second", Message: "must not be negative"})
	}

	if c.Session.PreviewLength < 1 || c.Session.PreviewLength > 200 {
		errs = append(errs, ValidationError{
			Field:   "session.preview_length",
			Message: fmt.Sprintf("%d out of range, must be 1-200", c.Session.PreviewLength),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		})
	}
	validRenderers := map[string]bool{"builtin": true, "glamour": true}
	if !validRenderers[strings.ToLower(c.UI.Renderer)] {
		errs = append(errs, ValidationError{
			Field:   "ui.renderer",
			Message: fmt.Sprintf("invalid renderer '%s', must be one of: builtin, glamour", c.UI.Renderer),
		})
	}
	if c.UI.SidebarWidth < 0 {
		errs = append(errs, ValidationError{Field: "ui.sidebar_width", Message: "must not be negative"})
	}

	validFormats := map[string]bool{"json": true, "md": true, "markdown": true, "html": true}
	if !validFormats[strings.ToLower(c.Export.Format)] {
		errs = append(errs, ValidationError{
			Field:   "export.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: json, md, html", c.Export.Format),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
