// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Backend.ProbeInterval.Duration != 30*time.Second {
		t.Errorf("probe interval = %v, want 30s", cfg.Backend.ProbeInterval)
	}
	if cfg.Session.PreviewLength != 30 {
		t.Errorf("preview length = %d, want 30", cfg.Session.PreviewLength)
	}
	if cfg.Session.PinStreamToOrigin {
		t.Error("streams should commit to the completion-time session by default")
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[backend]
url = "http://agent.local:8080/"
probe_interval = "10s"
sync_fallback = false

[session]
pin_stream_to_origin = true

[ui]
theme = "light"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Backend.URL != "http://agent.local:8080" {
		t.Errorf("url = %q, trailing slash should be trimmed", cfg.Backend.URL)
	}
	if cfg.Backend.ProbeInterval.Duration != 10*time.Second {
		t.Errorf("probe interval = %v", cfg.Backend.ProbeInterval)
	}
	if cfg.Backend.SyncFallback {
		t.Error("sync_fallback = false should override the default")
	}
	if !cfg.Session.PinStreamToOrigin {
		t.Error("pin_stream_to_origin not loaded")
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
	// Untouched fields keep their defaults.
	if cfg.Backend.Timeout.Duration != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Session.DefaultTitle != "Current Chat" {
		t.Errorf("default title = %q", cfg.Session.DefaultTitle)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"backend": {"url": "https://agent.example.com", "probe_timeout": "2s"}, "export": {"format": "md"}}`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Backend.URL != "https://agent.example.com" {
		t.Errorf("url = %q", cfg.Backend.URL)
	}
	if cfg.Backend.ProbeTimeout.Duration != 2*time.Second {
		t.Errorf("probe timeout = %v", cfg.Backend.ProbeTimeout)
	}
	if cfg.Export.Format != "md" {
		t.Errorf("format = %q", cfg.Export.Format)
	}
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[ui]\ntheme = \"dark\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad url", "[backend]\nurl = \"ftp://x\"\n", "backend.url"},
		{"probe too short", "[backend]\nprobe_interval = \"100ms\"\nprobe_timeout = \"50ms\"\n", "backend.probe_interval"},
		{"bad theme", "[ui]\ntheme = \"neon\"\n", "ui.theme"},
		{"bad renderer", "[ui]\nrenderer = \"html\"\n", "ui.renderer"},
		{"bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"preview range", "[session]\npreview_length = 500\n", "session.preview_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			writeFile(t, path, tt.content)

			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidateErrors, got %T: %v", err, err)
			}
			found := false
			for _, v := range verrs {
				if v.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s in %v", tt.field, verrs)
			}
		})
	}
}

func TestLoadFromPath_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[backend]\ntimeout = \"soon\"\n")

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected decode error for bad duration")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("KUBEWIZARD_BACKEND_URL", "http://10.0.0.5:5000")
	t.Setenv("KUBEWIZARD_PROBE_INTERVAL", "45s")
	t.Setenv("KUBEWIZARD_LOG_LEVEL", "debug")
	t.Setenv("KUBEWIZARD_THEME", "light")
	t.Setenv("KUBEWIZARD_PIN_STREAM_TO_ORIGIN", "true")

	cfg := Default()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		t.Fatalf("ApplyEnvOverrides: %v", err)
	}

	if cfg.Backend.URL != "http://10.0.0.5:5000" {
		t.Errorf("url = %q", cfg.Backend.URL)
	}
	if cfg.Backend.ProbeInterval.Duration != 45*time.Second {
		t.Errorf("probe interval = %v", cfg.Backend.ProbeInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
	if !cfg.Session.PinStreamToOrigin {
		t.Error("pin override not applied")
	}
}

func TestApplyEnvOverrides_BadDuration(t *testing.T) {
	t.Setenv("KUBEWIZARD_PROBE_INTERVAL", "often")

	if err := Default().ApplyEnvOverrides(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Backend.URL = "http://agent:9000"
	cfg.Backend.ProbeInterval = Dur(12 * time.Second)
	cfg.UI.Renderer = "glamour"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# kubewizard") {
		t.Errorf("missing header comment: %q", string(data)[:20])
	}
	if !strings.Contains(string(data), `probe_interval = "12s"`) {
		t.Errorf("duration not written as string:\n%s", data)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Archive.Enabled = false
	if err := SaveJSON(cfg, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		key, value string
		check      func(*Config) bool
		wantErr    bool
	}{
		{"backend.url", "http://wizard:8080", func(c *Config) bool { return c.Backend.URL == "http://wizard:8080" }, false},
		{"backend.probe_interval", "45s", func(c *Config) bool { return c.Backend.ProbeInterval.Duration == 45*time.Second }, false},
		{"backend.requests_per_second", "2.5", func(c *Config) bool { return c.Backend.RequestsPerSecond == 2.5 }, false},
		{"session.pin_stream_to_origin", "true", func(c *Config) bool { return c.Session.PinStreamToOrigin }, false},
		{"ui.theme", "LIGHT", func(c *Config) bool { return c.UI.Theme == "light" }, false},
		{" UI.Sidebar_Width ", "0", func(c *Config) bool { return c.UI.SidebarWidth == 0 }, false},
		{"archive.enabled", "maybe", nil, true},
		{"backend.timeout", "soon", nil, true},
		{"session.preview_length", "ten", nil, true},
		{"ollama.model", "x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Set(%q, %q) succeeded, want error", tt.key, tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Set(%q, %q) did not apply: %+v", tt.key, tt.value, cfg)
			}
		})
	}

	if err := Default().Set("nope", "1"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key error = %v, want ErrUnknownKey", err)
	}
}

func TestKeys_AllSettable(t *testing.T) {
	keys := Keys()
	if len(keys) == 0 {
		t.Fatal("no keys")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("keys not sorted: %q before %q", keys[i-1], keys[i])
		}
	}
}

func TestSave_PicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.UI.Theme = "light"

	for _, name := range []string{"config.toml", "config.json"} {
		path := filepath.Join(dir, name)
		if err := Save(cfg, path); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		isJSON := strings.HasPrefix(strings.TrimSpace(string(data)), "{")
		if isJSON != strings.HasSuffix(name, ".json") {
			t.Errorf("%s written in the wrong format:\n%s", name, data)
		}
		got, err := LoadFromPath(path)
		if err != nil {
			t.Fatalf("LoadFromPath(%s): %v", name, err)
		}
		if got.UI.Theme != "light" {
			t.Errorf("%s: theme = %q, want light", name, got.UI.Theme)
		}
	}
}

func TestSave_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := Save(Default(), ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".kubewizard", "config.toml")); err != nil {
		t.Errorf("default file not written: %v", err)
	}
}

func TestReadFile_IgnoresEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[ui]\ntheme = \"light\"\n")
	t.Setenv("KUBEWIZARD_THEME", "dark")

	raw, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if raw.UI.Theme != "light" {
		t.Errorf("ReadFile theme = %q, want the file's light", raw.UI.Theme)
	}

	effective, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if effective.UI.Theme != "dark" {
		t.Errorf("LoadFromPath theme = %q, want the environment's dark", effective.UI.Theme)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[ui]\ntheme = \"dark\"\n")

	reloads := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		if err == nil {
			reloads <- cfg
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Unrelated files in the same directory are ignored.
	writeFile(t, filepath.Join(dir, "other.toml"), "x = 1\n")
	writeFile(t, path, "[ui]\ntheme = \"light\"\n")

	select {
	case cfg := <-reloads:
		if cfg.UI.Theme != "light" {
			t.Errorf("reloaded theme = %q, want light", cfg.UI.Theme)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatch_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[ui]\ntheme = \"dark\"\n")

	reloads := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	if err := Watch(ctx, path, func(cfg *Config, err error) {
		if err == nil {
			reloads <- cfg
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, path, "[ui]\ntheme = \"light\"\n")
	select {
	case cfg := <-reloads:
		if cfg.UI.Theme != "light" {
			t.Errorf("reloaded theme = %q, want light", cfg.UI.Theme)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.toml"), func(*Config, error) {})
	if err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
