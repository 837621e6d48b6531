// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared wiring from configuration to a ready chat façade.

package cli

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/molihua12345/KubeAgent/internal/archive"
	"github.com/molihua12345/KubeAgent/internal/backend"
	"github.com/molihua12345/KubeAgent/internal/chat"
	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/export"
	"github.com/molihua12345/KubeAgent/internal/logging"
	"github.com/molihua12345/KubeAgent/internal/session"
)

// logTarget selects where an app writes its log.
type logTarget int

const (
	// logToFile is used by the TUI, which owns the terminal.
	logToFile logTarget = iota
	// logToStderr is used by line-oriented commands, at warn unless
	// --log-level is given.
	logToStderr
)

// app is everything a command needs to talk to the backend.
type app struct {
	cfg        *config.Config
	configPath string // file to watch for reloads, empty if none exists
	log        *zap.Logger
	client     *backend.Client
	archive    *archive.Archive
	facade     *chat.Facade
}

// newApp loads configuration and builds the façade.
func newApp(stderr io.Writer, opts *rootOptions, target logTarget) (*app, error) {
	cfg, path, err := opts.loadConfig(stderr)
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg, target, opts.logLevel != "")

	client := backend.NewClient(&backend.ClientConfig{
		BaseURL:           cfg.Backend.URL,
		Timeout:           cfg.Backend.Timeout.Duration,
		ProbeTimeout:      cfg.Backend.ProbeTimeout.Duration,
		StreamTimeout:     cfg.Backend.StreamTimeout.Duration,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		UserAgent:         "kubewizard-chat/" + Version,
		Logger:            log,
	})

	var arch *archive.Archive
	if cfg.Archive.Enabled {
		arch, err = archive.Open(cfg.Archive.Path, archive.Options{Logger: log})
		if err != nil {
			log.Warn("archive unavailable", zap.String("path", cfg.Archive.Path), zap.Error(err))
			arch = nil
		}
	}

	storeOpts := session.DefaultOptions()
	storeOpts.DefaultTitle = cfg.Session.DefaultTitle
	storeOpts.PreviewLength = cfg.Session.PreviewLength

	exportOpts := export.DefaultOptions()
	exportOpts.OutputDir = cfg.Export.OutputDir
	exportOpts.Theme = cfg.UI.Theme

	f := chat.New(chat.Options{
		Backend: client,
		Store:   session.NewStore(storeOpts),
		MonitorOptions: connectivity.Options{
			Interval: cfg.Backend.ProbeInterval.Duration,
			Timeout:  cfg.Backend.ProbeTimeout.Duration,
			Logger:   log,
		},
		Archive:      arch,
		Export:       exportOpts,
		PinToOrigin:  cfg.Session.PinStreamToOrigin,
		SyncFallback: cfg.Backend.SyncFallback,
		Logger:       log,
	})

	log.Debug("app ready",
		zap.String("backend", cfg.Backend.URL),
		zap.String("config", path),
		zap.Bool("archive", arch != nil))

	return &app{
		cfg:        cfg,
		configPath: path,
		log:        log,
		client:     client,
		archive:    arch,
		facade:     f,
	}, nil
}

// Close releases the archive and flushes the log.
func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Warn("archive close failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// requireArchive returns the archive or chat.ErrNoArchive.
func (a *app) requireArchive() (*archive.Archive, error) {
	if a.archive == nil {
		return nil, chat.ErrNoArchive
	}
	return a.archive, nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// loadConfig reads --config or the default files, then applies the global
// flags. A broken default file is reported on stderr and defaults are used;
// a broken --config file is an error.
func (o *rootOptions) loadConfig(stderr io.Writer) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)

	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
		if err != nil {
			return nil, "", err
		}
		path = o.configPath
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, "", err
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
		}
		path = defaultConfigFile()
	}

	if o.backendURL != "" {
		cfg.Backend.URL = o.backendURL
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, path, nil
}

// defaultConfigFile returns the first existing default config file.
func defaultConfigFile() string {
	for _, locate := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		p, err := locate()
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// newLogger builds the logger for target. Logging never prevents a
// command from running.
func newLogger(cfg *config.Config, target logTarget, explicitLevel bool) *zap.Logger {
	var lc logging.Config
	switch target {
	case logToFile:
		if cfg.Logging.File == "" {
			return zap.NewNop()
		}
		lc = logging.FileConfig(cfg.Logging.Level, cfg.Logging.File)
	default:
		lc = logging.DefaultConfig()
		lc.Level = "warn"
		if explicitLevel {
			lc.Level = cfg.Logging.Level
		}
	}
	lc.Development = cfg.Logging.Development
	return logging.NewOrNop(lc)
}
