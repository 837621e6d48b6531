// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events editors produce on save.
const DefaultWatchDebounce = 150 * time.Millisecond

// ReloadFunc receives a freshly loaded configuration, or the error that
// prevented loading it. A failed reload leaves the caller's config in place.
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
}

// NewWatcher creates a watcher for path. The parent directory is watched
// rather than the file itself so atomic-rename saves are seen.
func NewWatcher(path string, onReload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		debounce: DefaultWatchDebounce,
		watcher:  fw,
		onReload: onReload,
	}, nil
}

// Run delivers reloads until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cfg, err := LoadFromPath(w.path)
			w.onReload(cfg, err)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onReload(nil, err)
		}
	}
}

// Watch starts a Watcher for path on its own goroutine. It stops when ctx
// is cancelled.
func Watch(ctx context.Context, path string, fn ReloadFunc) error {
	w, err := NewWatcher(path, fn)
	if err != nil {
		return err
	}
	go w.Run(ctx)
	return nil
}
