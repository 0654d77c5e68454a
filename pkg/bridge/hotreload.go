// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives the freshly parsed config after the watched file
// changed on disk.
type ReloadFunc func(cfg *Config)

// ConfigWatcher re-reads the config file whenever it is written and hands
// the parsed result to a callback. The callback should apply only settings
// that are safe to change at runtime; credentials and listen addresses
// take effect on restart.
type ConfigWatcher struct {
	path     string
	log      zerolog.Logger
	onReload ReloadFunc
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewConfigWatcher starts watching the config file at path. Watching the
// parent directory instead of the file itself survives editors and config
// management tools that replace the file by rename.
func NewConfigWatcher(path string, onReload ReloadFunc, log zerolog.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &ConfigWatcher{
		path:     path,
		log:      log.With().Str("component", "config_watcher").Logger(),
		onReload: onReload,
		debounce: 500 * time.Millisecond,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	go w.run()
	w.log.Info().Str("path", path).Msg("Watching config file for changes")
	return w, nil
}

// Close stops the watcher. Closing twice is a no-op. A reload already
// dispatched by the debounce timer may still run to completion.
func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	close(w.done)
	return w.watcher.Close()
}

func (w *ConfigWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	w.scheduleReload()
}

// scheduleReload debounces bursts of filesystem events into one reload.
func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	// save=false: rewriting the file here would wake the watcher again.
	cfg, err := readConfig(w.path, false)
	if err != nil {
		w.log.Error().Err(err).Msg("Config reload failed, keeping previous settings")
		return
	}
	w.log.Info().Msg("Config file changed, applying runtime settings")
	w.onReload(cfg)
}
