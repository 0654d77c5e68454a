// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/github-mattermost/pkg/bridge/notifyfmt"
)

// maxRoutingBodySize is the maximum allowed request body for routing
// updates (1 MB).
const maxRoutingBodySize = 1 << 20

// shutdownTimeout bounds how long Stop waits for the HTTP server and the
// sync engine.
const shutdownTimeout = 10 * time.Second

// Bridge assembles the webhook server, the sync engine, the command
// listener, and the config watcher into one runnable unit.
type Bridge struct {
	log        zerolog.Logger
	cfg        *Config
	configPath string

	store      *Store
	client     *Client
	engine     *Engine
	dispatcher *Dispatcher
	webhook    *WebhookHandler
	listener   *CommandListener
	watcher    *ConfigWatcher
	server     *http.Server

	categories      map[string]bool
	includeCategory atomic.Bool

	cancel     context.CancelFunc
	engineDone chan struct{}
}

// New wires a Bridge from a loaded config and seeds the routing table.
// configPath is watched for runtime changes once started; pass "" to
// disable hot-reload.
func New(cfg *Config, configPath string, log zerolog.Logger) *Bridge {
	b := &Bridge{
		log:        log,
		cfg:        cfg,
		configPath: configPath,
	}
	b.includeCategory.Store(cfg.IncludeCategory)

	b.store = LoadStore(cfg.StatePath, log.With().Str("component", "store").Logger())
	b.store.SeedRouting(cfg.Routing)
	b.client = NewClient(cfg.ServerURL, cfg.BotToken, log)

	// The render closure reads the footer toggle on every call so a config
	// reload affects the next message without restarting the engine.
	render := func(key, eventType string, rec Record) string {
		return notifyfmt.Render(key, eventType, rec, notifyfmt.Options{
			IncludeCategory: b.includeCategory.Load(),
		})
	}
	b.engine = NewEngine(b.store, b.client, render, cfg.DefaultChannel, log)
	b.dispatcher = NewDispatcher(b.store, b.engine, log)
	b.webhook = NewWebhookHandler([]byte(cfg.WebhookSecret), b.dispatcher, log)

	b.categories = make(map[string]bool)
	for _, category := range b.dispatcher.Categories() {
		b.categories[category] = true
	}
	return b
}

// Start verifies the Mattermost credentials and launches the sync engine,
// the command listener, the webhook server, and the config watcher. The
// returned error is fatal; after a nil return the bridge runs until Stop.
func (b *Bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	me, err := b.client.Me(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("mattermost credential check: %w", err)
	}
	b.log.Info().Str("username", me.Username).Str("user_id", me.Id).Msg("Authenticated to Mattermost")

	b.engineDone = make(chan struct{})
	go func() {
		defer close(b.engineDone)
		if err := b.engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.log.Error().Err(err).Msg("Sync engine stopped")
		}
	}()

	if len(b.cfg.AdminUsers) == 0 {
		b.log.Warn().Msg("No admin users configured, chat commands will be refused")
	}
	b.listener = NewCommandListener(b.client, b.store, b.cfg, b.dispatcher.Categories(), me.Id, b.log)
	go func() {
		if err := b.listener.Run(runCtx, b.client); err != nil && !errors.Is(err, context.Canceled) {
			b.log.Error().Err(err).Msg("Command listener stopped")
		}
	}()

	b.server = &http.Server{
		Addr:         b.cfg.ListenAddr,
		Handler:      b.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		b.log.Info().Str("addr", b.cfg.ListenAddr).Msg("Starting webhook server")
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error().Err(err).Msg("Webhook server error")
		}
	}()

	if b.configPath != "" {
		watcher, err := NewConfigWatcher(b.configPath, b.applyRuntimeConfig, b.log)
		if err != nil {
			b.log.Error().Err(err).Msg("Config hot-reload unavailable")
		} else {
			b.watcher = watcher
		}
	}
	return nil
}

// Stop shuts the HTTP server, drains the sync queue, and tears down the
// background goroutines. It blocks for at most shutdownTimeout.
func (b *Bridge) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if b.server != nil {
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
	}
	if b.watcher != nil {
		if err := b.watcher.Close(); err != nil {
			b.log.Warn().Err(err).Msg("Config watcher close failed")
		}
	}

	b.engine.Stop()
	if b.engineDone != nil {
		select {
		case <-b.engineDone:
		case <-shutdownCtx.Done():
			b.log.Warn().Msg("Timed out waiting for sync engine to drain")
		}
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.log.Info().Msg("Bridge stopped")
}

// applyRuntimeConfig is the hot-reload callback. Only settings that are
// safe to change while running are applied; everything else waits for a
// restart.
func (b *Bridge) applyRuntimeConfig(cfg *Config) {
	b.includeCategory.Store(cfg.IncludeCategory)
	b.store.SeedRouting(cfg.Routing)
	b.log.Info().
		Bool("include_category", cfg.IncludeCategory).
		Int("routing_seeds", len(cfg.Routing)).
		Msg("Applied runtime config")
}

// routes builds the HTTP surface served on ListenAddr.
func (b *Bridge) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/github-webhook", b.webhook)
	mux.HandleFunc("/api/routing", b.handleRouting)
	mux.HandleFunc("/healthz", b.handleHealthz)
	return mux
}

// routingUpdate is the POST /api/routing body. Absent fields keep their
// current value.
type routingUpdate struct {
	Category  string  `json:"category"`
	Enabled   *bool   `json:"enabled,omitempty"`
	ChannelID *string `json:"channel_id,omitempty"`
}

func (b *Bridge) handleRouting(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		b.writeJSON(w, b.store.RoutingSnapshot())
	case http.MethodPost:
		b.handleRoutingUpdate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (b *Bridge) handleRoutingUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRoutingBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	var update routingUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if !b.categories[update.Category] {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}
	if update.Enabled == nil && update.ChannelID == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	if update.ChannelID != nil && *update.ChannelID != "" {
		if _, err := b.client.ResolveChannel(r.Context(), *update.ChannelID); err != nil {
			b.log.Warn().Err(err).Str("channel_id", *update.ChannelID).Msg("Routing update with bad channel")
			http.Error(w, "channel not found", http.StatusBadRequest)
			return
		}
	}
	if update.Enabled != nil {
		b.store.SetEnabled(update.Category, *update.Enabled)
	}
	if update.ChannelID != nil {
		b.store.SetChannel(update.Category, *update.ChannelID)
	}
	b.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("category", update.Category).
		Msg("Routing updated over HTTP")

	route, _ := b.store.Routing(update.Category)
	b.writeJSON(w, route)
}

func (b *Bridge) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records, posts := b.store.Counts()
	b.writeJSON(w, map[string]any{
		"status":      "ok",
		"records":     records,
		"posts":       posts,
		"queue_depth": b.engine.QueueLen(),
	})
}

func (b *Bridge) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.log.Warn().Err(err).Msg("Failed to write response")
	}
}
