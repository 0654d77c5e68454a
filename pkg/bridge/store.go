// Copyright 2024-2026 Aiku AI

package bridge

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/util/jsontime"
)

// Record is the normalized, renderer-facing representation of one GitHub
// entity. Every value is a string; normalizers fill defaults for anything
// the payload omits so renderers never see a missing field.
type Record map[string]string

// ChannelRoute controls delivery for one key category. A category with no
// route entry at all is treated as disabled.
type ChannelRoute struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ChannelID string `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
}

// stateDocument is the on-disk shape of the store: one JSON document
// holding all three maps, rewritten in full on every mutation.
type stateDocument struct {
	Records    map[string]Record       `json:"records"`
	MessageIDs map[string]string       `json:"message_ids"`
	Routing    map[string]ChannelRoute `json:"routing"`
	SavedAt    jsontime.UnixMilli      `json:"saved_at"`
}

// Store keeps every normalized record, the key-to-post mapping, and the
// per-category routing table, mirrored to a single JSON file. The in-memory
// maps are authoritative: a failed flush is logged and the process keeps
// running on memory alone.
type Store struct {
	path string
	log  zerolog.Logger

	mu         sync.RWMutex
	records    map[string]Record
	messageIDs map[string]string
	routing    map[string]ChannelRoute
}

// LoadStore reads the state file at path, or starts empty when the file is
// missing. A malformed file is logged and replaced rather than failing
// startup.
func LoadStore(path string, log zerolog.Logger) *Store {
	s := &Store{
		path:       path,
		log:        log,
		records:    map[string]Record{},
		messageIDs: map[string]string{},
		routing:    map[string]ChannelRoute{},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info().Str("path", path).Msg("No state file found, starting empty")
		s.saveLocked()
		return s
	case err != nil:
		s.log.Error().Err(err).Str("path", path).Msg("Failed to read state file, starting empty")
		s.saveLocked()
		return s
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("State file is malformed, starting empty")
		s.saveLocked()
		return s
	}
	if doc.Records != nil {
		s.records = doc.Records
	}
	if doc.MessageIDs != nil {
		s.messageIDs = doc.MessageIDs
	}
	if doc.Routing != nil {
		s.routing = doc.Routing
	}
	return s
}

// saveLocked rewrites the whole document. Callers must hold s.mu for
// writing. Flush failures are logged, never returned: memory stays
// authoritative for the rest of the process lifetime.
func (s *Store) saveLocked() {
	doc := stateDocument{
		Records:    s.records,
		MessageIDs: s.messageIDs,
		Routing:    s.routing,
		SavedAt:    jsontime.UnixMilliNow(),
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal state")
		return
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Error().Err(err).Str("path", s.path).Msg("Failed to create state directory")
			return
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Error().Err(err).Str("path", tmp).Msg("Failed to write state file")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("Failed to replace state file")
	}
}

// UpsertRecord stores the latest normalized record for key and flushes. An
// existing record is overwritten whole, never merged.
func (s *Store) UpsertRecord(key string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	s.saveLocked()
}

// Record returns a copy of the record stored under key.
func (s *Store) Record(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, true
}

// SetMessageID records which post currently represents key and flushes.
// Overwriting an existing mapping is how the engine heals after a post it
// remembered has been deleted remotely.
func (s *Store) SetMessageID(key, postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageIDs[key] = postID
	s.saveLocked()
}

// MessageID returns the post ID previously recorded for key.
func (s *Store) MessageID(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.messageIDs[key]
	return id, ok
}

// Routing returns the routing entry for a key category. ok is false when
// the category has no entry, which callers must treat as disabled.
func (s *Store) Routing(category string) (ChannelRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	route, ok := s.routing[category]
	return route, ok
}

// SetEnabled flips delivery for a category, creating the entry when the
// category was never routed before. The channel override is preserved.
func (s *Store) SetEnabled(category string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	route := s.routing[category]
	route.Enabled = enabled
	s.routing[category] = route
	s.saveLocked()
}

// SetChannel points a category at a channel override without touching its
// enabled flag. An empty channel ID clears the override so the category
// falls back to the default channel.
func (s *Store) SetChannel(category, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	route := s.routing[category]
	route.ChannelID = channelID
	s.routing[category] = route
	s.saveLocked()
}

// SeedRouting fills in routing entries for categories the store has never
// seen. Entries already present, typically loaded from disk, win over the
// seeds; the file is only rewritten when something was added.
func (s *Store) SeedRouting(seeds map[string]ChannelRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := false
	for category, route := range seeds {
		if _, ok := s.routing[category]; ok {
			continue
		}
		s.routing[category] = route
		added = true
	}
	if added {
		s.saveLocked()
	}
}

// RoutingSnapshot returns a copy of the full routing table.
func (s *Store) RoutingSnapshot() map[string]ChannelRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ChannelRoute, len(s.routing))
	for category, route := range s.routing {
		out[category] = route
	}
	return out
}

// Counts reports how many records and post mappings the store holds.
func (s *Store) Counts() (records, posts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), len(s.messageIDs)
}
