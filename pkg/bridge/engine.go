// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// MessageSender is the outbound messaging surface the engine drives. The
// Mattermost client implements it; tests substitute a recorder.
type MessageSender interface {
	// SendMessage posts text to a channel and returns the new post's ID.
	SendMessage(ctx context.Context, channelID, text string) (string, error)
	// EditMessage replaces the text of an existing post. Returns
	// ErrMessageGone when the post no longer exists remotely.
	EditMessage(ctx context.Context, channelID, postID, text string) error
	// ResolveChannel verifies a channel exists and returns its ID. Returns
	// ErrChannelNotFound for unknown channels.
	ResolveChannel(ctx context.Context, channelID string) (string, error)
}

// RenderFunc turns a record into the message text for its notification.
type RenderFunc func(key, eventType string, rec Record) string

// Engine guarantees at most one live message per entity key. Webhook
// goroutines submit jobs; the single Run goroutine is the only execution
// context that touches the sender, so outbound calls are naturally
// serialized.
type Engine struct {
	log            zerolog.Logger
	store          *Store
	sender         MessageSender
	render         RenderFunc
	defaultChannel string
	queue          *jobQueue
}

// NewEngine wires the sync engine. defaultChannel receives every category
// that has no routing override.
func NewEngine(store *Store, sender MessageSender, render RenderFunc, defaultChannel string, log zerolog.Logger) *Engine {
	return &Engine{
		log:            log,
		store:          store,
		sender:         sender,
		render:         render,
		defaultChannel: defaultChannel,
		queue:          newJobQueue(),
	}
}

// Submit hands a sync job to the Run loop without blocking. Safe from any
// goroutine. Jobs submitted after shutdown are dropped with a log line.
func (e *Engine) Submit(key, eventType string, rec Record) {
	if !e.queue.Enqueue(syncJob{Key: key, EventType: eventType, Record: rec}) {
		e.log.Warn().Str("key", key).Msg("Engine stopped, dropping sync job")
	}
}

// QueueLen reports how many jobs are waiting for the Run loop.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run drains the job queue until ctx is cancelled or Stop is called. It
// must run in exactly one goroutine: it owns all outbound calls.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Msg("Sync engine started")
	for {
		job, ok := e.queue.TryDequeue()
		if ok {
			e.syncOne(ctx, job)
			continue
		}
		select {
		case <-ctx.Done():
			e.log.Info().Msg("Sync engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case _, open := <-e.queue.Wait():
			// A buffered token can outlive the job that sent it, so an
			// empty queue alone does not mean shutdown. Only a closed
			// channel with nothing left to drain does.
			if !open && e.queue.Len() == 0 {
				e.log.Info().Msg("Sync engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, letting Run drain what is left and return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// syncOne delivers one job: routing check, channel resolution, render,
// then send-or-edit. Failures are logged and dropped; the next event for
// the same key is the retry.
func (e *Engine) syncOne(ctx context.Context, job syncJob) {
	category := KeyCategory(job.Key)
	route, ok := e.store.Routing(category)
	if !ok || !route.Enabled {
		e.log.Debug().Str("category", category).Str("key", job.Key).Msg("Routing disabled, skipping delivery")
		return
	}

	channelID := route.ChannelID
	if channelID == "" {
		channelID = e.defaultChannel
	}
	channelID, err := e.sender.ResolveChannel(ctx, channelID)
	if err != nil {
		e.log.Error().Err(err).Str("category", category).Str("key", job.Key).Msg("Failed to resolve destination channel")
		return
	}

	text := e.render(job.Key, job.EventType, job.Record)

	postID, ok := e.store.MessageID(job.Key)
	if !ok {
		e.sendNew(ctx, job.Key, channelID, text)
		return
	}

	err = e.sender.EditMessage(ctx, channelID, postID, text)
	switch {
	case err == nil:
		e.log.Debug().Str("key", job.Key).Str("post_id", postID).Msg("Edited existing message")
	case errors.Is(err, ErrMessageGone):
		// The remembered post was deleted remotely. Re-send and remap so
		// the key has exactly one live message again.
		e.log.Info().Str("key", job.Key).Str("post_id", postID).Msg("Tracked message is gone, sending a new one")
		e.sendNew(ctx, job.Key, channelID, text)
	default:
		// Transient failure: keep the mapping so a later event for this
		// key retries the same post.
		e.log.Error().Err(err).Str("key", job.Key).Str("post_id", postID).Msg("Failed to edit message")
	}
}

func (e *Engine) sendNew(ctx context.Context, key, channelID, text string) {
	postID, err := e.sender.SendMessage(ctx, channelID, text)
	if err != nil {
		e.log.Error().Err(err).Str("key", key).Str("channel_id", channelID).Msg("Failed to send message")
		return
	}
	e.store.SetMessageID(key, postID)
	e.log.Debug().Str("key", key).Str("post_id", postID).Msg("Sent new message")
}
