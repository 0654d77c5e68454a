// Copyright 2024-2026 Aiku AI

package bridge

import (
	"github.com/rs/zerolog"
)

// submitter is the slice of the engine the dispatcher needs.
type submitter interface {
	Submit(key, eventType string, rec Record)
}

// Dispatcher normalizes raw webhook payloads and feeds the results into
// the store and the sync engine. It never propagates errors back to the
// webhook layer: a payload that cannot be handled is logged and dropped.
type Dispatcher struct {
	log         zerolog.Logger
	store       *Store
	engine      submitter
	normalizers map[string]Normalizer
}

// NewDispatcher builds a dispatcher with every supported event category
// registered.
func NewDispatcher(store *Store, engine submitter, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		log:         log.With().Str("component", "dispatcher").Logger(),
		store:       store,
		engine:      engine,
		normalizers: make(map[string]Normalizer),
	}
	d.Register("push", normalizePush)
	d.Register("check_run", normalizeCheckRun)
	d.Register("check_suite", normalizeCheckSuite)
	d.Register("workflow_run", normalizeWorkflowRun)
	d.Register("workflow_job", normalizeWorkflowJob)
	d.Register("pull_request", normalizePullRequest)
	d.Register("pull_request_review", normalizePullRequestReview)
	d.Register("pull_request_review_comment", normalizePullRequestReviewComment)
	d.Register("issues", normalizeIssues)
	d.Register("issue_comment", normalizeIssueComment)
	d.Register("create", normalizeRef("create"))
	d.Register("delete", normalizeRef("delete"))
	d.Register("fork", normalizeFork)
	d.Register("release", normalizeRelease)
	d.Register("repository", normalizeRepository)
	d.Register("watch", normalizeWatch)
	d.Register("member", normalizeMember)
	d.Register("commit_comment", normalizeCommitComment)
	d.Register("public", normalizePublic)
	return d
}

// Register binds a normalizer to an event category, replacing any previous
// binding.
func (d *Dispatcher) Register(category string, fn Normalizer) {
	d.normalizers[category] = fn
}

// Categories returns the registered event categories.
func (d *Dispatcher) Categories() []string {
	cats := make([]string, 0, len(d.normalizers))
	for c := range d.normalizers {
		cats = append(cats, c)
	}
	return cats
}

// HandleEvent processes one webhook delivery. Unknown categories and
// payloads the normalizer rejects are dropped without touching the store.
func (d *Dispatcher) HandleEvent(eventType string, payload []byte) {
	normalize, ok := d.normalizers[eventType]
	if !ok {
		d.log.Warn().Str("event_type", eventType).Msg("Unknown event category, dropping")
		return
	}

	events, err := normalize(payload)
	if err != nil {
		d.log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to normalize payload, dropping")
		return
	}
	if len(events) == 0 {
		d.log.Debug().Str("event_type", eventType).Msg("Payload produced no events")
		return
	}

	for _, ev := range events {
		d.store.UpsertRecord(ev.Key, ev.Record)
		d.engine.Submit(ev.Key, eventType, ev.Record)
	}
	d.log.Debug().Str("event_type", eventType).Int("events", len(events)).Msg("Dispatched events")
}
