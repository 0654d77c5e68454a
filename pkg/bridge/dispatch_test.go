// Copyright 2024-2026 Aiku AI

package bridge

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// recordingSubmitter captures engine submissions for assertions.
type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []syncJob
}

func (r *recordingSubmitter) Submit(key, eventType string, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, syncJob{Key: key, EventType: eventType, Record: rec})
}

func (r *recordingSubmitter) Jobs() []syncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]syncJob, len(r.jobs))
	copy(cp, r.jobs)
	return cp
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingSubmitter, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	sub := &recordingSubmitter{}
	return NewDispatcher(store, sub, zerolog.Nop()), sub, store
}

func TestDispatcherHandleEvent_PushFansOutPerCommit(t *testing.T) {
	t.Parallel()
	d, sub, store := newTestDispatcher(t)

	payload := []byte(`{
		"repository": {"full_name": "acme/widgets"},
		"commits": [
			{"id": "aaa111", "message": "first", "url": "https://example.com/aaa111"},
			{"id": "bbb222", "message": "second", "url": "https://example.com/bbb222"}
		]
	}`)
	d.HandleEvent("push", payload)

	jobs := sub.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Key != "push:aaa111" || jobs[1].Key != "push:bbb222" {
		t.Errorf("keys = %q, %q, want push:aaa111, push:bbb222", jobs[0].Key, jobs[1].Key)
	}
	for _, job := range jobs {
		if job.EventType != "push" {
			t.Errorf("eventType = %q, want push", job.EventType)
		}
	}
	rec, ok := store.Record("push:bbb222")
	if !ok {
		t.Fatal("record push:bbb222 not stored")
	}
	if rec["message"] != "second" {
		t.Errorf("message = %q, want %q", rec["message"], "second")
	}
}

func TestDispatcherHandleEvent_UnknownCategoryDropped(t *testing.T) {
	t.Parallel()
	d, sub, store := newTestDispatcher(t)

	d.HandleEvent("deployment_status", []byte(`{"deployment": {"id": 1}}`))

	if len(sub.Jobs()) != 0 {
		t.Errorf("jobs = %d, want 0", len(sub.Jobs()))
	}
	if records, _ := store.Counts(); records != 0 {
		t.Errorf("records = %d, want 0", records)
	}
}

func TestDispatcherHandleEvent_MalformedPayloadDropped(t *testing.T) {
	t.Parallel()
	d, sub, store := newTestDispatcher(t)

	d.HandleEvent("push", []byte(`{"repository": `))

	if len(sub.Jobs()) != 0 {
		t.Errorf("jobs = %d, want 0", len(sub.Jobs()))
	}
	if records, _ := store.Counts(); records != 0 {
		t.Errorf("records = %d, want 0", records)
	}
}

func TestDispatcherHandleEvent_MissingDiscriminatorDropped(t *testing.T) {
	t.Parallel()
	d, sub, store := newTestDispatcher(t)

	d.HandleEvent("check_run", []byte(`{"repository": {"full_name": "acme/widgets"}}`))

	if len(sub.Jobs()) != 0 {
		t.Errorf("jobs = %d, want 0", len(sub.Jobs()))
	}
	if records, _ := store.Counts(); records != 0 {
		t.Errorf("records = %d, want 0", records)
	}
}

func TestDispatcherHandleEvent_WorkflowRunPendingSkipped(t *testing.T) {
	t.Parallel()
	d, sub, store := newTestDispatcher(t)

	d.HandleEvent("workflow_run", []byte(`{
		"action": "requested",
		"workflow_run": {"id": 42, "name": "CI", "status": "queued"}
	}`))

	if len(sub.Jobs()) != 0 {
		t.Errorf("jobs = %d, want 0 for a pending run", len(sub.Jobs()))
	}
	if records, _ := store.Counts(); records != 0 {
		t.Errorf("records = %d, want 0", records)
	}
}

func TestDispatcherHandleEvent_WorkflowRunCompleted(t *testing.T) {
	t.Parallel()
	d, sub, _ := newTestDispatcher(t)

	d.HandleEvent("workflow_run", []byte(`{
		"action": "completed",
		"workflow_run": {"id": 42, "name": "CI", "status": "completed", "conclusion": "success"}
	}`))

	jobs := sub.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Key != "workflow_run:42" {
		t.Errorf("key = %q, want workflow_run:42", jobs[0].Key)
	}
}

func TestDispatcherHandleEvent_IssuesKeyIncludesAction(t *testing.T) {
	t.Parallel()
	d, sub, _ := newTestDispatcher(t)

	open := []byte(`{"action": "opened", "issue": {"number": 7, "title": "Crash"}, "repository": {"full_name": "acme/widgets"}}`)
	closed := []byte(`{"action": "closed", "issue": {"number": 7, "title": "Crash"}, "repository": {"full_name": "acme/widgets"}}`)
	d.HandleEvent("issues", open)
	d.HandleEvent("issues", closed)

	jobs := sub.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].Key == jobs[1].Key {
		t.Errorf("open and close share key %q, want distinct keys per action", jobs[0].Key)
	}
	if jobs[0].Key != "issue:7:opened" {
		t.Errorf("key = %q, want issue:7:opened", jobs[0].Key)
	}
}

func TestDispatcherHandleEvent_RepeatOverwritesRecord(t *testing.T) {
	t.Parallel()
	d, _, store := newTestDispatcher(t)

	first := []byte(`{"check_run": {"id": 9, "name": "build", "status": "queued", "details_url": "x"}, "repository": {"full_name": "acme/widgets"}}`)
	second := []byte(`{"check_run": {"id": 9, "name": "build", "status": "completed", "conclusion": "success"}, "repository": {"full_name": "acme/widgets"}}`)
	d.HandleEvent("check_run", first)
	d.HandleEvent("check_run", second)

	rec, ok := store.Record("check_run:9")
	if !ok {
		t.Fatal("record check_run:9 not stored")
	}
	if rec["status"] != "completed" || rec["conclusion"] != "success" {
		t.Errorf("record = %v, want completed/success", rec)
	}
}

func TestDispatcherRegistersAllCategories(t *testing.T) {
	t.Parallel()
	d, _, _ := newTestDispatcher(t)

	want := []string{
		"push", "check_run", "check_suite", "workflow_run", "workflow_job",
		"pull_request", "pull_request_review", "pull_request_review_comment",
		"issues", "issue_comment", "create", "delete", "fork", "release",
		"repository", "watch", "member", "commit_comment", "public",
	}
	got := make(map[string]bool)
	for _, c := range d.Categories() {
		got[c] = true
	}
	for _, c := range want {
		if !got[c] {
			t.Errorf("category %q not registered", c)
		}
	}
	if len(got) != len(want) {
		t.Errorf("registered %d categories, want %d", len(got), len(want))
	}
}
