// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

// newTestBridge wires a full Bridge against a fakeMM server, with the push
// category already routed to the default channel.
func newTestBridge(t *testing.T) (*Bridge, *fakeMM) {
	t.Helper()
	f := newFakeMM()
	t.Cleanup(f.Close)
	f.Users["bot-user-id"] = &model.User{Id: "bot-user-id", Username: "github-bridge"}
	f.TokenToUser["test-token"] = "bot-user-id"
	f.Channels["default-channel"] = &model.Channel{Id: "default-channel", Name: "builds"}
	f.Channels["chan-9"] = &model.Channel{Id: "chan-9", Name: "ci"}

	cfg := &Config{
		ServerURL:      f.Server.URL,
		BotToken:       "test-token",
		DefaultChannel: "default-channel",
		AdminUsers:     []string{"admin"},
		WebhookSecret:  testWebhookSecret,
		StatePath:      filepath.Join(t.TempDir(), "state.json"),
		Routing:        map[string]ChannelRoute{"push": {Enabled: true}},
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return New(cfg, "", zerolog.Nop()), f
}

// startEngine runs the sync engine for the duration of the test.
func startEngine(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// postWebhook delivers a signed webhook through the bridge's HTTP mux.
func postWebhook(t *testing.T, mux http.Handler, eventType, deliveryID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := newWebhookRequest(body, map[string]string{
		"X-GitHub-Event":      eventType,
		"X-GitHub-Delivery":   deliveryID,
		"X-Hub-Signature-256": signPayload([]byte(testWebhookSecret), body),
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func waitForMessage(t *testing.T, f *fakeMM, postID, substr string) *model.Post {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if post, ok := f.Post(postID); ok && strings.Contains(post.Message, substr) {
			return post
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for post %s to contain %q", postID, substr)
	return nil
}

var testPushBody = []byte(`{
	"repository": {"full_name": "acme/widgets"},
	"commits": [
		{"id": "4f2d9aa1b7c3", "message": "Fix flaky retry test", "url": "https://github.com/acme/widgets/commit/4f2d9aa"}
	]
}`)

func TestBridgeDeliversPushEndToEnd(t *testing.T) {
	t.Parallel()
	b, f := newTestBridge(t)
	startEngine(t, b)
	mux := b.routes()

	if w := postWebhook(t, mux, "push", "delivery-1", testPushBody); w.Code != http.StatusOK {
		t.Fatalf("webhook status: got %d, want %d", w.Code, http.StatusOK)
	}

	post := waitForMessage(t, f, "post-1", "Push to acme/widgets")
	if post.ChannelId != "default-channel" {
		t.Errorf("post channel: got %q, want %q", post.ChannelId, "default-channel")
	}
	if !strings.Contains(post.Message, "Fix flaky retry test") {
		t.Errorf("post message missing commit message:\n%s", post.Message)
	}
	if strings.Contains(post.Message, "Handled by:") {
		t.Errorf("footer should be off by default:\n%s", post.Message)
	}

	if rec, ok := b.store.Record("push:4f2d9aa1b7c3"); !ok || rec["message"] != "Fix flaky retry test" {
		t.Errorf("stored record: got %+v, ok=%v", rec, ok)
	}
}

func TestBridgeRedeliveryEditsInsteadOfReposting(t *testing.T) {
	t.Parallel()
	b, f := newTestBridge(t)
	startEngine(t, b)
	mux := b.routes()

	postWebhook(t, mux, "push", "delivery-1", testPushBody)
	waitForMessage(t, f, "post-1", "Push to acme/widgets")

	// Same commit in a second delivery must update the existing post.
	postWebhook(t, mux, "push", "delivery-2", testPushBody)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.PathCount("/api/v4/posts/post-1/patch") > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.PathCount("/api/v4/posts/post-1/patch"); got == 0 {
		t.Fatal("second delivery should patch the existing post")
	}
	if _, ok := f.Post("post-2"); ok {
		t.Error("second delivery should not create a new post")
	}
}

func TestBridgeDisabledCategoryStoresRecordWithoutPosting(t *testing.T) {
	t.Parallel()
	b, f := newTestBridge(t)
	startEngine(t, b)
	mux := b.routes()
	b.store.SetEnabled("push", false)

	postWebhook(t, mux, "push", "delivery-1", testPushBody)

	// Dispatch is synchronous: the record lands before the response is
	// written, whatever the routing table says.
	if rec, ok := b.store.Record("push:4f2d9aa1b7c3"); !ok || rec["message"] != "Fix flaky retry test" {
		t.Fatalf("record for disabled category: got %+v, ok=%v", rec, ok)
	}

	deadline := time.Now().Add(5 * time.Second)
	for b.engine.QueueLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := f.PathCount("/posts"); got != 0 {
		t.Errorf("message endpoints hit %d times for a disabled category, want 0", got)
	}

	// Re-enabling and redelivering picks the stored record back up.
	b.store.SetEnabled("push", true)
	postWebhook(t, mux, "push", "delivery-2", testPushBody)
	waitForMessage(t, f, "post-1", "Push to acme/widgets")
}

func TestBridgeIncludeCategoryAppliedAtRuntime(t *testing.T) {
	t.Parallel()
	b, f := newTestBridge(t)
	startEngine(t, b)
	mux := b.routes()

	postWebhook(t, mux, "push", "delivery-1", testPushBody)
	waitForMessage(t, f, "post-1", "Push to acme/widgets")

	b.applyRuntimeConfig(&Config{IncludeCategory: true})

	postWebhook(t, mux, "push", "delivery-2", testPushBody)
	post := waitForMessage(t, f, "post-1", "Handled by: push")
	if !strings.Contains(post.Message, "Push to acme/widgets") {
		t.Errorf("edited post lost its body:\n%s", post.Message)
	}
}

func TestBridgeApplyRuntimeConfigSeedsRouting(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	b.store.SetEnabled("push", false)

	b.applyRuntimeConfig(&Config{
		IncludeCategory: true,
		Routing: map[string]ChannelRoute{
			"push":    {Enabled: true},
			"release": {Enabled: true, ChannelID: "chan-9"},
		},
	})

	// Persisted entries win over reloaded seeds.
	if route, _ := b.store.Routing("push"); route.Enabled {
		t.Error("reload must not overwrite the persisted push entry")
	}
	if route, ok := b.store.Routing("release"); !ok || !route.Enabled || route.ChannelID != "chan-9" {
		t.Errorf("release seed: got %+v, ok=%v", route, ok)
	}
	if !b.includeCategory.Load() {
		t.Error("include_category toggle should be applied")
	}
}

func TestBridgeRoutingGet(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	mux := b.routes()

	r := httptest.NewRequest(http.MethodGet, "/api/routing", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	var snapshot map[string]ChannelRoute
	if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if route, ok := snapshot["push"]; !ok || !route.Enabled {
		t.Errorf("push route: got %+v, ok=%v", route, ok)
	}
}

func TestBridgeRoutingUpdateEnabled(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	mux := b.routes()

	body := strings.NewReader(`{"category": "push", "enabled": false}`)
	r := httptest.NewRequest(http.MethodPost, "/api/routing", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	if route, _ := b.store.Routing("push"); route.Enabled {
		t.Error("push should be disabled after update")
	}
}

func TestBridgeRoutingUpdateChannel(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	mux := b.routes()

	body := strings.NewReader(`{"category": "push", "channel_id": "chan-9"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/routing", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	var route ChannelRoute
	if err := json.Unmarshal(w.Body.Bytes(), &route); err != nil {
		t.Fatalf("decode route: %v", err)
	}
	if route.ChannelID != "chan-9" {
		t.Errorf("response channel: got %q, want %q", route.ChannelID, "chan-9")
	}
	if stored, _ := b.store.Routing("push"); stored.ChannelID != "chan-9" {
		t.Errorf("stored channel: got %q, want %q", stored.ChannelID, "chan-9")
	}
}

func TestBridgeRoutingUpdateRejectsBadRequests(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"unknown category", `{"category": "nonsense", "enabled": true}`},
		{"invalid json", `{"category": `},
		{"nothing to update", `{"category": "push"}`},
		{"unresolvable channel", `{"category": "push", "channel_id": "ghost"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, _ := newTestBridge(t)
			mux := b.routes()

			r := httptest.NewRequest(http.MethodPost, "/api/routing", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestBridgeRoutingMethodNotAllowed(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	mux := b.routes()

	r := httptest.NewRequest(http.MethodDelete, "/api/routing", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestBridgeHealthz(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	mux := b.routes()

	// One accepted webhook with the engine stopped: the job sits in the
	// queue and the record is stored.
	postWebhook(t, mux, "push", "delivery-1", testPushBody)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status field: got %v, want ok", health["status"])
	}
	if health["records"] != float64(1) {
		t.Errorf("records: got %v, want 1", health["records"])
	}
	if health["queue_depth"] != float64(1) {
		t.Errorf("queue_depth: got %v, want 1", health["queue_depth"])
	}
}

func TestBridgeWebhookRejectsBadSignatureThroughMux(t *testing.T) {
	t.Parallel()
	b, _ := newTestBridge(t)
	mux := b.routes()

	r := newWebhookRequest(testPushBody, map[string]string{
		"X-GitHub-Event":      "push",
		"X-GitHub-Delivery":   "delivery-1",
		"X-Hub-Signature-256": "sha256=" + strings.Repeat("00", 32),
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if _, ok := b.store.Record("push:4f2d9aa1b7c3"); ok {
		t.Error("rejected delivery must not reach the store")
	}
}
