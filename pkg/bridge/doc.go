// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge implements a GitHub-to-Mattermost notification bridge.
//
// The key differentiator of this bridge is entity-keyed message ownership:
// every GitHub object (a commit, a check run, a pull request) owns at most
// one live Mattermost post. Follow-up webhook deliveries for the same
// object edit that post in place instead of flooding the channel, so a
// check run that goes queued, in_progress, completed occupies a single
// message whose content tracks the latest state. Routing is adjusted at
// runtime via chat commands (!github), the HTTP API at POST /api/routing,
// or a hot-reloaded config file.
//
// # Core Types
//
// [Bridge] assembles the webhook server, the sync engine, the command
// listener, and the config watcher into one runnable unit and owns their
// lifecycle.
//
// [WebhookHandler] terminates GitHub webhook HTTP deliveries: it verifies
// the X-Hub-Signature-256 HMAC, tags each delivery, and hands the raw
// payload to the [Dispatcher], which normalizes it into keyed records.
//
// [Engine] serializes all Mattermost writes through one worker. For each
// submitted key it decides between creating a post and editing the one the
// key already owns, and records the resulting post ID.
//
// [Store] keeps every normalized record, the key-to-post mapping, and the
// per-category routing table, mirrored to a single JSON file.
//
// [CommandListener] watches the Mattermost WebSocket for !github commands
// from admin users and mutates the routing table in response.
//
// # Entity Keys
//
// An entity key is the category followed by the object's discriminator
// values, joined with ":" (for example "push:4f2d9aa1b7c3"). The key is the
// unit of deduplication: the store maps it to a post ID, the engine edits
// rather than posts whenever the mapping exists, and redelivered webhooks
// therefore never produce duplicate messages. The discriminator fields per
// category are declared in one table (see [KeySchema]) and must not be
// derived ad hoc in normalizers.
//
// # Sub-packages
//
//   - notifyfmt renders normalized records as Mattermost markdown messages.
package bridge
