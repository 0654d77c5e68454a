// Copyright 2024-2026 Aiku AI

package bridge

import "strings"

// keySchemas declares, per key category, the ordered payload fields whose
// values form the entity key's discriminator. Normalizers must pass
// discriminator values to EntityKey in exactly this order; the table is the
// single place to audit how a category's identity is derived.
//
// The "issues" webhook event keys its entities under the "issue" category,
// so routing for issues events is toggled as "issue".
var keySchemas = map[string][]string{
	"push":                        {"commit sha"},
	"check_run":                   {"check run id"},
	"check_suite":                 {"check suite id"},
	"workflow_run":                {"workflow run id"},
	"workflow_job":                {"workflow job id"},
	"pull_request":                {"pr number"},
	"pull_request_review":         {"pr number", "reviewer login", "review url"},
	"pull_request_review_comment": {"pr number", "commenter login", "comment url"},
	"issue":                       {"issue number", "action"},
	"issue_comment":               {"issue number", "commenter login", "comment url"},
	"create":                      {"ref name"},
	"delete":                      {"ref name"},
	"fork":                        {"forkee full name"},
	"release":                     {"release name"},
	"repository":                  {"repo full name"},
	"watch":                       {"sender login", "repo full name"},
	"member":                      {"member login", "repo full name", "action"},
	"commit_comment":              {"commit sha", "commenter login", "comment url"},
	"public":                      {"repo full name"},
}

// EntityKey builds the stable identity string for an entity: the category
// followed by its discriminator values, all joined with ":". Discriminator
// values are not escaped, so a value containing ":" (composite keys embed
// URLs) can produce ambiguous keys. This is a known, accepted limitation of
// the key format rather than something the codec papers over.
func EntityKey(category string, discriminators ...string) string {
	if len(discriminators) == 0 {
		return category
	}
	return category + ":" + strings.Join(discriminators, ":")
}

// KeyCategory extracts the category prefix from an entity key.
func KeyCategory(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[:idx]
	}
	return key
}

// KeySchema returns the declared discriminator field list for a category,
// or nil if the category has no declared schema.
func KeySchema(category string) []string {
	return keySchemas[category]
}
