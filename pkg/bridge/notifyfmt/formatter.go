// Copyright 2024-2026 Aiku AI

// Package notifyfmt renders normalized event records as Mattermost
// markdown. Rendering is pure: the same key, category, and record always
// produce the same text, which keeps edits idempotent.
package notifyfmt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxPayloadDump caps the JSON dump in the fallback layout so the message
// stays under Mattermost's post size limit.
const maxPayloadDump = 1800

// Options adjusts rendering across all categories.
type Options struct {
	// IncludeCategory appends a "Handled by" footer naming the webhook
	// category that produced the update.
	IncludeCategory bool
}

// Render formats the record stored under key as a Mattermost message. The
// layout is chosen by the key's category prefix; eventType only feeds the
// optional footer. Categories without a dedicated layout get a generic
// dump of the record.
func Render(key, eventType string, fields map[string]string, opts Options) string {
	kind := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		kind = key[:i]
	}

	var lines []string
	switch kind {
	case "push":
		url := field(fields, "url", "#")
		lines = []string{
			title(statusEmoji("success"), "Push to "+field(fields, "repo_full_name", "unknown/unknown"), url),
			"**Commit Message:** " + field(fields, "message", "(no message)"),
			"[View Commit](" + url + ")",
		}
	case "pull_request":
		url := field(fields, "url", "#")
		action := field(fields, "action", "unknown")
		status := action
		if fields["merged"] == "true" {
			status = "merged"
		}
		lines = []string{
			title(statusEmoji(status), "Pull Request: "+field(fields, "title", "(no title)"), url),
			"**Action:** " + capitalize(action),
			"**Repository:** " + field(fields, "repo_full_name", "unknown/unknown"),
			"[View PR](" + url + ")",
		}
	case "issue_comment":
		url := field(fields, "url", "#")
		lines = []string{
			title("💬", "Issue Comment by "+field(fields, "user", "unknown"), url),
			"**Comment:** " + field(fields, "body", ""),
			"[View Comment](" + url + ")",
		}
	case "commit_comment":
		sha := field(fields, "commit_sha", "unknown")
		commenter := field(fields, "commenter", "unknown")
		url := field(fields, "url", "#")
		repo := field(fields, "repo_full_name", "unknown/unknown")
		lines = []string{
			title(statusEmoji("commented"), "Commit Comment by "+commenter, url),
			fmt.Sprintf("**Commit SHA:** [%s](https://github.com/%s/commit/%s)", shortSHA(sha), repo, sha),
			"**Commenter:** " + commenter,
			"**Comment:** " + clip(field(fields, "body", ""), 80) + "...",
			"[View Comment](" + url + ")",
		}
	case "check_run":
		lines = statusCard(fields, "Check Run", "Unnamed Check")
	case "check_suite":
		lines = statusCard(fields, "Check Suite", "Unnamed Check Suite")
	case "workflow_run":
		lines = statusCard(fields, "Workflow Run", "Unnamed Workflow")
	case "workflow_job":
		lines = statusCard(fields, "Workflow Job", "Unnamed Workflow Job")
	case "create":
		lines = refCard(fields, true)
	case "delete":
		lines = refCard(fields, false)
	case "fork":
		forkeeURL := field(fields, "forkee_url", "#")
		lines = []string{
			title("🍴", "Repository Forked by "+field(fields, "sender", "unknown"), forkeeURL),
			"**Original Repository:** " + field(fields, "repo_name", "unknown/unknown"),
			fmt.Sprintf("**Forked Repository:** [%s](%s)", field(fields, "forkee_name", "unknown"), forkeeURL),
			"[View Fork](" + forkeeURL + ")",
		}
	case "release":
		action := field(fields, "action", "unknown")
		name := field(fields, "name", "No Name")
		url := field(fields, "url", "#")
		lines = []string{
			title("📦", "Release "+capitalize(action)+": "+name, url),
			"**Name:** " + name,
			"**Action:** " + capitalize(action),
			"**Publisher:** " + field(fields, "publisher", "unknown"),
			"[View Release](" + url + ")",
		}
	case "repository":
		action := field(fields, "action", "unknown")
		name := field(fields, "name", "unknown")
		url := field(fields, "url", "#")
		lines = []string{
			title("🏠", "Repository "+capitalize(action)+": "+name, url),
			fmt.Sprintf("**Repository:** [%s](%s)", name, url),
			"**Action:** " + capitalize(action),
			"**Owner:** " + field(fields, "owner", "unknown"),
			"[View Repository](" + url + ")",
		}
	case "watch":
		action := field(fields, "action", "starred")
		repoURL := field(fields, "repo_url", "#")
		lines = []string{
			title("⭐", capitalize(action)+" Repository", repoURL),
			"**User:** " + field(fields, "user", "unknown"),
			fmt.Sprintf("**Repository:** [%s](%s)", field(fields, "repo_name", "unknown"), repoURL),
			"[View Repository](" + repoURL + ")",
		}
	case "member":
		action := field(fields, "action", "unknown")
		repoURL := field(fields, "repo_url", "#")
		lines = []string{
			title("👥", "Member "+capitalize(action), repoURL),
			"**Member:** " + field(fields, "member_login", "unknown"),
			"**Action:** " + capitalize(action),
			fmt.Sprintf("**Repository:** [%s](%s)", field(fields, "repo_full_name", "unknown/unknown"), repoURL),
			"[View Repository](" + repoURL + ")",
		}
	default:
		lines = []string{
			"⚙️ **Other Event**",
			"No detailed storage for this event.",
		}
		if payload, err := json.MarshalIndent(fields, "", "  "); err != nil {
			lines = append(lines, "**Error:** failed to serialize event payload: "+err.Error())
		} else {
			dump := string(payload)
			if len(dump) > maxPayloadDump {
				dump = dump[:maxPayloadDump] + "...\n```json\n[Truncated]"
			}
			lines = append(lines, "**Event Payload**", "```json\n"+dump+"```")
		}
	}

	if opts.IncludeCategory && eventType != "" {
		lines = append(lines, "_Handled by: "+eventType+"_")
	}
	return strings.Join(lines, "\n")
}

// statusEmoji maps a status or conclusion to the indicator shown in
// message titles. Unrecognized values get the neutral marker.
func statusEmoji(status string) string {
	switch strings.ToLower(status) {
	case "completed", "success", "passed", "merged", "active", "commented", "approved":
		return "✅"
	case "in_progress", "queued", "waiting", "running", "started":
		return "⏳"
	case "failure", "failed", "error", "cancelled", "declined", "changes_requested":
		return "❌"
	default:
		return "ℹ️"
	}
}

// statusCard renders the shared check and workflow layout. The conclusion
// replaces the status once the run reports completed.
func statusCard(fields map[string]string, label, unnamed string) []string {
	url := field(fields, "url", "#")
	overall := field(fields, "status", "unknown")
	if overall == "completed" {
		overall = field(fields, "conclusion", "unknown")
	}
	return []string{
		title(statusEmoji(overall), label+": "+field(fields, "name", unnamed), url),
		"**Status:** " + capitalize(overall),
		fmt.Sprintf("[View %s](%s)", label, url),
	}
}

// refCard renders branch and tag creation or deletion.
func refCard(fields map[string]string, created bool) []string {
	refType := field(fields, "ref_type", "unknown")
	ref := field(fields, "ref", "unknown")
	refURL := field(fields, "ref_url", "#")
	verb, emoji := "Deleted", "➖"
	if created {
		verb, emoji = "Created", "➕"
	}
	if refType != "branch" {
		emoji = "🏷️"
	}
	return []string{
		title(emoji, capitalize(refType)+" "+verb+": "+ref, refURL),
		"**Type:** " + capitalize(refType),
		"**Reference:** " + ref,
		fmt.Sprintf("**%s By:** %s", verb, field(fields, "user", "unknown")),
		fmt.Sprintf("[View %s](%s)", capitalize(refType), refURL),
	}
}

// title builds the first message line. A real URL turns the text into a
// link; the "#" placeholder leaves it plain.
func title(emoji, text, url string) string {
	if url == "" || url == "#" {
		return emoji + " **" + text + "**"
	}
	return fmt.Sprintf("%s **[%s](%s)**", emoji, text, url)
}

func field(fields map[string]string, key, fallback string) string {
	if v, ok := fields[key]; ok {
		return v
	}
	return fallback
}

// capitalize upper-cases the first letter and lower-cases the rest, so
// raw webhook values like "in_progress" display as "In_progress".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
