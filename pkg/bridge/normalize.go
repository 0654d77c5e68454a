// Copyright 2024-2026 Aiku AI

package bridge

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
)

// NormalizedEvent pairs an entity key with the freshly built record for it.
type NormalizedEvent struct {
	Key    string
	Record Record
}

// Normalizer turns one raw webhook payload into zero or more normalized
// events. Normalizers are total over their category's payload shape:
// missing fields become documented fallbacks, and an error is returned only
// when the category's discriminating object is absent altogether (or the
// payload is not valid JSON). A (nil, nil) return means the event is
// deliberately skipped.
type Normalizer func(payload []byte) ([]NormalizedEvent, error)

// Fallbacks shared by the normalizers. Every record field carries one of
// these when the payload omits the value, so renderers never branch on
// absence.
const (
	unknownValue = "unknown"
	unknownRepo  = "unknown/unknown"
	noURL        = "#"
)

func repoName(r ghRepository) string {
	return cmp.Or(r.FullName, unknownRepo)
}

// idString renders a numeric GitHub object ID, keeping the "unknown"
// fallback for the zero value an absent field decodes to.
func idString(id int64) string {
	if id == 0 {
		return unknownValue
	}
	return strconv.FormatInt(id, 10)
}

func normalizePush(payload []byte) ([]NormalizedEvent, error) {
	var p ghPushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal push payload: %w", err)
	}
	repo := repoName(p.Repository)
	// One entity per commit: a force-pushed or re-delivered commit updates
	// the message it already owns instead of posting again.
	events := make([]NormalizedEvent, 0, len(p.Commits))
	for _, c := range p.Commits {
		events = append(events, NormalizedEvent{
			Key: EntityKey("push", c.ID),
			Record: Record{
				"message":        c.Message,
				"url":            cmp.Or(c.URL, noURL),
				"repo_full_name": repo,
			},
		})
	}
	return events, nil
}

func normalizeCheckRun(payload []byte) ([]NormalizedEvent, error) {
	var p ghCheckRunPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal check_run payload: %w", err)
	}
	if p.CheckRun == nil {
		return nil, fmt.Errorf("check_run event without check_run object")
	}
	return []NormalizedEvent{{
		Key: EntityKey("check_run", idString(p.CheckRun.ID)),
		Record: Record{
			"name":           cmp.Or(p.CheckRun.Name, "Unnamed Check"),
			"url":            cmp.Or(p.CheckRun.HTMLURL, noURL),
			"status":         cmp.Or(p.CheckRun.Status, unknownValue),
			"conclusion":     cmp.Or(p.CheckRun.Conclusion, unknownValue),
			"head_sha":       cmp.Or(p.CheckRun.HeadSHA, unknownValue),
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizeCheckSuite(payload []byte) ([]NormalizedEvent, error) {
	var p ghCheckSuitePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal check_suite payload: %w", err)
	}
	if p.CheckSuite == nil {
		return nil, fmt.Errorf("check_suite event without check_suite object")
	}
	return []NormalizedEvent{{
		Key: EntityKey("check_suite", idString(p.CheckSuite.ID)),
		Record: Record{
			"name":           cmp.Or(p.CheckSuite.Name, "Unnamed Check Suite"),
			"url":            cmp.Or(p.CheckSuite.HTMLURL, noURL),
			"status":         cmp.Or(p.CheckSuite.Status, unknownValue),
			"conclusion":     cmp.Or(p.CheckSuite.Conclusion, unknownValue),
			"head_sha":       cmp.Or(p.CheckSuite.HeadSHA, unknownValue),
			"repo_full_name": repoName(p.CheckSuite.Repository),
		},
	}}, nil
}

func normalizeWorkflowRun(payload []byte) ([]NormalizedEvent, error) {
	var p ghWorkflowRunPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal workflow_run payload: %w", err)
	}
	// In-progress and queued updates are suppressed: only the completed run
	// is worth a notification, and skipping early avoids edit storms.
	if p.Action != "completed" {
		return nil, nil
	}
	if p.WorkflowRun == nil {
		return nil, fmt.Errorf("workflow_run event without workflow_run object")
	}
	return []NormalizedEvent{{
		Key: EntityKey("workflow_run", idString(p.WorkflowRun.ID)),
		Record: Record{
			"name":           cmp.Or(p.WorkflowRun.Name, "Unnamed Workflow"),
			"status":         cmp.Or(p.WorkflowRun.Status, unknownValue),
			"conclusion":     cmp.Or(p.WorkflowRun.Conclusion, unknownValue),
			"url":            cmp.Or(p.WorkflowRun.HTMLURL, noURL),
			"started_at":     p.WorkflowRun.StartedAt,
			"completed_at":   p.WorkflowRun.CompletedAt,
			"head_sha":       cmp.Or(p.WorkflowRun.HeadSHA, unknownValue),
			"repo_full_name": repoName(p.WorkflowRun.Repository),
		},
	}}, nil
}

func normalizeWorkflowJob(payload []byte) ([]NormalizedEvent, error) {
	var p ghWorkflowJobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal workflow_job payload: %w", err)
	}
	if p.WorkflowJob == nil {
		return nil, fmt.Errorf("workflow_job event without workflow_job object")
	}
	return []NormalizedEvent{{
		Key: EntityKey("workflow_job", idString(p.WorkflowJob.ID)),
		Record: Record{
			"name":           cmp.Or(p.WorkflowJob.Name, "Unnamed Workflow Job"),
			"url":            cmp.Or(p.WorkflowJob.HTMLURL, noURL),
			"status":         cmp.Or(p.WorkflowJob.Status, unknownValue),
			"conclusion":     cmp.Or(p.WorkflowJob.Conclusion, unknownValue),
			"head_sha":       cmp.Or(p.WorkflowJob.HeadSHA, unknownValue),
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizePullRequest(payload []byte) ([]NormalizedEvent, error) {
	var p ghPullRequestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pull_request payload: %w", err)
	}
	if p.PullRequest == nil {
		return nil, fmt.Errorf("pull_request event without pull_request object")
	}
	return []NormalizedEvent{{
		Key: EntityKey("pull_request", strconv.Itoa(p.PullRequest.Number)),
		Record: Record{
			"title":          p.PullRequest.Title,
			"url":            cmp.Or(p.PullRequest.HTMLURL, noURL),
			"action":         cmp.Or(p.Action, unknownValue),
			"merged":         strconv.FormatBool(p.PullRequest.Merged),
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizePullRequestReview(payload []byte) ([]NormalizedEvent, error) {
	var p ghPullRequestReviewPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pull_request_review payload: %w", err)
	}
	if p.Review == nil {
		return nil, fmt.Errorf("pull_request_review event without review object")
	}
	reviewer := cmp.Or(p.Review.User.Login, unknownValue)
	url := cmp.Or(p.Review.HTMLURL, noURL)
	return []NormalizedEvent{{
		Key: EntityKey("pull_request_review", strconv.Itoa(p.PullRequest.Number), reviewer, url),
		Record: Record{
			"user":           reviewer,
			"url":            url,
			"action":         cmp.Or(p.Review.State, "commented"),
			"body":           p.Review.Body,
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizePullRequestReviewComment(payload []byte) ([]NormalizedEvent, error) {
	var p ghPullRequestReviewCommentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pull_request_review_comment payload: %w", err)
	}
	if p.Comment == nil {
		return nil, fmt.Errorf("pull_request_review_comment event without comment object")
	}
	commenter := cmp.Or(p.Comment.User.Login, unknownValue)
	url := cmp.Or(p.Comment.HTMLURL, noURL)
	return []NormalizedEvent{{
		Key: EntityKey("pull_request_review_comment", strconv.Itoa(p.PullRequest.Number), commenter, url),
		Record: Record{
			"user":           commenter,
			"url":            url,
			"body":           p.Comment.Body,
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

// normalizeIssues keys under the "issue" category: the key identifies the
// issue-action pair, so a reopen gets its own message instead of editing
// the opened one.
func normalizeIssues(payload []byte) ([]NormalizedEvent, error) {
	var p ghIssuesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal issues payload: %w", err)
	}
	if p.Issue == nil {
		return nil, fmt.Errorf("issues event without issue object")
	}
	action := cmp.Or(p.Action, unknownValue)
	return []NormalizedEvent{{
		Key: EntityKey("issue", strconv.Itoa(p.Issue.Number), action),
		Record: Record{
			"title":          p.Issue.Title,
			"url":            cmp.Or(p.Issue.HTMLURL, noURL),
			"action":         action,
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizeIssueComment(payload []byte) ([]NormalizedEvent, error) {
	var p ghIssueCommentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal issue_comment payload: %w", err)
	}
	if p.Comment == nil {
		return nil, fmt.Errorf("issue_comment event without comment object")
	}
	commenter := cmp.Or(p.Comment.User.Login, unknownValue)
	url := cmp.Or(p.Comment.HTMLURL, noURL)
	return []NormalizedEvent{{
		Key: EntityKey("issue_comment", strconv.Itoa(p.Issue.Number), commenter, url),
		Record: Record{
			"user":           commenter,
			"url":            url,
			"body":           p.Comment.Body,
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

// refURL builds the browse URL for a created or deleted ref. Only branches
// and tags have a stable address; anything else gets an empty string.
func refURL(refType, repo, ref string) string {
	switch refType {
	case "branch":
		return fmt.Sprintf("https://github.com/%s/tree/%s", repo, ref)
	case "tag":
		return fmt.Sprintf("https://github.com/%s/releases/tag/%s", repo, ref)
	default:
		return ""
	}
}

func normalizeRef(category string) Normalizer {
	return func(payload []byte) ([]NormalizedEvent, error) {
		var p ghRefPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", category, err)
		}
		refType := cmp.Or(p.RefType, unknownValue)
		ref := cmp.Or(p.Ref, unknownValue)
		repo := repoName(p.Repository)
		return []NormalizedEvent{{
			Key: EntityKey(category, ref),
			Record: Record{
				"ref_type":       refType,
				"ref":            ref,
				"user":           cmp.Or(p.Sender.Login, unknownValue),
				"ref_url":        refURL(refType, repo, ref),
				"repo_full_name": repo,
			},
		}}, nil
	}
}

func normalizeFork(payload []byte) ([]NormalizedEvent, error) {
	var p ghForkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal fork payload: %w", err)
	}
	if p.Forkee == nil {
		return nil, fmt.Errorf("fork event without forkee object")
	}
	repo := repoName(p.Repository)
	return []NormalizedEvent{{
		Key: EntityKey("fork", cmp.Or(p.Forkee.FullName, unknownValue)),
		Record: Record{
			"sender":         cmp.Or(p.Sender.Login, unknownValue),
			"repo_name":      repo,
			"forkee_name":    cmp.Or(p.Forkee.FullName, unknownValue),
			"forkee_url":     cmp.Or(p.Forkee.HTMLURL, noURL),
			"repo_full_name": repo,
		},
	}}, nil
}

func normalizeRelease(payload []byte) ([]NormalizedEvent, error) {
	var p ghReleasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal release payload: %w", err)
	}
	if p.Release == nil {
		return nil, fmt.Errorf("release event without release object")
	}
	name := cmp.Or(p.Release.Name, "No Name")
	return []NormalizedEvent{{
		Key: EntityKey("release", name),
		Record: Record{
			"action":         cmp.Or(p.Action, unknownValue),
			"name":           name,
			"url":            cmp.Or(p.Release.HTMLURL, noURL),
			"publisher":      cmp.Or(p.Sender.Login, unknownValue),
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizeRepository(payload []byte) ([]NormalizedEvent, error) {
	var p ghRepositoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal repository payload: %w", err)
	}
	if p.Repository == nil {
		return nil, fmt.Errorf("repository event without repository object")
	}
	name := cmp.Or(p.Repository.FullName, unknownRepo)
	return []NormalizedEvent{{
		Key: EntityKey("repository", name),
		Record: Record{
			"action":         cmp.Or(p.Action, unknownValue),
			"name":           name,
			"url":            cmp.Or(p.Repository.HTMLURL, noURL),
			"owner":          cmp.Or(p.Repository.Owner.Login, unknownValue),
			"repo_full_name": name,
		},
	}}, nil
}

func normalizeWatch(payload []byte) ([]NormalizedEvent, error) {
	var p ghWatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal watch payload: %w", err)
	}
	sender := cmp.Or(p.Sender.Login, unknownValue)
	repo := repoName(p.Repository)
	return []NormalizedEvent{{
		Key: EntityKey("watch", sender, repo),
		Record: Record{
			"action":         cmp.Or(p.Action, "starred"),
			"user":           sender,
			"repo_name":      repo,
			"repo_url":       cmp.Or(p.Repository.HTMLURL, noURL),
			"repo_full_name": repo,
		},
	}}, nil
}

func normalizeMember(payload []byte) ([]NormalizedEvent, error) {
	var p ghMemberPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal member payload: %w", err)
	}
	if p.Member == nil {
		return nil, fmt.Errorf("member event without member object")
	}
	login := cmp.Or(p.Member.Login, unknownValue)
	action := cmp.Or(p.Action, unknownValue)
	repo := repoName(p.Repository)
	return []NormalizedEvent{{
		Key: EntityKey("member", login, repo, action),
		Record: Record{
			"member_login":   login,
			"action":         action,
			"repo_full_name": repo,
			"repo_url":       cmp.Or(p.Repository.HTMLURL, noURL),
		},
	}}, nil
}

func normalizeCommitComment(payload []byte) ([]NormalizedEvent, error) {
	var p ghCommitCommentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal commit_comment payload: %w", err)
	}
	if p.Comment == nil {
		return nil, fmt.Errorf("commit_comment event without comment object")
	}
	sha := cmp.Or(p.Comment.CommitID, unknownValue)
	commenter := cmp.Or(p.Comment.User.Login, unknownValue)
	url := cmp.Or(p.Comment.HTMLURL, noURL)
	return []NormalizedEvent{{
		Key: EntityKey("commit_comment", sha, commenter, url),
		Record: Record{
			"commit_sha":     sha,
			"commenter":      commenter,
			"url":            url,
			"body":           p.Comment.Body,
			"repo_full_name": repoName(p.Repository),
		},
	}}, nil
}

func normalizePublic(payload []byte) ([]NormalizedEvent, error) {
	var p ghPublicPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal public payload: %w", err)
	}
	repo := repoName(p.Repository)
	return []NormalizedEvent{{
		Key: EntityKey("public", repo),
		Record: Record{
			"action":         cmp.Or(p.Action, "made public"),
			"repo_full_name": repo,
			"repo_url":       cmp.Or(p.Repository.HTMLURL, noURL),
			"sender":         cmp.Or(p.Sender.Login, unknownValue),
		},
	}}, nil
}
