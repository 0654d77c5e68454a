// Copyright 2024-2026 Aiku AI

package bridge

// GitHub webhook payload types. These are minimal structs that extract only
// the fields the normalizers need to build keys and records. They do not
// attempt to model the complete GitHub API; webhook payloads carry hundreds
// of fields that never reach a notification.
//
// JSON field names match GitHub's webhook payload documentation. Objects
// whose absence invalidates the whole event (the category's discriminating
// object) are pointers so normalizers can tell "missing" from "empty".

// ghUser is a GitHub user reference. Appears in sender, member, review and
// comment authors.
type ghUser struct {
	Login string `json:"login"`
}

// ghRepository is a GitHub repository reference.
type ghRepository struct {
	FullName string `json:"full_name"` // "owner/repo"
	HTMLURL  string `json:"html_url"`
	Owner    ghUser `json:"owner"`
}

// ghCommit is a commit within a push event.
type ghCommit struct {
	ID      string `json:"id"` // full SHA
	Message string `json:"message"`
	URL     string `json:"url"` // web URL
}

// ghPushPayload is the webhook payload for a "push" event.
type ghPushPayload struct {
	Repository ghRepository `json:"repository"`
	Commits    []ghCommit   `json:"commits"`
}

// ghCheckRun is a check run within a check_run event.
type ghCheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, ""
	HTMLURL    string `json:"html_url"`
	HeadSHA    string `json:"head_sha"`
}

// ghCheckRunPayload is the webhook payload for a "check_run" event.
type ghCheckRunPayload struct {
	CheckRun   *ghCheckRun  `json:"check_run"`
	Repository ghRepository `json:"repository"`
}

// ghCheckSuite is a check suite within a check_suite event.
type ghCheckSuite struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Status     string       `json:"status"`
	Conclusion string       `json:"conclusion"`
	HTMLURL    string       `json:"html_url"`
	HeadSHA    string       `json:"head_sha"`
	Repository ghRepository `json:"repository"`
}

// ghCheckSuitePayload is the webhook payload for a "check_suite" event.
type ghCheckSuitePayload struct {
	CheckSuite *ghCheckSuite `json:"check_suite"`
}

// ghWorkflowRun is a GitHub Actions run within a workflow_run event.
type ghWorkflowRun struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"` // workflow name
	Status      string       `json:"status"`
	Conclusion  string       `json:"conclusion"`
	HTMLURL     string       `json:"html_url"`
	StartedAt   string       `json:"started_at"`
	CompletedAt string       `json:"completed_at"`
	HeadSHA     string       `json:"head_sha"`
	Repository  ghRepository `json:"repository"`
}

// ghWorkflowRunPayload is the webhook payload for a "workflow_run" event.
type ghWorkflowRunPayload struct {
	Action      string         `json:"action"` // requested, in_progress, completed
	WorkflowRun *ghWorkflowRun `json:"workflow_run"`
}

// ghWorkflowJob is a single job within a workflow_job event.
type ghWorkflowJob struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HTMLURL    string `json:"html_url"`
	HeadSHA    string `json:"head_sha"`
}

// ghWorkflowJobPayload is the webhook payload for a "workflow_job" event.
type ghWorkflowJobPayload struct {
	WorkflowJob *ghWorkflowJob `json:"workflow_job"`
	Repository  ghRepository   `json:"repository"`
}

// ghPullRequest is a pull request reference. Reviews and review comments
// carry the same object, so the normalizers share it.
type ghPullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	Merged  bool   `json:"merged"` // only meaningful on close
}

// ghPullRequestPayload is the webhook payload for a "pull_request" event.
type ghPullRequestPayload struct {
	Action      string         `json:"action"` // opened, closed, synchronize, ...
	PullRequest *ghPullRequest `json:"pull_request"`
	Repository  ghRepository   `json:"repository"`
}

// ghReview is a submitted pull request review.
type ghReview struct {
	State   string `json:"state"` // approved, changes_requested, commented
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    ghUser `json:"user"`
}

// ghPullRequestReviewPayload is the webhook payload for a
// "pull_request_review" event.
type ghPullRequestReviewPayload struct {
	Review      *ghReview     `json:"review"`
	PullRequest ghPullRequest `json:"pull_request"`
	Repository  ghRepository  `json:"repository"`
}

// ghComment is a comment on an issue, pull request, review thread or
// commit. commit_id is only populated on commit comments.
type ghComment struct {
	Body     string `json:"body"`
	HTMLURL  string `json:"html_url"`
	User     ghUser `json:"user"`
	CommitID string `json:"commit_id"`
}

// ghPullRequestReviewCommentPayload is the webhook payload for a
// "pull_request_review_comment" event.
type ghPullRequestReviewCommentPayload struct {
	Comment     *ghComment    `json:"comment"`
	PullRequest ghPullRequest `json:"pull_request"`
	Repository  ghRepository  `json:"repository"`
}

// ghIssue is an issue reference within issues and issue_comment events.
type ghIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
}

// ghIssuesPayload is the webhook payload for an "issues" event.
type ghIssuesPayload struct {
	Action     string       `json:"action"` // opened, closed, reopened, ...
	Issue      *ghIssue     `json:"issue"`
	Repository ghRepository `json:"repository"`
}

// ghIssueCommentPayload is the webhook payload for an "issue_comment"
// event. Despite the name, this also fires for top-level comments on pull
// requests.
type ghIssueCommentPayload struct {
	Issue      ghIssue      `json:"issue"`
	Comment    *ghComment   `json:"comment"`
	Repository ghRepository `json:"repository"`
}

// ghRefPayload is the webhook payload shared by "create" and "delete"
// events (branch or tag lifecycle).
type ghRefPayload struct {
	Ref        string       `json:"ref"`      // branch or tag name
	RefType    string       `json:"ref_type"` // "branch" or "tag"
	Sender     ghUser       `json:"sender"`
	Repository ghRepository `json:"repository"`
}

// ghForkPayload is the webhook payload for a "fork" event.
type ghForkPayload struct {
	Forkee     *ghRepository `json:"forkee"` // the new fork
	Sender     ghUser        `json:"sender"`
	Repository ghRepository  `json:"repository"` // the upstream repo
}

// ghRelease is a release within a release event.
type ghRelease struct {
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// ghReleasePayload is the webhook payload for a "release" event.
type ghReleasePayload struct {
	Action     string       `json:"action"` // published, deleted, ...
	Release    *ghRelease   `json:"release"`
	Sender     ghUser       `json:"sender"`
	Repository ghRepository `json:"repository"`
}

// ghRepositoryPayload is the webhook payload for a "repository" event.
type ghRepositoryPayload struct {
	Action     string        `json:"action"` // created, deleted, archived, ...
	Repository *ghRepository `json:"repository"`
}

// ghWatchPayload is the webhook payload for a "watch" event (stars).
type ghWatchPayload struct {
	Action     string       `json:"action"` // always "started" upstream
	Sender     ghUser       `json:"sender"`
	Repository ghRepository `json:"repository"`
}

// ghMemberPayload is the webhook payload for a "member" event
// (collaborator changes).
type ghMemberPayload struct {
	Action     string       `json:"action"` // added, removed, edited
	Member     *ghUser      `json:"member"`
	Repository ghRepository `json:"repository"`
}

// ghCommitCommentPayload is the webhook payload for a "commit_comment"
// event.
type ghCommitCommentPayload struct {
	Comment    *ghComment   `json:"comment"`
	Repository ghRepository `json:"repository"`
}

// ghPublicPayload is the webhook payload for a "public" event (repository
// visibility flipped to public). GitHub sends no action field; the
// normalizer substitutes one so the record reads naturally.
type ghPublicPayload struct {
	Action     string       `json:"action"`
	Sender     ghUser       `json:"sender"`
	Repository ghRepository `json:"repository"`
}
