/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/dalestudy/weekbot/weekreconciler"
)

// ErrBadPayload marks deliveries whose body could not be decoded as the
// declared event type. The transport layer maps it to a 400.
var ErrBadPayload = errors.New("events: malformed event payload")

// boardAttachDelay tolerates the race between "PR opened" and "PR attached
// to the board": attachment can lag creation, so the fields are read after a
// fixed pause.
const boardAttachDelay = 3 * time.Second

// Scope restricts which deliveries are acted upon.
type Scope struct {
	Org              string
	Repo             string
	MaintenanceLabel string
}

// PullRequestsAPI is the PR lookup the classifier needs for live state
// checks. *github.PullRequestsService satisfies it.
type PullRequestsAPI interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
}

// ItemResolver maps a project item's content node ID to a PR triple.
type ItemResolver interface {
	ResolveItem(ctx context.Context, contentNodeID string) (owner, repo string, number int, err error)
}

// WeekReconciler converges the warning comment for one PR.
type WeekReconciler interface {
	Reconcile(ctx context.Context, owner, repo string, number int) (weekreconciler.Outcome, error)
}

// Reviewer posts an AI review on a PR. Nil disables the feature.
type Reviewer interface {
	Review(ctx context.Context, owner, repo string, number int) error
}

// Ack is the structured acknowledgment returned for every delivery.
type Ack struct {
	Ignored   string  `json:"ignored,omitempty"`
	PR        int     `json:"pr,omitempty"`
	Week      *string `json:"week,omitempty"`
	Commented bool    `json:"commented,omitempty"`
	Deleted   bool    `json:"deleted,omitempty"`
	Reviewed  bool    `json:"reviewed,omitempty"`
}

// Classifier filters and dispatches webhook deliveries.
type Classifier struct {
	scope    Scope
	prs      PullRequestsAPI
	resolver ItemResolver
	rec      WeekReconciler
	reviewer Reviewer
	mention  string

	attachDelay time.Duration
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithReviewer enables the mention-triggered AI review path.
func WithReviewer(rev Reviewer, mention string) Option {
	return func(c *Classifier) {
		c.reviewer = rev
		c.mention = mention
	}
}

// New returns a Classifier for the given scope.
func New(scope Scope, prs PullRequestsAPI, resolver ItemResolver, rec WeekReconciler, opts ...Option) *Classifier {
	c := &Classifier{
		scope:       scope,
		prs:         prs,
		resolver:    resolver,
		rec:         rec,
		attachDelay: boardAttachDelay,
		sleep:       wait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify inspects one delivery and invokes the matching action. eventType
// is the transport's event discriminator (X-GitHub-Event).
func (c *Classifier) Classify(ctx context.Context, eventType string, payload []byte) (Ack, error) {
	switch eventType {
	case "projects_v2_item":
		return c.projectItem(ctx, payload)
	case "pull_request":
		return c.pullRequest(ctx, payload)
	case "issue_comment":
		return c.issueComment(ctx, payload)
	default:
		return ignored("unsupported event type: " + eventType), nil
	}
}

func ignored(reason string) Ack {
	return Ack{Ignored: reason}
}

// projectItem handles board attachment, removal and field edits. Removal is
// significant on its own: without a board item no Week can be set, so it is
// equivalent to "week absent". Attachment requires a fresh check since the
// Week may or may not have been set at attach time.
func (c *Classifier) projectItem(ctx context.Context, payload []byte) (Ack, error) {
	var ev projectItemEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if ev.Organization.Login != c.scope.Org {
		return ignored("organization " + ev.Organization.Login + " not allowed"), nil
	}
	switch ev.Action {
	case "created", "deleted":
		// Always significant; proceed.
	case "edited":
		if ev.Changes.FieldValue.FieldName != "Week" {
			return ignored("field " + ev.Changes.FieldValue.FieldName + " is not Week"), nil
		}
	default:
		return ignored("action " + ev.Action), nil
	}
	if ev.ProjectsV2Item.ContentType != "PullRequest" {
		return ignored("content type " + ev.ProjectsV2Item.ContentType), nil
	}

	// Resolution failure is a hard error: without the PR triple there is
	// nothing to warn or clear.
	owner, repo, number, err := c.resolver.ResolveItem(ctx, ev.ProjectsV2Item.ContentNodeID)
	if err != nil {
		return Ack{}, fmt.Errorf("resolving project item: %w", err)
	}
	if repo != c.scope.Repo {
		return ignored("repository " + repo + " not allowed"), nil
	}

	// Re-fetch live PR state before acting; board events can trail PR
	// lifecycle changes.
	pr, _, err := c.prs.Get(ctx, owner, repo, number)
	if err != nil {
		return Ack{}, fmt.Errorf("fetching pull request: %w", err)
	}
	if pr.GetState() == "closed" {
		return ignored("pull request closed"), nil
	}
	if hasLabel(pr, c.scope.MaintenanceLabel) {
		return ignored("maintenance label"), nil
	}

	return c.reconcile(ctx, owner, repo, number)
}

func (c *Classifier) pullRequest(ctx context.Context, payload []byte) (Ack, error) {
	var ev github.PullRequestEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if org := eventOrg(ev.GetOrganization(), ev.GetRepo()); org != c.scope.Org {
		return ignored("organization " + org + " not allowed"), nil
	}
	if repo := ev.GetRepo().GetName(); repo != "" && repo != c.scope.Repo {
		return ignored("repository " + repo + " not allowed"), nil
	}
	switch ev.GetAction() {
	case "opened", "reopened":
	default:
		return ignored("action " + ev.GetAction()), nil
	}
	if hasLabel(ev.GetPullRequest(), c.scope.MaintenanceLabel) {
		return ignored("maintenance label"), nil
	}

	if err := c.sleep(ctx, c.attachDelay); err != nil {
		return Ack{}, err
	}
	return c.reconcile(ctx, c.scope.Org, c.scope.Repo, ev.GetPullRequest().GetNumber())
}

func (c *Classifier) issueComment(ctx context.Context, payload []byte) (Ack, error) {
	var ev github.IssueCommentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if org := eventOrg(ev.GetOrganization(), ev.GetRepo()); org != c.scope.Org {
		return ignored("organization " + org + " not allowed"), nil
	}
	if repo := ev.GetRepo().GetName(); repo != "" && repo != c.scope.Repo {
		return ignored("repository " + repo + " not allowed"), nil
	}
	if c.reviewer == nil {
		return ignored("review disabled"), nil
	}
	if ev.GetAction() != "created" {
		return ignored("action " + ev.GetAction()), nil
	}
	if !ev.GetIssue().IsPullRequest() {
		return ignored("comment is not on a pull request"), nil
	}
	if !strings.Contains(ev.GetComment().GetBody(), c.mention) {
		return ignored("no mention"), nil
	}

	number := ev.GetIssue().GetNumber()
	if err := c.reviewer.Review(ctx, c.scope.Org, c.scope.Repo, number); err != nil {
		return Ack{}, fmt.Errorf("reviewing pull request: %w", err)
	}
	clog.FromContext(ctx).With("pr", number).Info("Posted AI review")
	return Ack{PR: number, Reviewed: true}, nil
}

func (c *Classifier) reconcile(ctx context.Context, owner, repo string, number int) (Ack, error) {
	out, err := c.rec.Reconcile(ctx, owner, repo, number)
	if err != nil {
		return Ack{}, err
	}
	return Ack{PR: number, Week: out.Week, Commented: out.Commented, Deleted: out.Deleted}, nil
}

// eventOrg prefers the payload's organization, falling back to the repo
// owner for deliveries without an organization block.
func eventOrg(org *github.Organization, repo *github.Repository) string {
	if login := org.GetLogin(); login != "" {
		return login
	}
	return repo.GetOwner().GetLogin()
}

func hasLabel(pr *github.PullRequest, name string) bool {
	for _, l := range pr.Labels {
		if l.GetName() == name {
			return true
		}
	}
	return false
}

// wait sleeps for d or until the context is done.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
