/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package weekreconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/dalestudy/weekbot/board"
)

// WarningMarker identifies warning comments created by this service. It must
// stay stable across releases so old warnings can still be found and cleared.
const WarningMarker = "<!-- weekbot: missing-week-warning -->"

const warningBody = WarningMarker + `
⚠️ This pull request has no **Week** set on the study board.

Please set the Week iteration field on the project board so the PR is counted
toward the right study cycle. This comment is removed automatically once the
field is set.`

// FieldReader provides board field lookups for a pull request.
type FieldReader interface {
	ProjectFields(ctx context.Context, owner, repo string, number int) (board.Fields, error)
}

// IssuesAPI is the subset of the issue-comment API the reconciler needs.
// *github.IssuesService satisfies it.
type IssuesAPI interface {
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	DeleteComment(ctx context.Context, owner, repo string, commentID int64) (*github.Response, error)
}

// Outcome reports what one reconciliation observed and did.
type Outcome struct {
	// Week is the board value observed, nil when unset.
	Week *string
	// Commented is true when a new warning comment was created.
	Commented bool
	// Deleted is true when a stale warning comment was removed.
	Deleted bool
}

// Reconciler drives the warn/clear state machine for single pull requests.
type Reconciler struct {
	fields   FieldReader
	issues   IssuesAPI
	botLogin string
}

// New returns a Reconciler. botLogin is the login of the automation identity;
// only comments authored by it are ever treated as warnings.
func New(fields FieldReader, issues IssuesAPI, botLogin string) *Reconciler {
	return &Reconciler{fields: fields, issues: issues, botLogin: botLogin}
}

// Reconcile reads the board fields and converges the warning comment: week
// present clears it, week absent creates it. The returned Outcome carries the
// observed week so callers can report it.
func (r *Reconciler) Reconcile(ctx context.Context, owner, repo string, number int) (Outcome, error) {
	log := clog.FromContext(ctx).With("pr", number)

	fields, err := r.fields.ProjectFields(ctx, owner, repo, number)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Week: fields.Week}
	if fields.Week != nil {
		deleted, err := r.RemoveWarning(ctx, owner, repo, number)
		if err != nil {
			return out, err
		}
		out.Deleted = deleted
		if deleted {
			log.With("week", *fields.Week).Info("Week set, removed stale warning")
		}
		return out, nil
	}

	created, err := r.EnsureWarning(ctx, owner, repo, number)
	if err != nil {
		return out, err
	}
	out.Commented = created
	if created {
		log.Info("Week unset, posted warning")
	}
	return out, nil
}

// EnsureWarning creates the warning comment unless one already exists.
// Returns true when a comment was created.
func (r *Reconciler) EnsureWarning(ctx context.Context, owner, repo string, number int) (bool, error) {
	existing, err := r.findWarning(ctx, owner, repo, number)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	_, _, err = r.issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(warningBody),
	})
	if err != nil {
		return false, fmt.Errorf("creating warning comment: %w", err)
	}
	return true, nil
}

// RemoveWarning deletes the first warning comment found. Returns true when a
// comment was deleted, false when none existed.
func (r *Reconciler) RemoveWarning(ctx context.Context, owner, repo string, number int) (bool, error) {
	existing, err := r.findWarning(ctx, owner, repo, number)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if _, err := r.issues.DeleteComment(ctx, owner, repo, existing.GetID()); err != nil {
		return false, fmt.Errorf("deleting warning comment %d: %w", existing.GetID(), err)
	}
	return true, nil
}

// findWarning lists all comments and returns the first one authored by the
// bot whose body carries the marker. Existence is always recomputed from a
// fresh listing; nothing is cached.
func (r *Reconciler) findWarning(ctx context.Context, owner, repo string, number int) (*github.IssueComment, error) {
	opt := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := r.issues.ListComments(ctx, owner, repo, number, opt)
		if err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}
		for _, c := range comments {
			if c.GetUser().GetLogin() == r.botLogin && strings.Contains(c.GetBody(), WarningMarker) {
				return c, nil
			}
		}
		if resp.NextPage == 0 {
			return nil, nil
		}
		opt.Page = resp.NextPage
	}
}
