/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"

	"github.com/dalestudy/weekbot/board"
	"github.com/dalestudy/weekbot/weekreconciler"
)

// PullRequestsAPI is the subset of the pull-request API the orchestrator
// needs. *github.PullRequestsService satisfies it.
type PullRequestsAPI interface {
	List(ctx context.Context, owner, repo string, opts *github.PullRequestListOptions) ([]*github.PullRequest, *github.Response, error)
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	ListReviews(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.PullRequestReview, *github.Response, error)
	CreateReview(ctx context.Context, owner, repo string, number int, review *github.PullRequestReviewRequest) (*github.PullRequestReview, *github.Response, error)
	Merge(ctx context.Context, owner, repo string, number int, commitMessage string, opts *github.PullRequestOptions) (*github.PullRequestMergeResult, *github.Response, error)
}

// BoardAPI is the board surface the orchestrator needs; *board.Reader
// satisfies it.
type BoardAPI interface {
	ProjectFields(ctx context.Context, owner, repo string, number int) (board.Fields, error)
	PullRequestNodeID(ctx context.Context, owner, repo string, number int) (string, error)
	EnableAutoMerge(ctx context.Context, prNodeID string, method githubv4.PullRequestMergeMethod) error
}

// WeekReconciler converges the warning comment for one PR.
type WeekReconciler interface {
	Reconcile(ctx context.Context, owner, repo string, number int) (weekreconciler.Outcome, error)
}

const approveBody = "Approved via weekbot bulk approval."

// Orchestrator runs bulk operations over all open PRs of one repository.
type Orchestrator struct {
	prs   PullRequestsAPI
	board BoardAPI
	rec   WeekReconciler

	maintenanceLabel string
	mergeRetries     int
	retryDelay       time.Duration
	sleep            func(context.Context, time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMergeRetries sets how many extra mergeability checks are attempted
// after the first one comes back inconclusive.
func WithMergeRetries(n int) Option {
	return func(o *Orchestrator) {
		o.mergeRetries = n
	}
}

// WithRetryDelay sets the pause between mergeability checks.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryDelay = d
	}
}

// New returns an Orchestrator. maintenanceLabel marks PRs that every bulk
// operation skips.
func New(prs PullRequestsAPI, brd BoardAPI, rec WeekReconciler, maintenanceLabel string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		prs:              prs,
		board:            brd,
		rec:              rec,
		maintenanceLabel: maintenanceLabel,
		mergeRetries:     3,
		retryDelay:       2 * time.Second,
		sleep:            wait,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is the per-PR outcome record shared by the bulk operations.
type Result struct {
	Number   int     `json:"number"`
	Title    string  `json:"title"`
	Week     *string `json:"week,omitempty"`
	Status   *string `json:"status,omitempty"`
	Skipped  bool    `json:"skipped,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Approved bool    `json:"approved,omitempty"`
	Merged   bool    `json:"merged,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// ApproveSummary aggregates an approve-all run.
type ApproveSummary struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Approved  int      `json:"approved"`
	Skipped   int      `json:"skipped"`
	Results   []Result `json:"results"`
}

// CheckResult is the per-PR entry of a week check.
type CheckResult struct {
	PR        int     `json:"pr"`
	Week      *string `json:"week"`
	Commented bool    `json:"commented"`
	Deleted   bool    `json:"deleted,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// CheckSummary aggregates a check-weeks run.
type CheckSummary struct {
	Success   bool          `json:"success"`
	TotalPRs  int           `json:"total_prs"`
	Checked   int           `json:"checked"`
	Commented int           `json:"commented"`
	Deleted   int           `json:"deleted"`
	Results   []CheckResult `json:"results"`
}

// CheckWeeks reconciles the warning comment for every open PR that is not
// maintenance-labeled.
func (o *Orchestrator) CheckWeeks(ctx context.Context, owner, repo string) (CheckSummary, error) {
	prs, err := o.listOpen(ctx, owner, repo)
	if err != nil {
		return CheckSummary{}, err
	}

	summary := CheckSummary{Success: true, TotalPRs: len(prs)}
	for _, pr := range prs {
		if hasLabel(pr, o.maintenanceLabel) {
			continue
		}
		summary.Checked++

		out, err := o.rec.Reconcile(ctx, owner, repo, pr.GetNumber())
		res := CheckResult{PR: pr.GetNumber(), Week: out.Week, Commented: out.Commented, Deleted: out.Deleted}
		if err != nil {
			res.Error = err.Error()
			clog.FromContext(ctx).With("pr", pr.GetNumber()).Errorf("Week check failed: %v", err)
		}
		if out.Commented {
			summary.Commented++
		}
		if out.Deleted {
			summary.Deleted++
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// ApproveAll approves every open PR that is not maintenance-labeled, not a
// draft and not already approved.
func (o *Orchestrator) ApproveAll(ctx context.Context, owner, repo string, excludes []int) (ApproveSummary, error) {
	prs, err := o.listOpen(ctx, owner, repo)
	if err != nil {
		return ApproveSummary{}, err
	}
	excluded := toSet(excludes)

	summary := ApproveSummary{Success: true}
	for _, pr := range prs {
		summary.Processed++
		res := Result{Number: pr.GetNumber(), Title: pr.GetTitle()}

		if reason := o.standardSkip(pr, excluded); reason != "" {
			res.Skipped = true
			res.Reason = reason
			summary.Skipped++
			summary.Results = append(summary.Results, res)
			continue
		}

		approved, err := o.hasApproval(ctx, owner, repo, pr.GetNumber())
		switch {
		case err != nil:
			res.Error = err.Error()
		case approved:
			res.Skipped = true
			res.Reason = "already approved"
			summary.Skipped++
		default:
			_, _, err := o.prs.CreateReview(ctx, owner, repo, pr.GetNumber(), &github.PullRequestReviewRequest{
				Event: github.Ptr("APPROVE"),
				Body:  github.Ptr(approveBody),
			})
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Approved = true
				summary.Approved++
			}
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// listOpen fetches all open PRs, paginated, oldest pages first so result
// ordering matches the API's default ordering deterministically.
func (o *Orchestrator) listOpen(ctx context.Context, owner, repo string) ([]*github.PullRequest, error) {
	opt := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var all []*github.PullRequest
	for {
		prs, resp, err := o.prs.List(ctx, owner, repo, opt)
		if err != nil {
			return nil, fmt.Errorf("listing open pull requests: %w", err)
		}
		all = append(all, prs...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opt.Page = resp.NextPage
	}
}

// standardSkip applies the filters shared by both bulk operations. An empty
// return means the PR should be processed.
func (o *Orchestrator) standardSkip(pr *github.PullRequest, excluded map[int]bool) string {
	switch {
	case excluded[pr.GetNumber()]:
		return "excluded by request"
	case hasLabel(pr, o.maintenanceLabel):
		return "maintenance"
	case pr.GetDraft():
		return "draft"
	}
	return ""
}

// hasApproval reports whether the PR has at least one approving review.
func (o *Orchestrator) hasApproval(ctx context.Context, owner, repo string, number int) (bool, error) {
	opt := &github.ListOptions{PerPage: 100}
	for {
		reviews, resp, err := o.prs.ListReviews(ctx, owner, repo, number, opt)
		if err != nil {
			return false, fmt.Errorf("listing reviews: %w", err)
		}
		for _, rv := range reviews {
			if rv.GetState() == "APPROVED" {
				return true, nil
			}
		}
		if resp.NextPage == 0 {
			return false, nil
		}
		opt.Page = resp.NextPage
	}
}

func hasLabel(pr *github.PullRequest, name string) bool {
	for _, l := range pr.Labels {
		if l.GetName() == name {
			return true
		}
	}
	return false
}

func toSet(nums []int) map[int]bool {
	set := make(map[int]bool, len(nums))
	for _, n := range nums {
		set[n] = true
	}
	return set
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
