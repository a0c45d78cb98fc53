/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package bulk

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"

	"github.com/dalestudy/weekbot/board"
)

const statusSolving = "Solving"

// MergeMethod is a validated merge strategy.
type MergeMethod string

// Supported merge methods.
const (
	MethodMerge  MergeMethod = "merge"
	MethodSquash MergeMethod = "squash"
	MethodRebase MergeMethod = "rebase"
)

// ParseMergeMethod validates a caller-supplied merge method. Empty input
// defaults to MethodMerge.
func ParseMergeMethod(s string) (MergeMethod, error) {
	switch MergeMethod(s) {
	case "":
		return MethodMerge, nil
	case MethodMerge, MethodSquash, MethodRebase:
		return MergeMethod(s), nil
	default:
		return "", fmt.Errorf("invalid merge_method %q: must be merge, squash or rebase", s)
	}
}

func (m MergeMethod) graphql() githubv4.PullRequestMergeMethod {
	switch m {
	case MethodSquash:
		return githubv4.PullRequestMergeMethodSquash
	case MethodRebase:
		return githubv4.PullRequestMergeMethodRebase
	default:
		return githubv4.PullRequestMergeMethodMerge
	}
}

// MergeRequest carries the caller-supplied parameters of a merge-all run.
type MergeRequest struct {
	// Week filters the PR set; mandatory.
	Week string
	// Method is the validated merge strategy.
	Method MergeMethod
	// Excludes lists PR numbers to skip.
	Excludes []int
	// AutoMerge enables GitHub auto-merge instead of merging directly, for
	// repositories that defer to a merge queue.
	AutoMerge bool
}

// MergeSummary aggregates a merge-all run.
type MergeSummary struct {
	Success         bool     `json:"success"`
	TotalOpen       int      `json:"total_open"`
	WeekMatched     int      `json:"week_matched"`
	WeekMismatched  int      `json:"week_mismatched"`
	SolvingExcluded int      `json:"solving_excluded"`
	Processed       int      `json:"processed"`
	Merged          int      `json:"merged"`
	Skipped         int      `json:"skipped"`
	Results         []Result `json:"results"`
}

// WeekMatches applies the permissive week equality rule: exact match, a
// "(current)"-suffixed variant of the filter, or the filter being a prefix of
// the actual value once a trailing "(current)" is stripped. A nil actual
// value never matches.
func WeekMatches(actual *string, filter string) bool {
	if actual == nil {
		return false
	}
	a := *actual
	if a == filter {
		return true
	}
	if strings.HasPrefix(a, filter+"(") {
		return true
	}
	stripped := strings.TrimSpace(strings.TrimSuffix(a, "(current)"))
	return strings.HasPrefix(stripped, filter)
}

// MergeAll merges every open PR whose Week matches req.Week, subject to the
// standard skip filters, a Status != "Solving" requirement and at least one
// approving review. Mergeability is polled per PR; see awaitMergeable.
func (o *Orchestrator) MergeAll(ctx context.Context, owner, repo string, req MergeRequest) (MergeSummary, error) {
	log := clog.FromContext(ctx)

	prs, err := o.listOpen(ctx, owner, repo)
	if err != nil {
		return MergeSummary{}, err
	}
	excluded := toSet(req.Excludes)

	summary := MergeSummary{Success: true, TotalOpen: len(prs)}
	type candidate struct {
		pr     *github.PullRequest
		fields board.Fields
	}
	var candidates []candidate

	for _, pr := range prs {
		fields, err := o.board.ProjectFields(ctx, owner, repo, pr.GetNumber())
		if err != nil {
			summary.Results = append(summary.Results, Result{
				Number: pr.GetNumber(), Title: pr.GetTitle(), Error: err.Error(),
			})
			continue
		}
		if !WeekMatches(fields.Week, req.Week) {
			summary.WeekMismatched++
			continue
		}
		summary.WeekMatched++

		if fields.Status != nil && *fields.Status == statusSolving {
			summary.SolvingExcluded++
			summary.Results = append(summary.Results, Result{
				Number: pr.GetNumber(), Title: pr.GetTitle(),
				Week: fields.Week, Status: fields.Status,
				Skipped: true, Reason: "status is Solving",
			})
			continue
		}
		candidates = append(candidates, candidate{pr: pr, fields: fields})
	}

	for _, c := range candidates {
		pr := c.pr
		res := Result{Number: pr.GetNumber(), Title: pr.GetTitle(), Week: c.fields.Week, Status: c.fields.Status}

		if reason := o.standardSkip(pr, excluded); reason != "" {
			res.Skipped = true
			res.Reason = reason
			summary.Skipped++
			summary.Results = append(summary.Results, res)
			continue
		}
		summary.Processed++

		approved, err := o.hasApproval(ctx, owner, repo, pr.GetNumber())
		if err != nil {
			res.Error = err.Error()
			summary.Results = append(summary.Results, res)
			continue
		}
		if !approved {
			res.Skipped = true
			res.Reason = "no approvals"
			summary.Skipped++
			summary.Results = append(summary.Results, res)
			continue
		}

		fresh, reason, err := o.awaitMergeable(ctx, owner, repo, pr.GetNumber())
		if err != nil {
			res.Error = err.Error()
			summary.Results = append(summary.Results, res)
			continue
		}
		if fresh == nil {
			res.Skipped = true
			res.Reason = reason
			summary.Skipped++
			summary.Results = append(summary.Results, res)
			continue
		}

		if err := o.merge(ctx, owner, repo, fresh, req); err != nil {
			res.Error = err.Error()
		} else {
			res.Merged = true
			summary.Merged++
			log.With("pr", pr.GetNumber()).With("method", string(req.Method)).Info("Merged pull request")
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}

// merge executes the merge with the head SHA captured at the last successful
// mergeability check, so a head that moved since then is rejected upstream
// rather than merged blind.
func (o *Orchestrator) merge(ctx context.Context, owner, repo string, pr *github.PullRequest, req MergeRequest) error {
	if req.AutoMerge {
		nodeID, err := o.board.PullRequestNodeID(ctx, owner, repo, pr.GetNumber())
		if err != nil {
			return err
		}
		return o.board.EnableAutoMerge(ctx, nodeID, req.Method.graphql())
	}
	_, _, err := o.prs.Merge(ctx, owner, repo, pr.GetNumber(), "", &github.PullRequestOptions{
		SHA:         pr.GetHead().GetSHA(),
		MergeMethod: string(req.Method),
	})
	if err != nil {
		return fmt.Errorf("merging: %w", err)
	}
	return nil
}

// classifyMergeability maps the upstream mergeable/mergeable_state pair onto
// the poll loop's decision. mergeable=false is terminal ("not mergeable");
// mergeable unknown is retryable; mergeable=true retries only while the
// computed state is still "unknown" or "behind".
func classifyMergeability(pr *github.PullRequest) (ready, retryable bool, reason string) {
	if pr.Mergeable == nil {
		return false, true, "mergeability unknown"
	}
	if !*pr.Mergeable {
		return false, false, "not mergeable"
	}
	switch state := pr.GetMergeableState(); state {
	case "clean":
		return true, false, ""
	case "unknown", "behind":
		return false, true, "mergeable_state " + state
	default:
		return false, false, "mergeable_state " + state
	}
}

// awaitMergeable polls the PR until it is cleanly mergeable or the retry
// budget runs out, re-querying fresh state each attempt. It returns the PR as
// observed at the successful check, or (nil, reason) when the PR should be
// skipped with the last observed reason.
func (o *Orchestrator) awaitMergeable(ctx context.Context, owner, repo string, number int) (*github.PullRequest, string, error) {
	var lastReason string
	for attempt := 0; ; attempt++ {
		pr, _, err := o.prs.Get(ctx, owner, repo, number)
		if err != nil {
			return nil, "", fmt.Errorf("fetching pull request: %w", err)
		}
		ready, retryable, reason := classifyMergeability(pr)
		if ready {
			return pr, "", nil
		}
		lastReason = reason
		if !retryable || attempt >= o.mergeRetries {
			return nil, lastReason, nil
		}
		if err := o.sleep(ctx, o.retryDelay); err != nil {
			return nil, lastReason, err
		}
	}
}
