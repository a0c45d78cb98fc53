/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package bulk

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"

	"github.com/dalestudy/weekbot/board"
)

func TestWeekMatches(t *testing.T) {
	for _, tc := range []struct {
		actual *string
		filter string
		want   bool
	}{
		{week("Week 8"), "Week 8", true},
		{week("Week 8(current)"), "Week 8", true},
		{week("Week 8 (current)"), "Week 8", true},
		{week("Week 9"), "Week 8", false},
		{week("Week 7"), "Week 8", false},
		{nil, "Week 8", false},
	} {
		got := WeekMatches(tc.actual, tc.filter)
		if got != tc.want {
			t.Errorf("WeekMatches(%v, %q) = %v, want %v", tc.actual, tc.filter, got, tc.want)
		}
	}
}

func TestParseMergeMethod(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    MergeMethod
		wantErr bool
	}{
		{in: "", want: MethodMerge},
		{in: "merge", want: MethodMerge},
		{in: "squash", want: MethodSquash},
		{in: "rebase", want: MethodRebase},
		{in: "fast-forward", wantErr: true},
	} {
		got, err := ParseMergeMethod(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMergeMethod(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMergeMethod(%q): %v", tc.in, err)
		} else if got != tc.want {
			t.Errorf("ParseMergeMethod(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassifyMergeability(t *testing.T) {
	for _, tc := range []struct {
		name      string
		mergeable *bool
		state     string
		ready     bool
		retryable bool
		reason    string
	}{
		{name: "unknown", mergeable: nil, ready: false, retryable: true, reason: "mergeability unknown"},
		{name: "conflicted", mergeable: github.Ptr(false), ready: false, retryable: false, reason: "not mergeable"},
		{name: "clean", mergeable: github.Ptr(true), state: "clean", ready: true},
		{name: "state unknown", mergeable: github.Ptr(true), state: "unknown", retryable: true, reason: "mergeable_state unknown"},
		{name: "behind", mergeable: github.Ptr(true), state: "behind", retryable: true, reason: "mergeable_state behind"},
		{name: "blocked", mergeable: github.Ptr(true), state: "blocked", retryable: false, reason: "mergeable_state blocked"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := &github.PullRequest{Mergeable: tc.mergeable}
			if tc.state != "" {
				p.MergeableState = github.Ptr(tc.state)
			}
			ready, retryable, reason := classifyMergeability(p)
			if ready != tc.ready || retryable != tc.retryable || reason != tc.reason {
				t.Errorf("classifyMergeability = (%v, %v, %q), want (%v, %v, %q)",
					ready, retryable, reason, tc.ready, tc.retryable, tc.reason)
			}
		})
	}
}

func unknownState(number int, sha string) *github.PullRequest {
	return &github.PullRequest{
		Number: github.Ptr(number),
		Head:   &github.PullRequestBranch{SHA: github.Ptr(sha)},
	}
}

func cleanState(number int, sha string) *github.PullRequest {
	return clean(&github.PullRequest{
		Number: github.Ptr(number),
		Head:   &github.PullRequestBranch{SHA: github.Ptr(sha)},
	})
}

func TestAwaitMergeableRetriesUntilClean(t *testing.T) {
	prs := &fakePRs{
		pages: [][]*github.PullRequest{{pr(7, "x")}},
		getSeq: map[int][]*github.PullRequest{7: {
			unknownState(7, "old-sha"),
			unknownState(7, "old-sha"),
			cleanState(7, "new-sha"),
		}},
	}
	var slept []time.Duration
	o := newTestOrchestrator(prs, &fakeBoard{}, &fakeRec{}, &slept)

	got, reason, err := o.awaitMergeable(context.Background(), "DaleStudy", "leetcode-study", 7)
	if err != nil {
		t.Fatalf("awaitMergeable: %v", err)
	}
	if got == nil {
		t.Fatalf("awaitMergeable skipped with reason %q, want success", reason)
	}
	// The merge must use the head observed at the successful check.
	if sha := got.GetHead().GetSHA(); sha != "new-sha" {
		t.Errorf("head SHA = %q, want %q", sha, "new-sha")
	}
	if prs.getCalls[7] != 3 {
		t.Errorf("Get called %d times, want 3", prs.getCalls[7])
	}
	if want := []time.Duration{2 * time.Second, 2 * time.Second}; len(slept) != len(want) || slept[0] != want[0] {
		t.Errorf("slept = %v, want %v", slept, want)
	}
}

func TestAwaitMergeableNotMergeableIsTerminal(t *testing.T) {
	conflicted := unknownState(7, "sha")
	conflicted.Mergeable = github.Ptr(false)
	prs := &fakePRs{
		pages:  [][]*github.PullRequest{{pr(7, "x")}},
		getSeq: map[int][]*github.PullRequest{7: {conflicted}},
	}
	var slept []time.Duration
	o := newTestOrchestrator(prs, &fakeBoard{}, &fakeRec{}, &slept)

	got, reason, err := o.awaitMergeable(context.Background(), "DaleStudy", "leetcode-study", 7)
	if err != nil {
		t.Fatalf("awaitMergeable: %v", err)
	}
	if got != nil {
		t.Fatal("awaitMergeable succeeded on a conflicted PR")
	}
	if reason != "not mergeable" {
		t.Errorf("reason = %q, want %q", reason, "not mergeable")
	}
	if len(slept) != 0 {
		t.Errorf("slept %d times, want 0: a definitive conflict must not be retried", len(slept))
	}
}

func TestAwaitMergeableExhaustsRetries(t *testing.T) {
	prs := &fakePRs{
		pages:  [][]*github.PullRequest{{pr(7, "x")}},
		getSeq: map[int][]*github.PullRequest{7: {unknownState(7, "sha")}},
	}
	var slept []time.Duration
	o := newTestOrchestrator(prs, &fakeBoard{}, &fakeRec{}, &slept)

	got, reason, err := o.awaitMergeable(context.Background(), "DaleStudy", "leetcode-study", 7)
	if err != nil {
		t.Fatalf("awaitMergeable: %v", err)
	}
	if got != nil {
		t.Fatal("awaitMergeable succeeded, want exhaustion")
	}
	if reason != "mergeability unknown" {
		t.Errorf("reason = %q, want %q", reason, "mergeability unknown")
	}
	// One initial check plus three retries.
	if prs.getCalls[7] != 4 {
		t.Errorf("Get called %d times, want 4", prs.getCalls[7])
	}
	if len(slept) != 3 {
		t.Errorf("slept %d times, want 3", len(slept))
	}
}

func TestMergeAll(t *testing.T) {
	prs := &fakePRs{
		pages: [][]*github.PullRequest{{
			clean(pr(1, "week 8 ready")),
			draft(clean(pr(2, "week 8 but draft"))),
			clean(pr(3, "week 8 current, still solving")),
			clean(pr(4, "wrong week")),
			clean(pr(5, "no week at all")),
		}},
		reviews: map[int][]*github.PullRequestReview{
			1: approval(),
			2: approval(),
			3: approval(),
		},
	}
	brd := &fakeBoard{fields: map[int]board.Fields{
		1: {Week: week("Week 8"), Status: week("Done")},
		2: {Week: week("Week 8")},
		3: {Week: week("Week 8(current)"), Status: week("Solving")},
		4: {Week: week("Week 9")},
		5: {},
	}}
	o := newTestOrchestrator(prs, brd, &fakeRec{}, nil)

	summary, err := o.MergeAll(context.Background(), "DaleStudy", "leetcode-study", MergeRequest{
		Week:   "Week 8",
		Method: MethodSquash,
	})
	if err != nil {
		t.Fatalf("MergeAll: %v", err)
	}
	if got, want := summary.TotalOpen, 5; got != want {
		t.Errorf("TotalOpen = %d, want %d", got, want)
	}
	if got, want := summary.WeekMatched, 3; got != want {
		t.Errorf("WeekMatched = %d, want %d", got, want)
	}
	if got, want := summary.WeekMismatched, 2; got != want {
		t.Errorf("WeekMismatched = %d, want %d", got, want)
	}
	if got, want := summary.SolvingExcluded, 1; got != want {
		t.Errorf("SolvingExcluded = %d, want %d", got, want)
	}
	if got, want := summary.Processed, 1; got != want {
		t.Errorf("Processed = %d, want %d: draft and Solving PRs must not count", got, want)
	}
	if got, want := summary.Merged, 1; got != want {
		t.Errorf("Merged = %d, want %d", got, want)
	}
	if len(prs.merges) != 1 {
		t.Fatalf("merge calls = %v, want exactly one", prs.merges)
	}
	call := prs.merges[0]
	if call.number != 1 || call.method != "squash" || call.sha != "sha-week 8 ready" {
		t.Errorf("merge call = %+v, want PR 1 squashed at its head SHA", call)
	}
}

func TestMergeAllSkipsUnapproved(t *testing.T) {
	prs := &fakePRs{
		pages: [][]*github.PullRequest{{clean(pr(1, "unreviewed"))}},
	}
	brd := &fakeBoard{fields: map[int]board.Fields{1: {Week: week("Week 8")}}}
	o := newTestOrchestrator(prs, brd, &fakeRec{}, nil)

	summary, err := o.MergeAll(context.Background(), "DaleStudy", "leetcode-study", MergeRequest{Week: "Week 8", Method: MethodMerge})
	if err != nil {
		t.Fatalf("MergeAll: %v", err)
	}
	if summary.Merged != 0 || len(prs.merges) != 0 {
		t.Errorf("merged %d PRs, want 0", summary.Merged)
	}
	if got, want := summary.Results[0].Reason, "no approvals"; got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}
}

func TestMergeAllAutoMerge(t *testing.T) {
	prs := &fakePRs{
		pages:   [][]*github.PullRequest{{clean(pr(1, "queued"))}},
		reviews: map[int][]*github.PullRequestReview{1: approval()},
	}
	brd := &fakeBoard{
		fields:  map[int]board.Fields{1: {Week: week("Week 8")}},
		nodeIDs: map[int]string{1: "PR_node1"},
	}
	o := newTestOrchestrator(prs, brd, &fakeRec{}, nil)

	summary, err := o.MergeAll(context.Background(), "DaleStudy", "leetcode-study", MergeRequest{
		Week:      "Week 8",
		Method:    MethodSquash,
		AutoMerge: true,
	})
	if err != nil {
		t.Fatalf("MergeAll: %v", err)
	}
	if summary.Merged != 1 {
		t.Errorf("Merged = %d, want 1", summary.Merged)
	}
	if len(prs.merges) != 0 {
		t.Errorf("direct merge calls = %v, want none with auto-merge enabled", prs.merges)
	}
	if len(brd.autoMerged) != 1 || brd.autoMerged[0] != "PR_node1" {
		t.Errorf("auto-merged nodes = %v, want [PR_node1]", brd.autoMerged)
	}
	if brd.method != githubv4.PullRequestMergeMethodSquash {
		t.Errorf("auto-merge method = %v, want squash", brd.method)
	}
}

func TestMergeAllHonorsExcludes(t *testing.T) {
	prs := &fakePRs{
		pages:   [][]*github.PullRequest{{clean(pr(1, "excluded"))}},
		reviews: map[int][]*github.PullRequestReview{1: approval()},
	}
	brd := &fakeBoard{fields: map[int]board.Fields{1: {Week: week("Week 8")}}}
	o := newTestOrchestrator(prs, brd, &fakeRec{}, nil)

	summary, err := o.MergeAll(context.Background(), "DaleStudy", "leetcode-study", MergeRequest{
		Week:     "Week 8",
		Method:   MethodMerge,
		Excludes: []int{1},
	})
	if err != nil {
		t.Fatalf("MergeAll: %v", err)
	}
	if summary.Merged != 0 || summary.Skipped != 1 {
		t.Errorf("Merged = %d, Skipped = %d, want 0 and 1", summary.Merged, summary.Skipped)
	}
}
