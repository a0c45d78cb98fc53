/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package review posts AI-generated review comments on pull requests when a
// member mentions the bot. The model call is a plain pass-through: one
// templated prompt in, one comment body out.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/go-github/v84/github"
)

// maxDiffBytes caps the diff bound into the prompt. Study solutions are
// small; anything past the cap is almost always vendored or generated noise.
const maxDiffBytes = 120 * 1024

const reviewHeader = "🤖 **AI review** (requested via mention)\n\n"

// PullRequestsAPI is the PR surface the reviewer needs; *github.PullRequestsService
// satisfies it.
type PullRequestsAPI interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	GetRaw(ctx context.Context, owner, repo string, number int, opts github.RawOptions) (string, *github.Response, error)
}

// CommentCreator posts the finished review; *github.IssuesService satisfies it.
type CommentCreator interface {
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

// Reviewer generates and posts one review per invocation.
type Reviewer struct {
	client anthropic.Client
	model  anthropic.Model
	prs    PullRequestsAPI
	issues CommentCreator
}

// New returns a Reviewer using the given API key and model name.
func New(apiKey, model string, prs PullRequestsAPI, issues CommentCreator) *Reviewer {
	return &Reviewer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		prs:    prs,
		issues: issues,
	}
}

// Review fetches the PR and its diff, asks the model for a review and posts
// it as an issue comment.
func (r *Reviewer) Review(ctx context.Context, owner, repo string, number int) error {
	pr, _, err := r.prs.Get(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("fetching PR: %w", err)
	}
	diff, _, err := r.prs.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return fmt.Errorf("fetching diff: %w", err)
	}

	prompt, err := renderPrompt(pr.GetTitle(), pr.GetBody(), diff)
	if err != nil {
		return err
	}

	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return fmt.Errorf("requesting completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return errors.New("review: completion contained no text")
	}

	_, _, err = r.issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(reviewHeader + sb.String()),
	})
	if err != nil {
		return fmt.Errorf("posting review comment: %w", err)
	}
	return nil
}

// renderPrompt binds PR metadata and a truncated diff into the template.
func renderPrompt(title, body, diff string) (string, error) {
	if len(diff) > maxDiffBytes {
		diff = diff[:maxDiffBytes] + "\n... (diff truncated)"
	}
	var sb strings.Builder
	if err := reviewPrompt.Execute(&sb, promptData{Title: title, Body: body, Diff: diff}); err != nil {
		return "", fmt.Errorf("rendering review prompt: %w", err)
	}
	return sb.String(), nil
}
