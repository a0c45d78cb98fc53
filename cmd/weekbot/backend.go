/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"

	"github.com/dalestudy/weekbot/board"
	"github.com/dalestudy/weekbot/bulk"
	"github.com/dalestudy/weekbot/events"
	"github.com/dalestudy/weekbot/githubauth"
	"github.com/dalestudy/weekbot/review"
	"github.com/dalestudy/weekbot/weekreconciler"
)

// backend wires the production components behind the HTTP surface. Each call
// mints a fresh installation token and builds its collaborators from it; no
// client state survives between requests.
type backend struct {
	auth *githubauth.Provider
	cfg  config
}

func newBackend(auth *githubauth.Provider, cfg config) *backend {
	return &backend{auth: auth, cfg: cfg}
}

// components builds the per-request object graph.
type components struct {
	reader *board.Reader
	rec    *weekreconciler.Reconciler
	orch   *bulk.Orchestrator
	cls    *events.Classifier
}

func (b *backend) build(ctx context.Context) (*components, error) {
	gh, gql, err := b.auth.Clients(ctx)
	if err != nil {
		return nil, err
	}

	reader := board.NewReader(gql)
	rec := weekreconciler.New(reader, gh.Issues, b.cfg.BotLogin)
	orch := bulk.New(gh.PullRequests, reader, rec, b.cfg.MaintenanceLabel)

	opts := []events.Option{}
	if b.cfg.AnthropicAPIKey != "" {
		rev := review.New(b.cfg.AnthropicAPIKey, b.cfg.AnthropicModel, gh.PullRequests, gh.Issues)
		opts = append(opts, events.WithReviewer(rev, b.cfg.BotMention))
	}
	scope := events.Scope{
		Org:              b.cfg.Org,
		Repo:             b.cfg.Repo,
		MaintenanceLabel: b.cfg.MaintenanceLabel,
	}
	cls := events.New(scope, gh.PullRequests, reader, rec, opts...)

	return &components{reader: reader, rec: rec, orch: orch, cls: cls}, nil
}

func (b *backend) CheckWeeks(ctx context.Context, owner, repo string) (bulk.CheckSummary, error) {
	c, err := b.build(ctx)
	if err != nil {
		return bulk.CheckSummary{}, err
	}
	return c.orch.CheckWeeks(ctx, owner, repo)
}

func (b *backend) ApproveAll(ctx context.Context, owner, repo string, excludes []int) (bulk.ApproveSummary, error) {
	c, err := b.build(ctx)
	if err != nil {
		return bulk.ApproveSummary{}, err
	}
	return c.orch.ApproveAll(ctx, owner, repo, excludes)
}

func (b *backend) MergeAll(ctx context.Context, owner, repo string, req bulk.MergeRequest) (bulk.MergeSummary, error) {
	c, err := b.build(ctx)
	if err != nil {
		return bulk.MergeSummary{}, err
	}
	return c.orch.MergeAll(ctx, owner, repo, req)
}

func (b *backend) Classify(ctx context.Context, eventType string, payload []byte) (events.Ack, error) {
	c, err := b.build(ctx)
	if err != nil {
		return events.Ack{}, err
	}
	return c.cls.Classify(ctx, eventType, payload)
}
