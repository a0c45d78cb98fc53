/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs weekbot, the webhook-driven automation that keeps the
// study board's Week convention enforced on pull requests and offers bulk
// approve/merge operations gated by it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"

	"github.com/dalestudy/weekbot/githubauth"
	"github.com/dalestudy/weekbot/server"
)

type config struct {
	Port        int `env:"PORT,default=8080"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	// GitHub App credentials. The private key accepts both PKCS#1 and
	// PKCS#8 PEM encodings.
	GitHubAppID         int64  `env:"GITHUB_APP_ID,required"`
	GitHubAppPrivateKey string `env:"GITHUB_APP_PRIVATE_KEY,required"`
	WebhookSecret       string `env:"GITHUB_WEBHOOK_SECRET"`

	Org              string `env:"ALLOWED_ORG,default=DaleStudy"`
	Repo             string `env:"ALLOWED_REPO,default=leetcode-study"`
	MaintenanceLabel string `env:"MAINTENANCE_LABEL,default=maintenance"`

	// BotLogin is the login warnings are attributed to; BotMention triggers
	// the AI review path when it appears in a PR comment.
	BotLogin   string `env:"BOT_LOGIN,default=dalestudy-bot[bot]"`
	BotMention string `env:"BOT_MENTION,default=@dalestudy-bot"`

	// AnthropicAPIKey enables AI reviews when set.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL,default=claude-sonnet-4-5"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	auth, err := githubauth.New(cfg.GitHubAppID, []byte(cfg.GitHubAppPrivateKey), cfg.Org)
	if err != nil {
		clog.FatalContextf(ctx, "configuring github app auth: %v", err)
	}

	srv := server.New(newBackend(auth, cfg), cfg.Org, []byte(cfg.WebhookSecret))

	go serveMetrics(ctx, cfg.MetricsPort)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	clog.InfoContextf(ctx, "Starting weekbot on port %d (org=%s repo=%s)", cfg.Port, cfg.Org, cfg.Repo)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.ErrorContextf(ctx, "metrics server failed: %v", err)
	}
}
