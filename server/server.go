/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package server exposes the JSON-over-HTTP surface: the webhook receiver
// and the administrative bulk endpoints. Transport concerns live here;
// decisions live in the events, weekreconciler and bulk packages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"github.com/dalestudy/weekbot/bulk"
	"github.com/dalestudy/weekbot/events"
	"github.com/dalestudy/weekbot/githubauth"
)

// Backend runs the actions behind the HTTP surface. The production
// implementation mints a fresh installation token per call; tests substitute
// fakes.
type Backend interface {
	CheckWeeks(ctx context.Context, owner, repo string) (bulk.CheckSummary, error)
	ApproveAll(ctx context.Context, owner, repo string, excludes []int) (bulk.ApproveSummary, error)
	MergeAll(ctx context.Context, owner, repo string, req bulk.MergeRequest) (bulk.MergeSummary, error)
	Classify(ctx context.Context, eventType string, payload []byte) (events.Ack, error)
}

// Server routes and validates requests.
type Server struct {
	backend       Backend
	org           string
	webhookSecret []byte
}

// New returns a Server. webhookSecret may be empty, in which case unsigned
// deliveries are accepted (useful for local testing only).
func New(backend Backend, org string, webhookSecret []byte) *Server {
	return &Server{backend: backend, org: org, webhookSecret: webhookSecret}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/check-weeks", s.post(s.handleCheckWeeks))
	mux.HandleFunc("/webhooks", s.post(s.handleWebhook))
	mux.HandleFunc("/approve-prs", s.post(s.handleApprove))
	mux.HandleFunc("/merge-prs", s.post(s.handleMerge))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "unknown route")
	})
	return mux
}

func (s *Server) post(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

type checkWeeksRequest struct {
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
}

func (s *Server) handleCheckWeeks(w http.ResponseWriter, r *http.Request) {
	var req checkWeeksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoOwner == "" || req.RepoName == "" {
		writeError(w, http.StatusBadRequest, "repo_owner and repo_name are required")
		return
	}
	if req.RepoOwner != s.org {
		writeError(w, http.StatusForbidden, "organization not allowed")
		return
	}

	summary, err := s.backend.CheckWeeks(r.Context(), req.RepoOwner, req.RepoName)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	for _, res := range summary.Results {
		countReconcile(res.Commented, res.Deleted)
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// Signature is verified over the raw body, constant-time, before any
	// parsing happens.
	payload, err := github.ValidatePayload(r, s.webhookSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	eventType := github.WebHookType(r)

	ack, err := s.backend.Classify(r.Context(), eventType, payload)
	switch {
	case errors.Is(err, events.ErrBadPayload):
		webhookDeliveries.WithLabelValues(eventType, "bad_payload").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		webhookDeliveries.WithLabelValues(eventType, "error").Inc()
		s.internalError(w, r, err)
		return
	case ack.Ignored != "":
		webhookDeliveries.WithLabelValues(eventType, "ignored").Inc()
	default:
		webhookDeliveries.WithLabelValues(eventType, "processed").Inc()
		countReconcile(ack.Commented, ack.Deleted)
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		events.Ack
	}{Success: true, Ack: ack})
}

type bulkRequest struct {
	RepoOwner   string `json:"repo_owner"`
	RepoName    string `json:"repo_name"`
	Excludes    []int  `json:"excludes"`
	Week        string `json:"week"`
	MergeMethod string `json:"merge_method"`
	AutoMerge   bool   `json:"auto_merge"`
}

// parseBulkRequest validates the fields shared by approve-prs and merge-prs.
// repo_owner is optional and defaults to the allowed organization.
func (s *Server) parseBulkRequest(r *http.Request) (bulkRequest, int, string) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, http.StatusBadRequest, "invalid request body"
	}
	if req.RepoName == "" {
		return req, http.StatusBadRequest, "repo_name is required"
	}
	if req.RepoOwner == "" {
		req.RepoOwner = s.org
	}
	if req.RepoOwner != s.org {
		return req, http.StatusForbidden, "organization not allowed"
	}
	return req, 0, ""
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, status, msg := s.parseBulkRequest(r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	summary, err := s.backend.ApproveAll(r.Context(), req.RepoOwner, req.RepoName, req.Excludes)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	bulkActions.WithLabelValues("approve", "approved").Add(float64(summary.Approved))
	bulkActions.WithLabelValues("approve", "skipped").Add(float64(summary.Skipped))
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	req, status, msg := s.parseBulkRequest(r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	if req.Week == "" {
		writeError(w, http.StatusBadRequest, "week is required")
		return
	}
	method, err := bulk.ParseMergeMethod(req.MergeMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.backend.MergeAll(r.Context(), req.RepoOwner, req.RepoName, bulk.MergeRequest{
		Week:      req.Week,
		Method:    method,
		Excludes:  req.Excludes,
		AutoMerge: req.AutoMerge,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	bulkActions.WithLabelValues("merge", "merged").Add(float64(summary.Merged))
	bulkActions.WithLabelValues("merge", "skipped").Add(float64(summary.Skipped))
	writeJSON(w, http.StatusOK, summary)
}

// internalError maps backend failures onto 500 with the upstream message
// embedded. Auth failures get their own code so operators can tell a broken
// App key from a broken query.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	clog.FromContext(r.Context()).Errorf("Request failed: %v", err)
	if errors.Is(err, githubauth.ErrNoInstallation) {
		writeError(w, http.StatusInternalServerError, "github app installation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
