/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package githubauth mints short-lived GitHub App installation tokens for the
// study-group organization. Every call re-authenticates; tokens are never
// cached across invocations, so a leaked token ages out within GitHub's
// one-hour installation-token lifetime. Caching the token for its validity
// window would save one round trip per request and is a possible optimization,
// not a correctness requirement.
package githubauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// ErrNoInstallation is returned when the App has no installation on the
// configured organization.
var ErrNoInstallation = errors.New("githubauth: app is not installed on the organization")

// Provider exchanges the App's signing key for installation-scoped tokens.
type Provider struct {
	org    string
	apps   *ghinstallation.AppsTransport
	apiURL string
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a non-default API endpoint. Used for
// GitHub Enterprise and for tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.apiURL = url
	}
}

// New builds a Provider from the App ID and its private key in PEM form.
// Both PKCS#1 and PKCS#8 encodings are accepted; the encoding is detected
// from the PEM block headers.
func New(appID int64, privateKeyPEM []byte, org string, opts ...Option) (*Provider, error) {
	apps, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	p := &Provider{org: org, apps: apps}
	for _, opt := range opts {
		opt(p)
	}
	if p.apiURL != "" {
		apps.BaseURL = p.apiURL
	}
	return p, nil
}

// InstallationToken locates the App's installation on the configured
// organization and mints an access token scoped to it.
func (p *Provider) InstallationToken(ctx context.Context) (string, error) {
	client, err := p.appClient()
	if err != nil {
		return "", err
	}

	var inst *github.Installation
	opt := &github.ListOptions{PerPage: 100}
	for {
		installations, resp, err := client.Apps.ListInstallations(ctx, opt)
		if err != nil {
			return "", fmt.Errorf("listing installations: %w", err)
		}
		for _, in := range installations {
			if in.GetAccount().GetLogin() == p.org {
				inst = in
				break
			}
		}
		if inst != nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	if inst == nil {
		return "", fmt.Errorf("%w: %s", ErrNoInstallation, p.org)
	}

	tok, _, err := client.Apps.CreateInstallationToken(ctx, inst.GetID(), nil)
	if err != nil {
		return "", fmt.Errorf("creating installation token: %w", err)
	}
	if tok.GetToken() == "" {
		return "", errors.New("githubauth: token exchange response missing token")
	}
	return tok.GetToken(), nil
}

// Clients mints a fresh installation token and returns REST and GraphQL
// clients authenticated with it.
func (p *Provider) Clients(ctx context.Context) (*github.Client, *githubv4.Client, error) {
	token, err := p.InstallationToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	gh := github.NewClient(nil).WithAuthToken(token)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	if p.apiURL != "" {
		gh, err = gh.WithEnterpriseURLs(p.apiURL, p.apiURL)
		if err != nil {
			return nil, nil, fmt.Errorf("configuring enterprise URLs: %w", err)
		}
		return gh, githubv4.NewEnterpriseClient(p.apiURL+"graphql", httpClient), nil
	}
	return gh, githubv4.NewClient(httpClient), nil
}

// appClient returns a REST client that authenticates as the App itself,
// signing a short-lived RS256 assertion per request.
func (p *Provider) appClient() (*github.Client, error) {
	client := github.NewClient(&http.Client{Transport: p.apps})
	if p.apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(p.apiURL, p.apiURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise URLs: %w", err)
		}
	}
	return client, nil
}
