/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package githubauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func pkcs1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func pkcs8PEM(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling PKCS#8: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestNewAcceptsBothKeyEncodings(t *testing.T) {
	key := testKey(t)
	for name, pemBytes := range map[string][]byte{
		"pkcs1": pkcs1PEM(key),
		"pkcs8": pkcs8PEM(t, key),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := New(12345, pemBytes, "DaleStudy"); err != nil {
				t.Errorf("New: %v", err)
			}
		})
	}
}

func TestNewRejectsInvalidKey(t *testing.T) {
	if _, err := New(12345, []byte("not a pem block"), "DaleStudy"); err == nil {
		t.Error("New accepted garbage key material")
	}
}

// appAPIServer fakes the two App endpoints the provider talks to. The token
// exchange body is caller-supplied so failure modes can be scripted.
func appAPIServer(t *testing.T, installations, tokenBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("request to %s missing app JWT, got Authorization %q", r.URL.Path, auth)
		}
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/app/installations"):
			io.WriteString(w, installations)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/access_tokens"):
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, tokenBody)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstallationToken(t *testing.T) {
	srv := appAPIServer(t,
		`[{"id": 3, "account": {"login": "SomeOtherOrg"}}, {"id": 7, "account": {"login": "DaleStudy"}}]`,
		`{"token": "ghs_testtoken", "expires_at": "2026-09-01T12:00:00Z"}`)

	p, err := New(12345, pkcs1PEM(testKey(t)), "DaleStudy", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := p.InstallationToken(context.Background())
	if err != nil {
		t.Fatalf("InstallationToken: %v", err)
	}
	if token != "ghs_testtoken" {
		t.Errorf("token = %q, want ghs_testtoken", token)
	}
}

func TestInstallationTokenNoInstallation(t *testing.T) {
	srv := appAPIServer(t, `[{"id": 3, "account": {"login": "SomeOtherOrg"}}]`, `{}`)

	p, err := New(12345, pkcs1PEM(testKey(t)), "DaleStudy", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.InstallationToken(context.Background()); !errors.Is(err, ErrNoInstallation) {
		t.Errorf("err = %v, want ErrNoInstallation", err)
	}
}

func TestInstallationTokenMissingFromResponse(t *testing.T) {
	srv := appAPIServer(t, `[{"id": 7, "account": {"login": "DaleStudy"}}]`, `{}`)

	p, err := New(12345, pkcs1PEM(testKey(t)), "DaleStudy", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.InstallationToken(context.Background()); err == nil {
		t.Error("InstallationToken succeeded on a tokenless response")
	}
}

func TestClients(t *testing.T) {
	srv := appAPIServer(t,
		`[{"id": 7, "account": {"login": "DaleStudy"}}]`,
		`{"token": "ghs_testtoken", "expires_at": "2026-09-01T12:00:00Z"}`)

	p, err := New(12345, pkcs1PEM(testKey(t)), "DaleStudy", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gh, gql, err := p.Clients(context.Background())
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if gh == nil || gql == nil {
		t.Error("Clients returned nil client")
	}
}
