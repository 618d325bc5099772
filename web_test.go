/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/whopays/outcome"
)

func testConfig() *Config {
	return &Config{
		bind:             "127.0.0.1",
		port:             8080,
		revealDelay:      20 * time.Millisecond,
		confettiDuration: 50 * time.Millisecond,
	}
}

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *PartyManager) {
	t.Helper()

	errs := make(chan error, 64)
	mux, pm := newRouter(cfg, outcome.FixedPerm(nil), errs)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		pm.Close()
		srv.Close()
	})

	return srv, pm
}

func noRedirects() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := noRedirects().Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok\n", body)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'self'; connect-src 'self'; img-src 'self' data:", resp.Header.Get("Content-Security-Policy"))
}

func TestVersion(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/version")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "whopays v"+releaseVersion+"\n", body)
}

func TestHomeRedirectsToParty(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, _ := get(t, srv.URL+"/")

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/party", resp.Header.Get("Location"))
}

func TestNewPartyRedirect(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, _ := get(t, srv.URL+"/party")

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Regexp(t, regexp.MustCompile(`^/party/[A-Za-z0-9]{8}$`), resp.Header.Get("Location"))
}

func TestPartyPage(t *testing.T) {
	cfg := testConfig()
	cfg.prefix = "/split/"
	srv, _ := newTestServer(t, cfg)

	resp, body := get(t, srv.URL+"/split/party/abcd1234")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Who Pays the Bill?")
	assert.Contains(t, body, `href="/split/assets/party.css"`)
	assert.NotContains(t, body, "{{prefix}}")
}

func TestBrandPage(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/brand")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Stock copy")
	assert.Contains(t, body, "Friendship saved 💖")
}

func TestAssets(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/assets/party.js", http.StatusOK, "text/javascript; charset=utf-8"},
		{"/assets/party.css", http.StatusOK, "text/css; charset=utf-8"},
		{"/assets/brand.css", http.StatusOK, "text/css; charset=utf-8"},
		{"/assets/missing.js", http.StatusNotFound, "text/html; charset=utf-8"},
		{"/favicons/favicon.svg", http.StatusOK, "image/svg+xml"},
		{"/favicons/site.webmanifest", http.StatusOK, "application/manifest+json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := get(t, srv.URL+tt.path)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
		})
	}
}

func TestRobots(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/robots.txt")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Disallow: /party/")
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/nowhere")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Nothing to split here")
}

func TestInviteQR(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, body := get(t, srv.URL+"/party/abcd1234/qr")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, len(body) > 8 && body[1:4] == "PNG")
}

func TestResultQRWithoutResult(t *testing.T) {
	srv, pm := newTestServer(t, testConfig())

	resp, _ := get(t, srv.URL+"/party/nobody00/result.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	pm.getParty("quiet000")

	resp, _ = get(t, srv.URL+"/party/quiet000/result.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsToggle(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, _ := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cfg := testConfig()
	cfg.metrics = true
	srv, _ = newTestServer(t, cfg)

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "whopays_parties_active")
}

func TestProfileToggle(t *testing.T) {
	cfg := testConfig()
	cfg.profile = true
	srv, _ := newTestServer(t, cfg)

	resp, _ := get(t, srv.URL+"/pprof/cmdline")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote only", "10.0.0.1:5000", nil, "10.0.0.1:5000"},
		{"cloudflare", "10.0.0.1:5000", map[string]string{"CF-Connecting-IP": "203.0.113.9"}, "203.0.113.9:5000"},
		{"real ip", "10.0.0.1:5000", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2:5000"},
		{"bogus header", "10.0.0.1:5000", map[string]string{"X-Real-IP": "nope"}, "10.0.0.1:5000"},
		{"ipv6", "[::1]:5000", nil, "[::1]:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, realIP(r))
		})
	}
}
