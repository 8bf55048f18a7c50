package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAdminToken = "s3cret"

func adminHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIHealthAndStatus(t *testing.T) {
	srv := newTestServer(t, testConfig())
	defer srv.Close()
	h := NewAPIServer(srv).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = doRequest(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status ServerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, srv.LocalAddr().String(), status.ListenAddr)
	assert.Zero(t, status.ActiveSessions)
	assert.False(t, status.LedgerEnabled)
}

func TestAPIMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig())
	defer srv.Close()
	srv.Metrics.RecordSessionStart()

	rec := doRequest(t, NewAPIServer(srv).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ttt_server_sessions_total 1")
}

func TestAPIGamesDisabled(t *testing.T) {
	srv := newTestServer(t, testConfig())
	defer srv.Close()

	rec := doRequest(t, NewAPIServer(srv).Handler(), http.MethodGet, "/api/v1/games", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIGames(t *testing.T) {
	cfg := testConfig()
	cfg.APIServer.DatabasePath = filepath.Join(t.TempDir(), "games.db")
	srv := newTestServer(t, cfg)
	defer srv.Close()
	h := NewAPIServer(srv).Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/games?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Games []GameRecord `json:"games"`
		Total int          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Total)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/games?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPITerminateRequiresToken(t *testing.T) {
	tests := []struct {
		name     string
		hash     bool
		token    string
		path     string
		expected int
	}{
		{name: "no hash configured", hash: false, token: testAdminToken, path: "/api/v1/sessions/127.0.0.1:5000", expected: http.StatusForbidden},
		{name: "missing token", hash: true, token: "", path: "/api/v1/sessions/127.0.0.1:5000", expected: http.StatusUnauthorized},
		{name: "wrong token", hash: true, token: "nope", path: "/api/v1/sessions/127.0.0.1:5000", expected: http.StatusUnauthorized},
		{name: "unknown session", hash: true, token: testAdminToken, path: "/api/v1/sessions/127.0.0.1:5000", expected: http.StatusNotFound},
		{name: "bad address", hash: true, token: testAdminToken, path: "/api/v1/sessions/localhost", expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.hash {
				cfg.APIServer.AdminTokenHash = adminHash(t)
			}
			srv := newTestServer(t, cfg)
			defer srv.Close()

			rec := doRequest(t, NewAPIServer(srv).Handler(), http.MethodDelete, tt.path, tt.token)
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestAPITerminateLiveSession(t *testing.T) {
	cfg := testConfig()
	cfg.APIServer.AdminTokenHash = adminHash(t)
	srv := startServer(t, cfg)
	h := NewAPIServer(srv).Handler()
	p := newPeer(t, srv)

	p.send("X")
	p.expect()
	remote := p.ep.LocalAddr().String()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), remote)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+remote, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, StatusActive, snapshot.Status)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/sessions/"+remote, testAdminToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 0
	}, 2*time.Second, 20*time.Millisecond)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+remote, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	p.send("1 5")
	p.expectNothing()
	assert.True(t, strings.HasPrefix(remote, "127.0.0.1:"))
}
