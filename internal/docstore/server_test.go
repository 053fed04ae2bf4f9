package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/growth/internal/remote"
)

func doRequest(t *testing.T, s *Server, method, path, body, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestServer_Healthz(t *testing.T) {
	s := NewServer(newTestRepository(t))

	status, body := doRequest(t, s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestServer_GetMissing(t *testing.T) {
	s := NewServer(newTestRepository(t))

	status, body := doRequest(t, s, http.MethodGet, "/api/progress/u1", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "no progress for u1", body["message"])
}

func TestServer_PatchThenGet(t *testing.T) {
	s := NewServer(newTestRepository(t))

	status, body := doRequest(t, s, http.MethodPatch, "/api/progress/u1",
		`{"experience":120,"level":2,"streakCount":1,"lastActiveDate":"2026-10-14"}`, "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "u1", data["userId"])
	assert.Equal(t, float64(120), data["experience"])
	assert.NotEmpty(t, data["updatedAt"])

	status, body = doRequest(t, s, http.MethodGet, "/api/progress/u1", "", "")
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "2026-10-14", data["lastActiveDate"])
	assert.Equal(t, float64(1), data["streakCount"])
}

func TestServer_PatchNullDateKeepsStoredDate(t *testing.T) {
	s := NewServer(newTestRepository(t))

	status, _ := doRequest(t, s, http.MethodPatch, "/api/progress/u1",
		`{"experience":120,"level":2,"streakCount":3,"lastActiveDate":"2026-10-14"}`, "")
	require.Equal(t, http.StatusOK, status)

	status, body := doRequest(t, s, http.MethodPatch, "/api/progress/u1",
		`{"experience":150,"lastActiveDate":null}`, "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(150), data["experience"])
	assert.Equal(t, "2026-10-14", data["lastActiveDate"])

	// A null date alone writes nothing.
	status, _ = doRequest(t, s, http.MethodPatch, "/api/progress/u1", `{"lastActiveDate":null}`, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_PatchRejectsBadInput(t *testing.T) {
	s := NewServer(newTestRepository(t))

	status, _ := doRequest(t, s, http.MethodPatch, "/api/progress/u1", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, s, http.MethodPatch, "/api/progress/u1", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, s, http.MethodPatch, "/api/progress/u1", `{"experience":-5,"level":0}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "experience")
	assert.Contains(t, details, "level")
}

func TestServer_UnknownRoute(t *testing.T) {
	s := NewServer(newTestRepository(t))

	status, body := doRequest(t, s, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestServer_TokenRequired(t *testing.T) {
	s := NewServer(newTestRepository(t), WithTokenSecret("s3cret"))

	status, _ := doRequest(t, s, http.MethodGet, "/api/progress/u1", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, s, http.MethodGet, "/api/progress/u1", "", signToken(t, "wrong", "u1"))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, s, http.MethodGet, "/api/progress/u1", "", signToken(t, "s3cret", "u2"))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doRequest(t, s, http.MethodGet, "/api/progress/u1", "", signToken(t, "s3cret", "u1"))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_LogsRequests(t *testing.T) {
	var logs bytes.Buffer
	s := NewServer(newTestRepository(t), WithLogger(zerolog.New(&logs)))

	doRequest(t, s, http.MethodGet, "/api/progress/u1", "", "")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	assert.Equal(t, "request", entry["message"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/progress/u1", entry["path"])
	assert.Equal(t, float64(404), entry["status"])
}

func TestClientServerRoundTrip(t *testing.T) {
	s := NewServer(newTestRepository(t), WithTokenSecret("s3cret"))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { s.Shutdown() })

	c, err := remote.NewClient("http://"+ln.Addr().String(), remote.WithTokenSecret("s3cret"))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := c.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	want := sampleProgress("u1")
	require.NoError(t, c.Upsert(ctx, "u1", remote.FullPatch(want)))

	got, err := c.Fetch(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	wrong, err := remote.NewClient("http://"+ln.Addr().String(), remote.WithTokenSecret("other"))
	require.NoError(t, err)
	_, err = wrong.Fetch(ctx, "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, remote.ErrUnavailable)
}
