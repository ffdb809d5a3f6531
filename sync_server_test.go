package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/tasknest/data-sync/config"
	"github.com/tasknest/data-sync/store/sqlite"
	syncproto "github.com/tasknest/data-sync/sync"
)

const testSecret = "test-secret"

func testServer(t *testing.T, name string) *httptest.Server {
	storage, err := sqlite.NewSQLiteSyncStorage("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { storage.Close() })

	cfg := &config.Config{JWTSecret: testSecret}
	server := httptest.NewServer(CreateRouter(cfg, NewSyncServer(syncproto.NewService(storage))))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, subject string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err, "failed to sign token")
	return token
}

func post(t *testing.T, server *httptest.Server, path, token string, body any) (*http.Response, []byte) {
	payload, err := json.Marshal(body)
	require.NoError(t, err, "failed to marshal request")
	request, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err, "failed to build request")
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err, "request failed")
	t.Cleanup(func() { response.Body.Close() })

	var buf bytes.Buffer
	_, err = buf.ReadFrom(response.Body)
	require.NoError(t, err, "failed to read response body")
	return response, buf.Bytes()
}

func pull(t *testing.T, server *httptest.Server, token string, lastPulledAt int64) syncproto.PullResponse {
	response, body := post(t, server, "/sync/pull", token, syncproto.PullRequest{
		LastPulledAt:  lastPulledAt,
		SchemaVersion: 1,
	})
	require.Equal(t, http.StatusOK, response.StatusCode, "pull failed: %s", body)
	var decoded syncproto.PullResponse
	require.NoError(t, json.Unmarshal(body, &decoded), "failed to decode pull response")
	return decoded
}

func push(t *testing.T, server *httptest.Server, token string, changes syncproto.Changes) {
	response, body := post(t, server, "/sync/push", token, syncproto.PushRequest{Changes: changes})
	require.Equal(t, http.StatusOK, response.StatusCode, "push failed: %s", body)
	var decoded syncproto.PushResponse
	require.NoError(t, json.Unmarshal(body, &decoded), "failed to decode push response")
	require.True(t, decoded.Success)
}

func TestSyncRoundTrip(t *testing.T) {
	server := testServer(t, "e2eroundtrip")
	u1 := signToken(t, "u1")
	u2 := signToken(t, "u2")

	push(t, server, u1, syncproto.Changes{
		"projects": {Created: []syncproto.Row{{"id": "p1", "name": "A", "description": nil}}},
		"tasks": {Created: []syncproto.Row{{
			"id": "t1", "title": "report", "is_completed": false, "project_id": "p1",
		}}},
	})

	delta := pull(t, server, u1, 0)
	require.Greater(t, delta.Timestamp, int64(0))
	require.Len(t, delta.Changes["projects"].Created, 1)
	require.Equal(t, "p1", delta.Changes["projects"].Created[0]["id"])
	require.Equal(t, "A", delta.Changes["projects"].Created[0]["name"])
	require.Len(t, delta.Changes["tasks"].Created, 1)
	require.Equal(t, "report", delta.Changes["tasks"].Created[0]["title"])

	// The delta carries wire timestamps assigned by the server.
	createdAt, ok := delta.Changes["projects"].Created[0]["created_at"].(float64)
	require.True(t, ok, "created_at missing from wire row")
	require.Greater(t, createdAt, float64(0))

	// Ownership isolation: u2 pulling from zero sees an empty delta.
	otherDelta := pull(t, server, u2, 0)
	require.Empty(t, otherDelta.Changes["projects"].Created)
	require.Empty(t, otherDelta.Changes["tasks"].Created)

	// Advancing to the returned watermark drains the delta.
	drained := pull(t, server, u1, delta.Timestamp)
	require.Empty(t, drained.Changes["projects"].Created)
	require.Empty(t, drained.Changes["projects"].Updated)
	require.Empty(t, drained.Changes["projects"].Deleted)
}

func TestUpdateThenDeleteCollapses(t *testing.T) {
	server := testServer(t, "e2ecollapse")
	u1 := signToken(t, "u1")

	push(t, server, u1, syncproto.Changes{
		"projects": {Created: []syncproto.Row{{"id": "p1", "name": "A", "description": nil}}},
	})
	push(t, server, u1, syncproto.Changes{
		"projects": {Updated: []syncproto.Row{{"id": "p1", "name": "B", "description": nil}}},
	})
	push(t, server, u1, syncproto.Changes{
		"projects": {Deleted: []string{"p1"}},
	})

	delta := pull(t, server, u1, 0)
	require.Empty(t, delta.Changes["projects"].Created)
	require.Empty(t, delta.Changes["projects"].Updated)
	require.Equal(t, []string{"p1"}, delta.Changes["projects"].Deleted)
}

func TestPushRejectsMalformedChangeSet(t *testing.T) {
	server := testServer(t, "e2emalformed")
	u1 := signToken(t, "u1")

	response, body := post(t, server, "/sync/push", u1, syncproto.PushRequest{
		Changes: syncproto.Changes{
			"users": {Created: []syncproto.Row{{"id": "u1"}}},
		},
	})
	require.Equal(t, http.StatusBadRequest, response.StatusCode, "expected 400, got: %s", body)
}

func TestPullRejectsNegativeWatermark(t *testing.T) {
	server := testServer(t, "e2enegative")
	u1 := signToken(t, "u1")

	response, _ := post(t, server, "/sync/pull", u1, syncproto.PullRequest{LastPulledAt: -5})
	require.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestEndpointsRequireAuth(t *testing.T) {
	server := testServer(t, "e2eauth")

	for _, path := range []string{"/sync/pull", "/sync/push"} {
		response, _ := post(t, server, path, "", map[string]any{})
		require.Equal(t, http.StatusUnauthorized, response.StatusCode, "path %s", path)
	}
}
