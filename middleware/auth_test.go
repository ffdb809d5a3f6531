package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/tasknest/data-sync/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err, "failed to sign token")
	return token
}

func TestAuthenticate(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}

	var seenUserID string
	handler := Authenticate(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r.Context())
		require.True(t, ok, "user id missing from context")
		seenUserID = userID
	}))

	request := httptest.NewRequest(http.MethodPost, "/sync/pull", nil)
	request.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-1"))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "user-1", seenUserID)
}

func TestAuthenticateRejects(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	handler := Authenticate(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a rejected request")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not a bearer token", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{name: "wrong secret", header: "Bearer " + signToken(t, "other-secret", "user-1")},
		{name: "empty subject", header: "Bearer " + signToken(t, testSecret, "")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/sync/pull", nil)
			if c.header != "" {
				request.Header.Set("Authorization", c.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)
			require.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}
