package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

type fakeAuth struct{ locked bool }

func (f fakeAuth) Login(_ context.Context, username, password string) (*model.TokenResponse, error) {
	if f.locked {
		return nil, model.ErrAccountLocked
	}
	if username != "admin" || password != "s3cret-pass" {
		return nil, model.ErrInvalidCredentials
	}
	return &model.TokenResponse{AccessToken: "token", ExpiresAt: time.Unix(0, 0).UTC()}, nil
}

func login(a Authenticator, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(a).RegisterRoutes(r.Group("/api/v1"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	w := login(fakeAuth{}, `{"username":"admin","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data model.TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "token", body.Data.AccessToken)
}

func TestLoginFailures(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, login(fakeAuth{}, `{"username":"admin","password":"wrong-pass"}`).Code)
	assert.Equal(t, http.StatusLocked, login(fakeAuth{locked: true}, `{"username":"admin","password":"s3cret-pass"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(fakeAuth{}, `{"username":"admin","password":"short"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(fakeAuth{}, `{"password":"s3cret-pass"}`).Code)
}
