package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authHandler "github.com/jwalitptl/booking-assistant/internal/handler/auth"
	"github.com/jwalitptl/booking-assistant/internal/handler/health"
	"github.com/jwalitptl/booking-assistant/internal/handler/message"
	promHandler "github.com/jwalitptl/booking-assistant/internal/handler/prometheus"
	"github.com/jwalitptl/booking-assistant/internal/handler/reservation"
	"github.com/jwalitptl/booking-assistant/internal/handler/slot"
	"github.com/jwalitptl/booking-assistant/internal/middleware"
	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository/memory"
	authService "github.com/jwalitptl/booking-assistant/internal/service/auth"
	"github.com/jwalitptl/booking-assistant/internal/service/availability"
	"github.com/jwalitptl/booking-assistant/internal/service/calendar"
	"github.com/jwalitptl/booking-assistant/internal/service/classifier"
	"github.com/jwalitptl/booking-assistant/internal/service/conversation"
	"github.com/jwalitptl/booking-assistant/internal/service/ledger"
	"github.com/jwalitptl/booking-assistant/internal/service/offer"
	"github.com/jwalitptl/booking-assistant/pkg/auth"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
	"github.com/jwalitptl/booking-assistant/pkg/security"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (r apiResponse) IsSuccess() bool {
	return r.Status == "success"
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.Nop()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, "test")

	var hours model.WorkingHours
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours = append(hours, model.WorkingWindow{Weekday: d, Start: 0, End: model.EndOfDay})
	}
	dir, err := model.NewDirectory([]model.Provider{{ID: "anna", Name: "Anna", Active: true}}, hours)
	require.NoError(t, err)

	store := memory.NewStore()
	l := ledger.NewService(store, dir, log, m)
	resolver := availability.NewResolver(store, calendar.NewStatic(time.UTC), dir, availability.Config{SlotDuration: time.Hour}, log, m)
	orchestrator := conversation.NewOrchestrator(
		memory.NewStateStore(time.Hour),
		classifier.New(classifier.DefaultVocabulary(), log, m),
		l,
		resolver,
		offer.NewEngine(l, 10, log),
		dir,
		conversation.Config{HorizonDays: 2, Location: time.UTC},
		log,
		m,
	)

	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)
	authSvc := authService.NewService([]authService.Admin{{Username: "admin", PasswordHash: hash}}, hasher, auth.NewJWTService("secret", time.Hour), log)

	r := NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		promHandler.New(registry, "test"),
		Handlers{
			Health:  health.NewHandler(nil),
			Auth:    authHandler.NewHandler(authSvc),
			Message: message.NewHandler(orchestrator),
			Admin: []Handler{
				reservation.NewHandler(l),
				slot.NewHandler(l, resolver),
			},
		},
		log,
		RouterConfig{CORSConfig: middleware.DefaultCORSConfig()},
	)
	r.Setup()
	return &testAPI{t: t, engine: r.Engine()}
}

func (a *testAPI) makeRequest(method, path string, body interface{}, token string) (int, apiResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func (a *testAPI) login() string {
	a.t.Helper()
	code, resp := a.makeRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "admin",
		"password": "s3cret-pass",
	}, "")
	require.Equal(a.t, http.StatusOK, code, resp.Message)
	var tokens model.TokenResponse
	require.NoError(a.t, json.Unmarshal(resp.Data, &tokens))
	return tokens.AccessToken
}

func TestChatBookingShowsUpInAdminAPI(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.makeRequest(http.MethodPost, "/api/v1/messages", model.Inbound{ClientID: "tg:42", Text: "I want to book a session"}, "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.IsSuccess())
	var offered model.Outbound
	require.NoError(t, json.Unmarshal(resp.Data, &offered))
	require.NotNil(t, offered.Action)
	require.NotEmpty(t, offered.Action.Options)

	choice := offered.Action.Options[0].ID
	code, resp = api.makeRequest(http.MethodPost, "/api/v1/messages", model.Inbound{ClientID: "tg:42", SelectedID: choice}, "")
	require.Equal(t, http.StatusOK, code)
	var confirmed model.Outbound
	require.NoError(t, json.Unmarshal(resp.Data, &confirmed))
	assert.Contains(t, confirmed.Text, "Anna")

	token := api.login()
	code, resp = api.makeRequest(http.MethodGet, "/api/v1/admin/reservations?status=confirmed", nil, token)
	require.Equal(t, http.StatusOK, code)
	var reservations []model.Reservation
	require.NoError(t, json.Unmarshal(resp.Data, &reservations))
	require.Len(t, reservations, 1)
	key, err := model.ParseSlotID(choice)
	require.NoError(t, err)
	assert.Equal(t, key, reservations[0].Key())
}

func TestAdminRoutesNeedAToken(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.makeRequest(http.MethodGet, "/api/v1/admin/reservations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", resp.Status)

	code, _ = api.makeRequest(http.MethodGet, "/api/v1/admin/reservations", nil, "forged")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.makeRequest(http.MethodGet, "/api/v1/admin/reservations", nil, api.login())
	assert.Equal(t, http.StatusOK, code)
}

func TestOperationalEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	api.makeRequest(http.MethodPost, "/api/v1/messages", model.Inbound{ClientID: "tg:1", Text: "does it hurt?"}, "")

	w = httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_conversation_classified_routes_total{route="info"} 1`)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="POST",route="/api/v1/messages",status="200"} 1`)
}
