package slot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
)

type fakeSlots struct {
	refreshed [][3]string
	err       error
}

func (f *fakeSlots) ListAvailable(_ context.Context, providerID, date string) ([]model.Slot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Slot{{
		SlotKey:   model.SlotKey{ProviderID: providerID, Date: date, Start: model.NewClock(9, 0), End: model.NewClock(10, 0)},
		Available: true,
	}}, nil
}

func (f *fakeSlots) Refresh(_ context.Context, providerID, from, to string) ([]model.Slot, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.refreshed = append(f.refreshed, [3]string{providerID, from, to})
	return nil, nil
}

func setup(f *fakeSlots) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f, f).RegisterRoutes(r.Group("/admin"))
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestList(t *testing.T) {
	r := setup(&fakeSlots{})
	w := do(r, http.MethodGet, "/admin/slots?provider_id=anna&date=2026-10-16", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []model.Slot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "anna", body.Data[0].ProviderID)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/admin/slots?provider_id=anna", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/admin/slots?provider_id=anna&date=16.10.2026", "").Code)
}

func TestListUnknownProvider(t *testing.T) {
	r := setup(&fakeSlots{err: apperrors.NotFound("provider", nil)})
	w := do(r, http.MethodGet, "/admin/slots?provider_id=ghost&date=2026-10-16", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshDefaultsToSingleDay(t *testing.T) {
	f := &fakeSlots{}
	r := setup(f)

	w := do(r, http.MethodPost, "/admin/slots/refresh", `{"provider_id":"anna","from":"2026-10-16"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPost, "/admin/slots/refresh", `{"provider_id":"anna","from":"2026-10-16","to":"2026-10-18"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, [][3]string{
		{"anna", "2026-10-16", "2026-10-16"},
		{"anna", "2026-10-16", "2026-10-18"},
	}, f.refreshed)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/slots/refresh", `{"from":"2026-10-16"}`).Code)
}

func TestRefreshCalendarOutage(t *testing.T) {
	r := setup(&fakeSlots{err: apperrors.ExternalService("calendar", nil)})
	w := do(r, http.MethodPost, "/admin/slots/refresh", `{"provider_id":"anna","from":"2026-10-16"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
