package message

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
)

type fakeOrchestrator struct {
	got []model.Inbound
	out model.Outbound
}

func (f *fakeOrchestrator) Handle(_ context.Context, in model.Inbound) model.Outbound {
	f.got = append(f.got, in)
	return f.out
}

func setup(o Orchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(o).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveReturnsReply(t *testing.T) {
	o := &fakeOrchestrator{out: model.Outbound{
		Text: "Pick a time",
		Action: &model.Action{Type: model.ActionSelectSlot, Options: []model.Option{
			{ID: "anna/2026-10-16/0900-1000", Label: "16.10 at 09:00"},
		}},
	}}
	w := post(setup(o), `{"client_id":" tg:42 ","text":"I want to book"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string         `json:"status"`
		Data   model.Outbound `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, o.out, body.Data)

	require.Len(t, o.got, 1)
	assert.Equal(t, "tg:42", o.got[0].ClientID)
}

func TestReceiveAcceptsButtonPress(t *testing.T) {
	o := &fakeOrchestrator{out: model.Outbound{Text: "Done!"}}
	w := post(setup(o), `{"client_id":"tg:42","selected_id":"anna/2026-10-16/0900-1000"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, o.got, 1)
	assert.Equal(t, "anna/2026-10-16/0900-1000", o.got[0].SelectedID)
}

func TestReceiveRejectsBadInput(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{`,
		"no client":     `{"text":"hi"}`,
		"blank client":  `{"client_id":"  ","text":"hi"}`,
		"empty message": `{"client_id":"tg:42","text":"   "}`,
	} {
		t.Run(name, func(t *testing.T) {
			o := &fakeOrchestrator{}
			w := post(setup(o), body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, o.got)
		})
	}
}
