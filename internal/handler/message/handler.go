package message

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-assistant/internal/handler"
	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Orchestrator answers one client turn. It never fails; problems come back
// as an apology text.
type Orchestrator interface {
	Handle(ctx context.Context, in model.Inbound) model.Outbound
}

type Handler struct {
	orchestrator Orchestrator
}

func NewHandler(o Orchestrator) *Handler {
	return &Handler{orchestrator: o}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/messages", h.Receive)
}

// Receive takes a chat message or a button press and returns the reply.
func (h *Handler) Receive(c *gin.Context) {
	var in model.Inbound
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	in.ClientID = strings.TrimSpace(in.ClientID)
	if in.ClientID == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("client_id is required"))
		return
	}
	if strings.TrimSpace(in.Text) == "" && in.SelectedID == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("text or selected_id is required"))
		return
	}

	out := h.orchestrator.Handle(c.Request.Context(), in)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(out))
}
