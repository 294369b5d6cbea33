package slot

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-assistant/internal/handler"
	"github.com/jwalitptl/booking-assistant/internal/model"
)

type Lister interface {
	ListAvailable(ctx context.Context, providerID, date string) ([]model.Slot, error)
}

type Refresher interface {
	Refresh(ctx context.Context, providerID, from, to string) ([]model.Slot, error)
}

type Handler struct {
	slots     Lister
	refresher Refresher
}

func NewHandler(slots Lister, refresher Refresher) *Handler {
	return &Handler{slots: slots, refresher: refresher}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	slots := r.Group("/slots")
	{
		slots.GET("", h.List)
		slots.POST("/refresh", h.Refresh)
	}
}

type listQuery struct {
	ProviderID string `form:"provider_id" binding:"required,max=64"`
	Date       string `form:"date" binding:"required,datetime=2006-01-02"`
}

// List returns the free slots of one provider's date.
func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	slots, err := h.slots.ListAvailable(c.Request.Context(), q.ProviderID, q.Date)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

type refreshRequest struct {
	ProviderID string `json:"provider_id" binding:"required,max=64"`
	From       string `json:"from" binding:"required,datetime=2006-01-02"`
	To         string `json:"to" binding:"omitempty,datetime=2006-01-02"`
}

// Refresh drops the cached slots of a range and derives them again from
// working hours and the provider's calendar.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if req.To == "" {
		req.To = req.From
	}
	slots, err := h.refresher.Refresh(c.Request.Context(), req.ProviderID, req.From, req.To)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}
