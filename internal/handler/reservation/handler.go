package reservation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-assistant/internal/handler"
	"github.com/jwalitptl/booking-assistant/internal/model"
)

type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	List(ctx context.Context, providerID, date string) ([]*model.Reservation, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	CompleteReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	RescheduleReservation(ctx context.Context, id uuid.UUID, date string, start, end model.Clock) (*model.RescheduleResult, error)
}

type Handler struct {
	ledger Ledger
}

func NewHandler(ledger Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reservations := r.Group("/reservations")
	{
		reservations.GET("", h.List)
		reservations.GET("/:id", h.Get)
		reservations.POST("/:id/cancel", h.Cancel)
		reservations.POST("/:id/complete", h.Complete)
		reservations.POST("/:id/reschedule", h.Reschedule)
	}
}

type listQuery struct {
	ProviderID string                  `form:"provider_id" binding:"max=64"`
	Date       string                  `form:"date" binding:"omitempty,datetime=2006-01-02"`
	Status     model.ReservationStatus `form:"status" binding:"omitempty,oneof=pending confirmed cancelled completed"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	all, err := h.ledger.List(c.Request.Context(), q.ProviderID, q.Date)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	out := make([]*model.Reservation, 0, len(all))
	for _, r := range all {
		if q.Status == "" || r.Status == q.Status {
			out = append(out, r)
		}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(out))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	res, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.ledger.CancelReservation)
}

func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, h.ledger.CompleteReservation)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, uuid.UUID) (*model.Reservation, error)) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	res, err := fn(c.Request.Context(), id)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

type rescheduleRequest struct {
	Date  string      `json:"date" binding:"required,datetime=2006-01-02"`
	Start model.Clock `json:"start" binding:"gte=0"`
	End   model.Clock `json:"end" binding:"required,gtfield=Start"`
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.ledger.RescheduleReservation(c.Request.Context(), id, req.Date, req.Start, req.End)
	if err != nil {
		handler.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func reservationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid reservation id"))
		return uuid.Nil, false
	}
	return id, true
}
