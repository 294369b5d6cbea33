package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrSlotUnavailable:
		return http.StatusConflict
	case apperrors.ErrExternalService:
		return http.StatusServiceUnavailable
	case apperrors.ErrClassificationAmbiguous:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// RespondWithError writes err in the error envelope. Messages of unexpected
// errors are not exposed.
func RespondWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, NewErrorResponse(message))
}
