package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
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

// RespondError writes err with the HTTP status implied by its
// application error code.
func RespondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), NewErrorResponse(err.Error()))
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrOutsideAvailability:
		return http.StatusUnprocessableEntity
	case apperrors.ErrSlotUnavailable, apperrors.ErrInvalidTransition, apperrors.ErrTerminalState:
		return http.StatusConflict
	case apperrors.ErrScheduleBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
