package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondServiceError maps domain errors to status codes. Anything unknown is a 500
// and its text is not echoed back.
func (h *Handler) respondServiceError(c *gin.Context, err error) {
	var (
		invalid    *apperr.InvalidInputError
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: err.Error(), Code: "invalid_input", Field: invalid.Field}})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{Error: APIError{Message: err.Error(), Code: "validation", Field: validation.Field}})
	case errors.As(err, &notFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrVersionConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		RespondError(c, http.StatusInternalServerError, "internal", errors.New(http.StatusText(http.StatusInternalServerError)))
	}
}
