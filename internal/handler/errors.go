package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/response"
	"github.com/stemsi/exprep-backend/internal/service"
)

// failService maps a service error onto the response envelope. Errors
// outside the three service categories are logged and reported as 500.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrActiveSessionExists):
		response.Fail(c, http.StatusConflict, response.ErrActiveSessionExists)
	case errors.Is(err, service.ErrResultsUnavailable):
		response.Fail(c, http.StatusConflict, response.ErrResultsUnavailable)
	case errors.Is(err, service.ErrSessionNotActive), errors.Is(err, service.ErrAlreadyGraded):
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
	case errors.Is(err, service.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrInvalidInput):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidInput,
			map[string]string{"detail": err.Error()})
	default:
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// sessionID parses the :id path parameter.
func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
