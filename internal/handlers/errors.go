package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/workflow"
)

// respondError maps domain errors onto HTTP statuses and records the error
// on the context for the request logger.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, workflow.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, workflow.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_failed", Message: err.Error()})
	case errors.Is(err, workflow.ErrInvalidOperation):
		c.AbortWithStatusJSON(http.StatusConflict, models.ErrorResponse{Error: "invalid_operation", Message: err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}

// respondBindError answers 400 for a request body that failed to bind.
func respondBindError(c *gin.Context, err error) {
	_ = c.Error(err)

	message := err.Error()
	var syntaxErr *json.SyntaxError
	var validationErr validator.ValidationErrors
	switch {
	case errors.Is(err, io.EOF):
		message = "body not found"
	case errors.As(err, &syntaxErr):
		message = "invalid body format: " + syntaxErr.Error()
	case errors.As(err, &validationErr):
		message = "validation failed: " + validationErr.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: message})
}

func projectIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid project id"})
		return uuid.Nil, false
	}
	return id, true
}

func orderParam(c *gin.Context) (int, bool) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil || order < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid step order"})
		return 0, false
	}
	return order, true
}
