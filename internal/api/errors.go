package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tagflow/internal/services"
)

// APIError is the error body.
// Example: { "error": { "code": "bad_request", "message": "item_ids must be a non-empty list" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// Error codes.
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeInternal     = "internal_error"
)

// JSONError aborts the request with a structured error body.
func JSONError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func badRequest(c *gin.Context, msg string) {
	JSONError(c, http.StatusBadRequest, CodeBadRequest, msg)
}

func notFound(c *gin.Context, msg string) {
	JSONError(c, http.StatusNotFound, CodeNotFound, msg)
}

func conflict(c *gin.Context, msg string) {
	JSONError(c, http.StatusConflict, CodeConflict, msg)
}

// writeError maps err to a status code by its error class.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		badRequest(c, err.Error())
	case errors.Is(err, services.ErrNotFound):
		notFound(c, err.Error())
	default:
		_ = c.Error(err)
		JSONError(c, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}
