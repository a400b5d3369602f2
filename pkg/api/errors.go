package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/queue"
	"github.com/weaveai/weaveai/pkg/services"
)

// Domain error codes surfaced in error bodies.
const (
	codeValidation     = "VALIDATION_ERROR"
	codeNotFound       = "NOT_FOUND"
	codeNotCancellable = "NOT_CANCELLABLE"
	codeAlreadyExists  = "ALREADY_EXISTS"
	codeAtCapacity     = "AT_CAPACITY"
	codeShuttingDown   = "SHUTTING_DOWN"
	codeGraphExecution = "GRAPH_EXECUTION_ERROR"
	codeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and the human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError aborts the request with a structured error body.
func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, &ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		writeError(c, http.StatusBadRequest, codeValidation, validErr.Error())
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		writeError(c, http.StatusNotFound, codeNotFound, "resource not found")
		return
	}
	if errors.Is(err, services.ErrNotCancellable) {
		writeError(c, http.StatusConflict, codeNotCancellable, "session is not in a cancellable state")
		return
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		writeError(c, http.StatusConflict, codeAlreadyExists, "resource already exists")
		return
	}

	// Unexpected error
	slog.Error("Unexpected service error", "path", c.Request.URL.Path, "error", err)
	writeError(c, http.StatusInternalServerError, codeInternal, "internal server error")
}

// mapSubmitError maps worker pool rejections to HTTP error responses,
// falling back to the service mapping for anything else.
func mapSubmitError(c *gin.Context, err error) {
	if errors.Is(err, queue.ErrAtCapacity) {
		writeError(c, http.StatusServiceUnavailable, codeAtCapacity, "worker pool at capacity, retry later")
		return
	}
	if errors.Is(err, queue.ErrShuttingDown) {
		writeError(c, http.StatusServiceUnavailable, codeShuttingDown, "service is shutting down")
		return
	}
	if errors.Is(err, queue.ErrSessionActive) {
		writeError(c, http.StatusConflict, codeAlreadyExists, "session is already running")
		return
	}
	mapServiceError(c, err)
}
