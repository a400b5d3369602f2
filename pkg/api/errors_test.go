package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/queue"
	"github.com/weaveai/weaveai/pkg/services"
)

func recordError(t *testing.T, mapFn func(*gin.Context, error), err error) (int, ErrorDetail) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	mapFn(c, err)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body.Error
}

func TestMapServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", services.NewValidationError("limit", "must be between 1 and 100"), http.StatusBadRequest, codeValidation},
		{"wrapped not found", fmt.Errorf("session x: %w", services.ErrNotFound), http.StatusNotFound, codeNotFound},
		{"not cancellable", services.ErrNotCancellable, http.StatusConflict, codeNotCancellable},
		{"already exists", services.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := recordError(t, mapServiceError, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, detail.Code)
			assert.NotEmpty(t, detail.Message)
		})
	}

	t.Run("validation message names the field", func(t *testing.T) {
		_, detail := recordError(t, mapServiceError, services.NewValidationError("debate_rounds", "must be between 0 and 2"))
		assert.Contains(t, detail.Message, "debate_rounds")
	})
}

func TestMapSubmitError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"at capacity", fmt.Errorf("2 sessions running: %w", queue.ErrAtCapacity), http.StatusServiceUnavailable, codeAtCapacity},
		{"shutting down", queue.ErrShuttingDown, http.StatusServiceUnavailable, codeShuttingDown},
		{"session active", fmt.Errorf("session x: %w", queue.ErrSessionActive), http.StatusConflict, codeAlreadyExists},
		{"falls through to service mapping", services.ErrNotFound, http.StatusNotFound, codeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := recordError(t, mapSubmitError, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, detail.Code)
		})
	}
}
