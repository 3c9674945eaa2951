package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestCode_Status(t *testing.T) {
	tests := map[Code]int{
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeInvalidCredentials: http.StatusUnauthorized,
		CodeRateLimitExceeded:  http.StatusTooManyRequests,
		CodeNotFound:           http.StatusNotFound,
		CodeValidation:         http.StatusBadRequest,
		CodeBadRequest:         http.StatusBadRequest,
		CodeConflict:           http.StatusConflict,
		CodeInternal:           http.StatusInternalServerError,
		Code("SOMETHING_ELSE"): http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, code.Status(), string(code))
	}
}

func TestWriteAPIError(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteAPIError(rec, fmt.Errorf("wrapped: %w", NewAPIError(CodeConflict, "Login already taken")))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		detail := decodeError(t, rec)
		assert.Equal(t, CodeConflict, detail.Code)
		assert.Equal(t, "Login already taken", detail.Message)
	})

	t.Run("plain error hides detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteAPIError(rec, errors.New("pq: connection reset by peer"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		detail := decodeError(t, rec)
		assert.Equal(t, CodeInternal, detail.Code)
		assert.NotContains(t, detail.Message, "pq")
	})
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   Code
	}{
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "Not authenticated") }, 401, CodeUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "nope") }, 403, CodeForbidden},
		{"invalid credentials", WriteInvalidCredentials, 401, CodeInvalidCredentials},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "missing") }, 404, CodeNotFound},
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "bad") }, 400, CodeValidation},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, 400, CodeBadRequest},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "dup") }, 409, CodeConflict},
		{"internal", WriteInternalError, 500, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}
