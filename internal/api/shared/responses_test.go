package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusAccepted, map[string]any{"jobId": "abc"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"jobId":"abc"}`, w.Body.String())
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(SetTraceID(req.Context()))
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusNotFound, "Job not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Job not found", resp.Error)
	assert.Equal(t, GetTraceID(req.Context()), resp.TraceID)
}

func TestRespondWithErrorNoTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusBadRequest, "bad")

	assert.JSONEq(t, `{"error":"bad"}`, w.Body.String())
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		elevate   bool
		wantLevel string
	}{
		{"server error logs at error", http.StatusInternalServerError, false, "ERROR"},
		{"rate limit logs at warn", http.StatusTooManyRequests, false, "WARN"},
		{"client error logs at debug", http.StatusBadRequest, false, "DEBUG"},
		{"elevated client error logs at warn", http.StatusUnauthorized, true, "WARN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf, log := logger.SetupTestLogger(t)
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			req = req.WithContext(logger.WithLogger(req.Context(), log))
			w := httptest.NewRecorder()

			var opts []ResponseOption
			if tc.elevate {
				opts = append(opts, WithElevatedLogLevel())
			}
			secret := errors.New("dial postgres://user:hunter2@db:5432/jobs failed")
			RespondWithErrorAndLog(w, req, tc.status, "Something went wrong", secret, opts...)

			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, `{"error":"Something went wrong"}`, w.Body.String())
			assert.NotContains(t, w.Body.String(), "hunter2")

			found := buf.Find(t, "API error response")
			require.NotNil(t, found)
			assert.Equal(t, tc.wantLevel, found["level"])
			assert.NotContains(t, found["error"], "hunter2")
		})
	}
}
