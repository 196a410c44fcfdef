package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent"},
		{name: "caller id kept", incoming: "edge-7f3a", keep: true},
		{name: "id with spaces replaced", incoming: "a b"},
		{name: "control characters replaced", incoming: "abc\x01"},
		{name: "oversized id replaced", incoming: strings.Repeat("x", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			w := httptest.NewRecorder()
			RequestID(handler).ServeHTTP(w, req)

			assert.Equal(t, captured, w.Header().Get(HeaderRequestID))
			if tt.keep {
				assert.Equal(t, tt.incoming, captured)
				return
			}
			_, err := uuid.Parse(captured)
			assert.NoError(t, err, "expected a generated id, got %q", captured)
		})
	}
}

func TestWithRequestID(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Equal(t, "retention-1", GetRequestID(WithRequestID(context.Background(), "retention-1")))
}
