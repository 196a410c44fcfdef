package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Disable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    DisableResult
		wantErr error
		anyErr  bool
	}{
		{name: "ok", status: http.StatusOK, want: Disabled},
		{name: "no content", status: http.StatusNoContent, want: Disabled},
		{name: "already disabled", status: http.StatusConflict, want: AlreadyDisabled},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrActorNotFound},
		{name: "server error", status: http.StatusInternalServerError, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotAuth, gotBy string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				gotBy = body["disabled_by"]
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL+"/", "svc-token", time.Second)
			got, err := c.Disable(context.Background(), "u1", "sentinel")

			assert.Equal(t, "/api/v1/users/u1/disable", gotPath)
			assert.Equal(t, "Bearer svc-token", gotAuth)
			assert.Equal(t, "sentinel", gotBy)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestHTTPClient_TimeoutIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 20*time.Millisecond)
	got, err := c.Disable(context.Background(), "u1", "sentinel")

	assert.Error(t, err)
	assert.NotEqual(t, AlreadyDisabled, got)
}

func TestInMemoryDirectory(t *testing.T) {
	d := NewInMemoryDirectory()
	ctx := context.Background()

	r, err := d.Disable(ctx, "u1", "sentinel")
	require.NoError(t, err)
	assert.Equal(t, Disabled, r)

	r, err = d.Disable(ctx, "u1", "sentinel")
	require.NoError(t, err)
	assert.Equal(t, AlreadyDisabled, r)
	assert.True(t, d.IsDisabled("u1"))
	assert.Equal(t, 2, d.Calls())

	d.Strict = true
	_, err = d.Disable(ctx, "ghost", "sentinel")
	assert.ErrorIs(t, err, ErrActorNotFound)
}
