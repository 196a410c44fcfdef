package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/models"
)

func TestDispatcher_Send(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{RelayURL: srv.URL, Channel: "#security", Token: "relay-token"}, logging.Nop())
	d.Send(context.Background(), "hello")

	assert.Equal(t, "#security", got["channel"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "Bearer relay-token", auth)
}

func TestDispatcher_NoCredentialsSkips(t *testing.T) {
	d := NewDispatcher(Config{}, logging.Nop())
	assert.False(t, d.Enabled())
	assert.NotPanics(t, func() { d.Send(context.Background(), "dropped") })
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{RelayURL: srv.URL}, logging.Nop())
	d.Send(context.Background(), "lost")

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "no retries")

	down := NewDispatcher(Config{RelayURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, logging.Nop())
	assert.NotPanics(t, func() { down.Send(context.Background(), "lost") })
}

func TestBlockText(t *testing.T) {
	msg := BlockText("u1", 5, 10*time.Minute, nil)
	assert.Contains(t, msg, "u1")
	assert.Contains(t, msg, "5 security incidents")
	assert.Contains(t, msg, "10m0s")
	assert.NotContains(t, msg, "Manual follow-up")

	assert.Contains(t, msg, "disabled actor u1")

	msg = BlockText("u1", 5, 10*time.Minute, errors.New("identity down"))
	assert.Contains(t, msg, "identity down")
	assert.Contains(t, msg, "attempted to disable actor u1")
	assert.NotContains(t, msg, "Sentinel disabled")
	assert.Contains(t, msg, "Manual follow-up")
}

func TestPriorityText(t *testing.T) {
	ev := models.NewLogEvent(models.EventTypeError, "auth.admin_login_failed", "u9", "root login from new country")
	ev.Priority = models.PriorityP0
	ev.Metadata = map[string]any{"ip": "203.0.113.7", "country": "ZZ"}

	msg := PriorityText(ev)
	assert.True(t, strings.HasPrefix(msg, ":rotating_light: P0 event for actor u9"))
	assert.Less(t, strings.Index(msg, "country"), strings.Index(msg, "ip:"))
	assert.Contains(t, msg, ev.ID)
}
