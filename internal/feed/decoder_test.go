package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/models"
)

func TestDecoder_Decode(t *testing.T) {
	d := NewDecoder()
	now := time.Now().UTC().Format(time.RFC3339)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid failed login",
			payload: `{"id":"e1","type":"error","action":"auth.login_failed","actorId":"u1","createdAt":"` + now + `"}`,
		},
		{
			name:    "valid info without actor",
			payload: `{"id":"e2","type":"info","message":"cron ran","createdAt":"` + now + `"}`,
		},
		{
			name:    "not json",
			payload: `{"id":`,
			wantErr: true,
		},
		{
			name:    "missing id",
			payload: `{"type":"error","createdAt":"` + now + `"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			payload: `{"id":"e3","type":"critical","createdAt":"` + now + `"}`,
			wantErr: true,
		},
		{
			name:    "missing createdAt",
			payload: `{"id":"e4","type":"error"}`,
			wantErr: true,
		},
		{
			name:    "control characters in actor",
			payload: `{"id":"e5","type":"error","action":"auth.x","actorId":"u1\u0000","createdAt":"` + now + `"}`,
			wantErr: true,
		},
		{
			name:    "far future timestamp",
			payload: `{"id":"e6","type":"error","createdAt":"` + time.Now().Add(time.Hour).UTC().Format(time.RFC3339) + `"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := d.Decode([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, messaging.ErrPermanent)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, ev.ID)
		})
	}
}

func TestDecoder_PreservesFields(t *testing.T) {
	d := NewDecoder()
	payload := `{"id":"e1","type":"warning","action":"user.signup_failed","actorId":"u7","priority":"P0",
		"message":"captcha failed","metadata":{"ip":"198.51.100.4"},"createdAt":"2026-03-01T10:00:00Z"}`
	d.now = func() time.Time { return time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC) }

	ev, err := d.Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, models.EventTypeWarning, ev.Type)
	assert.Equal(t, "user.signup_failed", ev.Action)
	assert.Equal(t, "u7", ev.ActorID)
	assert.Equal(t, models.PriorityP0, ev.Priority)
	assert.Equal(t, "198.51.100.4", ev.Metadata["ip"])
}
