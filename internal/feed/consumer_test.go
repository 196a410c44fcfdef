package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/sentinel/internal/aggregator"
	"github.com/estatehub/sentinel/internal/classifier"
	"github.com/estatehub/sentinel/internal/identity"
	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/models"
	"github.com/estatehub/sentinel/internal/remediation"
	"github.com/estatehub/sentinel/internal/repository"
)

type stubHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *stubHandler) Handle(ctx context.Context, ev *models.LogEvent) (remediation.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev.ID)
	return remediation.Outcome{}, h.err
}

func (h *stubHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestHandleMessage_AcksPipelineFailures(t *testing.T) {
	h := &stubHandler{err: aggregator.ErrAggregation}
	c := NewConsumer(nil, NewDecoder(), h, logging.Nop())

	ev := models.NewLogEvent(models.EventTypeError, "auth.login_failed", "u1", "x")
	data, _ := jsonEvent(ev)

	err := c.HandleMessage(context.Background(), &messaging.Message{Data: data})
	assert.NoError(t, err, "aggregation failures are contained, not redelivered")
	assert.Equal(t, 1, h.count())
}

func TestHandleMessage_InvalidPayloadIsPermanent(t *testing.T) {
	h := &stubHandler{}
	c := NewConsumer(nil, NewDecoder(), h, logging.Nop())

	err := c.HandleMessage(context.Background(), &messaging.Message{Data: []byte("not json")})
	assert.True(t, errors.Is(err, messaging.ErrPermanent))
	assert.Zero(t, h.count())
}

func TestConsumer_EndToEndBurst(t *testing.T) {
	store := repository.NewInMemoryStore()
	dir := identity.NewInMemoryDirectory()
	cfg := remediation.DefaultConfig()
	cls := classifier.New(cfg.SelfID)
	engine := remediation.NewEngine(cfg, remediation.Deps{
		Classifier: cls,
		Counter:    aggregator.New(store, cls, time.Second),
		Identity:   dir,
		Recorder:   store,
		Alerts:     noopSender{},
	})

	source := NewChannelSource(4, 16)
	consumer := NewConsumer(source, NewDecoder(), engine, logging.Nop())
	require.NoError(t, consumer.Start(context.Background()))

	// Events are appended to the store before the feed notifies, as an
	// insert trigger would.
	for i := 0; i < 6; i++ {
		ev := models.NewLogEvent(models.EventTypeError, "auth.login_failed", "u1", "bad password")
		require.NoError(t, store.Append(context.Background(), ev))
		require.NoError(t, source.PublishEvent(context.Background(), ev))
	}

	assert.Eventually(t, func() bool { return dir.IsDisabled("u1") }, 2*time.Second, 10*time.Millisecond)
	consumer.Stop()

	assert.NotEmpty(t, store.FindByAction(models.ActionAutoBlock))
}

type noopSender struct{}

func (noopSender) Send(context.Context, string) {}
