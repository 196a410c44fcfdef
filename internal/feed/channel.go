package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/metrics"
	"github.com/estatehub/sentinel/internal/models"
	"github.com/estatehub/sentinel/internal/workerpool"
)

// ChannelSource is an in-process change feed. It is both a Publisher, so
// the seeder and tests can append events, and a Consumer running handlers on
// a worker pool.
type ChannelSource struct {
	workers int
	ch      chan *messaging.Message
	done    chan struct{}
	once    sync.Once

	// Publishers hold the read lock while sending; Close takes the write
	// lock before closing ch.
	mu sync.RWMutex
}

// ErrSourceClosed is returned by Publish after Close.
var ErrSourceClosed = errors.New("channel source closed")

func NewChannelSource(workers, buffer int) *ChannelSource {
	return &ChannelSource{
		workers: workers,
		ch:      make(chan *messaging.Message, buffer),
		done:    make(chan struct{}),
	}
}

func (s *ChannelSource) Publish(ctx context.Context, subject string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	select {
	case <-s.done:
		return ErrSourceClosed
	default:
	}
	select {
	case s.ch <- &messaging.Message{Subject: subject, Data: data}:
		metrics.FeedQueueDepth.Set(float64(len(s.ch)))
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishEvent is Publish for a LogEvent.
func (s *ChannelSource) PublishEvent(ctx context.Context, ev *models.LogEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.Publish(ctx, messaging.SubjectLogsAppended, data)
}

// Close stops accepting messages and releases blocked publishers.
// Consumers finish what is buffered.
func (s *ChannelSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

func (s *ChannelSource) Consume(ctx context.Context, handler messaging.MessageHandler) (func(), error) {
	loopCtx, cancel := context.WithCancel(ctx)
	pool := workerpool.New(context.WithoutCancel(ctx), s.workers, s.workers, func(ctx context.Context, m *messaging.Message) {
		_ = handler(ctx, m)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case m, ok := <-s.ch:
				if !ok {
					return
				}
				metrics.FeedQueueDepth.Set(float64(len(s.ch)))
				if err := pool.SubmitWait(loopCtx, m); err != nil {
					return
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
		pool.Drain()
	}, nil
}
