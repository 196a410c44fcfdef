// Package messaging abstracts the change feed the sentinel consumes, so the
// pipeline is not tied to one broker.
package messaging

import (
	"context"
	"errors"
	"time"
)

// Message is a message received from or sent to a broker.
type Message struct {
	Subject string
	Key     []byte
	Data    []byte

	// Metadata carries message headers.
	Metadata map[string]string

	Timestamp time.Time
}

// ErrPermanent marks a handler failure that redelivery cannot fix, such as an
// undecodable payload. Consumers terminate such messages instead of retrying.
var ErrPermanent = errors.New("permanent message failure")

// MessageHandler processes a received message. A nil return acknowledges it.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher publishes messages to subjects.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// KeyedPublisher is implemented by transports that partition by key, so
// messages with the same key are delivered in order.
type KeyedPublisher interface {
	PublishKeyed(ctx context.Context, subject string, key, data []byte) error
}

// Consumer delivers messages to a handler until ctx is cancelled or the
// returned stop function is called.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) (stop func(), err error)
}

// HealthChecker reports whether a broker connection is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}
