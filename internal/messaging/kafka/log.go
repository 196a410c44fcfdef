package kafka

import (
	"log/slog"

	"github.com/segmentio/kafka-go"
)

func slogOffset(m kafka.Message) slog.Attr {
	return slog.Group("kafka",
		slog.String("topic", m.Topic),
		slog.Int("partition", m.Partition),
		slog.Int64("offset", m.Offset),
	)
}
