package notify

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Reader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

func NewReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
}

// Consume reads events until ctx is cancelled. A message that cannot be
// handled is logged and skipped so one bad event does not block the topic.
func Consume(ctx context.Context, r Reader, n *Notifier, logger *zap.Logger) error {
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("failed to read message", zap.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if err := n.Handle(ctx, m.Value); err != nil {
			logger.Warn("event not delivered",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.ByteString("key", m.Key),
				zap.Error(err))
		}
	}
}
