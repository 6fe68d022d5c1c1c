package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, message []byte) error

// StartConsumer reads messages from the topic in a background goroutine and
// hands them to the handler. Offsets are committed only after the handler
// returns nil, so a failed message is redelivered.
func StartConsumer(ctx context.Context, brokers []string, topic, groupID string, handler MessageHandler, l *zap.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		Logger:         zap.NewStdLog(l.With(zap.String("kafka_component", "consumer"))),
	})

	l.Info("Kafka consumer started",
		zap.String("topic", topic),
		zap.String("group_id", groupID),
		zap.Strings("brokers", brokers))

	go func() {
		defer func() {
			if err := reader.Close(); err != nil {
				l.Error("Failed to close Kafka consumer", zap.Error(err))
			} else {
				l.Info("Kafka consumer closed.")
			}
		}()

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				l.Error("Error fetching message from Kafka", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			if err := handler(ctx, m.Value); err != nil {
				l.Error("Error handling Kafka message",
					zap.String("topic", m.Topic),
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
					zap.Error(err))
				continue
			}

			if err := reader.CommitMessages(ctx, m); err != nil {
				l.Error("Failed to commit offset for message",
					zap.String("topic", m.Topic),
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
					zap.Error(err))
			}
		}
	}()
}
