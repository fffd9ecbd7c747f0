package sender

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per notification, keyed by user id so a
// user's notifications stay ordered within a partition.
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Deliver(ctx context.Context, b Broadcast) error {
	if len(b.Notifications) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(b.Notifications))
	for _, n := range b.Notifications {
		val, err := json.Marshal(n)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(n.UserID),
			Value: val,
			Headers: []kafka.Header{
				{Key: "alert_type", Value: []byte(b.Key.AlertType)},
				{Key: "dedup_key", Value: []byte(b.Key.Fingerprint())},
			},
		})
	}
	return retry(ctx, maxSendRetries, retryDelay, func() error {
		return k.w.WriteMessages(ctx, msgs...)
	})
}

func (k *KafkaSink) Close() error { return k.w.Close() }
