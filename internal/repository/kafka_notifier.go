package repository

import (
	"context"

	"SpikeWatch/internal/domain/models"
)

// EventProducer is the part of pkg/kafka.Producer the notifier needs.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaNotifier publishes lifecycle events as JSON, keyed by instrument so a
// partition sees one instrument's events in order.
type KafkaNotifier struct {
	producer EventProducer
	topic    string
}

func NewKafkaNotifier(producer EventProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Name() string { return "kafka" }

func (n *KafkaNotifier) Notify(ctx context.Context, ev models.Event) error {
	key := ev.Instrument
	if key == "" {
		key = string(ev.Type)
	}
	return n.producer.Publish(ctx, n.topic, []byte(key), ev)
}

func (n *KafkaNotifier) Close() error {
	if n.producer != nil {
		return n.producer.Close()
	}
	return nil
}
