package repository

import (
	"context"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/domain/repository"
	pkgkafka "TrainCtl/pkg/kafka"
)

// KafkaDecisionPublisher implements DecisionPublisher for Kafka. Events are
// keyed by train so one train's decisions stay ordered on a partition.
type KafkaDecisionPublisher struct {
	producer eventProducer
	topic    string
}

type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// NewKafkaDecisionPublisher creates the publisher.
func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) repository.DecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, evt models.DecisionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(evt.Decision.TrainID), evt)
}

func (p *KafkaDecisionPublisher) Close() error {
	return nil // producer is shared with the log collector
}

// NopDecisionPublisher drops events. Used when Kafka is disabled.
type NopDecisionPublisher struct{}

func (NopDecisionPublisher) Publish(context.Context, models.DecisionEvent) error { return nil }
func (NopDecisionPublisher) Close() error                                          { return nil }
