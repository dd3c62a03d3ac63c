package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog"
)

// KafkaPublisher produces events to a single topic and waits for the
// broker acknowledgement.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	logger   zerolog.Logger
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(evt.Key),
		Value:          value,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(evt.Type)}},
	}, delivery)
	if err != nil {
		return fmt.Errorf("kafka: produce: %w", err)
	}

	select {
	case e := <-delivery:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka: unexpected delivery event %v", e)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("kafka: delivery failed: %w", msg.TopicPartition.Error)
		}
		p.logger.Debug().
			Str("event_type", evt.Type).
			Int32("partition", msg.TopicPartition.Partition).
			Str("offset", msg.TopicPartition.Offset.String()).
			Msg("event delivered")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka: awaiting delivery: %w", ctx.Err())
	}
}

// Close flushes outstanding messages for up to five seconds.
func (p *KafkaPublisher) Close() {
	if left := p.producer.Flush(5000); left > 0 {
		p.logger.Warn().Int("unflushed", left).Msg("kafka producer closed with pending messages")
	}
	p.producer.Close()
}
