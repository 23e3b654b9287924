// Package publish streams accepted offers to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/logger"
)

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

// NewSyncProducer dials brokers with acks from all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return sarama.NewSyncProducer(brokers, cfg)
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: logger.OrDiscard(log)}
}

// Upsert sends one message per offer keyed by the offer key, so every
// revision of an offer lands on the same partition.
func (p *KafkaPublisher) Upsert(ctx context.Context, offers []flight.Offer) (int, error) {
	if len(offers) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(offers))
	for _, o := range offers {
		data, err := json.Marshal(o)
		if err != nil {
			p.log.Warn("offer not encoded", "flight_code", o.FlightCode, "err", err)
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(o.Key().String()),
			Value: sarama.ByteEncoder(data),
		})
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return len(msgs) - len(perrs), fmt.Errorf("kafka: %d of %d messages failed: %w", len(perrs), len(msgs), err)
		}
		return 0, fmt.Errorf("kafka: %w", err)
	}
	p.log.Debug("offers published", "topic", p.topic, "count", len(msgs))
	return len(msgs), nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
