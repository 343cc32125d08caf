package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Publisher writes events to the invalidation topic. Messages are keyed by
// Scope so events for one layer stay on one partition and in order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// DialPublisher connects a synchronous producer to brokers.
func DialPublisher(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return NewPublisher(prod, topic), nil
}

// Publish validates ev, filling Version and TS when unset.
func (p *Publisher) Publish(ctx context.Context, ev Event) (partition int32, offset int64, err error) {
	if ev.Version == 0 {
		ev.Version = 1
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return 0, 0, fmt.Errorf("invalid event: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal event: %w", err)
	}
	partition, offset, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Scope()),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("send message: %w", err)
	}
	return partition, offset, nil
}

func (p *Publisher) Close() error { return p.producer.Close() }
