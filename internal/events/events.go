// Package events publishes term changes so other systems can react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
)

// Event types.
const (
	TermsAdded   = "terms.added"
	TermsRemoved = "terms.removed"
	TermsRenamed = "terms.renamed"
	TermsMerged  = "terms.merged"
	TermsDeleted = "terms.deleted"
)

// Event describes one completed term operation.
type Event struct {
	Type     string    `json:"type"`
	Taxonomy string    `json:"taxonomy"`
	Terms    []string  `json:"terms"`
	Target   []string  `json:"target,omitempty"`
	Objects  int       `json:"objects"`
	Time     time.Time `json:"time"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Kafka sends events as JSON messages keyed by taxonomy.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewKafka connects a synchronous producer to brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "taxopress"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Timeout = 5 * time.Second

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: kafka producer: %w", err)
	}
	appLog.Info("kafka producer ready", "brokers", brokers, "topic", topic)
	return NewKafkaWithProducer(p, topic), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic, now: time.Now}
}

func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return fmt.Errorf("events: publisher closed")
	}

	if ev.Time.IsZero() {
		ev.Time = k.now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.Taxonomy),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("events: send %s: %w", ev.Type, err)
	}
	appLog.Debug("event published", "type", ev.Type, "partition", partition, "offset", offset)
	return nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.producer.Close()
}
