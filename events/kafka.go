// Package events delivers committed ledger changes to collaborators:
// Kafka for the notification and reporting services, the log for local runs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/warp/site-ledger/ledger"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Kafka struct {
	writer  messageWriter
	Timeout time.Duration
}

func NewKafka(brokers []string, topic string) *Kafka {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return &Kafka{writer: writer, Timeout: 5 * time.Second}
}

// Publish writes one message per event, keyed by material so a consumer
// sees one material's changes in commit order.
func (p *Kafka) Publish(ctx context.Context, evs ...ledger.Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, e := range evs {
		msg, err := toMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write ledger events to kafka: %w", err)
	}
	return nil
}

func (p *Kafka) Close() error {
	return p.writer.Close()
}

func toMessage(e ledger.Event) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	key := string(e.MaterialID)
	if key == "" {
		key = string(e.ProjectID)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}
