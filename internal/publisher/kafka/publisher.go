// Package kafka publishes result events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka writer.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes JSON messages keyed by the event URL.
type Publisher struct {
	writer messageWriter
	clock  crawler.Clock
}

var _ crawler.Publisher = (*Publisher)(nil)

// New creates a publisher for cfg. The topic is fixed on the writer.
func New(cfg Config, clock crawler.Clock) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic is required")
	}
	return NewWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}, clock), nil
}

// NewWithWriter builds a publisher using a custom writer (tests).
func NewWithWriter(writer messageWriter, clock crawler.Clock) *Publisher {
	return &Publisher{writer: writer, clock: clock}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish writes the payload synchronously. The returned ID is the message key.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	key := messageKey(payload)
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  p.clock.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return key, nil
}

// messageKey partitions result events by URL so updates for one posting stay ordered.
func messageKey(payload any) string {
	switch ev := payload.(type) {
	case crawler.ResultEvent:
		if ev.URL != "" {
			return ev.URL
		}
		return ev.ID
	case *crawler.ResultEvent:
		if ev != nil {
			return messageKey(*ev)
		}
	}
	return ""
}
