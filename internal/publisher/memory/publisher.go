// Package memory records result events in process for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Publisher stores published payloads as the JSON a broker would receive.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID    string
	Topic string
	Data  []byte
}

var _ crawler.Publisher = (*Publisher)(nil)

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes the payload and returns a sequential pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events decodes every recorded message as a ResultEvent.
func (p *Publisher) Events() ([]crawler.ResultEvent, error) {
	msgs := p.Messages()
	events := make([]crawler.ResultEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev crawler.ResultEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
