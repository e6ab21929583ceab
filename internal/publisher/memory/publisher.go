// Package memory records run summaries in process instead of publishing them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/jobpost-harvester/internal/harvest"
)

// Message is one recorded publish, encoded the way the Pub/Sub publisher encodes it.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Publisher keeps every publish in order.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes later publishes return err. A nil err restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish JSON-encodes payload and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.err)
	}
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Summaries decodes the run summaries published to topic.
func (p *Publisher) Summaries(topic string) ([]harvest.Summary, error) {
	var out []harvest.Summary
	for _, msg := range p.Messages() {
		if msg.Topic != topic {
			continue
		}
		var s harvest.Summary
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}
