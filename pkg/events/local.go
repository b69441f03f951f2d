package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/google/uuid"
)

// LocalBus delivers events synchronously inside the process. It stands in for
// NATS when NATS_URL is empty and in tests. Queue groups deliver each message
// to one member, picked round-robin.
type LocalBus struct {
	mu     sync.RWMutex
	closed bool
	plain  []localSub
	queues map[string]*localQueue
}

type localSub struct {
	subject string
	handler func(msg *Message)
}

type localQueue struct {
	subject string
	members []func(msg *Message)
	next    int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{queues: make(map[string]*localQueue)}
}

func (b *LocalBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	msg := &Message{Subject: subject, Data: payload, Timestamp: time.Now(), ID: uuid.NewString()}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus closed")
	}
	var handlers []func(msg *Message)
	for _, s := range b.plain {
		if subjectMatches(s.subject, subject) {
			handlers = append(handlers, s.handler)
		}
	}
	for _, q := range b.queues {
		if subjectMatches(q.subject, subject) && len(q.members) > 0 {
			handlers = append(handlers, q.members[q.next%len(q.members)])
			q.next++
		}
	}
	b.mu.Unlock()

	logger.DebugContext(ctx, "Publishing local event", "subject", subject, "handlers", len(handlers))
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *LocalBus) Subscribe(subject string, handler func(msg *Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}
	b.plain = append(b.plain, localSub{subject: subject, handler: handler})
	return nil
}

func (b *LocalBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}
	key := subject + "|" + queue
	q, ok := b.queues[key]
	if !ok {
		q = &localQueue{subject: subject}
		b.queues[key] = q
	}
	q.members = append(q.members, handler)
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.plain = nil
	b.queues = make(map[string]*localQueue)
	return nil
}

// subjectMatches applies NATS wildcard rules: "*" matches one token and a
// trailing ">" matches the rest.
func subjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return i < len(s)
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
