package broadcast

import (
	"context"
	"sync"
)

// Hub fans payloads out to local subscribers by topic. A slow subscriber loses its oldest
// pending payload instead of blocking the publisher.
type Hub struct {
	buffer int

	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
}

// Subscription receives the payloads of every topic it was opened with.
type Subscription struct {
	hub    *Hub
	ch     chan []byte
	topics []string
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{buffer: buffer, topics: make(map[string]map[*Subscription]struct{})}
}

// Subscribe opens a subscription on the given topics. The caller must Close it.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{hub: h, ch: make(chan []byte, h.buffer), topics: topics}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		subs, ok := h.topics[topic]
		if !ok {
			subs = make(map[*Subscription]struct{})
			h.topics[topic] = subs
		}
		subs[sub] = struct{}{}
	}
	return sub
}

// C is closed once the subscription is closed.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, topic := range s.topics {
		subs := h.topics[topic]
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	close(s.ch)
}

// Publish implements Transport for a single instance.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- payload
		}
	}
	return nil
}

// PublishToAddress delivers to one participant's private topic.
func (h *Hub) PublishToAddress(ctx context.Context, address string, payload []byte) error {
	return h.Publish(ctx, address, payload)
}

// Subscribers reports how many subscriptions listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
