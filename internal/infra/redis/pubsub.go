package redis

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the service's pub/sub channels.
const DefaultChannelPrefix = "live-quiz:"

// PubSubTransport publishes encoded events on Redis channels so that every instance can fan them
// out to its own connections.
type PubSubTransport struct {
	client *redis.Client
	prefix string
}

func NewPubSubTransport(client *redis.Client, prefix string) *PubSubTransport {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &PubSubTransport{client: client, prefix: prefix}
}

func (t *PubSubTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return t.client.Publish(ctx, t.prefix+topic, payload).Err()
}

func (t *PubSubTransport) PublishToAddress(ctx context.Context, address string, payload []byte) error {
	return t.client.Publish(ctx, t.prefix+address, payload).Err()
}

// LocalPublisher receives relayed payloads, usually the in-process hub.
type LocalPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Relay subscribes to every channel under the prefix and republishes messages locally.
type Relay struct {
	client *redis.Client
	prefix string
	local  LocalPublisher

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRelay(client *redis.Client, prefix string, local LocalPublisher) *Relay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Relay{client: client, prefix: prefix, local: local, ready: make(chan struct{})}
}

// Ready is closed once the subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run blocks until ctx is done or the subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.readyOnce.Do(func() { close(r.ready) })

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, r.prefix)
			if err := r.local.Publish(ctx, topic, []byte(msg.Payload)); err != nil {
				log.Printf("relay %s: %v", topic, err)
			}
		}
	}
}
