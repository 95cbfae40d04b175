package broadcast

import (
	"context"
	"encoding/json"
	"log"

	"live-quiz-service/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks live-quiz-service/internal/broadcast Transport

// Transport moves encoded events to subscribers, locally or across instances.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	PublishToAddress(ctx context.Context, address string, payload []byte) error
}

// Envelope is the wire shape of every pushed event, the same shape clients get for direct
// replies.
type Envelope struct {
	Type    domain.EventType `json:"type"`
	Payload domain.Event     `json:"payload"`
}

// Broadcaster encodes committed events and hands them to the transport. Delivery is best
// effort: failures are logged and never returned.
type Broadcaster struct {
	transport Transport
}

func NewBroadcaster(transport Transport) *Broadcaster {
	return &Broadcaster{transport: transport}
}

// Deliver sends room events to the session topic and addressed events to the participant.
func (b *Broadcaster) Deliver(ctx context.Context, events ...domain.Event) {
	for _, ev := range events {
		payload, err := json.Marshal(Envelope{Type: ev.Type, Payload: ev})
		if err != nil {
			log.Printf("encode %s event for session %s: %v", ev.Type, ev.SessionID, err)
			continue
		}
		if ev.ParticipantID != "" {
			err = b.transport.PublishToAddress(ctx, domain.ParticipantAddress(ev.ParticipantID), payload)
		} else {
			err = b.transport.Publish(ctx, domain.SessionTopic(ev.SessionID), payload)
		}
		if err != nil {
			log.Printf("broadcast %s for session %s failed: %v", ev.Type, ev.SessionID, err)
		}
	}
}
