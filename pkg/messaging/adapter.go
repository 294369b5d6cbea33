package messaging

import (
	"context"
)

// BrokerPublisher wraps every event in a Message and sends it to
// "<prefix>.<event type>".
type BrokerPublisher struct {
	broker Broker
	prefix string
}

func NewBrokerPublisher(broker Broker, prefix string) *BrokerPublisher {
	return &BrokerPublisher{broker: broker, prefix: prefix}
}

func (p *BrokerPublisher) Channel(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *BrokerPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return p.broker.Publish(ctx, p.Channel(eventType), Message{Type: eventType, Payload: payload})
}

func (p *BrokerPublisher) Close() error {
	return p.broker.Close()
}
