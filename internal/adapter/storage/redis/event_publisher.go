package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"gift-exchange-escrow/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// EventPublisher implements ports.EventPublisher over Redis Pub/Sub.
// Delivery is at-most-once; the persisted event table is the source of truth.
type EventPublisher struct {
	client  goredis.UniversalClient
	channel string
}

// NewEventPublisher creates a publisher writing to channel.
func NewEventPublisher(client goredis.UniversalClient, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

// Channel returns the Pub/Sub channel name.
func (p *EventPublisher) Channel() string {
	return p.channel
}

// Publish sends ev as JSON.
func (p *EventPublisher) Publish(ctx context.Context, ev *domain.ExchangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
