package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Relay forwards events from the Redis channel into the local hub.
type Relay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
}

func NewRelay(client redis.UniversalClient, channel string, hub *Hub) *Relay {
	return &Relay{client: client, channel: channel, hub: hub}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("events: dropping malformed payload on %s: %v", r.channel, err)
				continue
			}
			r.hub.Dispatch(event)
		}
	}
}
