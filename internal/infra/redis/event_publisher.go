package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// PassedChannel carries a JSON domain.PassEvent for every passing attempt.
const PassedChannel = "quiz:events:passed"

// EventPublisher publishes pass events over Redis pub/sub.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client, channel: PassedChannel}
}

func (p *EventPublisher) PublishPass(ctx context.Context, event domain.PassEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish pass event: %w", err)
	}
	return nil
}
