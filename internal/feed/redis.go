package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	streamMaxLen = 10000
	// Publishes run on the game loop; an unreachable Redis must not stall it.
	publishTimeout = 2 * time.Second
)

// RedisPublisher appends events to a Redis stream for consumers outside this
// process.
type RedisPublisher struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
}

// NewRedisPublisher appends to stream. The client should be built with
// ContextTimeoutEnabled so the per-publish timeout also bounds reads.
func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, timeout: publishTimeout}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", ev.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":     string(data),
			"match_id": ev.MatchID,
			"chat_id":  ev.ChatID,
			"type":     string(ev.Type),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publishing %s event to %s: %w", ev.Type, p.stream, err)
	}
	return nil
}
