package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay fans change events out across API instances when only one of them holds the
// PostgreSQL LISTEN connection.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		logger:  logger.Named("relay"),
	}
}

// Publish implements Publisher. Subscribed markers stay local: every instance emits its own
// when its Redis subscription comes up.
func (r *RedisRelay) Publish(ev Event) {
	if ev.Kind == KindSubscribed {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("marshal event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("publish event", zap.String("table", ev.Table), zap.Error(err))
	}
}

// Run subscribes to the relay channel and republishes every event to pub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, pub Publisher) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	pub.Publish(Event{Kind: KindSubscribed, At: time.Now()})

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			pub.Publish(ev)
		}
	}
}
