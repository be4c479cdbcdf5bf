package notifier

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/kitties/internal/core/domain"
)

// RedisNotifier publishes every event as JSON on a pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Warn("failed to encode event")
		return
	}
	if err := n.rdb.Publish(context.WithoutCancel(ctx), n.channel, payload).Err(); err != nil {
		log.WithError(err).WithField("event_id", event.ID).Warn("failed to publish event")
	}
}
