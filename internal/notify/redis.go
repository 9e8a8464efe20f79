package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// listQueueMax bounds the list queue so an idle consumer cannot grow it
// without limit.
const listQueueMax = 10000

// RedisBackend publishes collaboration events over Redis. Pub/sub mode
// fans out on a per-document channel so peers subscribe to just the
// documents they care about; list mode feeds a bounded work queue.
type RedisBackend struct {
	client  *redis.Client
	channel string
	listKey string
}

func NewRedisBackend(addr, channel, listKey string) *RedisBackend {
	return &RedisBackend{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		listKey: listKey,
	}
}

func (r *RedisBackend) Name() string {
	return "redis"
}

func (r *RedisBackend) Publish(ctx context.Context, documentID string, payload []byte) error {
	if r.channel != "" {
		if err := r.client.Publish(ctx, r.channel+":"+documentID, payload).Err(); err != nil {
			return err
		}
	}
	if r.listKey != "" {
		pipe := r.client.TxPipeline()
		pipe.LPush(ctx, r.listKey, payload)
		pipe.LTrim(ctx, r.listKey, 0, listQueueMax-1)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
