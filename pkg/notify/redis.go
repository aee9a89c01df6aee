package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier pushes notifications onto a Redis list for durable
// consumers and publishes them on a channel for live ones.
type RedisNotifier struct {
	rdb     *redis.Client
	list    string
	channel string
	maxLen  int64
}

type RedisOption func(*RedisNotifier)

func WithList(name string) RedisOption {
	return func(n *RedisNotifier) { n.list = strings.TrimSpace(name) }
}

func WithChannel(name string) RedisOption {
	return func(n *RedisNotifier) { n.channel = strings.TrimSpace(name) }
}

// WithMaxLen trims the list to the newest n entries; 0 keeps everything.
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisNotifier) { r.maxLen = n }
}

func NewRedisNotifier(rdb *redis.Client, opts ...RedisOption) *RedisNotifier {
	n := &RedisNotifier{
		rdb:     rdb,
		list:    "singles:notifications",
		channel: "singles:notifications",
		maxLen:  10000,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, participantIDs []string, message string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(Notification{
		ParticipantIDs: participantIDs,
		Message:        message,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := n.rdb.TxPipeline()
	if n.list != "" {
		pipe.RPush(ctx, n.list, payload)
		if n.maxLen > 0 {
			pipe.LTrim(ctx, n.list, -n.maxLen, -1)
		}
	}
	if n.channel != "" {
		pipe.Publish(ctx, n.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis notify: %w", err)
	}
	return nil
}
