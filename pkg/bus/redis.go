package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamConfig configures one Redis Streams endpoint.
type StreamConfig struct {
	Addr     string
	Stream   string
	Group    string        // consumer group identity
	Consumer string        // unique member name within the group
	Block    time.Duration // max time one XREADGROUP call blocks
}

// RedisConsumer consumes a Redis stream through a consumer group, one entry
// at a time. Entries carry a "key" (device identity) and "value" (envelope)
// field, mirroring a keyed broker record.
type RedisConsumer struct {
	rdb *redis.Client
	cfg StreamConfig
}

// NewRedisConsumer connects and ensures the consumer group exists.
func NewRedisConsumer(ctx context.Context, cfg StreamConfig) (*RedisConsumer, error) {
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	err := rdb.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = rdb.Close()
		return nil, fmt.Errorf("create consumer group %s on %s: %w", cfg.Group, cfg.Stream, err)
	}
	return &RedisConsumer{rdb: rdb, cfg: cfg}, nil
}

// Consume blocks for the next entry. A block timeout loops back into another
// bounded read rather than waiting forever on one call, so cancellation is
// always observed within cfg.Block.
func (c *RedisConsumer) Consume(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    1,
			Block:    c.cfg.Block,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, fmt.Errorf("read stream %s: %w", c.cfg.Stream, err)
		}
		if len(res) == 0 || len(res[0].Messages) == 0 {
			continue
		}
		entry := res[0].Messages[0]
		key, _ := entry.Values["key"].(string)
		value, _ := entry.Values["value"].(string)
		return Message{ID: entry.ID, Key: key, Value: []byte(value)}, nil
	}
}

// Ack acknowledges a processed entry.
func (c *RedisConsumer) Ack(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// Close releases the connection.
func (c *RedisConsumer) Close() error { return c.rdb.Close() }

// RedisPublisher appends alert entries to an outbound stream. go-redis
// clients are safe for concurrent use, so one publisher serves all workers.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
}

// NewRedisPublisher connects to the outbound stream.
func NewRedisPublisher(addr, stream string) *RedisPublisher {
	return &RedisPublisher{rdb: redis.NewClient(&redis.Options{Addr: addr}), stream: stream}
}

// Publish appends one entry.
func (p *RedisPublisher) Publish(ctx context.Context, m Message) error {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"key": m.Key, "value": string(m.Value)},
	}).Err()
	if err != nil {
		return fmt.Errorf("append to stream %s: %w", p.stream, err)
	}
	return nil
}

// Close releases the connection.
func (p *RedisPublisher) Close() error { return p.rdb.Close() }
