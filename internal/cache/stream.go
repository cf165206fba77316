package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream adapts the raw go-redis client to the narrow hash/stream surface
// internal/coordinator needs (HSET/EXPIRE/HGETALL/XADD/XRANGE) — kept out
// of Client itself since nothing else in the module touches streams.
type Stream struct {
	c *Client
}

// NewStream wraps a cache Client for stream/hash access.
func NewStream(c *Client) *Stream {
	return &Stream{c: c}
}

func (s *Stream) HSet(ctx context.Context, key string, values map[string]string) error {
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	return s.c.rdb.HSet(ctx, key, args).Err()
}

func (s *Stream) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.c.rdb.Expire(ctx, key, ttl).Err()
}

func (s *Stream) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.c.rdb.HGetAll(ctx, key).Result()
}

func (s *Stream) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]string) error {
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	return s.c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: args,
	}).Err()
}

func (s *Stream) XRange(ctx context.Context, stream string) ([]map[string]string, error) {
	entries, err := s.c.rdb.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		row := make(map[string]string, len(e.Values))
		for k, v := range e.Values {
			if sv, ok := v.(string); ok {
				row[k] = sv
			}
		}
		out = append(out, row)
	}
	return out, nil
}
