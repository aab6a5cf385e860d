package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/comigor/roundtable/internal/logger"
)

// Sink receives events outside the process, e.g. for a separate presentation layer.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// RedisSink appends events to a redis stream, one entry per event.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: 10000}
}

// NewRedisSinkFromURL parses url, connects and pings before returning.
func NewRedisSinkFromURL(ctx context.Context, url, stream string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisSink(client, stream), nil
}

func (s *RedisSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":    string(e.Type),
			"run_id":  e.RunID,
			"payload": string(payload),
		},
	}).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Forward publishes everything received on ch to sink until ch closes or ctx
// ends. Publish failures are logged and do not stop forwarding.
func Forward(ctx context.Context, ch <-chan Event, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := sink.Publish(ctx, e); err != nil {
				logger.L.WarnContext(ctx, "failed to forward event", "type", e.Type, "run_id", e.RunID, "error", err)
			}
		}
	}
}
