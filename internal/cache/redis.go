package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/logger"
)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedis pings addr once so a bad address fails at startup.
func NewRedis(ctx context.Context, opts *redis.Options, ttl time.Duration, log *slog.Logger) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client, ttl: ttl, log: logger.OrDiscard(log)}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]flight.Offer, bool) {
	cached, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache read failed", "key", key, "err", err)
		}
		return nil, false
	}
	var offers []flight.Offer
	if err := json.Unmarshal([]byte(cached), &offers); err != nil {
		r.log.Warn("cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	return offers, true
}

func (r *Redis) Set(ctx context.Context, key string, offers []flight.Offer) {
	if r.ttl <= 0 {
		return
	}
	data, err := json.Marshal(offers)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Warn("cache write failed", "key", key, "err", err)
	}
}

func (r *Redis) Close() error { return r.client.Close() }
