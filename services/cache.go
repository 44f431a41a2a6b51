package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hpi-forecast/config"
)

// UpdatesChannel carries a ForecastUpdate after every training run.
const UpdatesChannel = "hpi:updates"

// ForecastKeyPrefix prefixes every cached forecast response.
const ForecastKeyPrefix = "forecast:"

type ForecastUpdate struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Horizons    []int     `json:"horizons"`
	Forecasts   any       `json:"forecasts"`
}

// CacheService wraps redis. A service without a client is valid: reads miss
// and writes are dropped, so callers never branch on whether redis is up.
type CacheService struct {
	client *redis.Client
	log    zerolog.Logger
}

// Disabled returns a cache that never stores anything.
func Disabled() *CacheService {
	return &CacheService{log: zerolog.Nop()}
}

func NewCacheService(cfg config.RedisConfig, log zerolog.Logger) (*CacheService, error) {
	if !cfg.Enabled() {
		return &CacheService{log: log}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Retry up to 10 times (covers sidecar startup delay)
	var lastErr error
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client, log: log}, nil
		}
		log.Warn().Err(lastErr).Int("attempt", i+1).Msg("redis ping failed")
		time.Sleep(2 * time.Second)
	}

	client.Close()
	return &CacheService{log: log}, fmt.Errorf("redis ping failed after 10 attempts: %w", lastErr)
}

func (s *CacheService) Client() *redis.Client {
	return s.client
}

func (s *CacheService) Available() bool {
	return s.client != nil
}

// Get decodes the value under key into dest. A miss returns redis.Nil.
func (s *CacheService) Get(ctx context.Context, key string, dest any) error {
	if s.client == nil {
		return redis.Nil
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

func (s *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("cache set failed")
		return err
	}
	return nil
}

func (s *CacheService) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

// DeleteByPrefix removes every key starting with prefix and returns how many
// were deleted.
func (s *CacheService) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if s.client == nil {
		return 0, nil
	}
	var deleted int
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, iter.Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message any) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
