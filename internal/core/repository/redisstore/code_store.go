package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

const (
	codeNamespace     = "verify:code"
	attemptsNamespace = "verify:attempts"
	cooldownNamespace = "verify:cooldown"
)

// CodeStore implements domain.CodeStore. Only code hashes are stored.
type CodeStore struct {
	client redis.UniversalClient
}

func NewCodeStore(client redis.UniversalClient) *CodeStore {
	return &CodeStore{client: client}
}

func (s *CodeStore) AcquireCooldown(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	cooldownKey := cooldownNamespace + ":" + key

	ok, err := s.client.SetNX(ctx, cooldownKey, "1", cooldown).Result()
	if err != nil {
		return false, 0, fmt.Errorf("acquire cooldown: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := s.client.TTL(ctx, cooldownKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("read cooldown ttl: %w", err)
	}
	if ttl < 0 {
		ttl = cooldown
	}
	return false, ttl, nil
}

func (s *CodeStore) ReleaseCooldown(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, cooldownNamespace+":"+key).Err(); err != nil {
		return fmt.Errorf("release cooldown: %w", err)
	}
	return nil
}

func (s *CodeStore) SaveCode(ctx context.Context, key, hash string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeNamespace+":"+key, hash, ttl)
		pipe.Del(ctx, attemptsNamespace+":"+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	return nil
}

func (s *CodeStore) GetCode(ctx context.Context, key string) (string, error) {
	hash, err := s.client.Get(ctx, codeNamespace+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrCodeExpired
	}
	if err != nil {
		return "", fmt.Errorf("get code: %w", err)
	}
	return hash, nil
}

// IncrementAttempts counts a verification attempt; the counter expires with the code.
func (s *CodeStore) IncrementAttempts(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	attemptsKey := attemptsNamespace + ":" + key

	cnt, err := s.client.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	if cnt == 1 {
		_ = s.client.Expire(ctx, attemptsKey, ttl).Err()
	}
	return cnt, nil
}

func (s *CodeStore) DeleteCode(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, codeNamespace+":"+key, attemptsNamespace+":"+key).Err(); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}
