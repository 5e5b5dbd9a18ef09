package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/storefront/internal/model"
)

// releaseScript удаляет ключ только если попытка ещё не завершена.
var releaseScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and cjson.decode(v).status == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// NewRedisClient подключается к Redis по URL и проверяет соединение.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisIdempotencyStore хранит ключи идемпотентности в Redis с TTL, равным окну хранения.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore создаёт хранилище ключей идемпотентности поверх клиента Redis.
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func attemptKey(buyer uuid.UUID, key string) string {
	return fmt.Sprintf("payment:attempt:%s:%s", buyer, key)
}

// ClaimPayment захватывает ключ через SET NX.
func (s *RedisIdempotencyStore) ClaimPayment(ctx context.Context, buyer uuid.UUID, key string, window time.Duration) (*model.PaymentAttempt, bool, error) {
	k := attemptKey(buyer, key)
	attempt := model.PaymentAttempt{
		Buyer:     buyer,
		Key:       key,
		Status:    model.AttemptPending,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return nil, false, fmt.Errorf("encode attempt: %w", err)
	}

	// Ключ может истечь между SETNX и GET, тогда пробуем ещё раз.
	for i := 0; i < 2; i++ {
		ok, err := s.client.SetNX(ctx, k, data, window).Result()
		if err != nil {
			return nil, false, fmt.Errorf("claim payment: %w", err)
		}
		if ok {
			return &attempt, true, nil
		}

		raw, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("get payment attempt: %w", err)
		}

		var existing model.PaymentAttempt
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, false, fmt.Errorf("decode attempt: %w", err)
		}
		return &existing, false, nil
	}

	return nil, false, fmt.Errorf("claim payment: key %s is flapping", k)
}

// CompletePayment отмечает попытку завершённой, сохраняя оставшийся TTL.
// Если ключ уже истёк, ничего не записывает.
func (s *RedisIdempotencyStore) CompletePayment(ctx context.Context, buyer uuid.UUID, key string, orderID uuid.UUID) error {
	attempt := model.PaymentAttempt{
		Buyer:     buyer,
		Key:       key,
		Status:    model.AttemptCompleted,
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}

	err = s.client.SetArgs(ctx, attemptKey(buyer, key), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("complete payment: %w", err)
	}
	return nil
}

// ReleasePayment удаляет незавершённую попытку.
func (s *RedisIdempotencyStore) ReleasePayment(ctx context.Context, buyer uuid.UUID, key string) error {
	err := releaseScript.Run(ctx, s.client, []string{attemptKey(buyer, key)}, string(model.AttemptPending)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release payment: %w", err)
	}
	return nil
}
