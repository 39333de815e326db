package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

const redisKeyPrefix = "voicescreen:credentials:"

// RedisStore keeps the slots as fields of one Redis hash per profile, for
// clients that share a session across processes or hosts.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, key: redisKeyPrefix + profile}
}

func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis hgetall credentials: %w", err)
	}

	return fromSlots(func(slot string) ([]byte, bool) {
		v, ok := fields[slot]
		return []byte(v), ok
	}), nil
}

func (s *RedisStore) SaveSession(ctx context.Context, creds models.Credentials, user []byte) error {
	values := make(map[string]any, len(Slots))
	for slot, v := range sessionSlots(creds) {
		values[slot] = string(v)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, values)
		if user == nil {
			pipe.HDel(ctx, s.key, SlotUser)
		} else {
			pipe.HSet(ctx, s.key, SlotUser, string(user))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveAccess(ctx context.Context, token string, expiresAt time.Time) error {
	err := s.client.HSet(ctx, s.key,
		SlotAccessToken, token,
		SlotAccessExpiresAt, formatInstant(expiresAt),
	).Err()
	if err != nil {
		return fmt.Errorf("redis save access token: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveUser(ctx context.Context, user []byte) error {
	if err := s.client.HSet(ctx, s.key, SlotUser, string(user)).Err(); err != nil {
		return fmt.Errorf("redis save user: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteUser(ctx context.Context) error {
	if err := s.client.HDel(ctx, s.key, SlotUser).Err(); err != nil {
		return fmt.Errorf("redis delete user: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis clear credentials: %w", err)
	}
	return nil
}
