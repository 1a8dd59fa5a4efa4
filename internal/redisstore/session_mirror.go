package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vendsim/internal/vending"
)

// Store mirrors the live vend session into redis for operational
// dashboards. It is a read model only; the machine never reads it back.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed mirror.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("vendsim:session:%s", sessionID)
}

// SaveSession caches the live session.
func (s *Store) SaveSession(ctx context.Context, session vending.LiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.SessionID), data, s.ttl).Err()
}

// GetSession returns a mirrored session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*vending.LiveSession, error) {
	result, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	var session vending.LiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a mirrored session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
