// Package notice implements the permission-notice rate limiter (C2): a
// TTL-bounded "we already told this user" marker keyed by hashed
// (chat, user), backed by Redis.
package notice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caloriebot/internal/inline"
)

// TTL is how long a permission notice suppresses repeat notifications.
const TTL = 24 * time.Hour

// ErrInvalidKey is returned when either half of the (chat, user) key is empty.
var ErrInvalidKey = errors.New("notice: chat_id_hash and source_user_hash are both required")

// Store is the Redis-backed permission-notice store.
type Store struct {
	client redis.UniversalClient
}

// New builds a Store from an existing Redis client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func buildKey(chatHash, userHash string) (string, error) {
	if chatHash == "" || userHash == "" {
		return "", ErrInvalidKey
	}
	return fmt.Sprintf("inline:permission_notice:%s:%s", chatHash, userHash), nil
}

// Mark records that the user has just been shown the permission notice,
// resetting the TTL.
func (s *Store) Mark(ctx context.Context, chatHash, userHash string) (inline.PermissionNotice, error) {
	key, err := buildKey(chatHash, userHash)
	if err != nil {
		return inline.PermissionNotice{}, err
	}
	notice := inline.PermissionNotice{
		ChatIDHash:     chatHash,
		SourceUserHash: userHash,
		LastNotifiedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		return inline.PermissionNotice{}, err
	}
	if err := s.client.Set(ctx, key, payload, TTL).Err(); err != nil {
		return inline.PermissionNotice{}, fmt.Errorf("notice store set: %w", err)
	}
	return notice, nil
}

// Get returns the stored notice, or (zero, false) if none exists or has expired.
func (s *Store) Get(ctx context.Context, chatHash, userHash string) (inline.PermissionNotice, bool, error) {
	key, err := buildKey(chatHash, userHash)
	if err != nil {
		return inline.PermissionNotice{}, false, err
	}
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return inline.PermissionNotice{}, false, nil
	}
	if err != nil {
		return inline.PermissionNotice{}, false, fmt.Errorf("notice store get: %w", err)
	}
	var notice inline.PermissionNotice
	if err := json.Unmarshal([]byte(val), &notice); err != nil {
		return inline.PermissionNotice{}, false, fmt.Errorf("notice store decode: %w", err)
	}
	return notice, true, nil
}

// Due reports whether the user is due a fresh notice. A store error is
// treated as "due" (fail-open), per spec §4.2.
func (s *Store) Due(ctx context.Context, chatHash, userHash string) bool {
	_, found, err := s.Get(ctx, chatHash, userHash)
	if err != nil {
		return true
	}
	return !found
}

// Clear removes a stored notice, if any.
func (s *Store) Clear(ctx context.Context, chatHash, userHash string) error {
	key, err := buildKey(chatHash, userHash)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, key).Err()
}
