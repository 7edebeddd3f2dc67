package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/campuskit/userservice/internal/shared"
)

// OpaqueStore manages opaque lookup keys bound 1:1 to a user, backed by
// Redis. Keys are created at login/registration and deleted at logout; they
// carry no expiry and are revoked only explicitly.
type OpaqueStore struct {
	client *redis.Client
}

// NewOpaqueStore constructs an OpaqueStore.
func NewOpaqueStore(client *redis.Client) *OpaqueStore {
	return &OpaqueStore{client: client}
}

func tokenKey(key string) string {
	return "authtoken:" + key
}

func userKey(userID int64) string {
	return "authtoken:user:" + strconv.FormatInt(userID, 10)
}

// Ensure returns the user's opaque key, creating one when absent. The 1:1
// binding means repeated logins reuse the existing key. Concurrent callers
// race on SetNX over the user binding so only one key is ever minted; losers
// discard their candidate and adopt the winner's key.
func (s *OpaqueStore) Ensure(ctx context.Context, userID int64) (string, error) {
	for {
		key := strings.ReplaceAll(uuid.NewString(), "-", "")
		if err := s.client.Set(ctx, tokenKey(key), strconv.FormatInt(userID, 10), 0).Err(); err != nil {
			return "", err
		}

		claimed, err := s.client.SetNX(ctx, userKey(userID), key, 0).Result()
		if err != nil {
			s.client.Del(ctx, tokenKey(key))
			return "", err
		}
		if claimed {
			return key, nil
		}

		// Lost the race: drop the candidate and adopt the winner's key.
		if err := s.client.Del(ctx, tokenKey(key)).Err(); err != nil {
			return "", err
		}
		winner, err := s.client.Get(ctx, userKey(userID)).Result()
		if err == nil && winner != "" {
			return winner, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", err
		}
		// Winner was revoked between SetNX and Get; mint again.
	}
}

// Find resolves an opaque key to its bound user id. A miss is an invalid
// token, not a missing resource.
func (s *OpaqueStore) Find(ctx context.Context, key string) (int64, error) {
	raw, err := s.client.Get(ctx, tokenKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrInvalidToken
		}
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.ErrInvalidToken
	}
	return id, nil
}

// DeleteForUser revokes the user's opaque key, if any.
func (s *OpaqueStore) DeleteForUser(ctx context.Context, userID int64) error {
	key, err := s.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tokenKey(key))
	pipe.Del(ctx, userKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
