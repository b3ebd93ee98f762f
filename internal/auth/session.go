package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps one Redis key per issued token so that logout can
// revoke a single token and user deletion can revoke all of them.
//
//	session:<jti>         -> user id, expires with the token
//	user_sessions:<uid>   -> set of live jtis
type SessionStore struct {
	rdb redis.UniversalClient
}

func NewSessionStore(rdb redis.UniversalClient) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func sessionKey(id string) string     { return "session:" + id }
func userSessionsKey(id string) string { return "user_sessions:" + id }

// Create records a live session for ttl.
func (s *SessionStore) Create(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sessionID), userID, ttl)
		pipe.SAdd(ctx, userSessionsKey(userID), sessionID)
		pipe.Expire(ctx, userSessionsKey(userID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// Active reports whether sessionID is live and belongs to userID.
func (s *SessionStore) Active(ctx context.Context, sessionID, userID string) (bool, error) {
	owner, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading session: %w", err)
	}
	return owner == userID, nil
}

// Revoke deletes one session. Revoking an unknown session is not an error.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	owner, err := s.rdb.GetDel(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if err := s.rdb.SRem(ctx, userSessionsKey(owner), sessionID).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session of userID and returns how many were live.
func (s *SessionStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}

	var deleted *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userSessionsKey(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}
