package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lemur:session:"

var ErrRecordNotFound = errors.New("session record not found")

// Record is the member session bundle kept per user. One record per user;
// starting a new session overwrites the previous one.
type Record struct {
	TokenHash string
	ExpiresAt time.Time
	IPHash    string
	UAHash    string
}

// Store keeps session records as Redis hashes.
type Store struct {
	redis *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{redis: client}
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (s *Store) Save(ctx context.Context, userID int64, rec Record) error {
	k := key(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"token_hash", rec.TokenHash,
			"expires_at", rec.ExpiresAt.Unix(),
			"ip_hash", rec.IPHash,
			"ua_hash", rec.UAHash,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %d: %w", userID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, userID int64) (Record, error) {
	fields, err := s.redis.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load session %d: %w", userID, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrRecordNotFound
	}
	return decode(fields)
}

// Delete removes the whole bundle. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if err := s.redis.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("delete session %d: %w", userID, err)
	}
	return nil
}

// Scan calls fn for every stored record.
func (s *Store) Scan(ctx context.Context, fn func(userID int64, rec Record) error) error {
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		userID, err := strconv.ParseInt(strings.TrimPrefix(k, keyPrefix), 10, 64)
		if err != nil {
			continue
		}
		fields, err := s.redis.HGetAll(ctx, k).Result()
		if err != nil {
			return fmt.Errorf("load session %d: %w", userID, err)
		}
		if len(fields) == 0 {
			continue
		}
		rec, err := decode(fields)
		if err != nil {
			return err
		}
		if err := fn(userID, rec); err != nil {
			return err
		}
	}
	return iter.Err()
}

func decode(fields map[string]string) (Record, error) {
	rec := Record{
		TokenHash: fields["token_hash"],
		IPHash:    fields["ip_hash"],
		UAHash:    fields["ua_hash"],
	}
	if raw := fields["expires_at"]; raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("decode expires_at: %w", err)
		}
		rec.ExpiresAt = time.Unix(unix, 0)
	}
	return rec, nil
}
