package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist records revoked bearer tokens in Redis until they expire on
// their own. Tokens are keyed by digest so raw credentials never land in the
// cache.
type TokenDenylist struct {
	log *log.Logger
	rdb *redis.Client
}

func NewTokenDenylist(logger *log.Logger, redisURL string) (*TokenDenylist, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &TokenDenylist{log: logger, rdb: rdb}, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "devroom:revoked:" + hex.EncodeToString(sum[:])
}

// Revoke marks the token revoked for ttl. A non-positive ttl means the token
// already expired and there is nothing to record.
func (d *TokenDenylist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, tokenKey(token), "1", ttl).Err()
}

func (d *TokenDenylist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := d.rdb.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *TokenDenylist) Close() error {
	return d.rdb.Close()
}
