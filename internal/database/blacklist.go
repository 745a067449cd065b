package database

import (
	"context"
	"time"
)

const blacklistPrefix = "driftpanel:blacklist:"

// BlacklistToken marks a JWT as revoked until its natural expiry.
// Used on logout so the token cannot be replayed.
func BlacklistToken(token string, ttl time.Duration) error {
	if Redis == nil {
		return nil
	}
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}
	ctx := context.Background()
	return Redis.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT has been revoked
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}
	ctx := context.Background()
	n, err := Redis.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false
	}
	return n > 0
}
