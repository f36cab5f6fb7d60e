package auth

import (
	"context"
	"time"
)

// TokenBlacklist is the storage interface for revoked JWT IDs.
type TokenBlacklist interface {
	// Add blacklists jti until the token's original expiry, after which the
	// entry may be dropped.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted reports whether jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
