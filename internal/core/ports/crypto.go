package ports

import (
	"context"
	"time"
)

// PasswordHasher hashes and verifies plain-text passwords.
type PasswordHasher interface {
	// Hash returns the encoded hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify reports whether password matches the encoded hash.
	Verify(ctx context.Context, password, encodedHash string) (bool, error)
}

// TokenIssuer signs and verifies time-limited identity assertions.
type TokenIssuer interface {
	// Issue returns a signed token for the user id and its expiry.
	Issue(ctx context.Context, userID string) (token string, expiresAt time.Time, err error)

	// Verify returns the user id asserted by a valid, unexpired token.
	Verify(ctx context.Context, token string) (userID string, err error)
}
