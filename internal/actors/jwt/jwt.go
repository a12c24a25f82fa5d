package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the validity of an issued token.
const DefaultTTL = 7 * 24 * time.Hour

// ErrInvalidToken is returned when a token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims: the registered ones plus the user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// IssuerArgs are the mandatory arguments for the creation of an Issuer.
type IssuerArgs struct {
	// Secret is the HMAC signing key.
	Secret []byte

	// TTL is the token validity. Zero-value means DefaultTTL.
	TTL time.Duration
}

// IssuerOptArgs are the optional arguments for building an Issuer
type IssuerOptArgs = func(*Issuer)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) IssuerOptArgs {
	return func(i *Issuer) {
		i.nowFunc = nowFunc
	}
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewIssuer creates a new Issuer.
func NewIssuer(args IssuerArgs, optArgs ...IssuerOptArgs) (*Issuer, error) {
	if len(args.Secret) == 0 {
		return nil, errors.New("empty jwt secret")
	}
	i := &Issuer{secret: args.Secret, ttl: args.TTL, nowFunc: time.Now}
	if i.ttl == 0 {
		i.ttl = DefaultTTL
	}
	for _, opt := range optArgs {
		opt(i)
	}
	return i, nil
}

// Issue returns a token asserting userID, valid for the configured TTL.
func (i *Issuer) Issue(_ context.Context, userID string) (string, time.Time, error) {
	now := i.nowFunc()
	expiresAt := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the user id of a valid token. Expired, tampered or non-HMAC tokens are rejected.
func (i *Issuer) Verify(_ context.Context, tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.nowFunc), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
