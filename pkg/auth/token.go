package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenIssuer is stamped into every session token and required on verify
	TokenIssuer = "family-recipe-app"

	// DefaultTokenTTL is the lifetime of a normal session
	DefaultTokenTTL = 7 * 24 * time.Hour

	// ExtendedTokenTTL is the lifetime of a "remember me" session
	ExtendedTokenTTL = 30 * 24 * time.Hour
)

// TokenTTL returns the session lifetime for the given remember-me choice
func TokenTTL(extended bool) time.Duration {
	if extended {
		return ExtendedTokenTTL
	}
	return DefaultTokenTTL
}

// Subject is the payload a session token is issued for
type Subject struct {
	UserID   string
	TenantID string
	Role     Role
}

// Claims is the decoded content of a valid session token
type Claims struct {
	UserID   string `json:"userId"`
	TenantID string `json:"familySpaceId"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Subject returns the identity part of the claims
func (c *Claims) Subject() Subject {
	return Subject{UserID: c.UserID, TenantID: c.TenantID, Role: c.Role}
}

// TokenCodec signs and verifies HS256 session tokens
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenCodecOption configures a TokenCodec
type TokenCodecOption func(*TokenCodec)

// WithClock overrides the time source used for iat/exp
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a codec for the given secret
func NewTokenCodec(secret string, opts ...TokenCodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	c := &TokenCodec{
		secret: []byte(secret),
		issuer: TokenIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a token for the subject. exp = iat + TokenTTL(extended).
func (c *TokenCodec) Sign(sub Subject, extended bool) (string, error) {
	if sub.UserID == "" || sub.TenantID == "" || !sub.Role.Valid() {
		return "", ErrInvalidSubject
	}

	now := c.now().Truncate(time.Second)
	claims := Claims{
		UserID:   sub.UserID,
		TenantID: sub.TenantID,
		Role:     sub.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL(extended))),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes a token. It returns ok == false for every kind of failure.
func (c *TokenCodec) Verify(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}

	if claims.UserID == "" || claims.TenantID == "" || !claims.Role.Valid() {
		return nil, false
	}
	return claims, true
}
