// Package auth issues and verifies the signed session tokens handed to
// clients after login.
package auth

import (
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the token payload: the standard registered claims plus the
// token kind.
type Claims struct {
	jwt.RegisteredClaims
	Type Kind `json:"type"`
}

// TokenCodec signs and verifies HS256 tokens with a single secret.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*TokenCodec)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(secret []byte, opts ...Option) *TokenCodec {
	c := &TokenCodec{secret: secret, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Issue returns a signed token for subject that expires ttl from now.
func (c *TokenCodec) Issue(subject string, kind Kind, ttl time.Duration) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: kind,
	})

	return token.SignedString(c.secret)
}

// Verify checks signature, algorithm, expiry and kind, and returns the
// subject. Every failure is reported as common.ErrorUnauthenticated.
func (c *TokenCodec) Verify(tokenString string, expected Kind) (string, error) {
	claims := &Claims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return "", common.ErrorUnauthenticated
	}

	if claims.Subject == "" || claims.Type != expected {
		return "", common.ErrorUnauthenticated
	}

	return claims.Subject, nil
}
