// Package auth signs the reconnect tokens handed out with connect_id.
// A token proves that its bearer was once given a user id, so connect_with_id can
// take that id back from a stale connection.
package auth

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 tokens with a shared secret.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}
}

// Generate creates a signed JWT for a specific user.
func (t *TokenIssuer) Generate(userID string) (string, error) {
	issuedAt := t.now()
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// Validate checks the signature, the issuer and the expiration, then returns the user id.
func (t *TokenIssuer) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", errors.ErrInvalidToken
	}
	return claims.UserID, nil
}
