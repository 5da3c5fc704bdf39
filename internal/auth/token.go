// Package auth - token.go handles bearer token creation, signing, and
// verification using a shared HMAC secret. Tokens carry only the actor name
// used to attribute audit trail entries; they are not an access control
// mechanism.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSigningSecret is returned when token operations are attempted without
// a configured secret.
var ErrNoSigningSecret = errors.New("no signing secret configured")

// Claims represents the bearer token claims structure
type Claims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// ValidateSigningSecret checks the configured token signing secret at startup.
// An empty secret is permitted — the service then runs in anonymous-only mode
// where every mutation is attributed to the anonymous actor — but a short
// secret is rejected because it invites brute-forcing forged identities.
func ValidateSigningSecret(secret string) error {
	if secret == "" {
		slog.Warn("no token signing secret configured; all mutations will be attributed to the anonymous actor",
			"hint", "set CV_AUTH_JWT_SECRET or JWT_SECRET")
		return nil
	}
	if len(secret) < 32 {
		return fmt.Errorf("token signing secret must be at least 32 characters, got %d; generate one with: openssl rand -hex 32", len(secret))
	}
	return nil
}

// CreateToken mints a signed bearer token carrying the given actor name.
// Used by the hash tool for local testing and by integration tests.
func CreateToken(actor, secret string, expiresIn time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSigningSecret
	}
	if expiresIn == 0 {
		expiresIn = 24 * time.Hour
	}

	claims := &Claims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "contact-vault",
			Subject:   actor,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseActor verifies a bearer token and returns the actor name it carries.
// The subject claim is used as a fallback for tokens minted by external
// issuers that do not set the actor claim.
func ParseActor(tokenString, secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSigningSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", errors.New("invalid claims type")
	}

	if claims.Actor != "" {
		return claims.Actor, nil
	}
	return claims.Subject, nil
}
