package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"chatgate/internal/infrastructure/identity/port"
)

// JWTVerifier validates HMAC-signed access tokens carrying a "user_id" claim.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifierFromEnv reads the signing key from JWT_SECRET.
func NewJWTVerifierFromEnv() (*JWTVerifier, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("jwt: JWT_SECRET environment variable is not set")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

var _ port.Verifier = (*JWTVerifier)(nil)

func (v *JWTVerifier) Verify(_ context.Context, token string) (int64, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwt: unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, port.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, port.ErrInvalidToken
	}
	// numeric claims decode as float64
	raw, ok := claims["user_id"].(float64)
	if !ok || raw <= 0 {
		return 0, port.ErrInvalidToken
	}
	return int64(raw), nil
}
