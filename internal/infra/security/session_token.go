package security

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"device-pairing-service/internal/domain/ports/adapter"
)

var _ adapter.SessionTokenIssuer = (*SessionTokenService)(nil)

// SessionTokenService mints the signed session credential handed back to a
// display device after its activation is consumed. Signing only; resource
// servers verify on their side with the shared key.
type SessionTokenService struct {
	signKey  []byte
	lifetime time.Duration
}

func NewSessionTokenService(signKey string, lifetime time.Duration) (*SessionTokenService, error) {
	if signKey == "" {
		return nil, errors.New("session signing key must not be empty")
	}
	return &SessionTokenService{signKey: []byte(signKey), lifetime: lifetime}, nil
}

func (s *SessionTokenService) Issue(_ context.Context, userID, deviceIdentifier string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"dev": deviceIdentifier,
		"iat": now.Unix(),
		"exp": now.Add(s.lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signKey)
}
