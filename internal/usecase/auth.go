package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultJWTTTL = 24 * time.Hour

var ErrEmptySubject = errors.New("token subject is required")

// AuthUsecase mints the HS256 bearer tokens the admin API accepts. The API
// has no user store; whoever holds JWT_SECRET decides who gets a token.
type AuthUsecase struct {
	jwtKey []byte
	jwtTTL time.Duration
	clock  func() time.Time
}

func NewAuthUsecase(jwtKey []byte) *AuthUsecase {
	return &AuthUsecase{jwtKey: jwtKey, jwtTTL: defaultJWTTTL, clock: time.Now}
}

// IssueToken returns a signed JWT for subject. ttl <= 0 uses the default of 24h.
func (u *AuthUsecase) IssueToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = u.jwtTTL
	}

	now := u.clock()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(u.jwtKey)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
