// Package auth issues and checks workshop edit tokens.
//
// An edit token is an HS256 JWT whose subject is the workshop key it grants
// write access to. Reading a board needs no token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of tokens issued without an explicit one.
const DefaultTTL = 30 * 24 * time.Hour

const scopeEdit = "workshop:edit"

var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// IssueToken signs an edit token for workshop key.
func (s *Service) IssueToken(key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("workshop key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":   key,
		"scope": scopeEdit,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken checks the signature and expiry and returns the workshop key.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	if scope, _ := claims["scope"].(string); scope != scopeEdit {
		return "", fmt.Errorf("%w: missing edit scope", ErrInvalidToken)
	}

	key, ok := claims["sub"].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: invalid token subject", ErrInvalidToken)
	}

	return key, nil
}
