// Package auth implements the admin session: a shared secret, compared
// in constant time, exchanged for a JWT, and the claims that middleware validates
// on subsequent /api/admin/* requests. Rebuilt from the call sites its
// consumers expect (handlers/middleware referencing
// auth.NewJWTService, auth.HashPassword, auth.CheckPassword,
// auth.Claims) since the package itself was not present in the
// teacher's tree, only its shape.
package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims identifies the admin session. There is exactly one role in
// this system ("admin"); Role is carried anyway to keep the shape
// consistent with the teacher's multi-role Claims.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService issues and validates admin session tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService builds a service signing with HMAC-SHA256.
func NewJWTService(secret string) *JWTService {
	return &JWTService{secret: []byte(secret), ttl: 24 * time.Hour}
}

// GenerateToken issues a signed token for the admin subject.
func (j *JWTService) GenerateToken(subject, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and verifies a token, returning its claims.
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HashPassword bcrypt-hashes an admin password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckSharedSecret does a constant-time comparison of a bearer value
// against the configured admin shared secret, for the header-gated
// form of /api/admin/* access that does not go through login/JWT.
func CheckSharedSecret(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
