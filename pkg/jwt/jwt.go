package jwt

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "go-pricebook-sync"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
)

// Claims carries the operator name and the privileges granted to the token.
type Claims struct {
	Name       string   `json:"name"`
	Privileges []string `json:"privileges"`
	jwt.RegisteredClaims
}

// HasPrivilege reports whether the token grants code.
func (c *Claims) HasPrivilege(code string) bool {
	for _, p := range c.Privileges {
		if p == code {
			return true
		}
	}
	return false
}

var (
	secretMu sync.RWMutex
	secret   []byte
)

// SetSecret overrides the signing key; an empty value falls back to JWT_SECRET.
func SetSecret(s string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if s == "" {
		secret = nil
		return
	}
	secret = []byte(s)
}

// GetSecretKey returns the configured secret, JWT_SECRET, or a development default
func GetSecretKey() []byte {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if secret != nil {
		return secret
	}
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		s = "your-super-secret-key-change-in-production"
	}
	return []byte(s)
}

// GenerateToken signs a token for an operator. A non-positive ttl means 24 hours.
func GenerateToken(name string, privileges []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()

	claims := &Claims{
		Name:       name,
		Privileges: privileges,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(GetSecretKey())
}

// ValidateToken parses and validates a JWT token
func ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return GetSecretKey(), nil
	}, jwt.WithIssuer(Issuer))

	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
