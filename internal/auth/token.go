// Package auth issues and verifies bearer tokens and manages account
// credentials.
package auth

import (
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tyrowin/roomchat/internal/domain"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// DefaultSecret is the JWT_SECRET used when none is configured. Tokens signed
// with it can be forged by anyone who has read this source.
const DefaultSecret = "change-me-in-production"

// Config holds token and hashing configuration.
type Config struct {
	Secret     string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"roomchat"`
	TTL        time.Duration `env:"JWT_TTL" envDefault:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`
}

// UsesDefaultSecret reports whether tokens would be signed with the
// built-in or an empty secret.
func (c Config) UsesDefaultSecret() bool {
	return c.Secret == "" || c.Secret == DefaultSecret
}

// Claims are the claims carried by a roomchat token.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a TokenManager from cfg.
func NewTokenManager(cfg Config) *TokenManager {
	if cfg.UsesDefaultSecret() {
		log.Println("[auth] WARNING: JWT_SECRET is not set; tokens are signed with the built-in default secret")
	}
	return &TokenManager{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Issue signs a token for id.
func (m *TokenManager) Issue(id domain.Identity) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify validates token and returns the identity it was issued for.
func (m *TokenManager) Verify(token string) (domain.Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrExpiredToken
		}
		return domain.Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}
