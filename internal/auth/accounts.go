package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/roomchat/internal/domain"
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidUsername is returned when a username is empty or too long.
	ErrInvalidUsername = errors.New("username must be 3 to 50 characters")
	// ErrWeakPassword is returned when password is too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// UserStore is the account persistence Accounts depends on. Lookups of
// unknown users return an error matching domain.ErrNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error)
	FindCredentials(ctx context.Context, username string) (*domain.User, string, error)
}

// Session is a signed-in user with a bearer token.
type Session struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// Accounts registers and signs in users.
type Accounts struct {
	users  UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewAccounts creates an Accounts service.
func NewAccounts(users UserStore, hasher *PasswordHasher, tokens *TokenManager) *Accounts {
	return &Accounts{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account and signs it in.
func (a *Accounts) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 50 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	if len(password) > 72 {
		return nil, ErrPasswordTooLong
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := a.users.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	return a.session(user)
}

// Login verifies credentials and signs the user in.
func (a *Accounts) Login(ctx context.Context, username, password string) (*Session, error) {
	user, hash, err := a.users.FindCredentials(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !a.hasher.Verify(password, hash) {
		return nil, ErrInvalidCredentials
	}
	return a.session(user)
}

// Authenticate verifies a bearer token.
func (a *Accounts) Authenticate(token string) (domain.Identity, error) {
	return a.tokens.Verify(token)
}

func (a *Accounts) session(user *domain.User) (*Session, error) {
	token, err := a.tokens.Issue(domain.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{User: user, Token: token}, nil
}
