// Package auth registers learners, checks their passwords and issues the
// bearer tokens the HTTP API accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/pai-course/internal/course"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything longer
	defaultTokenTTL   = 24 * time.Hour
	tokenIssuer       = "pai-course"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthorized is returned for a missing, malformed or expired token.
	ErrUnauthorized = errors.New("unauthorized")
)

// Config holds dependencies for the auth service.
type Config struct {
	Users    course.UserStore
	Secret   string
	TokenTTL time.Duration    // default 24h
	Cost     int              // bcrypt cost (default bcrypt.DefaultCost)
	Now      func() time.Time // clock (default time.Now)
}

// Service handles registration, login and tokens.
type Service struct {
	users  course.UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewService creates a new auth service.
func NewService(cfg Config) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		users:  cfg.Users,
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		cost:   cost,
		now:    now,
	}
}

// Register creates a learner account.
func (s *Service) Register(ctx context.Context, email, name, password string) (course.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return course.User{}, err
	}
	if len(password) < minPasswordLength {
		return course.User{}, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, course.ErrValidation)
	}
	if len(password) > maxPasswordLength {
		return course.User{}, fmt.Errorf("password must be at most %d bytes: %w", maxPasswordLength, course.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return course.User{}, fmt.Errorf("hash password: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}

	u, err := s.users.CreateUser(ctx, course.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return course.User{}, err
	}

	slog.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks a password and returns the matching user.
func (s *Service) Login(ctx context.Context, email, password string) (course.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return course.User{}, ErrInvalidCredentials
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, course.ErrNotFound) {
		return course.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return course.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return course.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// IssueToken returns a signed access token for userID and its expiry.
func (s *Service) IssueToken(userID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// ParseToken validates a token and returns the user ID it was issued for.
func (s *Service) ParseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: token has no subject or expiry", ErrUnauthorized)
	}
	return claims.Subject, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email %q: %w", email, course.ErrValidation)
	}
	return email, nil
}
