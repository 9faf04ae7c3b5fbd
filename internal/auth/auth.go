// Package auth issues and verifies the HS256 JWTs that protect the API
// surface. User management stays external: the gateway only checks a
// static credential list from configuration.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"warden/internal/config"
)

// Roles understood by the route guards.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims is the JWT payload carried by every issued token.
type Claims struct {
	Role     string `json:"role"`
	RateTier string `json:"rate_tier"`
	jwt.RegisteredClaims
}

// Principal is the verified identity attached to a request.
type Principal struct {
	Username string
	Role     string
	RateTier string
}

// Admin reports whether the principal may hit admin routes.
func (p Principal) Admin() bool { return p.Role == RoleAdmin }

// Authenticator verifies credentials and mints tokens. Immutable after
// construction; safe for concurrent use.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	users    map[string]config.CredentialSpec
	logger   *zap.Logger

	// now is swappable in tests for expiry checks.
	now func() time.Time
}

// New builds an authenticator from the auth section of the gateway
// config. An empty JWT secret is an error: tokens signed with a
// guessable key are worse than no auth at all.
func New(cfg config.AuthConfig, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth requires a JWT secret (set WARDEN_JWT_SECRET)")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	users := make(map[string]config.CredentialSpec, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u
	}

	logger.Info("authenticator ready", zap.Int("users", len(users)))
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
		users:    users,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Login checks username/password against the credential list and issues
// a token on success. Password hashes are bcrypt.
func (a *Authenticator) Login(username, password string) (string, error) {
	spec, ok := a.users[username]
	if !ok {
		// Burn a comparison anyway so missing and wrong usernames take
		// the same time.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uGZwT1Zb4lYnVH7u8eW3mW8P1C3UQpW"), []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(spec.PasswordHash), []byte(password)); err != nil {
		a.logger.Warn("failed login attempt", zap.String("username", username))
		return "", ErrInvalidCredentials
	}
	return a.IssueToken(username, spec.Role, spec.RateTier, a.tokenTTL)
}

// IssueToken mints an HS256 token for a principal.
func (a *Authenticator) IssueToken(username, role, rateTier string, ttl time.Duration) (string, error) {
	if role == "" {
		role = RoleUser
	}
	if rateTier == "" {
		rateTier = "free"
	}
	now := a.now()
	claims := Claims{
		Role:     role,
		RateTier: rateTier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, returning its principal.
func (a *Authenticator) VerifyToken(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	return Principal{
		Username: claims.Subject,
		Role:     claims.Role,
		RateTier: claims.RateTier,
	}, nil
}

// HashPassword bcrypt-hashes a plaintext password for the config file.
// Exposed for the CLI's credential helper.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
