// Package auth verifies admin credentials and manages server-side sessions.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/certfolio/certfolio/internal/models"
	"github.com/certfolio/certfolio/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Authentication errors. All credential and session failures funnel into these
// two values so callers cannot distinguish "unknown user" from "wrong password"
// or "expired" from "forged".
var (
	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNoSession indicates a missing, unknown, or expired session.
	ErrNoSession = errors.New("auth: no session")
)

// SessionInfo describes a resolved session.
type SessionInfo struct {
	Token     string
	UserID    uint64
	ExpiresAt time.Time
}

// SessionStore persists opaque session tokens.
type SessionStore interface {
	// Create stores a new session for userID and returns its token.
	Create(ctx context.Context, userID uint64, ttl time.Duration) (SessionInfo, error)
	// Resolve returns the session for token; ok is false for unknown or
	// expired tokens.
	Resolve(ctx context.Context, token string) (SessionInfo, bool, error)
	// Delete removes the session; deleting an unknown token is a no-op.
	Delete(ctx context.Context, token string) error
}

// Service implements credential verification and session lifecycle.
type Service struct {
	db       *gorm.DB
	sessions SessionStore
	ttl      time.Duration
}

// NewService wires an auth service with its user database and session store.
func NewService(db *gorm.DB, sessions SessionStore, ttl time.Duration) *Service {
	return &Service{db: db, sessions: sessions, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// VerifyCredentials checks username/password against the users table. On
// success it stamps last_login and upgrades legacy SHA-256 hashes to bcrypt.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.Errorf("auth: lookup user %s: %v", username, errFind)
		}
		return nil, ErrInvalidCredentials
	}

	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	updates := map[string]any{"last_login": now}
	if security.IsLegacyHash(user.PasswordHash) {
		if rehash, errHash := security.HashPassword(password); errHash == nil {
			updates["password_hash"] = rehash
			user.PasswordHash = rehash
		}
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
		// Login still succeeds; the stamp is best-effort.
		log.Errorf("auth: update last_login for user %d: %v", user.ID, errUpdate)
	}
	user.LastLogin = &now
	return &user, nil
}

// CreateSession issues a new session for userID. Each call creates a fresh
// session; concurrent sessions per user are allowed.
func (s *Service) CreateSession(ctx context.Context, userID uint64) (SessionInfo, error) {
	return s.sessions.Create(ctx, userID, s.ttl)
}

// GetSession resolves a cookie token to its session and owning user. It fails
// closed with ErrNoSession when the token is empty, unknown, expired, or the
// user has been deleted since issuance.
func (s *Service) GetSession(ctx context.Context, token string) (*models.User, SessionInfo, error) {
	if strings.TrimSpace(token) == "" {
		return nil, SessionInfo{}, ErrNoSession
	}
	info, ok, errResolve := s.sessions.Resolve(ctx, token)
	if errResolve != nil {
		log.Errorf("auth: resolve session: %v", errResolve)
		return nil, SessionInfo{}, ErrNoSession
	}
	if !ok {
		return nil, SessionInfo{}, ErrNoSession
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).First(&user, info.UserID).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.Errorf("auth: load session user %d: %v", info.UserID, errFind)
		}
		return nil, SessionInfo{}, ErrNoSession
	}
	return &user, info, nil
}

// DeleteSession destroys the session for token; unknown tokens are a no-op.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}
