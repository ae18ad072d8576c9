package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certfolio/certfolio/internal/models"
	"github.com/certfolio/certfolio/internal/security"
	"gorm.io/gorm"
)

// GormSessionStore keeps sessions in the sessions table. Expired rows may
// persist until the maintenance purge runs but never resolve.
type GormSessionStore struct {
	db *gorm.DB
}

// NewGormSessionStore builds a database-backed session store.
func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

// Create inserts a new session row with a fresh random token.
func (s *GormSessionStore) Create(ctx context.Context, userID uint64, ttl time.Duration) (SessionInfo, error) {
	token, errToken := security.NewSessionToken()
	if errToken != nil {
		return SessionInfo{}, errToken
	}
	now := time.Now().UTC()
	session := models.Session{
		SessionID: token,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&session).Error; errCreate != nil {
		return SessionInfo{}, fmt.Errorf("auth: create session: %w", errCreate)
	}
	return SessionInfo{Token: token, UserID: userID, ExpiresAt: session.ExpiresAt}, nil
}

// Resolve looks up a live session; the expiry check is part of the query so a
// physically present but expired row never resolves.
func (s *GormSessionStore) Resolve(ctx context.Context, token string) (SessionInfo, bool, error) {
	var session models.Session
	errFind := s.db.WithContext(ctx).
		Where("session_id = ? AND expires_at > ?", token, time.Now().UTC()).
		First(&session).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return SessionInfo{}, false, nil
		}
		return SessionInfo{}, false, fmt.Errorf("auth: resolve session: %w", errFind)
	}
	return SessionInfo{Token: session.SessionID, UserID: session.UserID, ExpiresAt: session.ExpiresAt}, true, nil
}

// Delete removes the session row; unknown tokens delete zero rows.
func (s *GormSessionStore) Delete(ctx context.Context, token string) error {
	if errDelete := s.db.WithContext(ctx).Where("session_id = ?", token).Delete(&models.Session{}).Error; errDelete != nil {
		return fmt.Errorf("auth: delete session: %w", errDelete)
	}
	return nil
}

// PurgeExpired deletes sessions past their expiry in batches. It returns the
// number of rows removed.
func (s *GormSessionStore) PurgeExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var total int64
	for {
		result := s.db.WithContext(ctx).
			Where("session_id IN (?)", s.db.Model(&models.Session{}).
				Select("session_id").
				Where("expires_at < ?", time.Now().UTC()).
				Limit(batchSize)).
			Delete(&models.Session{})
		if result.Error != nil {
			return total, fmt.Errorf("auth: purge sessions: %w", result.Error)
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			return total, nil
		}
	}
}
