package models

import "time"

// Session represents a server-side login session identified by an opaque token.
type Session struct {
	SessionID string `gorm:"type:varchar(64);primaryKey"` // Opaque random token.

	UserID uint64 `gorm:"not null;index"` // Owning user.

	ExpiresAt time.Time `gorm:"not null;index"`          // Hard expiry; rows past this never resolve.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Issue timestamp.
}
