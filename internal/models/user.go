package models

import "time"

// User represents an administrator account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username     string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	PasswordHash string `gorm:"type:text;not null"`             // Hashed password.

	Role string `gorm:"type:text;not null;default:'admin'"` // Account role.

	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	LastLogin *time.Time // Last successful login, nil until first login.
}
