package models

import (
	"time"

	"gorm.io/datatypes"
)

// Certificate represents an uploaded credential with optional inline file payload.
type Certificate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title       string `gorm:"type:text;not null"` // Certificate title.
	Issuer      string `gorm:"type:text;not null"` // Issuing organization.
	Description string `gorm:"type:text"`          // Optional free-text description.

	DateIssued time.Time  `gorm:"not null;index"` // Issue date, list sort key.
	ExpiryDate *time.Time // Optional expiry date.

	FileData []byte `gorm:"type:bytea"` // Inline file payload; nil when absent or offloaded.
	FileKey  string `gorm:"type:text"`  // Object-store key when the payload is offloaded.
	FileName string `gorm:"type:text"`  // Original upload filename.
	FileType string `gorm:"type:text"`  // MIME type as reported by the client.
	FileSize int64  // Payload size in bytes.

	Category string         `gorm:"type:text;not null;index"`        // Display category.
	Skills   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Skill tags in JSON.

	IsPublic bool `gorm:"not null;default:false;index"` // Visible in the public gallery.

	Views      int64      `gorm:"not null;default:0"` // View counter.
	LastViewed *time.Time // Last view-increment timestamp.

	CreatedAt     time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt     time.Time  `gorm:"not null;autoUpdateTime"` // Last metadata update.
	FileUpdatedAt *time.Time // Last file replacement; cache invalidation signal.
}

// HasFile reports whether the certificate carries a file payload, inline or offloaded.
func (c *Certificate) HasFile() bool {
	return len(c.FileData) > 0 || c.FileKey != ""
}

// FileStampedAt returns the timestamp that governs file caching: the file
// replacement time when known, otherwise the closest known update time.
func (c *Certificate) FileStampedAt() time.Time {
	if c.FileUpdatedAt != nil {
		return *c.FileUpdatedAt
	}
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}
