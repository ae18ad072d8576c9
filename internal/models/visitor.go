package models

import "time"

// Visitor represents one logical site visitor: one row per IP per calendar day.
type Visitor struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	IP        string `gorm:"type:varchar(45);not null;uniqueIndex:idx_visitors_ip_day"` // Client IP.
	VisitDate string `gorm:"type:varchar(10);not null;uniqueIndex:idx_visitors_ip_day"` // Local day, "2006-01-02".

	UserAgent string `gorm:"type:text"` // User agent of the first visit.

	FirstVisit time.Time  `gorm:"not null"` // First visit of the day.
	LastVisit  *time.Time // Most recent visit of the day.

	VisitCount int64 `gorm:"not null;default:1"` // Visits from this IP today.
}
