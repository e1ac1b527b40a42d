package models

import (
	"time"
)

// GenerationError is an append-only audit record of AI pipeline failures.
// Rows are only ever inserted; there is no update or delete path.
type GenerationError struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       uint   `gorm:"not null;index"`
	DeckID       *uint  `gorm:"index"`
	Code         string `gorm:"size:50"`
	ErrorMessage string `gorm:"not null;size:1000"`
	CreatedAt    time.Time
}
