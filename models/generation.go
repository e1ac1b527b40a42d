package models

import (
	"gorm.io/gorm"
)

// Generation records one invocation of the AI suggestion pipeline for a deck.
// AcceptedCardsCount stays NULL until the user commits a curated subset of
// the suggestions; the commit operation sets it exactly once, which is what
// makes a second commit against the same generation detectable.
type Generation struct {
	gorm.Model
	PublicID string `gorm:"size:100;uniqueIndex"`

	DeckID uint `gorm:"not null;index"`
	Deck   Deck `gorm:"foreignKey:DeckID" json:"-"`
	UserID uint `gorm:"not null;index"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	ModelName           string `gorm:"size:100"`
	DurationMs          int64  `gorm:"not null"`
	SourceTextLength    int    `gorm:"not null"`
	GeneratedCardsCount int    `gorm:"not null"`
	AcceptedCardsCount  *int   `gorm:"default:null"`
}

// Committed reports whether this generation's suggestions have already been
// flushed to flashcard rows.
func (g *Generation) Committed() bool {
	return g.AcceptedCardsCount != nil
}
