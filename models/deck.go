package models

import (
	"gorm.io/gorm"
)

// MaxFlashcardsPerDeck caps how many flashcards a deck may hold. The limit
// is enforced inside the same transaction as every insert path (manual add
// and bulk commit), never by a read-then-decide outside it.
const MaxFlashcardsPerDeck = 100

// Deck represents a named collection of flashcards owned by a user
type Deck struct {
	gorm.Model
	Title    string `gorm:"not null;size:100"`
	PublicID string `gorm:"size:100;uniqueIndex"`
	UserID   uint   `gorm:"not null"`
	User     User   `gorm:"foreignKey:UserID" json:"-"`

	Flashcards  []Flashcard  `gorm:"foreignKey:DeckID;constraint:OnDelete:CASCADE"`
	Generations []Generation `gorm:"foreignKey:DeckID"`
}
