package models

import (
	"gorm.io/gorm"
)

// Character limits for flashcard content, shared by manual create/update and
// the AI suggestion schema.
const (
	MaxFrontLen = 200
	MaxBackLen  = 500
)

// Creation types recorded on each flashcard.
const (
	CreationTypeManual    = "manual"
	CreationTypeGenerated = "generated"
)

// Flashcard represents an individual flashcard
type Flashcard struct {
	gorm.Model
	PublicID string `gorm:"size:100;uniqueIndex"`
	Front    string `gorm:"not null;size:200"`
	Back     string `gorm:"not null;size:500"`

	DeckID uint `gorm:"not null;index"`
	Deck   Deck `gorm:"foreignKey:DeckID" json:"-"`

	// CreationType distinguishes manually entered cards from AI-generated
	// ones. GenerationID backs-references the generation that produced a
	// generated card; deleting a generation nulls it out rather than
	// cascading to the cards.
	CreationType string      `gorm:"not null;size:20;default:manual"`
	GenerationID *uint       `gorm:"index"`
	Generation   *Generation `gorm:"foreignKey:GenerationID;constraint:OnDelete:SET NULL" json:"-"`
}
