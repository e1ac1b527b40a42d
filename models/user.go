package models

import "gorm.io/gorm"

// User represents a user in the system
type User struct {
	gorm.Model
	Auth0ID  string `gorm:"uniqueIndex;not null;size:100" json:"-"`
	Nickname string `gorm:"unique;not null;size:100"`
	Decks    []Deck `gorm:"foreignKey:UserID"`
}
