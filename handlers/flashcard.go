package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"

	"github.com/studydeck/studydeck-api/models"
)

var errDeckFull = errors.New("deck is full")

func validCardFields(front, back string) error {
	if front == "" || back == "" {
		return fmt.Errorf("flashcard front and back are required")
	}
	if utf8.RuneCountInString(front) > models.MaxFrontLen {
		return fmt.Errorf("flashcard front must be at most %d characters", models.MaxFrontLen)
	}
	if utf8.RuneCountInString(back) > models.MaxBackLen {
		return fmt.Errorf("flashcard back must be at most %d characters", models.MaxBackLen)
	}
	return nil
}

func (db *DBHandler) CreateFlashcard(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var requestData struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	}
	if err := decoder.Decode(&requestData); err != nil {
		http.Error(w, "Could not decode request", http.StatusBadRequest)
		return
	}
	if err := validCardFields(requestData.Front, requestData.Back); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		http.Error(w, "Failed to generate ID", http.StatusInternalServerError)
		return
	}

	flashcard := models.Flashcard{
		PublicID:     publicID,
		Front:        requestData.Front,
		Back:         requestData.Back,
		DeckID:       deck.ID,
		CreationType: models.CreationTypeManual,
	}

	// Touching the deck row takes its lock, so concurrent inserts into the
	// same deck serialize and the capacity count only runs after any other
	// inserter has committed. FOR UPDATE is not used because the sqlite
	// test databases reject it.
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Deck{}).
			Where("id = ?", deck.ID).
			Update("updated_at", time.Now()).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Flashcard{}).
			Where("deck_id = ?", deck.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= models.MaxFlashcardsPerDeck {
			return errDeckFull
		}
		return tx.Create(&flashcard).Error
	})
	if err != nil {
		if errors.Is(err, errDeckFull) {
			http.Error(w, fmt.Sprintf("Deck is limited to %d flashcards", models.MaxFlashcardsPerDeck), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create flashcard", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, flashcard)
}

func (db *DBHandler) GetFlashcardByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	flashcardID := r.PathValue("flashcardID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	var flashcard models.Flashcard
	if err := db.Where("public_id = ? AND deck_id = ?", flashcardID, deck.ID).
		First(&flashcard).Error; err != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, flashcard)
}

func (db *DBHandler) GetFlashcardsForDeck(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	var flashcards []models.Flashcard
	if err := db.Where("deck_id = ?", deck.ID).Find(&flashcards).Error; err != nil {
		http.Error(w, "Failed to fetch flashcards", http.StatusInternalServerError)
		return
	}

	if len(flashcards) == 0 {
		flashcards = []models.Flashcard{}
	}
	writeJSON(w, http.StatusOK, flashcards)
}

func (db *DBHandler) UpdateFlashcardByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	flashcardID := r.PathValue("flashcardID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	var flashcard models.Flashcard
	if err := db.Where("public_id = ? AND deck_id = ?", flashcardID, deck.ID).
		First(&flashcard).Error; err != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	var req struct {
		Front *string `json:"front,omitempty"`
		Back  *string `json:"back,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Identity is immutable; only front/back may change.
	if req.Front != nil {
		flashcard.Front = *req.Front
	}
	if req.Back != nil {
		flashcard.Back = *req.Back
	}
	if err := validCardFields(flashcard.Front, flashcard.Back); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := db.Save(&flashcard).Error; err != nil {
		http.Error(w, "Failed to update flashcard", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, flashcard)
}

func (db *DBHandler) DeleteFlashcardByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	flashcardID := r.PathValue("flashcardID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	result := db.Where("public_id = ? AND deck_id = ?", flashcardID, deck.ID).
		Delete(&models.Flashcard{})
	if result.Error != nil {
		http.Error(w, "Failed to delete flashcard", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
