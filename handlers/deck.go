package handlers

import (
	"encoding/json"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/studydeck/studydeck-api/middleware"
	"github.com/studydeck/studydeck-api/models"
)

// findOwnedDeck loads a deck by public ID scoped to the authenticated user.
// A deck owned by someone else looks exactly like a missing one.
func (db *DBHandler) findOwnedDeck(r *http.Request, deckID string) (*models.Deck, *models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil, nil, false
	}

	var deck models.Deck
	if err := db.Where("public_id = ? AND user_id = ?", deckID, user.ID).First(&deck).Error; err != nil {
		return nil, user, false
	}
	return &deck, user, true
}

func (db *DBHandler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var requestData struct {
		Title string `json:"title"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestData); err != nil {
		http.Error(w, "Could not decode request", http.StatusBadRequest)
		return
	}
	if requestData.Title == "" || len(requestData.Title) > 100 {
		http.Error(w, "Deck title must be between 1 and 100 characters", http.StatusBadRequest)
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		http.Error(w, "Failed to generate ID", http.StatusInternalServerError)
		return
	}

	deck := models.Deck{
		Title:    requestData.Title,
		PublicID: publicID,
		UserID:   user.ID,
	}
	if err := db.Create(&deck).Error; err != nil {
		http.Error(w, "Failed to create deck", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, deck)
}

func (db *DBHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var decks []models.Deck
	if err := db.Where("user_id = ?", user.ID).
		Preload("Flashcards").
		Find(&decks).Error; err != nil {
		http.Error(w, "Failed to fetch decks", http.StatusInternalServerError)
		return
	}

	// Return an empty array instead of null
	if len(decks) == 0 {
		decks = []models.Deck{}
	}
	writeJSON(w, http.StatusOK, decks)
}

func (db *DBHandler) GetDeckByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")
	if deckID == "" {
		http.Error(w, "Deck ID is required", http.StatusBadRequest)
		return
	}

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	if err := db.Preload("Flashcards").First(deck, deck.ID).Error; err != nil {
		http.Error(w, "Failed to fetch deck", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (db *DBHandler) UpdateDeckByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	var req struct {
		Title *string `json:"title,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title != nil {
		if *req.Title == "" || len(*req.Title) > 100 {
			http.Error(w, "Deck title must be between 1 and 100 characters", http.StatusBadRequest)
			return
		}
		deck.Title = *req.Title
	}

	if err := db.Save(deck).Error; err != nil {
		http.Error(w, "Failed to update deck", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

func (db *DBHandler) DeleteDeckByID(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	// Deck owns its flashcards: delete them with the deck. Generations stay
	// as audit history with their deck reference intact until cleaned up.
	tx := db.Begin()
	if tx.Error != nil {
		http.Error(w, "Could not begin transaction", http.StatusInternalServerError)
		return
	}
	if err := tx.Where("deck_id = ?", deck.ID).Delete(&models.Flashcard{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete flashcards", http.StatusInternalServerError)
		return
	}
	if err := tx.Delete(deck).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete deck", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Could not commit transaction", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
