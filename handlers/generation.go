package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/studydeck/studydeck-api/generation"
	"github.com/studydeck/studydeck-api/middleware"
	"github.com/studydeck/studydeck-api/models"
)

// CreateGeneration runs the suggest phase: it sends the pasted text to the
// completion service and returns candidate flashcards plus a generation ID.
// Nothing is persisted to the deck yet.
func (db *DBHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	deckID := r.PathValue("deckID")

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var requestData struct {
		Text string `json:"text"`
	}
	if err := decoder.Decode(&requestData); err != nil {
		http.Error(w, "Could not decode request", http.StatusBadRequest)
		return
	}

	result, err := db.Generations.Suggest(r.Context(), user.ID, deckID, requestData.Text)
	if err != nil {
		writeServiceError(w, db.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CommitGeneration runs the bulk-create phase: the curated subset of a
// generation's suggestions becomes real flashcards, at most once per
// generation.
func (db *DBHandler) CommitGeneration(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	deckID := r.PathValue("deckID")

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var requestData struct {
		GenerationID string                          `json:"generationId"`
		Flashcards   []generation.SuggestedFlashcard `json:"flashcards"`
	}
	if err := decoder.Decode(&requestData); err != nil {
		http.Error(w, "Could not decode request", http.StatusBadRequest)
		return
	}
	if requestData.GenerationID == "" {
		http.Error(w, "Generation ID is required", http.StatusBadRequest)
		return
	}

	result, err := db.Generations.Commit(r.Context(), user.ID, deckID, requestData.GenerationID, requestData.Flashcards)
	if err != nil {
		writeServiceError(w, db.Log, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListGenerations returns a deck's generation history, newest first.
func (db *DBHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	deck, _, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	var generations []models.Generation
	if err := db.Where("deck_id = ?", deck.ID).
		Order("created_at DESC").
		Find(&generations).Error; err != nil {
		http.Error(w, "Failed to fetch generations", http.StatusInternalServerError)
		return
	}

	if len(generations) == 0 {
		generations = []models.Generation{}
	}
	writeJSON(w, http.StatusOK, generations)
}
