package handlers

import (
	"net/http"

	"github.com/studydeck/studydeck-api/middleware"
	"github.com/studydeck/studydeck-api/models"
	"github.com/studydeck/studydeck-api/study"
)

type studySessionResponse struct {
	SessionID string         `json:"sessionId"`
	State     study.Snapshot `json:"state"`
}

func (db *DBHandler) deckStudyCards(deckID uint) ([]study.Card, error) {
	var flashcards []models.Flashcard
	if err := db.Where("deck_id = ?", deckID).Order("id").Find(&flashcards).Error; err != nil {
		return nil, err
	}
	cards := make([]study.Card, len(flashcards))
	for i, f := range flashcards {
		cards[i] = study.Card{ID: f.PublicID, Front: f.Front, Back: f.Back}
	}
	return cards, nil
}

// StartStudySession shuffles the deck's cards into a fresh session. An empty
// deck still yields a session; the snapshot just has no cards.
func (db *DBHandler) StartStudySession(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deckID")

	deck, user, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	cards, err := db.deckStudyCards(deck.ID)
	if err != nil {
		http.Error(w, "Failed to fetch flashcards", http.StatusInternalServerError)
		return
	}

	sessionID, snapshot, err := db.Sessions.Create(deck.PublicID, user.ID, cards)
	if err != nil {
		http.Error(w, "Failed to create study session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, studySessionResponse{SessionID: sessionID, State: snapshot})
}

// GetStudySession returns the current session state. If the deck's card list
// changed identity since the session started, the session resets first.
func (db *DBHandler) GetStudySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	deckID := r.PathValue("deckID")

	deck, user, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	cards, err := db.deckStudyCards(deck.ID)
	if err != nil {
		http.Error(w, "Failed to fetch flashcards", http.StatusInternalServerError)
		return
	}

	snapshot, err := db.Sessions.Get(sessionID, user.ID, cards)
	if err != nil {
		writeServiceError(w, db.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, studySessionResponse{SessionID: sessionID, State: snapshot})
}

// ApplyStudyAction runs one state-machine transition: flip, next, previous
// or restart.
func (db *DBHandler) ApplyStudyAction(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	deckID := r.PathValue("deckID")
	action := study.Action(r.PathValue("action"))

	deck, user, ok := db.findOwnedDeck(r, deckID)
	if !ok {
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	}

	cards, err := db.deckStudyCards(deck.ID)
	if err != nil {
		http.Error(w, "Failed to fetch flashcards", http.StatusInternalServerError)
		return
	}

	snapshot, err := db.Sessions.Apply(sessionID, user.ID, cards, action)
	if err != nil {
		writeServiceError(w, db.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, studySessionResponse{SessionID: sessionID, State: snapshot})
}

// EndStudySession drops the session. Sessions are derived state, so this is
// always safe.
func (db *DBHandler) EndStudySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	db.Sessions.Delete(sessionID, user.ID)
	w.WriteHeader(http.StatusNoContent)
}
