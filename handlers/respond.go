package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/studydeck/studydeck-api/generation"
	"github.com/studydeck/studydeck-api/llm"
	"github.com/studydeck/studydeck-api/logger"
	"github.com/studydeck/studydeck-api/study"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeServiceError maps pipeline and session errors onto HTTP statuses in
// one place. Completion-service failures surface their human-readable
// message only; provider response bodies stay in the server log.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, generation.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, generation.ErrDeckNotFound):
		http.Error(w, "Deck not found", http.StatusNotFound)
		return
	case errors.Is(err, generation.ErrGenerationNotFound):
		http.Error(w, "Generation not found", http.StatusNotFound)
		return
	case errors.Is(err, generation.ErrGenerationAlreadyProcessed):
		http.Error(w, "Generation already processed", http.StatusConflict)
		return
	case errors.Is(err, study.ErrSessionNotFound):
		http.Error(w, "Study session not found", http.StatusNotFound)
		return
	case errors.Is(err, study.ErrUnknownAction):
		http.Error(w, "Unknown study action", http.StatusBadRequest)
		return
	case errors.Is(err, generation.ErrPersistence):
		log.Error("generation bookkeeping failed", "error", err.Error())
		http.Error(w, "Failed to record generation", http.StatusInternalServerError)
		return
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		status := http.StatusInternalServerError
		if llmErr.Code == llm.CodeRateLimit {
			status = http.StatusTooManyRequests
		}
		http.Error(w, llmErr.Message, status)
		return
	}

	log.Error("unhandled service error", "error", err.Error())
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
