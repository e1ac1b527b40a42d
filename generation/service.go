// Package generation orchestrates the two-phase AI suggestion workflow: a
// synchronous suggest call that returns ephemeral candidate cards plus a
// generation record, and a commit call that persists a curated subset of
// those candidates exactly once per generation.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"

	"github.com/studydeck/studydeck-api/llm"
	"github.com/studydeck/studydeck-api/logger"
	"github.com/studydeck/studydeck-api/models"
)

// Source text bounds for the suggest phase.
const (
	MinSourceTextLen = 1
	MaxSourceTextLen = 5000
)

// SuggestedFlashcard is a transient candidate card. It exists only in the
// suggest response and the commit request; it is never persisted as-is.
type SuggestedFlashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// SuggestResult is the suggest-phase output.
type SuggestResult struct {
	GenerationID        string               `json:"generationId"`
	SuggestedFlashcards []SuggestedFlashcard `json:"suggestedFlashcards"`
}

// CommitResult reports what the bulk insert actually did.
type CommitResult struct {
	CardsAdded          int `json:"cardsAdded"`
	CardsSkipped        int `json:"cardsSkipped"`
	DeckTotalFlashcards int `json:"deckTotalFlashcards"`
}

// Service runs the pipeline. All collaborators are injected; the service
// holds no ambient state.
type Service struct {
	db  *gorm.DB
	llm llm.Client
	log *logger.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, client llm.Client, log *logger.Logger) *Service {
	return &Service{
		db:  db,
		llm: client,
		log: log.With("service", "generation"),
		now: time.Now,
	}
}

// Suggest verifies deck ownership, asks the completion service for candidate
// cards, records the generation with its timing, and returns the candidates.
// No flashcard rows are written here.
func (s *Service) Suggest(ctx context.Context, userID uint, deckPublicID, text string) (SuggestResult, error) {
	textLen := utf8.RuneCountInString(text)
	if textLen < MinSourceTextLen || textLen > MaxSourceTextLen {
		return SuggestResult{}, fmt.Errorf("%w: text must be between %d and %d characters",
			ErrValidation, MinSourceTextLen, MaxSourceTextLen)
	}

	var deck models.Deck
	if err := s.db.WithContext(ctx).
		Where("public_id = ? AND user_id = ?", deckPublicID, userID).
		First(&deck).Error; err != nil {
		return SuggestResult{}, ErrDeckNotFound
	}

	start := s.now()
	raw, err := s.llm.GenerateJSON(ctx, systemPrompt, text, proposalSchemaName, proposalSchema())
	if err != nil {
		s.recordError(userID, &deck.ID, string(llm.CodeOf(err)), err.Error())
		return SuggestResult{}, err
	}

	cards, err := parseProposals(raw)
	if err != nil {
		s.recordError(userID, &deck.ID, string(llm.CodeValidation), err.Error())
		return SuggestResult{}, err
	}
	durationMs := s.now().Sub(start).Milliseconds()

	publicID, err := gonanoid.New()
	if err != nil {
		return SuggestResult{}, fmt.Errorf("generate generation id: %w", err)
	}
	gen := models.Generation{
		PublicID:            publicID,
		DeckID:              deck.ID,
		UserID:              userID,
		ModelName:           s.llm.Model(),
		DurationMs:          durationMs,
		SourceTextLength:    textLen,
		GeneratedCardsCount: len(cards),
	}
	if err := s.db.WithContext(ctx).Create(&gen).Error; err != nil {
		s.recordError(userID, &deck.ID, "persistence", err.Error())
		return SuggestResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.log.Info("generation completed",
		"deck_id", deck.PublicID,
		"duration_ms", durationMs,
		"cards", len(cards),
	)
	return SuggestResult{GenerationID: gen.PublicID, SuggestedFlashcards: cards}, nil
}

// Commit persists a curated subset of a generation's suggestions as real
// flashcards, at most once per generation. The deck capacity check, the
// inserts and the accepted-count latch all run in one transaction, with the
// latch update last so a failed insert never leaves it set without rows.
func (s *Service) Commit(ctx context.Context, userID uint, deckPublicID, generationPublicID string, cards []SuggestedFlashcard) (CommitResult, error) {
	if len(cards) == 0 {
		return CommitResult{}, fmt.Errorf("%w: at least one flashcard is required", ErrValidation)
	}
	for i, c := range cards {
		front := strings.TrimSpace(c.Front)
		back := strings.TrimSpace(c.Back)
		if front == "" || back == "" {
			return CommitResult{}, fmt.Errorf("%w: flashcard %d is missing a front or back", ErrValidation, i)
		}
		if utf8.RuneCountInString(front) > models.MaxFrontLen || utf8.RuneCountInString(back) > models.MaxBackLen {
			return CommitResult{}, fmt.Errorf("%w: flashcard %d exceeds the length limits", ErrValidation, i)
		}
		cards[i].Front = front
		cards[i].Back = back
	}

	var result CommitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deck models.Deck
		if err := tx.Where("public_id = ? AND user_id = ?", deckPublicID, userID).
			First(&deck).Error; err != nil {
			return ErrDeckNotFound
		}

		// Touching the deck row takes its lock: concurrent commits and
		// manual adds into the same deck serialize here, so the capacity
		// count below only runs after any other inserter has committed.
		// FOR UPDATE is not used because the sqlite test databases
		// reject it.
		if err := tx.Model(&models.Deck{}).
			Where("id = ?", deck.ID).
			Update("updated_at", s.now()).Error; err != nil {
			return fmt.Errorf("lock deck: %w", err)
		}

		var gen models.Generation
		if err := tx.Where("public_id = ? AND deck_id = ? AND user_id = ?",
			generationPublicID, deck.ID, userID).
			First(&gen).Error; err != nil {
			return ErrGenerationNotFound
		}
		if gen.Committed() {
			return ErrGenerationAlreadyProcessed
		}

		var count int64
		if err := tx.Model(&models.Flashcard{}).
			Where("deck_id = ?", deck.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count flashcards: %w", err)
		}

		available := models.MaxFlashcardsPerDeck - int(count)
		if available < 0 {
			available = 0
		}
		toAdd := len(cards)
		if toAdd > available {
			toAdd = available
		}

		// Front of the curated list wins; overflow is reported, not failed.
		for _, c := range cards[:toAdd] {
			publicID, err := gonanoid.New()
			if err != nil {
				return fmt.Errorf("generate flashcard id: %w", err)
			}
			card := models.Flashcard{
				PublicID:     publicID,
				Front:        c.Front,
				Back:         c.Back,
				DeckID:       deck.ID,
				CreationType: models.CreationTypeGenerated,
				GenerationID: &gen.ID,
			}
			if err := tx.Create(&card).Error; err != nil {
				return fmt.Errorf("create flashcard: %w", err)
			}
		}

		// The latch: a conditional update that only succeeds while the
		// accepted count is still NULL. A concurrent commit blocks on the
		// row here and then sees zero rows affected, rolling back its
		// inserts.
		res := tx.Model(&models.Generation{}).
			Where("id = ? AND accepted_cards_count IS NULL", gen.ID).
			Update("accepted_cards_count", toAdd)
		if res.Error != nil {
			return fmt.Errorf("update generation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrGenerationAlreadyProcessed
		}

		result = CommitResult{
			CardsAdded:          toAdd,
			CardsSkipped:        len(cards) - toAdd,
			DeckTotalFlashcards: int(count) + toAdd,
		}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}

	s.log.Info("generation committed",
		"deck_id", deckPublicID,
		"generation_id", generationPublicID,
		"added", result.CardsAdded,
		"skipped", result.CardsSkipped,
	)
	return result, nil
}

// parseProposals validates the structured model output. An empty or
// malformed payload is a validation failure, never a silent empty result.
func parseProposals(raw json.RawMessage) ([]SuggestedFlashcard, error) {
	var payload struct {
		Flashcards []SuggestedFlashcard `json:"flashcards"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &llm.Error{
			Code:    llm.CodeValidation,
			Message: "model output did not match the flashcard schema",
			Err:     err,
		}
	}

	cards := make([]SuggestedFlashcard, 0, len(payload.Flashcards))
	for _, c := range payload.Flashcards {
		front := strings.TrimSpace(c.Front)
		back := strings.TrimSpace(c.Back)
		if front == "" || back == "" {
			continue
		}
		cards = append(cards, SuggestedFlashcard{
			Front: truncateRunes(front, models.MaxFrontLen),
			Back:  truncateRunes(back, models.MaxBackLen),
		})
	}
	if len(cards) == 0 {
		return nil, &llm.Error{
			Code:    llm.CodeValidation,
			Message: "model returned no usable flashcards",
		}
	}
	return cards, nil
}

// truncateRunes caps s at max characters, cutting on a rune boundary so the
// result is always valid UTF-8.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// recordError appends a GenerationError audit row. Best effort: a failed
// write is logged and swallowed so it never masks the original error.
func (s *Service) recordError(userID uint, deckID *uint, code, message string) {
	if len(message) > 1000 {
		message = message[:1000]
	}
	row := models.GenerationError{
		UserID:       userID,
		DeckID:       deckID,
		Code:         code,
		ErrorMessage: message,
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.log.Warn("failed to record generation error", "error", err.Error(), "code", code)
	}
}
