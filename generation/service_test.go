package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/studydeck/studydeck-api/config"
	"github.com/studydeck/studydeck-api/llm"
	"github.com/studydeck/studydeck-api/logger"
	"github.com/studydeck/studydeck-api/models"
)

type fakeLLM struct {
	raw        json.RawMessage
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func proposalsJSON(cards ...[2]string) json.RawMessage {
	type card struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	}
	payload := struct {
		Flashcards []card `json:"flashcards"`
	}{}
	for _, c := range cards {
		payload.Flashcards = append(payload.Flashcards, card{Front: c[0], Back: c[1]})
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := config.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUserAndDeck(t *testing.T, db *gorm.DB, nickname string) (*models.User, *models.Deck) {
	t.Helper()
	user := models.User{Auth0ID: "auth0|" + nickname, Nickname: nickname}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	deck := models.Deck{Title: nickname + "'s deck", PublicID: "deck-" + nickname, UserID: user.ID}
	if err := db.Create(&deck).Error; err != nil {
		t.Fatalf("create deck: %v", err)
	}
	return &user, &deck
}

func seedFlashcards(t *testing.T, db *gorm.DB, deckID uint, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		card := models.Flashcard{
			PublicID:     fmt.Sprintf("card-%d-%d", deckID, i),
			Front:        fmt.Sprintf("front %d", i),
			Back:         fmt.Sprintf("back %d", i),
			DeckID:       deckID,
			CreationType: models.CreationTypeManual,
		}
		if err := db.Create(&card).Error; err != nil {
			t.Fatalf("seed flashcard: %v", err)
		}
	}
}

func newTestService(db *gorm.DB, client llm.Client) *Service {
	return NewService(db, client, logger.NewNop())
}

const sourceText = "The mitochondria is the powerhouse of the cell."

func TestSuggestReturnsCandidatesAndRecordsGeneration(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON(
		[2]string{"What is the mitochondria?", "The powerhouse of the cell."},
		[2]string{"Where does respiration happen?", "In the mitochondria."},
		[2]string{"What does ATP stand for?", "Adenosine triphosphate."},
	)}
	svc := newTestService(db, fake)
	svc.now = stubClock(250 * time.Millisecond)

	result, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if result.GenerationID == "" {
		t.Fatal("expected a generation ID")
	}
	if len(result.SuggestedFlashcards) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(result.SuggestedFlashcards))
	}
	if fake.lastUser != sourceText {
		t.Fatalf("source text not forwarded to the model: %q", fake.lastUser)
	}

	var gen models.Generation
	if err := db.Where("public_id = ?", result.GenerationID).First(&gen).Error; err != nil {
		t.Fatalf("generation row missing: %v", err)
	}
	if gen.DeckID != deck.ID || gen.UserID != user.ID {
		t.Fatalf("generation row has wrong ownership: %+v", gen)
	}
	if gen.GeneratedCardsCount != 3 {
		t.Fatalf("expected generated count 3, got %d", gen.GeneratedCardsCount)
	}
	if gen.AcceptedCardsCount != nil {
		t.Fatal("accepted count must start null")
	}
	if gen.ModelName != "fake-model" {
		t.Fatalf("expected model name recorded, got %q", gen.ModelName)
	}
	if gen.DurationMs != 250 {
		t.Fatalf("expected duration 250ms, got %d", gen.DurationMs)
	}
	if gen.SourceTextLength != len(sourceText) {
		t.Fatalf("expected source length %d, got %d", len(sourceText), gen.SourceTextLength)
	}

	// Suggestions are ephemeral: no flashcard rows yet.
	var count int64
	db.Model(&models.Flashcard{}).Where("deck_id = ?", deck.ID).Count(&count)
	if count != 0 {
		t.Fatalf("suggest must not persist flashcards, found %d", count)
	}
}

func TestSuggestValidatesTextLength(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")
	fake := &fakeLLM{}
	svc := newTestService(db, fake)

	if _, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty text, got %v", err)
	}
	long := strings.Repeat("x", MaxSourceTextLen+1)
	if _, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, long); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for oversized text, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("model must not be called on invalid input, got %d calls", fake.calls)
	}
}

func TestSuggestHidesForeignDecks(t *testing.T) {
	db := testDB(t)
	_, ownedDeck := seedUserAndDeck(t, db, "ada")
	intruder, _ := seedUserAndDeck(t, db, "eve")
	svc := newTestService(db, &fakeLLM{})

	// A deck owned by someone else is indistinguishable from a missing one.
	if _, err := svc.Suggest(context.Background(), intruder.ID, ownedDeck.PublicID, sourceText); !errors.Is(err, ErrDeckNotFound) {
		t.Fatalf("expected ErrDeckNotFound for foreign deck, got %v", err)
	}
	if _, err := svc.Suggest(context.Background(), intruder.ID, "no-such-deck", sourceText); !errors.Is(err, ErrDeckNotFound) {
		t.Fatalf("expected ErrDeckNotFound for missing deck, got %v", err)
	}
}

func TestSuggestModelFailureLogsAuditRow(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{err: &llm.Error{Code: llm.CodeNetwork, Message: "completion service is unreachable"}}
	svc := newTestService(db, fake)

	_, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if llm.CodeOf(err) != llm.CodeNetwork {
		t.Fatalf("expected network-classified error, got %v", err)
	}

	// No generation row on failure.
	var genCount int64
	db.Model(&models.Generation{}).Count(&genCount)
	if genCount != 0 {
		t.Fatalf("expected no generation rows, found %d", genCount)
	}

	var audit models.GenerationError
	if err := db.First(&audit).Error; err != nil {
		t.Fatalf("expected an audit row: %v", err)
	}
	if audit.Code != string(llm.CodeNetwork) || audit.UserID != user.ID {
		t.Fatalf("audit row wrong: %+v", audit)
	}
	if audit.DeckID == nil || *audit.DeckID != deck.ID {
		t.Fatalf("audit row should reference the deck: %+v", audit)
	}
}

func TestSuggestClassifiesPersistenceFailure(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON([2]string{"q1", "a1"}, [2]string{"q2", "a2"}, [2]string{"q3", "a3"})}
	svc := newTestService(db, fake)

	// The model call succeeds but the bookkeeping insert cannot.
	if err := db.Migrator().DropTable(&models.Generation{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	var audit models.GenerationError
	if err := db.First(&audit).Error; err != nil {
		t.Fatalf("expected an audit row: %v", err)
	}
	if audit.Code != "persistence" {
		t.Fatalf("expected persistence audit code, got %q", audit.Code)
	}
}

func TestSuggestAuditWriteFailureDoesNotMaskError(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{err: &llm.Error{Code: llm.CodeNetwork, Message: "completion service is unreachable"}}
	svc := newTestService(db, fake)

	// The audit insert itself fails; the original error must still come
	// back network-classified.
	if err := db.Migrator().DropTable(&models.GenerationError{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if llm.CodeOf(err) != llm.CodeNetwork {
		t.Fatalf("expected the network error to propagate, got %v", err)
	}
}

func TestSuggestRejectsEmptyModelOutput(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON()}
	svc := newTestService(db, fake)

	_, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if llm.CodeOf(err) != llm.CodeValidation {
		t.Fatalf("expected validation error for empty output, got %v", err)
	}

	var audit models.GenerationError
	if err := db.First(&audit).Error; err != nil {
		t.Fatalf("expected an audit row: %v", err)
	}
	if audit.Code != string(llm.CodeValidation) {
		t.Fatalf("expected validation audit code, got %q", audit.Code)
	}
}

func TestSuggestNormalizesModelOutput(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON(
		[2]string{"  padded front  ", "  padded back  "},
		[2]string{"", "orphan back"},
		[2]string{strings.Repeat("f", models.MaxFrontLen+50), "ok"},
	)}
	svc := newTestService(db, fake)

	result, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(result.SuggestedFlashcards) != 2 {
		t.Fatalf("expected blank card dropped, got %d cards", len(result.SuggestedFlashcards))
	}
	if result.SuggestedFlashcards[0].Front != "padded front" {
		t.Fatalf("expected trimmed front, got %q", result.SuggestedFlashcards[0].Front)
	}
	if len(result.SuggestedFlashcards[1].Front) != models.MaxFrontLen {
		t.Fatalf("expected front truncated to %d, got %d", models.MaxFrontLen, len(result.SuggestedFlashcards[1].Front))
	}
}

func suggestOnce(t *testing.T, svc *Service, userID uint, deckPublicID string) SuggestResult {
	t.Helper()
	result, err := svc.Suggest(context.Background(), userID, deckPublicID, sourceText)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	return result
}

func TestCommitPersistsCuratedCardsOnce(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON(
		[2]string{"q1", "a1"},
		[2]string{"q2", "a2"},
		[2]string{"q3", "a3"},
	)}
	svc := newTestService(db, fake)
	suggestion := suggestOnce(t, svc, user.ID, deck.PublicID)

	// The user curates a subset.
	curated := suggestion.SuggestedFlashcards[:2]
	result, err := svc.Commit(context.Background(), user.ID, deck.PublicID, suggestion.GenerationID, curated)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.CardsAdded != 2 || result.CardsSkipped != 0 || result.DeckTotalFlashcards != 2 {
		t.Fatalf("unexpected commit result: %+v", result)
	}

	var cards []models.Flashcard
	if err := db.Where("deck_id = ?", deck.ID).Order("id").Find(&cards).Error; err != nil {
		t.Fatalf("fetch cards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 flashcard rows, got %d", len(cards))
	}
	var gen models.Generation
	db.Where("public_id = ?", suggestion.GenerationID).First(&gen)
	for _, c := range cards {
		if c.CreationType != models.CreationTypeGenerated {
			t.Fatalf("expected generated creation type, got %q", c.CreationType)
		}
		if c.GenerationID == nil || *c.GenerationID != gen.ID {
			t.Fatalf("card does not reference its generation: %+v", c)
		}
		if c.PublicID == "" {
			t.Fatal("card missing public ID")
		}
	}
	if gen.AcceptedCardsCount == nil || *gen.AcceptedCardsCount != 2 {
		t.Fatalf("expected accepted count 2, got %v", gen.AcceptedCardsCount)
	}

	// The latch: a second commit against the same generation fails and
	// writes nothing.
	_, err = svc.Commit(context.Background(), user.ID, deck.PublicID, suggestion.GenerationID, curated)
	if !errors.Is(err, ErrGenerationAlreadyProcessed) {
		t.Fatalf("expected ErrGenerationAlreadyProcessed, got %v", err)
	}
	var count int64
	db.Model(&models.Flashcard{}).Where("deck_id = ?", deck.ID).Count(&count)
	if count != 2 {
		t.Fatalf("double commit changed card count to %d", count)
	}
}

func TestCommitTruncatesAtDeckCapacity(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")
	seedFlashcards(t, db, deck.ID, 98)

	fake := &fakeLLM{raw: proposalsJSON(
		[2]string{"q1", "a1"},
		[2]string{"q2", "a2"},
		[2]string{"q3", "a3"},
		[2]string{"q4", "a4"},
		[2]string{"q5", "a5"},
	)}
	svc := newTestService(db, fake)
	suggestion := suggestOnce(t, svc, user.ID, deck.PublicID)

	result, err := svc.Commit(context.Background(), user.ID, deck.PublicID, suggestion.GenerationID, suggestion.SuggestedFlashcards)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.CardsAdded != 2 || result.CardsSkipped != 3 || result.DeckTotalFlashcards != 100 {
		t.Fatalf("expected 2 added / 3 skipped / 100 total, got %+v", result)
	}

	// Front of the curated list wins.
	var added []models.Flashcard
	db.Where("deck_id = ? AND creation_type = ?", deck.ID, models.CreationTypeGenerated).
		Order("id").Find(&added)
	if len(added) != 2 || added[0].Front != "q1" || added[1].Front != "q2" {
		t.Fatalf("expected first two curated cards, got %+v", added)
	}
}

func TestCommitAcrossGenerationsRespectsCapacity(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")
	seedFlashcards(t, db, deck.ID, 99)

	fake := &fakeLLM{raw: proposalsJSON(
		[2]string{"q1", "a1"},
		[2]string{"q2", "a2"},
		[2]string{"q3", "a3"},
	)}
	svc := newTestService(db, fake)

	// Two separate generations against the same deck: the ceiling holds
	// across both, not just within one.
	first := suggestOnce(t, svc, user.ID, deck.PublicID)
	second := suggestOnce(t, svc, user.ID, deck.PublicID)

	result, err := svc.Commit(context.Background(), user.ID, deck.PublicID, first.GenerationID, first.SuggestedFlashcards[:1])
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if result.CardsAdded != 1 || result.DeckTotalFlashcards != 100 {
		t.Fatalf("unexpected first commit result: %+v", result)
	}

	result, err = svc.Commit(context.Background(), user.ID, deck.PublicID, second.GenerationID, second.SuggestedFlashcards)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if result.CardsAdded != 0 || result.CardsSkipped != 3 || result.DeckTotalFlashcards != 100 {
		t.Fatalf("expected full deck to skip everything, got %+v", result)
	}

	var count int64
	db.Model(&models.Flashcard{}).Where("deck_id = ?", deck.ID).Count(&count)
	if count != 100 {
		t.Fatalf("deck exceeded its ceiling: %d cards", count)
	}
}

func TestSuggestTruncatesOnRuneBoundary(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON(
		[2]string{strings.Repeat("é", models.MaxFrontLen+10), strings.Repeat("ü", models.MaxBackLen+10)},
		[2]string{"q2", "a2"},
		[2]string{"q3", "a3"},
	)}
	svc := newTestService(db, fake)

	result, err := svc.Suggest(context.Background(), user.ID, deck.PublicID, sourceText)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	front := result.SuggestedFlashcards[0].Front
	back := result.SuggestedFlashcards[0].Back
	if !utf8.ValidString(front) || !utf8.ValidString(back) {
		t.Fatal("truncation produced invalid UTF-8")
	}
	if utf8.RuneCountInString(front) != models.MaxFrontLen {
		t.Fatalf("expected front truncated to %d characters, got %d", models.MaxFrontLen, utf8.RuneCountInString(front))
	}
	if utf8.RuneCountInString(back) != models.MaxBackLen {
		t.Fatalf("expected back truncated to %d characters, got %d", models.MaxBackLen, utf8.RuneCountInString(back))
	}
}

func TestCommitCountsCharactersNotBytes(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")

	fake := &fakeLLM{raw: proposalsJSON([2]string{"q1", "a1"}, [2]string{"q2", "a2"}, [2]string{"q3", "a3"})}
	svc := newTestService(db, fake)
	suggestion := suggestOnce(t, svc, user.ID, deck.PublicID)

	// Multibyte content at exactly the character limits is valid even
	// though its byte length is twice the limit.
	curated := []SuggestedFlashcard{{
		Front: strings.Repeat("é", models.MaxFrontLen),
		Back:  strings.Repeat("ü", models.MaxBackLen),
	}}
	result, err := svc.Commit(context.Background(), user.ID, deck.PublicID, suggestion.GenerationID, curated)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.CardsAdded != 1 {
		t.Fatalf("expected card accepted, got %+v", result)
	}
}

func TestCommitValidatesInput(t *testing.T) {
	db := testDB(t)
	user, deck := seedUserAndDeck(t, db, "ada")
	svc := newTestService(db, &fakeLLM{})

	cases := []struct {
		name  string
		cards []SuggestedFlashcard
	}{
		{"empty list", nil},
		{"missing back", []SuggestedFlashcard{{Front: "q", Back: "  "}}},
		{"oversized front", []SuggestedFlashcard{{Front: strings.Repeat("f", models.MaxFrontLen+1), Back: "a"}}},
		{"oversized back", []SuggestedFlashcard{{Front: "q", Back: strings.Repeat("b", models.MaxBackLen+1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Commit(context.Background(), user.ID, deck.PublicID, "gen-x", tc.cards)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCommitScopesDeckAndGeneration(t *testing.T) {
	db := testDB(t)
	owner, ownerDeck := seedUserAndDeck(t, db, "ada")
	intruder, intruderDeck := seedUserAndDeck(t, db, "eve")

	fake := &fakeLLM{raw: proposalsJSON([2]string{"q1", "a1"}, [2]string{"q2", "a2"}, [2]string{"q3", "a3"})}
	svc := newTestService(db, fake)
	suggestion := suggestOnce(t, svc, owner.ID, ownerDeck.PublicID)
	cards := suggestion.SuggestedFlashcards

	// Foreign deck: not found, regardless of the deck's real existence.
	_, err := svc.Commit(context.Background(), intruder.ID, ownerDeck.PublicID, suggestion.GenerationID, cards)
	if !errors.Is(err, ErrDeckNotFound) {
		t.Fatalf("expected ErrDeckNotFound, got %v", err)
	}

	// Right user, wrong deck for this generation.
	_, err = svc.Commit(context.Background(), intruder.ID, intruderDeck.PublicID, suggestion.GenerationID, cards)
	if !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}

	// Unknown generation ID.
	_, err = svc.Commit(context.Background(), owner.ID, ownerDeck.PublicID, "no-such-generation", cards)
	if !errors.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}
}

// stubClock returns a clock that advances by step on every call.
func stubClock(step time.Duration) func() time.Time {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	return func() time.Time {
		t := base.Add(time.Duration(calls) * step)
		calls++
		return t
	}
}
