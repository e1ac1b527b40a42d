package generation

import "errors"

var (
	// ErrDeckNotFound covers both a missing deck and a deck owned by someone
	// else. Non-owned decks are deliberately indistinguishable from
	// nonexistent ones.
	ErrDeckNotFound = errors.New("deck not found")

	// ErrGenerationNotFound is returned when the generation ID does not
	// resolve within the given deck for the given user.
	ErrGenerationNotFound = errors.New("generation not found")

	// ErrGenerationAlreadyProcessed is the double-commit guard: the
	// generation's accepted count was already set.
	ErrGenerationAlreadyProcessed = errors.New("generation already processed")

	// ErrValidation wraps malformed-input failures (bad text length, empty
	// or oversized card fields). Never retried.
	ErrValidation = errors.New("invalid input")

	// ErrPersistence wraps a database failure while recording a generation.
	// The model call succeeded; only the bookkeeping write failed.
	ErrPersistence = errors.New("could not record generation")
)
