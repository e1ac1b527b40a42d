// Package study implements the flashcard study-session state machine: a
// shuffled working order over an immutable card list with cursor, flip and
// completion state. Nothing here performs I/O and no operation can fail;
// boundary conditions are clamped instead of signaled.
package study

import (
	"math/rand"
	"time"
)

// Card is the minimal view of a flashcard a session needs.
type Card struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	ShuffledOrder []Card `json:"shuffledOrder"`
	CurrentIndex  int    `json:"currentIndex"`
	IsFlipped     bool   `json:"isFlipped"`
	IsComplete    bool   `json:"isComplete"`
	TotalCards    int    `json:"totalCards"`
}

// Session is one run-through of a deck in shuffled order. Not safe for
// concurrent use; the store serializes access.
type Session struct {
	rng       *rand.Rand
	order     []Card
	sourceIDs []string
	index     int
	flipped   bool
	complete  bool
}

// NewSession shuffles cards and starts at the first one.
func NewSession(cards []Card) *Session {
	return NewSessionWithRand(cards, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSessionWithRand is NewSession with a caller-supplied random source, so
// tests can make the shuffle deterministic.
func NewSessionWithRand(cards []Card, rng *rand.Rand) *Session {
	s := &Session{rng: rng}
	s.Reset(cards)
	return s
}

// Reset replaces the working set with a fresh shuffle of cards and clears
// cursor, flip and completion state. Used both at construction and when the
// source card list changes identity.
func (s *Session) Reset(cards []Card) {
	s.order = make([]Card, len(cards))
	copy(s.order, cards)
	s.sourceIDs = make([]string, len(cards))
	for i, c := range cards {
		s.sourceIDs[i] = c.ID
	}
	s.shuffle()
	s.index = 0
	s.flipped = false
	s.complete = false
}

// shuffle applies a uniform Fisher-Yates permutation to the working order.
func (s *Session) shuffle() {
	s.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}

// SameCards reports whether cards matches the session's source list by
// ordered ID sequence. A mismatch means the caller must Reset rather than
// keep a cursor that may point past the end of a shrunk list.
func (s *Session) SameCards(cards []Card) bool {
	if len(cards) != len(s.sourceIDs) {
		return false
	}
	for i, c := range cards {
		if c.ID != s.sourceIDs[i] {
			return false
		}
	}
	return true
}

// Flip toggles whether the current card shows its back. Flipping twice
// returns to the original side.
func (s *Session) Flip() {
	s.flipped = !s.flipped
}

// Next advances to the following card, or completes the session when called
// on the last card. The cursor never moves past the end of the order.
func (s *Session) Next() {
	if s.index+1 < len(s.order) {
		s.index++
	} else {
		s.complete = true
	}
	s.flipped = false
}

// Previous steps back one card. At the first card it is a no-op rather than
// a wraparound.
func (s *Session) Previous() {
	if s.index == 0 {
		return
	}
	s.index--
	s.flipped = false
}

// Restart reshuffles the current working set and returns to the start.
func (s *Session) Restart() {
	s.shuffle()
	s.index = 0
	s.flipped = false
	s.complete = false
}

// CurrentCard returns the card under the cursor. ok is false for an empty
// session or after completion.
func (s *Session) CurrentCard() (Card, bool) {
	if s.complete || s.index >= len(s.order) {
		return Card{}, false
	}
	return s.order[s.index], true
}

// State returns a copy of the session's visible state.
func (s *Session) State() Snapshot {
	order := make([]Card, len(s.order))
	copy(order, s.order)
	return Snapshot{
		ShuffledOrder: order,
		CurrentIndex:  s.index,
		IsFlipped:     s.flipped,
		IsComplete:    s.complete,
		TotalCards:    len(s.order),
	}
}
