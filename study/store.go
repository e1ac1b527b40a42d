package study

import (
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Action names the session operations the HTTP layer can request.
type Action string

const (
	ActionFlip     Action = "flip"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionRestart  Action = "restart"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("study session not found")
	// ErrUnknownAction is returned for an action outside the state machine.
	ErrUnknownAction = errors.New("unknown study action")
)

// sessionTTL bounds how long an untouched session survives. Sessions are
// derived state, so dropping one only costs the user a reshuffle.
const sessionTTL = 24 * time.Hour

type entry struct {
	session    *Session
	deckID     string
	userID     uint
	lastActive time.Time
}

// Store is an in-memory session registry. Sessions are never persisted;
// they are recreated from the deck whenever needed.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Create starts a session over cards and returns its ID.
func (st *Store) Create(deckID string, userID uint, cards []Card) (string, Snapshot, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", Snapshot{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.pruneLocked()

	s := NewSession(cards)
	st.sessions[id] = &entry{
		session:    s,
		deckID:     deckID,
		userID:     userID,
		lastActive: st.now(),
	}
	return id, s.State(), nil
}

// Get returns the current snapshot for a session owned by userID. The
// supplied cards are the deck's current list; if their identity differs
// from the session's source list the session fully resets first.
func (st *Store) Get(id string, userID uint, cards []Card) (Snapshot, error) {
	return st.with(id, userID, cards, func(s *Session) {})
}

// Apply runs one state-machine action and returns the resulting snapshot.
func (st *Store) Apply(id string, userID uint, cards []Card, action Action) (Snapshot, error) {
	switch action {
	case ActionFlip:
		return st.with(id, userID, cards, func(s *Session) { s.Flip() })
	case ActionNext:
		return st.with(id, userID, cards, func(s *Session) { s.Next() })
	case ActionPrevious:
		return st.with(id, userID, cards, func(s *Session) { s.Previous() })
	case ActionRestart:
		return st.with(id, userID, cards, func(s *Session) { s.Restart() })
	default:
		return Snapshot{}, ErrUnknownAction
	}
}

func (st *Store) with(id string, userID uint, cards []Card, fn func(*Session)) (Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.sessions[id]
	if !ok || e.userID != userID {
		return Snapshot{}, ErrSessionNotFound
	}
	if !e.session.SameCards(cards) {
		e.session.Reset(cards)
	}
	fn(e.session)
	e.lastActive = st.now()
	return e.session.State(), nil
}

// Delete drops a session. Missing IDs are ignored.
func (st *Store) Delete(id string, userID uint) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok := st.sessions[id]; ok && e.userID == userID {
		delete(st.sessions, id)
	}
}

func (st *Store) pruneLocked() {
	cutoff := st.now().Add(-sessionTTL)
	for id, e := range st.sessions {
		if e.lastActive.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}
