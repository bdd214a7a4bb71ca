package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/r4den/kanjiquiz/core/logger"
	"github.com/r4den/kanjiquiz/quiz/deck"
)

// ErrSessionExists is returned by Create when the chat already has a
// live session.
var ErrSessionExists = errors.New("quiz: session already exists for chat")

// FinishFunc is invoked with the final ledger when a session ends.
type FinishFunc func(chatID int64, results []ScoreEntry)

// Options wire a Registry to its collaborators.
type Options struct {
	Transport Transport
	Renderer  Renderer
	// Store persists snapshots after every round. Nil disables
	// durability.
	Store *Store
	// NewDeck builds a deck by name; defaults to deck.New.
	NewDeck func(name string) (deck.Deck, error)
	// Timeout is the default per-card answer window.
	Timeout time.Duration
	// NextDelay is the default pause between rounds.
	NextDelay time.Duration
	// OnFinish, if set, receives each session's final standings.
	OnFinish FinishFunc
}

// Registry maps chats to their live sessions. Its mutex guards table
// membership only; session internals have their own lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	opts     Options
	log      *slog.Logger
}

// NewRegistry builds an empty registry. Transport and Renderer are
// required; the rest of Options have working defaults.
func NewRegistry(opts Options) *Registry {
	if opts.NewDeck == nil {
		opts.NewDeck = deck.New
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.NextDelay <= 0 {
		opts.NextDelay = 10 * time.Second
	}
	return &Registry{
		sessions: make(map[int64]*Session),
		opts:     opts,
		log:      logger.Component("quiz"),
	}
}

// Create registers and starts a new session for the chat. It fails with
// ErrSessionExists when one is already live, and with the deck factory's
// error (registering nothing) when the deck name is unknown.
func (r *Registry) Create(chatID int64, deckName string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.sessions[chatID]; live {
		return nil, ErrSessionExists
	}

	d, err := r.opts.NewDeck(deckName)
	if err != nil {
		return nil, fmt.Errorf("quiz: create session: %w", err)
	}

	s := newSession(r, chatID, d)
	r.sessions[chatID] = s
	s.Start()

	r.log.Info("session created",
		slog.String("event", "session.create"),
		slog.Int64("chat_id", chatID),
		slog.String("deck", deckName),
	)
	return s, nil
}

// Lookup returns the chat's live session with a reference held, or nil.
// The caller must Release the session when done with it.
func (r *Registry) Lookup(chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok {
		return nil
	}
	s.acquire()
	return s
}

// Release drops a reference obtained from Create, Lookup, or Recover.
func (r *Registry) Release(s *Session) {
	if s != nil {
		s.release()
	}
}

// Remove deletes the chat's table entry. The session object stays alive
// until its last reference is released.
func (r *Registry) Remove(chatID int64) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
}

// Recover rebuilds a session from a snapshot: scores are seeded from the
// record and the deck restarts reshuffled from the top.
func (r *Registry) Recover(snap Snapshot) error {
	r.mu.Lock()
	if _, live := r.sessions[snap.ChatID]; live {
		r.mu.Unlock()
		return ErrSessionExists
	}

	d, err := r.opts.NewDeck(snap.DeckName)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("quiz: recover session: %w", err)
	}

	s := newSession(r, snap.ChatID, d)
	s.seedScores(snap.Scores)
	r.sessions[snap.ChatID] = s
	s.Start()
	r.mu.Unlock()

	r.log.Info("session recovered",
		slog.String("event", "session.recover"),
		slog.Int64("chat_id", snap.ChatID),
		slog.String("deck", snap.DeckName),
		slog.Int("players", len(snap.Scores)),
	)
	s.release()
	return nil
}

// RecoverAll scans the store and restarts every readable snapshot,
// returning the number of sessions brought back. Individual failures are
// logged and skipped.
func (r *Registry) RecoverAll() int {
	if r.opts.Store == nil {
		return 0
	}
	snaps, err := r.opts.Store.LoadAll()
	if err != nil {
		r.log.Warn("snapshot scan failed",
			slog.String("event", "recover.scan"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return 0
	}

	n := 0
	for _, snap := range snaps {
		if err := r.Recover(snap); err != nil {
			r.log.Warn("session recovery failed",
				slog.String("event", "session.recover"),
				slog.String("status", "fail"),
				slog.Int64("chat_id", snap.ChatID),
				slog.String("err", err.Error()),
			)
			continue
		}
		n++
	}
	return n
}

// StopAll stops every live session and waits for each worker to exit or
// for the context to expire, whichever comes first.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.acquire()
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.Stop()
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
		}
		s.release()
	}
}
