// Package leaderboard keeps an all-time score table in Postgres,
// aggregated across finished quiz sessions.
package leaderboard

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/r4den/kanjiquiz/core/logger"
	"github.com/r4den/kanjiquiz/quiz"
)

// Store reads and writes the persistent leaderboard.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, log: logger.Component("leaderboard")}
}

// Player is one leaderboard row.
type Player struct {
	UserID   int64  `db:"user_id"`
	FullName string `db:"full_name"`
	Username string `db:"username"`
	Points   int64  `db:"points"`
}

// Record folds one session's final standings into the all-time table.
// Existing players accumulate points and get their display identity
// refreshed; new players are inserted.
func (s *Store) Record(ctx context.Context, chatID int64, results []quiz.ScoreEntry) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("leaderboard: begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO leaderboard (user_id, full_name, username, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			username  = EXCLUDED.username,
			points    = leaderboard.points + EXCLUDED.points`

	for _, r := range results {
		if _, err := tx.ExecContext(ctx, q, r.UserID, r.FullName, r.Username, int64(r.Point)); err != nil {
			return fmt.Errorf("leaderboard: record user %d: %w", r.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("leaderboard: commit: %w", err)
	}

	s.log.Debug("session results recorded",
		slog.String("event", "leaderboard.record"),
		slog.Int64("chat_id", chatID),
		slog.Int("players", len(results)),
	)
	return nil
}

// Top returns the highest-scoring players, at most limit rows.
func (s *Store) Top(ctx context.Context, limit int) ([]Player, error) {
	if limit <= 0 {
		limit = 10
	}
	var players []Player
	err := s.db.SelectContext(ctx, &players, `
		SELECT user_id, full_name, username, points
		FROM leaderboard
		ORDER BY points DESC, user_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: query top: %w", err)
	}
	return players, nil
}
