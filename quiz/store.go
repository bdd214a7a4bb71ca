package quiz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/r4den/kanjiquiz/core/logger"
)

// Store keeps one JSON snapshot file per chat under a flat directory.
// Writes are atomic (temp file plus rename) so a crash mid-write never
// leaves a truncated record behind.
type Store struct {
	dir string
	log *slog.Logger
}

// NewStore creates the snapshot directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("quiz: create snapshot dir: %w", err)
	}
	return &Store{dir: dir, log: logger.Component("quiz.store")}, nil
}

func (st *Store) path(chatID int64) string {
	return filepath.Join(st.dir, fmt.Sprintf("s_%d.json", chatID))
}

// Save writes the snapshot for its chat, replacing any previous record.
func (st *Store) Save(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("quiz: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(st.dir, "s_*.tmp")
	if err != nil {
		return fmt.Errorf("quiz: create snapshot temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("quiz: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("quiz: close snapshot temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path(snap.ChatID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("quiz: commit snapshot: %w", err)
	}
	return nil
}

// LoadAll reads every snapshot in the directory. Records that fail to
// parse or carry no chat or deck are logged and skipped; one bad file
// never blocks the rest.
func (st *Store) LoadAll() ([]Snapshot, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("quiz: scan snapshot dir: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "s_") || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(st.dir, name))
		if err != nil {
			st.log.Warn("snapshot unreadable",
				slog.String("event", "snapshot.load"),
				slog.String("status", "fail"),
				slog.String("file", name),
				slog.String("err", err.Error()),
			)
			continue
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			st.log.Warn("snapshot malformed",
				slog.String("event", "snapshot.load"),
				slog.String("status", "fail"),
				slog.String("file", name),
				slog.String("err", err.Error()),
			)
			continue
		}
		if snap.ChatID == 0 || snap.DeckName == "" {
			st.log.Warn("snapshot incomplete",
				slog.String("event", "snapshot.load"),
				slog.String("status", "fail"),
				slog.String("file", name),
			)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
