package quiz

// Score accumulates one participant's points within a session. The
// display identity is captured at the first correct answer and is not
// refreshed afterwards.
type Score struct {
	Point    uint32
	FullName string
	Username string
}

// ScoreEntry is the serialized form of one ledger row, ordered by the
// participant's first correct answer.
type ScoreEntry struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Point    uint32 `json:"point"`
}

// Snapshot is the durable state of one session: enough to resume the
// game (with a reshuffled deck) after a process restart.
type Snapshot struct {
	ChatID   int64        `json:"chat_id"`
	DeckName string       `json:"deck_name"`
	Scores   []ScoreEntry `json:"scores"`
}
