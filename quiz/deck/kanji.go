package deck

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
)

//go:embed decks/*.json
var deckFiles embed.FS

func init() {
	Register("tozai_line", kanjiBuilder("tozai_line", "Tozai Line", "decks/tozai_line.json"))
	Register("yamanote_line", kanjiBuilder("yamanote_line", "Yamanote Line", "decks/yamanote_line.json"))
}

// kanjiCard is a station-name card: the kanji is shown as the question,
// the romaji or hiragana reading is accepted as the answer.
type kanjiCard struct {
	Kanji    string `json:"kanji"`
	Hiragana string `json:"hiragana"`
	Romaji   string `json:"romaji"`
	English  string `json:"english"`

	title string
}

func (c *kanjiCard) Question() string {
	return c.Kanji
}

func (c *kanjiCard) QuestionInfo() string {
	return fmt.Sprintf("Guess the station name! (%s)", c.title)
}

func (c *kanjiCard) Answer(text string) bool {
	guess := strings.TrimSpace(text)
	if guess == "" {
		return false
	}
	if guess == c.Hiragana {
		return true
	}
	return normalizeRomaji(guess) == normalizeRomaji(c.Romaji)
}

func (c *kanjiCard) AnswerInfo() string {
	return fmt.Sprintf("Kanji: %s\nHiragana: %s\nRomaji: %s\nEnglish: %s",
		c.Kanji, c.Hiragana, c.Romaji, c.English)
}

// normalizeRomaji lowercases and strips separators so "Monzen-Nakacho",
// "monzen nakacho" and "monzennakacho" all compare equal.
func normalizeRomaji(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '-', '_', '\'':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type kanjiDeck struct {
	name  string
	cards []*kanjiCard
	pos   int
}

func kanjiBuilder(name, title, path string) Builder {
	return func() (Deck, error) {
		return loadKanjiDeck(name, title, path)
	}
}

func loadKanjiDeck(name, title, path string) (*kanjiDeck, error) {
	data, err := deckFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deck: read %s: %w", path, err)
	}
	var cards []*kanjiCard
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("deck: parse %s: %w", path, err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("deck: empty deck %q", name)
	}
	for _, c := range cards {
		c.title = title
	}
	return &kanjiDeck{name: name, cards: cards}, nil
}

func (d *kanjiDeck) Shuffle() {
	rest := d.cards[d.pos:]
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}

func (d *kanjiDeck) Draw() Card {
	if d.pos >= len(d.cards) {
		return nil
	}
	c := d.cards[d.pos]
	d.pos++
	return c
}

func (d *kanjiDeck) Finished() bool {
	return d.pos >= len(d.cards)
}

func (d *kanjiDeck) Name() string {
	return d.name
}
