// Package deck supplies shuffleable quiz decks of kanji cards.
package deck

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknown is returned when no deck is registered under the given name.
var ErrUnknown = errors.New("deck: unknown deck name")

// Card is a single quiz item.
type Card interface {
	// Question returns the text rendered and shown to the chat.
	Question() string
	// QuestionInfo returns the caption accompanying the question image.
	QuestionInfo() string
	// Answer reports whether the given text is an accepted answer.
	Answer(text string) bool
	// AnswerInfo returns the explanation revealed after the round.
	AnswerInfo() string
}

// Deck is an ordered supply of cards for one game. Implementations are
// not safe for concurrent use; a quiz session serializes all access.
type Deck interface {
	// Shuffle randomizes the order of the remaining cards.
	Shuffle()
	// Draw returns the next card, or nil when the deck is exhausted.
	Draw() Card
	// Finished reports whether all cards have been drawn.
	Finished() bool
	// Name returns the registered deck name.
	Name() string
}

// Builder constructs a fresh deck instance.
type Builder func() (Deck, error)

var builders = map[string]Builder{}

// Register makes a deck constructible by name. It panics on duplicates
// and is intended to be called from package init functions.
func Register(name string, b Builder) {
	if _, dup := builders[name]; dup {
		panic(fmt.Sprintf("deck: duplicate registration for %q", name))
	}
	builders[name] = b
}

// New constructs the deck registered under name.
func New(name string) (Deck, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return b()
}

// Names returns the sorted names of all registered decks.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
