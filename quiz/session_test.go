package quiz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r4den/kanjiquiz/quiz/deck"
)

type sentMsg struct {
	text string
	opts MessageOptions
}

type fakeTransport struct {
	mu       sync.Mutex
	msgs     []sentMsg
	captions []string
	photoErr error
	nextID   int
}

func (f *fakeTransport) SendMessage(chatID int64, text string, opts MessageOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sentMsg{text: text, opts: opts})
	return nil
}

func (f *fakeTransport) SendPhoto(chatID int64, url, caption string, replyTo int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return 0, f.photoErr
	}
	f.nextID++
	f.captions = append(f.captions, caption)
	return f.nextID, nil
}

func (f *fakeTransport) photoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captions)
}

func (f *fakeTransport) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.msgs...)
}

func (f *fakeTransport) hasMessage(substr string) bool {
	for _, m := range f.messages() {
		if strings.Contains(m.text, substr) {
			return true
		}
	}
	return false
}

type fakeRenderer struct{ err error }

func (f fakeRenderer) Render(question string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://img.example/" + question, nil
}

type fakeCard struct{ q, want string }

func (c fakeCard) Question() string        { return c.q }
func (c fakeCard) QuestionInfo() string    { return "Guess " + c.q }
func (c fakeCard) Answer(text string) bool { return text == c.want }
func (c fakeCard) AnswerInfo() string      { return "Answer: " + c.want }

type fakeDeck struct {
	name  string
	cards []fakeCard
	pos   int
}

func (d *fakeDeck) Shuffle()       {}
func (d *fakeDeck) Name() string   { return d.name }
func (d *fakeDeck) Finished() bool { return d.pos >= len(d.cards) }

func (d *fakeDeck) Draw() deck.Card {
	if d.Finished() {
		return nil
	}
	c := d.cards[d.pos]
	d.pos++
	return c
}

func testCards(n int) []fakeCard {
	cards := make([]fakeCard, n)
	for i := range cards {
		cards[i] = fakeCard{q: string(rune('a' + i)), want: "ans" + string(rune('a'+i))}
	}
	return cards
}

func newTestRegistry(tr *fakeTransport, rd Renderer, cards int, timeout time.Duration) *Registry {
	return NewRegistry(Options{
		Transport: tr,
		Renderer:  rd,
		NewDeck: func(name string) (deck.Deck, error) {
			if name == "missing" {
				return nil, errors.New("unknown deck")
			}
			return &fakeDeck{name: name, cards: testCards(cards)}, nil
		},
		Timeout:   timeout,
		NextDelay: 5 * time.Millisecond,
	})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	_, err = reg.Create(42, "fake")
	assert.ErrorIs(t, err, ErrSessionExists)

	s.Stop()
	waitDone(t, s)
}

func TestCreateUnknownDeckRegistersNothing(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Second)

	_, err := reg.Create(42, "missing")
	require.Error(t, err)
	assert.Nil(t, reg.Lookup(42))
}

func TestWrongAnswerIgnored(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, 2*time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.Answer(7, "Alice", "alice", "nope", 100)

	assert.False(t, tr.hasMessage("Correct!"))

	s.Stop()
	waitDone(t, s)
	assert.True(t, tr.hasMessage("Game is stopped!"))
}

func TestCorrectAnswerScoresAndAdvances(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 2, 10*time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.Answer(7, "Alice", "alice", "ansa", 100)

	// The wake skips the remaining answer window and the next card goes
	// out after only the inter-round delay.
	require.Eventually(t, func() bool { return tr.photoCount() == 2 }, time.Second, 2*time.Millisecond)
	assert.True(t, tr.hasMessage("Correct!\nYour point is: 1"))

	s.Answer(7, "Alice", "alice", "ansb", 101)
	waitDone(t, s)
	assert.True(t, tr.hasMessage("Your point is: 2"))
}

func TestAnswerReplyThreadsToSender(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, 10*time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.Answer(7, "Alice", "alice", "ansa", 345)
	waitDone(t, s)

	var found bool
	for _, m := range tr.messages() {
		if strings.HasPrefix(m.text, "Correct!") {
			found = true
			assert.Equal(t, 345, m.opts.ReplyTo)
		}
	}
	assert.True(t, found)
}

func TestRoundTimeoutRevealsAnswer(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, 20*time.Millisecond)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	waitDone(t, s)
	assert.True(t, tr.hasMessage("Time's up!\n\nAnswer: ansa"))
	assert.True(t, tr.hasMessage("Session finished!"))
}

func TestLateAnswerAfterTimeoutDoesNotScore(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, 20*time.Millisecond)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.hasMessage("Time's up!") }, time.Second, 2*time.Millisecond)
	s.Answer(7, "Alice", "alice", "ansa", 100)

	waitDone(t, s)
	assert.False(t, tr.hasMessage("Correct!"))
}

func TestStopMidRound(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 3, 10*time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.Stop()
	waitDone(t, s)

	assert.True(t, tr.hasMessage("Game is stopped!\n\nAnswer: ansa"))
	assert.True(t, tr.hasMessage("Session finished!"))
	assert.Equal(t, 1, tr.photoCount())
}

func TestSetTimeoutSkipEndsRound(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Hour)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.SetTimeout(time.Millisecond, true)

	waitDone(t, s)
	assert.True(t, tr.hasMessage("Time's up!"))
}

func TestRegistryEntryGoneAfterFinish(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	s.Stop()
	waitDone(t, s)
	assert.Nil(t, reg.Lookup(42))
}

func TestDestroyedOnlyAtZeroRefs(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)

	s.Stop()
	waitDone(t, s)

	// The caller's handle still pins the session.
	select {
	case <-s.Destroyed():
		t.Fatal("session destroyed while a reference is held")
	default:
	}

	reg.Release(s)
	select {
	case <-s.Destroyed():
	case <-time.After(time.Second):
		t.Fatal("session not destroyed after last release")
	}
}

func TestRenderFailureStopsSession(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{err: errors.New("service down")}, 3, time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	waitDone(t, s)
	assert.True(t, tr.hasMessage("Failed to generate image, stopping session..."))
	assert.Equal(t, 0, tr.photoCount())
}

func TestSendFailureStopsSession(t *testing.T) {
	tr := &fakeTransport{photoErr: errors.New("kicked from chat")}
	reg := newTestRegistry(tr, fakeRenderer{}, 3, time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	waitDone(t, s)
	assert.True(t, tr.hasMessage("Failed to send image, stopping session..."))
}

func TestFinalStandingsOrdered(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 3, 10*time.Second)

	var (
		finMu      sync.Mutex
		finResults []ScoreEntry
	)
	reg.opts.OnFinish = func(chatID int64, results []ScoreEntry) {
		finMu.Lock()
		finResults = results
		finMu.Unlock()
	}

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	answers := []struct {
		userID int64
		name   string
		text   string
	}{
		{7, "Alice", "ansa"},
		{7, "Alice", "ansb"},
		{9, "Bob", "ansc"},
	}
	for i, a := range answers {
		require.Eventually(t, func() bool { return tr.photoCount() == i+1 }, time.Second, 2*time.Millisecond)
		s.Answer(a.userID, a.name, strings.ToLower(a.name), a.text, 100+i)
	}
	waitDone(t, s)

	var standings string
	for _, m := range tr.messages() {
		if strings.HasPrefix(m.text, "Session finished!") {
			standings = m.text
			assert.True(t, m.opts.Quiet)
			assert.True(t, m.opts.HTML)
		}
	}
	require.NotEmpty(t, standings)
	assert.Contains(t, standings, `1. <a href="tg://user?id=7">Alice</a>: 2 points`)
	assert.Contains(t, standings, `2. <a href="tg://user?id=9">Bob</a>: 1 point`)

	finMu.Lock()
	defer finMu.Unlock()
	require.Len(t, finResults, 2)
	assert.Equal(t, int64(7), finResults[0].UserID)
	assert.EqualValues(t, 2, finResults[0].Point)
}

func TestStopAllWaitsForWorkers(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 5, time.Hour)

	for _, chat := range []int64{1, 2, 3} {
		s, err := reg.Create(chat, "fake")
		require.NoError(t, err)
		reg.Release(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reg.StopAll(ctx)

	for _, chat := range []int64{1, 2, 3} {
		assert.Nil(t, reg.Lookup(chat))
	}
}
