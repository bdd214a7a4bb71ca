package quiz

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r4den/kanjiquiz/quiz/deck"
)

func TestLookupHoldsReference(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Hour)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)

	held := reg.Lookup(42)
	require.Same(t, s, held)

	reg.Release(s)
	s.Stop()
	waitDone(t, s)

	// The lookup handle keeps the object alive past worker exit.
	select {
	case <-s.Destroyed():
		t.Fatal("session destroyed while lookup reference is held")
	default:
	}
	reg.Release(held)
	select {
	case <-s.Destroyed():
	case <-time.After(time.Second):
		t.Fatal("session not destroyed after last release")
	}
}

func TestRecoverSeedsScores(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, 10*time.Second)

	err := reg.Recover(Snapshot{
		ChatID:   42,
		DeckName: "fake",
		Scores:   []ScoreEntry{{UserID: 7, FullName: "Alice", Username: "alice", Point: 4}},
	})
	require.NoError(t, err)

	s := reg.Lookup(42)
	require.NotNil(t, s)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.Answer(7, "Alice", "alice", "ansa", 100)
	waitDone(t, s)

	assert.True(t, tr.hasMessage("Your point is: 5"))
	assert.True(t, tr.hasMessage(`<a href="tg://user?id=7">Alice</a>: 5 points`))
}

func TestRecoverDuplicateChatFails(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Hour)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	err = reg.Recover(Snapshot{ChatID: 42, DeckName: "fake"})
	assert.ErrorIs(t, err, ErrSessionExists)

	s.Stop()
	waitDone(t, s)
}

func TestRecoverAllSkipsBrokenSnapshots(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Save(Snapshot{ChatID: 1, DeckName: "fake"}))
	require.NoError(t, st.Save(Snapshot{ChatID: 2, DeckName: "missing"}))
	require.NoError(t, st.Save(Snapshot{ChatID: 3, DeckName: "fake"}))

	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, time.Hour)
	reg.opts.Store = st

	assert.Equal(t, 2, reg.RecoverAll())

	for _, chat := range []int64{1, 3} {
		s := reg.Lookup(chat)
		require.NotNil(t, s, "chat %d", chat)
		s.Stop()
		waitDone(t, s)
		reg.Release(s)
	}
	assert.Nil(t, reg.Lookup(2))
}

func TestSessionPersistsAfterRounds(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 2, 10*time.Second)
	reg.opts.Store = st

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	for i, text := range []string{"ansa", "ansb"} {
		require.Eventually(t, func() bool { return tr.photoCount() == i+1 }, time.Second, 2*time.Millisecond)
		s.Answer(7, "Alice", "alice", text, 100+i)
	}
	waitDone(t, s)

	snaps, err := st.LoadAll()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.EqualValues(t, 42, snaps[0].ChatID)
	assert.Equal(t, "fake", snaps[0].DeckName)
	require.Len(t, snaps[0].Scores, 1)
	assert.EqualValues(t, 2, snaps[0].Scores[0].Point)
}

func TestDefaultDeckFactory(t *testing.T) {
	reg := NewRegistry(Options{Transport: &fakeTransport{}, Renderer: fakeRenderer{}})
	d, err := reg.opts.NewDeck("tozai_line")
	require.NoError(t, err)
	assert.Equal(t, "tozai_line", d.Name())

	_, err = reg.opts.NewDeck("nope")
	assert.ErrorIs(t, err, deck.ErrUnknown)
}

func TestStandingsEscapesNames(t *testing.T) {
	tr := &fakeTransport{}
	reg := newTestRegistry(tr, fakeRenderer{}, 1, 10*time.Second)

	s, err := reg.Create(42, "fake")
	require.NoError(t, err)
	defer reg.Release(s)

	require.Eventually(t, func() bool { return tr.photoCount() == 1 }, time.Second, 2*time.Millisecond)
	s.Answer(7, "<b>Eve</b>", "eve", "ansa", 100)
	waitDone(t, s)

	var standings string
	for _, m := range tr.messages() {
		if strings.HasPrefix(m.text, "Session finished!") {
			standings = m.text
		}
	}
	assert.Contains(t, standings, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.NotContains(t, standings, "<b>Eve</b>")
}
