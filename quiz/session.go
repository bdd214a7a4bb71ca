package quiz

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/r4den/kanjiquiz/quiz/deck"
)

// Session drives one chat's quiz game. A dedicated worker goroutine owns
// the forward progress: it draws cards, posts them, waits for answers,
// and finishes autonomously. External callers deliver answers and
// control commands; they mutate state under the session lock and never
// block on the worker.
type Session struct {
	chatID int64
	reg    *Registry
	log    *slog.Logger

	mu        sync.Mutex
	wake      chan struct{}
	deck      deck.Deck
	current   deck.Card // in-flight card awaiting an answer, nil otherwise
	scores    map[int64]*Score
	order     []int64 // ledger insertion order, breaks standings ties
	timeout   time.Duration
	nextDelay time.Duration
	stopped   bool
	lastMsgID int

	refs      atomic.Int32
	done      chan struct{} // closed when the worker has exited
	destroyed chan struct{} // closed when the refcount drains to zero
}

func newSession(r *Registry, chatID int64, d deck.Deck) *Session {
	s := &Session{
		chatID:    chatID,
		reg:       r,
		log:       r.log.With(slog.Int64("chat_id", chatID), slog.String("deck", d.Name())),
		wake:      make(chan struct{}),
		deck:      d,
		scores:    make(map[int64]*Score),
		timeout:   r.opts.Timeout,
		nextDelay: r.opts.NextDelay,
		done:      make(chan struct{}),
		destroyed: make(chan struct{}),
	}
	s.refs.Store(1) // creator's handle
	return s
}

// ChatID returns the chat this session belongs to.
func (s *Session) ChatID() int64 { return s.chatID }

// DeckName returns the name of the deck in play.
func (s *Session) DeckName() string { return s.deck.Name() }

// Done is closed once the worker has exited and the registry entry is
// gone.
func (s *Session) Done() <-chan struct{} { return s.done }

// Destroyed is closed once the last reference has been released.
func (s *Session) Destroyed() <-chan struct{} { return s.destroyed }

func (s *Session) acquire() {
	s.refs.Add(1)
}

func (s *Session) release() {
	if s.refs.Add(-1) == 0 {
		s.log.Debug("session destroyed", slog.String("event", "session.destroy"))
		close(s.destroyed)
	}
}

// Start launches the session worker. It must be called at most once per
// session; the registry's single-entry invariant prevents a second
// session (and thus a second start) for the same chat.
func (s *Session) Start() {
	s.acquire() // worker's reference, dropped when the worker exits
	go s.run()
}

// Stop latches the stop flag and wakes the worker. The latch is one-way;
// a stopped session never resumes.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.notifyLocked()
	s.mu.Unlock()
}

// SetTimeout updates the per-card answer window. With skip set, a wait
// in progress re-evaluates against the new value immediately.
func (s *Session) SetTimeout(d time.Duration, skip bool) {
	s.mu.Lock()
	s.timeout = d
	if skip {
		s.notifyLocked()
	}
	s.mu.Unlock()
}

// SetNextDelay updates the pause between rounds. With skip set, a wait
// in progress re-evaluates against the new value immediately.
func (s *Session) SetNextDelay(d time.Duration, skip bool) {
	s.mu.Lock()
	s.nextDelay = d
	if skip {
		s.notifyLocked()
	}
	s.mu.Unlock()
}

// Answer checks the text against the in-flight card. A match scores one
// point for the participant (creating the ledger entry on the first
// correct answer), announces the new total, and wakes the worker so the
// next round starts immediately. Non-matching answers and answers
// outside a round are ignored.
func (s *Session) Answer(userID int64, fullName, username, text string, msgID int) {
	s.mu.Lock()
	if s.current == nil || !s.current.Answer(text) {
		s.mu.Unlock()
		return
	}

	sc, ok := s.scores[userID]
	if ok {
		sc.Point++
	} else {
		sc = &Score{Point: 1, FullName: fullName, Username: username}
		s.scores[userID] = sc
		s.order = append(s.order, userID)
	}

	reply := fmt.Sprintf("Correct!\nYour point is: %d\n\n%s", sc.Point, s.current.AnswerInfo())
	s.current = nil
	s.notifyLocked()
	s.mu.Unlock()

	if err := s.transport().SendMessage(s.chatID, reply, MessageOptions{ReplyTo: msgID}); err != nil {
		s.log.Warn("answer reply failed",
			slog.String("event", "answer.reply"),
			slog.String("err", err.Error()),
		)
	}
}

// notifyLocked wakes every goroutine blocked in waitLocked. The caller
// must hold s.mu.
func (s *Session) notifyLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// waitLocked releases the lock for at most d, returning early when
// notifyLocked fires. The lock is reacquired before returning.
func (s *Session) waitLocked(d time.Duration) {
	ch := s.wake
	s.mu.Unlock()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	}
	s.mu.Lock()
}

func (s *Session) transport() Transport { return s.reg.opts.Transport }

func (s *Session) run() {
	s.mu.Lock()
	s.deck.Shuffle()
	s.log.Info("session worker started", slog.String("event", "session.start"))
	s.mu.Unlock()
	s.sendText("Session started!", MessageOptions{})
	s.mu.Lock()

	for {
		if s.stopped || s.deck.Finished() {
			break
		}
		card := s.deck.Draw()
		if card == nil {
			break
		}
		s.current = card

		if !s.sendCard(card) {
			s.current = nil
			break
		}

		if s.awaitAnswer() {
			s.announceTimeout()
		}

		if !s.deck.Finished() && !s.stopped {
			s.pause()
		}

		s.persist()
	}

	s.finish()
}

// sendCard renders the question and posts it to the chat, threading it
// under the previous round. It reports false when rendering or sending
// fails; both are fatal to the session. s.mu is held on entry and on
// return, and released around the network calls.
func (s *Session) sendCard(card deck.Card) bool {
	question := card.Question()
	caption := fmt.Sprintf("%s\n\nTimeout: %d seconds", card.QuestionInfo(), int(s.timeout/time.Second))
	replyTo := s.lastMsgID
	s.mu.Unlock()

	url, err := s.reg.opts.Renderer.Render(question)
	if err != nil {
		s.log.Error("question render failed",
			slog.String("event", "round.render"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		s.sendText("Failed to generate image, stopping session...", MessageOptions{})
		s.mu.Lock()
		return false
	}

	msgID, err := s.transport().SendPhoto(s.chatID, url, caption, replyTo)
	if err != nil {
		s.log.Error("question send failed",
			slog.String("event", "round.send"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		s.sendText("Failed to send image, stopping session...", MessageOptions{})
		s.mu.Lock()
		return false
	}

	s.mu.Lock()
	s.lastMsgID = msgID
	return true
}

// awaitAnswer blocks until the in-flight card is answered, the session
// is stopped, or the answer window elapses. Every wake re-checks the
// stop flag and the card state, and re-evaluates the deadline against
// the current timeout value. It reports whether the window timed out
// with the card still unanswered.
func (s *Session) awaitAnswer() bool {
	start := time.Now()
	for {
		if s.stopped || s.current == nil {
			return false
		}
		remaining := s.timeout - time.Since(start)
		if remaining <= 0 {
			return true
		}
		s.waitLocked(remaining)
	}
}

// announceTimeout reveals the answer for a missed card. The card is
// cleared before the lock is released so a late answer cannot score
// after the deadline.
func (s *Session) announceTimeout() {
	card := s.current
	s.current = nil
	text := "Time's up!\n\n" + card.AnswerInfo()
	replyTo := s.lastMsgID
	s.mu.Unlock()
	s.sendText(text, MessageOptions{ReplyTo: replyTo})
	s.mu.Lock()
}

// pause paces consecutive rounds. It is interruptible by stop and by
// skip-flagged delay updates.
func (s *Session) pause() {
	start := time.Now()
	for !s.stopped {
		remaining := s.nextDelay - time.Since(start)
		if remaining <= 0 {
			return
		}
		s.waitLocked(remaining)
	}
}

// persist snapshots the session after a round. Durability is
// best-effort: failures are logged and the in-memory state stays
// authoritative.
func (s *Session) persist() {
	if s.reg.opts.Store == nil {
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if err := s.reg.opts.Store.Save(snap); err != nil {
		s.log.Warn("snapshot save failed",
			slog.String("event", "snapshot.save"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	s.mu.Lock()
}

func (s *Session) snapshotLocked() Snapshot {
	entries := make([]ScoreEntry, 0, len(s.order))
	for _, id := range s.order {
		sc := s.scores[id]
		entries = append(entries, ScoreEntry{
			UserID:   id,
			FullName: sc.FullName,
			Username: sc.Username,
			Point:    sc.Point,
		})
	}
	return Snapshot{ChatID: s.chatID, DeckName: s.deck.Name(), Scores: entries}
}

// finish sends the final standings, removes the registry entry, and
// drops the worker's reference. Expects s.mu held; returns with it
// released.
func (s *Session) finish() {
	standings := s.standingsLocked()
	results := s.snapshotLocked().Scores

	var aborted string
	if s.current != nil {
		aborted = "Game is stopped!\n\n" + s.current.AnswerInfo()
		s.current = nil
	}
	replyTo := s.lastMsgID
	s.mu.Unlock()

	if aborted != "" {
		s.sendText(aborted, MessageOptions{ReplyTo: replyTo})
	}
	s.sendText(standings, MessageOptions{Quiet: true, HTML: true})

	if hook := s.reg.opts.OnFinish; hook != nil {
		hook(s.chatID, results)
	}

	s.log.Info("session finished",
		slog.String("event", "session.finish"),
		slog.Int("players", len(results)),
	)

	s.reg.Remove(s.chatID)
	close(s.done)
	s.release()
}

// standingsLocked renders the final score board: points descending,
// ties broken by first-correct-answer order.
func (s *Session) standingsLocked() string {
	ids := append([]int64(nil), s.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.scores[ids[i]].Point > s.scores[ids[j]].Point
	})

	var b strings.Builder
	b.WriteString("Session finished!\n\n")
	for i, id := range ids {
		sc := s.scores[id]
		fmt.Fprintf(&b, `%d. <a href="tg://user?id=%d">%s</a>: %d point`,
			i+1, id, html.EscapeString(sc.FullName), sc.Point)
		if sc.Point > 1 {
			b.WriteByte('s')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Session) sendText(text string, opts MessageOptions) {
	if err := s.transport().SendMessage(s.chatID, text, opts); err != nil {
		s.log.Warn("message send failed",
			slog.String("event", "session.send"),
			slog.String("err", err.Error()),
		)
	}
}

// seedScores preloads the ledger from a recovered snapshot. It must be
// called before Start.
func (s *Session) seedScores(entries []ScoreEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.UserID == 0 {
			continue
		}
		if _, dup := s.scores[e.UserID]; dup {
			continue
		}
		s.scores[e.UserID] = &Score{Point: e.Point, FullName: e.FullName, Username: e.Username}
		s.order = append(s.order, e.UserID)
	}
}
