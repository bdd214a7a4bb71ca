package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/r4den/kanjiquiz/quiz"
	"github.com/r4den/kanjiquiz/quiz/deck"
)

const (
	minIntervalSeconds = 5
	maxIntervalSeconds = 600
)

func fullName(u *tele.User) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

func deckUsage() string {
	var b strings.Builder
	b.WriteString("Usage: /quiz <deck>\n\nAvailable decks:\n")
	for _, name := range deck.Names() {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return b.String()
}

func (a *App) handleStart(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send(deckUsage())
	}

	s, err := a.quiz.Create(c.Chat().ID, args[0])
	switch {
	case errors.Is(err, quiz.ErrSessionExists):
		return c.Send("A quiz session is already running in this chat!")
	case errors.Is(err, deck.ErrUnknown):
		return c.Send(deckUsage())
	case err != nil:
		return err
	}
	a.quiz.Release(s)
	return nil
}

func (a *App) handleStop(c tele.Context) error {
	s := a.quiz.Lookup(c.Chat().ID)
	if s == nil {
		return c.Send("No quiz session is running in this chat.")
	}
	s.Stop()
	a.quiz.Release(s)
	return nil
}

func (a *App) handleDecks(c tele.Context) error {
	var b strings.Builder
	b.WriteString("Available decks:\n")
	for _, name := range deck.Names() {
		b.WriteString("  - ")
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return c.Send(b.String())
}

// parseInterval reads "<seconds> [skip]" command arguments.
func parseInterval(args []string) (time.Duration, bool, error) {
	if len(args) == 0 {
		return 0, false, fmt.Errorf("missing seconds argument")
	}
	sec, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, false, fmt.Errorf("invalid seconds value %q", args[0])
	}
	if sec < minIntervalSeconds || sec > maxIntervalSeconds {
		return 0, false, fmt.Errorf("seconds must be between %d and %d", minIntervalSeconds, maxIntervalSeconds)
	}
	skip := len(args) > 1 && strings.EqualFold(args[1], "skip")
	return time.Duration(sec) * time.Second, skip, nil
}

func (a *App) handleTimeout(c tele.Context) error {
	d, skip, err := parseInterval(c.Args())
	if err != nil {
		return c.Send("Usage: /quiztimeout <seconds> [skip]\n" + err.Error())
	}
	s := a.quiz.Lookup(c.Chat().ID)
	if s == nil {
		return c.Send("No quiz session is running in this chat.")
	}
	s.SetTimeout(d, skip)
	a.quiz.Release(s)
	return c.Send(fmt.Sprintf("Answer timeout set to %d seconds.", int(d/time.Second)))
}

func (a *App) handleDelay(c tele.Context) error {
	d, skip, err := parseInterval(c.Args())
	if err != nil {
		return c.Send("Usage: /quizdelay <seconds> [skip]\n" + err.Error())
	}
	s := a.quiz.Lookup(c.Chat().ID)
	if s == nil {
		return c.Send("No quiz session is running in this chat.")
	}
	s.SetNextDelay(d, skip)
	a.quiz.Release(s)
	return c.Send(fmt.Sprintf("Delay between questions set to %d seconds.", int(d/time.Second)))
}

func (a *App) handleTop(c tele.Context) error {
	if a.board == nil {
		return c.Send("Leaderboard is not available.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	players, err := a.board.Top(ctx, 10)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return c.Send("No scores recorded yet.")
	}

	var b strings.Builder
	b.WriteString("<b>All-time leaderboard</b>\n\n")
	for i, p := range players {
		fmt.Fprintf(&b, `%d. <a href="tg://user?id=%d">%s</a>: %d point`,
			i+1, p.UserID, html.EscapeString(p.FullName), p.Points)
		if p.Points != 1 {
			b.WriteByte('s')
		}
		b.WriteByte('\n')
	}
	return c.Send(b.String(), &tele.SendOptions{ParseMode: tele.ModeHTML})
}

func (a *App) handleText(c tele.Context) error {
	msg := c.Message()
	sender := c.Sender()
	if msg == nil || sender == nil {
		return nil
	}

	s := a.quiz.Lookup(c.Chat().ID)
	if s == nil {
		return nil
	}
	s.Answer(sender.ID, fullName(sender), sender.Username, strings.TrimSpace(msg.Text), msg.ID)
	a.quiz.Release(s)
	return nil
}
