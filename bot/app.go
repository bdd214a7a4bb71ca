// Package bot wires the quiz engine to Telegram: command handlers, the
// text answer route, and the transport adapter.
package bot

import (
	"context"
	"time"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/r4den/kanjiquiz/core/config"
	"github.com/r4den/kanjiquiz/core/logger"
	coretelegram "github.com/r4den/kanjiquiz/core/telegram"
	"github.com/r4den/kanjiquiz/quiz"
	"github.com/r4den/kanjiquiz/quiz/leaderboard"
)

// App holds the bot's runtime collaborators.
type App struct {
	bot   *tele.Bot
	quiz  *quiz.Registry
	board *leaderboard.Store // nil when the database is disabled
	cfg   *config.Config
	log   *slog.Logger
}

// New assembles the application. board may be nil.
func New(b *tele.Bot, reg *quiz.Registry, board *leaderboard.Store, cfg *config.Config) *App {
	return &App{
		bot:   b,
		quiz:  reg,
		board: board,
		cfg:   cfg,
		log:   logger.Component("app"),
	}
}

// WireHandlers registers global middleware, every command route, and the
// text route that feeds answers into live sessions. It also publishes
// the command menu.
func (a *App) WireHandlers() {
	a.bot.Use(coretelegram.Recover, coretelegram.LogUpdates)

	menu := []tele.Command{
		{Text: "quiz", Description: "Start a quiz session"},
		{Text: "quizstop", Description: "Stop the current session"},
		{Text: "quizdecks", Description: "List available decks"},
		{Text: "quiztimeout", Description: "Set the answer timeout"},
		{Text: "quizdelay", Description: "Set the delay between questions"},
		{Text: "quiztop", Description: "Show the all-time leaderboard"},
	}
	if err := a.bot.SetCommands(menu); err != nil {
		a.log.Warn("command menu publish failed",
			slog.String("event", "commands.set"),
			slog.String("err", err.Error()),
		)
	}

	a.bot.Handle("/quiz", a.handleStart)
	a.bot.Handle("/quizstop", a.handleStop)
	a.bot.Handle("/quizdecks", a.handleDecks)
	a.bot.Handle("/quiztimeout", a.handleTimeout)
	a.bot.Handle("/quizdelay", a.handleDelay)
	a.bot.Handle("/quiztop", a.handleTop)
	a.bot.Handle(tele.OnText, a.handleText)
}

// RecoverSessions restarts every session found in the snapshot store.
func (a *App) RecoverSessions() {
	n := a.quiz.RecoverAll()
	if n > 0 {
		a.log.Info("sessions recovered",
			slog.String("event", "recover"),
			slog.Int("count", n),
		)
	}
}

// FinishSink returns a session finish hook that folds final standings
// into the all-time leaderboard, or nil when no board is configured.
func FinishSink(board *leaderboard.Store) quiz.FinishFunc {
	if board == nil {
		return nil
	}
	return func(chatID int64, results []quiz.ScoreEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := board.Record(ctx, chatID, results); err != nil {
			logger.Component("leaderboard").Warn("results not recorded",
				slog.String("event", "leaderboard.record"),
				slog.String("status", "fail"),
				slog.Int64("chat_id", chatID),
				slog.String("err", err.Error()),
			)
		}
	}
}
