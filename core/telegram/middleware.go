package telegram

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/r4den/kanjiquiz/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Recover catches panics in handlers and prevents the bot from crashing.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.TG.Error("panic recovered",
					slog.String("event", "tg.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}

// LogUpdates logs a single receipt line per update at debug level.
func LogUpdates(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		err := next(c)

		attrs := []slog.Attr{
			slog.String("event", "update"),
			slog.String("status", logger.Status(err)),
			slog.Int("update_id", c.Update().ID),
			slog.Duration("duration", logger.Took(start)),
		}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.Int64("chat_id", chat.ID))
		}
		if sender := c.Sender(); sender != nil {
			attrs = append(attrs, slog.Int64("user_id", sender.ID))
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
			logger.TG.LogAttrs(context.Background(), slog.LevelWarn, "update", attrs...)
			return err
		}
		logger.TG.LogAttrs(context.Background(), slog.LevelDebug, "update", attrs...)
		return nil
	}
}
