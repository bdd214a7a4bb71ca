package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	ctxChatID contextKey = "chat_id"
	ctxUserID contextKey = "user_id"
	ctxLogger contextKey = "logger"
)

// WithChatID attaches the chat id to the context so every log line
// produced downstream carries it automatically.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxChatID, chatID)
}

// ChatIDFrom extracts the chat id from the context, 0 when absent.
func ChatIDFrom(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxChatID).(int64); ok {
		return v
	}
	return 0
}

// WithUserID attaches the user id to the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// UserIDFrom extracts the user id from the context, 0 when absent.
func UserIDFrom(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxUserID).(int64); ok {
		return v
	}
	return 0
}

// WithLogger stores a scoped slog.Logger in the context.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts the slog.Logger from the context or returns the
// global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok {
			return l
		}
	}
	if L != nil {
		return L
	}
	return slog.Default()
}
