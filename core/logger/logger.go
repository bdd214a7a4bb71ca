package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/r4den/kanjiquiz/core/buildinfo"
)

// Settings control logger construction. They are deliberately decoupled
// from the config package so the logger can be set up before (or without)
// a full configuration load.
type Settings struct {
	Level   string // debug, info, warn, error
	Format  string // kv, json; empty selects by Profile
	Profile string // debug/dev prefers kv, anything else json
	Dir     string // optional log directory
	File    string // optional log file name inside Dir
}

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	// L is the base logger. Prefer Component for scoped loggers.
	L *slog.Logger

	// APP logs process lifecycle events.
	APP *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// QUIZ logs quiz session lifecycle events.
	QUIZ *slog.Logger
	// STORE logs session snapshot persistence events.
	STORE *slog.Logger
	// RENDER logs question image rendering events.
	RENDER *slog.Logger
	// DB logs database and leaderboard events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
)

// Init configures the global structured logger. It may be called only once;
// repeated calls are no-ops.
func Init(s Settings) error {
	initOnce.Do(func() {
		levelVar.Set(parseLevel(s.Level))

		outputs, closers := buildOutputs(s)
		logClosers = closers
		logWriter = newAsyncWriter(outputs, 64*1024)

		handler := newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   selectFormat(s),
			keyOrder: append([]string(nil), defaultKeyOrder...),
		})

		L = slog.New(handler)
		slog.SetDefault(L)

		wireComponents()
		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
		)
	})
	return nil
}

func wireComponents() {
	APP = L.With("component", "app")
	TG = L.With("component", "tg")
	QUIZ = L.With("component", "quiz")
	STORE = L.With("component", "quiz.store")
	RENDER = L.With("component", "quiz.render")
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if logWriter != nil {
		if err := logWriter.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := logWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range logClosers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	base := L
	if base == nil {
		base = slog.Default()
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return base
	}
	return base.With("component", trimmed)
}

// Status maps an error to the unified status attribute value.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// RoundMS rounds a duration to the nearest millisecond for compact logging.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Took returns the rounded duration since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func selectFormat(s Settings) logFormat {
	switch strings.ToLower(strings.TrimSpace(s.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	if strings.EqualFold(s.Profile, "debug") || strings.EqualFold(s.Profile, "dev") {
		return formatKV
	}
	return formatJSON
}

func buildOutputs(s Settings) ([]io.Writer, []io.Closer) {
	writers := []io.Writer{os.Stdout}
	var closers []io.Closer
	dir := strings.TrimSpace(s.Dir)
	file := strings.TrimSpace(s.File)
	if dir == "" || file == "" {
		return writers, closers
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", dir, err)
		return writers, closers
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: failed to open log file %s: %v", path, err)
		return writers, closers
	}
	return append(writers, f), append(closers, f)
}
