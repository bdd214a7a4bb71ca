package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/r4den/kanjiquiz/bot"
	"github.com/r4den/kanjiquiz/core/bootstrap"
	"github.com/r4den/kanjiquiz/core/buildinfo"
	"github.com/r4den/kanjiquiz/core/config"
	"github.com/r4den/kanjiquiz/core/logger"
	coretelegram "github.com/r4den/kanjiquiz/core/telegram"
	"github.com/r4den/kanjiquiz/quiz"
	"github.com/r4den/kanjiquiz/quiz/leaderboard"
	"github.com/r4den/kanjiquiz/quiz/render"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("kanjiquiz: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()

	var board *leaderboard.Store
	if res.DB != nil {
		defer res.DB.Close()
		board = leaderboard.New(res.DB)
	}

	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Telegram.Token,
		Poller: coretelegram.BuildPoller(coretelegram.PollerOptions{
			RunMode:                cfg.Telegram.RunMode,
			LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
			Webhook: coretelegram.WebhookOptions{
				Listen: cfg.Webhook.Listen,
				Port:   cfg.Webhook.Port,
				URL:    cfg.Webhook.URL,
			},
		}),
		Client: coretelegram.BuildHTTPClient(),
	})
	if err != nil {
		return err
	}

	store, err := quiz.NewStore(cfg.Quiz.StorageDir)
	if err != nil {
		return err
	}

	reg := quiz.NewRegistry(quiz.Options{
		Transport: bot.NewTransport(b),
		Renderer:  render.New(cfg.Quiz.RenderURL, coretelegram.BuildRenderClient()),
		Store:     store,
		Timeout:   time.Duration(cfg.Quiz.TimeoutSeconds) * time.Second,
		NextDelay: time.Duration(cfg.Quiz.NextDelaySeconds) * time.Second,
		OnFinish:  bot.FinishSink(board),
	})

	app := bot.New(b, reg, board, cfg)
	app.WireHandlers()
	app.RecoverSessions()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.APP.Info("shutting down...", slog.String("event", "shutdown"))
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		reg.StopAll(stopCtx)
		stopCancel()
		b.Stop()
	}()

	logger.APP.Info("bot started",
		slog.String("event", "ready"),
		slog.String("version", buildinfo.Version),
		slog.String("run_mode", cfg.Telegram.RunMode),
	)
	b.Start()
	return nil
}
