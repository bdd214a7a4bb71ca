// Package bootstrap runs the startup pipeline shared by every entry
// point: logger first, then the optional leaderboard database.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/r4den/kanjiquiz/core/config"
	coredatabase "github.com/r4den/kanjiquiz/core/database"
	"github.com/r4den/kanjiquiz/core/logger"
)

// Options control the bootstrap pipeline. The function fields exist for
// tests; nil selects the production implementation.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(logger.Settings) error
	Connect    func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(coreconfig.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the leaderboard database is not configured.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger and, when a database host is configured,
// applies migrations and opens the connection pool.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.Init
	}
	lc := opts.Config.Logging
	if err := loggerInit(logger.Settings{
		Level:   lc.Level,
		Format:  lc.Format,
		Profile: lc.Profile,
		Dir:     lc.Dir,
		File:    lc.File,
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if !opts.Config.Database.Enabled() {
		return &Result{}, nil
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Config.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	return &Result{DB: db}, nil
}
