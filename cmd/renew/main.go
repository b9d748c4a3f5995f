// Command renew runs one certificate renewal pass from a local TOML
// configuration, outside any job queue. Useful for first issuance and for
// debugging DNS propagation.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	rip_db "github.com/caasmo/restinpieces/db"
	"github.com/joho/godotenv"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	acme "github.com/kvernetz/netcup-acme"
	"github.com/kvernetz/netcup-acme/zombiezen"
)

func main() {
	// best effort, credentials usually live here during development
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	var configPath string
	var dbPath string
	flag.StringVar(&configPath, "config", "config.toml", "path to config TOML file")
	flag.StringVar(&dbPath, "dbfile", "certs.db", "path to SQLite database file")
	flag.Parse()

	logger.Info("loading configuration", "path", configPath)
	cfg, err := acme.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		"email", cfg.Email,
		"solver", cfg.Solver,
		"collections", len(cfg.Collections),
		"netcup", cfg.Netcup.Credentials,
		"account_key_set", cfg.AccountPrivateKey != "",
	)

	logger.Info("opening database pool", "path", dbPath)
	pool, err := sqlitex.NewPool(dbPath, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate,
		PoolSize: 1,
	})
	if err != nil {
		logger.Error("failed to open database pool", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("failed to close database pool", "error", err)
		}
	}()

	store, err := zombiezen.NewStore(pool)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	// generous timeout, the ACME flow waits on real DNS propagation
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	handler := acme.NewCertRenewalHandler(cfg, store, logger)

	logger.Info("executing renewal pass")
	if err := handler.Handle(ctx, rip_db.Job{ID: 1}); err != nil {
		logger.Error("renewal pass failed", "error", err)
		os.Exit(1)
	}
	logger.Info("renewal pass completed", "db_file", dbPath)
}
